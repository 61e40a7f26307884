package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/alphaflow/internal/model"
	"github.com/logflow/alphaflow/internal/pool"
)

// readerAtSeeker is what the parquet footer reader needs.
type readerAtSeeker interface {
	io.ReaderAt
	io.Seeker
}

// ParquetParser reads event logs stored as Parquet through Arrow.
type ParquetParser struct {
	cfg       Config
	alloc     memory.Allocator
	batchSize int64
}

// NewParquetParser creates a new Parquet parser.
func NewParquetParser(cfg Config) *ParquetParser {
	return &ParquetParser{
		cfg:       cfg,
		alloc:     memory.DefaultAllocator,
		batchSize: 8192,
	}
}

// Parse implements the Parser interface. Files are read directly; other
// readers are buffered in memory first because Parquet needs random access.
func (p *ParquetParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	src, ok := r.(readerAtSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		src = bytes.NewReader(data)
	}

	pqReader, err := file.NewParquetReader(src)
	if err != nil {
		return fmt.Errorf("failed to open parquet: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{
		BatchSize: p.batchSize,
	}, p.alloc)
	if err != nil {
		return fmt.Errorf("failed to create arrow reader: %w", err)
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to read parquet table: %w", err)
	}
	defer table.Release()

	schema := table.Schema()
	header := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		header[i] = f.Name
	}
	cols, err := resolveColumns(header, p.cfg)
	if err != nil {
		return err
	}

	tr := array.NewTableReader(table, p.batchSize)
	defer tr.Release()

	var seq int64
	for tr.Next() {
		select {
		case <-ctx.Done():
			return ErrContextCanceled
		default:
		}

		rec := tr.Record()
		for row := 0; row < int(rec.NumRows()); row++ {
			caseID := cellString(rec.Column(cols.caseID), row)
			activity := cellString(rec.Column(cols.activity), row)
			if caseID == "" || activity == "" {
				continue
			}
			ts, err := p.cellTimestamp(rec.Column(cols.timestamp), row)
			if err != nil {
				return fmt.Errorf("row %d: %w", seq, err)
			}

			ev := pool.Events.Get()
			ev.CaseID = caseID
			ev.Activity = activity
			ev.Timestamp = ts
			ev.Seq = seq
			seq++
			if cols.resource >= 0 {
				ev.Resource = cellString(rec.Column(cols.resource), row)
			}

			if err := emit(ctx, out, ev); err != nil {
				pool.Events.Put(ev)
				return err
			}
		}
	}
	return nil
}

func cellString(col arrow.Array, row int) string {
	if col.IsNull(row) {
		return ""
	}
	switch c := col.(type) {
	case *array.String:
		return c.Value(row)
	case *array.LargeString:
		return c.Value(row)
	default:
		return col.ValueStr(row)
	}
}

func (p *ParquetParser) cellTimestamp(col arrow.Array, row int) (int64, error) {
	if col.IsNull(row) {
		return 0, ErrInvalidTimestamp
	}
	switch c := col.(type) {
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(row).ToTime(unit).UnixNano(), nil
	case *array.Date32:
		return c.Value(row).ToTime().UnixNano(), nil
	case *array.Date64:
		return c.Value(row).ToTime().UnixNano(), nil
	case *array.Int64:
		return c.Value(row) * int64(time.Second), nil
	default:
		return ParseTimestamp(cellString(col, row), p.cfg.TimestampFormat, false)
	}
}
