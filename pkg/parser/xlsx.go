package parser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/alphaflow/internal/model"
	"github.com/logflow/alphaflow/internal/pool"
)

// XLSXParser reads the first sheet of an Excel workbook. The first row is
// the header.
type XLSXParser struct {
	cfg Config
}

// NewXLSXParser creates a new XLSX parser.
func NewXLSXParser(cfg Config) *XLSXParser {
	return &XLSXParser{cfg: cfg}
}

// Parse implements the Parser interface. excelize needs the whole archive,
// so r is read fully before rows are streamed.
func (p *XLSXParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSheet, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return ErrInvalidSheet
	}

	rows, err := wb.Rows(sheets[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return fmt.Errorf("%w: sheet %q is empty", ErrInvalidSheet, sheets[0])
	}
	header, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSheet, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	cols, err := resolveColumns(header, p.cfg)
	if err != nil {
		return err
	}

	var seq int64
	for rowNum := 2; rows.Next(); rowNum++ {
		select {
		case <-ctx.Done():
			return ErrContextCanceled
		default:
		}

		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("row %d: %w", rowNum, err)
		}
		if !cols.fit(len(cells)) {
			continue
		}

		caseID := strings.TrimSpace(cells[cols.caseID])
		activity := strings.TrimSpace(cells[cols.activity])
		if caseID == "" || activity == "" {
			continue
		}
		ts, err := ParseTimestamp(cells[cols.timestamp], p.cfg.TimestampFormat, true)
		if err != nil {
			return fmt.Errorf("row %d: %w: %q", rowNum, err, cells[cols.timestamp])
		}

		ev := pool.Events.Get()
		ev.CaseID = caseID
		ev.Activity = activity
		ev.Timestamp = ts
		ev.Seq = seq
		seq++
		if cols.resource >= 0 && cols.resource < len(cells) {
			ev.Resource = cells[cols.resource]
		}

		if err := emit(ctx, out, ev); err != nil {
			pool.Events.Put(ev)
			return err
		}
	}
	return rows.Error()
}
