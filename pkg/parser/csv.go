package parser

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/logflow/alphaflow/internal/model"
	"github.com/logflow/alphaflow/internal/pool"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVParser reads delimited text with a header row.
type CSVParser struct {
	cfg Config
}

// NewCSVParser creates a new CSV parser.
func NewCSVParser(cfg Config) *CSVParser {
	return &CSVParser{cfg: cfg}
}

// Parse implements the Parser interface. Rows with too few fields or an
// empty case or activity are skipped; an unparseable timestamp is an error,
// since ordering would otherwise be silently wrong.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)
	scanner := NewFieldScanner(p.cfg.Delimiter)

	headerLine, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return err
	}
	headerLine = trimLineEnding(bytes.TrimPrefix(headerLine, utf8BOM))
	if len(headerLine) == 0 {
		return ErrInvalidCSV
	}

	header := make([]string, 0, 16)
	for _, f := range scanner.Scan(headerLine) {
		header = append(header, string(bytes.TrimSpace(f)))
	}
	cols, err := resolveColumns(header, p.cfg)
	if err != nil {
		return err
	}

	var seq int64
	for lineNum := 2; ; lineNum++ {
		select {
		case <-ctx.Done():
			return ErrContextCanceled
		default:
		}

		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return readErr
		}
		line = trimLineEnding(line)

		if len(line) > 0 {
			fields := scanner.Scan(line)
			if cols.fit(len(fields)) {
				ev, err := p.event(fields, cols)
				if err != nil {
					return fmt.Errorf("line %d: %w", lineNum, err)
				}
				if ev != nil {
					ev.Seq = seq
					seq++
					if err := emit(ctx, out, ev); err != nil {
						pool.Events.Put(ev)
						return err
					}
				}
			}
		}

		if readErr == io.EOF {
			return nil
		}
	}
}

func (p *CSVParser) event(fields [][]byte, cols columns) (*model.Event, error) {
	caseID := bytes.TrimSpace(fields[cols.caseID])
	activity := bytes.TrimSpace(fields[cols.activity])
	if len(caseID) == 0 || len(activity) == 0 {
		return nil, nil
	}

	ts, err := ParseTimestamp(string(fields[cols.timestamp]), p.cfg.TimestampFormat, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, fields[cols.timestamp])
	}

	ev := pool.Events.Get()
	ev.CaseID = string(caseID)
	ev.Activity = string(activity)
	ev.Timestamp = ts
	if cols.resource >= 0 && cols.resource < len(fields) {
		ev.Resource = string(fields[cols.resource])
	}
	return ev, nil
}

// columns holds resolved column positions; resource is -1 when absent.
type columns struct {
	caseID, activity, timestamp, resource int
}

func (c columns) fit(n int) bool {
	return c.caseID < n && c.activity < n && c.timestamp < n
}

// resolveColumns finds the configured columns in header.
func resolveColumns(header []string, cfg Config) (columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	find := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return -1, fmt.Errorf("%w: %q (available: %v)", ErrMissingColumn, name, header)
		}
		return i, nil
	}

	var c columns
	var err error
	if c.caseID, err = find(cfg.CaseIDColumn); err != nil {
		return c, err
	}
	if c.activity, err = find(cfg.ActivityColumn); err != nil {
		return c, err
	}
	if c.timestamp, err = find(cfg.TimestampColumn); err != nil {
		return c, err
	}
	c.resource = -1
	if i, ok := index[cfg.ResourceColumn]; ok && cfg.ResourceColumn != "" {
		c.resource = i
	}
	return c, nil
}

// trimLineEnding removes trailing \n and \r characters.
func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
