// Package parser reads event logs (CSV, XES, XLSX, Parquet) into a stream of
// events.
package parser

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/logflow/alphaflow/internal/model"
)

// Parser defines the interface for parsing event logs.
// Implementations must not retain references to the output channel after
// returning. Events sent on out are owned by the receiver.
type Parser interface {
	// Parse reads from r and sends parsed events to out.
	// It should respect context cancellation.
	// The caller is responsible for closing the out channel.
	Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXES
	FormatXLSX
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXES:
		return "xes"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv":
		return FormatCSV
	case "xes":
		return FormatXES
	case "xlsx", "excel":
		return FormatXLSX
	case "parquet", "pq":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// DetectFormat picks the format from the file extension. A ".gz" suffix is
// not supported; logs must be uncompressed.
func DetectFormat(path string) (Format, error) {
	ext := filepath.Ext(path)
	f := ParseFormat(ext)
	if f == FormatUnknown {
		return FormatUnknown, fmt.Errorf("%w: %q (supported: .csv, .xes, .xlsx, .parquet)", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// Config holds common parser configuration.
type Config struct {
	// BufferSize is the size of the read buffer in bytes.
	BufferSize int

	// CaseIDColumn is the name of the case ID column (tabular formats).
	CaseIDColumn string

	// ActivityColumn is the name of the activity column (tabular formats).
	ActivityColumn string

	// TimestampColumn is the name of the timestamp column (tabular formats).
	TimestampColumn string

	// ResourceColumn is the name of the optional resource column.
	ResourceColumn string

	// TimestampFormat is tried before the built-in layouts (Go time layout).
	TimestampFormat string

	// Delimiter is the field delimiter for CSV (default: comma).
	Delimiter byte
}

// DefaultConfig returns a Config with the XES standard column names.
func DefaultConfig() Config {
	return Config{
		BufferSize:      64 * 1024,
		CaseIDColumn:    "case:concept:name",
		ActivityColumn:  "concept:name",
		TimestampColumn: "time:timestamp",
		ResourceColumn:  "org:resource",
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		Delimiter:       ',',
	}
}

// NewParser creates a parser for the given format.
func NewParser(format Format, cfg Config) (Parser, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	switch format {
	case FormatCSV:
		return NewCSVParser(cfg), nil
	case FormatXES:
		return NewXESParser(cfg), nil
	case FormatXLSX:
		return NewXLSXParser(cfg), nil
	case FormatParquet:
		return NewParquetParser(cfg), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// emit sends e to out unless ctx is done first.
func emit(ctx context.Context, out chan<- *model.Event, e *model.Event) error {
	select {
	case out <- e:
		return nil
	case <-ctx.Done():
		return ErrContextCanceled
	}
}
