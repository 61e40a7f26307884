package parser

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/logflow/alphaflow/internal/model"
)

// collect runs p over r and returns every emitted event.
func collect(t *testing.T, p Parser, r io.Reader) ([]*model.Event, error) {
	t.Helper()
	out := make(chan *model.Event, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		errc <- p.Parse(context.Background(), r, out)
	}()

	var events []*model.Event
	for e := range out {
		events = append(events, e)
	}
	return events, <-errc
}

func ts(s string) int64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UnixNano()
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"log.csv", FormatCSV, false},
		{"/data/Log.XES", FormatXES, false},
		{"book.xlsx", FormatXLSX, false},
		{"events.parquet", FormatParquet, false},
		{"notes.txt", FormatUnknown, true},
		{"noext", FormatUnknown, true},
	}

	for _, tt := range tests {
		got, err := DetectFormat(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("DetectFormat(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("DetectFormat(%q) error %v does not wrap ErrUnsupportedFormat", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("DetectFormat(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestNewParser_Unsupported(t *testing.T) {
	if _, err := NewParser(FormatUnknown, DefaultConfig()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in     string
		layout string
		serial bool
		want   int64
	}{
		{"2024-03-01T10:00:00Z", "", false, ts("2024-03-01T10:00:00Z")},
		{"2024-03-01T10:00:00.250+01:00", "", false, ts("2024-03-01T09:00:00.25Z")},
		{"2024-03-01 10:00:00", "", false, ts("2024-03-01T10:00:00Z")},
		{"01.03.2024 10:00", "", false, ts("2024-03-01T10:00:00Z")},
		{"1709287200", "", false, ts("2024-03-01T10:00:00Z")},
		{"45352.5", "", true, ts("2024-03-01T12:00:00Z")},
		{"10:00 01/03/2024", "15:04 02/01/2006", false, ts("2024-03-01T10:00:00Z")},
	}

	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in, tt.layout, tt.serial)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, time.Unix(0, got).UTC(), time.Unix(0, tt.want).UTC())
		}
	}

	for _, bad := range []string{"", "yesterday", "2024-13-45"} {
		if _, err := ParseTimestamp(bad, "", false); !errors.Is(err, ErrInvalidTimestamp) {
			t.Errorf("ParseTimestamp(%q) err = %v, want ErrInvalidTimestamp", bad, err)
		}
	}
}

func TestFieldScanner(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "", "c"}},
		{"a,b,", []string{"a", "b", ""}},
		{`"x,y",z`, []string{"x,y", "z"}},
		{`"say ""hi""",1`, []string{`say "hi"`, "1"}},
		{`"open,1`, []string{"open,1"}},
	}

	s := NewFieldScanner(',')
	for _, tt := range tests {
		fields := s.Scan([]byte(tt.line))
		got := make([]string, len(fields))
		for i, f := range fields {
			got[i] = string(f)
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("Scan(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
