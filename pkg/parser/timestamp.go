package parser

import (
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order after the configured layout.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"2006-01-02",
}

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseTimestamp converts s to nanoseconds since the Unix epoch. It accepts
// the configured layout, common ISO-8601 and European/US layouts, Unix
// seconds and spreadsheet serial dates (when serial is true).
func ParseTimestamp(s, layout string, serial bool) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidTimestamp
	}

	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixNano(), nil
		}
	}

	// Fast reject for layouts that all start with a digit
	if c := s[0]; c >= '0' && c <= '9' {
		for _, l := range timestampLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t.UnixNano(), nil
			}
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidTimestamp
	}
	if serial {
		return excelEpoch.Add(time.Duration(f * float64(24*time.Hour))).UnixNano(), nil
	}
	return int64(f * float64(time.Second)), nil
}
