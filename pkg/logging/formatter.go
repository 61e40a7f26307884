package logging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Formatter writes one human-readable line per entry:
//
//	2024-01-02 15:04:05.000 INFO  discovered model run=1f2e nodes=8
//
// Fields are sorted by key so lines are stable across runs.
type Formatter struct {
	Timestamp bool
	Colors    bool
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	if f.Timestamp {
		f.paint(&b, 36, entry.Time.Format("2006-01-02 15:04:05.000"))
		b.WriteByte(' ')
	}

	level := fmt.Sprintf("%-5s", strings.ToUpper(entry.Level.String()))
	f.paint(&b, levelColor(entry.Level), level)
	b.WriteByte(' ')

	if entry.HasCaller() {
		f.paint(&b, 33, fmt.Sprintf("[%s:%d]", entry.Caller.File, entry.Caller.Line))
		b.WriteByte(' ')
	}

	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		f.paint(&b, 34, k)
		b.WriteByte('=')
		b.WriteString(formatValue(entry.Data[k]))
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func (f *Formatter) paint(b *strings.Builder, color int, s string) {
	if !f.Colors {
		b.WriteString(s)
		return
	}
	fmt.Fprintf(b, "\033[%dm%s\033[0m", color, s)
}

func levelColor(level logrus.Level) int {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return 37
	case logrus.InfoLevel:
		return 32
	case logrus.WarnLevel:
		return 33
	case logrus.ErrorLevel:
		return 31
	default:
		return 35
	}
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t\"=") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case error:
		return fmt.Sprintf("%q", val.Error())
	default:
		return fmt.Sprint(val)
	}
}
