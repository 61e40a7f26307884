package parser

// scanState is the state of the field scanner.
type scanState uint8

const (
	stateFieldStart scanState = iota
	stateUnquoted
	stateQuoted
	stateQuoteInQuoted
)

// FieldScanner splits a CSV record with a small state machine. It handles
// quoted fields with embedded delimiters and doubled quotes. Unquoted fields
// point into the input line; quoted fields with escapes are copied.
type FieldScanner struct {
	delimiter byte
	fields    [][]byte
}

// NewFieldScanner creates a scanner for the given delimiter.
func NewFieldScanner(delimiter byte) *FieldScanner {
	return &FieldScanner{delimiter: delimiter, fields: make([][]byte, 0, 16)}
}

// Scan splits line into fields. The returned slice is reused by the next
// call.
func (s *FieldScanner) Scan(line []byte) [][]byte {
	s.fields = s.fields[:0]
	if len(line) == 0 {
		return s.fields
	}

	state := stateFieldStart
	start, end := 0, 0
	escaped := false

	for i := 0; i <= len(line); i++ {
		atEnd := i == len(line)
		var c byte
		if !atEnd {
			c = line[i]
		}

		switch state {
		case stateFieldStart:
			switch {
			case atEnd || c == s.delimiter:
				s.fields = append(s.fields, nil)
			case c == '"':
				start = i + 1
				escaped = false
				state = stateQuoted
			default:
				start = i
				state = stateUnquoted
			}

		case stateUnquoted:
			if atEnd || c == s.delimiter {
				s.fields = append(s.fields, line[start:i])
				state = stateFieldStart
			}

		case stateQuoted:
			switch {
			case atEnd:
				// unterminated quote: keep what we have
				s.fields = append(s.fields, line[start:i])
			case c == '"':
				end = i
				state = stateQuoteInQuoted
			}

		case stateQuoteInQuoted:
			switch {
			case atEnd || c == s.delimiter:
				field := line[start:end]
				if escaped {
					field = unescapeQuotes(field)
				}
				s.fields = append(s.fields, field)
				state = stateFieldStart
			case c == '"':
				escaped = true
				state = stateQuoted
			default:
				// stray character after a closing quote
				state = stateQuoted
			}
		}
	}

	return s.fields
}

func unescapeQuotes(field []byte) []byte {
	out := make([]byte, 0, len(field))
	for i := 0; i < len(field); i++ {
		out = append(out, field[i])
		if field[i] == '"' && i+1 < len(field) && field[i+1] == '"' {
			i++
		}
	}
	return out
}
