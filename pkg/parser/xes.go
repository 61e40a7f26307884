package parser

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/logflow/alphaflow/internal/model"
	"github.com/logflow/alphaflow/internal/pool"
)

// XES attribute keys
var (
	xesConceptName = []byte("concept:name")
	xesTimestamp   = []byte("time:timestamp")
	xesResource    = []byte("org:resource")
)

// XML element names
var (
	xmlTrace = []byte("trace")
	xmlEvent = []byte("event")
)

var xesAttributeTags = [][]byte{
	[]byte("string"),
	[]byte("date"),
	[]byte("int"),
	[]byte("float"),
	[]byte("boolean"),
	[]byte("id"),
	[]byte("list"),
	[]byte("container"),
}

var xmlEntities = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")

type xesState uint8

const (
	xesOutside xesState = iota
	xesInTrace
	xesInEvent
)

// XESParser streams XES documents tag by tag without building a DOM.
// Only attributes that are direct children of a trace or an event are read;
// nested list and container values are skipped.
type XESParser struct {
	cfg Config
}

// NewXESParser creates a new XES parser.
func NewXESParser(cfg Config) *XESParser {
	return &XESParser{cfg: cfg}
}

// Parse implements the Parser interface. The case ID of every event is the
// concept:name of its enclosing trace.
func (p *XESParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	state := xesOutside
	depth := 0 // attribute nesting below the current trace or event
	sawTrace := false
	var caseID string
	var pending []*model.Event // events seen before the trace name
	var current *model.Event
	var seq int64

	release := func() {
		for _, e := range pending {
			pool.Events.Put(e)
		}
		pending = pending[:0]
		pool.Events.Put(current)
		current = nil
	}

	for {
		select {
		case <-ctx.Done():
			release()
			return ErrContextCanceled
		default:
		}

		chunk, err := reader.ReadBytes('>')
		if err != nil && err != io.EOF {
			release()
			return err
		}

		var tag []byte
		if i := bytes.IndexByte(chunk, '<'); i >= 0 {
			tag = chunk[i:]
		}

		switch {
		case tag == nil:
		case isOpenTag(tag, xmlTrace):
			state = xesInTrace
			sawTrace = true
			depth = 0
			caseID = ""

		case isCloseTag(tag, xmlTrace):
			for _, e := range pending {
				e.CaseID = caseID
				if err := p.send(ctx, out, e); err != nil {
					pending = pending[:0]
					release()
					return err
				}
			}
			pending = pending[:0]
			state = xesOutside

		case state == xesInTrace && depth == 0 && isOpenTag(tag, xmlEvent):
			state = xesInEvent
			current = pool.Events.Get()
			current.Seq = seq
			seq++
			if selfClosing(tag) {
				pool.Events.Put(current)
				current = nil
				state = xesInTrace
			}

		case state == xesInEvent && depth == 0 && isCloseTag(tag, xmlEvent):
			if current.Activity != "" {
				pending = append(pending, current)
			} else {
				pool.Events.Put(current)
			}
			current = nil
			state = xesInTrace

		case state != xesOutside && isAttributeTag(tag):
			if depth == 0 {
				key, value := attrValue(tag, "key=\""), attrValue(tag, "value=\"")
				if state == xesInTrace && bytes.Equal(key, xesConceptName) {
					caseID = xmlEntities.Replace(string(value))
				} else if state == xesInEvent {
					p.setEventAttribute(current, key, value)
				}
			}
			if !selfClosing(tag) {
				depth++
			}

		case state != xesOutside && depth > 0 && bytes.HasPrefix(tag, []byte("</")):
			depth--
		}

		if err == io.EOF {
			break
		}
	}

	release()
	if !sawTrace {
		return ErrInvalidXES
	}
	return nil
}

func (p *XESParser) send(ctx context.Context, out chan<- *model.Event, e *model.Event) error {
	if e.CaseID == "" {
		pool.Events.Put(e)
		return nil
	}
	if err := emit(ctx, out, e); err != nil {
		pool.Events.Put(e)
		return err
	}
	return nil
}

func (p *XESParser) setEventAttribute(e *model.Event, key, value []byte) {
	switch {
	case bytes.Equal(key, xesConceptName):
		e.Activity = xmlEntities.Replace(string(value))
	case bytes.Equal(key, xesTimestamp):
		if ts, err := ParseTimestamp(string(value), xesTimeLayout, false); err == nil {
			e.Timestamp = ts
		}
	case bytes.Equal(key, xesResource):
		e.Resource = xmlEntities.Replace(string(value))
	}
}

// xesTimeLayout is the layout the XES standard recommends.
const xesTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// isOpenTag checks if tag opens the given element.
func isOpenTag(tag, element []byte) bool {
	if len(tag) < len(element)+2 || tag[0] != '<' || !bytes.HasPrefix(tag[1:], element) {
		return false
	}
	next := tag[1+len(element)]
	return next == '>' || next == ' ' || next == '\t' || next == '\n' || next == '\r' || next == '/'
}

// isCloseTag checks if tag closes the given element.
func isCloseTag(tag, element []byte) bool {
	if len(tag) < len(element)+3 || tag[0] != '<' || tag[1] != '/' || !bytes.HasPrefix(tag[2:], element) {
		return false
	}
	next := tag[2+len(element)]
	return next == '>' || next == ' ' || next == '\t' || next == '\n' || next == '\r'
}

func selfClosing(tag []byte) bool {
	return bytes.HasSuffix(tag, []byte("/>"))
}

// isAttributeTag checks if tag opens an XES attribute element.
func isAttributeTag(tag []byte) bool {
	for _, name := range xesAttributeTags {
		if isOpenTag(tag, name) {
			return true
		}
	}
	return false
}

// attrValue extracts an XML attribute value after prefix.
func attrValue(tag []byte, prefix string) []byte {
	idx := bytes.Index(tag, []byte(prefix))
	if idx < 0 {
		return nil
	}
	start := idx + len(prefix)
	end := bytes.IndexByte(tag[start:], '"')
	if end < 0 {
		return nil
	}
	return tag[start : start+end]
}
