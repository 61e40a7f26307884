// Package pool recycles event records between parsers and consumers.
package pool

import (
	"sync"

	"github.com/logflow/alphaflow/internal/model"
)

// EventPool manages reusable Event structs. Consumers that copy what they
// need out of an event return it with Put.
type EventPool struct {
	pool sync.Pool
}

// NewEventPool creates a new event pool.
func NewEventPool() *EventPool {
	ep := &EventPool{}
	ep.pool.New = func() any {
		return &model.Event{}
	}
	return ep
}

// Get retrieves an event from the pool.
func (p *EventPool) Get() *model.Event {
	return p.pool.Get().(*model.Event)
}

// Put returns an event to the pool.
func (p *EventPool) Put(e *model.Event) {
	if e == nil {
		return
	}
	e.Reset()
	p.pool.Put(e)
}

// Events is the process-wide pool shared by the parsers.
var Events = NewEventPool()
