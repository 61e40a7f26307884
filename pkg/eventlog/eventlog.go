// Package eventlog turns a stream of events into weighted traces.
package eventlog

import (
	"sort"

	"github.com/logflow/alphaflow/internal/model"
	"github.com/logflow/alphaflow/pkg/discovery"
)

type entry struct {
	activity  string
	timestamp int64
	seq       int64
}

// Builder groups events by case. It is not safe for concurrent use.
type Builder struct {
	cases  map[string][]entry
	order  []string // case IDs in first-seen order
	events int64
	seq    int64
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{cases: make(map[string][]entry)}
}

// Add records one event. Events without a case or activity are ignored.
// The builder copies what it needs; e may be reused afterwards.
func (b *Builder) Add(e *model.Event) {
	if !e.Valid() {
		return
	}
	if _, ok := b.cases[e.CaseID]; !ok {
		b.order = append(b.order, e.CaseID)
	}
	b.cases[e.CaseID] = append(b.cases[e.CaseID], entry{
		activity:  e.Activity,
		timestamp: e.Timestamp,
		seq:       b.seq,
	})
	b.seq++
	b.events++
}

// Merge appends every case of other. Cases present in both are joined and
// re-sorted by timestamp when traces are built.
func (b *Builder) Merge(other *Builder) {
	for _, id := range other.order {
		if _, ok := b.cases[id]; !ok {
			b.order = append(b.order, id)
		}
		for _, en := range other.cases[id] {
			en.seq = b.seq
			b.seq++
			b.cases[id] = append(b.cases[id], en)
		}
	}
	b.events += other.events
}

// Events returns the number of accepted events.
func (b *Builder) Events() int64 { return b.events }

// Cases returns the number of distinct cases.
func (b *Builder) Cases() int { return len(b.order) }

// Traces returns one weighted trace per case, each ordered by timestamp with
// ties kept in arrival order. Identical sequences are not merged here; the
// discovery trace index collapses them.
func (b *Builder) Traces() []discovery.WeightedTrace {
	out := make([]discovery.WeightedTrace, 0, len(b.order))
	for _, id := range b.order {
		evs := b.cases[id]
		sort.SliceStable(evs, func(i, j int) bool {
			if evs[i].timestamp != evs[j].timestamp {
				return evs[i].timestamp < evs[j].timestamp
			}
			return evs[i].seq < evs[j].seq
		})

		activities := make([]discovery.Activity, len(evs))
		for i, en := range evs {
			activities[i] = en.activity
		}
		out = append(out, discovery.WeightedTrace{Activities: activities, Count: 1})
	}
	return out
}

// Variants returns the traces with identical sequences collapsed, most
// frequent first.
func (b *Builder) Variants() []discovery.WeightedTrace {
	idx, err := discovery.NewTraceIndex(b.Traces())
	if err != nil {
		return nil
	}
	return idx.Traces
}
