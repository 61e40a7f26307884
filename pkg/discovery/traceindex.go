package discovery

import (
	"sort"
	"strings"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

// TraceIndex holds the unique traces of a log and its activity frequencies.
type TraceIndex struct {
	// Traces are the unique activity sequences, most frequent first.
	// Ties keep first-seen order.
	Traces []WeightedTrace

	// Frequency is the case-weighted occurrence count per activity.
	Frequency ActivityFrequency

	// Cases is the total case count over all traces.
	Cases int64
}

// traceKeySep cannot appear in a sane activity label.
const traceKeySep = "\x1f"

// NewTraceIndex groups identical activity sequences, summing their counts,
// and accumulates per-activity frequencies. Empty sequences and zero-count
// traces carry no information and are skipped; a negative count is an error.
func NewTraceIndex(traces []WeightedTrace) (*TraceIndex, error) {
	idx := &TraceIndex{Frequency: make(ActivityFrequency)}
	position := make(map[string]int)

	for i, t := range traces {
		if t.Count < 0 {
			return nil, lferrors.New(lferrors.CodeInvalidTrace, "trace count must be non-negative").
				WithContext("trace", i).
				WithContext("count", t.Count)
		}
		if t.Count == 0 || len(t.Activities) == 0 {
			continue
		}

		for _, a := range t.Activities {
			idx.Frequency[a] += t.Count
		}
		idx.Cases += t.Count

		key := strings.Join(t.Activities, traceKeySep)
		if pos, ok := position[key]; ok {
			idx.Traces[pos].Count += t.Count
			continue
		}
		position[key] = len(idx.Traces)
		activities := make([]Activity, len(t.Activities))
		copy(activities, t.Activities)
		idx.Traces = append(idx.Traces, WeightedTrace{Activities: activities, Count: t.Count})
	}

	if len(idx.Traces) == 0 {
		return nil, lferrors.EmptyLog()
	}

	sort.SliceStable(idx.Traces, func(i, j int) bool {
		return idx.Traces[i].Count > idx.Traces[j].Count
	})
	return idx, nil
}

// MaxTraceCount returns the count of the most frequent unique trace.
func (idx *TraceIndex) MaxTraceCount() int64 {
	if len(idx.Traces) == 0 {
		return 0
	}
	return idx.Traces[0].Count
}

// Activities returns every real activity label, sorted.
func (idx *TraceIndex) Activities() []Activity {
	out := make([]Activity, 0, len(idx.Frequency))
	for a := range idx.Frequency {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
