package discovery

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Thresholds are strict-less-than cutoffs for graph reduction. Zero values
// disable the corresponding pass.
type Thresholds struct {
	Node int64 `json:"node_threshold" yaml:"node_threshold"`
	Edge int64 `json:"edge_threshold" yaml:"edge_threshold"`
}

// ReduceStats reports what a reduction did.
type ReduceStats struct {
	NodesRemoved  int `json:"nodes_removed"`
	NodesRejected int `json:"nodes_rejected"`
	EdgesRemoved  int `json:"edges_removed"`
	EdgesRejected int `json:"edges_rejected"`
	NodesCleaned  int `json:"nodes_cleaned"`
}

// Reducer prunes rare activities and edges without disconnecting the end
// node from the start node.
type Reducer struct {
	log logrus.FieldLogger
}

// NewReducer creates a reducer. A nil logger discards output.
func NewReducer(log logrus.FieldLogger) *Reducer {
	if log == nil {
		log = discardLogger()
	}
	return &Reducer{log: log}
}

// Reduce is Reducer.Reduce without logging.
func Reduce(g *SuccessionGraph, t Thresholds) *SuccessionGraph {
	out, _ := NewReducer(nil).Reduce(g, t)
	return out
}

// Reduce returns a new graph with:
//
//  1. every non-boundary activity with frequency < t.Node removed, rarest
//     first, as long as End stays reachable from Start;
//  2. every remaining edge with weight < t.Edge removed under the same test;
//  3. activities left without a predecessor or without a successor removed
//     until nothing changes.
//
// Deletions that would disconnect the graph are skipped, not reported as
// errors. Each check sees the graph as reduced so far.
func (r *Reducer) Reduce(g *SuccessionGraph, t Thresholds) (*SuccessionGraph, ReduceStats) {
	a := newArena(g)
	var stats ReduceStats

	for i := range a.names {
		n := uint32(i)
		if a.isBoundary(n) || g.Frequency(a.names[i]) >= t.Node {
			continue
		}
		if a.reachable(i, noExclusion) {
			a.deadNodes.Add(n)
			stats.NodesRemoved++
			continue
		}
		stats.NodesRejected++
		r.log.WithFields(logrus.Fields{
			"activity":  a.names[i],
			"frequency": g.Frequency(a.names[i]),
		}).Debug("kept activity below node threshold to preserve reachability")
	}

	for id, e := range a.edges {
		if e.weight >= t.Edge || !a.edgeAlive(uint32(id)) {
			continue
		}
		if a.reachable(noExclusion, id) {
			a.deadEdges.Add(uint32(id))
			stats.EdgesRemoved++
			continue
		}
		stats.EdgesRejected++
		r.log.WithFields(logrus.Fields{
			"from":   a.names[e.from],
			"to":     a.names[e.to],
			"weight": e.weight,
		}).Debug("kept edge below edge threshold to preserve reachability")
	}

	stats.NodesCleaned = removeDangling(a)

	r.log.WithFields(logrus.Fields{
		"nodes_removed":  stats.NodesRemoved,
		"edges_removed":  stats.EdgesRemoved,
		"nodes_cleaned":  stats.NodesCleaned,
		"nodes_rejected": stats.NodesRejected,
		"edges_rejected": stats.EdgesRejected,
	}).Debug("graph reduced")

	return a.graph(), stats
}

// removeDangling deletes non-boundary nodes with no live predecessor or no
// live successor, rescanning after every removal until a full scan removes
// nothing. It returns the number of nodes removed.
func removeDangling(a *arena) int {
	removed := 0
	for changed := true; changed; {
		changed = false
		for i := range a.names {
			n := uint32(i)
			if a.isBoundary(n) || !a.nodeAlive(n) {
				continue
			}
			in, out := a.liveDegree(n)
			if in == 0 || out == 0 {
				a.deadNodes.Add(n)
				removed++
				changed = true
				break
			}
		}
	}
	return removed
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}
