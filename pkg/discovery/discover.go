package discovery

import (
	"github.com/sirupsen/logrus"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

// Options configures a discovery run.
type Options struct {
	Thresholds Thresholds
	StartName  Activity
	EndName    Activity
}

// DefaultOptions returns options with no reduction and the default boundary
// names.
func DefaultOptions() Options {
	return Options{
		StartName: DefaultStartName,
		EndName:   DefaultEndName,
	}
}

// Validate checks thresholds and boundary names.
func (o Options) Validate() error {
	if o.Thresholds.Node < 0 {
		return lferrors.InvalidThreshold("node", o.Thresholds.Node)
	}
	if o.Thresholds.Edge < 0 {
		return lferrors.InvalidThreshold("edge", o.Thresholds.Edge)
	}
	if o.StartName == "" || o.EndName == "" {
		return lferrors.New(lferrors.CodeNameCollision, "start and end names must not be empty")
	}
	return nil
}

// Result holds every intermediate product of a run.
type Result struct {
	Index     *TraceIndex
	Graph     *SuccessionGraph
	Reduced   *SuccessionGraph
	Stats     ReduceStats
	Relations *RelationSet
	Model     *ControlFlowGraph

	// MaxTraceWeight is the largest direct-succession weight between real
	// activities. MaxActivityFrequency is the largest real activity
	// frequency. Both bound threshold controls in a UI.
	MaxTraceWeight       int64
	MaxActivityFrequency int64
}

// Engine runs the discovery pipeline.
type Engine struct {
	log     logrus.FieldLogger
	reducer *Reducer
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(log logrus.FieldLogger) *Engine {
	if log == nil {
		log = discardLogger()
	}
	return &Engine{log: log, reducer: NewReducer(log)}
}

// Run executes the pipeline: index traces, build the succession graph,
// reduce it, mine relations on the reduced graph and synthesize the model.
func (e *Engine) Run(traces []WeightedTrace, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	idx, err := NewTraceIndex(traces)
	if err != nil {
		return nil, err
	}

	g, err := BuildSuccessionGraph(idx, opts.StartName, opts.EndName)
	if err != nil {
		return nil, err
	}
	return e.runGraph(idx, g, opts)
}

// runGraph reduces g, mines its relations and synthesizes the model. g must
// connect start to end; graphs built from traces always do, since every
// trace is funnelled from Start and into End.
func (e *Engine) runGraph(idx *TraceIndex, g *SuccessionGraph, opts Options) (*Result, error) {
	if !g.Reachable() {
		return nil, lferrors.DisconnectedLog(opts.StartName, opts.EndName)
	}
	e.log.WithFields(logrus.Fields{
		"unique_traces": len(idx.Traces),
		"cases":         idx.Cases,
		"activities":    len(idx.Frequency),
		"edges":         g.EdgeCount(),
	}).Debug("succession graph built")

	reduced, stats := e.reducer.Reduce(g, opts.Thresholds)

	rel := MineRelations(reduced)
	e.log.WithFields(logrus.Fields{
		"causal_sources": len(rel.Causality),
		"parallel_pairs": len(rel.Parallelism),
		"xor_splits":     len(rel.XorSplit),
		"xor_joins":      len(rel.XorJoin),
	}).Debug("relations mined")

	model := Synthesize(SynthesisInput{
		Relations: rel,
		StartSet:  reduced.StartSet(),
		EndSet:    reduced.EndSet(),
		StartName: opts.StartName,
		EndName:   opts.EndName,
	})

	return &Result{
		Index:                idx,
		Graph:                g,
		Reduced:              reduced,
		Stats:                stats,
		Relations:            rel,
		Model:                model,
		MaxTraceWeight:       g.MaxEdgeWeight(),
		MaxActivityFrequency: g.MaxActivityFrequency(),
	}, nil
}

// Discover is the one-call entry point. It returns the model together with
// the largest real edge weight and the largest real activity frequency.
func Discover(traces []WeightedTrace, nodeThreshold, edgeThreshold int64, startName, endName string) (*ControlFlowGraph, int64, int64, error) {
	res, err := NewEngine(nil).Run(traces, Options{
		Thresholds: Thresholds{Node: nodeThreshold, Edge: edgeThreshold},
		StartName:  startName,
		EndName:    endName,
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return res.Model, res.MaxTraceWeight, res.MaxActivityFrequency, nil
}
