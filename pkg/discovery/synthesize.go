package discovery

import (
	"fmt"
	"sort"
)

// NodeKind tags a control-flow node.
type NodeKind uint8

const (
	KindEvent NodeKind = iota
	KindAndGateway
	KindXorGateway
)

// String returns the kind name.
func (k NodeKind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindAndGateway:
		return "and"
	case KindXorGateway:
		return "xor"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Direction distinguishes split gateways from join gateways.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionSplit
	DirectionJoin
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionSplit:
		return "split"
	case DirectionJoin:
		return "join"
	default:
		return "none"
	}
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Boundary marks the synthetic start and end events.
type Boundary uint8

const (
	BoundaryNone Boundary = iota
	BoundaryStart
	BoundaryEnd
)

// String returns the boundary name.
func (b Boundary) String() string {
	switch b {
	case BoundaryStart:
		return "start"
	case BoundaryEnd:
		return "end"
	default:
		return "none"
	}
}

// MarshalText encodes the boundary by name.
func (b Boundary) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Node is a control-flow node. Gateways carry the activities they connect:
// a split has one source and several targets, a join several sources and
// one target.
type Node struct {
	ID        string      `json:"id"`
	Kind      NodeKind    `json:"kind"`
	Direction Direction   `json:"direction"`
	Boundary  Boundary    `json:"boundary"`
	Label     string      `json:"label"`
	Sources   ActivitySet `json:"sources,omitempty"`
	Targets   ActivitySet `json:"targets,omitempty"`
}

// IsGateway reports whether the node is an AND or XOR gateway.
func (n Node) IsGateway() bool {
	return n.Kind == KindAndGateway || n.Kind == KindXorGateway
}

// Arc is a plain directed connection between two nodes.
type Arc struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ControlFlowGraph is the synthesized process model.
type ControlFlowGraph struct {
	Nodes []Node `json:"nodes"`
	Arcs  []Arc  `json:"arcs"`

	index map[string]int
	arcs  map[Arc]struct{}
}

func newControlFlowGraph() *ControlFlowGraph {
	return &ControlFlowGraph{
		index: make(map[string]int),
		arcs:  make(map[Arc]struct{}),
	}
}

// Node returns the node with the given ID.
func (c *ControlFlowGraph) Node(id string) (Node, bool) {
	i, ok := c.index[id]
	if !ok {
		return Node{}, false
	}
	return c.Nodes[i], true
}

// HasArc reports whether from->to is an arc.
func (c *ControlFlowGraph) HasArc(from, to string) bool {
	_, ok := c.arcs[Arc{From: from, To: to}]
	return ok
}

// Successors returns the IDs of the nodes reached by arcs from id, sorted.
func (c *ControlFlowGraph) Successors(id string) []string {
	var out []string
	for _, a := range c.Arcs {
		if a.From == id {
			out = append(out, a.To)
		}
	}
	sort.Strings(out)
	return out
}

// Predecessors returns the IDs of the nodes with arcs into id, sorted.
func (c *ControlFlowGraph) Predecessors(id string) []string {
	var out []string
	for _, a := range c.Arcs {
		if a.To == id {
			out = append(out, a.From)
		}
	}
	sort.Strings(out)
	return out
}

// Gateways returns every gateway node in insertion order.
func (c *ControlFlowGraph) Gateways() []Node {
	var out []Node
	for _, n := range c.Nodes {
		if n.IsGateway() {
			out = append(out, n)
		}
	}
	return out
}

func (c *ControlFlowGraph) addNode(n Node) {
	if _, ok := c.index[n.ID]; ok {
		return
	}
	c.index[n.ID] = len(c.Nodes)
	c.Nodes = append(c.Nodes, n)
}

func (c *ControlFlowGraph) addArc(from, to string) {
	a := Arc{From: from, To: to}
	if _, ok := c.arcs[a]; ok {
		return
	}
	c.arcs[a] = struct{}{}
	c.Arcs = append(c.Arcs, a)
}

func (c *ControlFlowGraph) addSplit(kind NodeKind, source Activity, targets ActivitySet) {
	id := fmt.Sprintf("%ss %s->%s", gatewayPrefix(kind), source, targets)
	c.addNode(Node{
		ID:        id,
		Kind:      kind,
		Direction: DirectionSplit,
		Label:     gatewayLabel(kind),
		Sources:   ActivitySet{source},
		Targets:   targets,
	})
	c.addArc(source, id)
	for _, t := range targets {
		c.addArc(id, t)
	}
}

func (c *ControlFlowGraph) addJoin(kind NodeKind, sources ActivitySet, target Activity) {
	id := fmt.Sprintf("%sm %s->%s", gatewayPrefix(kind), sources, target)
	c.addNode(Node{
		ID:        id,
		Kind:      kind,
		Direction: DirectionJoin,
		Label:     gatewayLabel(kind),
		Sources:   sources,
		Targets:   ActivitySet{target},
	})
	for _, s := range sources {
		c.addArc(s, id)
	}
	c.addArc(id, target)
}

func gatewayPrefix(kind NodeKind) string {
	if kind == KindAndGateway {
		return "AND"
	}
	return "XOR"
}

func gatewayLabel(kind NodeKind) string {
	if kind == KindAndGateway {
		return "+"
	}
	return "×"
}

// SynthesisInput is everything the synthesizer needs.
type SynthesisInput struct {
	Relations *RelationSet
	StartSet  ActivitySet
	EndSet    ActivitySet
	StartName Activity
	EndName   Activity
}

// Synthesize converts mined relations into a control-flow graph.
//
// Explicit XOR groups become XOR gateways first. Remaining causal fan-outs
// and fan-ins with more than one member become AND gateways when every pair
// of members is parallel and XOR gateways otherwise. A single causal
// successor becomes a plain arc unless a join gateway already carries it.
//
// When the relations were mined from a graph that contains the boundary
// nodes, their connections follow the rules above. Otherwise Start and End
// are wired to StartSet and EndSet with the same single-arc-or-gateway rule.
func Synthesize(in SynthesisInput) *ControlFlowGraph {
	rel := in.Relations
	c := newControlFlowGraph()

	startInGraph := rel.Nodes.Contains(in.StartName)
	endInGraph := rel.Nodes.Contains(in.EndName)

	c.addNode(Node{ID: in.StartName, Kind: KindEvent, Boundary: BoundaryStart, Label: in.StartName})
	for _, a := range rel.Nodes {
		if a == in.StartName || a == in.EndName {
			continue
		}
		c.addNode(Node{ID: a, Kind: KindEvent, Label: a})
	}
	c.addNode(Node{ID: in.EndName, Kind: KindEvent, Boundary: BoundaryEnd, Label: in.EndName})

	if !startInGraph {
		switch {
		case len(in.StartSet) == 1:
			c.addArc(in.StartName, in.StartSet[0])
		case len(in.StartSet) > 1:
			c.addSplit(fanKind(in.StartSet, rel.Parallelism), in.StartName, in.StartSet)
		}
	}

	for _, p := range sortedKeys(rel.XorSplit) {
		c.addSplit(KindXorGateway, p, rel.XorSplit[p])
	}

	for _, a := range sortedKeys(rel.Causality) {
		succ := rel.Causality[a]
		switch {
		case len(succ) > 1:
			c.addSplit(fanKind(succ, rel.Parallelism), a, succ)
		case len(succ) == 1:
			if _, joined := rel.InvCausality[succ[0]]; !joined {
				c.addArc(a, succ[0])
			}
		}
	}

	for _, s := range sortedKeys(rel.XorJoin) {
		c.addJoin(KindXorGateway, rel.XorJoin[s], s)
	}

	for _, b := range sortedKeys(rel.InvCausality) {
		preds := rel.InvCausality[b]
		switch {
		case len(preds) > 1:
			c.addJoin(fanKind(preds, rel.Parallelism), preds, b)
		case len(preds) == 1:
			c.addArc(preds[0], b)
		}
	}

	if !endInGraph {
		switch {
		case len(in.EndSet) == 1:
			c.addArc(in.EndSet[0], in.EndName)
		case len(in.EndSet) > 1:
			c.addJoin(fanKind(in.EndSet, rel.Parallelism), in.EndSet, in.EndName)
		}
	}

	return c
}

func fanKind(members ActivitySet, parallel PairSet) NodeKind {
	if members.AllPairsIn(parallel) {
		return KindAndGateway
	}
	return KindXorGateway
}
