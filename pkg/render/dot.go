package render

import (
	"bufio"
	"fmt"
	"io"

	"github.com/logflow/alphaflow/pkg/discovery"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

// gateway diamonds are fixed-size so the label glyph fills them
const gatewayAttrs = `shape=diamond, width=0.7, height=0.7, fixedsize=true, fontsize=40`

// DOT writes g as a left-to-right Graphviz digraph: activities as rounded
// records, boundary events as circles (the end one with a thicker border)
// and gateways as diamonds labelled "+" or "×".
func DOT(w io.Writer, g *discovery.ControlFlowGraph, opts Options) error {
	name := opts.Name
	if name == "" {
		name = "process"
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", quote(name))
	bw.WriteString("  graph [rankdir=LR, splines=ortho, nodesep=0.8];\n")
	bw.WriteString("  node [shape=Mrecord];\n")
	bw.WriteString("  edge [penwidth=2];\n")
	bw.WriteString("\n")

	for _, n := range g.Nodes {
		fmt.Fprintf(bw, "  %s%s;\n", quote(n.ID), nodeAttrs(n, opts))
	}
	if len(g.Arcs) > 0 {
		bw.WriteString("\n")
	}
	for _, a := range g.Arcs {
		fmt.Fprintf(bw, "  %s -> %s;\n", quote(a.From), quote(a.To))
	}
	bw.WriteString("}\n")

	if err := bw.Flush(); err != nil {
		return lferrors.Wrap(err, lferrors.CodeRenderFailed, "failed to write dot")
	}
	return nil
}

func nodeAttrs(n discovery.Node, opts Options) string {
	switch {
	case n.IsGateway():
		return fmt.Sprintf(" [%s, label=%s]", gatewayAttrs, quote(n.Label))
	case n.Boundary != discovery.BoundaryNone:
		label := ""
		if opts.BoundaryLabels {
			label = n.Label
		}
		if n.Boundary == discovery.BoundaryEnd {
			return fmt.Sprintf(" [shape=circle, label=%s, penwidth=3]", quote(label))
		}
		return fmt.Sprintf(" [shape=circle, label=%s]", quote(label))
	case n.Label != "" && n.Label != n.ID:
		return fmt.Sprintf(" [label=%s]", quote(n.Label))
	default:
		return ""
	}
}
