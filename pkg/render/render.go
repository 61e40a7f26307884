// Package render turns a discovered control-flow graph into Graphviz DOT,
// JSON, or images drawn by the Graphviz dot binary.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/logflow/alphaflow/pkg/discovery"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

// Format is an output format.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatSVG  Format = "svg"
	FormatPNG  Format = "png"
)

// ParseFormat parses a format name. The empty string means DOT.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dot", "gv":
		return FormatDOT, nil
	case "json":
		return FormatJSON, nil
	case "svg":
		return FormatSVG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", lferrors.Newf(lferrors.CodeRenderFailed, "unknown output format %q", s)
	}
}

// ContentType returns the HTTP media type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	default:
		return "text/vnd.graphviz"
	}
}

// Meta carries the numbers a UI needs next to the model.
type Meta struct {
	MaxTraceWeight       int64 `json:"max_trace_weight"`
	MaxActivityFrequency int64 `json:"max_activity_frequency"`
	NodeThreshold        int64 `json:"node_threshold"`
	EdgeThreshold        int64 `json:"edge_threshold"`
}

// Options controls rendering.
type Options struct {
	// Name is the DOT graph name.
	Name string

	// BoundaryLabels prints the start and end names inside their circles.
	BoundaryLabels bool

	// DotBinary is the Graphviz executable used for images.
	DotBinary string
}

// DefaultOptions returns the options used by the CLI and the server.
func DefaultOptions() Options {
	return Options{Name: "process", DotBinary: "dot"}
}

// Render writes g to w in the given format.
func Render(ctx context.Context, w io.Writer, f Format, g *discovery.ControlFlowGraph, meta Meta, opts Options) error {
	switch f {
	case FormatDOT:
		return DOT(w, g, opts)
	case FormatJSON:
		return JSON(w, g, meta)
	case FormatSVG, FormatPNG:
		var src bytes.Buffer
		if err := DOT(&src, g, opts); err != nil {
			return err
		}
		return Image(ctx, w, src.Bytes(), f, opts.DotBinary)
	default:
		return lferrors.Newf(lferrors.CodeRenderFailed, "unknown output format %q", string(f))
	}
}

// document is the JSON shape of a rendered model.
type document struct {
	Meta
	Nodes []discovery.Node `json:"nodes"`
	Arcs  []discovery.Arc  `json:"arcs"`
}

// JSON writes the model and meta as one indented document.
func JSON(w io.Writer, g *discovery.ControlFlowGraph, meta Meta) error {
	doc := document{Meta: meta, Nodes: g.Nodes, Arcs: g.Arcs}
	if doc.Nodes == nil {
		doc.Nodes = []discovery.Node{}
	}
	if doc.Arcs == nil {
		doc.Arcs = []discovery.Arc{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return lferrors.Wrap(err, lferrors.CodeRenderFailed, "failed to encode model")
	}
	return nil
}

// Image pipes DOT source through the Graphviz binary.
func Image(ctx context.Context, w io.Writer, dot []byte, f Format, binary string) error {
	if binary == "" {
		binary = "dot"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return lferrors.Wrap(err, lferrors.CodeRenderFailed, "graphviz not installed").
			WithContext("binary", binary)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-T"+string(f))
	cmd.Stdin = bytes.NewReader(dot)
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return lferrors.Wrap(err, lferrors.CodeRenderFailed, "graphviz failed").
			WithContext("stderr", strings.TrimSpace(stderr.String()))
	}
	return nil
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
