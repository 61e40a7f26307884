// Package tui prints discovery results and load progress for the CLI.
// Plain streaming output, no full-screen interface.
package tui

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/alphaflow/internal/pipe"
	"github.com/logflow/alphaflow/pkg/discovery"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// PrintHeader prints the program banner.
func PrintHeader(w io.Writer, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  ALPHAFLOW")+mutedStyle.Render(" v"+version))
	fmt.Fprintln(w, mutedStyle.Render("  Alpha-algorithm process discovery"))
	fmt.Fprintln(w)
}

// Report summarizes one discovery run.
type Report struct {
	Inputs []string
	Output string

	Events     int64
	Activities int
	Gateways   int
	Arcs       int

	NodeThreshold        int64
	EdgeThreshold        int64
	MaxTraceWeight       int64
	MaxActivityFrequency int64

	Cached   bool
	Duration time.Duration
}

// PrintReport prints a finished discovery.
func PrintReport(w io.Writer, r *Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, successStyle.Render("  ✓ MODEL DISCOVERED"))
	fmt.Fprintln(w)

	names := make([]string, len(r.Inputs))
	for i, in := range r.Inputs {
		names[i] = filepath.Base(in)
	}
	if len(names) > 0 {
		field(w, "Input:", strings.Join(names, ", "))
	}
	if r.Events > 0 {
		field(w, "Events:", formatNumber(r.Events))
	}
	field(w, "Model:", fmt.Sprintf("%d activities, %d gateways, %d arcs", r.Activities, r.Gateways, r.Arcs))

	fmt.Fprintln(w, mutedStyle.Render(rule))
	fmt.Fprintf(w, "  %s %s %s\n",
		mutedStyle.Render("Node threshold:"),
		titleStyle.Render(fmt.Sprintf("%d", r.NodeThreshold)),
		mutedStyle.Render(fmt.Sprintf("(max frequency %d)", r.MaxActivityFrequency)))
	fmt.Fprintf(w, "  %s %s %s\n",
		mutedStyle.Render("Edge threshold:"),
		titleStyle.Render(fmt.Sprintf("%d", r.EdgeThreshold)),
		mutedStyle.Render(fmt.Sprintf("(max weight %d)", r.MaxTraceWeight)))
	fmt.Fprintln(w, mutedStyle.Render(rule))

	if r.Output != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Output:"), codeStyle.Render(r.Output))
	}
	if r.Duration > 0 {
		took := formatDuration(r.Duration)
		if r.Cached {
			took += " " + mutedStyle.Render("(cached)")
		} else if r.Events > 0 {
			rate := float64(r.Events) / r.Duration.Seconds()
			took += " " + mutedStyle.Render(fmt.Sprintf("(%s events/sec)", formatNumber(int64(rate))))
		}
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(took))
	}
	fmt.Fprintln(w)
}

// PrintError prints a failure line.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, accentStyle.Render("  ✗ "+err.Error()))
}

// PrintRelations prints the succession graph a model was mined from and the
// relations found in it.
func PrintRelations(w io.Writer, g *discovery.SuccessionGraph, rel *discovery.RelationSet) {
	fmt.Fprintln(w, accentStyle.Render("▸ DIRECT SUCCESSION"))
	for _, e := range g.Edges() {
		fmt.Fprintf(w, "  %s → %s %s\n", e.From, e.To, mutedStyle.Render(fmt.Sprintf("×%d", e.Weight)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ CAUSALITY"))
	printGroups(w, rel.Causality, "%s → %s")
	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ PARALLEL"))
	for _, p := range rel.ParallelPairs() {
		fmt.Fprintf(w, "  %s ∥ %s\n", p.A, p.B)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ EXCLUSIVE CHOICE"))
	printGroups(w, rel.XorSplit, "%s → × %s")
	printGroups(w, rel.XorJoin, "× %[2]s → %[1]s")
	fmt.Fprintln(w)
}

func printGroups(w io.Writer, groups map[discovery.Activity]discovery.ActivitySet, format string) {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  "+format+"\n", k, "["+strings.Join(groups[k], " ")+"]")
	}
}

func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(label), titleStyle.Render(value))
}

// LoadProgress draws a byte progress bar across the files of one load.
type LoadProgress struct {
	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	files map[string]int64
}

// NewLoadProgress creates a bar for total input bytes. total <= 0 draws a
// spinner instead.
func NewLoadProgress(w io.Writer, total int64, description string) *LoadProgress {
	if total <= 0 {
		total = -1
	}
	return &LoadProgress{
		bar: progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "",
				BarEnd:        "",
			}),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
		files: make(map[string]int64),
	}
}

// Update records pipeline statistics. It is safe for concurrent use.
func (p *LoadProgress) Update(stats pipe.ProgressStats) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.files[stats.Path] = stats.BytesRead
	var sum int64
	for _, n := range p.files {
		sum += n
	}
	p.bar.Set64(sum)
}

// Finish completes and clears the bar.
func (p *LoadProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Finish()
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// FormatBytes formats a byte count with a binary unit.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
