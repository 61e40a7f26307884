package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/logflow/alphaflow/pkg/discovery"
	"github.com/logflow/alphaflow/pkg/parser"
	"github.com/logflow/alphaflow/pkg/render"
	"github.com/logflow/alphaflow/pkg/service"
	"github.com/logflow/alphaflow/pkg/storage"
	"github.com/logflow/alphaflow/pkg/tui"
)

// Discovery flags, shared by discover, relations and watch.
var (
	nodeThreshold  int64
	edgeThreshold  int64
	startName      string
	endName        string
	inputFormat    string
	outputPath     string
	outputFormat   string
	boundaryLabels bool
	useDuckDB      bool
	workers        int
	quiet          bool
	relationsJSON  bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover <log>...",
	Short: "Discover a process model from event logs",
	Long: `Discover a control-flow model from one or more event logs. Several logs
are merged into one log before mining.

Logs may be local paths, s3://bucket/key or http(s) URLs. The output may be
a local path, s3://bucket/key or "-" for stdout.

Examples:
  alphaflow discover orders.csv
  alphaflow discover orders.xes -n 5 -e 2 -o model.svg
  alphaflow discover s3://logs/orders.parquet --duckdb -o s3://models/orders.dot
  alphaflow discover jan.csv feb.csv --to json -o -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscover,
}

var relationsCmd = &cobra.Command{
	Use:   "relations <log>...",
	Short: "Print the succession graph and the relations mined from it",
	Long: `Print the reduced direct-succession graph of the logs together with the
causal, parallel and exclusive relations the model is built from.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRelations,
}

func addDiscoveryFlags(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&nodeThreshold, "node", "n", 0, "Remove activities occurring fewer times (default from config)")
	cmd.Flags().Int64VarP(&edgeThreshold, "edge", "e", 0, "Remove transitions occurring fewer times (default from config)")
	cmd.Flags().StringVar(&startName, "start", "", "Name of the artificial start activity")
	cmd.Flags().StringVar(&endName, "end", "", "Name of the artificial end activity")
	cmd.Flags().StringVarP(&inputFormat, "format", "f", "", "Input format (csv, xes, xlsx, parquet) - detected from the extension if not specified")
	cmd.Flags().BoolVar(&useDuckDB, "duckdb", false, "Compute variants of a CSV or Parquet log with DuckDB")
	cmd.Flags().IntVar(&workers, "workers", 0, "Logs parsed at once (0 = all)")
}

func init() {
	addDiscoveryFlags(discoverCmd)
	discoverCmd.Flags().StringVarP(&outputPath, "output", "o", "-", "Output path, s3://bucket/key or - for stdout")
	discoverCmd.Flags().StringVarP(&outputFormat, "to", "t", "", "Output format (dot, json, svg, png) - detected from the output extension if not specified")
	discoverCmd.Flags().BoolVar(&boundaryLabels, "boundary-labels", false, "Print start and end names inside their circles")
	discoverCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "No progress or summary")

	addDiscoveryFlags(relationsCmd)
	relationsCmd.Flags().BoolVar(&relationsJSON, "json", false, "Print relations as JSON")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(relationsCmd)
}

// discoveryOptions merges flags over the config defaults.
func discoveryOptions(cmd *cobra.Command) discovery.Options {
	opts := cfg.Discovery.Options()
	if cmd.Flags().Changed("node") {
		opts.Thresholds.Node = nodeThreshold
	}
	if cmd.Flags().Changed("edge") {
		opts.Thresholds.Edge = edgeThreshold
	}
	if startName != "" {
		opts.StartName = startName
	}
	if endName != "" {
		opts.EndName = endName
	}
	return opts
}

// applyLoadFlags copies loading flags into the config before the service
// is built.
func applyLoadFlags(cmd *cobra.Command) {
	if useDuckDB {
		cfg.Discovery.UseDuckDB = true
	}
	if cmd.Flags().Changed("workers") {
		cfg.Discovery.Workers = workers
	}
}

func inputFormatFlag() (parser.Format, error) {
	if inputFormat == "" {
		return parser.FormatUnknown, nil
	}
	f := parser.ParseFormat(inputFormat)
	if f == parser.FormatUnknown {
		return f, fmt.Errorf("unknown input format %q", inputFormat)
	}
	return f, nil
}

// resolveOutputFormat prefers --to, then the output extension, then DOT.
func resolveOutputFormat(to, path string) (render.Format, error) {
	if to != "" {
		return render.ParseFormat(to)
	}
	if path != "-" {
		if f, err := render.ParseFormat(strings.TrimPrefix(filepath.Ext(path), ".")); err == nil {
			return f, nil
		}
	}
	return render.FormatDOT, nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	format, err := inputFormatFlag()
	if err != nil {
		return err
	}
	output, err := resolveOutputFormat(outputFormat, outputPath)
	if err != nil {
		return err
	}
	applyLoadFlags(cmd)

	ctx, cancel := signalContext()
	defer cancel()

	svc, closeFn, err := newDiscoverer(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	ropts := render.DefaultOptions()
	ropts.BoundaryLabels = boundaryLabels
	req := service.Request{
		Paths:   args,
		Format:  format,
		Options: discoveryOptions(cmd),
		Output:  output,
		Render:  ropts,
	}

	var progress *tui.LoadProgress
	if !quiet {
		progress = tui.NewLoadProgress(os.Stderr, localSize(args), "loading")
		req.Progress = progress.Update
	}

	out, err := svc.Run(ctx, req)
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return err
	}

	if err := writeOutput(ctx, svc.Storage(), outputPath, out.Body); err != nil {
		return err
	}

	if !quiet {
		dest := outputPath
		if dest == "-" {
			dest = ""
		}
		tui.PrintReport(os.Stderr, &tui.Report{
			Inputs:               args,
			Output:               dest,
			Events:               out.Events,
			Activities:           out.Activities,
			Gateways:             out.Gateways,
			Arcs:                 out.Arcs,
			NodeThreshold:        out.Meta.NodeThreshold,
			EdgeThreshold:        out.Meta.EdgeThreshold,
			MaxTraceWeight:       out.Meta.MaxTraceWeight,
			MaxActivityFrequency: out.Meta.MaxActivityFrequency,
			Cached:               out.Cached,
			Duration:             out.Duration,
		})
	}
	return nil
}

func runRelations(cmd *cobra.Command, args []string) error {
	format, err := inputFormatFlag()
	if err != nil {
		return err
	}
	applyLoadFlags(cmd)

	ctx, cancel := signalContext()
	defer cancel()

	svc, closeFn, err := newDiscoverer(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.Analyze(ctx, service.Request{
		Paths:   args,
		Format:  format,
		Options: discoveryOptions(cmd),
	})
	if err != nil {
		return err
	}

	if relationsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Edges     []discovery.Edge       `json:"edges"`
			Parallel  []discovery.Pair       `json:"parallel"`
			Relations *discovery.RelationSet `json:"relations"`
			Stats     discovery.ReduceStats  `json:"stats"`
		}{res.Reduced.Edges(), res.Relations.ParallelPairs(), res.Relations, res.Stats})
	}
	tui.PrintRelations(os.Stdout, res.Reduced, res.Relations)
	return nil
}

// writeOutput writes body to stdout, a local file or object storage.
func writeOutput(ctx context.Context, opener *storage.Opener, path string, body []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(body)
		return err
	}
	if !storage.IsRemote(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
	}

	w, err := opener.Create(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// localSize sums the sizes of local inputs for the progress bar. Remote
// inputs make the total unknown.
func localSize(paths []string) int64 {
	var total int64
	for _, p := range paths {
		if storage.IsRemote(p) {
			return 0
		}
		stat, err := os.Stat(p)
		if err != nil {
			return 0
		}
		total += stat.Size()
	}
	return total
}
