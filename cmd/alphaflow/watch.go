package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/alphaflow/pkg/render"
	"github.com/logflow/alphaflow/pkg/service"
	"github.com/logflow/alphaflow/pkg/tui"
	"github.com/logflow/alphaflow/pkg/watch"
)

var (
	watchOutput   string
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <log>...",
	Short: "Rediscover the model whenever a log changes",
	Long: `Discover a model once, then watch the logs and write a fresh model each
time one of them changes and settles.

Examples:
  alphaflow watch orders.csv -o orders.dot
  alphaflow watch jan.csv feb.csv -n 3 -o model.svg --debounce 2s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	addDiscoveryFlags(watchCmd)
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "Output path or s3://bucket/key (required)")
	watchCmd.Flags().StringVarP(&outputFormat, "to", "t", "", "Output format (dot, json, svg, png) - detected from the output extension if not specified")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a change is processed")
	watchCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := inputFormatFlag()
	if err != nil {
		return err
	}
	output, err := resolveOutputFormat(outputFormat, watchOutput)
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

	req := service.Request{
		Paths:   args,
		Format:  format,
		Options: discoveryOptions(cmd),
		Output:  output,
		Render:  render.DefaultOptions(),
	}
	rediscover := func() error {
		out, err := svc.Run(ctx, req)
		if err != nil {
			return err
		}
		if err := writeOutput(ctx, svc.Storage(), watchOutput, out.Body); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "  %s  %d activities, %d gateways -> %s\n",
			time.Now().Format("15:04:05"), out.Activities, out.Gateways, watchOutput)
		return nil
	}
	if err := rediscover(); err != nil {
		return err
	}

	w, err := watch.NewWatcher(watchDebounce)
	if err != nil {
		return err
	}
	defer w.Close()
	for _, p := range args {
		if err := w.Watch(p); err != nil {
			return err
		}
	}
	w.OnChange = func(path string) error {
		log.WithField("path", path).Debug("log changed")
		return rediscover()
	}
	w.OnError = func(path string, err error) {
		tui.PrintError(os.Stderr, err)
	}

	fmt.Fprintf(os.Stderr, "  watching %d log(s), Ctrl+C to stop\n", len(args))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
