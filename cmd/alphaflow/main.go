// alphaflow discovers BPMN-style process models from event logs with the
// alpha algorithm.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/logflow/alphaflow/pkg/config"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
	"github.com/logflow/alphaflow/pkg/logging"
	"github.com/logflow/alphaflow/pkg/service"
	"github.com/logflow/alphaflow/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
	logLevel   string
	logJSON    bool
)

// Set by the root command before any subcommand runs.
var (
	cfg *config.Config
	log *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		tui.PrintError(os.Stderr, err)
		var lfErr *lferrors.LogFlowError
		if verbose && errors.As(err, &lfErr) {
			fmt.Fprint(os.Stderr, lfErr.FormatStack())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "alphaflow",
	Short: "alphaflow - discover process models from event logs",
	Long: `alphaflow mines a control-flow model with XOR and AND gateways from
CSV, XES, XLSX or Parquet event logs using the alpha algorithm.

Rare activities and transitions can be pruned with node and edge
thresholds before mining. Models are written as Graphviz DOT, JSON,
SVG or PNG.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: /etc/alphaflow, ~/.alphaflow, ./.alphaflow.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON")
}

// loadConfig reads the layered config and builds the logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	var m *config.Manager
	if configFile != "" {
		m = config.NewManagerWithPaths(configFile)
		if err := m.Load(); err != nil {
			return err
		}
	} else {
		var err error
		if m, err = config.Global(); err != nil {
			return err
		}
	}
	cfg = m.Get()

	lcfg := logging.Config{Level: cfg.Logging.Level}
	if logLevel != "" {
		lcfg.Level = logLevel
	}
	if verbose {
		lcfg.Level = "debug"
	}
	if cfg.Logging.JSON || logJSON {
		lcfg.Format = logging.FormatJSON
	}
	if err := lcfg.Validate(); err != nil {
		return err
	}
	log = logging.New(lcfg)
	log.WithField("config", m.GetPaths()).Debug("configuration loaded")
	return nil
}

// newDiscoverer builds the discovery service from the loaded config.
func newDiscoverer(ctx context.Context, opts ...service.Option) (*service.Discoverer, func(), error) {
	d, closeFn, err := service.FromConfig(ctx, cfg, log, opts...)
	if err != nil {
		return nil, nil, err
	}
	return d, func() {
		if err := closeFn(context.Background()); err != nil {
			log.WithError(err).Warn("shutdown failed")
		}
	}, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
