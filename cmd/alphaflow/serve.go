package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/logflow/alphaflow/pkg/config"
	"github.com/logflow/alphaflow/pkg/server"
	"github.com/logflow/alphaflow/pkg/service"
	"github.com/logflow/alphaflow/pkg/telemetry"
	"github.com/logflow/alphaflow/pkg/watch"
)

var (
	servePort      int
	serveHost      string
	serveNoBrowser bool
	serveWatch     []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the threshold explorer web UI",
	Long: `Start a local HTTP server with the alphaflow web interface.

The server provides:
  - Log upload and storage
  - Node and edge threshold sliders over a rendered model
  - Live model updates for watched logs over Server-Sent Events
  - REST API for programmatic access
  - Prometheus metrics at /metrics

Examples:
  alphaflow serve                         # Start on the configured port (8080)
  alphaflow serve --port 3000             # Start on custom port
  alphaflow serve --host 0.0.0.0          # Listen on all interfaces
  alphaflow serve --watch orders.csv      # Rediscover orders.csv when it changes`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().BoolVar(&serveNoBrowser, "no-browser", false, "Don't open browser")
	serveCmd.Flags().StringArrayVarP(&serveWatch, "watch", "w", nil, "Log file to register and rediscover on change (repeatable)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort == 0 {
		servePort = cfg.Server.Port
	}
	if serveHost == "" {
		serveHost = cfg.Server.Host
	}
	maxUpload, err := config.ParseSize(cfg.Server.MaxUploadSize)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics()
	if err := metrics.Register(reg); err != nil {
		return err
	}

	svc, closeFn, err := newDiscoverer(ctx, service.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer closeFn()

	logs, err := server.NewLogStore(cfg.Server.StoreDir)
	if err != nil {
		return fmt.Errorf("failed to open log store: %w", err)
	}
	srv := server.NewServer(svc, logs, server.Options{
		MaxUploadSize: maxUpload,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Defaults:      cfg.Discovery.Options(),
		Gatherer:      reg,
		Log:           log,
	})

	if len(serveWatch) > 0 {
		w, err := watchLogs(srv, serveWatch)
		if err != nil {
			return err
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("watcher stopped")
			}
		}()
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // Disable for SSE
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	url := fmt.Sprintf("http://%s:%d", serveHost, servePort)
	if serveHost == "0.0.0.0" || serveHost == "" {
		url = fmt.Sprintf("http://localhost:%d", servePort)
	}
	printBanner(url, len(serveWatch))

	if !serveNoBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser(url)
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// watchLogs registers each path with the server and refreshes its model
// whenever the file settles after a change.
func watchLogs(srv *server.Server, paths []string) (*watch.Watcher, error) {
	w, err := watch.NewWatcher(watch.DefaultDebounce)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(paths))
	for _, p := range paths {
		entry, err := srv.WatchLog(p)
		if err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Watch(entry.Path); err != nil {
			w.Close()
			return nil, err
		}
		ids[entry.Path] = entry.ID
	}

	w.OnChange = func(path string) error {
		id, ok := ids[path]
		if !ok {
			return nil
		}
		log.WithField("path", path).Info("log changed, rediscovering")
		return srv.Refresh(context.Background(), id)
	}
	w.OnError = func(path string, err error) {
		log.WithError(err).WithField("path", path).Warn("watch update failed")
	}
	return w, nil
}

func printBanner(url string, watched int) {
	fmt.Println()
	fmt.Println("  ╭─────────────────────────────────────╮")
	fmt.Println("  │         ALPHAFLOW SERVER            │")
	fmt.Println("  ├─────────────────────────────────────┤")
	fmt.Printf("  │  Local:   %-25s │\n", url)
	if serveHost == "0.0.0.0" {
		if ip := getOutboundIP(); ip != "" {
			fmt.Printf("  │  Network: http://%-17s │\n", fmt.Sprintf("%s:%d", ip, servePort))
		}
	}
	if watched > 0 {
		fmt.Printf("  │  Watching %-3d log(s)                │\n", watched)
	}
	fmt.Println("  │                                     │")
	fmt.Println("  │  Press Ctrl+C to stop               │")
	fmt.Println("  ╰─────────────────────────────────────╯")
	fmt.Println()
}

// openBrowser opens URL in the default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return
	}

	cmd.Start()
}

// getOutboundIP gets the preferred outbound IP.
func getOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
