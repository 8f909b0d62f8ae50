package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/api"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API for submitting documents and reading past runs.

Endpoints:
  POST /api/v1/diagnoses             run a diagnosis (JSON or text/plain body)
  GET  /api/v1/diagnoses             list recent runs
  GET  /api/v1/diagnoses/{runID}     show one run
  GET  /api/v1/specialists           configured specialists
  GET  /api/v1/metrics               run and specialist counters
  GET  /api/v1/events                server-sent run events

Examples:
  quorum-dx serve
  quorum-dx serve --addr 0.0.0.0:9000 --watch`,
	RunE: runServe,
}

var (
	serveAddr  string
	serveWatch bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false,
		"also diagnose documents dropped into watch.dir")
}

func runServe(_ *cobra.Command, _ []string) (err error) {
	deps, err := buildRuntime(nil)
	if err != nil {
		return err
	}
	defer deps.Close()
	defer deps.crash.RecoverAndReturn(&err)

	addr := deps.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsCollector()
	metricsCh := deps.bus.Subscribe()
	go metrics.Consume(ctx, metricsCh)

	server := api.NewServer(deps.orchestrator,
		api.WithLogger(deps.logger),
		api.WithRunStore(deps.store),
		api.WithEventBus(deps.bus),
		api.WithReportWriter(deps.reports),
		api.WithIntake(deps.intakeOptions()),
		api.WithCORSOrigins(deps.cfg.Server.CORSOrigins),
		api.WithMetrics(metrics),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(ctx, addr)
	})
	if serveWatch {
		w := newInboxWatcher(deps, deps.cfg.Watch.Dir)
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}
