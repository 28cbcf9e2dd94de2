package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ccdb/pkg/engine"
	"github.com/Sumatoshi-tech/ccdb/pkg/observability"
	"github.com/Sumatoshi-tech/ccdb/pkg/report"
	"github.com/Sumatoshi-tech/ccdb/pkg/watch"
)

const (
	watchUse   = "watch [compile_commands.json]"
	watchShort = "Re-ingest a compilation database whenever it changes"
	watchLong  = `Watch a compile_commands.json and re-ingest it after every settled burst of
writes. Each successful pass prints the same report as parse and records the
database as consumed in the store.

With --metrics-addr, ingestion metrics are served in the Prometheus exposition
format at /metrics.`

	flagMetricsAddr = "metrics-addr"
	flagDebounce    = "debounce"

	metricsPath              = "/metrics"
	metricsReadHeaderTimeout = 5 * time.Second
)

func newWatchCommand(globals *globalFlags) *cobra.Command {
	output := &outputFlags{}

	var (
		metricsAddr string
		debounce    time.Duration
	)

	cmd := &cobra.Command{
		Use:   watchUse,
		Short: watchShort,
		Long:  watchLong,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			writer, err := output.writer(cobraCmd)
			if err != nil {
				return err
			}

			rt, err := globals.setup(cobraCmd, observability.ModeWatch)
			if err != nil {
				return err
			}
			defer rt.close()

			if cobraCmd.Flags().Changed(flagMetricsAddr) {
				rt.cfg.Watch.MetricsAddr = metricsAddr
			}

			if cobraCmd.Flags().Changed(flagDebounce) {
				rt.cfg.Watch.Debounce = debounce
			}

			ctx, stop := signal.NotifyContext(cobraCmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if rt.cfg.Watch.MetricsAddr != "" {
				shutdown, serveErr := serveMetrics(ctx, rt, rt.cfg.Watch.MetricsAddr)
				if serveErr != nil {
					return serveErr
				}
				defer shutdown()
			}

			return runWatch(ctx, rt, writer, rt.database(args))
		},
	}

	output.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, flagMetricsAddr, "", "serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().DurationVar(&debounce, flagDebounce, 0, "quiet period before re-ingesting (default from settings)")

	return cmd
}

func runWatch(ctx context.Context, rt *runtime, writer *report.Writer, database string) error {
	store, err := rt.openStore(rt.scope(database))
	if err != nil {
		return err
	}

	session, err := rt.session(database, store)
	if err != nil {
		return err
	}

	watcher, err := watch.New(session.Path(), rt.cfg.Watch.Debounce, rt.logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	refresh := func(ctx context.Context) error {
		ran, refreshErr := session.Refresh(ctx)
		if refreshErr != nil || !ran {
			return refreshErr
		}

		rt.logger.InfoContext(ctx, "database ingested", slog.Int("units", len(session.Sources())))

		return writer.Ingest(ingestReport(session))
	}

	err = refresh(ctx)
	if err != nil {
		rt.logger.ErrorContext(ctx, "initial ingest failed", slog.Any("error", err))
	}

	rt.logger.InfoContext(ctx, "watching database", slog.Duration("debounce", rt.cfg.Watch.Debounce))

	return watcher.Run(ctx, refresh)
}

// serveMetrics swaps the runtime's recorder for a Prometheus-backed one and
// serves it on addr. The returned function stops the server.
func serveMetrics(ctx context.Context, rt *runtime, addr string) (func(), error) {
	prom, err := observability.NewPrometheus()
	if err != nil {
		return nil, err
	}

	metrics, err := observability.NewIngestMetrics(prom.Meter)
	if err != nil {
		return nil, errors.Join(err, prom.Shutdown(ctx))
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("listen %s: %w", addr, err), prom.Shutdown(ctx))
	}

	rt.metrics = metrics

	mux := http.NewServeMux()
	mux.Handle(metricsPath, prom.Handler)

	server := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		serveErr := server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			rt.logger.ErrorContext(ctx, "metrics server failed", slog.Any("error", serveErr))
		}
	}()

	rt.logger.InfoContext(ctx, "serving metrics", slog.String("addr", listener.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsReadHeaderTimeout)
		defer cancel()

		shutdownErr := server.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			rt.logger.Warn("metrics server shutdown failed", slog.Any("error", shutdownErr))
		}

		shutdownErr = prom.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			rt.logger.Warn("prometheus shutdown failed", slog.Any("error", shutdownErr))
		}
	}, nil
}

func ingestReport(session *engine.Session) report.Ingest {
	return report.Ingest{
		Database:  session.Path(),
		Project:   session.Project(),
		Config:    session.Config(),
		SizeBytes: fileSize(session.Path()),
		Units:     session.Sources(),
		Toolchain: session.Toolchain(),
	}
}
