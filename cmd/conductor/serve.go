package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	audithook "github.com/xraph/conductor/audit_hook"
	"github.com/xraph/conductor/engine"
	"github.com/xraph/conductor/health"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the engine and the metrics endpoint",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			addr, _ := cmd.Flags().GetString("metrics-addr")
			audit, _ := cmd.Flags().GetBool("audit")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts := []engine.Option{engine.WithLogger(logger)}
			if audit {
				opts = append(opts, engine.WithExtension(
					audithook.New(audithook.LogRecorder(logger.With(slog.String("component", "audit"))), audithook.WithLogger(logger)),
				))
			}
			eng, err := engine.Build(cfg, opts...)
			if err != nil {
				return err
			}
			if err := eng.Start(ctx); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           newMetricsMux(eng.Monitor()),
				ReadHeaderTimeout: 5 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				logger.Info("metrics endpoint listening", slog.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
			case err = <-serveErr:
				if err != nil {
					logger.Error("metrics endpoint failed", slog.String("error", err.Error()))
				}
			}

			shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
			defer stop()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.Warn("metrics endpoint shutdown", slog.String("error", shutdownErr.Error()))
			}
			if stopErr := eng.Stop(shutdownCtx); stopErr != nil {
				return fmt.Errorf("stop engine: %w", stopErr)
			}
			return err
		},
	}
	cmd.Flags().Bool("audit", false, "Write a lifecycle audit trail to the log")
	cmd.Flags().String("metrics-addr", envDefault("CONDUCTOR_METRICS_ADDR", ":9090"), "Listen address for /metrics and /healthz")
	return cmd
}

// newMetricsMux serves Prometheus metrics, including queue health, and a
// liveness probe.
func newMetricsMux(m *health.Monitor) *http.ServeMux {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		health.NewCollector(m),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
