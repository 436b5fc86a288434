package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"localipc/internal/ipc"
	"localipc/internal/logging"
	"localipc/internal/telemetry"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var echo bool
	var metrics bool

	cmd := &cobra.Command{
		Use:   "serve NAME",
		Short: "Run a named endpoint until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, ctx, args[0], echo, metrics)
		},
	}

	cmd.Flags().BoolVar(&echo, "echo", false, "Send every received message back to its sender")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Expose Prometheus metrics on metrics.bind")
	return cmd
}

func runServe(cmd *cobra.Command, ctx *commandContext, name string, echo, metricsFlag bool) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	var collector telemetry.Collector = telemetry.Noop()
	var metricsSrv *http.Server
	if metricsFlag || cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := telemetry.NewPrometheusCollector(reg)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		collector = prom
		ln, err := net.Listen("tcp", cfg.Metrics.Bind)
		if err != nil {
			return fmt.Errorf("metrics listen on %s: %w", cfg.Metrics.Bind, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() { _ = metricsSrv.Serve(ln) }()
		fmt.Fprintf(cmd.OutOrStdout(), "metrics on http://%s/metrics\n", ln.Addr())
	}

	host, logger, err := ctx.newHost(collector)
	if err != nil {
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
		return err
	}
	defer func() {
		if metricsSrv != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	}()
	defer host.Close()

	handle, err := host.CreateServer(name)
	if err != nil {
		return fmt.Errorf("create endpoint %q: %w (%s)", name, err, ipc.ErrorCode(err))
	}
	logger = logging.NewComponentLogger(logger, "serve").With(logging.String(logging.FieldEndpoint, name))

	if err := host.Listen(handle, serveHandler(host, logger, echo)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s (%s)\n", name, handle)

	<-signalCtx.Done()
	logger.Info("shutting down endpoint", logging.String(logging.FieldEventType, "serve_stop"))
	if err := host.CloseServer(handle); err != nil && !errors.Is(err, ipc.ErrNotFound) {
		return err
	}
	return host.Close()
}

// serveHandler logs connection events and optionally echoes messages.
func serveHandler(host *ipc.Host, logger *slog.Logger, echo bool) ipc.Handler {
	return func(ev ipc.Event) {
		connLogger := logger.With(logging.String(logging.FieldConnectionID, ev.ConnID))
		switch ev.Kind {
		case ipc.EventOpened:
			connLogger.Info("client connected", logging.String(logging.FieldEventType, "connection_opened"))
		case ipc.EventMessage:
			connLogger.Debug("message received", logging.Int("bytes", len(ev.Payload)))
			if !echo {
				return
			}
			if err := host.SendMessageFromServer(ev.ConnID, ev.Payload); err != nil {
				logging.WarnWithContext(connLogger, "echo failed", "serve_echo_failed",
					logging.Error(err),
					logging.String("code", ipc.ErrorCode(err)),
					logging.String(logging.FieldImpact, "client misses the echoed message"))
			}
		case ipc.EventClosed:
			connLogger.Info("client disconnected",
				logging.String(logging.FieldEventType, "connection_closed"),
				logging.String(logging.FieldCloseReason, ev.Reason.String()))
		case ipc.EventEndpointError:
			logging.WarnWithContext(logger, "endpoint error", "serve_endpoint_error", logging.Error(ev.Err))
		case ipc.EventDispatcherOverflow:
			logging.WarnWithContext(logger, "events dropped", "serve_events_dropped",
				logging.Uint64("dropped", ev.Dropped),
				logging.String(logging.FieldErrorHint, "raise limits.dispatcher_backlog"))
		}
	}
}
