package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"frintab/internal/events"
	applog "frintab/internal/log"
)

const watchShutdownTimeout = 10 * time.Second

func newWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow changes made by other clients",
		Long: `Consume ledger change events and keep the local views fresh.

Needs AMQP_URL. When METRICS_ADDR is set, Prometheus metrics are served on
it under /metrics.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, release, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer release()
			return runWatch(cmd, rootOpts, app)
		},
	}
}

func runWatch(cmd *cobra.Command, rootOpts *RootOptions, app *App) error {
	if app.Events == nil {
		return NewExitError(ExitUsage, "watch needs a reachable AMQP_URL")
	}
	if _, err := app.Session.RequireUser("watch"); err != nil {
		return err
	}
	logger := app.Logger.WithComponent(applog.ComponentEvents)

	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frintab",
		Subsystem: "events",
		Name:      "received_total",
		Help:      "Change events received from other clients by type.",
	}, []string{"type"})
	if err := app.Registry.Register(received); err != nil {
		return fmt.Errorf("register event metrics: %w", err)
	}

	var metricsSrv *http.Server
	if addr := app.Config.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("Serving metrics", applog.FieldAddr, addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", applog.FieldError, err)
			}
		}()
	}

	// The collection view keeps the group list current while watching.
	view := app.Collection()
	defer view.Close()
	if _, err := view.ListMyGroups(cmd.Context()); err != nil {
		return err
	}

	ctx, done := GracefulShutdown(cmd.Context(), app.Logger, watchShutdownTimeout, func() {
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), watchShutdownTimeout)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	})

	listener := events.NewListener(app.Dispatcher, app.Origin, app.Logger)
	out := rootOpts.formatter(cmd)
	handler := func(ctx context.Context, msg events.Message) error {
		if msg.Origin == app.Origin {
			return nil
		}
		received.WithLabelValues(string(msg.Type)).Inc()
		if err := listener.Handle(ctx, msg); err != nil {
			return err
		}
		return out.Print(msg, func(w io.Writer) {
			fmt.Fprintf(w, "%s  %-22s %s\n", msg.Timestamp.Local().Format(time.TimeOnly), msg.Type, msg.GroupID)
		})
	}

	logger.Info("Watching for changes", "origin", app.Origin)
	err := app.Events.Consume(ctx, handler)
	<-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
