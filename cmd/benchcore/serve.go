package main

import (
	"context"
	"errors"
	"expvar"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"benchcore/internal/adapters/httpapi"
	"benchcore/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP command API and run the periodic task sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, logger, err := loadSettings(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			a, err := openApp(cmd.Context(), cfg, logger, appOptions{
				registerer: reg,
				authorizer: httpapi.Authorizer(),
				expvarName: "benchcore",
				stderr:     cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.HTTP.Addr)
			if err != nil {
				return err
			}
			handler := httpapi.NewHandler(a.service, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			handler.Vars = expvar.Handler()
			return serve(ctx, ln, handler.Echo(), a.service, cfg.Sweep.Interval, logger)
		},
	}
}

// serve runs the HTTP server and the sweep loop until ctx is cancelled or one
// of them fails.
func serve(ctx context.Context, ln net.Listener, h http.Handler, svc *core.Service, interval time.Duration, logger *slog.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if interval > 0 {
		g.Go(func() error {
			sweepLoop(ctx, svc, interval, logger)
			return nil
		})
	}
	return g.Wait()
}

// sweepLoop sweeps once at start and then every interval. Sweep failures are
// logged and retried on the next tick.
func sweepLoop(ctx context.Context, svc *core.Service, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, _, err := svc.Sweep(ctx)
		if err != nil {
			logger.Warn("sweep failed", "error", err)
		} else if len(report.Created)+len(report.Overdue) > 0 {
			logger.Info("sweep finished", "created", len(report.Created), "overdue", len(report.Overdue))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
