package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"benchcore/internal/blob"
	"benchcore/internal/config"
	"benchcore/internal/core"
	"benchcore/internal/infra/events/rabbitmq"
	"benchcore/internal/tasks"

	"github.com/prometheus/client_golang/prometheus"
)

// app holds the wired service and everything that must be released with it.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	service *core.Service
	closers []func() error
}

type appOptions struct {
	registerer prometheus.Registerer
	authorizer core.Authorizer
	// expvarName publishes per-operation counters under that expvar name.
	expvarName string
	// stderr receives JSON spans when log.trace is set.
	stderr io.Writer
}

func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	policy, err := policyFrom(cfg.Policy)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	a.closers = append(a.closers, closeStore)

	svcOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithTaskPolicy(policy),
		core.WithCompositeShelfLifeDays(cfg.Policy.CompositeShelfLifeDays),
		core.WithDefaultValidationPeriod(cfg.Policy.ValidationPeriodDays),
		core.WithAuthorizer(opts.authorizer),
	}
	var recorders core.MultiMetricsRecorder
	if opts.registerer != nil {
		metrics, err := core.NewPrometheusMetricsRecorder(opts.registerer)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		recorders = append(recorders, metrics)
	}
	if opts.expvarName != "" {
		vars, err := core.NewExpvarRecorder(opts.expvarName)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		recorders = append(recorders, vars)
	}
	if len(recorders) > 0 {
		svcOpts = append(svcOpts, core.WithMetricsRecorder(recorders))
	}
	if cfg.Log.Trace && opts.stderr != nil {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(opts.stderr)))
	}
	if cfg.Events.AMQPURL != "" {
		publisher, err := rabbitmq.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, publisher.Close)
		svcOpts = append(svcOpts, core.WithEventPublisher(publisher))
		logger.Info("publishing events", "exchange", publisher.Exchange())
	}

	a.service = core.NewService(store, svcOpts...)
	logger.Info("store opened", "driver", cfg.Storage.Driver)
	return a, nil
}

func policyFrom(p config.Policy) (tasks.Policy, error) {
	threshold, err := p.Threshold()
	if err != nil {
		return tasks.Policy{}, err
	}
	return tasks.Policy{
		LowStockThreshold:     threshold,
		LowStockDueDays:       p.LowStockDueDays,
		ExpiringWindowDays:    p.ExpiringWindowDays,
		ValidationHorizonDays: p.ValidationHorizonDays,
	}, nil
}

// archive opens the configured snapshot archive.
func (a *app) archive(ctx context.Context) (*blob.Archive, error) {
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open %s blob store: %w", a.cfg.Blob.Driver, err)
	}
	return blob.NewArchive(store, a.cfg.Blob.Prefix), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
