// Package app provides the application bootstrap and runtime orchestration.
//
// The App type wires storage, the run lock, reporting and the ingest
// pipeline together and exposes two operational modes:
//
//   - RunOnce: harvest every configured source one time
//   - Run: repeat RunOnce on the configured interval until stopped
//
// Sources of one pass run sequentially; units of a source run concurrently.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
	"github.com/lueurxax/book-harvester/internal/core/ports"
	"github.com/lueurxax/book-harvester/internal/ingest/cursor"
	"github.com/lueurxax/book-harvester/internal/ingest/extract"
	"github.com/lueurxax/book-harvester/internal/ingest/fetch"
	"github.com/lueurxax/book-harvester/internal/ingest/reconcile"
	"github.com/lueurxax/book-harvester/internal/ingest/runner"
	"github.com/lueurxax/book-harvester/internal/platform/config"
	"github.com/lueurxax/book-harvester/internal/platform/observability"
	"github.com/lueurxax/book-harvester/internal/platform/runlock"
	"github.com/lueurxax/book-harvester/internal/platform/worker"
	"github.com/lueurxax/book-harvester/internal/report"
	db "github.com/lueurxax/book-harvester/internal/storage"
)

const (
	workerName   = "harvest"
	depDatabase  = "database"
	depRedisLock = "redis"
)

// Deps are the collaborators of an App. New builds them from configuration;
// tests pass their own.
type Deps struct {
	Store    ports.Store
	Locker   ports.RunLocker
	Reporter ports.Reporter
	Fetcher  runner.Fetcher
	Sources  []*domain.SourceConfig
	Pingers  map[string]observability.Pinger
	Closers  []func() error
}

// App holds the application dependencies.
type App struct {
	cfg     *config.Config
	sources []*domain.SourceConfig
	runner  *runner.Runner
	pingers map[string]observability.Pinger
	closers []func() error
	logger  *zerolog.Logger
}

// New connects the optional infrastructure named by cfg (Redis run lock,
// AMQP reporting) around database and builds the App.
func New(cfg *config.Config, database *db.DB, sources []*domain.SourceConfig, logger *zerolog.Logger) (*App, error) {
	deps := Deps{
		Store:   database,
		Locker:  database,
		Fetcher: fetch.New(logger, fetch.WithUserAgent(cfg.HTTP.UserAgent)),
		Sources: sources,
		Pingers: map[string]observability.Pinger{depDatabase: database},
	}

	if cfg.Lock.RedisAddr != "" {
		locker, err := runlock.NewRedisLocker(cfg.Lock.RedisAddr, cfg.Lock.RedisPassword, cfg.Lock.RedisPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("run lock init: %w", err)
		}

		deps.Locker = locker
		deps.Pingers[depRedisLock] = locker
		deps.Closers = append(deps.Closers, locker.Close)

		logger.Info().Str("addr", cfg.Lock.RedisAddr).Msg("Redis run lock enabled")
	}

	reporters := report.Multi{report.NewLogReporter(logger)}

	if cfg.Report.AMQPURL != "" {
		publisher, err := report.DialAMQP(report.AMQPConfig{
			URL:        cfg.Report.AMQPURL,
			Exchange:   cfg.Report.AMQPExchange,
			RoutingKey: cfg.Report.AMQPRoutingKey,
		}, logger)
		if err != nil {
			closeAll(deps.Closers, logger)

			return nil, fmt.Errorf("amqp reporter init: %w", err)
		}

		reporters = append(reporters, publisher)
		deps.Closers = append(deps.Closers, publisher.Close)

		logger.Info().Str("exchange", cfg.Report.AMQPExchange).Msg("AMQP run reports enabled")
	}

	deps.Reporter = reporters

	return NewWithDeps(cfg, deps, logger), nil
}

// NewWithDeps builds the App around ready collaborators.
func NewWithDeps(cfg *config.Config, deps Deps, logger *zerolog.Logger) *App {
	r := runner.New(runner.Deps{
		Store:      deps.Store,
		Fetcher:    deps.Fetcher,
		Extractor:  extract.New(logger),
		Reconciler: reconcile.New(deps.Store, logger),
		Cursor:     cursor.New(deps.Store, logger),
		Locker:     deps.Locker,
		Reporter:   deps.Reporter,
		Logger:     logger,
		LockTTL:    cfg.Lock.TTL,

		Concurrency: cfg.Schedule.WorkerConcurrency,
	})

	return &App{
		cfg:     cfg,
		sources: deps.Sources,
		runner:  r,
		pingers: deps.Pingers,
		closers: deps.Closers,
		logger:  logger,
	}
}

// Sources returns the sources harvested by this process.
func (a *App) Sources() []*domain.SourceConfig {
	return a.sources
}

// RunOnce harvests every source one time. A source whose run lock is held
// elsewhere is skipped; other failures are collected and do not stop the pass.
func (a *App) RunOnce(ctx context.Context) ([]domain.RunSummary, error) {
	var (
		summaries []domain.RunSummary
		errs      []error
	)

	for _, src := range a.sources {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("harvest pass interrupted: %w", ctx.Err()))

			break
		}

		summary, err := a.runner.Run(ctx, src)

		switch {
		case err == nil:
			summaries = append(summaries, summary)
		case errors.Is(err, coreerrors.ErrLockHeld):
			a.logger.Info().Str("source", src.Name).Msg("source is being harvested elsewhere, skipping")
		default:
			a.logger.Error().Err(err).Str("source", src.Name).Msg("harvest run failed")

			if summary.RunID != "" && summary.Stats.Processed > 0 {
				summaries = append(summaries, summary)
			}

			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
		}
	}

	return summaries, errors.Join(errs...)
}

// Run harvests on the configured interval until ctx is cancelled, or once
// when RUN_ONCE is set.
func (a *App) Run(ctx context.Context) error {
	if len(a.sources) == 0 {
		return fmt.Errorf("%w: no enabled sources", coreerrors.ErrInvalidSourceConfig)
	}

	if a.cfg.Schedule.RunOnce {
		_, err := a.RunOnce(ctx)

		return err
	}

	return worker.Loop(ctx, worker.Config{
		Name:       workerName,
		Interval:   a.cfg.Schedule.RunInterval,
		RunOnStart: true,
		Logger:     a.logger,
		OnTick: func(ctx context.Context) {
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("harvest pass finished with errors")
			}
		},
	})
}

// StartHealthServer serves health, readiness and metrics until ctx is cancelled.
func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.pingers, a.cfg.HealthPort, a.logger).Start(ctx)
}

// Close releases connections opened by New.
func (a *App) Close() {
	closeAll(a.closers, a.logger)
}

func closeAll(closers []func() error, logger *zerolog.Logger) {
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Warn().Err(err).Msg("failed to close dependency")
		}
	}
}
