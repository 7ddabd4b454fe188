// Package runner orchestrates harvesting runs.
//
// A run takes the per-source lock, plans a batch of unit addresses with the
// cursor and processes the units concurrently. Every unit goes through
// fetch, extract and reconcile independently; the cursor is persisted after
// each unit so a stopped run resumes where it left off.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
	"github.com/lueurxax/book-harvester/internal/core/ports"
	"github.com/lueurxax/book-harvester/internal/ingest/cursor"
	"github.com/lueurxax/book-harvester/internal/ingest/extract"
	"github.com/lueurxax/book-harvester/internal/ingest/fetch"
	"github.com/lueurxax/book-harvester/internal/ingest/reconcile"
	"github.com/lueurxax/book-harvester/internal/platform/observability"
	"github.com/lueurxax/book-harvester/internal/platform/worker"
)

const (
	// DefaultLockTTL bounds how long a crashed run keeps its source locked.
	DefaultLockTTL = 30 * time.Minute
	// DefaultConcurrency is used when a source does not set concurrency.
	DefaultConcurrency = 4

	lockPrefix = "harvest:"

	reasonNotFound = "not found at source"
	reasonPanic    = "panic while processing unit"
)

// Fetcher downloads one unit of a source.
type Fetcher interface {
	Fetch(ctx context.Context, cfg *domain.SourceConfig, address int64) fetch.Outcome
}

// Deps holds the collaborators of a Runner.
type Deps struct {
	Store      ports.Store
	Fetcher    Fetcher
	Extractor  *extract.Extractor
	Reconciler *reconcile.Reconciler
	Cursor     *cursor.Cursor
	Locker     ports.RunLocker
	// Reporter is optional.
	Reporter ports.Reporter
	Logger   *zerolog.Logger

	LockTTL     time.Duration
	Concurrency int
}

// Runner processes units and whole runs.
type Runner struct {
	store      ports.Store
	fetcher    Fetcher
	extractor  *extract.Extractor
	reconciler *reconcile.Reconciler
	cursor     *cursor.Cursor
	locker     ports.RunLocker
	reporter   ports.Reporter
	logger     *zerolog.Logger

	lockTTL     time.Duration
	concurrency int
	now         func() time.Time
}

// New creates a runner.
func New(deps Deps) *Runner {
	r := &Runner{
		store:       deps.Store,
		fetcher:     deps.Fetcher,
		extractor:   deps.Extractor,
		reconciler:  deps.Reconciler,
		cursor:      deps.Cursor,
		locker:      deps.Locker,
		reporter:    deps.Reporter,
		logger:      deps.Logger,
		lockTTL:     deps.LockTTL,
		concurrency: deps.Concurrency,
		now:         time.Now,
	}

	if r.logger == nil {
		nop := zerolog.Nop()
		r.logger = &nop
	}

	if r.lockTTL <= 0 {
		r.lockTTL = DefaultLockTTL
	}

	if r.concurrency <= 0 {
		r.concurrency = DefaultConcurrency
	}

	return r
}

// LockKey is the run-lock key of a source.
func LockKey(cfg *domain.SourceConfig) string {
	return lockPrefix + cfg.Name
}

// ProcessUnit fetches one address and reconciles every record found there.
// It never returns an error: failures become FAILED results.
func (r *Runner) ProcessUnit(ctx context.Context, cfg *domain.SourceConfig, address int64) (res domain.UnitResult) {
	res.Address = address

	defer worker.RecoverPanic(r.logger, "process unit", func(p any) {
		res.Results = append(res.Results, r.fail(ctx, cfg, unitExternalID(cfg, address), reasonPanic, 0, fmt.Errorf("%v", p)))
	})

	switch out := r.fetcher.Fetch(ctx, cfg, address).(type) {
	case fetch.Records:
		for _, unit := range out.Units {
			res.Results = append(res.Results, r.processRecord(ctx, cfg, unit.Address, r.extractor.Extract(unit, cfg)))
		}

		res.EndOfData = out.LastPage
	case fetch.EndOfData:
		res.EndOfData = true
	case fetch.Missing:
		err := fmt.Errorf("%w: HTTP %d", coreerrors.ErrUnitMissing, out.Status)
		res.Results = append(res.Results, r.fail(ctx, cfg, unitExternalID(cfg, address), reasonNotFound, out.Status, err))
	case fetch.Transient:
		res.Results = append(res.Results, r.fail(ctx, cfg, unitExternalID(cfg, address), out.Err.Error(), out.Status, out.Err))
	}

	return res
}

func (r *Runner) processRecord(ctx context.Context, cfg *domain.SourceConfig, address int64, rec domain.NormalizedRecord) domain.ProcessResult {
	result := r.reconciler.Reconcile(ctx, rec, reconcile.SourceFor(cfg, rec.ExternalID))

	observability.RecordsProcessed.WithLabelValues(cfg.Name, string(result.Outcome)).Inc()

	if result.Outcome == domain.OutcomeFailed {
		r.recordFailure(ctx, cfg, result.ExternalID, result.Reason, 0)

		return result
	}

	resolved, err := r.store.ResolveFailures(ctx, cfg.Name, result.ExternalID)
	if err != nil {
		r.logger.Error().Err(err).
			Str("source", cfg.Name).
			Str("external_id", result.ExternalID).
			Msg("failed to resolve failure records")
	} else if resolved > 0 {
		r.logger.Debug().
			Str("source", cfg.Name).
			Str("external_id", result.ExternalID).
			Int64("address", address).
			Int64("resolved", resolved).
			Msg("earlier failures resolved")
	}

	return result
}

// fail builds a FAILED result for a unit that produced no record and stores its failure record.
func (r *Runner) fail(ctx context.Context, cfg *domain.SourceConfig, externalID, reason string, status int, err error) domain.ProcessResult {
	r.logger.Warn().Err(err).
		Str("source", cfg.Name).
		Str("external_id", externalID).
		Int("status", status).
		Msg("unit failed")

	observability.RecordsProcessed.WithLabelValues(cfg.Name, string(domain.OutcomeFailed)).Inc()
	r.recordFailure(ctx, cfg, externalID, reason, status)

	return domain.ProcessResult{
		ExternalID: externalID,
		Outcome:    domain.OutcomeFailed,
		Delta:      domain.DeltaFor(domain.OutcomeFailed),
		Reason:     reason,
		HTTPStatus: status,
		Err:        err,
	}
}

func (r *Runner) recordFailure(ctx context.Context, cfg *domain.SourceConfig, externalID, reason string, status int) {
	err := r.store.RecordFailure(ctx, domain.FailureRecord{
		SourceName: cfg.Name,
		ExternalID: externalID,
		Reason:     reason,
		HTTPStatus: status,
		CreatedAt:  r.now(),
	})
	if err != nil {
		r.logger.Error().Err(err).
			Str("source", cfg.Name).
			Str("external_id", externalID).
			Msg("failed to record failure")
	}
}

// unitExternalID names a unit that yielded no record. Page units get a
// prefix so they never collide with numeric record ids in gap queries.
func unitExternalID(cfg *domain.SourceConfig, address int64) string {
	if cfg.Mode() == domain.AddressByPage {
		return "page-" + strconv.FormatInt(address, 10)
	}

	return strconv.FormatInt(address, 10)
}

// Run executes one harvesting run of a source. It returns errors.ErrLockHeld
// when another run of the same source is active.
func (r *Runner) Run(ctx context.Context, cfg *domain.SourceConfig) (domain.RunSummary, error) {
	summary := domain.RunSummary{
		RunID:      uuid.NewString(),
		SourceName: cfg.Name,
		StartedAt:  r.now(),
	}

	release, err := r.locker.Acquire(ctx, LockKey(cfg), r.lockTTL)
	if err != nil {
		if errors.Is(err, coreerrors.ErrLockHeld) {
			observability.RunsSkipped.WithLabelValues(cfg.Name).Inc()
		}

		return summary, fmt.Errorf("acquire run lock %s: %w", cfg.Name, err)
	}
	defer release()

	if err := r.store.RegisterSource(ctx, cfg); err != nil {
		return summary, fmt.Errorf("register source: %w", err)
	}

	batch, err := r.cursor.Plan(ctx, cfg)
	if err != nil {
		return summary, fmt.Errorf("plan batch: %w", err)
	}

	summary.GapFill = batch.GapFill()
	summary.MissingRanges = batch.MissingRanges()

	r.logger.Info().
		Str("run_id", summary.RunID).
		Str("source", cfg.Name).
		Int64("start", batch.Start()).
		Int64("end", batch.End()).
		Int("gaps", len(batch.Gaps())).
		Msg("run started")

	runErr := r.dispatch(ctx, cfg, batch, &summary)

	summary.FinishedAt = r.now()
	observability.RunDuration.WithLabelValues(cfg.Name).Observe(summary.Elapsed().Seconds())

	r.finish(context.WithoutCancel(ctx), &summary)

	if runErr != nil {
		return summary, runErr
	}

	return summary, nil
}

// collector aggregates unit results of one run.
type collector struct {
	mu      sync.Mutex
	summary *domain.RunSummary
}

func (c *collector) add(res domain.UnitResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.summary
	s.Stats = s.Stats.Add(res.Delta())

	if s.FirstAddress == 0 || res.Address < s.FirstAddress {
		s.FirstAddress = res.Address
	}

	if res.Address > s.LastAddress {
		s.LastAddress = res.Address
	}

	if res.EndOfData {
		s.ReachedEndData = true
	}
}

// dispatch feeds batch addresses to at most concurrency workers. An address
// is taken only once a worker slot is free, so nothing is dispatched past an
// end of data seen by a finished unit. Dispatching stops when ctx is done;
// units already started finish.
func (r *Runner) dispatch(ctx context.Context, cfg *domain.SourceConfig, batch *cursor.Batch, summary *domain.RunSummary) error {
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = r.concurrency
	}

	var g errgroup.Group

	slots := make(chan struct{}, limit)
	col := &collector{summary: summary}
	unitCtx := context.WithoutCancel(ctx)

	stopped := func() {
		summary.StoppedEarly = true

		r.logger.Info().Str("source", cfg.Name).Msg("run stopping, no further units dispatched")
	}

loop:
	for {
		if ctx.Err() != nil {
			stopped()

			break
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			stopped()

			break loop
		}

		addr := batch.Next()
		if addr == cursor.EndOfBatch {
			<-slots

			break
		}

		g.Go(func() error {
			defer func() { <-slots }()

			res := r.ProcessUnit(unitCtx, cfg, addr)
			if res.EndOfData {
				batch.Stop()
			}

			col.add(res)

			if err := r.cursor.Advance(unitCtx, batch, res); err != nil {
				batch.Stop()

				return fmt.Errorf("advance cursor at %d: %w", addr, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return nil
}

func (r *Runner) finish(ctx context.Context, summary *domain.RunSummary) {
	if err := r.store.SaveRun(ctx, *summary); err != nil {
		r.logger.Error().Err(err).Str("run_id", summary.RunID).Msg("failed to save run")
	}

	s := summary.Stats
	r.logger.Info().
		Str("run_id", summary.RunID).
		Str("source", summary.SourceName).
		Int("processed", s.Processed).
		Int("created", s.Created).
		Int("enhanced", s.Enhanced).
		Int("source_added", s.SourceAdded).
		Int("duplicate", s.Duplicate).
		Int("failed", s.Failed).
		Bool("end_of_data", summary.ReachedEndData).
		Bool("stopped_early", summary.StoppedEarly).
		Dur("elapsed", summary.Elapsed()).
		Msg("run finished")

	if r.reporter == nil {
		return
	}

	if err := r.reporter.Report(ctx, *summary); err != nil {
		r.logger.Error().Err(err).Str("run_id", summary.RunID).Msg("failed to report run")
	}
}
