// Package worker provides the scheduling loop used to repeat harvesting runs,
// together with small helpers for waiting and panic recovery.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const logFieldWorker = "worker"

// Config configures a ticker loop.
type Config struct {
	// Name identifies the worker for logging.
	Name string

	// Interval is the time between ticks.
	Interval time.Duration

	// RunOnStart runs OnTick immediately when starting.
	RunOnStart bool

	// OnTick is called when the ticker fires. Ticks never overlap.
	OnTick func(ctx context.Context)

	// OnStop is called once when the loop exits.
	OnStop func()

	// Logger for the worker.
	Logger *zerolog.Logger
}

// Loop calls OnTick every Interval until ctx is canceled.
// It returns a wrapped context error on cancellation.
func Loop(ctx context.Context, cfg Config) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Dur("interval", cfg.Interval).Msg("starting worker loop")

	defer func() {
		if cfg.OnStop != nil {
			cfg.OnStop()
		}

		logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")
	}()

	if cfg.Interval <= 0 {
		return fmt.Errorf("worker loop %s: invalid interval %s", cfg.Name, cfg.Interval)
	}

	if cfg.RunOnStart {
		tick(ctx, cfg, logger)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("worker loop %s: %w", cfg.Name, ctx.Err())
		case <-ticker.C:
			tick(ctx, cfg, logger)
		}
	}
}

func tick(ctx context.Context, cfg Config, logger *zerolog.Logger) {
	if cfg.OnTick == nil || ctx.Err() != nil {
		return
	}

	defer RecoverPanic(logger, cfg.Name)

	cfg.OnTick(ctx)
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RecoverPanic recovers from panics, logs them and hands the value to onPanic.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string, onPanic ...func(p any)) {
	r := recover()
	if r == nil {
		return
	}

	getLogger(logger).Error().
		Interface("panic", r).
		Str("operation", operation).
		Msg("recovered from panic")

	for _, fn := range onPanic {
		fn(r)
	}
}
