package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/book-harvester/internal/app"
	"github.com/lueurxax/book-harvester/internal/platform/config"
	"github.com/lueurxax/book-harvester/internal/platform/sources"
	db "github.com/lueurxax/book-harvester/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "Harvest every source once and exit")
	sourcesFile := flag.String("sources", "", "Path to the sources file (overrides SOURCES_FILE)")
	migrateOnly := flag.Bool("migrate", false, "Apply database migrations and exit")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *once {
		cfg.Schedule.RunOnce = true
	}

	if *sourcesFile != "" {
		cfg.Schedule.SourcesFile = *sourcesFile
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.Database.MaxConnections,
		MinConns:          cfg.Database.MinConnections,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, cfg.Database.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	if *migrateOnly {
		logger.Info().Msg("migrations applied")

		return
	}

	srcs, err := sources.LoadFile(cfg.Schedule.SourcesFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.Schedule.SourcesFile).Msg("failed to load sources")
	}

	srcs = sources.Filter(srcs, cfg.SourceEnabled)

	application, err := app.New(cfg, database, srcs, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("application initialization failed")
	}
	defer application.Close()

	if !cfg.Schedule.RunOnce {
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				logger.Error().Err(err).Msg("health check server error")
			}
		}()
	}

	logger.Info().Int("sources", len(srcs)).Bool("once", cfg.Schedule.RunOnce).Msg("harvester starting")

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("harvester stopped")

			return
		}

		logger.Error().Err(err).Msg("harvester error")

		stop()
		application.Close()
		database.Close()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.IsLocal() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
