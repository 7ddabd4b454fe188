// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration. Source definitions live in the file
// named by SOURCES_FILE.
type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"local"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	HealthPort int    `env:"HEALTH_PORT" envDefault:"8080"`

	Database DatabaseConfig
	Schedule ScheduleConfig
	Lock     LockConfig
	Report   ReportConfig
	HTTP     HTTPConfig
}

// aliases maps a canonical key to older names still accepted for it.
var aliases = map[string][]string{
	"POSTGRES_DSN":       {"DATABASE_URL"},
	"WORKER_CONCURRENCY": {"CONCURRENCY"},
	"AMQP_URL":           {"RABBITMQ_URL"},
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	return parse(environment())
}

func parse(vars map[string]string) (*Config, error) {
	applyAliases(vars)

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Schedule.Sources = trimList(cfg.Schedule.Sources)

	return cfg, nil
}

func environment() map[string]string {
	vars := make(map[string]string)

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	return vars
}

func applyAliases(vars map[string]string) {
	for key, names := range aliases {
		if _, ok := vars[key]; ok {
			continue
		}

		for _, name := range names {
			if v, ok := vars[name]; ok {
				vars[key] = v

				break
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Schedule.RunInterval <= 0 && !c.Schedule.RunOnce {
		return fmt.Errorf("RUN_INTERVAL must be positive, got %s", c.Schedule.RunInterval)
	}

	if c.Schedule.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Schedule.WorkerConcurrency)
	}

	if c.Lock.TTL <= 0 {
		return fmt.Errorf("RUN_LOCK_TTL must be positive, got %s", c.Lock.TTL)
	}

	return nil
}

func trimList(in []string) []string {
	out := in[:0]

	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// IsLocal reports whether the process runs in a developer environment.
func (c *Config) IsLocal() bool {
	return c.AppEnv == "local"
}

// SourceEnabled reports whether name passes the SOURCES filter.
func (c *Config) SourceEnabled(name string) bool {
	if len(c.Schedule.Sources) == 0 {
		return true
	}

	for _, s := range c.Schedule.Sources {
		if strings.EqualFold(s, name) {
			return true
		}
	}

	return false
}
