package config

import "time"

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	PostgresDSN       string        `env:"POSTGRES_DSN,required"`
	MaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	MinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// ScheduleConfig controls how often sources are harvested.
type ScheduleConfig struct {
	RunInterval time.Duration `env:"RUN_INTERVAL" envDefault:"1h"`
	RunOnce     bool          `env:"RUN_ONCE" envDefault:"false"`
	// Sources restricts a process to the named sources. Empty means all.
	Sources           []string `env:"SOURCES" envSeparator:","`
	SourcesFile       string   `env:"SOURCES_FILE" envDefault:"sources.yaml"`
	WorkerConcurrency int      `env:"WORKER_CONCURRENCY" envDefault:"4"`
}

// LockConfig selects the run lock backend. Redis is used when an address is
// set, PostgreSQL advisory locks otherwise.
type LockConfig struct {
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisPrefix   string        `env:"REDIS_LOCK_PREFIX" envDefault:"harvester:lock"`
	TTL           time.Duration `env:"RUN_LOCK_TTL" envDefault:"30m"`
}

// ReportConfig enables publishing run summaries to RabbitMQ.
type ReportConfig struct {
	AMQPURL        string `env:"AMQP_URL"`
	AMQPExchange   string `env:"AMQP_EXCHANGE" envDefault:"harvester"`
	AMQPRoutingKey string `env:"AMQP_ROUTING_KEY" envDefault:"run.finished"`
}

// HTTPConfig holds process-wide fetch defaults.
type HTTPConfig struct {
	UserAgent string `env:"HTTP_USER_AGENT" envDefault:"BookHarvester/1.0"`
}
