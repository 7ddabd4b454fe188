package db

import "time"

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Database pool default constants
const (
	defaultMaxConns          int32         = 10
	defaultMinConns          int32         = 2
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)

// PostgreSQL error codes
const (
	pgUniqueViolation = "23505"
)

// Unique constraint names, see migrations.
const (
	constraintBookFingerprint = "books_fingerprint_key"
	constraintBookSource      = "book_sources_book_id_source_name_source_external_id_key"
)

const migrationLockID = 1000
