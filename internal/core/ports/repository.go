// Package ports provides domain-centric interfaces for external dependencies.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern,
// allowing business logic to remain independent of infrastructure concerns.
package ports

import (
	"context"
	"time"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

// BookReader looks up existing books.
type BookReader interface {
	// FindBookByFingerprint returns nil, nil when no book has the fingerprint.
	FindBookByFingerprint(ctx context.Context, fingerprint string) (*domain.Book, error)
	SourceLinkExists(ctx context.Context, bookID int64, sourceName, externalID string) (bool, error)
}

// BookWriter creates and enriches books.
type BookWriter interface {
	// CreateBook inserts the book row and its hash bundle. It returns
	// errors.ErrDuplicateFingerprint when the fingerprint is already taken.
	CreateBook(ctx context.Context, book *domain.Book) (int64, error)
	// UpdateBook fills empty columns of the book from the patch.
	UpdateBook(ctx context.Context, bookID int64, patch domain.BookPatch) error
	// CreateSourceLink returns false without error when the link already exists.
	CreateSourceLink(ctx context.Context, link domain.SourceLink) (bool, error)
	LinkAuthors(ctx context.Context, bookID int64, authorIDs []int64) error
	AddImage(ctx context.Context, bookID int64, imageURL string) error
}

// TaxonomyRepository upserts the named entities linked to books.
type TaxonomyRepository interface {
	UpsertAuthor(ctx context.Context, name string) (int64, error)
	UpsertCategory(ctx context.Context, name string) (int64, error)
	UpsertPublisher(ctx context.Context, name string) (int64, error)
}

// BookRepository is the storage surface used by the reconciler.
type BookRepository interface {
	BookReader
	BookWriter
	TaxonomyRepository
}

// CursorRepository persists iteration positions and answers gap queries.
type CursorRepository interface {
	// GetRunCursor returns nil, nil when the source has never run.
	GetRunCursor(ctx context.Context, sourceName string) (*domain.RunCursor, error)
	SaveRunCursor(ctx context.Context, cursor *domain.RunCursor) error
	// MaxExternalID returns the largest numeric external id linked for the source.
	MaxExternalID(ctx context.Context, sourceName string) (int64, bool, error)
	// FindMissingExternalIDs returns ids in [1, before) that have neither a source link
	// nor an unresolved failure record, in ascending order, at most limit of them.
	FindMissingExternalIDs(ctx context.Context, sourceName string, before int64, limit int) ([]int64, error)
}

// FailureRepository stores the failure audit trail.
type FailureRepository interface {
	RecordFailure(ctx context.Context, failure domain.FailureRecord) error
	ResolveFailures(ctx context.Context, sourceName, externalID string) (int64, error)
}

// SourceRegistry records the sources known to the system.
type SourceRegistry interface {
	RegisterSource(ctx context.Context, cfg *domain.SourceConfig) error
}

// RunRepository stores run summaries.
type RunRepository interface {
	SaveRun(ctx context.Context, summary domain.RunSummary) error
}

// Store is everything the runner needs from persistence.
type Store interface {
	BookRepository
	CursorRepository
	FailureRepository
	SourceRegistry
	RunRepository
}

// RunLocker provides per-source mutual exclusion for runs.
type RunLocker interface {
	// Acquire returns errors.ErrLockHeld when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Reporter publishes the summary of a finished run.
type Reporter interface {
	Report(ctx context.Context, summary domain.RunSummary) error
}
