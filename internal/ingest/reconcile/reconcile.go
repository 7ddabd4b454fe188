// Package reconcile merges normalized records into the book catalogue.
//
// For every record the reconciler decides between creating a new book,
// enriching an existing one, attaching only a new source link, or reporting
// the record as already processed. Enrichment only fills empty fields and
// appends authors and hashes; it never overwrites a populated value.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
	"github.com/lueurxax/book-harvester/internal/core/ports"
	"github.com/lueurxax/book-harvester/internal/ingest/fingerprint"
	"github.com/lueurxax/book-harvester/internal/ingest/normalize"
	"github.com/lueurxax/book-harvester/internal/platform/observability"
)

// DefaultEnrichThreshold is the number of empty coverage fields that makes a book eligible for enrichment.
const DefaultEnrichThreshold = 2

const (
	reasonMissingTitle = "missing title"
	reasonStorage      = "storage error"
)

// Source identifies where a record came from and how it may be merged.
type Source struct {
	Name           string
	ExternalID     string
	ForceReprocess bool
	// EnrichThreshold overrides the reconciler default when positive.
	EnrichThreshold int
}

// SourceFor builds the merge identity of a record from its source configuration.
func SourceFor(cfg *domain.SourceConfig, externalID string) Source {
	return Source{
		Name:            cfg.Name,
		ExternalID:      externalID,
		ForceReprocess:  cfg.ForceReprocess,
		EnrichThreshold: cfg.EnrichThreshold,
	}
}

// Reconciler applies the merge rules against a book repository.
type Reconciler struct {
	repo      ports.BookRepository
	logger    *zerolog.Logger
	threshold int
	now       func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithEnrichThreshold sets the default enrichment threshold.
func WithEnrichThreshold(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// WithClock sets the clock used for discovered_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// New creates a reconciler.
func New(repo ports.BookRepository, logger *zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		repo:      repo,
		logger:    logger,
		threshold: DefaultEnrichThreshold,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Reconcile merges one record and returns exactly one outcome with its stats delta.
// Storage errors are reported as a failed outcome, never returned.
func (r *Reconciler) Reconcile(ctx context.Context, rec domain.NormalizedRecord, src Source) domain.ProcessResult {
	if src.ExternalID == "" {
		src.ExternalID = rec.ExternalID
	}

	if !rec.Valid() {
		return r.failed(src, rec, reasonMissingTitle, coreerrors.ErrMissingTitle)
	}

	fp := fingerprint.Of(rec)

	book, err := r.repo.FindBookByFingerprint(ctx, fp)
	if err != nil {
		return r.failed(src, rec, reasonStorage, fmt.Errorf("find book by fingerprint: %w", err))
	}

	if book == nil {
		id, err := r.create(ctx, rec, fp, src)

		switch {
		case err == nil:
			return r.result(src, rec, domain.OutcomeCreated, id)
		case !errors.Is(err, coreerrors.ErrDuplicateFingerprint):
			return r.failed(src, rec, reasonStorage, err)
		}

		// another unit created the same book first
		observability.ConflictRaces.Inc()

		book, err = r.repo.FindBookByFingerprint(ctx, fp)
		if err != nil {
			return r.failed(src, rec, reasonStorage, fmt.Errorf("reload raced book: %w", err))
		}

		if book == nil {
			return r.failed(src, rec, reasonStorage, fmt.Errorf("reload raced book: %w", coreerrors.ErrBookNotFound))
		}

		r.logger.Debug().
			Str("source", src.Name).
			Str("external_id", src.ExternalID).
			Int64("book_id", book.ID).
			Msg("fingerprint race lost, merging into existing book")
	}

	return r.merge(ctx, book, rec, src)
}

func (r *Reconciler) create(ctx context.Context, rec domain.NormalizedRecord, fp string, src Source) (int64, error) {
	book := &domain.Book{
		Fingerprint:     fp,
		Title:           rec.Title,
		Description:     rec.Description,
		ISBN:            rec.ISBN,
		PublicationYear: rec.PublicationYear,
		PagesCount:      rec.PagesCount,
		FileSize:        rec.FileSize,
		Language:        rec.Language,
		Format:          rec.Format,
		ImageURL:        rec.ImageURL,
		Hashes:          rec.Hashes,
	}

	if rec.Category != "" {
		id, err := r.repo.UpsertCategory(ctx, rec.Category)
		if err != nil {
			return 0, fmt.Errorf("upsert category: %w", err)
		}

		book.CategoryID = id
	}

	if rec.Publisher != "" {
		id, err := r.repo.UpsertPublisher(ctx, rec.Publisher)
		if err != nil {
			return 0, fmt.Errorf("upsert publisher: %w", err)
		}

		book.PublisherID = id
	}

	id, err := r.repo.CreateBook(ctx, book)
	if err != nil {
		return 0, fmt.Errorf("create book: %w", err)
	}

	if err := r.linkAuthors(ctx, id, normalize.MergeAuthors(nil, rec.Authors)); err != nil {
		return id, err
	}

	if rec.ImageURL != "" {
		if err := r.repo.AddImage(ctx, id, rec.ImageURL); err != nil {
			return id, fmt.Errorf("add image: %w", err)
		}
	}

	if _, err := r.addSourceLink(ctx, id, rec, src); err != nil {
		return id, err
	}

	return id, nil
}

func (r *Reconciler) merge(ctx context.Context, book *domain.Book, rec domain.NormalizedRecord, src Source) domain.ProcessResult {
	linked, err := r.repo.SourceLinkExists(ctx, book.ID, src.Name, src.ExternalID)
	if err != nil {
		return r.failed(src, rec, reasonStorage, fmt.Errorf("check source link: %w", err))
	}

	enriched := false

	if src.ForceReprocess || missingCoverage(book) >= r.thresholdFor(src) {
		enriched, err = r.enrich(ctx, book, rec, src)
		if err != nil {
			return r.failed(src, rec, reasonStorage, err)
		}
	}

	linkAdded := false

	if !linked {
		linkAdded, err = r.addSourceLink(ctx, book.ID, rec, src)
		if err != nil {
			return r.failed(src, rec, reasonStorage, err)
		}
	}

	switch {
	case enriched:
		return r.result(src, rec, domain.OutcomeEnhanced, book.ID)
	case linkAdded:
		return r.result(src, rec, domain.OutcomeSourceAdded, book.ID)
	default:
		return r.result(src, rec, domain.OutcomeAlreadyProcessed, book.ID)
	}
}

func (r *Reconciler) thresholdFor(src Source) int {
	if src.EnrichThreshold > 0 {
		return src.EnrichThreshold
	}

	return r.threshold
}

// enrich fills empty fields of book from rec and appends new authors.
func (r *Reconciler) enrich(ctx context.Context, book *domain.Book, rec domain.NormalizedRecord, src Source) (bool, error) {
	patch, filled, err := r.buildPatch(ctx, book, rec)
	if err != nil {
		return false, err
	}

	if !patch.IsEmpty() {
		if err := r.repo.UpdateBook(ctx, book.ID, patch); err != nil {
			return false, fmt.Errorf("update book: %w", err)
		}
	}

	if patch.ImageURL != "" {
		if err := r.repo.AddImage(ctx, book.ID, patch.ImageURL); err != nil {
			return false, fmt.Errorf("add image: %w", err)
		}
	}

	newAuthors := normalize.NewAuthors(book.Authors, rec.Authors)
	if err := r.linkAuthors(ctx, book.ID, newAuthors); err != nil {
		return false, err
	}

	if len(newAuthors) > 0 {
		filled = append(filled, domain.FieldAuthor)
	}

	if len(filled) == 0 {
		return false, nil
	}

	r.logger.Debug().
		Str("source", src.Name).
		Str("external_id", src.ExternalID).
		Int64("book_id", book.ID).
		Strs("fields", filled).
		Msg("book enriched")

	return true, nil
}

func (r *Reconciler) linkAuthors(ctx context.Context, bookID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(names))

	for _, name := range names {
		id, err := r.repo.UpsertAuthor(ctx, name)
		if err != nil {
			return fmt.Errorf("upsert author: %w", err)
		}

		ids = append(ids, id)
	}

	if err := r.repo.LinkAuthors(ctx, bookID, ids); err != nil {
		return fmt.Errorf("link authors: %w", err)
	}

	return nil
}

// addSourceLink reports false when the link already existed, including when a
// concurrent unit inserted it first.
func (r *Reconciler) addSourceLink(ctx context.Context, bookID int64, rec domain.NormalizedRecord, src Source) (bool, error) {
	created, err := r.repo.CreateSourceLink(ctx, domain.SourceLink{
		BookID:       bookID,
		SourceName:   src.Name,
		ExternalID:   src.ExternalID,
		DownloadURL:  rec.DownloadURL,
		DiscoveredAt: r.now(),
	})

	if errors.Is(err, coreerrors.ErrDuplicateSourceLink) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("create source link: %w", err)
	}

	return created, nil
}

func (r *Reconciler) result(src Source, rec domain.NormalizedRecord, outcome domain.Outcome, bookID int64) domain.ProcessResult {
	r.logger.Debug().
		Str("source", src.Name).
		Str("external_id", src.ExternalID).
		Int64("book_id", bookID).
		Str("outcome", string(outcome)).
		Msg("record reconciled")

	return domain.ProcessResult{
		ExternalID: src.ExternalID,
		Outcome:    outcome,
		Delta:      domain.DeltaFor(outcome),
		BookID:     bookID,
		Title:      rec.Title,
	}
}

func (r *Reconciler) failed(src Source, rec domain.NormalizedRecord, reason string, err error) domain.ProcessResult {
	event := r.logger.Warn()
	if reason == reasonStorage {
		event = r.logger.Error()
	}

	event.Err(err).
		Str("source", src.Name).
		Str("external_id", src.ExternalID).
		Str("reason", reason).
		Msg("record failed")

	return domain.ProcessResult{
		ExternalID: src.ExternalID,
		Outcome:    domain.OutcomeFailed,
		Delta:      domain.DeltaFor(domain.OutcomeFailed),
		Title:      rec.Title,
		Reason:     reason,
		Err:        err,
	}
}
