package reconcile

import (
	"context"
	"fmt"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

// descriptor describes one enrichable book field.
type descriptor struct {
	field string
	// coverage fields are counted when deciding whether a book needs enrichment.
	coverage bool
	missing  func(b *domain.Book) bool
	// fill writes the incoming value into the patch and reports whether it did.
	fill func(ctx context.Context, r *Reconciler, p *domain.BookPatch, rec domain.NormalizedRecord) (bool, error)
}

// descriptors is the ordered enrichment table, built once.
var descriptors = []descriptor{
	{
		field:    domain.FieldDescription,
		coverage: true,
		missing:  func(b *domain.Book) bool { return b.Description == "" },
		fill: func(_ context.Context, _ *Reconciler, p *domain.BookPatch, rec domain.NormalizedRecord) (bool, error) {
			p.Description = rec.Description
			return rec.Description != "", nil
		},
	},
	{
		field:    domain.FieldPublicationYear,
		coverage: true,
		missing:  func(b *domain.Book) bool { return b.PublicationYear == 0 },
		fill: func(_ context.Context, _ *Reconciler, p *domain.BookPatch, rec domain.NormalizedRecord) (bool, error) {
			p.PublicationYear = rec.PublicationYear
			return rec.PublicationYear != 0, nil
		},
	},
	{
		field:    domain.FieldPagesCount,
		coverage: true,
		missing:  func(b *domain.Book) bool { return b.PagesCount == 0 },
		fill: func(_ context.Context, _ *Reconciler, p *domain.BookPatch, rec domain.NormalizedRecord) (bool, error) {
			p.PagesCount = rec.PagesCount
			return rec.PagesCount != 0, nil
		},
	},
	{
		field:    domain.FieldISBN,
		coverage: true,
		missing:  func(b *domain.Book) bool { return b.ISBN == "" },
		fill: func(_ context.Context, _ *Reconciler, p *domain.BookPatch, rec domain.NormalizedRecord) (bool, error) {
			p.ISBN = rec.ISBN
			return rec.ISBN != "", nil
		},
	},
	{
		field:    domain.FieldMD5,
		coverage: true,
		missing:  func(b *domain.Book) bool { return b.Hashes.MD5 == "" },
		fill:     nil, // hashes are filled slot by slot below
	},
	{
		field:    domain.FieldAuthor,
		coverage: true,
		missing:  func(b *domain.Book) bool { return len(b.Authors) == 0 },
		fill:     nil, // authors are appended, not patched
	},
	{
		field:   domain.FieldFileSize,
		missing: func(b *domain.Book) bool { return b.FileSize == 0 },
		fill: func(_ context.Context, _ *Reconciler, p *domain.BookPatch, rec domain.NormalizedRecord) (bool, error) {
			p.FileSize = rec.FileSize
			return rec.FileSize != 0, nil
		},
	},
	{
		field:   domain.FieldImageURL,
		missing: func(b *domain.Book) bool { return b.ImageURL == "" },
		fill: func(_ context.Context, _ *Reconciler, p *domain.BookPatch, rec domain.NormalizedRecord) (bool, error) {
			p.ImageURL = rec.ImageURL
			return rec.ImageURL != "", nil
		},
	},
	{
		field:   domain.FieldCategory,
		missing: func(b *domain.Book) bool { return b.CategoryID == 0 },
		fill: func(ctx context.Context, r *Reconciler, p *domain.BookPatch, rec domain.NormalizedRecord) (bool, error) {
			if rec.Category == "" {
				return false, nil
			}

			id, err := r.repo.UpsertCategory(ctx, rec.Category)
			if err != nil {
				return false, fmt.Errorf("upsert category: %w", err)
			}

			p.CategoryID = id

			return true, nil
		},
	},
	{
		field:   domain.FieldPublisher,
		missing: func(b *domain.Book) bool { return b.PublisherID == 0 },
		fill: func(ctx context.Context, r *Reconciler, p *domain.BookPatch, rec domain.NormalizedRecord) (bool, error) {
			if rec.Publisher == "" {
				return false, nil
			}

			id, err := r.repo.UpsertPublisher(ctx, rec.Publisher)
			if err != nil {
				return false, fmt.Errorf("upsert publisher: %w", err)
			}

			p.PublisherID = id

			return true, nil
		},
	},
}

// missingCoverage counts the empty coverage fields of a book.
func missingCoverage(b *domain.Book) int {
	n := 0

	for _, d := range descriptors {
		if d.coverage && d.missing(b) {
			n++
		}
	}

	return n
}

// buildPatch collects every empty field of b that rec can fill.
func (r *Reconciler) buildPatch(ctx context.Context, b *domain.Book, rec domain.NormalizedRecord) (domain.BookPatch, []string, error) {
	var (
		patch  domain.BookPatch
		filled []string
	)

	for _, d := range descriptors {
		if d.fill == nil || !d.missing(b) {
			continue
		}

		ok, err := d.fill(ctx, r, &patch, rec)
		if err != nil {
			return domain.BookPatch{}, nil, err
		}

		if ok {
			filled = append(filled, d.field)
		}
	}

	patch.Hashes = b.Hashes.Missing(rec.Hashes)
	if _, slots := (domain.HashBundle{}).FillEmpty(patch.Hashes); len(slots) > 0 {
		filled = append(filled, slots...)
	}

	return patch, filled, nil
}
