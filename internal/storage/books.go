package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
)

const selectBookByFingerprint = `
SELECT b.id, b.fingerprint, b.title, b.description, b.isbn, b.publication_year, b.pages_count,
       b.file_size, b.language, b.format, b.image_url, b.category_id, c.name, b.publisher_id, p.name,
       h.md5, h.sha1, h.sha256, h.crc32, h.ed2k, h.btih, h.magnet,
       b.created_at, b.updated_at
FROM books b
LEFT JOIN categories c ON c.id = b.category_id
LEFT JOIN publishers p ON p.id = b.publisher_id
LEFT JOIN book_hashes h ON h.book_id = b.id
WHERE b.fingerprint = $1`

type bookRow struct {
	ID              int64
	Fingerprint     string
	Title           string
	Description     pgtype.Text
	ISBN            pgtype.Text
	PublicationYear pgtype.Int4
	PagesCount      pgtype.Int4
	FileSize        pgtype.Int8
	Language        pgtype.Text
	Format          pgtype.Text
	ImageURL        pgtype.Text
	CategoryID      pgtype.Int8
	Category        pgtype.Text
	PublisherID     pgtype.Int8
	Publisher       pgtype.Text
	MD5             pgtype.Text
	SHA1            pgtype.Text
	SHA256          pgtype.Text
	CRC32           pgtype.Text
	ED2K            pgtype.Text
	BTIH            pgtype.Text
	Magnet          pgtype.Text
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

func (r bookRow) toDomain() *domain.Book {
	return &domain.Book{
		ID:              r.ID,
		Fingerprint:     r.Fingerprint,
		Title:           r.Title,
		Description:     fromText(r.Description),
		ISBN:            fromText(r.ISBN),
		PublicationYear: fromInt4(r.PublicationYear),
		PagesCount:      fromInt4(r.PagesCount),
		FileSize:        fromInt8(r.FileSize),
		Language:        fromText(r.Language),
		Format:          fromText(r.Format),
		ImageURL:        fromText(r.ImageURL),
		CategoryID:      fromInt8(r.CategoryID),
		Category:        fromText(r.Category),
		PublisherID:     fromInt8(r.PublisherID),
		Publisher:       fromText(r.Publisher),
		Hashes: domain.HashBundle{
			MD5:    fromText(r.MD5),
			SHA1:   fromText(r.SHA1),
			SHA256: fromText(r.SHA256),
			CRC32:  fromText(r.CRC32),
			ED2K:   fromText(r.ED2K),
			BTIH:   fromText(r.BTIH),
			Magnet: fromText(r.Magnet),
		},
		CreatedAt: fromTimestamptz(r.CreatedAt),
		UpdatedAt: fromTimestamptz(r.UpdatedAt),
	}
}

// FindBookByFingerprint loads a book with its hashes, authors and images.
// It returns nil, nil when no book has the fingerprint.
func (db *DB) FindBookByFingerprint(ctx context.Context, fingerprint string) (*domain.Book, error) {
	var r bookRow

	err := db.Pool.QueryRow(ctx, selectBookByFingerprint, fingerprint).Scan(
		&r.ID, &r.Fingerprint, &r.Title, &r.Description, &r.ISBN, &r.PublicationYear, &r.PagesCount,
		&r.FileSize, &r.Language, &r.Format, &r.ImageURL, &r.CategoryID, &r.Category, &r.PublisherID, &r.Publisher,
		&r.MD5, &r.SHA1, &r.SHA256, &r.CRC32, &r.ED2K, &r.BTIH, &r.Magnet,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("find book by fingerprint: %w", err)
	}

	book := r.toDomain()

	rows, err := db.Pool.Query(ctx, `
		SELECT a.name FROM book_authors ba
		JOIN authors a ON a.id = ba.author_id
		WHERE ba.book_id = $1
		ORDER BY ba.position`, book.ID)
	if err != nil {
		return nil, fmt.Errorf("load book authors: %w", err)
	}

	book.Authors, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan book authors: %w", err)
	}

	rows, err = db.Pool.Query(ctx, `SELECT url FROM book_images WHERE book_id = $1 ORDER BY id`, book.ID)
	if err != nil {
		return nil, fmt.Errorf("load book images: %w", err)
	}

	book.Images, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan book images: %w", err)
	}

	return book, nil
}

// SourceLinkExists reports whether the (book, source, external id) link is stored.
func (db *DB) SourceLinkExists(ctx context.Context, bookID int64, sourceName, externalID string) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM book_sources
			WHERE book_id = $1 AND source_name = $2 AND source_external_id = $3
		)`, bookID, sourceName, externalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check source link: %w", err)
	}

	return exists, nil
}

// CreateBook inserts the book and its hash bundle in one transaction.
// A taken fingerprint yields errors.ErrDuplicateFingerprint.
func (db *DB) CreateBook(ctx context.Context, book *domain.Book) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin create book: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id int64

	err = tx.QueryRow(ctx, `
		INSERT INTO books (fingerprint, title, description, isbn, publication_year, pages_count,
		                   file_size, language, format, image_url, category_id, publisher_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		book.Fingerprint, SanitizeUTF8(book.Title), toText(book.Description), toText(book.ISBN),
		toInt4(book.PublicationYear), toInt4(book.PagesCount), toInt8(book.FileSize),
		toText(book.Language), toText(book.Format), toText(book.ImageURL),
		toInt8(book.CategoryID), toInt8(book.PublisherID),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", mapUniqueViolation(err))
	}

	if !book.Hashes.IsEmpty() {
		if err := upsertHashes(ctx, tx, id, book.Hashes); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit create book: %w", mapUniqueViolation(err))
	}

	return id, nil
}

// upsertHashes stores digests, keeping every slot that is already populated.
func upsertHashes(ctx context.Context, tx pgx.Tx, bookID int64, h domain.HashBundle) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO book_hashes (book_id, md5, sha1, sha256, crc32, ed2k, btih, magnet)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (book_id) DO UPDATE SET
			md5    = COALESCE(book_hashes.md5, EXCLUDED.md5),
			sha1   = COALESCE(book_hashes.sha1, EXCLUDED.sha1),
			sha256 = COALESCE(book_hashes.sha256, EXCLUDED.sha256),
			crc32  = COALESCE(book_hashes.crc32, EXCLUDED.crc32),
			ed2k   = COALESCE(book_hashes.ed2k, EXCLUDED.ed2k),
			btih   = COALESCE(book_hashes.btih, EXCLUDED.btih),
			magnet = COALESCE(book_hashes.magnet, EXCLUDED.magnet)`,
		bookID, toText(h.MD5), toText(h.SHA1), toText(h.SHA256), toText(h.CRC32),
		toText(h.ED2K), toText(h.BTIH), toText(h.Magnet),
	)
	if err != nil {
		return fmt.Errorf("upsert book hashes: %w", err)
	}

	return nil
}

// UpdateBook fills empty columns from the patch. Populated columns are never
// overwritten, even when the patch was computed from a stale read.
func (db *DB) UpdateBook(ctx context.Context, bookID int64, patch domain.BookPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update book: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE books SET
			description      = COALESCE(NULLIF(description, ''), $2),
			isbn             = COALESCE(NULLIF(isbn, ''), $3),
			publication_year = COALESCE(NULLIF(publication_year, 0), $4),
			pages_count      = COALESCE(NULLIF(pages_count, 0), $5),
			file_size        = COALESCE(NULLIF(file_size, 0), $6),
			image_url        = COALESCE(NULLIF(image_url, ''), $7),
			category_id      = COALESCE(category_id, $8),
			publisher_id     = COALESCE(publisher_id, $9),
			updated_at       = $10
		WHERE id = $1`,
		bookID, toText(patch.Description), toText(patch.ISBN), toInt4(patch.PublicationYear),
		toInt4(patch.PagesCount), toInt8(patch.FileSize), toText(patch.ImageURL),
		toInt8(patch.CategoryID), toInt8(patch.PublisherID), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update book %d: %w", bookID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update book %d: %w", bookID, coreerrors.ErrBookNotFound)
	}

	if !patch.Hashes.IsEmpty() {
		if err := upsertHashes(ctx, tx, bookID, patch.Hashes); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update book: %w", err)
	}

	return nil
}

// CreateSourceLink stores the link and returns false when it already exists.
func (db *DB) CreateSourceLink(ctx context.Context, link domain.SourceLink) (bool, error) {
	discovered := link.DiscoveredAt
	if discovered.IsZero() {
		discovered = time.Now().UTC()
	}

	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO book_sources (book_id, source_name, source_external_id, download_url, discovered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (book_id, source_name, source_external_id) DO NOTHING`,
		link.BookID, link.SourceName, link.ExternalID, toText(link.DownloadURL), discovered,
	)
	if err != nil {
		return false, fmt.Errorf("insert source link: %w", mapUniqueViolation(err))
	}

	return tag.RowsAffected() == 1, nil
}

// LinkAuthors appends authors to the book in the given order, skipping ones already linked.
func (db *DB) LinkAuthors(ctx context.Context, bookID int64, authorIDs []int64) error {
	if len(authorIDs) == 0 {
		return nil
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO book_authors (book_id, author_id, position)
		SELECT $1, a.id, COALESCE((SELECT MAX(position) + 1 FROM book_authors WHERE book_id = $1), 0) + a.ord - 1
		FROM unnest($2::bigint[]) WITH ORDINALITY AS a(id, ord)
		ON CONFLICT (book_id, author_id) DO NOTHING`,
		bookID, authorIDs,
	)
	if err != nil {
		return fmt.Errorf("link authors to book %d: %w", bookID, err)
	}

	return nil
}

// AddImage records an image URL for the book once.
func (db *DB) AddImage(ctx context.Context, bookID int64, imageURL string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO book_images (book_id, url) VALUES ($1, $2)
		ON CONFLICT (book_id, url) DO NOTHING`, bookID, imageURL)
	if err != nil {
		return fmt.Errorf("add image to book %d: %w", bookID, err)
	}

	return nil
}
