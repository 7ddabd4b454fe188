package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

// GetRunCursor returns the stored position of a source or nil when it never ran.
func (db *DB) GetRunCursor(ctx context.Context, sourceName string) (*domain.RunCursor, error) {
	c := domain.RunCursor{SourceName: sourceName}

	var updatedAt pgtype.Timestamptz

	err := db.Pool.QueryRow(ctx, `
		SELECT next_id, next_page, last_successful_external_id,
		       processed, created, enhanced, source_added, duplicate, failed, updated_at
		FROM run_cursors WHERE source_name = $1`, sourceName,
	).Scan(
		&c.NextID, &c.NextPage, &c.LastSuccessfulExternalID,
		&c.Stats.Processed, &c.Stats.Created, &c.Stats.Enhanced, &c.Stats.SourceAdded,
		&c.Stats.Duplicate, &c.Stats.Failed, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get run cursor %s: %w", sourceName, err)
	}

	c.UpdatedAt = fromTimestamptz(updatedAt)

	return &c, nil
}

// SaveRunCursor upserts the position and counters of a source.
func (db *DB) SaveRunCursor(ctx context.Context, c *domain.RunCursor) error {
	c.UpdatedAt = time.Now().UTC()

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO run_cursors (source_name, next_id, next_page, last_successful_external_id,
		                         processed, created, enhanced, source_added, duplicate, failed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source_name) DO UPDATE SET
			next_id                     = EXCLUDED.next_id,
			next_page                   = EXCLUDED.next_page,
			last_successful_external_id = EXCLUDED.last_successful_external_id,
			processed                   = EXCLUDED.processed,
			created                     = EXCLUDED.created,
			enhanced                    = EXCLUDED.enhanced,
			source_added                = EXCLUDED.source_added,
			duplicate                   = EXCLUDED.duplicate,
			failed                      = EXCLUDED.failed,
			updated_at                  = EXCLUDED.updated_at`,
		c.SourceName, c.NextID, c.NextPage, c.LastSuccessfulExternalID,
		c.Stats.Processed, c.Stats.Created, c.Stats.Enhanced, c.Stats.SourceAdded,
		c.Stats.Duplicate, c.Stats.Failed, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run cursor %s: %w", c.SourceName, err)
	}

	return nil
}

// MaxExternalID returns the largest numeric external id linked for the source.
func (db *DB) MaxExternalID(ctx context.Context, sourceName string) (int64, bool, error) {
	var maxID pgtype.Int8

	err := db.Pool.QueryRow(ctx, `
		SELECT MAX(source_external_id::bigint)
		FROM book_sources
		WHERE source_name = $1 AND source_external_id ~ '^[0-9]{1,18}$'`, sourceName,
	).Scan(&maxID)
	if err != nil {
		return 0, false, fmt.Errorf("max external id %s: %w", sourceName, err)
	}

	return maxID.Int64, maxID.Valid, nil
}

// FindMissingExternalIDs lists ids below before that have neither a source
// link nor an unresolved failure record.
func (db *DB) FindMissingExternalIDs(ctx context.Context, sourceName string, before int64, limit int) ([]int64, error) {
	if before <= 1 || limit <= 0 {
		return nil, nil
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT g.id
		FROM generate_series(1::bigint, $2::bigint - 1) AS g(id)
		WHERE NOT EXISTS (
			SELECT 1 FROM book_sources bs
			WHERE bs.source_name = $1 AND bs.source_external_id = g.id::text
		)
		AND NOT EXISTS (
			SELECT 1 FROM failure_records f
			WHERE f.source_name = $1 AND f.external_id = g.id::text AND NOT f.resolved
		)
		ORDER BY g.id
		LIMIT $3`, sourceName, before, limit)
	if err != nil {
		return nil, fmt.Errorf("find missing external ids %s: %w", sourceName, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan missing external ids: %w", err)
	}

	return ids, nil
}
