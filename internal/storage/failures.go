package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

// RecordFailure appends an entry to the failure audit trail.
func (db *DB) RecordFailure(ctx context.Context, f domain.FailureRecord) error {
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO failure_records (source_name, external_id, reason, http_status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		f.SourceName, f.ExternalID, SanitizeUTF8(f.Reason), toInt4(f.HTTPStatus), created,
	)
	if err != nil {
		return fmt.Errorf("record failure %s/%s: %w", f.SourceName, f.ExternalID, err)
	}

	return nil
}

// ResolveFailures marks open failure records of the external id as resolved.
func (db *DB) ResolveFailures(ctx context.Context, sourceName, externalID string) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE failure_records SET resolved = TRUE, resolved_at = now()
		WHERE source_name = $1 AND external_id = $2 AND NOT resolved`,
		sourceName, externalID,
	)
	if err != nil {
		return 0, fmt.Errorf("resolve failures %s/%s: %w", sourceName, externalID, err)
	}

	return tag.RowsAffected(), nil
}
