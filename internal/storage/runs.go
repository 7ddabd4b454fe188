package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

type addressRangeJSON struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// RegisterSource upserts the descriptive row of a source.
func (db *DB) RegisterSource(ctx context.Context, cfg *domain.SourceConfig) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO sources (name, kind, base_url, address_mode)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			kind         = EXCLUDED.kind,
			base_url     = EXCLUDED.base_url,
			address_mode = EXCLUDED.address_mode,
			updated_at   = now()`,
		cfg.Name, string(cfg.Kind), cfg.BaseURL, string(cfg.Mode()),
	)
	if err != nil {
		return fmt.Errorf("register source %s: %w", cfg.Name, err)
	}

	return nil
}

// SaveRun stores the summary of a finished run.
func (db *DB) SaveRun(ctx context.Context, s domain.RunSummary) error {
	ranges := make([]addressRangeJSON, 0, len(s.MissingRanges))
	for _, r := range s.MissingRanges {
		ranges = append(ranges, addressRangeJSON(r))
	}

	rangesJSON, err := json.Marshal(ranges)
	if err != nil {
		return fmt.Errorf("marshal missing ranges: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO runs (id, source_name, started_at, finished_at,
		                  processed, created, enhanced, source_added, duplicate, failed,
		                  first_address, last_address, gap_fill, missing_ranges, stopped_early, reached_end_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.RunID, s.SourceName, s.StartedAt, s.FinishedAt,
		s.Stats.Processed, s.Stats.Created, s.Stats.Enhanced, s.Stats.SourceAdded, s.Stats.Duplicate, s.Stats.Failed,
		s.FirstAddress, s.LastAddress, s.GapFill, rangesJSON, s.StoppedEarly, s.ReachedEndData,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", s.RunID, err)
	}

	return nil
}
