package db

import (
	"context"
	"fmt"
	"strings"

	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
)

// Taxonomy tables share the (id, name) shape with a unique index on lower(name).
const (
	tableAuthors    = "authors"
	tablePublishers = "publishers"
	tableCategories = "categories"
)

// UpsertAuthor returns the id of the author, creating it when needed.
func (db *DB) UpsertAuthor(ctx context.Context, name string) (int64, error) {
	return db.upsertNamed(ctx, tableAuthors, name)
}

// UpsertCategory returns the id of the category, creating it when needed.
func (db *DB) UpsertCategory(ctx context.Context, name string) (int64, error) {
	return db.upsertNamed(ctx, tableCategories, name)
}

// UpsertPublisher returns the id of the publisher, creating it when needed.
func (db *DB) UpsertPublisher(ctx context.Context, name string) (int64, error) {
	return db.upsertNamed(ctx, tablePublishers, name)
}

// upsertNamed matches names case-insensitively; the first spelling stored wins.
func (db *DB) upsertNamed(ctx context.Context, table, name string) (int64, error) {
	name = SanitizeUTF8(strings.TrimSpace(name))
	if name == "" {
		return 0, fmt.Errorf("upsert %s: %w: empty name", table, coreerrors.ErrInvalidInput)
	}

	// table is one of the constants above, never user input.
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (name) VALUES ($1)
		ON CONFLICT ((lower(name))) DO UPDATE SET name = %[1]s.name
		RETURNING id`, table)

	var id int64
	if err := db.Pool.QueryRow(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert %s: %w", table, err)
	}

	return id, nil
}
