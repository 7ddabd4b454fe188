package db

import (
	"context"
	"fmt"
	"time"

	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
	"github.com/lueurxax/book-harvester/internal/core/ports"
)

// Acquire takes a session advisory lock on key. The lock lives on a dedicated
// pool connection until release is called; ttl is not used since PostgreSQL
// drops session locks when the connection closes.
func (db *DB) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for lock %s: %w", key, err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&acquired); err != nil {
		conn.Release()

		return nil, fmt.Errorf("try advisory lock %s: %w", key, err)
	}

	if !acquired {
		conn.Release()

		return nil, fmt.Errorf("%w: %s", coreerrors.ErrLockHeld, key)
	}

	release := func() {
		defer conn.Release()

		if _, err := conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
			db.Logger.Warn().Err(err).Str("key", key).Msg("failed to release advisory lock")
		}
	}

	return release, nil
}

var (
	_ ports.Store     = (*DB)(nil)
	_ ports.RunLocker = (*DB)(nil)
)
