package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetBoundary returns a cached boundary payload by URL.  A miss is not
// an error.
func (db *Database) GetBoundary(ctx context.Context, url string) ([]byte, bool, error) {
	var payload string
	err := db.DB.QueryRowContext(ctx,
		db.rebind(`SELECT payload FROM boundary_cache WHERE url = ?`), url).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("boundary cache get: %w", err)
	}
	return []byte(payload), true, nil
}

// PutBoundary stores a boundary payload, replacing any previous copy.
func (db *Database) PutBoundary(ctx context.Context, url string, payload []byte) error {
	now := time.Now().Unix()
	// Delete-then-insert runs identically on every engine; upsert
	// syntax does not.
	if _, err := db.DB.ExecContext(ctx,
		db.rebind(`DELETE FROM boundary_cache WHERE url = ?`), url); err != nil {
		return fmt.Errorf("boundary cache clear: %w", err)
	}
	if _, err := db.DB.ExecContext(ctx,
		db.rebind(`INSERT INTO boundary_cache (url, payload, fetched_at) VALUES (?, ?, ?)`),
		url, string(payload), now); err != nil {
		return fmt.Errorf("boundary cache put: %w", err)
	}
	return nil
}
