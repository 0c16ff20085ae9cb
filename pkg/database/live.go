package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReplaceLiveSnapshot overwrites the single stored live feed payload.
// The feed is replaced wholesale on every poll, so one row is all the
// history this table carries.
func (db *Database) ReplaceLiveSnapshot(ctx context.Context, payload []byte, fetchedAt time.Time) error {
	if _, err := db.DB.ExecContext(ctx, `DELETE FROM live_snapshot`); err != nil {
		return fmt.Errorf("live snapshot clear: %w", err)
	}
	if _, err := db.DB.ExecContext(ctx,
		db.rebind(`INSERT INTO live_snapshot (id, payload, fetched_at) VALUES (1, ?, ?)`),
		string(payload), fetchedAt.Unix()); err != nil {
		return fmt.Errorf("live snapshot put: %w", err)
	}
	return nil
}

// GetLiveSnapshot returns the stored feed payload, if any.
func (db *Database) GetLiveSnapshot(ctx context.Context) ([]byte, time.Time, bool, error) {
	var (
		payload   string
		fetchedAt int64
	)
	err := db.DB.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM live_snapshot WHERE id = 1`).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("live snapshot get: %w", err)
	}
	return []byte(payload), time.Unix(fetchedAt, 0).UTC(), true, nil
}
