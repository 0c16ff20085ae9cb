package database

import (
	"context"
	"fmt"
	"time"
)

// InteractionRecord is the stored form of one interaction: the id and
// category for indexing plus the full JSON document.
type InteractionRecord struct {
	ID       string
	Category string
	Payload  []byte
}

// UpsertInteraction stores or replaces one interaction document.
func (db *Database) UpsertInteraction(ctx context.Context, rec InteractionRecord) error {
	now := time.Now().Unix()
	if _, err := db.DB.ExecContext(ctx,
		db.rebind(`DELETE FROM interactions WHERE id = ?`), rec.ID); err != nil {
		return fmt.Errorf("interaction clear: %w", err)
	}
	if _, err := db.DB.ExecContext(ctx,
		db.rebind(`INSERT INTO interactions (id, category, payload, updated_at) VALUES (?, ?, ?, ?)`),
		rec.ID, rec.Category, string(rec.Payload), now); err != nil {
		return fmt.Errorf("interaction put: %w", err)
	}
	return nil
}

// ListInteractions returns every stored interaction document in
// insertion-time order.
func (db *Database) ListInteractions(ctx context.Context) ([]InteractionRecord, error) {
	rows, err := db.DB.QueryContext(ctx,
		`SELECT id, category, payload FROM interactions ORDER BY updated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("interactions list: %w", err)
	}
	defer rows.Close()

	var out []InteractionRecord
	for rows.Next() {
		var (
			rec     InteractionRecord
			payload string
		)
		if err := rows.Scan(&rec.ID, &rec.Category, &payload); err != nil {
			return nil, fmt.Errorf("interactions scan: %w", err)
		}
		rec.Payload = []byte(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}
