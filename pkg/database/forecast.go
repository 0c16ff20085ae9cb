package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ForecastRow mirrors one line of an uploaded forecast dataset.
type ForecastRow struct {
	Admin1   string
	Total    float64
	Battles  float64
	ERV      float64
	Violence float64
}

// ReplaceForecast swaps in a full dataset under one label.  On
// PostgreSQL the rows stream through COPY; the file-based engines take
// the portable row-at-a-time path, which is fast enough for datasets
// sized in admin1 regions rather than events.
func (db *Database) ReplaceForecast(ctx context.Context, label string, rows []ForecastRow) error {
	if _, err := db.DB.ExecContext(ctx,
		db.rebind(`DELETE FROM forecast_rows WHERE label = ?`), label); err != nil {
		return fmt.Errorf("forecast clear: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	if db.Driver == "pgx" {
		return db.copyForecastRows(ctx, label, rows)
	}
	for _, row := range rows {
		if _, err := db.DB.ExecContext(ctx,
			db.rebind(`INSERT INTO forecast_rows (label, admin1, total, battles, erv, violence) VALUES (?, ?, ?, ?, ?, ?)`),
			label, row.Admin1, row.Total, row.Battles, row.ERV, row.Violence); err != nil {
			return fmt.Errorf("forecast insert: %w", err)
		}
	}
	return nil
}

// copyForecastRows streams rows into PostgreSQL with COPY.  The helper
// stays connection-local to avoid mutexes and lets the database
// enforce ordering.
func (db *Database) copyForecastRows(ctx context.Context, label string, rows []ForecastRow) error {
	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}
	defer conn.Close()

	data := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		data = append(data, []interface{}{
			label, row.Admin1, row.Total, row.Battles, row.ERV, row.Violence,
		})
	}

	copyErr := conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver %T", driverConn)
		}
		_, err := direct.Conn().CopyFrom(
			ctx,
			pgx.Identifier{"forecast_rows"},
			[]string{"label", "admin1", "total", "battles", "erv", "violence"},
			pgx.CopyFromRows(data),
		)
		return err
	})
	if copyErr != nil {
		return fmt.Errorf("copy forecast rows: %w", copyErr)
	}
	return nil
}

// GetForecast loads the rows stored under a label.
func (db *Database) GetForecast(ctx context.Context, label string) ([]ForecastRow, error) {
	rows, err := db.DB.QueryContext(ctx,
		db.rebind(`SELECT admin1, total, battles, erv, violence FROM forecast_rows WHERE label = ?`), label)
	if err != nil {
		return nil, fmt.Errorf("forecast get: %w", err)
	}
	defer rows.Close()

	var out []ForecastRow
	for rows.Next() {
		var row ForecastRow
		if err := rows.Scan(&row.Admin1, &row.Total, &row.Battles, &row.ERV, &row.Violence); err != nil {
			return nil, fmt.Errorf("forecast scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ForecastLabels lists the stored dataset labels.
func (db *Database) ForecastLabels(ctx context.Context) ([]string, error) {
	rows, err := db.DB.QueryContext(ctx,
		`SELECT DISTINCT label FROM forecast_rows ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("forecast labels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("forecast label scan: %w", err)
		}
		out = append(out, label)
	}
	return out, rows.Err()
}
