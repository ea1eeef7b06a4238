package db

import (
	"context"
	"database/sql"

	"github.com/teranos/DMS/errors"
)

// Stats holds row counts for the DMS tables
type Stats struct {
	Users            int            `json:"users"`
	Documents        int            `json:"documents"`
	IngestionLogs    int            `json:"ingestion_logs"`
	LogsByStatus     map[string]int `json:"logs_by_status"`
	AppliedMigration string         `json:"applied_migration"`
}

// CollectStats counts rows in each table of a migrated database
func CollectStats(ctx context.Context, db *sql.DB) (*Stats, error) {
	stats := &Stats{LogsByStatus: make(map[string]int)}

	counts := []struct {
		table string
		dest  *int
	}{
		{"users", &stats.Users},
		{"documents", &stats.Documents},
		{"ingestion_logs", &stats.IngestionLogs},
	}
	for _, c := range counts {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, errors.Wrapf(err, "count %s", c.table)
		}
	}

	rows, err := db.QueryContext(ctx, "SELECT status, COUNT(*) FROM ingestion_logs GROUP BY status")
	if err != nil {
		return nil, errors.Wrap(err, "count ingestion logs by status")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan status count")
		}
		stats.LogsByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate status counts")
	}

	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), '') FROM schema_migrations").Scan(&stats.AppliedMigration); err != nil {
		return nil, errors.Wrap(err, "read latest migration")
	}

	return stats, nil
}
