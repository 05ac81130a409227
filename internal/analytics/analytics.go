// Package analytics keeps a local SQLite log of weekly tracker metrics so
// digests survive restarts and can be compared over time.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/rpz-tools/taskbot/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS weekly_metrics (
	week_start  TEXT PRIMARY KEY,
	created     INTEGER NOT NULL,
	assigned    INTEGER NOT NULL,
	completed   INTEGER NOT NULL,
	overdue     INTEGER NOT NULL,
	stale       INTEGER NOT NULL,
	operational INTEGER NOT NULL,
	recorded_at TEXT NOT NULL DEFAULT (datetime('now'))
);`

// Log is the metrics store.
type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the metrics database at path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create analytics dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init analytics schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Record upserts the metrics row for a week. Re-running a weekly digest
// overwrites the previous numbers for the same week.
func (l *Log) Record(ctx context.Context, m report.WeekMetrics) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO weekly_metrics (week_start, created, assigned, completed, overdue, stale, operational)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(week_start) DO UPDATE SET
	created = excluded.created,
	assigned = excluded.assigned,
	completed = excluded.completed,
	overdue = excluded.overdue,
	stale = excluded.stale,
	operational = excluded.operational,
	recorded_at = datetime('now')`,
		m.WeekStart, m.Created, m.Assigned, m.Completed, m.Overdue, m.Stale, m.Operational)
	if err != nil {
		return fmt.Errorf("record weekly metrics: %w", err)
	}
	return nil
}

// Last returns the most recently recorded weeks, newest first.
func (l *Log) Last(ctx context.Context, n int) ([]report.WeekMetrics, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT week_start, created, assigned, completed, overdue, stale, operational
FROM weekly_metrics ORDER BY week_start DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query weekly metrics: %w", err)
	}
	defer rows.Close()

	var out []report.WeekMetrics
	for rows.Next() {
		var m report.WeekMetrics
		if err := rows.Scan(&m.WeekStart, &m.Created, &m.Assigned, &m.Completed, &m.Overdue, &m.Stale, &m.Operational); err != nil {
			return nil, fmt.Errorf("scan weekly metrics: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
