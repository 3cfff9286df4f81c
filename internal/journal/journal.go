// Package journal keeps an in-memory SQLite log of outbound calls for the
// lifetime of the process. Nothing in it is read back by the engine.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"pharmatlas/internal/upstream"
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          INTEGER NOT NULL,
	service     TEXT    NOT NULL,
	target      TEXT    NOT NULL,
	outcome     TEXT    NOT NULL,
	duration_ms REAL    NOT NULL,
	detail      TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_calls_service_outcome ON calls(service, outcome);
`

// DefaultMaxRows bounds the journal when no explicit limit is given.
const DefaultMaxRows = 1000

// Entry is one journaled call.
type Entry struct {
	At         time.Time `json:"at"`
	Service    string    `json:"service"`
	Target     string    `json:"target"`
	Outcome    string    `json:"outcome"`
	DurationMS float64   `json:"duration_ms"`
	Detail     string    `json:"detail,omitempty"`
}

// Stat aggregates calls per service and outcome.
type Stat struct {
	Service       string  `json:"service"`
	Outcome       string  `json:"outcome"`
	Calls         int     `json:"calls"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

type Journal struct {
	db      *sql.DB
	maxRows int
	logger  *zap.Logger
}

// Open creates a fresh, private in-memory database.
func Open(maxRows int, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	dsn := fmt.Sprintf("file:journal-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// The database lives as long as one connection does.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Journal{db: db, maxRows: maxRows, logger: logger}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Observe implements upstream.Observer. Write failures are logged and dropped.
func (j *Journal) Observe(o upstream.Observation) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := j.Record(ctx, o); err != nil {
		j.logger.Warn("failed to journal upstream call",
			zap.String("service", o.Service),
			zap.Error(err))
	}
}

// Record inserts one observation and prunes rows beyond the configured bound.
func (j *Journal) Record(ctx context.Context, o upstream.Observation) error {
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO calls (at, service, target, outcome, duration_ms, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		at.UnixNano(), o.Service, o.Target, string(o.Outcome),
		float64(o.Duration)/float64(time.Millisecond), o.Detail)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM calls WHERE id <= (SELECT MAX(id) FROM calls) - ?`, j.maxRows)
	if err != nil {
		return fmt.Errorf("prune calls: %w", err)
	}

	return tx.Commit()
}

// Recent returns up to n calls, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT at, service, target, outcome, duration_ms, detail FROM calls ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			at int64
		)
		if err := rows.Scan(&at, &e.Service, &e.Target, &e.Outcome, &e.DurationMS, &e.Detail); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns call counts and mean latency grouped by service and outcome.
func (j *Journal) Stats(ctx context.Context) ([]Stat, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT service, outcome, COUNT(*), AVG(duration_ms)
		FROM calls
		GROUP BY service, outcome
		ORDER BY service, outcome`)
	if err != nil {
		return nil, fmt.Errorf("query call stats: %w", err)
	}
	defer rows.Close()

	stats := []Stat{}
	for rows.Next() {
		var s Stat
		if err := rows.Scan(&s.Service, &s.Outcome, &s.Calls, &s.AvgDurationMS); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
