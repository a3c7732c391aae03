// CLAUDE:SUMMARY SQLite run ledger implemented as a sink: records every route outcome and run summary, flags unchanged snapshots.
// Package ledger records runs and per-route outcomes in SQLite. It is a
// sink: attach it to the pipeline and every event lands in route_outcomes,
// every summary in runs. A success whose HTML hash equals the previous
// successful capture of the same path is logged as unchanged.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/snapgen/idgen"
	"github.com/hazyhaar/snapgen/prerender/route"
)

// Ledger is the SQLite-backed run history.
type Ledger struct {
	db        *sql.DB
	ownsDB    bool
	logger    *slog.Logger
	unchanged atomic.Int64
}

// Open opens (or creates) the ledger database at path.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	l := New(db, logger)
	l.ownsDB = true
	return l, nil
}

// New wraps an open database that already carries Schema.
func New(db *sql.DB, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: db, logger: logger}
}

// Unchanged returns how many successes in this process matched the
// previous capture byte for byte.
func (l *Ledger) Unchanged() int64 { return l.unchanged.Load() }

// SendResult records one route outcome.
func (l *Ledger) SendResult(ctx context.Context, ev route.Event) error {
	if ev.Outcome == route.Success && ev.HTMLHash != "" {
		prev, err := l.PreviousHash(ctx, ev.Route.Path, ev.RunID)
		if err != nil {
			l.logger.Warn("ledger: previous hash", "route", ev.Route.Path, "error", err)
		} else if prev == ev.HTMLHash {
			l.unchanged.Add(1)
			l.logger.Info("ledger: unchanged", "route", ev.Route.Path, "hash", ev.HTMLHash)
		}
	}

	ts := ev.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO runs (id, started_at) VALUES (?, ?)`,
			ev.RunID, ts); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO route_outcomes
				(run_id, idx, path, kind, outcome, detail, output_path, html_hash, bytes, duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.RunID, ev.Index, ev.Route.Path, string(ev.Route.Kind), string(ev.Outcome),
			ev.Detail, ev.OutputPath, ev.HTMLHash, ev.Bytes, ev.Duration.Milliseconds(), ts)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger: record %s: %w", ev.Route.Path, err)
	}
	return nil
}

// SendSummary upserts the run row.
func (l *Ledger) SendSummary(ctx context.Context, sum route.Summary) error {
	started := sum.Started
	if started.IsZero() {
		if t, err := idgen.RunTime(sum.RunID); err == nil {
			started = t
		} else {
			started = time.Now()
		}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, total, succeeded, skipped, failed, fatal, exit_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at  = excluded.started_at,
			finished_at = excluded.finished_at,
			total       = excluded.total,
			succeeded   = excluded.succeeded,
			skipped     = excluded.skipped,
			failed      = excluded.failed,
			fatal       = excluded.fatal,
			exit_code   = excluded.exit_code`,
		sum.RunID, started.UnixMilli(), sum.Finished.UnixMilli(), sum.Total, sum.Succeeded,
		sum.Skipped, sum.Failed, sum.Fatal, sum.ExitCode)
	if err != nil {
		return fmt.Errorf("ledger: record run %s: %w", sum.RunID, err)
	}
	return nil
}

// Close closes the database when the ledger opened it.
func (l *Ledger) Close() error {
	if l.ownsDB {
		return l.db.Close()
	}
	return nil
}

// PreviousHash returns the HTML hash of the latest successful capture of
// path in a run other than runID. Empty when there is none.
func (l *Ledger) PreviousHash(ctx context.Context, path, runID string) (string, error) {
	var hash string
	err := l.db.QueryRowContext(ctx, `
		SELECT html_hash FROM route_outcomes
		WHERE path = ? AND outcome = 'success' AND run_id != ?
		ORDER BY created_at DESC
		LIMIT 1`, path, runID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Run is one row of the runs table.
type Run struct {
	ID        string
	Started   time.Time
	Finished  time.Time
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	Fatal     string
	ExitCode  int
}

// Runs returns the latest runs, newest first.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, started_at, COALESCE(finished_at, 0), total, succeeded, skipped, failed, fatal, COALESCE(exit_code, -1)
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.Total, &r.Succeeded,
			&r.Skipped, &r.Failed, &r.Fatal, &r.ExitCode); err != nil {
			return nil, err
		}
		r.Started = time.UnixMilli(started)
		if finished > 0 {
			r.Finished = time.UnixMilli(finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcome is one row of route_outcomes.
type Outcome struct {
	RunID    string
	Index    int
	Path     string
	Kind     route.Kind
	Outcome  route.Outcome
	Detail   string
	HTMLHash string
}

// Outcomes returns the outcomes of one run in crawl order.
func (l *Ledger) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, idx, path, kind, outcome, detail, html_hash
		FROM route_outcomes
		WHERE run_id = ?
		ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var kind, outcome string
		if err := rows.Scan(&o.RunID, &o.Index, &o.Path, &kind, &outcome, &o.Detail, &o.HTMLHash); err != nil {
			return nil, err
		}
		o.Kind = route.Kind(kind)
		o.Outcome = route.Outcome(outcome)
		out = append(out, o)
	}
	return out, rows.Err()
}
