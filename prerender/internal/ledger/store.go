package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// schemaVersion is stored in PRAGMA user_version. A database written by a
// newer build is refused rather than silently misread.
const schemaVersion = 1

const memoryPath = ":memory:"

// txAttempts bounds retries of a ledger write on SQLITE_BUSY. Two
// prerender processes sharing a ledger (watch mode plus a manual run)
// contend on the WAL lock.
const txAttempts = 3

// openDB opens the ledger database: WAL journal, foreign keys on, a busy
// timeout shorter than one route's render so a stuck writer surfaces as a
// sink error instead of stalling the crawl.
func openDB(path string) (*sql.DB, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	if path == memoryPath {
		// every connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	}

	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func prepare(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("ledger: %s: %w", p, err)
		}
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("ledger: read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("ledger: schema version %d is newer than supported %d", version, schemaVersion)
	}
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("ledger: apply schema: %w", err)
	}
	if version < schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("ledger: set schema version: %w", err)
		}
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withTx runs fn in a transaction, retrying on SQLITE_BUSY with a linear
// backoff of 100ms per attempt.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		if err = txOnce(ctx, db, fn); err == nil || !isBusy(err) {
			return err
		}
		if attempt == txAttempts {
			break
		}
		t := time.NewTimer(time.Duration(attempt) * 100 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("ledger: busy retry: %w", ctx.Err())
		case <-t.C:
		}
	}
	return err
}

func txOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
