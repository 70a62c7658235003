// Package ledger implements the durable checkpoint ledger that makes
// pipeline runs resumable. One record per task, keyed by task identity,
// holding the terminal status and the fingerprints of the declared
// outputs at completion time.
//
// Uses SQLite with WAL mode. The connection pool is capped at a single
// connection so concurrent task completions serialize through one
// writer; each record commits in its own transaction, so a write either
// lands completely or the prior record is retained.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Acribbs/ONT-VC/internal/pipeline"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Record is the persisted completion state of one task.
type Record struct {
	TaskID       string
	Status       pipeline.Status
	Fingerprints map[string]pipeline.Fingerprint
	RunToken     string
	CompletedAt  time.Time
}

// Ledger is the durable checkpoint store.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path. Fails with a
// *LedgerError on unreadable or corrupt storage; callers abort pipeline
// start rather than proceed with an inconsistent ledger.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &LedgerError{Op: "open", Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &LedgerError{Op: "open", Err: err}
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY on concurrent task completions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// LoadRecords reads every record, keyed by task ID. Used at pipeline
// start to seed task statuses.
func (l *Ledger) LoadRecords(ctx context.Context) (map[string]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT task_id, status, fingerprints, run_token, completed_at
		FROM task_records
	`)
	if err != nil {
		return nil, &LedgerError{Op: "load", Err: err}
	}
	defer rows.Close()

	records := make(map[string]Record)
	for rows.Next() {
		var rec Record
		var status, fps, completedAt string
		if err := rows.Scan(&rec.TaskID, &status, &fps, &rec.RunToken, &completedAt); err != nil {
			return nil, &LedgerError{Op: "load", Err: err}
		}
		rec.Status = pipeline.Status(status)
		if err := json.Unmarshal([]byte(fps), &rec.Fingerprints); err != nil {
			return nil, &LedgerError{
				Op:  "load",
				Err: fmt.Errorf("corrupt fingerprints for task %s: %w", rec.TaskID, err),
			}
		}
		rec.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt)
		if err != nil {
			return nil, &LedgerError{
				Op:  "load",
				Err: fmt.Errorf("corrupt timestamp for task %s: %w", rec.TaskID, err),
			}
		}
		records[rec.TaskID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, &LedgerError{Op: "load", Err: err}
	}
	return records, nil
}

// RecordCompletion upserts one task record in a single transaction:
// either the full record commits or the prior record is retained.
func (l *Ledger) RecordCompletion(ctx context.Context, rec Record) error {
	fps := rec.Fingerprints
	if fps == nil {
		fps = map[string]pipeline.Fingerprint{}
	}
	fpsJSON, err := json.Marshal(fps)
	if err != nil {
		return &LedgerError{Op: "record", Err: err}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &LedgerError{Op: "record", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_records (task_id, status, fingerprints, run_token, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status       = excluded.status,
			fingerprints = excluded.fingerprints,
			run_token    = excluded.run_token,
			completed_at = excluded.completed_at
	`,
		rec.TaskID,
		string(rec.Status),
		string(fpsJSON),
		rec.RunToken,
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &LedgerError{Op: "record", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &LedgerError{Op: "record", Err: err}
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return &LedgerError{Op: "open", Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return &LedgerError{Op: "open", Err: fmt.Errorf("apply schema: %w", err)}
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return &LedgerError{Op: "open", Err: fmt.Errorf("get user_version: %w", err)}
	}
	if version > currentSchemaVersion {
		return &LedgerError{
			Op:  "open",
			Err: fmt.Errorf("ledger schema version %d is newer than supported %d", version, currentSchemaVersion),
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return &LedgerError{Op: "open", Err: fmt.Errorf("set user_version: %w", err)}
	}
	return nil
}
