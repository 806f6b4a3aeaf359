// Package provenance records orchestrator state transitions so a long
// multi-media batch can be audited after the fact.
package provenance

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS run_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	media_id   TEXT NOT NULL,
	target     TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	reason     TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_log_run ON run_log(run_id);
`

// #endregion schema

// #region types

// Entry is a single state transition for one media/target within a run.
type Entry struct {
	RunID     string
	MediaID   string
	Target    string
	FromState string
	ToState   string
	Reason    string
	CreatedAt time.Time
}

// NewRunID mints an identifier for one orchestrator run.
func NewRunID() string {
	return uuid.New().String()
}

// #endregion types

// #region log

// Log is the append-only transition store. A nil *Log drops all writes, so
// the orchestrator works without one attached.
type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the provenance database.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open provenance db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// #endregion log

// #region record

// Record appends one transition.
func (l *Log) Record(e Entry) error {
	if l == nil {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.Exec(
		`INSERT INTO run_log (run_id, media_id, target, from_state, to_state, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.MediaID, e.Target, e.FromState, e.ToState,
		nullIfEmpty(e.Reason), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// Run returns all transitions for a run in insertion order.
func (l *Log) Run(runID string) ([]Entry, error) {
	if l == nil {
		return nil, nil
	}
	rows, err := l.db.Query(
		`SELECT media_id, target, from_state, to_state, COALESCE(reason, ''), created_at
		 FROM run_log WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{RunID: runID}
		var created string
		if err := rows.Scan(&e.MediaID, &e.Target, &e.FromState, &e.ToState, &e.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion record
