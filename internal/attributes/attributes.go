// Package attributes persists gapfilling side-channel data: the filter
// cache written by the reducer and the sensitivity reports written by the
// analyzer. It is a pure cache — losing the database never changes results.
package attributes

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/modelworks/gapfill-controller/internal/model"
)

// #region schema

const schema = `
CREATE TABLE IF NOT EXISTS gf_filter (
	media_id    TEXT NOT NULL,
	objective   TEXT NOT NULL,
	threshold   REAL NOT NULL,
	reaction_id TEXT NOT NULL,
	direction   TEXT NOT NULL,
	score       REAL NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE(media_id, objective, threshold, reaction_id, direction)
);

CREATE TABLE IF NOT EXISTS gf_sensitivity (
	media_id       TEXT NOT NULL,
	target         TEXT NOT NULL,
	note           TEXT NOT NULL,
	reaction_id    TEXT NOT NULL DEFAULT '',
	direction      TEXT NOT NULL DEFAULT '',
	compounds_json TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	UNIQUE(media_id, target, note, reaction_id, direction)
);
`

// #endregion schema

// #region types

// FilterKey identifies one filtered condition.
type FilterKey struct {
	MediaID   string
	Objective string
	Threshold float64
}

// FilterEntry is one filtered reaction direction with the objective score
// observed when its restoration broke the condition.
type FilterEntry struct {
	ReactionID string
	Direction  model.Direction
	Score      float64
}

// Note values for SensitivityRecord.
const (
	NoteFailedBeforeFiltering = "FBF"
	NoteFailedAfterFiltering  = "FAF"
	NoteSuccess               = "success"
	NoteFailure               = "failure"
)

// SensitivityRecord is one biomass-dependency report. Note distinguishes
// report kinds: FBF (failure before filtering), FAF (failure after
// filtering), success, failure. Database-level notes leave ReactionID
// empty.
type SensitivityRecord struct {
	MediaID    string
	Target     string
	Note       string
	ReactionID string
	Direction  model.Direction
	Compounds  []string
}

// #endregion types

// #region store

// Store wraps the attributes database. A nil *Store is valid and drops all
// writes, so callers can run cache-less.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the attributes database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open attributes db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// #endregion store

// #region filter

// SaveFilter upserts filtered entries for a condition.
func (s *Store) SaveFilter(key FilterKey, entries []FilterEntry) error {
	if s == nil || len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO gf_filter (media_id, objective, threshold, reaction_id, direction, score, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key.MediaID, key.Objective, key.Threshold, e.ReactionID, e.Direction.String(), e.Score, now,
		)
		if err != nil {
			return fmt.Errorf("insert filter entry: %w", err)
		}
	}
	return tx.Commit()
}

// Filter loads the cached filtered set for a condition. The result maps
// reaction ID to direction to score; missing keys mean "never filtered".
func (s *Store) Filter(key FilterKey) (map[string]map[model.Direction]float64, error) {
	out := make(map[string]map[model.Direction]float64)
	if s == nil {
		return out, nil
	}
	rows, err := s.db.Query(
		`SELECT reaction_id, direction, score FROM gf_filter
		 WHERE media_id = ? AND objective = ? AND threshold = ?`,
		key.MediaID, key.Objective, key.Threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("query filter: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rxn, dir string
		var score float64
		if err := rows.Scan(&rxn, &dir, &score); err != nil {
			return nil, fmt.Errorf("scan filter row: %w", err)
		}
		if out[rxn] == nil {
			out[rxn] = make(map[model.Direction]float64)
		}
		if len(dir) == 1 {
			out[rxn][model.Direction(dir[0])] = score
		}
	}
	return out, rows.Err()
}

// #endregion filter

// #region sensitivity

// SaveSensitivity upserts one sensitivity record.
func (s *Store) SaveSensitivity(rec SensitivityRecord) error {
	if s == nil {
		return nil
	}
	blob, err := json.Marshal(rec.Compounds)
	if err != nil {
		return fmt.Errorf("marshal compounds: %w", err)
	}
	dir := ""
	if rec.Direction != 0 {
		dir = rec.Direction.String()
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO gf_sensitivity (media_id, target, note, reaction_id, direction, compounds_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.MediaID, rec.Target, rec.Note, rec.ReactionID, dir, string(blob),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert sensitivity: %w", err)
	}
	return nil
}

// Sensitivity loads all records for a media/target pair.
func (s *Store) Sensitivity(mediaID, target string) ([]SensitivityRecord, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT note, reaction_id, direction, compounds_json FROM gf_sensitivity
		 WHERE media_id = ? AND target = ? ORDER BY note, reaction_id`,
		mediaID, target,
	)
	if err != nil {
		return nil, fmt.Errorf("query sensitivity: %w", err)
	}
	defer rows.Close()

	var out []SensitivityRecord
	for rows.Next() {
		rec := SensitivityRecord{MediaID: mediaID, Target: target}
		var dir, blob string
		if err := rows.Scan(&rec.Note, &rec.ReactionID, &dir, &blob); err != nil {
			return nil, fmt.Errorf("scan sensitivity row: %w", err)
		}
		if len(dir) == 1 {
			rec.Direction = model.Direction(dir[0])
		}
		if err := json.Unmarshal([]byte(blob), &rec.Compounds); err != nil {
			return nil, fmt.Errorf("unmarshal compounds: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion sensitivity
