// Package manifest keeps an optional SQLite log of mirroring runs: which
// assets were fetched, how big, and their content hash. The log is purely
// observational: the engine never consults it; presence of a file on disk
// remains the only cross-run "already mirrored" signal.
package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	page_url   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	started_at TEXT NOT NULL,
	ended_at   TEXT
);
CREATE TABLE IF NOT EXISTS asset_log (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	url        TEXT NOT NULL,
	local_path TEXT NOT NULL,
	bytes      INTEGER NOT NULL,
	sha256     TEXT NOT NULL,
	fetched_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_asset_log_run ON asset_log(run_id);
`

// Asset is one recorded download.
type Asset struct {
	URL       string
	LocalPath string
	Bytes     int64
	SHA256    string
	FetchedAt time.Time
}

// Store wraps the manifest database. A nil *Store is a no-op on every
// method, so callers can wire it unconditionally.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the manifest database at path and applies
// the schema. The caller must blank-import an SQLite driver:
//
//	import _ "modernc.org/sqlite"
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun records the start of a mirroring run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, pageURL string) (string, error) {
	if s == nil {
		return "", nil
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, page_url, started_at) VALUES (?, ?, ?)`,
		id, pageURL, time.Now().UTC().Format(time.RFC3339))
	return id, err
}

// RecordAsset logs one completed download. Safe for concurrent use.
func (s *Store) RecordAsset(ctx context.Context, runID string, a Asset) error {
	if s == nil || runID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO asset_log (run_id, url, local_path, bytes, sha256, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, a.URL, a.LocalPath, a.Bytes, a.SHA256,
		a.FetchedAt.UTC().Format(time.RFC3339))
	return err
}

// FinishRun marks a run completed or failed.
func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	if s == nil || runID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), runID)
	return err
}

// RunAssets returns the assets recorded for a run, oldest first.
func (s *Store) RunAssets(ctx context.Context, runID string) ([]Asset, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, local_path, bytes, sha256, fetched_at
		FROM asset_log WHERE run_id = ? ORDER BY fetched_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Asset
	for rows.Next() {
		var a Asset
		var fetchedAt string
		if err := rows.Scan(&a.URL, &a.LocalPath, &a.Bytes, &a.SHA256, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan asset log: %w", err)
		}
		a.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)
		result = append(result, a)
	}
	return result, rows.Err()
}
