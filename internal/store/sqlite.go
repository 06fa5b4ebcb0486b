package store

import (
	"cacheprobe/internal/probe"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteStore struct {
	db         *sql.DB
	writeMutex sync.Mutex
}

// NewSQLiteStore opens (or creates) the findings database at filename.
// An empty filename opens a shared in-memory database.
func NewSQLiteStore(filename string) (*SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store %s: %w", filename, err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS findings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			url TEXT NOT NULL,
			method TEXT NOT NULL,
			headers TEXT NOT NULL,
			found_at INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS findings_run_idx ON findings (run_id)",
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare sqlite store: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, runID string, r *probe.Result) error {
	headers, err := json.Marshal(r.Headers)
	if err != nil {
		return err
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO findings (run_id, url, method, headers, found_at) VALUES (?, ?, ?, ?, ?)",
		runID, r.URL, r.Method, string(headers), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save finding for %s: %w", r.URL, err)
	}
	return nil
}

func (s *SQLiteStore) Findings(ctx context.Context, runID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, url, method, headers, found_at FROM findings WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	findings := make([]Finding, 0)
	for rows.Next() {
		var f Finding
		var headers string
		var foundAt int64
		if err := rows.Scan(&f.RunID, &f.URL, &f.Method, &headers, &foundAt); err != nil {
			return findings, err
		}
		if err := json.Unmarshal([]byte(headers), &f.Headers); err != nil {
			return findings, err
		}
		f.FoundAt = time.Unix(0, foundAt)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
