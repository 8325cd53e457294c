// Package history persists executed command lines. It is a collaborator
// of the execution engine, never a dependency of it: the engine stays
// stateless and the front ends decide what is worth recording.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded command line.
type Entry struct {
	ID   int64
	Line string
	Cwd  string
	At   time.Time
}

type Store struct {
	db   *sql.DB
	path string
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare history dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	line TEXT NOT NULL,
	cwd TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Append(line, cwd string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO history (line, cwd, created_at) VALUES (?, ?, ?)`,
		line, cwd, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, oldest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(context.Background(), `
SELECT id, line, cwd, created_at FROM (
	SELECT id, line, cwd, created_at FROM history ORDER BY id DESC LIMIT ?
) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Line, &e.Cwd, &e.At); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Lines returns just the command text of the most recent entries, oldest
// first, for seeding prompt history.
func (s *Store) Lines(limit int) []string {
	entries, err := s.Recent(limit)
	if err != nil {
		return nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Line)
	}
	return lines
}

func (s *Store) Close() error {
	return s.db.Close()
}
