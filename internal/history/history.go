// Package history is a terminal-state ledger: one row per task that
// reached Completed, Failed, or Cancelled. It is deliberately NOT a
// resume store -- Pause/Resume (spec.md §4.6, §9) is implemented
// in-process only, so there is nothing to persist mid-flight.
//
// Adapted from internal/download/state/state.go's AddToMasterList /
// LoadMasterList upsert-by-ID pattern, stripped of that file's `tasks`
// table (which recorded in-flight segment offsets for a resume feature
// this module does not carry), keeping only its "downloads" ledger shape.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Entry is one terminal download record.
type Entry struct {
	ID          string
	URL         string
	DestPath    string
	Filename    string
	Status      string // "completed", "failed", or "cancelled"
	TotalSize   int64
	CompletedAt int64 // unix seconds
	TimeTaken   int64 // seconds
	Error       string
}

// Store wraps a sqlite-backed ledger of terminal download outcomes.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the ledger database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensuring history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	dest_path    TEXT NOT NULL,
	filename     TEXT NOT NULL,
	status       TEXT NOT NULL,
	total_size   INTEGER NOT NULL,
	completed_at INTEGER NOT NULL,
	time_taken   INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT ''
);
`

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Record upserts one terminal entry, keyed by ID.
func (s *Store) Record(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO history (id, url, dest_path, filename, status, total_size, completed_at, time_taken, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url=excluded.url,
			dest_path=excluded.dest_path,
			filename=excluded.filename,
			status=excluded.status,
			total_size=excluded.total_size,
			completed_at=excluded.completed_at,
			time_taken=excluded.time_taken,
			error=excluded.error
	`, e.ID, e.URL, e.DestPath, e.Filename, e.Status, e.TotalSize, e.CompletedAt, e.TimeTaken, e.Error)
	if err != nil {
		return fmt.Errorf("recording history entry: %w", err)
	}
	return nil
}

// List returns every recorded entry, most recently completed first.
func (s *Store) List() ([]Entry, error) {
	return s.query("SELECT id, url, dest_path, filename, status, total_size, completed_at, time_taken, error FROM history ORDER BY completed_at DESC")
}

// ListByStatus filters to one status ("completed", "failed", "cancelled").
func (s *Store) ListByStatus(status string) ([]Entry, error) {
	return s.query("SELECT id, url, dest_path, filename, status, total_size, completed_at, time_taken, error FROM history WHERE status = ? ORDER BY completed_at DESC", status)
}

func (s *Store) query(q string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.URL, &e.DestPath, &e.Filename, &e.Status, &e.TotalSize, &e.CompletedAt, &e.TimeTaken, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Remove deletes one entry by ID.
func (s *Store) Remove(id string) error {
	_, err := s.db.Exec("DELETE FROM history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("removing history entry: %w", err)
	}
	return nil
}
