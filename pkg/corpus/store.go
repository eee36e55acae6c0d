// Package corpus stores generated programs and their outcomes in SQLite.
package corpus

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested entry doesn't exist
var ErrNotFound = errors.New("entry not found")

// Store is a SQLite-backed program corpus. It is safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the corpus at path. ":memory:" gives a private
// in-memory corpus.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection, so an in-memory database is shared by every call.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		code BLOB NOT NULL,
		required BLOB,
		inserted INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		steps INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		report BLOB,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS programs_outcome ON programs (outcome)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Add saves an entry, assigning an ID and timestamp when they are unset.
func (s *Store) Add(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixNano()
	}
	report, err := marshalReport(e.Report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO programs
			(id, seed, code, required, inserted, outcome, steps, error, report, created)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Seed, e.Code, e.Required, e.Inserted, string(e.Outcome),
		e.Steps, e.Error, report, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving entry: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, seed, code, required, inserted, outcome, steps, error, report, created FROM programs`

// Get retrieves an entry by ID.
func (s *Store) Get(id string) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRow(selectColumns+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying entry: %w", err)
	}
	return e, nil
}

// List returns entries with the given outcome, oldest first. An empty
// outcome lists everything.
func (s *Store) List(outcome Outcome) ([]*Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if outcome == "" {
		rows, err = s.db.Query(selectColumns + " ORDER BY created, seed")
	} else {
		rows, err = s.db.Query(selectColumns+" WHERE outcome = ? ORDER BY created, seed", string(outcome))
	}
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("reading entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// CountByOutcome returns the number of entries per outcome.
func (s *Store) CountByOutcome() (map[Outcome]int, error) {
	rows, err := s.db.Query("SELECT outcome, COUNT(*) FROM programs GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("counting entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("counting entries: %w", err)
		}
		counts[Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e       Entry
		outcome string
		report  []byte
	)
	err := row.Scan(&e.ID, &e.Seed, &e.Code, &e.Required, &e.Inserted,
		&outcome, &e.Steps, &e.Error, &report, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Outcome = Outcome(outcome)
	if e.Report, err = unmarshalReport(report); err != nil {
		return nil, err
	}
	return &e, nil
}

// Export writes every entry with the given outcome ("" for all) to dir
// as <id>.cbor fixtures and returns how many were written.
func (s *Store) Export(dir string, outcome Outcome) (int, error) {
	entries, err := s.List(outcome)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating export dir: %w", err)
	}
	for i, e := range entries {
		data, err := MarshalEntry(e)
		if err != nil {
			return i, fmt.Errorf("encoding %s: %w", e.ID, err)
		}
		if err := os.WriteFile(filepath.Join(dir, e.ID+".cbor"), data, 0644); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

// ReadFixture loads an entry written by Export.
func ReadFixture(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalEntry(data)
}
