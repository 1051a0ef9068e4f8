package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwulff/echo/internal/errs"
)

const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		name TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updatedAt REAL NOT NULL,
		PRIMARY KEY (name, key)
	);
`

// SQLiteStore keeps each field of a named document as one row.
type SQLiteStore struct {
	db   *sql.DB
	name string
	now  func() time.Time

	mu sync.Mutex
}

// OpenSQLite opens (creating if needed) the database at path with WAL and
// returns the document called name.
func OpenSQLite(path, name string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.Wrap(errs.ErrPersistence, "open database", fmt.Errorf("create directory: %w", err))
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, "open database", err)
	}
	// One connection keeps :memory: databases coherent and serializes writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.ErrPersistence, "ping database", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.ErrPersistence, "create schema", err)
	}

	return &SQLiteStore{db: db, name: name, now: time.Now}, nil
}

func (s *SQLiteStore) Get(key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT value FROM documents WHERE name = ? AND key = ?`, s.name, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.ErrPersistence, "query "+key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, errs.Wrap(errs.ErrPersistence, "decode "+key, err)
	}
	return true, nil
}

// Update runs the read and the write in one IMMEDIATE transaction, which takes
// the database write lock before the read.
func (s *SQLiteStore) Update(key string, v any, fn func(found bool) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, "update "+key, err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return errs.Wrap(errs.ErrPersistence, "begin update", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	var raw string
	found := true
	err = conn.QueryRowContext(ctx, `SELECT value FROM documents WHERE name = ? AND key = ?`, s.name, key).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		found = false
	case err != nil:
		return errs.Wrap(errs.ErrPersistence, "query "+key, err)
	default:
		if err := json.Unmarshal([]byte(raw), v); err != nil {
			return errs.Wrap(errs.ErrPersistence, "decode "+key, err)
		}
	}

	changed, err := fn(found)
	if err != nil || !changed {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, "encode "+key, err)
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO documents (name, key, value, updatedAt) VALUES (?, ?, ?, ?)
		ON CONFLICT (name, key) DO UPDATE SET value = excluded.value, updatedAt = excluded.updatedAt
	`, s.name, key, string(data), unixSeconds(s.now()))
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, "save "+key, err)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return errs.Wrap(errs.ErrPersistence, "commit update", err)
	}
	committed = true
	return nil
}

// UpdatedAt returns when key was last saved.
func (s *SQLiteStore) UpdatedAt(key string) (time.Time, bool, error) {
	var ts float64
	err := s.db.QueryRow(`SELECT updatedAt FROM documents WHERE name = ? AND key = ?`, s.name, key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errs.Wrap(errs.ErrPersistence, "query "+key, err)
	}
	return timeFromUnix(ts), true, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
