package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/theoremus-urban-solutions/surveyor-tracking/codec"
)

// ErrNotFound is returned by Get when the key has never been written or was
// deleted.
var ErrNotFound = errors.New("prefs: key not found")

const schema = `CREATE TABLE IF NOT EXISTS prefs (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (unixepoch())
)`

// Store is a small persistent key/value store. It is safe for concurrent use.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open opens (creating if needed) the store at path. A path of ":memory:"
// gives a private in-memory store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("prefs: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// In-memory connections do not share data, so they need a pool of one.
	poolSize := 2
	if path == ":memory:" {
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("prefs: opening %s: %w", path, err)
	}

	logger.Debug("prefs store opened", "path", path)
	return &Store{pool: pool, logger: logger, path: path}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("prefs: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("prefs: creating schema: %w", err)
	}
	return nil
}

// Close releases every connection.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("prefs: closing %s: %w", s.path, err)
	}
	return nil
}

// Put stores v under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("prefs: encoding %q: %w", key, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("prefs: put %q: %w", key, err)
	}
	defer s.pool.Put(conn)

	return putRaw(conn, key, data)
}

// Get decodes the value stored under key into v.
func (s *Store) Get(ctx context.Context, key string, v any) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("prefs: get %q: %w", key, err)
	}
	defer s.pool.Put(conn)

	data, found, err := getRaw(conn, key)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("prefs: decoding %q: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys ...string) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("prefs: delete: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("prefs: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, key := range keys {
		if err = sqlitex.Execute(conn, `DELETE FROM prefs WHERE key = ?`, &sqlitex.ExecOptions{
			Args: []any{key},
		}); err != nil {
			return fmt.Errorf("prefs: delete %q: %w", key, err)
		}
	}
	return nil
}

// putMany writes several values atomically.
func (s *Store) putMany(ctx context.Context, values map[string]any) (err error) {
	encoded := make(map[string][]byte, len(values))
	for key, v := range values {
		data, err := codec.Marshal(v)
		if err != nil {
			return fmt.Errorf("prefs: encoding %q: %w", key, err)
		}
		encoded[key] = data
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("prefs: put: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("prefs: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for key, data := range encoded {
		if err = putRaw(conn, key, data); err != nil {
			return err
		}
	}
	return nil
}

func putRaw(conn *sqlite.Conn, key string, data []byte) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, unixepoch())
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{key, data}},
	)
	if err != nil {
		return fmt.Errorf("prefs: put %q: %w", key, err)
	}
	return nil
}

func getRaw(conn *sqlite.Conn, key string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := sqlitex.Execute(conn, `SELECT value FROM prefs WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			data = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, data)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("prefs: get %q: %w", key, err)
	}
	return data, found, nil
}
