package chunkstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/zerr"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	layer TEXT    NOT NULL,
	x     INTEGER NOT NULL,
	y     INTEGER NOT NULL,
	data  BLOB    NOT NULL,
	PRIMARY KEY (layer, x, y)
) WITHOUT ROWID`

// SQLiteStore implements ports.ChunkStore on a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrChunkCreateFailed.Error()), "path", path)
	}
	return openSQLite(path)
}

// OpenMemory opens an in-memory database. The store lives until Close.
func OpenMemory() (*SQLiteStore, error) {
	return openSQLite(":memory:")
}

func openSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrChunkCreateFailed.Error()), "path", path)
	}
	// Every :memory: connection is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, zerr.With(zerr.Wrap(err, domain.ErrChunkCreateFailed.Error()), "path", path)
	}
	return s, nil
}

func (s *SQLiteStore) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return zerr.With(zerr.Wrap(err, "pragma"), "pragma", p)
		}
	}
	if _, err := s.db.Exec(schema); err != nil {
		return zerr.Wrap(err, "create chunks table")
	}
	return nil
}

// Load returns the payload stored under key, or nil when there is none.
func (s *SQLiteStore) Load(ctx context.Context, key domain.ChunkKey) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM chunks WHERE layer = ? AND x = ? AND y = ?`,
		key.Layer, key.X, key.Y,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, withKey(zerr.Wrap(err, domain.ErrChunkReadFailed.Error()), key)
	}
	return data, nil
}

// Save upserts the payload under key.
func (s *SQLiteStore) Save(ctx context.Context, key domain.ChunkKey, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (layer, x, y, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT (layer, x, y) DO UPDATE SET data = excluded.data`,
		key.Layer, key.X, key.Y, data,
	)
	if err != nil {
		return withKey(zerr.Wrap(err, domain.ErrChunkWriteFailed.Error()), key)
	}
	return nil
}

// Delete removes the chunk. Missing chunks are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, key domain.ChunkKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE layer = ? AND x = ? AND y = ?`,
		key.Layer, key.X, key.Y,
	)
	if err != nil {
		return withKey(zerr.Wrap(err, domain.ErrChunkDeleteFailed.Error()), key)
	}
	return nil
}

// Exists reports whether a chunk is stored under key.
func (s *SQLiteStore) Exists(ctx context.Context, key domain.ChunkKey) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chunks WHERE layer = ? AND x = ? AND y = ?`,
		key.Layer, key.X, key.Y,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, withKey(zerr.Wrap(err, domain.ErrChunkReadFailed.Error()), key)
	}
	return true, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func withKey(err error, key domain.ChunkKey) error {
	err = zerr.With(err, "layer", key.Layer)
	err = zerr.With(err, "x", key.X)
	return zerr.With(err, "y", key.Y)
}
