// Package chunkstore implements the persisted chunk stores used for tile
// durability.
package chunkstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/zerr"
)

// FileStore implements ports.ChunkStore with one file per chunk. Each layer
// gets its own directory named by the hash of the layer.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	root := filepath.Clean(dir)
	if err := os.MkdirAll(root, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrChunkCreateFailed.Error()), "path", root)
	}
	return &FileStore{root: root}, nil
}

// Load returns the payload stored under key, or nil when there is none.
func (s *FileStore) Load(ctx context.Context, key domain.ChunkKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filename := s.filename(key)
	//nolint:gosec // Path is constructed from the store root and a hashed layer
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrChunkReadFailed.Error()), "path", filename)
	}
	return data, nil
}

// Save writes the payload to a temporary file and renames it into place, so
// a reader never sees a partial chunk.
func (s *FileStore) Save(ctx context.Context, key domain.ChunkKey, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filename := s.filename(key)
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrChunkCreateFailed.Error()), "path", dir)
	}

	tmp, err := os.CreateTemp(dir, ".chunk-*")
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrChunkWriteFailed.Error()), "path", filename)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return zerr.With(zerr.Wrap(err, domain.ErrChunkWriteFailed.Error()), "path", filename)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		_ = os.Remove(tmpName)
		return zerr.With(zerr.Wrap(err, domain.ErrChunkWriteFailed.Error()), "path", filename)
	}
	return nil
}

// Delete removes the chunk. Missing chunks are ignored.
func (s *FileStore) Delete(ctx context.Context, key domain.ChunkKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filename := s.filename(key)
	if err := os.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, domain.ErrChunkDeleteFailed.Error()), "path", filename)
	}
	return nil
}

// Exists reports whether a chunk file exists for key.
func (s *FileStore) Exists(ctx context.Context, key domain.ChunkKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	filename := s.filename(key)
	_, err := os.Stat(filename)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, zerr.With(zerr.Wrap(err, domain.ErrChunkReadFailed.Error()), "path", filename)
	}
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) filename(key domain.ChunkKey) string {
	layer := strconv.FormatUint(xxhash.Sum64String(key.Layer), 16)
	name := strconv.FormatInt(key.X, 10) + "_" + strconv.FormatInt(key.Y, 10) + ".chunk"
	return filepath.Join(s.root, layer, name)
}
