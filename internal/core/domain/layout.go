package domain

import "path/filepath"

const (
	// StrataDirName is the name of the internal workspace directory.
	StrataDirName = ".strata"

	// ChunkDirName is the name of the file chunk store directory.
	ChunkDirName = "chunks"

	// ChunkDBName is the name of the SQLite chunk store file.
	ChunkDBName = "chunks.db"

	// ConfigFileName is the name of the engine configuration file.
	ConfigFileName = "strata.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultChunkPath returns the default directory of the file chunk store.
func DefaultChunkPath() string {
	return filepath.Join(StrataDirName, ChunkDirName)
}

// DefaultChunkDBPath returns the default path of the SQLite chunk store.
func DefaultChunkDBPath() string {
	return filepath.Join(StrataDirName, ChunkDBName)
}
