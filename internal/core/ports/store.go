// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/strata/internal/core/domain"
)

// ChunkStore is the persisted key-value store used for tile durability.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type ChunkStore interface {
	// Load returns the payload stored under key.
	// Returns nil, nil if not found.
	Load(ctx context.Context, key domain.ChunkKey) ([]byte, error)

	// Save stores the payload under key, replacing any previous payload.
	Save(ctx context.Context, key domain.ChunkKey, data []byte) error

	// Delete removes the payload under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key domain.ChunkKey) error

	// Exists reports whether a payload is stored under key.
	Exists(ctx context.Context, key domain.ChunkKey) (bool, error)

	// Close releases the store's resources.
	Close() error
}
