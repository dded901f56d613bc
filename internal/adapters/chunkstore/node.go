package chunkstore

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/strata/internal/adapters/config"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/zerr"
)

// NodeID is the unique identifier for the chunk store Graft node.
const NodeID graft.ID = "adapter.chunkstore"

func init() {
	graft.Register(graft.Node[ports.ChunkStore]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.ConfigNodeID},
		Run: func(ctx context.Context) (ports.ChunkStore, error) {
			cfg, err := graft.Dep[domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			return Open(cfg.Storage)
		},
	})
}

// Open creates the store selected by cfg.Driver.
func Open(cfg domain.StorageConfig) (ports.ChunkStore, error) {
	switch cfg.Driver {
	case domain.StorageNone, "":
		return NewMemoryStore(), nil
	case domain.StorageFile:
		s, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case domain.StorageSQLite:
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownStorageDriver, "storage driver"), "driver", cfg.Driver)
	}
}
