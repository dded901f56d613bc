package querycache

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/strata/internal/adapters/config" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/engine/octree"
)

// NodeID is the unique identifier for the query cache Graft node.
const NodeID graft.ID = "engine.querycache"

func init() {
	graft.Register(graft.Node[*Cache]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.ConfigNodeID, octree.TreeNodeID},
		Run: func(ctx context.Context) (*Cache, error) {
			cfg, err := graft.Dep[domain.Config](ctx)
			if err != nil {
				return nil, err
			}

			tree, err := graft.Dep[*octree.Tree](ctx)
			if err != nil {
				return nil, err
			}

			return New(tree, OptionsFromConfig(cfg)), nil
		},
	})
}
