package octree

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/strata/internal/adapters/config" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/strata/internal/core/domain"
)

// TreeNodeID is the unique identifier for the octree Graft node.
const TreeNodeID graft.ID = "engine.octree"

func init() {
	graft.Register(graft.Node[*Tree]{
		ID:        TreeNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.ConfigNodeID},
		Run: func(ctx context.Context) (*Tree, error) {
			cfg, err := graft.Dep[domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			return New(OptionsFromConfig(cfg))
		},
	})
}
