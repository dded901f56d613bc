package router

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/strata/internal/adapters/chunkstore" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/strata/internal/adapters/config"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/strata/internal/adapters/logger"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/strata/internal/adapters/telemetry"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/strata/internal/engine/overlay"
	"go.trai.ch/strata/internal/engine/querycache"
)

// NodeID is the unique identifier for the router Graft node.
const NodeID graft.ID = "engine.router"

func init() {
	graft.Register(graft.Node[*Router]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.ConfigNodeID,
			querycache.NodeID,
			overlay.NodeID,
			chunkstore.NodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
		},
		Run: func(ctx context.Context) (*Router, error) {
			cfg, err := graft.Dep[domain.Config](ctx)
			if err != nil {
				return nil, err
			}

			cache, err := graft.Dep[*querycache.Cache](ctx)
			if err != nil {
				return nil, err
			}

			ov, err := graft.Dep[*overlay.Overlay](ctx)
			if err != nil {
				return nil, err
			}

			store, err := graft.Dep[ports.ChunkStore](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}

			opts := OptionsFromConfig(cfg)
			opts.Logger = log
			opts.Tracer = tracer
			return New(cache, ov, store, opts)
		},
	})
}
