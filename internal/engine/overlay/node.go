package overlay

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/strata/internal/adapters/config"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/strata/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/strata/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/strata/internal/engine/querycache"
)

// NodeID is the unique identifier for the overlay Graft node.
const NodeID graft.ID = "engine.overlay"

func init() {
	graft.Register(graft.Node[*Overlay]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.ConfigNodeID,
			querycache.NodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
		},
		Run: func(ctx context.Context) (*Overlay, error) {
			cfg, err := graft.Dep[domain.Config](ctx)
			if err != nil {
				return nil, err
			}

			cache, err := graft.Dep[*querycache.Cache](ctx)
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

			strategy, err := NewStrategy(cfg.Overlay)
			if err != nil {
				return nil, err
			}

			return New(cache, Options{
				ConsolidationThreshold: cfg.Overlay.ConsolidationThreshold,
				Strategy:               strategy,
				Logger:                 log,
				Tracer:                 tracer,
			}), nil
		},
	})
}
