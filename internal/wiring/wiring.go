// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/strata/internal/adapters/chunkstore"
	_ "go.trai.ch/strata/internal/adapters/config"
	_ "go.trai.ch/strata/internal/adapters/logger"
	_ "go.trai.ch/strata/internal/adapters/telemetry"
	// Register app and engine nodes.
	_ "go.trai.ch/strata/internal/app"
	_ "go.trai.ch/strata/internal/engine/octree"
	_ "go.trai.ch/strata/internal/engine/overlay"
	_ "go.trai.ch/strata/internal/engine/process"
	_ "go.trai.ch/strata/internal/engine/querycache"
	_ "go.trai.ch/strata/internal/engine/router"
)
