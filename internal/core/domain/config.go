package domain

import (
	"time"

	"go.trai.ch/zerr"
)

// Consolidation strategy names.
const (
	StrategyLazyThreshold     = "lazy-threshold"
	StrategySpatialClustering = "spatial-clustering"
	StrategyTimeBased         = "time-based"
)

// Chunk store drivers.
const (
	StorageNone   = "none"
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Config is the complete engine configuration.
type Config struct {
	World   WorldConfig
	Octree  OctreeConfig
	Cache   CacheConfig
	Overlay OverlayConfig
	Router  RouterConfig
	Storage StorageConfig
}

// WorldConfig describes the world box and the material of unwritten space.
type WorldConfig struct {
	Bounds          Bounds
	DefaultMaterial Material
}

// OctreeConfig tunes tree depth and the collapse trade-off.
type OctreeConfig struct {
	MaxDepth          int
	CollapseThreshold float64
}

// CacheConfig sizes the query cache layers.
type CacheConfig struct {
	PathTTL         time.Duration
	PointCapacity   int
	SpatialCapacity int
}

// OverlayConfig tunes delta buffering and consolidation.
type OverlayConfig struct {
	ConsolidationThreshold int
	Strategy               string
	ClusterCellSize        float64
	MaxAge                 time.Duration
}

// RouterConfig tunes LOD dispatch and the tile pool.
type RouterConfig struct {
	TransitionLevel  int
	MaxActiveTiles   int
	TileSize         int
	FlushBeforeEvict bool
	FlushParallelism int
}

// StorageConfig selects the chunk store used for tile durability.
type StorageConfig struct {
	Driver string
	Path   string
}

// Default values.
const (
	DefaultMaxDepth               = 20
	DefaultCollapseThreshold      = 0.9
	DefaultPathTTL                = 5 * time.Minute
	DefaultPointCapacity          = 4096
	DefaultSpatialCapacity        = 16384
	DefaultConsolidationThreshold = 10000
	DefaultClusterCellSize        = 16
	DefaultMaxAge                 = 30 * time.Second
	DefaultTransitionLevel        = 12
	DefaultMaxActiveTiles         = 256
	DefaultTileSize               = 64
	DefaultFlushParallelism       = 4

	// DefaultWorldExtent is roughly the Earth's circumference in metres.
	DefaultWorldExtent = 40_000_000.0
)

// DefaultConfig returns a configuration for a planet-scale world of air.
func DefaultConfig() Config {
	half := DefaultWorldExtent / 2
	return Config{
		World: WorldConfig{
			Bounds: Bounds{
				Min: Vec3{X: -half, Y: -half, Z: -half},
				Max: Vec3{X: half, Y: half, Z: half},
			},
			DefaultMaterial: air,
		},
		Octree: OctreeConfig{
			MaxDepth:          DefaultMaxDepth,
			CollapseThreshold: DefaultCollapseThreshold,
		},
		Cache: CacheConfig{
			PathTTL:         DefaultPathTTL,
			PointCapacity:   DefaultPointCapacity,
			SpatialCapacity: DefaultSpatialCapacity,
		},
		Overlay: OverlayConfig{
			ConsolidationThreshold: DefaultConsolidationThreshold,
			Strategy:               StrategyLazyThreshold,
			ClusterCellSize:        DefaultClusterCellSize,
			MaxAge:                 DefaultMaxAge,
		},
		Router: RouterConfig{
			TransitionLevel:  DefaultTransitionLevel,
			MaxActiveTiles:   DefaultMaxActiveTiles,
			TileSize:         DefaultTileSize,
			FlushBeforeEvict: true,
			FlushParallelism: DefaultFlushParallelism,
		},
		Storage: StorageConfig{
			Driver: StorageNone,
		},
	}
}

// maxSupportedDepth keeps cell sizes representable and node levels in a uint8.
const maxSupportedDepth = 48

// Validate checks every field eagerly and reports the first violation.
//
//nolint:cyclop // flat list of independent checks
func (c Config) Validate() error {
	if err := c.World.Bounds.Validate(); err != nil {
		return zerr.With(zerr.Wrap(ErrInvalidConfiguration, "world.bounds"), "cause", err.Error())
	}
	switch {
	case c.Octree.MaxDepth < 1 || c.Octree.MaxDepth > maxSupportedDepth:
		return invalid("octree.maxDepth", c.Octree.MaxDepth)
	case c.Octree.CollapseThreshold <= 0 || c.Octree.CollapseThreshold > 1:
		return invalid("octree.collapseThreshold", c.Octree.CollapseThreshold)
	case c.Cache.PathTTL <= 0:
		return invalid("cache.pathTTL", c.Cache.PathTTL)
	case c.Cache.PointCapacity <= 0:
		return invalid("cache.pointCapacity", c.Cache.PointCapacity)
	case c.Cache.SpatialCapacity <= 0:
		return invalid("cache.spatialCapacity", c.Cache.SpatialCapacity)
	case c.Overlay.ConsolidationThreshold <= 0:
		return invalid("overlay.consolidationThreshold", c.Overlay.ConsolidationThreshold)
	case c.Overlay.ClusterCellSize <= 0:
		return invalid("overlay.clusterCellSize", c.Overlay.ClusterCellSize)
	case c.Overlay.MaxAge <= 0:
		return invalid("overlay.maxAge", c.Overlay.MaxAge)
	case c.Router.TransitionLevel < 0 || c.Router.TransitionLevel >= maxSupportedDepth:
		return invalid("router.transitionLevel", c.Router.TransitionLevel)
	case c.Router.MaxActiveTiles <= 0:
		return invalid("router.maxActiveTiles", c.Router.MaxActiveTiles)
	case c.Router.TileSize <= 0:
		return invalid("router.tileSize", c.Router.TileSize)
	case c.Router.FlushParallelism <= 0:
		return invalid("router.flushParallelism", c.Router.FlushParallelism)
	}

	switch c.Overlay.Strategy {
	case StrategyLazyThreshold, StrategySpatialClustering, StrategyTimeBased:
	default:
		return zerr.With(zerr.Wrap(ErrUnknownStrategy, "overlay.strategy"), "strategy", c.Overlay.Strategy)
	}

	switch c.Storage.Driver {
	case StorageNone:
	case StorageFile, StorageSQLite:
		if c.Storage.Path == "" {
			return invalid("storage.path", c.Storage.Path)
		}
	default:
		return zerr.With(zerr.Wrap(ErrUnknownStorageDriver, "storage.driver"), "driver", c.Storage.Driver)
	}
	return nil
}

func invalid(field string, value any) error {
	return zerr.With(zerr.Wrap(ErrInvalidConfiguration, field), "value", value)
}
