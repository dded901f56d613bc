package config

import "time"

// Stratafile represents the structure of the strata.yaml configuration file.
// Every field is optional; unset fields keep their defaults.
type Stratafile struct {
	World   WorldDTO   `yaml:"world"`
	Octree  OctreeDTO  `yaml:"octree"`
	Cache   CacheDTO   `yaml:"cache"`
	Overlay OverlayDTO `yaml:"overlay"`
	Router  RouterDTO  `yaml:"router"`
	Storage StorageDTO `yaml:"storage"`
}

// WorldDTO describes the world box. Min and Max are [x, y, z] triples.
type WorldDTO struct {
	Min             *[3]float64 `yaml:"min"`
	Max             *[3]float64 `yaml:"max"`
	DefaultMaterial string      `yaml:"defaultMaterial"`
}

// OctreeDTO represents the octree section.
type OctreeDTO struct {
	MaxDepth          *int     `yaml:"maxDepth"`
	CollapseThreshold *float64 `yaml:"collapseThreshold"`
}

// CacheDTO represents the cache section.
type CacheDTO struct {
	PathTTL         *time.Duration `yaml:"pathTTL"`
	PointCapacity   *int           `yaml:"pointCapacity"`
	SpatialCapacity *int           `yaml:"spatialCapacity"`
}

// OverlayDTO represents the overlay section.
type OverlayDTO struct {
	ConsolidationThreshold *int           `yaml:"consolidationThreshold"`
	Strategy               string         `yaml:"strategy"`
	ClusterCellSize        *float64       `yaml:"clusterCellSize"`
	MaxAge                 *time.Duration `yaml:"maxAge"`
}

// RouterDTO represents the router section.
type RouterDTO struct {
	TransitionLevel  *int  `yaml:"transitionLevel"`
	MaxActiveTiles   *int  `yaml:"maxActiveTiles"`
	TileSize         *int  `yaml:"tileSize"`
	FlushBeforeEvict *bool `yaml:"flushBeforeEvict"`
	FlushParallelism *int  `yaml:"flushParallelism"`
}

// StorageDTO selects the chunk store. Relative paths resolve against the
// directory holding strata.yaml.
type StorageDTO struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}
