package domain

// TreeStats summarises octree structure.
type TreeStats struct {
	Nodes          int
	Leaves         int
	ExplicitNodes  int
	CollapsedNodes int
	MaxLevel       int
	// RepresentedCells is the number of finest-level cells the leaves stand for.
	RepresentedCells float64
	// MemorySavings is the percentage of nodes saved against one node per finest cell.
	MemorySavings float64
}

// CacheStats reports query cache occupancy and effectiveness.
type CacheStats struct {
	PointEntries   int
	SpatialEntries int
	PathEntries    int
	PointHits      uint64
	PointMisses    uint64
	SpatialHits    uint64
	PathHits       uint64
	PathMisses     uint64
	Invalidations  uint64
}

// HitRate returns the fraction of point lookups served by either point layer.
func (s CacheStats) HitRate() float64 {
	total := s.PointHits + s.PointMisses
	if total == 0 {
		return 0
	}
	return float64(s.PointHits+s.SpatialHits) / float64(total)
}

// OverlayStats reports delta overlay activity.
type OverlayStats struct {
	ActiveDeltas      int
	Writes            uint64
	Elided            uint64
	Consolidated      uint64
	ConsolidationRuns uint64
}

// TileStats reports tile pool occupancy and churn.
type TileStats struct {
	Resident  int
	Capacity  int
	Hits      uint64
	Loads     uint64
	Evictions uint64
	Flushes   uint64

	// Invalidations counts tiles dropped because the tree changed under them.
	Invalidations uint64
}

// Occupancy returns the fraction of the pool in use.
func (s TileStats) Occupancy() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Resident) / float64(s.Capacity)
}

// Statistics is the read-only aggregate exposed by the router.
type Statistics struct {
	Tree    TreeStats
	Cache   CacheStats
	Overlay OverlayStats
	Tiles   TileStats

	TreeQueries uint64
	TileQueries uint64
	TreeUpdates uint64
	TileUpdates uint64
}
