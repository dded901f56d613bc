package overlay

import (
	"cmp"
	"math"
	"slices"
	"time"

	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/zerr"
)

// Strategy chooses which buffered deltas a consolidation pass applies.
// Implementations must not retain or mutate the slice they are given.
type Strategy interface {
	Name() string
	Select(entries []*domain.DeltaEntry, now time.Time) []*domain.DeltaEntry
}

// NewStrategy resolves a strategy by its configured name.
func NewStrategy(cfg domain.OverlayConfig) (Strategy, error) {
	switch cfg.Strategy {
	case domain.StrategyLazyThreshold, "":
		return LazyThreshold{Fraction: 0.5}, nil
	case domain.StrategySpatialClustering:
		return SpatialClustering{CellSize: cfg.ClusterCellSize}, nil
	case domain.StrategyTimeBased:
		return TimeBased{MaxAge: cfg.MaxAge}, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownStrategy, cfg.Strategy), "strategy", cfg.Strategy)
	}
}

func byAge(a, b *domain.DeltaEntry) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// LazyThreshold applies the oldest fraction of deltas.
type LazyThreshold struct {
	Fraction float64
}

// Name implements Strategy.
func (LazyThreshold) Name() string { return domain.StrategyLazyThreshold }

// Select implements Strategy.
func (s LazyThreshold) Select(entries []*domain.DeltaEntry, _ time.Time) []*domain.DeltaEntry {
	if len(entries) == 0 {
		return nil
	}
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, byAge)

	n := int(math.Ceil(float64(len(sorted)) * s.Fraction))
	n = max(1, min(n, len(sorted)))
	return sorted[:n]
}

// SpatialClustering groups deltas into cubic cells and applies whole cells,
// oldest cells first, so writes to the same neighbourhood land together.
type SpatialClustering struct {
	CellSize float64
}

// Name implements Strategy.
func (SpatialClustering) Name() string { return domain.StrategySpatialClustering }

type clusterKey struct {
	x, y, z int64
}

type cluster struct {
	oldest  *domain.DeltaEntry
	members []*domain.DeltaEntry
}

// Select implements Strategy.
func (s SpatialClustering) Select(entries []*domain.DeltaEntry, _ time.Time) []*domain.DeltaEntry {
	if len(entries) == 0 {
		return nil
	}
	size := s.CellSize
	if size <= 0 {
		size = domain.DefaultClusterCellSize
	}

	index := make(map[clusterKey]*cluster)
	for _, e := range entries {
		k := clusterKey{
			x: int64(math.Floor(e.Position.X / size)),
			y: int64(math.Floor(e.Position.Y / size)),
			z: int64(math.Floor(e.Position.Z / size)),
		}
		c, ok := index[k]
		if !ok {
			c = &cluster{oldest: e}
			index[k] = c
		}
		if byAge(e, c.oldest) < 0 {
			c.oldest = e
		}
		c.members = append(c.members, e)
	}

	clusters := make([]*cluster, 0, len(index))
	for _, c := range index {
		clusters = append(clusters, c)
	}
	slices.SortFunc(clusters, func(a, b *cluster) int { return byAge(a.oldest, b.oldest) })

	take := (len(clusters) + 1) / 2
	var out []*domain.DeltaEntry
	for _, c := range clusters[:take] {
		out = append(out, c.members...)
	}
	return out
}

// TimeBased applies every delta older than MaxAge.
type TimeBased struct {
	MaxAge time.Duration
}

// Name implements Strategy.
func (TimeBased) Name() string { return domain.StrategyTimeBased }

// Select implements Strategy.
func (s TimeBased) Select(entries []*domain.DeltaEntry, now time.Time) []*domain.DeltaEntry {
	cutoff := now.Add(-s.MaxAge)
	var out []*domain.DeltaEntry
	for _, e := range entries {
		if !e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, byAge)
	return out
}

// all selects every entry. Flush uses it.
type all struct{}

func (all) Name() string { return "all" }

func (all) Select(entries []*domain.DeltaEntry, _ time.Time) []*domain.DeltaEntry {
	return entries
}
