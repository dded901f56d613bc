// Package router dispatches material queries and updates by level of detail.
//
// Requests at or below the transition level are served by the octree through
// the delta overlay and query cache. Finer requests are served by dense tiles
// held in a bounded pool. Tiles are sampled from the tree on first use and,
// when flushed, persisted to the chunk store and written back through the
// overlay.
//
// Tree writes keep tiles coherent: resident tiles over the written region are
// flushed before the write and dropped after it, and persisted tiles the
// write overtakes are deleted.
package router

import (
	"context"
	"strconv"
	"sync/atomic"

	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/strata/internal/engine/octree"
	"go.trai.ch/strata/internal/engine/overlay"
	"go.trai.ch/strata/internal/engine/querycache"
	"go.trai.ch/strata/internal/engine/tile"
	"go.trai.ch/zerr"
)

// Options configures a Router.
type Options struct {
	TransitionLevel  int
	MaxActiveTiles   int
	TileSize         int
	FlushBeforeEvict bool
	FlushParallelism int

	Logger ports.Logger
	Tracer ports.Tracer
}

// OptionsFromConfig derives router options from the engine configuration.
func OptionsFromConfig(cfg domain.Config) Options {
	return Options{
		TransitionLevel:  cfg.Router.TransitionLevel,
		MaxActiveTiles:   cfg.Router.MaxActiveTiles,
		TileSize:         cfg.Router.TileSize,
		FlushBeforeEvict: cfg.Router.FlushBeforeEvict,
		FlushParallelism: cfg.Router.FlushParallelism,
	}
}

// Router is the engine's public read/write surface.
type Router struct {
	cache   *querycache.Cache
	tree    *octree.Tree
	overlay *overlay.Overlay
	store   ports.ChunkStore
	codec   *tile.Codec
	grid    tile.Grid
	tiles   *tile.Pool
	shadow  *shadow
	stale   staleQueue
	opts    Options

	treeQueries atomic.Uint64
	tileQueries atomic.Uint64
	treeUpdates atomic.Uint64
	tileUpdates atomic.Uint64
}

// New creates a router. The overlay must be layered on cache. A nil store
// keeps tiles in memory only.
func New(cache *querycache.Cache, ov *overlay.Overlay, store ports.ChunkStore, opts Options) (*Router, error) {
	if opts.TransitionLevel < 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidConfiguration, "router transition level"),
			"value", opts.TransitionLevel)
	}
	if opts.TileSize <= 0 {
		opts.TileSize = domain.DefaultTileSize
	}
	if opts.MaxActiveTiles <= 0 {
		opts.MaxActiveTiles = domain.DefaultMaxActiveTiles
	}
	if opts.FlushParallelism <= 0 {
		opts.FlushParallelism = domain.DefaultFlushParallelism
	}

	codec, err := tile.NewCodec()
	if err != nil {
		return nil, err
	}

	r := &Router{
		cache:   cache,
		tree:    cache.Tree(),
		overlay: ov,
		store:   store,
		codec:   codec,
		opts:    opts,
	}
	r.grid = tile.Grid{Bounds: r.tree.Bounds(), Size: opts.TileSize}
	r.shadow = newShadow(r.grid, opts.TransitionLevel+1)
	r.tiles = tile.NewPool(tile.PoolOptions{
		Capacity:         opts.MaxActiveTiles,
		Load:             r.loadTile,
		Flush:            r.flushTile,
		FlushBeforeEvict: opts.FlushBeforeEvict,
	})
	ov.OnApply(r.consolidated)
	return r, nil
}

// TransitionLevel returns the finest level of detail served by the tree.
func (r *Router) TransitionLevel() int {
	return r.opts.TransitionLevel
}

// Grid returns the tile grid used above the transition level.
func (r *Router) Grid() tile.Grid {
	return r.grid
}

// QueryMaterial resolves the material at pos for the requested level of detail.
func (r *Router) QueryMaterial(ctx context.Context, pos domain.Vec3, lod int) (domain.Material, error) {
	if err := r.checkBounds(pos); err != nil {
		return domain.Material{}, err
	}
	if lod <= r.opts.TransitionLevel {
		r.treeQueries.Add(1)
		if m, ok := r.overlay.Lookup(pos); ok {
			return m, nil
		}
		return r.cache.GetMaterialAt(pos, r.treeDepth(lod))
	}

	r.tileQueries.Add(1)
	if err := r.settle(ctx); err != nil {
		return domain.Material{}, err
	}
	var m domain.Material
	err := r.tiles.With(ctx, r.grid.KeyFor(pos, lod), func(t *tile.Tile) error {
		m = t.MaterialAt(pos)
		return nil
	})
	return m, err
}

// UpdateMaterial writes m at pos for the requested level of detail.
//
// Writes at the tree's finest depth are buffered in the overlay. Coarser tree
// writes replace the whole cell they address, including pending deltas
// inside it. Writes above the transition level land in a tile.
func (r *Router) UpdateMaterial(ctx context.Context, pos domain.Vec3, m domain.Material, lod int) error {
	if err := r.checkBounds(pos); err != nil {
		return err
	}
	if lod <= r.opts.TransitionLevel {
		r.treeUpdates.Add(1)
		depth := r.treeDepth(lod)
		cell, err := r.tree.CellBounds(pos, depth)
		if err != nil {
			return err
		}
		if depth >= r.tree.MaxDepth() {
			return r.treeWrite(ctx, []domain.Bounds{cell}, func() error {
				return r.overlay.WriteVoxel(ctx, pos, m)
			})
		}
		return r.treeWrite(ctx, []domain.Bounds{cell}, func() error {
			r.overlay.Discard(cell)
			_, err := r.cache.SetMaterial(pos, m, depth)
			return err
		})
	}

	r.tileUpdates.Add(1)
	if err := r.settle(ctx); err != nil {
		return err
	}
	return r.tiles.With(ctx, r.grid.KeyFor(pos, lod), func(t *tile.Tile) error {
		t.SetMaterialAt(pos, m)
		return nil
	})
}

// ReadVoxel reads pos at the finest tree depth, deltas first.
func (r *Router) ReadVoxel(pos domain.Vec3) (domain.Material, error) {
	return r.overlay.ReadVoxel(pos)
}

// WriteVoxel buffers a finest-depth write in the overlay.
func (r *Router) WriteVoxel(ctx context.Context, pos domain.Vec3, m domain.Material) error {
	return r.treeWrite(ctx, r.voxels([]domain.Vec3{pos}), func() error {
		return r.overlay.WriteVoxel(ctx, pos, m)
	})
}

// WriteMaterialBatch buffers each update in the overlay.
func (r *Router) WriteMaterialBatch(ctx context.Context, updates []domain.VoxelWrite) error {
	positions := make([]domain.Vec3, len(updates))
	for i, u := range updates {
		positions[i] = u.Position
	}
	return r.treeWrite(ctx, r.voxels(positions), func() error {
		return r.overlay.WriteMaterialBatch(ctx, updates)
	})
}

// treeWrite runs write, a tree write covering boxes, between retiring the
// resident tiles over them and recording that the write overtook them. The
// write's own error wins over the bookkeeping's.
func (r *Router) treeWrite(ctx context.Context, boxes []domain.Bounds, write func() error) error {
	if err := r.retire(ctx, boxes...); err != nil {
		return err
	}
	err := write()
	if oerr := r.overtaken(ctx, boxes...); err == nil {
		err = oerr
	}
	return err
}

// HasDelta reports whether a write is pending at pos.
func (r *Router) HasDelta(pos domain.Vec3) bool {
	return r.overlay.HasDelta(pos)
}

// ActiveDeltaCount returns the number of pending writes.
func (r *Router) ActiveDeltaCount() int {
	return r.overlay.Count()
}

// ConsolidateDeltas applies pending writes to the tree. See overlay.ConsolidateDeltas.
func (r *Router) ConsolidateDeltas(ctx context.Context, threshold int) (int, error) {
	return r.overlay.ConsolidateDeltas(ctx, threshold)
}

// Flush applies every pending write to the tree.
func (r *Router) Flush(ctx context.Context) (int, error) {
	return r.overlay.Flush(ctx)
}

// InitializeHomogeneousRegion writes m over region at the coarsest nodes that
// cover it, never finer than the transition level. Pending deltas inside the
// region are superseded. It returns the number of nodes written.
func (r *Router) InitializeHomogeneousRegion(ctx context.Context, region domain.Bounds, m domain.Material) (int, error) {
	if err := region.Validate(); err != nil {
		return 0, err
	}
	ctx, end := r.span(ctx, "router.initialize_region")
	depth := r.treeDepth(r.opts.TransitionLevel)

	var (
		n         int
		discarded int
	)
	err := r.treeWrite(ctx, []domain.Bounds{region}, func() error {
		discarded = r.overlay.Discard(region)
		var err error
		n, err = r.cache.FillRegion(ctx, region, m, depth)
		return err
	})
	end(err, map[string]any{
		"region":    region.String(),
		"material":  m.String(),
		"depth":     depth,
		"nodes":     n,
		"discarded": discarded,
	})
	if err != nil {
		return n, err
	}
	r.info("initialized region " + region.String() + " to " + m.String() + " with " + strconv.Itoa(n) + " nodes")
	return n, nil
}

// Optimize applies every pending write and then collapses near-homogeneous
// subtrees at the configured threshold, so no pending write depends on how
// much of its neighbourhood was consolidated. A threshold below 1 is lossy
// and retires every tile.
func (r *Router) Optimize(ctx context.Context) (int, error) {
	ctx, end := r.span(ctx, "router.optimize")
	threshold := r.tree.Options().CollapseThreshold
	world := r.tree.Bounds()

	var flushed, n int
	optimize := func() error {
		var err error
		if flushed, err = r.overlay.Flush(ctx); err != nil {
			return err
		}
		n, err = r.cache.Optimize(ctx, threshold)
		return err
	}

	var err error
	if threshold < 1 {
		err = r.treeWrite(ctx, []domain.Bounds{world}, optimize)
	} else {
		err = optimize()
	}
	end(err, map[string]any{"threshold": threshold, "flushed": flushed, "collapsed": n})
	return n, err
}

// FlushTiles persists every dirty resident tile and writes its changes back
// through the overlay.
func (r *Router) FlushTiles(ctx context.Context) error {
	ctx, end := r.span(ctx, "router.flush_tiles")
	err := r.tiles.FlushAll(ctx, r.opts.FlushParallelism)
	end(err, map[string]any{"resident": r.tiles.Len()})
	return err
}

// Close flushes tiles and pending deltas and releases the tile codec.
func (r *Router) Close(ctx context.Context) error {
	defer r.codec.Close()
	if err := r.FlushTiles(ctx); err != nil {
		return err
	}
	n, err := r.overlay.Flush(ctx)
	if err != nil {
		return err
	}
	r.info("flushed " + strconv.Itoa(n) + " pending deltas")
	return nil
}

// GetStatistics returns a read-only snapshot of every layer.
func (r *Router) GetStatistics() domain.Statistics {
	return domain.Statistics{
		Tree:        r.tree.Stats(),
		Cache:       r.cache.Stats(),
		Overlay:     r.overlay.Stats(),
		Tiles:       r.tiles.Stats(),
		TreeQueries: r.treeQueries.Load(),
		TileQueries: r.tileQueries.Load(),
		TreeUpdates: r.treeUpdates.Load(),
		TileUpdates: r.tileUpdates.Load(),
	}
}

func (r *Router) treeDepth(lod int) int {
	return max(0, min(lod, r.tree.MaxDepth()))
}

func (r *Router) checkBounds(pos domain.Vec3) error {
	b := r.tree.Bounds()
	if b.Contains(pos) {
		return nil
	}
	err := zerr.With(zerr.Wrap(domain.ErrOutOfBounds, pos.String()), "position", pos.String())
	return zerr.With(err, "bounds", b.String())
}

func (r *Router) info(msg string) {
	if r.opts.Logger != nil {
		r.opts.Logger.Info(msg)
	}
}

// span starts a tracing span when a tracer is configured. The returned
// function records the outcome and ends the span.
func (r *Router) span(ctx context.Context, name string) (context.Context, func(error, map[string]any)) {
	if r.opts.Tracer == nil {
		return ctx, func(error, map[string]any) {}
	}
	ctx, s := r.opts.Tracer.Start(ctx, name)
	return ctx, func(err error, attrs map[string]any) {
		for k, v := range attrs {
			s.SetAttribute(k, v)
		}
		if err != nil {
			s.RecordError(err)
		}
		s.End()
	}
}
