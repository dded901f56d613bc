package router

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/engine/tile"
	"go.trai.ch/zerr"
)

// footprintLimit caps how many footprints one write marks individually.
// Larger writes are kept as a region.
const footprintLimit = 4096

// staleLimit caps the queued regions. Beyond it they merge into their hull.
const staleLimit = 1024

// shadow records which tile footprints tree writes have reached this session,
// so a persisted tile older than those writes is not loaded over them.
//
// Footprints are tiles at the reference LOD, the coarsest tile LOD. Every
// finer tile nests inside exactly one of them.
type shadow struct {
	grid tile.Grid
	ref  int

	mu      sync.Mutex
	touched map[tile.Key]struct{}
	regions []domain.Bounds
	// fresh holds, per footprint, the tiles persisted or loaded after the
	// last write that reached them.
	fresh map[tile.Key]map[tile.Key]struct{}
}

func newShadow(grid tile.Grid, ref int) *shadow {
	return &shadow{
		grid:    grid,
		ref:     ref,
		touched: make(map[tile.Key]struct{}),
		fresh:   make(map[tile.Key]map[tile.Key]struct{}),
	}
}

func (s *shadow) footprint(k tile.Key) tile.Key {
	return s.grid.KeyFor(s.grid.TileBounds(k).Center(), s.ref)
}

// current marks k's persisted copy as up to date with the tree.
func (s *shadow) current(k tile.Key) {
	fp := s.footprint(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.fresh[fp]
	if !ok {
		set = make(map[tile.Key]struct{})
		s.fresh[fp] = set
	}
	set[k] = struct{}{}
}

// usable reports whether k's persisted copy may be loaded.
func (s *shadow) usable(k tile.Key) bool {
	fp := s.footprint(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fresh[fp][k]; ok {
		return true
	}
	if _, ok := s.touched[fp]; ok {
		return false
	}
	b := s.grid.TileBounds(k)
	for _, r := range s.regions {
		if r.Intersects(b) {
			return false
		}
	}
	return true
}

// touch records a tree write over b and returns the tiles whose persisted
// copies it overtook.
func (s *shadow) touch(b domain.Bounds) []tile.Key {
	lo := s.grid.KeyFor(b.Min, s.ref)
	hi := s.grid.KeyFor(below(b.Max), s.ref)
	count := (hi.X - lo.X + 1) * (hi.Y - lo.Y + 1) * (hi.Z - lo.Z + 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []tile.Key
	drop := func(fp tile.Key) {
		for k := range s.fresh[fp] {
			if s.grid.TileBounds(k).Intersects(b) {
				delete(s.fresh[fp], k)
				stale = append(stale, k)
			}
		}
		if len(s.fresh[fp]) == 0 {
			delete(s.fresh, fp)
		}
	}

	if count > footprintLimit {
		kept := s.regions[:0]
		for _, r := range s.regions {
			if !b.ContainsBounds(r) {
				kept = append(kept, r)
			}
		}
		s.regions = append(kept, b)
		for fp := range s.fresh {
			drop(fp)
		}
		return stale
	}

	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				fp := tile.Key{LOD: s.ref, X: x, Y: y, Z: z}
				s.touched[fp] = struct{}{}
				drop(fp)
			}
		}
	}
	return stale
}

// staleQueue collects regions the tree changed under resident tiles. They
// are dropped at the next tile access.
type staleQueue struct {
	pending atomic.Bool

	mu    sync.Mutex
	boxes []domain.Bounds
}

func (q *staleQueue) add(boxes ...domain.Bounds) {
	if len(boxes) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.boxes = append(q.boxes, boxes...)
	if len(q.boxes) > staleLimit {
		q.boxes = []domain.Bounds{hull(q.boxes)}
	}
	q.pending.Store(true)
}

func (q *staleQueue) take() []domain.Bounds {
	if !q.pending.Load() {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.boxes
	q.boxes = nil
	q.pending.Store(false)
	return out
}

// retire flushes and drops resident tiles over boxes, so their changes land
// before a tree write covering them.
func (r *Router) retire(ctx context.Context, boxes ...domain.Bounds) error {
	if len(boxes) == 0 {
		return nil
	}
	_, err := r.tiles.Invalidate(ctx, r.overlapping(boxes))
	return err
}

// settle drops resident tiles the tree has changed under since the last
// tile access. Regions whose tiles could not be flushed are retried later.
func (r *Router) settle(ctx context.Context) error {
	boxes := r.stale.take()
	if len(boxes) == 0 {
		return nil
	}
	if _, err := r.tiles.Invalidate(ctx, r.overlapping(boxes)); err != nil {
		r.stale.add(boxes...)
		return err
	}
	return nil
}

// overtaken records finished tree writes over boxes. Persisted tiles they
// overtook are deleted and resident tiles over them go stale.
func (r *Router) overtaken(ctx context.Context, boxes ...domain.Bounds) error {
	r.stale.add(boxes...)
	if r.store == nil {
		return nil
	}
	for _, b := range boxes {
		for _, k := range r.shadow.touch(b) {
			if err := r.store.Delete(ctx, ChunkKey(k)); err != nil {
				return zerr.With(zerr.Wrap(domain.ErrChunkDeleteFailed, err.Error()), "tile", k.String())
			}
		}
	}
	return nil
}

// consolidated queues the finest cells a consolidation pass rewrote.
func (r *Router) consolidated(applied []domain.Vec3) {
	r.stale.add(r.voxels(applied)...)
}

// voxels returns the finest tree cells holding positions. Positions outside
// the tree are skipped.
func (r *Router) voxels(positions []domain.Vec3) []domain.Bounds {
	depth := r.tree.MaxDepth()
	out := make([]domain.Bounds, 0, len(positions))
	for _, p := range positions {
		if c, err := r.tree.CellBounds(p, depth); err == nil {
			out = append(out, c)
		}
	}
	return out
}

func (r *Router) overlapping(boxes []domain.Bounds) func(tile.Key) bool {
	return func(k tile.Key) bool {
		tb := r.grid.TileBounds(k)
		for _, b := range boxes {
			if tb.Intersects(b) {
				return true
			}
		}
		return false
	}
}

// below returns the greatest position strictly less than v on every axis.
func below(v domain.Vec3) domain.Vec3 {
	return domain.Vec3{
		X: math.Nextafter(v.X, math.Inf(-1)),
		Y: math.Nextafter(v.Y, math.Inf(-1)),
		Z: math.Nextafter(v.Z, math.Inf(-1)),
	}
}

func hull(boxes []domain.Bounds) domain.Bounds {
	h := boxes[0]
	for _, b := range boxes[1:] {
		h.Min = domain.Vec3{X: min(h.Min.X, b.Min.X), Y: min(h.Min.Y, b.Min.Y), Z: min(h.Min.Z, b.Min.Z)}
		h.Max = domain.Vec3{X: max(h.Max.X, b.Max.X), Y: max(h.Max.Y, b.Max.Y), Z: max(h.Max.Z, b.Max.Z)}
	}
	return h
}
