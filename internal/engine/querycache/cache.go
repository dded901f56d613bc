// Package querycache memoises octree lookups and is the only write path into
// the tree, so every mutation invalidates exactly what it can affect.
//
// Three LRU layers are kept: one keyed by exact position and depth, one keyed
// by the cell a position falls into at a depth, and one keyed by octant path
// whose entries also expire after a TTL.
package querycache

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/engine/octree"
)

// Options configures a Cache.
type Options struct {
	PathTTL         time.Duration
	PointCapacity   int
	SpatialCapacity int
	Clock           clockwork.Clock
}

// OptionsFromConfig derives cache options from the engine configuration.
func OptionsFromConfig(cfg domain.Config) Options {
	return Options{
		PathTTL:         cfg.Cache.PathTTL,
		PointCapacity:   cfg.Cache.PointCapacity,
		SpatialCapacity: cfg.Cache.SpatialCapacity,
	}
}

type cellKey struct {
	x, y, z int64
}

type pointKey struct {
	pos   domain.Vec3
	depth int
}

type spatialKey struct {
	depth int
	cell  cellKey
}

type pathEntry struct {
	mat     domain.Material
	expires time.Time
}

// Cache fronts an octree with memoised reads.
type Cache struct {
	tree  *octree.Tree
	opts  Options
	clock clockwork.Clock

	// mu orders cache fills against tree writes. Writers bump generation while
	// holding it so a lookup that raced an invalidation never stores its result.
	mu         sync.RWMutex
	generation atomic.Uint64

	points  *lru.Cache[pointKey, domain.Material]
	spatial *lru.Cache[spatialKey, domain.Material]
	// Paths share the point capacity.
	paths *lru.Cache[string, pathEntry]

	pointHits     atomic.Uint64
	pointMisses   atomic.Uint64
	spatialHits   atomic.Uint64
	pathHits      atomic.Uint64
	pathMisses    atomic.Uint64
	invalidations atomic.Uint64
}

// New wraps tree with a cache.
func New(tree *octree.Tree, opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.PointCapacity <= 0 {
		opts.PointCapacity = domain.DefaultPointCapacity
	}
	if opts.SpatialCapacity <= 0 {
		opts.SpatialCapacity = domain.DefaultSpatialCapacity
	}
	if opts.PathTTL <= 0 {
		opts.PathTTL = domain.DefaultPathTTL
	}
	return &Cache{
		tree:    tree,
		opts:    opts,
		clock:   opts.Clock,
		points:  newLayer[pointKey, domain.Material](opts.PointCapacity),
		spatial: newLayer[spatialKey, domain.Material](opts.SpatialCapacity),
		paths:   newLayer[string, pathEntry](opts.PointCapacity),
	}
}

// newLayer builds one LRU layer. lru.New only fails for a non-positive size,
// which New has already ruled out.
func newLayer[K comparable, V any](size int) *lru.Cache[K, V] {
	l, err := lru.New[K, V](size)
	if err != nil {
		panic(err)
	}
	return l
}

// Tree returns the underlying octree for read-only inspection.
func (c *Cache) Tree() *octree.Tree {
	return c.tree
}

// GetMaterialAt resolves the material at pos for the given depth, consulting
// the point and spatial layers before falling through to the tree.
func (c *Cache) GetMaterialAt(pos domain.Vec3, depth int) (domain.Material, error) {
	depth = c.clampDepth(depth)
	pk := pointKey{pos: pos, depth: depth}

	if m, ok := c.points.Get(pk); ok {
		c.pointHits.Add(1)
		return m, nil
	}
	c.pointMisses.Add(1)

	bounds := c.tree.Bounds()
	if !bounds.Contains(pos) {
		return c.tree.MaterialAt(pos, depth)
	}
	sk := spatialKey{depth: depth, cell: c.cell(pos, depth)}

	c.mu.RLock()
	gen := c.generation.Load()
	m, ok := c.spatial.Get(sk)
	c.mu.RUnlock()
	if ok {
		c.spatialHits.Add(1)
		c.store(gen, pk, sk, m, false)
		return m, nil
	}

	m, err := c.tree.MaterialAt(pos, depth)
	if err != nil {
		return domain.Material{}, err
	}
	c.store(gen, pk, sk, m, true)
	return m, nil
}

// MaterialAt resolves pos at the tree's finest depth.
func (c *Cache) MaterialAt(pos domain.Vec3) (domain.Material, error) {
	return c.GetMaterialAt(pos, c.tree.MaxDepth())
}

// GetMaterialAtPath resolves the material addressed by an octant path.
// Results live for the configured TTL unless a write invalidates them sooner.
func (c *Cache) GetMaterialAtPath(path string) (domain.Material, error) {
	now := c.clock.Now()

	c.mu.RLock()
	gen := c.generation.Load()
	e, ok := c.paths.Get(path)
	c.mu.RUnlock()
	if ok && now.Before(e.expires) {
		c.pathHits.Add(1)
		return e.mat, nil
	}
	c.pathMisses.Add(1)

	m, err := c.tree.MaterialAtPath(path)
	if err != nil {
		return domain.Material{}, err
	}

	c.mu.Lock()
	if c.generation.Load() == gen {
		c.paths.Add(path, pathEntry{mat: m, expires: now.Add(c.opts.PathTTL)})
	}
	c.mu.Unlock()
	return m, nil
}

// SetMaterial writes m at pos and depth through to the tree and invalidates
// every cached answer the write can change. It returns the written path.
func (c *Cache) SetMaterial(pos domain.Vec3, m domain.Material, depth int) (string, error) {
	depth = c.clampDepth(depth)

	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.tree.SetMaterial(pos, m, depth)
	if err != nil {
		return "", err
	}
	c.invalidateLocked(pos, depth, path)
	return path, nil
}

// SetMaterialAt writes pos at the tree's finest depth.
func (c *Cache) SetMaterialAt(pos domain.Vec3, m domain.Material) error {
	_, err := c.SetMaterial(pos, m, c.tree.MaxDepth())
	return err
}

// FillRegion writes m over region through to the tree. Any region fill can
// touch large parts of the tree, so the whole cache is dropped.
func (c *Cache) FillRegion(ctx context.Context, region domain.Bounds, m domain.Material, depth int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.tree.FillRegion(ctx, region, m, depth)
	if n > 0 {
		c.invalidateAllLocked()
	}
	return n, err
}

// Optimize collapses homogeneous subtrees. Collapse loses minority detail,
// so cached answers are dropped whenever anything collapsed.
func (c *Cache) Optimize(ctx context.Context, threshold float64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.tree.Optimize(ctx, threshold)
	if n > 0 {
		c.invalidateAllLocked()
	}
	return n, err
}

// InvalidatePath drops path-cache entries at or below path. A node changed
// behind the cache can affect any position answer, so the point and spatial
// layers are emptied too.
func (c *Cache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.invalidations.Add(1)
	c.dropPathsLocked(path)
	c.spatial.Purge()
	c.points.Purge()
}

// InvalidateAll empties every layer.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateAllLocked()
}

// Stats returns occupancy and hit counters.
func (c *Cache) Stats() domain.CacheStats {
	return domain.CacheStats{
		PointEntries:   c.points.Len(),
		SpatialEntries: c.spatial.Len(),
		PathEntries:    c.paths.Len(),
		PointHits:      c.pointHits.Load(),
		PointMisses:    c.pointMisses.Load(),
		SpatialHits:    c.spatialHits.Load(),
		PathHits:       c.pathHits.Load(),
		PathMisses:     c.pathMisses.Load(),
		Invalidations:  c.invalidations.Load(),
	}
}

func (c *Cache) store(gen uint64, pk pointKey, sk spatialKey, m domain.Material, spatial bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() != gen {
		return
	}
	if spatial {
		c.spatial.Add(sk, m)
	}
	c.points.Add(pk, m)
}

func (c *Cache) invalidateLocked(pos domain.Vec3, depth int, path string) {
	c.generation.Add(1)
	c.invalidations.Add(1)
	c.dropPathsLocked(path)
	c.dropSpatialLocked(pos, depth)

	box := c.tree.Bounds()
	for i := 0; i < len(path); i++ {
		box = box.ChildBounds(int(path[i] - '0'))
	}
	for _, k := range c.points.Keys() {
		if k.depth >= depth && box.Contains(k.pos) {
			c.points.Remove(k)
		}
	}
}

func (c *Cache) invalidateAllLocked() {
	c.generation.Add(1)
	c.invalidations.Add(1)
	c.spatial.Purge()
	c.paths.Purge()
	c.points.Purge()
}

// dropPathsLocked removes paths at or below prefix, and any that expired.
func (c *Cache) dropPathsLocked(prefix string) {
	now := c.clock.Now()
	for _, p := range c.paths.Keys() {
		e, ok := c.paths.Peek(p)
		if !ok {
			continue
		}
		if strings.HasPrefix(p, prefix) || !now.Before(e.expires) {
			c.paths.Remove(p)
		}
	}
}

// dropSpatialLocked removes cells at depth or finer that lie inside the
// written cell. Coarser cells resolve above the written node and keep their
// answer.
func (c *Cache) dropSpatialLocked(pos domain.Vec3, depth int) {
	written := c.cell(pos, depth)
	for _, k := range c.spatial.Keys() {
		if k.depth < depth {
			continue
		}
		shift := uint(k.depth - depth)
		if k.cell.x>>shift == written.x && k.cell.y>>shift == written.y && k.cell.z>>shift == written.z {
			c.spatial.Remove(k)
		}
	}
}

// cell quantises pos onto the grid of depth-level nodes.
func (c *Cache) cell(pos domain.Vec3, depth int) cellKey {
	b := c.tree.Bounds()
	size := b.Size()
	n := float64(uint64(1) << uint(depth))
	return cellKey{
		x: quantise(pos.X-b.Min.X, size.X, n),
		y: quantise(pos.Y-b.Min.Y, size.Y, n),
		z: quantise(pos.Z-b.Min.Z, size.Z, n),
	}
}

func quantise(offset, extent, n float64) int64 {
	i := math.Floor(offset / extent * n)
	return int64(math.Max(0, math.Min(i, n-1)))
}

func (c *Cache) clampDepth(depth int) int {
	return max(0, min(depth, c.tree.MaxDepth()))
}
