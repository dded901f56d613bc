package tile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Loader produces a tile that is not resident.
type Loader func(ctx context.Context, key Key) (*Tile, error)

// Flusher persists a dirty tile.
type Flusher func(ctx context.Context, t *Tile) error

// PoolOptions configures a Pool.
type PoolOptions struct {
	Capacity         int
	Load             Loader
	Flush            Flusher
	FlushBeforeEvict bool
}

// Pool keeps at most Capacity tiles resident and evicts the least recently
// used one to make room. Concurrent misses on the same key share one load.
type Pool struct {
	opts PoolOptions

	mu    sync.RWMutex
	tiles map[Key]*Tile

	tick  atomic.Uint64
	group singleflight.Group

	// gen advances on every Invalidate. A load that started before an
	// invalidation is not inserted.
	gen atomic.Uint64

	hits          atomic.Uint64
	loads         atomic.Uint64
	evictions     atomic.Uint64
	flushes       atomic.Uint64
	invalidations atomic.Uint64
}

// NewPool creates an empty pool.
func NewPool(opts PoolOptions) *Pool {
	if opts.Capacity <= 0 {
		opts.Capacity = domain.DefaultMaxActiveTiles
	}
	return &Pool{
		opts:  opts,
		tiles: make(map[Key]*Tile, opts.Capacity),
	}
}

// With runs fn against the resident tile for key, loading it first when
// needed. The tile cannot be evicted while fn runs.
func (p *Pool) With(ctx context.Context, key Key, fn func(*Tile) error) error {
	for attempt := 0; ; attempt++ {
		p.mu.RLock()
		if t, ok := p.tiles[key]; ok {
			if attempt == 0 {
				p.hits.Add(1)
			}
			p.touch(t)
			err := fn(t)
			p.mu.RUnlock()
			return err
		}
		p.mu.RUnlock()

		if err := p.ensure(ctx, key); err != nil {
			return err
		}
	}
}

// Get returns the tile for key, loading it when needed.
func (p *Pool) Get(ctx context.Context, key Key) (*Tile, error) {
	var out *Tile
	err := p.With(ctx, key, func(t *Tile) error {
		out = t
		return nil
	})
	return out, err
}

// Resident reports whether key is loaded.
func (p *Pool) Resident(key Key) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.tiles[key]
	return ok
}

// Len returns the number of resident tiles.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tiles)
}

// FlushAll persists every dirty resident tile, at most parallelism at a time.
func (p *Pool) FlushAll(ctx context.Context, parallelism int) error {
	if p.opts.Flush == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, parallelism))
	for _, t := range p.tiles {
		if !t.IsDirty() {
			continue
		}
		g.Go(func() error {
			return p.flush(ctx, t)
		})
	}
	return g.Wait()
}

// Invalidate removes every resident tile match selects, flushing dirty ones
// first. A tile whose flush fails stays resident and its error is returned.
// Loads already in flight are discarded and retried. It returns how many
// tiles were removed.
func (p *Pool) Invalidate(ctx context.Context, match func(Key) bool) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen.Add(1)

	var (
		removed int
		errs    []error
	)
	for key, t := range p.tiles {
		if !match(key) {
			continue
		}
		if p.opts.Flush != nil && t.IsDirty() {
			if err := p.flush(ctx, t); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		delete(p.tiles, key)
		removed++
	}
	p.invalidations.Add(uint64(removed)) //nolint:gosec // removed is non-negative
	return removed, errors.Join(errs...)
}

// Clear drops every resident tile without flushing.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tiles = make(map[Key]*Tile, p.opts.Capacity)
}

// Stats returns occupancy and churn counters.
func (p *Pool) Stats() domain.TileStats {
	return domain.TileStats{
		Resident:      p.Len(),
		Capacity:      p.opts.Capacity,
		Hits:          p.hits.Load(),
		Loads:         p.loads.Load(),
		Evictions:     p.evictions.Load(),
		Flushes:       p.flushes.Load(),
		Invalidations: p.invalidations.Load(),
	}
}

func (p *Pool) touch(t *Tile) {
	t.lastAccess.Store(p.tick.Add(1))
}

func (p *Pool) ensure(ctx context.Context, key Key) error {
	_, err, _ := p.group.Do(key.String(), func() (any, error) {
		if p.Resident(key) {
			return nil, nil
		}
		gen := p.gen.Load()
		t, err := p.opts.Load(ctx, key)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrTileLoadFailed, err.Error()), "tile", key.String())
		}
		return nil, p.insert(ctx, t, gen)
	})
	return err
}

// insert makes t resident unless the pool was invalidated since gen was read.
func (p *Pool) insert(ctx context.Context, t *Tile, gen uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen.Load() != gen {
		return nil
	}
	if _, ok := p.tiles[t.key]; ok {
		return nil
	}
	for len(p.tiles) >= p.opts.Capacity {
		if err := p.evictLocked(ctx); err != nil {
			return err
		}
	}
	t.lastAccess.Store(p.tick.Add(1))
	p.tiles[t.key] = t
	p.loads.Add(1)
	return nil
}

// evictLocked removes the least recently used tile, flushing it first when
// configured. A failed flush keeps the tile resident.
func (p *Pool) evictLocked(ctx context.Context) error {
	var (
		victim *Tile
		oldest uint64
	)
	for _, t := range p.tiles {
		if a := t.lastAccess.Load(); victim == nil || a < oldest {
			victim, oldest = t, a
		}
	}
	if victim == nil {
		return nil
	}
	if p.opts.FlushBeforeEvict && p.opts.Flush != nil && victim.IsDirty() {
		if err := p.flush(ctx, victim); err != nil {
			return err
		}
	}
	delete(p.tiles, victim.key)
	p.evictions.Add(1)
	return nil
}

func (p *Pool) flush(ctx context.Context, t *Tile) error {
	if err := p.opts.Flush(ctx, t); err != nil {
		return zerr.With(zerr.Wrap(domain.ErrTileFlushFailed, err.Error()), "tile", t.key.String())
	}
	p.flushes.Add(1)
	return nil
}
