package querycache_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/engine/octree"
	"go.trai.ch/strata/internal/engine/querycache"
	"golang.org/x/sync/errgroup"
)

func newCache(t *testing.T, opts querycache.Options) *querycache.Cache {
	t.Helper()
	tree, err := octree.New(octree.Options{
		Bounds:            domain.Bounds{Max: domain.Vec3{X: 64, Y: 64, Z: 64}},
		MaxDepth:          6,
		CollapseThreshold: 0.9,
		DefaultMaterial:   domain.Air(),
	})
	require.NoError(t, err)
	return querycache.New(tree, opts)
}

func TestCache_PointHitAfterMiss(t *testing.T) {
	c := newCache(t, querycache.Options{})
	pos := domain.Vec3{X: 10.5, Y: 3, Z: 7}

	m, err := c.GetMaterialAt(pos, 6)
	require.NoError(t, err)
	assert.Equal(t, domain.Air(), m)

	m, err = c.GetMaterialAt(pos, 6)
	require.NoError(t, err)
	assert.Equal(t, domain.Air(), m)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.PointHits)
	assert.Equal(t, uint64(1), s.PointMisses)
	assert.Equal(t, 1, s.PointEntries)
	assert.Equal(t, 1, s.SpatialEntries)
}

func TestCache_SpatialHitWithinSameCell(t *testing.T) {
	c := newCache(t, querycache.Options{})

	// Depth 3 cells are 8 units wide.
	_, err := c.GetMaterialAt(domain.Vec3{X: 1, Y: 1, Z: 1}, 3)
	require.NoError(t, err)
	_, err = c.GetMaterialAt(domain.Vec3{X: 7, Y: 2, Z: 5}, 3)
	require.NoError(t, err)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.SpatialHits)
	assert.Equal(t, 2, s.PointEntries)
	assert.Equal(t, 1, s.SpatialEntries)
}

func TestCache_WriteInvalidatesAffectedEntries(t *testing.T) {
	c := newCache(t, querycache.Options{})
	inside := domain.Vec3{X: 1, Y: 1, Z: 1}
	outside := domain.Vec3{X: 60, Y: 60, Z: 60}

	for _, p := range []domain.Vec3{inside, outside} {
		_, err := c.GetMaterialAt(p, 6)
		require.NoError(t, err)
	}

	_, err := c.SetMaterial(inside, domain.Rock(), 2)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Stats().PointEntries)

	m, err := c.GetMaterialAt(inside, 6)
	require.NoError(t, err)
	assert.Equal(t, domain.Rock(), m)

	m, err = c.GetMaterialAt(outside, 6)
	require.NoError(t, err)
	assert.Equal(t, domain.Air(), m)
}

func TestCache_CoarserEntriesSurviveFinerWrites(t *testing.T) {
	c := newCache(t, querycache.Options{})
	pos := domain.Vec3{X: 1, Y: 1, Z: 1}

	coarse, err := c.GetMaterialAt(pos, 1)
	require.NoError(t, err)

	_, err = c.SetMaterial(pos, domain.Sand(), 6)
	require.NoError(t, err)

	again, err := c.GetMaterialAt(pos, 1)
	require.NoError(t, err)
	assert.Equal(t, coarse, again)
	assert.Equal(t, uint64(1), c.Stats().PointHits)

	fine, err := c.GetMaterialAt(pos, 6)
	require.NoError(t, err)
	assert.Equal(t, domain.Sand(), fine)
}

func TestCache_PointLayerIsBounded(t *testing.T) {
	c := newCache(t, querycache.Options{PointCapacity: 4})

	for i := range 10 {
		_, err := c.GetMaterialAt(domain.Vec3{X: float64(i), Y: 0, Z: 0}, 6)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, c.Stats().PointEntries)
}

func TestCache_SpatialLayerIsBounded(t *testing.T) {
	c := newCache(t, querycache.Options{SpatialCapacity: 8})

	for i := range 32 {
		_, err := c.GetMaterialAt(domain.Vec3{X: float64(i * 2), Y: 0, Z: 0}, 6)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, c.Stats().SpatialEntries, 8)
}

func TestCache_PathEntriesExpire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newCache(t, querycache.Options{PathTTL: time.Minute, Clock: clock})

	_, err := c.GetMaterialAtPath("012")
	require.NoError(t, err)
	_, err = c.GetMaterialAtPath("012")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Stats().PathHits)

	clock.Advance(2 * time.Minute)

	_, err = c.GetMaterialAtPath("012")
	require.NoError(t, err)
	s := c.Stats()
	assert.Equal(t, uint64(1), s.PathHits)
	assert.Equal(t, uint64(2), s.PathMisses)
}

func TestCache_WriteInvalidatesPathsBelow(t *testing.T) {
	c := newCache(t, querycache.Options{})
	pos := domain.Vec3{X: 1, Y: 1, Z: 1}

	path, err := c.SetMaterial(pos, domain.Rock(), 2)
	require.NoError(t, err)

	deep := path + "7"
	m, err := c.GetMaterialAtPath(deep)
	require.NoError(t, err)
	assert.Equal(t, domain.Rock(), m)

	_, err = c.SetMaterial(pos, domain.Water(), 2)
	require.NoError(t, err)

	m, err = c.GetMaterialAtPath(deep)
	require.NoError(t, err)
	assert.Equal(t, domain.Water(), m)
}

func TestCache_InvalidPathIsRejected(t *testing.T) {
	c := newCache(t, querycache.Options{})
	_, err := c.GetMaterialAtPath("8")
	require.ErrorIs(t, err, domain.ErrInvalidPath)
}

func TestCache_FillRegionDropsEverything(t *testing.T) {
	c := newCache(t, querycache.Options{})
	pos := domain.Vec3{X: 40, Y: 40, Z: 40}

	_, err := c.GetMaterialAt(pos, 6)
	require.NoError(t, err)

	region := domain.Bounds{Min: domain.Vec3{X: 32, Y: 32, Z: 32}, Max: domain.Vec3{X: 64, Y: 64, Z: 64}}
	n, err := c.FillRegion(context.Background(), region, domain.Water(), 6)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, c.Stats().PointEntries)

	m, err := c.GetMaterialAt(pos, 6)
	require.NoError(t, err)
	assert.Equal(t, domain.Water(), m)
}

func TestCache_ConcurrentReadersSeeLatestWrite(t *testing.T) {
	c := newCache(t, querycache.Options{PointCapacity: 64, SpatialCapacity: 64})
	target := domain.Vec3{X: 5, Y: 5, Z: 5}

	g, ctx := errgroup.WithContext(context.Background())
	for w := range 4 {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), 1))
			for range 500 {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p := domain.Vec3{X: rng.Float64() * 64, Y: rng.Float64() * 64, Z: rng.Float64() * 64}
				if _, err := c.GetMaterialAt(p, rng.IntN(7)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for i := range 200 {
			mat := domain.Rock()
			if i%2 == 1 {
				mat = domain.Sand()
			}
			if _, err := c.SetMaterial(target, mat, 6); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	m, err := c.GetMaterialAt(target, 6)
	require.NoError(t, err)
	assert.Equal(t, domain.Sand(), m)
}

func TestCache_PointLayerEvictsLeastRecentlyUsed(t *testing.T) {
	c := newCache(t, querycache.Options{PointCapacity: 2})
	a := domain.Vec3{X: 1, Y: 1, Z: 1}
	b := domain.Vec3{X: 20, Y: 1, Z: 1}
	d := domain.Vec3{X: 40, Y: 1, Z: 1}

	for _, p := range []domain.Vec3{a, b, a, d} {
		_, err := c.GetMaterialAt(p, 6)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(1), c.Stats().PointHits)

	_, err := c.GetMaterialAt(a, 6)
	require.NoError(t, err)
	_, err = c.GetMaterialAt(b, 6)
	require.NoError(t, err)

	s := c.Stats()
	assert.Equal(t, uint64(2), s.PointHits, "a was used more recently than b")
	assert.Equal(t, uint64(4), s.PointMisses)
}

func TestCache_InvalidatePathDropsPositionAnswers(t *testing.T) {
	c := newCache(t, querycache.Options{})
	pos := domain.Vec3{X: 1, Y: 1, Z: 1}
	sibling := domain.Vec3{X: 7, Y: 2, Z: 5}

	_, err := c.GetMaterialAt(pos, 3)
	require.NoError(t, err)
	_, err = c.GetMaterialAtPath("012")
	require.NoError(t, err)
	_, err = c.GetMaterialAtPath("7")
	require.NoError(t, err)

	c.InvalidatePath("01")

	s := c.Stats()
	assert.Equal(t, 0, s.PointEntries)
	assert.Equal(t, 0, s.SpatialEntries)
	assert.Equal(t, 1, s.PathEntries)
	assert.Equal(t, uint64(1), s.Invalidations)

	// Neither the exact position nor its cell answers from cache any more.
	_, err = c.GetMaterialAt(pos, 3)
	require.NoError(t, err)
	_, err = c.GetMaterialAt(sibling, 3)
	require.NoError(t, err)

	s = c.Stats()
	assert.Equal(t, uint64(0), s.PointHits)
	assert.Equal(t, uint64(3), s.PointMisses)
	assert.Equal(t, uint64(1), s.SpatialHits)

	_, err = c.GetMaterialAtPath("7")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Stats().PathHits)
}

func TestCache_InvalidateAllEmptiesEveryLayer(t *testing.T) {
	c := newCache(t, querycache.Options{})
	pos := domain.Vec3{X: 1, Y: 1, Z: 1}

	_, err := c.GetMaterialAt(pos, 6)
	require.NoError(t, err)
	_, err = c.GetMaterialAtPath("012")
	require.NoError(t, err)

	c.InvalidateAll()

	s := c.Stats()
	assert.Equal(t, 0, s.PointEntries)
	assert.Equal(t, 0, s.SpatialEntries)
	assert.Equal(t, 0, s.PathEntries)

	_, err = c.GetMaterialAt(pos, 6)
	require.NoError(t, err)
	_, err = c.GetMaterialAtPath("012")
	require.NoError(t, err)

	s = c.Stats()
	assert.Equal(t, uint64(0), s.PointHits)
	assert.Equal(t, uint64(0), s.SpatialHits)
	assert.Equal(t, uint64(0), s.PathHits)
}
