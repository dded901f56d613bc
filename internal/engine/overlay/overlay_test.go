package overlay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/strata/internal/core/ports/mocks"
	"go.trai.ch/strata/internal/engine/overlay"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errDiskFull = errors.New("disk full")

// memBase is an in-memory base store where unwritten positions hold rock.
type memBase struct {
	mu     sync.Mutex
	cells  map[domain.Vec3]domain.Material
	writes int
	fail   bool
}

func newMemBase() *memBase {
	return &memBase{cells: make(map[domain.Vec3]domain.Material)}
}

func (b *memBase) MaterialAt(pos domain.Vec3) (domain.Material, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.cells[pos]; ok {
		return m, nil
	}
	return domain.Rock(), nil
}

func (b *memBase) SetMaterialAt(pos domain.Vec3, m domain.Material) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errDiskFull
	}
	b.cells[pos] = m
	b.writes++
	return nil
}

func (b *memBase) get(pos domain.Vec3) domain.Material {
	m, _ := b.MaterialAt(pos)
	return m
}

func at(x float64) domain.Vec3 {
	return domain.Vec3{X: x, Y: 1, Z: 2}
}

func TestOverlay_DeltaTakesPrecedence(t *testing.T) {
	base := newMemBase()
	o := overlay.New(base, overlay.Options{})
	ctx := context.Background()

	require.NoError(t, o.WriteVoxel(ctx, at(1), domain.Sand()))

	m, err := o.ReadVoxel(at(1))
	require.NoError(t, err)
	assert.Equal(t, domain.Sand(), m)
	assert.Equal(t, domain.Rock(), base.get(at(1)))
	assert.True(t, o.HasDelta(at(1)))
	assert.Equal(t, 1, o.Count())
}

func TestOverlay_WritingBaseValueIsElided(t *testing.T) {
	base := newMemBase()
	o := overlay.New(base, overlay.Options{})
	ctx := context.Background()

	require.NoError(t, o.WriteVoxel(ctx, at(1), domain.Rock()))
	assert.Equal(t, 0, o.Count())
	assert.False(t, o.HasDelta(at(1)))

	require.NoError(t, o.WriteVoxel(ctx, at(1), domain.Sand()))
	require.Equal(t, 1, o.Count())

	require.NoError(t, o.WriteVoxel(ctx, at(1), domain.Rock()))
	assert.Equal(t, 0, o.Count())

	m, err := o.ReadVoxel(at(1))
	require.NoError(t, err)
	assert.Equal(t, domain.Rock(), m)
	assert.Equal(t, uint64(2), o.Stats().Elided)
}

func TestOverlay_RewriteKeepsSingleEntry(t *testing.T) {
	o := overlay.New(newMemBase(), overlay.Options{})
	ctx := context.Background()

	require.NoError(t, o.WriteVoxel(ctx, at(1), domain.Sand()))
	require.NoError(t, o.WriteVoxel(ctx, at(1), domain.Soil()))
	assert.Equal(t, 1, o.Count())

	m, err := o.ReadVoxel(at(1))
	require.NoError(t, err)
	assert.Equal(t, domain.Soil(), m)
}

func TestOverlay_WriteMaterialBatch(t *testing.T) {
	o := overlay.New(newMemBase(), overlay.Options{})
	ctx := context.Background()

	require.NoError(t, o.WriteMaterialBatch(ctx, []domain.VoxelWrite{
		{Position: at(1), Material: domain.Sand()},
		{Position: at(2), Material: domain.Rock()},
		{Position: at(-3), Material: domain.Ice()},
		{Position: at(1), Material: domain.Soil()},
	}))

	assert.Equal(t, 2, o.Count())
	m, ok := o.Lookup(at(1))
	require.True(t, ok)
	assert.Equal(t, domain.Soil(), m)
	_, ok = o.Lookup(at(2))
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	err := o.WriteMaterialBatch(ctx, []domain.VoxelWrite{{Position: at(9), Material: domain.Sand()}})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, o.HasDelta(at(9)))
}

func TestOverlay_DiscardDropsDeltasInsideRegion(t *testing.T) {
	base := newMemBase()
	o := overlay.New(base, overlay.Options{})
	ctx := context.Background()

	for _, x := range []float64{-4, 1, 3, 8} {
		require.NoError(t, o.WriteVoxel(ctx, at(x), domain.Sand()))
	}

	region := domain.Bounds{Min: domain.Vec3{X: 0, Y: 0, Z: 0}, Max: domain.Vec3{X: 4, Y: 4, Z: 4}}
	assert.Equal(t, 2, o.Discard(region))
	assert.Equal(t, 2, o.Count())
	assert.True(t, o.HasDelta(at(-4)))
	assert.False(t, o.HasDelta(at(1)))
	assert.Equal(t, domain.Rock(), base.get(at(1)), "discarded deltas never reach base storage")
}

func TestOverlay_ConsolidateBelowThresholdIsNoop(t *testing.T) {
	base := newMemBase()
	o := overlay.New(base, overlay.Options{})
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, o.WriteVoxel(ctx, at(float64(i)), domain.Sand()))
	}

	n, err := o.ConsolidateDeltas(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, o.Count())
	assert.Equal(t, 0, base.writes)
}

func TestOverlay_LazyThresholdAppliesOldestHalf(t *testing.T) {
	clock := clockwork.NewFakeClock()
	base := newMemBase()
	o := overlay.New(base, overlay.Options{Clock: clock, Strategy: overlay.LazyThreshold{Fraction: 0.5}})
	ctx := context.Background()

	for i := range 4 {
		require.NoError(t, o.WriteVoxel(ctx, at(float64(i)), domain.Sand()))
		clock.Advance(time.Second)
	}

	n, err := o.ConsolidateDeltas(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, o.Count())

	assert.Equal(t, domain.Sand(), base.get(at(0)))
	assert.Equal(t, domain.Sand(), base.get(at(1)))
	assert.Equal(t, domain.Rock(), base.get(at(2)))
	assert.True(t, o.HasDelta(at(3)))

	for i := range 4 {
		m, err := o.ReadVoxel(at(float64(i)))
		require.NoError(t, err)
		assert.Equal(t, domain.Sand(), m)
	}
}

func TestOverlay_FlushAppliesEverything(t *testing.T) {
	base := newMemBase()
	o := overlay.New(base, overlay.Options{})
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, o.WriteVoxel(ctx, at(float64(i)), domain.Ice()))
	}
	n, err := o.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 0, o.Count())
	for i := range 5 {
		assert.Equal(t, domain.Ice(), base.get(at(float64(i))))
	}
}

func TestOverlay_AutomaticConsolidation(t *testing.T) {
	base := newMemBase()
	o := overlay.New(base, overlay.Options{ConsolidationThreshold: 3})
	ctx := context.Background()

	for i := range 4 {
		require.NoError(t, o.WriteVoxel(ctx, at(float64(i)), domain.Sand()))
	}

	assert.Equal(t, 2, o.Count())
	assert.Equal(t, 2, base.writes)
	assert.Equal(t, uint64(1), o.Stats().ConsolidationRuns)
}

func TestOverlay_FailedConsolidationKeepsDeltas(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Error(gomock.Any()).Times(1)

	base := newMemBase()
	base.fail = true
	o := overlay.New(base, overlay.Options{ConsolidationThreshold: 2, Logger: log})
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, o.WriteVoxel(ctx, at(float64(i)), domain.Sand()))
	}
	assert.Equal(t, 3, o.Count())

	_, err := o.Flush(ctx)
	require.ErrorIs(t, err, domain.ErrConsolidationFailed)
	assert.Equal(t, 3, o.Count())

	for i := range 3 {
		m, err := o.ReadVoxel(at(float64(i)))
		require.NoError(t, err)
		assert.Equal(t, domain.Sand(), m)
	}
}

func TestOverlay_ConsolidationReportsToTracer(t *testing.T) {
	ctrl := gomock.NewController(t)
	tracer := mocks.NewMockTracer(ctrl)
	span := mocks.NewMockSpan(ctrl)

	tracer.EXPECT().Start(gomock.Any(), "overlay.consolidate").DoAndReturn(
		func(ctx context.Context, _ string) (context.Context, ports.Span) { return ctx, span },
	)
	span.EXPECT().SetAttribute("batch.id", gomock.Any())
	span.EXPECT().SetAttribute("strategy", "all")
	span.EXPECT().SetAttribute("applied", 1)
	span.EXPECT().End()

	o := overlay.New(newMemBase(), overlay.Options{Tracer: tracer})
	require.NoError(t, o.WriteVoxel(context.Background(), at(1), domain.Sand()))

	n, err := o.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOverlay_ConcurrentWritersAndConsolidation(t *testing.T) {
	base := newMemBase()
	o := overlay.New(base, overlay.Options{ConsolidationThreshold: 16})
	ctx, cancel := context.WithCancel(context.Background())

	consolidator := make(chan error, 1)
	go func() {
		for ctx.Err() == nil {
			if _, err := o.ConsolidateDeltas(ctx, 0); err != nil && !errors.Is(err, context.Canceled) {
				consolidator <- err
				return
			}
		}
		consolidator <- nil
	}()

	const writers, rounds = 8, 200
	seq := []domain.Material{domain.Sand(), domain.Soil(), domain.Rock(), domain.Ice()}

	var g errgroup.Group
	for w := range writers {
		g.Go(func() error {
			pos := at(float64(w))
			for r := range rounds {
				if err := o.WriteVoxel(context.Background(), pos, seq[r%len(seq)]); err != nil {
					return err
				}
				if _, err := o.ReadVoxel(pos); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	cancel()
	require.NoError(t, <-consolidator)

	_, err := o.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, o.Count())

	want := seq[(rounds-1)%len(seq)]
	for w := range writers {
		assert.Equal(t, want, base.get(at(float64(w))), "writer %d", w)
	}
}

func TestOverlay_OnApplyReportsAppliedPositions(t *testing.T) {
	base := newMemBase()
	o := overlay.New(base, overlay.Options{})
	ctx := context.Background()

	var reported [][]domain.Vec3
	o.OnApply(func(applied []domain.Vec3) {
		reported = append(reported, applied)
	})

	require.NoError(t, o.WriteVoxel(ctx, at(1), domain.Sand()))
	require.NoError(t, o.WriteVoxel(ctx, at(2), domain.Ice()))

	n, err := o.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, reported, 1)
	assert.ElementsMatch(t, []domain.Vec3{at(1), at(2)}, reported[0])
	assert.Equal(t, uint64(2), o.Stats().Consolidated)

	_, err = o.Flush(ctx)
	require.NoError(t, err)
	assert.Len(t, reported, 1, "an empty pass is not reported")
}
