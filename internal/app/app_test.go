package app_test

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/strata/internal/adapters/chunkstore"
	"go.trai.ch/strata/internal/app"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/strata/internal/core/ports/mocks"
	"go.trai.ch/strata/internal/engine/octree"
	"go.trai.ch/strata/internal/engine/overlay"
	"go.trai.ch/strata/internal/engine/process"
	"go.trai.ch/strata/internal/engine/querycache"
	"go.trai.ch/strata/internal/engine/router"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testConfig is a 64-wide world with unit cells at depth 6 and 4-wide cells
// at the transition level. The coastline sits at x = 32 and sea level at z = 32.
func testConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.World.Bounds = domain.Bounds{Max: domain.Vec3{X: 64, Y: 64, Z: 64}}
	cfg.Octree.MaxDepth = 6
	cfg.Octree.CollapseThreshold = 1
	cfg.Router.TransitionLevel = 4
	cfg.Router.TileSize = 4
	cfg.Router.MaxActiveTiles = 16
	return cfg
}

type fixture struct {
	app    *app.App
	router *router.Router
}

func newFixture(t *testing.T, cfg domain.Config, store ports.ChunkStore, log ports.Logger) fixture {
	t.Helper()

	tree, err := octree.New(octree.OptionsFromConfig(cfg))
	require.NoError(t, err)
	cache := querycache.New(tree, querycache.OptionsFromConfig(cfg))
	strategy, err := overlay.NewStrategy(cfg.Overlay)
	require.NoError(t, err)
	ov := overlay.New(cache, overlay.Options{
		ConsolidationThreshold: cfg.Overlay.ConsolidationThreshold,
		Strategy:               strategy,
	})
	r, err := router.New(cache, ov, nil, router.OptionsFromConfig(cfg))
	require.NoError(t, err)

	runner := process.NewRunner(r, process.Options{})
	a := app.New(cfg, r, runner, store, log)
	return fixture{app: a, router: r}
}

func quietFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()

	f := newFixture(t, testConfig(), chunkstore.NewMemoryStore(), log)
	t.Cleanup(func() { require.NoError(t, f.app.Close(context.Background())) })
	return f
}

func read(t *testing.T, r *router.Router, x, y, z float64) domain.Material {
	t.Helper()
	m, err := r.ReadVoxel(domain.Vec3{X: x, Y: y, Z: z})
	require.NoError(t, err)
	return m
}

func TestApp_SeedBuildsCoastline(t *testing.T) {
	f := quietFixture(t)

	n, err := f.app.Seed(context.Background())
	require.NoError(t, err)
	assert.Positive(t, n)

	assert.Equal(t, domain.Basalt(), read(t, f.router, 10, 10, 10))
	assert.Equal(t, domain.Sand(), read(t, f.router, 40, 32, 26))
	assert.Equal(t, domain.Ocean(), read(t, f.router, 40, 32, 30))
	assert.Equal(t, domain.Granite(), read(t, f.router, 20, 32, 30))
	assert.Equal(t, domain.Soil(), read(t, f.router, 20, 32, 38))
	assert.Equal(t, domain.Air(), read(t, f.router, 30, 32, 38), "no soil on the cliff edge")
	assert.Equal(t, domain.Air(), read(t, f.router, 40, 32, 50))
}

func TestApp_SimulateWeathersExposedCliff(t *testing.T) {
	f := quietFixture(t)

	report, err := f.app.Simulate(context.Background(), app.SimulateOptions{
		Kinds:      []process.Kind{process.Weathering},
		Ticks:      1,
		Intensity:  1,
		Seed:       7,
		Partitions: 2,
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	// The cliff top is four columns wide and four deep; soil covers the rest
	// of the continent.
	assert.Equal(t, 16, report.Results[0].Applied)
	assert.Equal(t, 16*4*12, report.Results[0].Examined)
	assert.Equal(t, domain.Sand(), read(t, f.router, 29.5, 32.5, 35.5))
	assert.Equal(t, domain.Granite(), read(t, f.router, 25.5, 32.5, 35.5))

	total := 0
	for _, c := range report.Composition {
		total += c
	}
	assert.Equal(t, 16*4*12, total)
	assert.Positive(t, report.Stats.TileQueries)
	assert.Equal(t, "air", report.SortedComposition()[0])
}

func TestApp_SimulateIsIndependentOfPartitioning(t *testing.T) {
	opts := app.SimulateOptions{
		Kinds:     process.Kinds(),
		Ticks:     3,
		Intensity: 0.5,
		Seed:      99,
	}

	run := func(partitions int) app.Report {
		f := quietFixture(t)
		o := opts
		o.Partitions = partitions
		report, err := f.app.Simulate(context.Background(), o)
		require.NoError(t, err)
		return report
	}

	one, many := run(1), run(4)
	assert.Equal(t, one.Results, many.Results)
	assert.Equal(t, one.Composition, many.Composition)
}

func TestApp_SimulateRejectsNegativeTicks(t *testing.T) {
	f := quietFixture(t)

	_, err := f.app.Simulate(context.Background(), app.SimulateOptions{Ticks: -1})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestApp_SimulateStopsOnCancellation(t *testing.T) {
	f := quietFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.app.Simulate(ctx, app.SimulateOptions{Kinds: process.Kinds(), Ticks: 1, Intensity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.ErrSimulationFailed.Error())
}

func TestApp_SimulateReportsElapsedTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info("simulated 0 ticks in 0s")

	f := newFixture(t, testConfig(), chunkstore.NewMemoryStore(), log)
	t.Cleanup(func() { require.NoError(t, f.router.Close(context.Background())) })
	app.WithClock(clockwork.NewFakeClock())(f.app)

	report, err := f.app.Simulate(context.Background(), app.SimulateOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Elapsed)
	assert.Positive(t, report.Seeded)
	assert.Empty(t, report.Results)
}

func TestApp_CloseReleasesStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockChunkStore(ctrl)
	store.EXPECT().Close().Return(nil)

	f := newFixture(t, testConfig(), store, mocks.NewMockLogger(ctrl))
	require.NoError(t, f.app.Close(context.Background()))
}

func TestReport_SortedComposition(t *testing.T) {
	r := app.Report{Composition: map[string]int{"water": 3, "air": 5, "sand": 3}}

	assert.Equal(t, []string{"air", "sand", "water"}, r.SortedComposition())
}
