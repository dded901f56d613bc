// Package app implements the application layer for strata.
package app

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/strata/internal/engine/process"
	"go.trai.ch/strata/internal/engine/router"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// App seeds a world and runs surface processes against it.
type App struct {
	cfg    domain.Config
	router *router.Router
	runner *process.Runner
	store  ports.ChunkStore
	logger ports.Logger
	clock  clockwork.Clock
}

// New creates a new App instance.
func New(
	cfg domain.Config, r *router.Router, runner *process.Runner, store ports.ChunkStore, log ports.Logger,
) *App {
	return &App{
		cfg:    cfg,
		router: r,
		runner: runner,
		store:  store,
		logger: log,
		clock:  clockwork.NewRealClock(),
	}
}

// WithClock replaces the clock used to time simulations.
func WithClock(c clockwork.Clock) func(*App) {
	return func(a *App) {
		a.clock = c
	}
}

// SimulateOptions configures a simulation.
type SimulateOptions struct {
	Kinds      []process.Kind
	Ticks      int
	Intensity  float64
	Seed       uint64
	Partitions int
}

// Report summarises a simulation.
type Report struct {
	Seeded       int
	Ticks        int
	Results      []process.Result
	Consolidated int
	Collapsed    int
	// Composition counts the materials found at the survey's sample positions.
	Composition map[string]int
	Survey      domain.Bounds
	Stats       domain.Statistics
	Elapsed     time.Duration
}

// Seed initializes the coastline scenario and returns the number of nodes
// written.
func (a *App) Seed(ctx context.Context) (int, error) {
	s := a.scenario()

	total := 0
	for _, l := range s.layers() {
		if l.region.Validate() != nil {
			continue
		}
		n, err := a.router.InitializeHomogeneousRegion(ctx, l.region, l.material)
		if err != nil {
			return total, zerr.With(zerr.Wrap(err, "seed "+l.name), "region", l.region.String())
		}
		total += n
	}
	return total, nil
}

// Simulate seeds the world, runs each kind for the requested number of ticks
// over the coastline survey, consolidates, optimizes and reports.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) (Report, error) {
	start := a.clock.Now()
	if opts.Ticks < 0 {
		return Report{}, zerr.With(zerr.Wrap(domain.ErrInvalidConfiguration, "ticks"), "value", opts.Ticks)
	}
	if opts.Partitions <= 0 {
		opts.Partitions = 1
	}

	s := a.scenario()
	report := Report{Ticks: opts.Ticks, Survey: s.survey()}

	seeded, err := a.Seed(ctx)
	if err != nil {
		return report, wrapSimulation(err)
	}
	report.Seeded = seeded

	totals := make(map[process.Kind]*process.Result, len(opts.Kinds))
	for _, k := range opts.Kinds {
		totals[k] = &process.Result{Kind: k}
	}

	slabs := s.partitions(report.Survey, opts.Partitions)
	for tick := range opts.Ticks {
		for _, k := range opts.Kinds {
			params := process.Params{Step: s.step, Intensity: opts.Intensity, Seed: opts.Seed + uint64(tick)} //nolint:gosec // tick is non-negative
			if err := a.runPartitions(ctx, k, params, slabs, totals[k]); err != nil {
				return report, wrapSimulation(zerr.With(err, "tick", tick))
			}
		}

		// Every tick ends with the overlay drained, so the tree the next
		// tick and Optimize see does not depend on how writes interleaved.
		n, err := a.router.Flush(ctx)
		if err != nil {
			return report, wrapSimulation(zerr.With(err, "tick", tick))
		}
		report.Consolidated += n
	}

	for _, k := range opts.Kinds {
		report.Results = append(report.Results, *totals[k])
	}

	n, err := a.router.Optimize(ctx)
	if err != nil {
		return report, wrapSimulation(err)
	}
	report.Collapsed = n

	report.Composition, err = a.compose(ctx, s, report.Survey)
	if err != nil {
		return report, wrapSimulation(err)
	}

	report.Stats = a.router.GetStatistics()
	report.Elapsed = a.clock.Since(start)
	a.logger.Info("simulated " + strconv.Itoa(opts.Ticks) + " ticks in " + report.Elapsed.String())
	return report, nil
}

// runPartitions runs kind over every slab concurrently and adds the outcome to total.
func (a *App) runPartitions(
	ctx context.Context, kind process.Kind, params process.Params, slabs []domain.Bounds, total *process.Result,
) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, slab := range slabs {
		p := params
		p.Region = slab
		g.Go(func() error {
			res, err := a.runner.Run(gctx, kind, p)

			mu.Lock()
			total.Examined += res.Examined
			total.Candidates += res.Candidates
			total.Proposed += res.Proposed
			total.Applied += res.Applied
			mu.Unlock()
			return err
		})
	}
	return g.Wait()
}

// compose reads every survey sample one level finer than the tree serves, so
// the answers come from tiles.
func (a *App) compose(ctx context.Context, s scenario, survey domain.Bounds) (map[string]int, error) {
	lod := a.router.TransitionLevel() + 1
	out := make(map[string]int)
	for _, pos := range s.samples(survey) {
		m, err := a.router.QueryMaterial(ctx, pos, lod)
		if err != nil {
			return nil, err
		}
		name := domain.MaterialName(m)
		if name == "" {
			name = m.String()
		}
		out[name]++
	}
	return out, nil
}

// Statistics returns the router's current statistics.
func (a *App) Statistics() domain.Statistics {
	return a.router.GetStatistics()
}

// Close flushes the engine and releases the chunk store.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.router.Close(ctx), a.store.Close())
}

// SortedComposition returns the composition entries ordered by descending
// count, then name.
func (r Report) SortedComposition() []string {
	names := make([]string, 0, len(r.Composition))
	for name := range r.Composition {
		names = append(names, name)
	}
	slices.SortFunc(names, func(x, y string) int {
		return cmp.Or(r.Composition[y]-r.Composition[x], strings.Compare(x, y))
	})
	return names
}

func (a *App) scenario() scenario {
	return newScenario(a.cfg.World.Bounds, a.cfg.Router.TransitionLevel, a.cfg.Octree.MaxDepth)
}

func wrapSimulation(err error) error {
	return zerr.Wrap(err, domain.ErrSimulationFailed.Error())
}
