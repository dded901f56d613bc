// Package process runs surface processes over a region of the world.
//
// Every process goes through the same pipeline: validate, determine the
// region, filter candidates, compute changes, validate changes, apply, and
// post-process. A process kind only supplies the per-kind functions; the
// pipeline itself never changes. Processes see the world only through
// ReadVoxel and WriteMaterialBatch.
package process

import (
	"context"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/zerr"
)

// Kind names a process.
type Kind string

// Known process kinds.
const (
	Erosion    Kind = "erosion"
	Deposition Kind = "deposition"
	Weathering Kind = "weathering"
)

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{Erosion, Deposition, Weathering}
}

// ParseKind resolves a case-insensitive kind name.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := strategies[k]; !ok {
		return "", zerr.With(zerr.Wrap(domain.ErrUnknownProcess, name), "process", name)
	}
	return k, nil
}

// Voxels is the world surface a process reads and writes.
type Voxels interface {
	ReadVoxel(pos domain.Vec3) (domain.Material, error)
	WriteMaterialBatch(ctx context.Context, updates []domain.VoxelWrite) error
}

// Params bounds and tunes a single run.
type Params struct {
	Region domain.Bounds
	// Step is the spacing between sampled positions.
	Step float64
	// Intensity is the probability that an eligible voxel changes.
	Intensity float64
	// Seed makes the outcome reproducible. Decisions depend only on the seed
	// and the position, never on evaluation order.
	Seed uint64
}

// Result summarises a run.
type Result struct {
	Kind       Kind
	Examined   int
	Candidates int
	Proposed   int
	Applied    int
}

// Change is a proposed material change.
type Change struct {
	Position domain.Vec3
	From     domain.Material
	To       domain.Material
}

// Neighbours reads positions around a candidate.
type Neighbours func(pos domain.Vec3) (domain.Material, error)

type strategy struct {
	// filter selects candidate positions by their current material.
	filter func(m domain.Material) bool
	// compute proposes a new material for a candidate. It reports false to
	// leave the candidate unchanged.
	compute func(c candidate, read Neighbours) (domain.Material, bool, error)
	// accept is the per-kind check applied to every proposed change.
	accept func(ch Change) bool
}

type candidate struct {
	pos       domain.Vec3
	mat       domain.Material
	step      float64
	intensity float64
	// roll is this position's uniform draw in [0, 1).
	roll float64
}

// Options configures a Runner.
type Options struct {
	// MaxSamples caps how many positions one run may examine.
	MaxSamples int
	Logger     ports.Logger
	Tracer     ports.Tracer
}

// DefaultMaxSamples is the sample cap used when Options.MaxSamples is unset.
const DefaultMaxSamples = 1 << 20

// Runner executes processes against a voxel surface.
type Runner struct {
	voxels Voxels
	opts   Options
}

// NewRunner creates a runner over voxels.
func NewRunner(voxels Voxels, opts Options) *Runner {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = DefaultMaxSamples
	}
	return &Runner{voxels: voxels, opts: opts}
}

// Run executes kind over params.Region.
func (r *Runner) Run(ctx context.Context, kind Kind, params Params) (res Result, err error) {
	res.Kind = kind
	if r.opts.Tracer != nil {
		var span ports.Span
		ctx, span = r.opts.Tracer.Start(ctx, "process."+string(kind))
		defer func() {
			span.SetAttribute("examined", res.Examined)
			span.SetAttribute("applied", res.Applied)
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()
	}

	s, err := r.validate(kind, params)
	if err != nil {
		return res, err
	}

	positions := r.determineRegion(params)
	res.Examined = len(positions)

	candidates, err := r.filter(ctx, s, params, positions)
	if err != nil {
		return res, err
	}
	res.Candidates = len(candidates)

	changes, err := r.computeChanges(ctx, s, candidates)
	if err != nil {
		return res, err
	}
	res.Proposed = len(changes)

	changes = r.validateChanges(s, params, changes)

	if err := r.apply(ctx, changes); err != nil {
		return res, err
	}
	res.Applied = len(changes)

	r.postProcess(res)
	return res, nil
}

func (r *Runner) validate(kind Kind, params Params) (strategy, error) {
	s, ok := strategies[kind]
	if !ok {
		return strategy{}, zerr.With(zerr.Wrap(domain.ErrUnknownProcess, string(kind)), "process", string(kind))
	}
	if err := params.Region.Validate(); err != nil {
		return strategy{}, err
	}
	if params.Step <= 0 || math.IsNaN(params.Step) || math.IsInf(params.Step, 0) {
		return strategy{}, zerr.With(zerr.Wrap(domain.ErrInvalidConfiguration, "process step"), "value", params.Step)
	}
	if params.Intensity < 0 || params.Intensity > 1 || math.IsNaN(params.Intensity) {
		return strategy{}, zerr.With(
			zerr.Wrap(domain.ErrInvalidConfiguration, "process intensity"), "value", params.Intensity,
		)
	}
	size := params.Region.Size()
	samples := math.Ceil(size.X/params.Step) * math.Ceil(size.Y/params.Step) * math.Ceil(size.Z/params.Step)
	if samples > float64(r.opts.MaxSamples) {
		return strategy{}, zerr.With(
			zerr.Wrap(domain.ErrInvalidConfiguration, "process region too large for step"),
			"samples", samples,
		)
	}
	return s, nil
}

// determineRegion lays a grid of sample positions at Step spacing over the
// region, each at the centre of its step cell.
func (r *Runner) determineRegion(params Params) []domain.Vec3 {
	b := params.Region
	axis := func(lo, hi float64) []float64 {
		var out []float64
		for v := lo + params.Step/2; v < hi; v += params.Step {
			out = append(out, v)
		}
		return out
	}
	xs, ys, zs := axis(b.Min.X, b.Max.X), axis(b.Min.Y, b.Max.Y), axis(b.Min.Z, b.Max.Z)

	out := make([]domain.Vec3, 0, len(xs)*len(ys)*len(zs))
	for _, z := range zs {
		for _, y := range ys {
			for _, x := range xs {
				out = append(out, domain.Vec3{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

func (r *Runner) filter(ctx context.Context, s strategy, params Params, positions []domain.Vec3) ([]candidate, error) {
	var out []candidate
	for i, pos := range positions {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		m, err := r.voxels.ReadVoxel(pos)
		if err != nil {
			return nil, err
		}
		if !s.filter(m) {
			continue
		}
		out = append(out, candidate{
			pos:       pos,
			mat:       m,
			step:      params.Step,
			intensity: params.Intensity,
			roll:      roll(params.Seed, pos),
		})
	}
	return out, nil
}

func (r *Runner) computeChanges(ctx context.Context, s strategy, candidates []candidate) ([]Change, error) {
	read := Neighbours(r.voxels.ReadVoxel)
	var out []Change
	for i, c := range candidates {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		to, ok, err := s.compute(c, read)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "compute process change"), "position", c.pos.String())
		}
		if ok {
			out = append(out, Change{Position: c.pos, From: c.mat, To: to})
		}
	}
	return out, nil
}

// validateChanges drops no-op changes, changes outside the region and changes
// the kind rejects.
func (r *Runner) validateChanges(s strategy, params Params, changes []Change) []Change {
	kept := changes[:0]
	for _, ch := range changes {
		if ch.From == ch.To || !params.Region.Contains(ch.Position) {
			continue
		}
		if s.accept != nil && !s.accept(ch) {
			continue
		}
		kept = append(kept, ch)
	}
	return kept
}

func (r *Runner) apply(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	updates := make([]domain.VoxelWrite, len(changes))
	for i, ch := range changes {
		updates[i] = domain.VoxelWrite{Position: ch.Position, Material: ch.To}
	}
	return r.voxels.WriteMaterialBatch(ctx, updates)
}

func (r *Runner) postProcess(res Result) {
	if r.opts.Logger == nil || res.Applied == 0 {
		return
	}
	r.opts.Logger.Info(string(res.Kind) + ": " + strconv.Itoa(res.Applied) + " of " +
		strconv.Itoa(res.Examined) + " voxels changed")
}

// roll maps (seed, position) to a uniform value in [0, 1).
func roll(seed uint64, pos domain.Vec3) float64 {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:], seed)
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(pos.X))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(pos.Y))
	binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(pos.Z))
	return float64(xxhash.Sum64(buf[:])>>11) / (1 << 53)
}
