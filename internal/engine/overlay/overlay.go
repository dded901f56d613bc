// Package overlay buffers fine-grained writes in front of base storage and
// consolidates them in batches.
//
// Reads never block: a delta, when present, wins over base storage. Writers to
// the same position, and consolidation of that position, are serialised by a
// striped lock so a write cannot be lost between the base write and the delta
// removal.
package overlay

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/core/ports"
	"go.trai.ch/zerr"
)

const stripeCount = 64

// BaseStore is the storage the overlay consolidates into.
type BaseStore interface {
	MaterialAt(pos domain.Vec3) (domain.Material, error)
	SetMaterialAt(pos domain.Vec3, m domain.Material) error
}

// Options configures an Overlay.
type Options struct {
	// ConsolidationThreshold triggers automatic consolidation once the number
	// of active deltas exceeds it.
	ConsolidationThreshold int
	Strategy               Strategy
	Clock                  clockwork.Clock
	Logger                 ports.Logger
	Tracer                 ports.Tracer
}

// ApplyFunc observes the positions a consolidation pass wrote to base
// storage. It runs on the consolidating goroutine after the pass and must
// not wait on anything that writes to the overlay.
type ApplyFunc func(applied []domain.Vec3)

// Overlay is a concurrent delta buffer.
type Overlay struct {
	base BaseStore
	opts Options

	deltas  sync.Map // domain.Vec3 -> *domain.DeltaEntry
	count   atomic.Int64
	seq     atomic.Uint64
	stripes [stripeCount]sync.Mutex

	consolidating atomic.Bool
	onApply       atomic.Pointer[ApplyFunc]

	writes       atomic.Uint64
	elided       atomic.Uint64
	consolidated atomic.Uint64
	runs         atomic.Uint64
}

// New creates an overlay in front of base.
func New(base BaseStore, opts Options) *Overlay {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Strategy == nil {
		opts.Strategy = LazyThreshold{Fraction: 0.5}
	}
	if opts.ConsolidationThreshold <= 0 {
		opts.ConsolidationThreshold = domain.DefaultConsolidationThreshold
	}
	return &Overlay{base: base, opts: opts}
}

// ReadVoxel returns the buffered material at pos, or base storage's.
func (o *Overlay) ReadVoxel(pos domain.Vec3) (domain.Material, error) {
	if v, ok := o.deltas.Load(pos); ok {
		return v.(*domain.DeltaEntry).NewMaterial, nil //nolint:forcetypeassert // map only holds *DeltaEntry
	}
	return o.base.MaterialAt(pos)
}

// WriteVoxel buffers m at pos. Writing what base storage already holds drops
// any pending delta instead of adding one. Exceeding the consolidation
// threshold triggers a consolidation pass on the calling goroutine.
func (o *Overlay) WriteVoxel(ctx context.Context, pos domain.Vec3, m domain.Material) error {
	mu := o.stripe(pos)
	mu.Lock()
	base, err := o.base.MaterialAt(pos)
	if err != nil {
		mu.Unlock()
		return err
	}
	o.writes.Add(1)

	if m == base {
		if _, loaded := o.deltas.LoadAndDelete(pos); loaded {
			o.count.Add(-1)
		}
		o.elided.Add(1)
		mu.Unlock()
		return nil
	}

	entry := &domain.DeltaEntry{
		Position:     pos,
		BaseSnapshot: base,
		NewMaterial:  m,
		Timestamp:    o.opts.Clock.Now(),
		Seq:          o.seq.Add(1),
	}
	if _, loaded := o.deltas.Swap(pos, entry); !loaded {
		o.count.Add(1)
	}
	mu.Unlock()

	o.maybeConsolidate(ctx)
	return nil
}

// WriteMaterialBatch applies WriteVoxel to each update in order and stops at
// the first failure.
func (o *Overlay) WriteMaterialBatch(ctx context.Context, updates []domain.VoxelWrite) error {
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.WriteVoxel(ctx, u.Position, u.Material); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the pending delta at pos, if any.
func (o *Overlay) Lookup(pos domain.Vec3) (domain.Material, bool) {
	v, ok := o.deltas.Load(pos)
	if !ok {
		return domain.Material{}, false
	}
	return v.(*domain.DeltaEntry).NewMaterial, true //nolint:forcetypeassert // map only holds *DeltaEntry
}

// Discard drops every pending delta inside region without applying it and
// returns how many were dropped. Coarse writes use it so older point deltas
// cannot shadow them.
func (o *Overlay) Discard(region domain.Bounds) int {
	var dropped int
	o.deltas.Range(func(k, v any) bool {
		pos := k.(domain.Vec3) //nolint:forcetypeassert // keys are always positions
		if !region.Contains(pos) {
			return true
		}
		mu := o.stripe(pos)
		mu.Lock()
		if o.deltas.CompareAndDelete(pos, v) {
			o.count.Add(-1)
			dropped++
		}
		mu.Unlock()
		return true
	})
	return dropped
}

// HasDelta reports whether a delta is pending at pos.
func (o *Overlay) HasDelta(pos domain.Vec3) bool {
	_, ok := o.deltas.Load(pos)
	return ok
}

// Count returns the number of active deltas.
func (o *Overlay) Count() int {
	return int(o.count.Load())
}

// ConsolidateDeltas applies the strategy's selection to base storage. A
// positive threshold skips the pass while fewer deltas than threshold are
// pending. It returns the number of deltas applied.
func (o *Overlay) ConsolidateDeltas(ctx context.Context, threshold int) (int, error) {
	if threshold > 0 && o.Count() < threshold {
		return 0, nil
	}
	return o.consolidate(ctx, o.opts.Strategy)
}

// Flush applies every pending delta.
func (o *Overlay) Flush(ctx context.Context) (int, error) {
	return o.consolidate(ctx, all{})
}

// OnApply registers fn to observe every consolidation pass that applied at
// least one delta, replacing any earlier observer.
func (o *Overlay) OnApply(fn ApplyFunc) {
	o.onApply.Store(&fn)
}

// Stats returns overlay counters.
func (o *Overlay) Stats() domain.OverlayStats {
	return domain.OverlayStats{
		ActiveDeltas:      o.Count(),
		Writes:            o.writes.Load(),
		Elided:            o.elided.Load(),
		Consolidated:      o.consolidated.Load(),
		ConsolidationRuns: o.runs.Load(),
	}
}

// Strategy returns the configured consolidation strategy.
func (o *Overlay) Strategy() Strategy {
	return o.opts.Strategy
}

func (o *Overlay) maybeConsolidate(ctx context.Context) {
	if o.Count() <= o.opts.ConsolidationThreshold {
		return
	}
	if !o.consolidating.CompareAndSwap(false, true) {
		return
	}
	defer o.consolidating.Store(false)

	if _, err := o.consolidate(ctx, o.opts.Strategy); err != nil && o.opts.Logger != nil {
		o.opts.Logger.Error(zerr.Wrap(err, "automatic consolidation failed, deltas kept"))
	}
}

func (o *Overlay) consolidate(ctx context.Context, strategy Strategy) (int, error) {
	if o.opts.Tracer != nil {
		var span ports.Span
		ctx, span = o.opts.Tracer.Start(ctx, "overlay.consolidate")
		defer span.End()
		span.SetAttribute("batch.id", uuid.NewString())
		span.SetAttribute("strategy", strategy.Name())

		applied, err := o.apply(ctx, strategy)
		span.SetAttribute("applied", applied)
		if err != nil {
			span.RecordError(err)
		}
		return applied, err
	}
	return o.apply(ctx, strategy)
}

func (o *Overlay) apply(ctx context.Context, strategy Strategy) (int, error) {
	o.runs.Add(1)
	selected := strategy.Select(o.snapshot(), o.opts.Clock.Now())

	var applied []domain.Vec3
	defer func() {
		o.consolidated.Add(uint64(len(applied))) //nolint:gosec // length is non-negative
		if fn := o.onApply.Load(); fn != nil && len(applied) > 0 {
			(*fn)(applied)
		}
	}()

	for _, e := range selected {
		if err := ctx.Err(); err != nil {
			return len(applied), err
		}
		ok, err := o.applyOne(e)
		if err != nil {
			return len(applied), err
		}
		if ok {
			applied = append(applied, e.Position)
		}
	}
	return len(applied), nil
}

// applyOne writes e to base storage unless a newer write superseded it.
func (o *Overlay) applyOne(e *domain.DeltaEntry) (bool, error) {
	mu := o.stripe(e.Position)
	mu.Lock()
	defer mu.Unlock()

	cur, ok := o.deltas.Load(e.Position)
	if !ok || cur != e {
		return false, nil
	}
	if err := o.base.SetMaterialAt(e.Position, e.NewMaterial); err != nil {
		return false, zerr.With(zerr.Wrap(domain.ErrConsolidationFailed, err.Error()), "position", e.Position.String())
	}
	if o.deltas.CompareAndDelete(e.Position, e) {
		o.count.Add(-1)
	}
	return true, nil
}

func (o *Overlay) snapshot() []*domain.DeltaEntry {
	out := make([]*domain.DeltaEntry, 0, o.Count())
	o.deltas.Range(func(_, v any) bool {
		out = append(out, v.(*domain.DeltaEntry)) //nolint:forcetypeassert // map only holds *DeltaEntry
		return true
	})
	return out
}

func (o *Overlay) stripe(pos domain.Vec3) *sync.Mutex {
	var buf [24]byte
	putFloat(buf[0:8], pos.X)
	putFloat(buf[8:16], pos.Y)
	putFloat(buf[16:24], pos.Z)
	return &o.stripes[xxhash.Sum64(buf[:])%stripeCount]
}

// putFloat encodes f so that positions comparing equal hash equally.
func putFloat(b []byte, f float64) {
	if f == 0 {
		f = 0 // folds -0 into +0
	}
	binary.LittleEndian.PutUint64(b, math.Float64bits(f))
}
