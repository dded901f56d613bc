package octree

import (
	"context"

	"go.trai.ch/strata/internal/core/domain"
)

// FillRegion writes m over region. Nodes fully inside the region receive the
// material at the coarsest level that fits. Partially covered nodes are
// subdivided down to depth, where a node is written when its centre lies in
// the region. It returns the number of nodes written.
func (t *Tree) FillRegion(ctx context.Context, region domain.Bounds, m domain.Material, depth int) (int, error) {
	if err := region.Validate(); err != nil {
		return 0, err
	}
	if !region.Intersects(t.opts.Bounds) {
		return 0, nil
	}
	depth = t.clampDepth(depth)

	t.mu.Lock()
	defer t.mu.Unlock()

	written := 0
	err := t.fill(ctx, t.root, region, m, depth, &written)
	return written, err
}

func (t *Tree) fill(
	ctx context.Context, id NodeID, region domain.Bounds, m domain.Material, depth int, written *int,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := t.arena.nodes[id].bounds
	if !b.Intersects(region) {
		return nil
	}
	level := int(t.arena.nodes[id].level)
	if region.ContainsBounds(b) {
		t.assign(id, m)
		*written++
		return nil
	}
	if level >= depth {
		if region.Contains(b.Center()) {
			t.assign(id, m)
			*written++
		}
		return nil
	}

	t.ensureChildren(id)
	children := t.arena.nodes[id].children
	for _, c := range children {
		if err := t.fill(ctx, c, region, m, depth, written); err != nil {
			return err
		}
	}
	return nil
}

// Optimize collapses subtrees bottom-up wherever homogeneity reaches
// threshold. A node is only considered once all of its children are leaves,
// so detail is never folded away through a child that failed to collapse.
// It returns the number of collapses performed.
func (t *Tree) Optimize(ctx context.Context, threshold float64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	collapsed := 0
	err := t.optimize(ctx, t.root, threshold, &collapsed)
	return collapsed, err
}

func (t *Tree) optimize(ctx context.Context, id NodeID, threshold float64, collapsed *int) error {
	if !t.arena.nodes[id].hasChildren {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	allLeaves := true
	children := t.arena.nodes[id].children
	for _, c := range children {
		if err := t.optimize(ctx, c, threshold, collapsed); err != nil {
			return err
		}
		if t.arena.nodes[c].hasChildren {
			allLeaves = false
		}
	}
	if allLeaves && t.tryCollapse(id, threshold) {
		*collapsed++
	}
	return nil
}
