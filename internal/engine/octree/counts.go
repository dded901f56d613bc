package octree

import (
	"go.trai.ch/strata/internal/core/domain"
)

// effective walks toward the root until it finds an explicit material.
func (t *Tree) effective(id NodeID) domain.Material {
	for id != NilNode {
		n := &t.arena.nodes[id]
		if n.hasExplicit {
			return n.explicit
		}
		id = n.parent
	}
	return t.opts.DefaultMaterial
}

// representative is the material a node contributes to its parent's counts.
// Internal nodes without an explicit material are represented by their
// dominant child material.
func (t *Tree) representative(id NodeID) domain.Material {
	n := &t.arena.nodes[id]
	if n.hasExplicit {
		return n.explicit
	}
	if n.hasChildren {
		m, _ := dominant(n.counts)
		return m
	}
	return t.effective(id)
}

// dominant returns the most common material. Ties go to the lower material ID
// so the choice does not depend on map order.
func dominant(counts map[domain.Material]int) (domain.Material, int) {
	var (
		best  domain.Material
		count int
	)
	for m, c := range counts {
		if c > count || (c == count && less(m, best)) {
			best, count = m, c
		}
	}
	return best, count
}

func less(a, b domain.Material) bool {
	switch {
	case a.ID != b.ID:
		return a.ID < b.ID
	case a.Density != b.Density:
		return a.Density < b.Density
	case a.Hardness != b.Hardness:
		return a.Hardness < b.Hardness
	default:
		return a.Flags < b.Flags
	}
}

func (t *Tree) homogeneity(id NodeID) float64 {
	n := &t.arena.nodes[id]
	if !n.hasChildren {
		return 1.0
	}
	if !n.homogeneityValid {
		_, c := dominant(n.counts)
		n.homogeneity = float64(c) / ChildCount
		n.homogeneityValid = true
	}
	return n.homogeneity
}

func (t *Tree) updateCount(id NodeID, oldMat, newMat domain.Material) {
	if oldMat == newMat {
		return
	}
	n := &t.arena.nodes[id]
	if n.counts == nil {
		n.counts = make(map[domain.Material]int, 2)
	}
	if c := n.counts[oldMat]; c > 1 {
		n.counts[oldMat] = c - 1
	} else {
		delete(n.counts, oldMat)
	}
	n.counts[newMat]++
	n.homogeneityValid = false
}

// propagate pushes a representative change of id up through its ancestors,
// stopping at the first node whose representative is unaffected.
func (t *Tree) propagate(id NodeID, before domain.Material) {
	for {
		after := t.representative(id)
		parent := t.arena.nodes[id].parent
		if after == before || parent == NilNode {
			return
		}
		parentBefore := t.representative(parent)
		t.updateCount(parent, before, after)
		id, before = parent, parentBefore
	}
}

// subdivide gives a plain leaf eight children that inherit from it.
func (t *Tree) subdivide(id NodeID) {
	before := t.representative(id)
	inherited := t.effective(id)
	bounds := t.arena.nodes[id].bounds
	level := t.arena.nodes[id].level + 1

	var children [ChildCount]NodeID
	for i := range children {
		children[i] = t.arena.alloc(id, bounds.ChildBounds(i), level)
	}

	n := &t.arena.nodes[id]
	n.children = children
	n.hasChildren = true
	n.collapsed = false
	n.counts = map[domain.Material]int{inherited: ChildCount}
	n.homogeneityValid = false
	t.propagate(id, before)
}

func (t *Tree) ensureChildren(id NodeID) {
	n := &t.arena.nodes[id]
	if n.hasChildren {
		return
	}
	if n.collapsed {
		t.expand(id)
		return
	}
	t.subdivide(id)
}

func (t *Tree) expand(id NodeID) bool {
	n := &t.arena.nodes[id]
	if !n.collapsed || n.hasChildren {
		return false
	}
	t.subdivide(id)
	return true
}

func (t *Tree) tryCollapse(id NodeID, threshold float64) bool {
	n := &t.arena.nodes[id]
	if !n.hasChildren {
		return false
	}
	if t.homogeneity(id) < threshold {
		return false
	}

	before := t.representative(id)
	winner, _ := dominant(n.counts)
	t.arena.releaseChildren(id)

	n = &t.arena.nodes[id]
	n.explicit = winner
	n.hasExplicit = true
	n.collapsed = true
	t.propagate(id, before)
	return true
}

// assign makes m the explicit material of id and drops any finer detail.
func (t *Tree) assign(id NodeID, m domain.Material) {
	before := t.representative(id)
	t.arena.releaseChildren(id)

	n := &t.arena.nodes[id]
	n.explicit = m
	n.hasExplicit = true
	n.collapsed = false
	t.propagate(id, before)
}
