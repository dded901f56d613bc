package octree

import (
	"math"

	"go.trai.ch/strata/internal/core/domain"
)

// Stats walks the tree and reports its shape.
func (t *Tree) Stats() domain.TreeStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var s domain.TreeStats
	t.walk(t.root, func(n *node) {
		s.Nodes++
		if n.hasExplicit {
			s.ExplicitNodes++
		}
		if n.collapsed {
			s.CollapsedNodes++
		}
		if int(n.level) > s.MaxLevel {
			s.MaxLevel = int(n.level)
		}
		if !n.hasChildren {
			s.Leaves++
			s.RepresentedCells += math.Pow(ChildCount, float64(t.opts.MaxDepth-int(n.level)))
		}
	})

	if s.RepresentedCells > 0 {
		s.MemorySavings = math.Max(0, (1-float64(s.Nodes)/s.RepresentedCells)*100)
	}
	return s
}

func (t *Tree) walk(id NodeID, fn func(*node)) {
	n := &t.arena.nodes[id]
	fn(n)
	if !n.hasChildren {
		return
	}
	for _, c := range n.children {
		t.walk(c, fn)
	}
}
