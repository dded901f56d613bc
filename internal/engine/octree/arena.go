package octree

import "go.trai.ch/strata/internal/core/domain"

// NodeID is a stable handle to a node in the tree's arena.
type NodeID int32

// NilNode is the handle of an absent node.
const NilNode NodeID = -1

// ChildCount is the arity of every internal node.
const ChildCount = 8

type node struct {
	bounds   domain.Bounds
	parent   NodeID
	children [ChildCount]NodeID
	level    uint8

	hasChildren bool
	hasExplicit bool
	collapsed   bool
	live        bool

	explicit domain.Material
	// counts maps each child's representative material to the number of children carrying it.
	counts map[domain.Material]int

	homogeneity      float64
	homogeneityValid bool
}

// arena stores nodes in a slice so links are indices rather than pointers.
// Pointers into nodes are invalidated by alloc.
type arena struct {
	nodes []node
	free  []NodeID
	live  int
}

func (a *arena) alloc(parent NodeID, bounds domain.Bounds, level uint8) NodeID {
	n := node{
		bounds: bounds,
		parent: parent,
		level:  level,
		live:   true,
	}
	for i := range n.children {
		n.children[i] = NilNode
	}

	a.live++
	if k := len(a.free); k > 0 {
		id := a.free[k-1]
		a.free = a.free[:k-1]
		a.nodes[id] = n
		return id
	}
	a.nodes = append(a.nodes, n)
	return NodeID(len(a.nodes) - 1)
}

// releaseChildren frees every descendant of id and turns id into a leaf.
func (a *arena) releaseChildren(id NodeID) {
	if !a.nodes[id].hasChildren {
		return
	}
	for _, c := range a.nodes[id].children {
		if c == NilNode {
			continue
		}
		a.releaseChildren(c)
		a.nodes[c] = node{}
		a.free = append(a.free, c)
		a.live--
	}
	n := &a.nodes[id]
	for i := range n.children {
		n.children[i] = NilNode
	}
	n.hasChildren = false
	n.counts = nil
	n.homogeneityValid = false
}

func (a *arena) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(a.nodes) && a.nodes[id].live
}
