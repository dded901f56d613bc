// Package octree implements the sparse material tree that backs coarse levels
// of detail.
//
// Nodes carry an explicit material only where one was written. Everything else
// inherits the nearest explicit ancestor's material, falling back to the tree's
// default. Each internal node tracks how many of its children resolve to each
// material, which makes homogeneity checks O(distinct materials) and lets
// near-uniform subtrees collapse into a single leaf.
package octree

import (
	"math"
	"strings"
	"sync"

	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/zerr"
)

// Options configures a Tree.
type Options struct {
	Bounds            domain.Bounds
	MaxDepth          int
	CollapseThreshold float64
	DefaultMaterial   domain.Material
}

// OptionsFromConfig derives tree options from the engine configuration.
func OptionsFromConfig(cfg domain.Config) Options {
	return Options{
		Bounds:            cfg.World.Bounds,
		MaxDepth:          cfg.Octree.MaxDepth,
		CollapseThreshold: cfg.Octree.CollapseThreshold,
		DefaultMaterial:   cfg.World.DefaultMaterial,
	}
}

// Tree is a concurrency-safe material octree.
// Reads share a read lock, every structural change holds the write lock.
type Tree struct {
	mu    sync.RWMutex
	opts  Options
	arena arena
	root  NodeID
}

const maxDepthLimit = math.MaxUint8

// New creates a tree holding a single root leaf with no explicit material.
func New(opts Options) (*Tree, error) {
	if err := opts.Bounds.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxDepth < 0 || opts.MaxDepth > maxDepthLimit {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidConfiguration, "octree max depth"), "value", opts.MaxDepth)
	}
	if opts.CollapseThreshold <= 0 || opts.CollapseThreshold > 1 {
		return nil, zerr.With(
			zerr.Wrap(domain.ErrInvalidConfiguration, "octree collapse threshold"), "value", opts.CollapseThreshold,
		)
	}

	t := &Tree{opts: opts}
	t.root = t.arena.alloc(NilNode, opts.Bounds, 0)
	return t, nil
}

// Options returns the options the tree was built with.
func (t *Tree) Options() Options {
	return t.opts
}

// Bounds returns the root box.
func (t *Tree) Bounds() domain.Bounds {
	return t.opts.Bounds
}

// MaxDepth returns the finest level the tree subdivides to.
func (t *Tree) MaxDepth() int {
	return t.opts.MaxDepth
}

// Root returns the root handle.
func (t *Tree) Root() NodeID {
	return t.root
}

// NodeCount returns the number of live nodes.
func (t *Tree) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.arena.live
}

// IsLeaf reports whether the node has no children.
func (t *Tree) IsLeaf(id NodeID) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return false, err
	}
	return !t.arena.nodes[id].hasChildren, nil
}

// IsCollapsed reports whether the node is a leaf produced by collapse.
func (t *Tree) IsCollapsed(id NodeID) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return false, err
	}
	return t.arena.nodes[id].collapsed, nil
}

// Level returns the node's depth, 0 at the root.
func (t *Tree) Level(id NodeID) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return 0, err
	}
	return int(t.arena.nodes[id].level), nil
}

// NodeBounds returns the node's box.
func (t *Tree) NodeBounds(id NodeID) (domain.Bounds, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return domain.Bounds{}, err
	}
	return t.arena.nodes[id].bounds, nil
}

// Parent returns the parent handle, or NilNode for the root.
func (t *Tree) Parent(id NodeID) (NodeID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return NilNode, err
	}
	return t.arena.nodes[id].parent, nil
}

// Child returns the child at index idx, or NilNode when the node is a leaf.
func (t *Tree) Child(id NodeID, idx int) (NodeID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return NilNode, err
	}
	if idx < 0 || idx >= ChildCount {
		return NilNode, zerr.With(zerr.Wrap(domain.ErrInvalidChildIndex, "child lookup"), "index", idx)
	}
	return t.arena.nodes[id].children[idx], nil
}

// ExplicitMaterial returns the material written at this node, if any.
func (t *Tree) ExplicitMaterial(id NodeID) (domain.Material, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return domain.Material{}, false, err
	}
	n := &t.arena.nodes[id]
	return n.explicit, n.hasExplicit, nil
}

// EffectiveMaterial returns the node's explicit material, else the nearest
// explicit ancestor's, else the tree default.
func (t *Tree) EffectiveMaterial(id NodeID) (domain.Material, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return domain.Material{}, err
	}
	return t.effective(id), nil
}

// ChildMaterialCounts returns a copy of the node's per-material child counts.
// Leaves return an empty map.
func (t *Tree) ChildMaterialCounts(id NodeID) (map[domain.Material]int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return nil, err
	}
	out := make(map[domain.Material]int, len(t.arena.nodes[id].counts))
	for m, c := range t.arena.nodes[id].counts {
		out[m] = c
	}
	return out, nil
}

// UpdateChildMaterialCount moves one child of id from oldMat to newMat in the
// node's counts and propagates the change upward when the node's own
// representative material changes as a result.
func (t *Tree) UpdateChildMaterialCount(id NodeID, oldMat, newMat domain.Material) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(id); err != nil {
		return err
	}
	if !t.arena.nodes[id].hasChildren {
		return zerr.With(zerr.Wrap(domain.ErrInvalidNode, "count update on leaf"), "node", int(id))
	}
	before := t.representative(id)
	t.updateCount(id, oldMat, newMat)
	t.propagate(id, before)
	return nil
}

// CalculateHomogeneity returns the fraction of children carrying the most
// common material, or 1.0 for a leaf. The value is cached until the node's
// counts change.
func (t *Tree) CalculateHomogeneity(id NodeID) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(id); err != nil {
		return 0, err
	}
	return t.homogeneity(id), nil
}

// TryCollapse replaces the node's subtree by a single leaf carrying the
// dominant child material when homogeneity reaches threshold. Detail held by
// the minority is lost.
func (t *Tree) TryCollapse(id NodeID, threshold float64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(id); err != nil {
		return false, err
	}
	return t.tryCollapse(id, threshold), nil
}

// Expand recreates eight inheriting children under a collapsed leaf.
// It returns false for nodes that are not collapsed.
func (t *Tree) Expand(id NodeID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(id); err != nil {
		return false, err
	}
	return t.expand(id), nil
}

// NodeAt returns the deepest existing node containing pos at or above depth.
func (t *Tree) NodeAt(pos domain.Vec3, depth int) (NodeID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.descend(t.root, pos, depth)
}

// MaterialAt resolves the material at pos, descending no deeper than depth.
func (t *Tree) MaterialAt(pos domain.Vec3, depth int) (domain.Material, error) {
	return t.QueryNode(t.root, pos, depth)
}

// QueryNode resolves the material at pos within the subtree rooted at id.
// Positions outside the node's box are rejected.
func (t *Tree) QueryNode(id NodeID, pos domain.Vec3, depth int) (domain.Material, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.check(id); err != nil {
		return domain.Material{}, err
	}
	leaf, err := t.descend(id, pos, depth)
	if err != nil {
		return domain.Material{}, err
	}
	return t.effective(leaf), nil
}

// Path returns the octant path addressing pos at depth. The path is purely
// geometric and does not depend on how far the tree is subdivided.
func (t *Tree) Path(pos domain.Vec3, depth int) (string, error) {
	if !t.opts.Bounds.Contains(pos) {
		return "", outOfBounds(pos, t.opts.Bounds)
	}
	depth = t.clampDepth(depth)

	var sb strings.Builder
	sb.Grow(depth)
	b := t.opts.Bounds
	for range depth {
		oct := b.Octant(pos)
		sb.WriteByte(byte('0' + oct))
		b = b.ChildBounds(oct)
	}
	return sb.String(), nil
}

// CellBounds returns the box of the cell addressing pos at depth.
func (t *Tree) CellBounds(pos domain.Vec3, depth int) (domain.Bounds, error) {
	if !t.opts.Bounds.Contains(pos) {
		return domain.Bounds{}, outOfBounds(pos, t.opts.Bounds)
	}
	b := t.opts.Bounds
	for range t.clampDepth(depth) {
		b = b.ChildBounds(b.Octant(pos))
	}
	return b, nil
}

// MaterialAtPath resolves the material addressed by an octant path.
func (t *Tree) MaterialAtPath(path string) (domain.Material, error) {
	if err := ValidatePath(path); err != nil {
		return domain.Material{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	id := t.root
	for i := 0; i < len(path) && t.arena.nodes[id].hasChildren; i++ {
		id = t.arena.nodes[id].children[path[i]-'0']
	}
	return t.effective(id), nil
}

// ValidatePath reports an error when path contains anything but octant digits.
func ValidatePath(path string) error {
	for i := 0; i < len(path); i++ {
		if path[i] < '0' || path[i] > '7' {
			return zerr.With(zerr.Wrap(domain.ErrInvalidPath, path), "path", path)
		}
	}
	return nil
}

// SetMaterial writes m at the node addressing pos at depth, subdividing or
// expanding as needed, and discards any finer detail below it. It returns the
// octant path of the written node.
func (t *Tree) SetMaterial(pos domain.Vec3, m domain.Material, depth int) (string, error) {
	if !t.opts.Bounds.Contains(pos) {
		return "", outOfBounds(pos, t.opts.Bounds)
	}
	depth = t.clampDepth(depth)

	t.mu.Lock()
	defer t.mu.Unlock()

	path := make([]byte, 0, depth)
	id := t.root
	for int(t.arena.nodes[id].level) < depth {
		t.ensureChildren(id)
		oct := t.arena.nodes[id].bounds.Octant(pos)
		path = append(path, byte('0'+oct))
		id = t.arena.nodes[id].children[oct]
	}
	t.assign(id, m)
	return string(path), nil
}

func (t *Tree) check(id NodeID) error {
	if !t.arena.valid(id) {
		return zerr.With(zerr.Wrap(domain.ErrInvalidNode, "node lookup"), "node", int(id))
	}
	return nil
}

func (t *Tree) clampDepth(depth int) int {
	switch {
	case depth < 0:
		return 0
	case depth > t.opts.MaxDepth:
		return t.opts.MaxDepth
	default:
		return depth
	}
}

func (t *Tree) descend(from NodeID, pos domain.Vec3, depth int) (NodeID, error) {
	if !t.arena.nodes[from].bounds.Contains(pos) {
		return NilNode, outOfBounds(pos, t.arena.nodes[from].bounds)
	}
	depth = t.clampDepth(depth)
	id := from
	for {
		n := &t.arena.nodes[id]
		if !n.hasChildren || int(n.level) >= depth {
			return id, nil
		}
		id = n.children[n.bounds.Octant(pos)]
	}
}

func outOfBounds(pos domain.Vec3, b domain.Bounds) error {
	err := zerr.Wrap(domain.ErrOutOfBounds, pos.String())
	err = zerr.With(err, "position", pos.String())
	return zerr.With(err, "bounds", b.String())
}
