package tile

import (
	"context"
	"sync"
	"sync/atomic"

	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/zerr"
)

// Sampler resolves the material at a world position.
type Sampler func(pos domain.Vec3) (domain.Material, error)

// DirtyCell is a cell changed since the tile was loaded or last flushed.
type DirtyCell struct {
	Index    int
	Center   domain.Vec3
	Material domain.Material
}

// Tile is a dense Size x Size grid of materials.
type Tile struct {
	key  Key
	grid Grid

	mu    sync.RWMutex
	cells []domain.Material
	dirty []bool
	nDirt int

	lastAccess atomic.Uint64
}

// New creates a tile with every cell set to fill.
func New(key Key, grid Grid, fill domain.Material) *Tile {
	n := grid.Size * grid.Size
	t := &Tile{
		key:   key,
		grid:  grid,
		cells: make([]domain.Material, n),
		dirty: make([]bool, n),
	}
	for i := range t.cells {
		t.cells[i] = fill
	}
	return t
}

// Sample builds a tile by resolving every cell centre through sample.
func Sample(ctx context.Context, key Key, grid Grid, sample Sampler) (*Tile, error) {
	t := New(key, grid, domain.Material{})
	for iy := range grid.Size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for ix := range grid.Size {
			m, err := sample(grid.CellCenter(key, ix, iy))
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, "failed to sample tile cell"), "tile", key.String())
			}
			t.cells[iy*grid.Size+ix] = m
		}
	}
	return t, nil
}

// Key returns the tile's address.
func (t *Tile) Key() Key {
	return t.key
}

// Size returns the grid edge length in cells.
func (t *Tile) Size() int {
	return t.grid.Size
}

// Bounds returns the box the tile covers.
func (t *Tile) Bounds() domain.Bounds {
	return t.grid.TileBounds(t.key)
}

// Get returns the material of cell (ix, iy). Indices are clamped.
func (t *Tile) Get(ix, iy int) domain.Material {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cells[t.index(ix, iy)]
}

// Set writes cell (ix, iy) and reports whether it changed. Indices are clamped.
func (t *Tile) Set(ix, iy int, m domain.Material) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.index(ix, iy)
	if t.cells[i] == m {
		return false
	}
	t.cells[i] = m
	if !t.dirty[i] {
		t.dirty[i] = true
		t.nDirt++
	}
	return true
}

// MaterialAt returns the material of the cell containing pos.
func (t *Tile) MaterialAt(pos domain.Vec3) domain.Material {
	ix, iy := t.grid.CellIndex(t.key, pos)
	return t.Get(ix, iy)
}

// SetMaterialAt writes the cell containing pos.
func (t *Tile) SetMaterialAt(pos domain.Vec3, m domain.Material) bool {
	ix, iy := t.grid.CellIndex(t.key, pos)
	return t.Set(ix, iy, m)
}

// FillUniform sets every cell to m.
func (t *Tile) FillUniform(m domain.Material) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.cells {
		if t.cells[i] == m {
			continue
		}
		t.cells[i] = m
		if !t.dirty[i] {
			t.dirty[i] = true
			t.nDirt++
		}
	}
}

// IsDirty reports whether any cell changed since load or the last flush.
func (t *Tile) IsDirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nDirt > 0
}

// DirtyCells returns the changed cells in row-major order.
func (t *Tile) DirtyCells() []DirtyCell {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]DirtyCell, 0, t.nDirt)
	for i, d := range t.dirty {
		if !d {
			continue
		}
		ix, iy := i%t.grid.Size, i/t.grid.Size
		out = append(out, DirtyCell{Index: i, Center: t.grid.CellCenter(t.key, ix, iy), Material: t.cells[i]})
	}
	return out
}

// TakeDirty returns the changed cells and marks the tile clean in one step,
// so writes landing after the call stay dirty.
func (t *Tile) TakeDirty() []DirtyCell {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DirtyCell, 0, t.nDirt)
	for i, d := range t.dirty {
		if !d {
			continue
		}
		ix, iy := i%t.grid.Size, i/t.grid.Size
		out = append(out, DirtyCell{Index: i, Center: t.grid.CellCenter(t.key, ix, iy), Material: t.cells[i]})
		t.dirty[i] = false
	}
	t.nDirt = 0
	return out
}

// MarkDirty flags cells again after a failed flush.
func (t *Tile) MarkDirty(cells []DirtyCell) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range cells {
		if c.Index < 0 || c.Index >= len(t.dirty) || t.dirty[c.Index] {
			continue
		}
		t.dirty[c.Index] = true
		t.nDirt++
	}
}

// ClearDirty marks every cell clean.
func (t *Tile) ClearDirty() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.dirty)
	t.nDirt = 0
}

// Snapshot returns a copy of the cells in row-major order.
func (t *Tile) Snapshot() []domain.Material {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Material, len(t.cells))
	copy(out, t.cells)
	return out
}

func (t *Tile) index(ix, iy int) int {
	last := t.grid.Size - 1
	ix = max(0, min(ix, last))
	iy = max(0, min(iy, last))
	return iy*t.grid.Size + ix
}
