// Package tile holds the dense grids that serve fine levels of detail.
//
// A tile at LOD L is a Size x Size slab of cells, one cell thick in Z, where a
// cell spans the world's X extent divided by 2^L. Tiles are addressed by
// their LOD and integer grid coordinates.
package tile

import (
	"math"
	"strconv"

	"go.trai.ch/strata/internal/core/domain"
)

// Key addresses a tile.
type Key struct {
	LOD int
	X   int64
	Y   int64
	Z   int64
}

// String renders the key for logs and error metadata.
func (k Key) String() string {
	return "lod" + strconv.Itoa(k.LOD) + "/" +
		strconv.FormatInt(k.X, 10) + "," + strconv.FormatInt(k.Y, 10) + "," + strconv.FormatInt(k.Z, 10)
}

// Grid maps world positions onto tiles and cells.
type Grid struct {
	Bounds domain.Bounds
	Size   int
}

// CellSize returns the edge length of a cell at lod.
func (g Grid) CellSize(lod int) float64 {
	return g.Bounds.Size().X / math.Exp2(float64(lod))
}

// KeyFor returns the key of the tile containing pos at lod.
func (g Grid) KeyFor(pos domain.Vec3, lod int) Key {
	cell := g.CellSize(lod)
	span := cell * float64(g.Size)
	return Key{
		LOD: lod,
		X:   int64(math.Floor((pos.X - g.Bounds.Min.X) / span)),
		Y:   int64(math.Floor((pos.Y - g.Bounds.Min.Y) / span)),
		Z:   int64(math.Floor((pos.Z - g.Bounds.Min.Z) / cell)),
	}
}

// Origin returns the minimum corner of the tile.
func (g Grid) Origin(k Key) domain.Vec3 {
	cell := g.CellSize(k.LOD)
	span := cell * float64(g.Size)
	return domain.Vec3{
		X: g.Bounds.Min.X + float64(k.X)*span,
		Y: g.Bounds.Min.Y + float64(k.Y)*span,
		Z: g.Bounds.Min.Z + float64(k.Z)*cell,
	}
}

// TileBounds returns the box covered by the tile.
func (g Grid) TileBounds(k Key) domain.Bounds {
	cell := g.CellSize(k.LOD)
	span := cell * float64(g.Size)
	o := g.Origin(k)
	return domain.Bounds{Min: o, Max: o.Add(domain.Vec3{X: span, Y: span, Z: cell})}
}

// CellIndex returns the cell holding pos within tile k. Indices are clamped
// into the tile so rounding at tile edges never leaves the grid.
func (g Grid) CellIndex(k Key, pos domain.Vec3) (int, int) {
	cell := g.CellSize(k.LOD)
	o := g.Origin(k)
	return g.clamp(math.Floor((pos.X - o.X) / cell)), g.clamp(math.Floor((pos.Y - o.Y) / cell))
}

// CellCenter returns the world position at the centre of cell (ix, iy).
func (g Grid) CellCenter(k Key, ix, iy int) domain.Vec3 {
	cell := g.CellSize(k.LOD)
	o := g.Origin(k)
	return domain.Vec3{
		X: o.X + (float64(ix)+0.5)*cell,
		Y: o.Y + (float64(iy)+0.5)*cell,
		Z: o.Z + 0.5*cell,
	}
}

func (g Grid) clamp(i float64) int {
	return int(math.Max(0, math.Min(i, float64(g.Size-1))))
}
