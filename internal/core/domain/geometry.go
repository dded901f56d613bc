package domain

import (
	"math"
	"strconv"

	"go.trai.ch/zerr"
)

// Vec3 is a world-space position. It is comparable and used directly as a map key.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v*s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Bounds is an axis-aligned half-open box [Min, Max).
type Bounds struct {
	Min Vec3 `json:"min" yaml:"min"`
	Max Vec3 `json:"max" yaml:"max"`
}

// NewBounds validates and returns a box. Inverted or empty ranges are rejected.
func NewBounds(minCorner, maxCorner Vec3) (Bounds, error) {
	b := Bounds{Min: minCorner, Max: maxCorner}
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	return b, nil
}

// Validate reports an error when any axis is inverted, empty or not finite.
func (b Bounds) Validate() error {
	for _, axis := range [3][2]float64{{b.Min.X, b.Max.X}, {b.Min.Y, b.Max.Y}, {b.Min.Z, b.Max.Z}} {
		if math.IsNaN(axis[0]) || math.IsNaN(axis[1]) || math.IsInf(axis[0], 0) || math.IsInf(axis[1], 0) {
			return zerr.With(zerr.Wrap(ErrInvalidBounds, b.String()), "bounds", b.String())
		}
		if axis[1] <= axis[0] {
			return zerr.With(zerr.Wrap(ErrInvalidBounds, b.String()), "bounds", b.String())
		}
	}
	return nil
}

// Size returns the extent along each axis.
func (b Bounds) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Volume returns the box volume.
func (b Bounds) Volume() float64 {
	s := b.Size()
	return s.X * s.Y * s.Z
}

// Contains reports whether p lies inside the half-open box.
func (b Bounds) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X < b.Max.X &&
		p.Y >= b.Min.Y && p.Y < b.Max.Y &&
		p.Z >= b.Min.Z && p.Z < b.Max.Z
}

// ContainsBounds reports whether o lies entirely inside b.
func (b Bounds) ContainsBounds(o Bounds) bool {
	return o.Min.X >= b.Min.X && o.Max.X <= b.Max.X &&
		o.Min.Y >= b.Min.Y && o.Max.Y <= b.Max.Y &&
		o.Min.Z >= b.Min.Z && o.Max.Z <= b.Max.Z
}

// Intersects reports whether the two boxes overlap with non-zero volume.
func (b Bounds) Intersects(o Bounds) bool {
	return b.Min.X < o.Max.X && o.Min.X < b.Max.X &&
		b.Min.Y < o.Max.Y && o.Min.Y < b.Max.Y &&
		b.Min.Z < o.Max.Z && o.Min.Z < b.Max.Z
}

// Octant returns the child index (0-7) of the octant containing p.
// Bit 0 selects the upper X half, bit 1 the upper Y half, bit 2 the upper Z half.
func (b Bounds) Octant(p Vec3) int {
	c := b.Center()
	idx := 0
	if p.X >= c.X {
		idx |= 1
	}
	if p.Y >= c.Y {
		idx |= 2
	}
	if p.Z >= c.Z {
		idx |= 4
	}
	return idx
}

// ChildBounds returns the box of octant i. The caller guarantees 0 <= i < 8.
func (b Bounds) ChildBounds(i int) Bounds {
	c := b.Center()
	child := Bounds{Min: b.Min, Max: c}
	if i&1 != 0 {
		child.Min.X, child.Max.X = c.X, b.Max.X
	}
	if i&2 != 0 {
		child.Min.Y, child.Max.Y = c.Y, b.Max.Y
	}
	if i&4 != 0 {
		child.Min.Z, child.Max.Z = c.Z, b.Max.Z
	}
	return child
}

// String renders the box for error metadata.
func (b Bounds) String() string {
	return "[" + formatVec(b.Min) + " .. " + formatVec(b.Max) + ")"
}

// String renders the position for error metadata.
func (v Vec3) String() string {
	return formatVec(v)
}

func formatVec(v Vec3) string {
	return "(" + formatFloat(v.X) + ", " + formatFloat(v.Y) + ", " + formatFloat(v.Z) + ")"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
