package app

import (
	"math"

	"go.trai.ch/strata/internal/core/domain"
)

type layer struct {
	name     string
	region   domain.Bounds
	material domain.Material
}

// scenario describes a coastline at the centre of the world, measured in
// units of the cell size at the transition level. The ocean lies at +X and
// the continent at -X; sea level is the world's centre plane.
type scenario struct {
	world domain.Bounds
	unit  float64
	step  float64
}

func newScenario(world domain.Bounds, transitionLevel, maxDepth int) scenario {
	size := world.Size()
	side := math.Min(size.X, math.Min(size.Y, size.Z))
	unit := side / math.Exp2(float64(min(transitionLevel, maxDepth)))

	// Sample at most four positions per unit along each axis, never finer
	// than the finest cell.
	finest := side / math.Exp2(float64(maxDepth))
	step := math.Max(unit/4, finest)

	return scenario{world: world, unit: unit, step: step}
}

func (s scenario) origin() domain.Vec3 {
	return s.world.Center()
}

// layers returns the seeding order. Later layers overwrite earlier ones.
func (s scenario) layers() []layer {
	c, u := s.origin(), s.unit
	b := s.world

	return []layer{
		{"bedrock", s.box(b.Min.X, b.Max.X, b.Min.Y, b.Max.Y, b.Min.Z, c.Z-2*u), domain.Basalt()},
		{"seabed", s.box(c.X, b.Max.X, b.Min.Y, b.Max.Y, c.Z-2*u, c.Z-u), domain.Sand()},
		{"ocean", s.box(c.X, b.Max.X, b.Min.Y, b.Max.Y, c.Z-u, c.Z), domain.Ocean()},
		{"continent", s.box(b.Min.X, c.X, b.Min.Y, b.Max.Y, c.Z-2*u, c.Z+u), domain.Granite()},
		{"topsoil", s.box(b.Min.X, c.X-u, b.Min.Y, b.Max.Y, c.Z+u, c.Z+2*u), domain.Soil()},
	}
}

// survey is the region the processes work on: the coastline from two units
// inland to two units offshore, one unit deep along Y, from the ocean floor
// to the top of the soil.
func (s scenario) survey() domain.Bounds {
	c, u := s.origin(), s.unit
	return s.box(c.X-2*u, c.X+2*u, c.Y-u/2, c.Y+u/2, c.Z-u, c.Z+2*u)
}

// partitions splits region into at most n slabs along X, each a whole number
// of steps wide. Processes only look at neighbours along Z, so slabs never
// observe each other.
func (s scenario) partitions(region domain.Bounds, n int) []domain.Bounds {
	samples := int(math.Ceil(region.Size().X / s.step))
	n = max(1, min(n, samples))

	out := make([]domain.Bounds, 0, n)
	for i := range n {
		lo := region.Min.X + float64(i*samples/n)*s.step
		hi := region.Min.X + float64((i+1)*samples/n)*s.step
		if i == n-1 {
			hi = region.Max.X
		}
		slab := region
		slab.Min.X, slab.Max.X = lo, hi
		out = append(out, slab)
	}
	return out
}

// samples returns the centre of every step cell in region.
func (s scenario) samples(region domain.Bounds) []domain.Vec3 {
	var out []domain.Vec3
	for z := region.Min.Z + s.step/2; z < region.Max.Z; z += s.step {
		for y := region.Min.Y + s.step/2; y < region.Max.Y; y += s.step {
			for x := region.Min.X + s.step/2; x < region.Max.X; x += s.step {
				out = append(out, domain.Vec3{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// box clips the given ranges to the world. An empty result has zero volume.
func (s scenario) box(x0, x1, y0, y1, z0, z1 float64) domain.Bounds {
	b := s.world
	return domain.Bounds{
		Min: domain.Vec3{X: math.Max(x0, b.Min.X), Y: math.Max(y0, b.Min.Y), Z: math.Max(z0, b.Min.Z)},
		Max: domain.Vec3{X: math.Min(x1, b.Max.X), Y: math.Min(y1, b.Max.Y), Z: math.Min(z1, b.Max.Z)},
	}
}
