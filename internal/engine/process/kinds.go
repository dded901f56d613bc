package process

import (
	"errors"

	"go.trai.ch/strata/internal/core/domain"
)

var strategies = map[Kind]strategy{
	Erosion: {
		filter:  func(m domain.Material) bool { return m.Flags.Has(domain.FlagErodible) },
		compute: erode,
		accept:  func(ch Change) bool { return !ch.To.IsSolid() },
	},
	Deposition: {
		filter:  isOpen,
		compute: deposit,
		accept:  func(ch Change) bool { return !ch.From.IsSolid() && ch.To.Flags.Has(domain.FlagErodible) },
	},
	Weathering: {
		filter: func(m domain.Material) bool {
			_, ok := weathersTo[m]
			return ok
		},
		compute: weather,
		accept:  func(ch Change) bool { return ch.To.Hardness < ch.From.Hardness },
	},
}

// weathersTo maps bedrock to what it breaks down into.
var weathersTo = map[domain.Material]domain.Material{
	domain.Rock():    domain.Soil(),
	domain.Granite(): domain.Sand(),
	domain.Basalt():  domain.Soil(),
}

func isOpen(m domain.Material) bool {
	return !m.IsSolid() && !m.Flags.Has(domain.FlagMolten)
}

// erode removes an erodible voxel exposed to open space above it. The
// exposing fluid fills the gap.
func erode(c candidate, read Neighbours) (domain.Material, bool, error) {
	if c.roll >= c.intensity {
		return domain.Material{}, false, nil
	}
	above, ok, err := neighbour(read, c.pos.Add(domain.Vec3{Z: c.step}))
	if err != nil || !ok || !isOpen(above) {
		return domain.Material{}, false, err
	}
	if above.Flags.Has(domain.FlagLiquid) {
		return domain.Water(), true, nil
	}
	return domain.Air(), true, nil
}

// deposit settles material into open space resting on a solid voxel.
// Water drops sediment, air drops sand.
func deposit(c candidate, read Neighbours) (domain.Material, bool, error) {
	if c.roll >= c.intensity {
		return domain.Material{}, false, nil
	}
	below, ok, err := neighbour(read, c.pos.Sub(domain.Vec3{Z: c.step}))
	if err != nil || !ok || !below.IsSolid() {
		return domain.Material{}, false, err
	}
	if c.mat.Flags.Has(domain.FlagLiquid) {
		return domain.Sediment(), true, nil
	}
	return domain.Sand(), true, nil
}

// weather breaks down exposed bedrock.
func weather(c candidate, read Neighbours) (domain.Material, bool, error) {
	if c.roll >= c.intensity {
		return domain.Material{}, false, nil
	}
	above, ok, err := neighbour(read, c.pos.Add(domain.Vec3{Z: c.step}))
	if err != nil || !ok || above.IsSolid() {
		return domain.Material{}, false, err
	}
	return weathersTo[c.mat], true, nil
}

// neighbour reads pos and reports false when it lies outside the world.
func neighbour(read Neighbours, pos domain.Vec3) (domain.Material, bool, error) {
	m, err := read(pos)
	if errors.Is(err, domain.ErrOutOfBounds) {
		return domain.Material{}, false, nil
	}
	if err != nil {
		return domain.Material{}, false, err
	}
	return m, true, nil
}
