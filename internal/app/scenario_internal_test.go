package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/strata/internal/core/domain"
)

func cube(side float64) domain.Bounds {
	return domain.Bounds{Max: domain.Vec3{X: side, Y: side, Z: side}}
}

func TestNewScenario_StepNeverFinerThanFinestCell(t *testing.T) {
	s := newScenario(cube(64), 4, 6)
	assert.InDelta(t, 4.0, s.unit, 1e-9)
	assert.InDelta(t, 1.0, s.step, 1e-9)

	s = newScenario(cube(64), 2, 12)
	assert.InDelta(t, 16.0, s.unit, 1e-9)
	assert.InDelta(t, 4.0, s.step, 1e-9)

	s = newScenario(cube(64), 8, 4)
	assert.InDelta(t, 4.0, s.unit, 1e-9, "transition level is capped at max depth")
}

func TestScenario_Survey(t *testing.T) {
	s := newScenario(cube(64), 4, 6)

	assert.Equal(t, domain.Bounds{
		Min: domain.Vec3{X: 24, Y: 30, Z: 28},
		Max: domain.Vec3{X: 40, Y: 34, Z: 40},
	}, s.survey())
	assert.Len(t, s.samples(s.survey()), 16*4*12)
}

func TestScenario_LayersAreClippedToWorld(t *testing.T) {
	s := newScenario(cube(8), 1, 3)

	for _, l := range s.layers() {
		if l.region.Validate() != nil {
			continue
		}
		assert.True(t, s.world.ContainsBounds(l.region), l.name)
	}
}

func TestScenario_Partitions(t *testing.T) {
	s := newScenario(cube(64), 4, 6)
	survey := s.survey()

	slabs := s.partitions(survey, 3)
	require.Len(t, slabs, 3)
	assert.InDelta(t, survey.Min.X, slabs[0].Min.X, 1e-9)
	assert.InDelta(t, survey.Max.X, slabs[2].Max.X, 1e-9)

	total := 0
	for i, slab := range slabs {
		if i > 0 {
			assert.InDelta(t, slabs[i-1].Max.X, slab.Min.X, 1e-9, "slabs are contiguous")
		}
		assert.Equal(t, survey.Min.Y, slab.Min.Y)
		total += len(s.samples(slab))
	}
	assert.Equal(t, len(s.samples(survey)), total)

	assert.Len(t, s.partitions(survey, 100), 16, "at most one slab per step")
	assert.Len(t, s.partitions(survey, 0), 1)
}
