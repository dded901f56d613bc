package tile

import (
	"go.trai.ch/strata/internal/core/domain"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the contents of a tile.
type Stats struct {
	Cells        int
	Solid        int
	Materials    map[domain.Material]int
	Dominant     domain.Material
	Homogeneity  float64
	MeanDensity  float64
	StdDensity   float64
	MeanHardness float64
	StdHardness  float64
}

// Statistics computes the tile's material distribution.
func (t *Tile) Statistics() Stats {
	cells := t.Snapshot()
	s := Stats{
		Cells:     len(cells),
		Materials: make(map[domain.Material]int),
	}
	if len(cells) == 0 {
		return s
	}

	density := make([]float64, len(cells))
	hardness := make([]float64, len(cells))
	for i, m := range cells {
		density[i] = float64(m.Density)
		hardness[i] = float64(m.Hardness)
		s.Materials[m]++
		if m.IsSolid() {
			s.Solid++
		}
	}

	best := 0
	for m, c := range s.Materials {
		if c > best || (c == best && m.ID < s.Dominant.ID) {
			s.Dominant, best = m, c
		}
	}
	s.Homogeneity = float64(best) / float64(len(cells))
	if len(cells) == 1 {
		s.MeanDensity, s.MeanHardness = density[0], hardness[0]
		return s
	}
	s.MeanDensity, s.StdDensity = stat.MeanStdDev(density, nil)
	s.MeanHardness, s.StdHardness = stat.MeanStdDev(hardness, nil)
	return s
}
