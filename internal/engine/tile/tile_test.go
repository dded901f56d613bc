package tile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/engine/tile"
)

// grid over a 1024-wide world. At LOD 4 cells are 64 wide and a tile spans 256.
func testGrid() tile.Grid {
	return tile.Grid{
		Bounds: domain.Bounds{
			Min: domain.Vec3{X: -512, Y: -512, Z: -512},
			Max: domain.Vec3{X: 512, Y: 512, Z: 512},
		},
		Size: 4,
	}
}

func TestGrid_KeyAndCellMapping(t *testing.T) {
	g := testGrid()
	assert.InDelta(t, 64.0, g.CellSize(4), 1e-9)

	pos := domain.Vec3{X: -300, Y: 10, Z: 70}
	k := g.KeyFor(pos, 4)
	assert.Equal(t, tile.Key{LOD: 4, X: 0, Y: 2, Z: 9}, k)

	assert.True(t, g.TileBounds(k).Contains(pos))
	ix, iy := g.CellIndex(k, pos)
	assert.Equal(t, 3, ix)
	assert.Equal(t, 0, iy)

	c := g.CellCenter(k, ix, iy)
	assert.Equal(t, domain.Vec3{X: -288, Y: 32, Z: 96}, c)
}

func TestGrid_CellIndexClampsAtEdges(t *testing.T) {
	g := testGrid()
	k := tile.Key{LOD: 4}

	ix, iy := g.CellIndex(k, domain.Vec3{X: -10000, Y: 10000})
	assert.Equal(t, 0, ix)
	assert.Equal(t, 3, iy)
}

func TestTile_SetTracksDirtyCells(t *testing.T) {
	tl := tile.New(tile.Key{LOD: 4}, testGrid(), domain.Rock())
	assert.False(t, tl.IsDirty())

	assert.False(t, tl.Set(1, 1, domain.Rock()), "same material is not a change")
	assert.True(t, tl.Set(1, 1, domain.Sand()))
	assert.True(t, tl.Set(1, 1, domain.Soil()))
	assert.True(t, tl.Set(99, -5, domain.Ice()), "indices clamp into the grid")

	assert.Equal(t, domain.Ice(), tl.Get(3, 0))
	dirty := tl.DirtyCells()
	require.Len(t, dirty, 2)
	assert.Equal(t, domain.Ice(), dirty[0].Material)
	assert.Equal(t, domain.Soil(), dirty[1].Material)

	taken := tl.TakeDirty()
	assert.Len(t, taken, 2)
	assert.False(t, tl.IsDirty())

	tl.MarkDirty(taken)
	assert.Len(t, tl.DirtyCells(), 2)

	tl.ClearDirty()
	assert.False(t, tl.IsDirty())
}

func TestTile_FillUniform(t *testing.T) {
	tl := tile.New(tile.Key{LOD: 4}, testGrid(), domain.Air())
	tl.Set(0, 0, domain.Water())
	tl.FillUniform(domain.Water())

	s := tl.Statistics()
	assert.Equal(t, 16, s.Cells)
	assert.Equal(t, domain.Water(), s.Dominant)
	assert.InDelta(t, 1.0, s.Homogeneity, 1e-9)
	assert.InDelta(t, 0.0, s.StdDensity, 1e-9)
	assert.Len(t, tl.DirtyCells(), 16)
}

func TestTile_Statistics(t *testing.T) {
	tl := tile.New(tile.Key{LOD: 4}, testGrid(), domain.Rock())
	for ix := range 4 {
		tl.Set(ix, 0, domain.Water())
	}

	s := tl.Statistics()
	assert.Equal(t, 12, s.Solid)
	assert.Equal(t, map[domain.Material]int{domain.Rock(): 12, domain.Water(): 4}, s.Materials)
	assert.Equal(t, domain.Rock(), s.Dominant)
	assert.InDelta(t, 0.75, s.Homogeneity, 1e-9)
	assert.InDelta(t, (12*2700.0+4*1000.0)/16, s.MeanDensity, 1e-3)
	assert.Greater(t, s.StdDensity, 0.0)
}

func TestSample_ResolvesCellCentres(t *testing.T) {
	g := testGrid()
	k := tile.Key{LOD: 4, X: 1, Y: 1, Z: 8}

	var seen []domain.Vec3
	tl, err := tile.Sample(context.Background(), k, g, func(pos domain.Vec3) (domain.Material, error) {
		seen = append(seen, pos)
		if pos.X < 0 {
			return domain.Water(), nil
		}
		return domain.Sand(), nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 16)
	for _, p := range seen {
		assert.True(t, g.TileBounds(k).Contains(p))
	}
	// The tile spans x in [-256, 0), so every centre is negative.
	assert.Equal(t, domain.Water(), tl.Get(2, 2))
	assert.False(t, tl.IsDirty())
}

func TestSample_StopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tile.Sample(ctx, tile.Key{LOD: 4}, testGrid(), func(domain.Vec3) (domain.Material, error) {
		return domain.Air(), nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := tile.NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	g := testGrid()
	k := tile.Key{LOD: 4, X: -2, Y: 3, Z: 7}
	tl := tile.New(k, g, domain.Basalt())
	tl.Set(1, 2, domain.Magma())
	tl.Set(3, 3, domain.Material{ID: 400, Density: 12.5, Hardness: 3, Flags: domain.FlagPorous})

	data, err := codec.Encode(tl)
	require.NoError(t, err)

	got, err := codec.Decode(data, g, k)
	require.NoError(t, err)
	assert.Equal(t, k, got.Key())
	assert.Equal(t, tl.Snapshot(), got.Snapshot())
	assert.False(t, got.IsDirty())
}

func TestCodec_RejectsMalformedPayloads(t *testing.T) {
	codec, err := tile.NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	_, err = codec.Decode([]byte("not zstd"), testGrid(), tile.Key{LOD: 4})
	require.ErrorIs(t, err, domain.ErrTileDecodeFailed)

	data, err := codec.Encode(tile.New(tile.Key{LOD: 4}, testGrid(), domain.Air()))
	require.NoError(t, err)

	other := testGrid()
	other.Size = 8
	_, err = codec.Decode(data, other, tile.Key{LOD: 4})
	require.ErrorIs(t, err, domain.ErrTileDecodeFailed)

	_, err = codec.Decode(data, testGrid(), tile.Key{LOD: 4, X: 1})
	require.ErrorIs(t, err, domain.ErrTileDecodeFailed, "payload belongs to another tile")
}
