package tile

import (
	"encoding/binary"
	"math"

	"github.com/klauspost/compress/zstd"
	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	codecMagic   = "STRT"
	codecVersion = 1

	headerLen       = 4 + 1 + 4 + 3*8 + 4 + 2
	paletteEntryLen = 2 + 4 + 4 + 4
	maxPalette      = math.MaxUint16
)

// Codec serialises tiles into compressed, palette-indexed payloads.
// A Codec is safe for concurrent use.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a codec.
func NewCodec() (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, zerr.Wrap(err, "create zstd encoder")
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		return nil, zerr.Wrap(err, "create zstd decoder")
	}
	return &Codec{encoder: encoder, decoder: decoder}, nil
}

// Close releases the codec's resources.
func (c *Codec) Close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}

// Encode serialises t.
func (c *Codec) Encode(t *Tile) ([]byte, error) {
	cells := t.Snapshot()

	palette := make(map[domain.Material]uint16)
	order := make([]domain.Material, 0, 8)
	for _, m := range cells {
		if _, ok := palette[m]; ok {
			continue
		}
		if len(order) >= maxPalette {
			return nil, zerr.With(zerr.New("tile palette overflow"), "tile", t.key.String())
		}
		palette[m] = uint16(len(order)) //nolint:gosec // bounded by maxPalette
		order = append(order, m)
	}

	buf := make([]byte, 0, headerLen+len(order)*paletteEntryLen+len(cells)*2)
	buf = append(buf, codecMagic...)
	buf = append(buf, codecVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.key.LOD))   //nolint:gosec // LOD is small and non-negative
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.key.X))     //nolint:gosec // round-trips through int64
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.key.Y))     //nolint:gosec // round-trips through int64
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.key.Z))     //nolint:gosec // round-trips through int64
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.grid.Size)) //nolint:gosec // tile sizes are small
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(order)))  //nolint:gosec // bounded by maxPalette

	for _, m := range order {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(m.ID))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(m.Density))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(m.Hardness))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Flags))
	}
	for _, m := range cells {
		buf = binary.LittleEndian.AppendUint16(buf, palette[m])
	}
	return c.encoder.EncodeAll(buf, nil), nil
}

// Decode restores the tile want from a payload encoded by Encode. The
// payload's key must be want and its size must match grid.
func (c *Codec) Decode(data []byte, grid Grid, want Key) (*Tile, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrTileDecodeFailed, err.Error()), "stage", "decompress")
	}
	if len(raw) < headerLen || string(raw[:4]) != codecMagic {
		return nil, malformed("header")
	}
	if raw[4] != codecVersion {
		return nil, zerr.With(malformed("version"), "version", int(raw[4]))
	}

	r := raw[5:]
	key := Key{
		LOD: int(binary.LittleEndian.Uint32(r[0:4])),
		X:   int64(binary.LittleEndian.Uint64(r[4:12])),  //nolint:gosec // round-trips through int64
		Y:   int64(binary.LittleEndian.Uint64(r[12:20])), //nolint:gosec // round-trips through int64
		Z:   int64(binary.LittleEndian.Uint64(r[20:28])), //nolint:gosec // round-trips through int64
	}
	size := int(binary.LittleEndian.Uint32(r[28:32]))
	paletteLen := int(binary.LittleEndian.Uint16(r[32:34]))
	r = r[34:]

	if key != want {
		return nil, zerr.With(malformed("key"), "tile", key.String())
	}
	if size != grid.Size {
		return nil, zerr.With(malformed("size"), "size", size)
	}
	if len(r) != paletteLen*paletteEntryLen+size*size*2 {
		return nil, malformed("length")
	}

	palette := make([]domain.Material, paletteLen)
	for i := range palette {
		e := r[i*paletteEntryLen:]
		palette[i] = domain.Material{
			ID:       domain.MaterialID(binary.LittleEndian.Uint16(e[0:2])),
			Density:  math.Float32frombits(binary.LittleEndian.Uint32(e[2:6])),
			Hardness: math.Float32frombits(binary.LittleEndian.Uint32(e[6:10])),
			Flags:    domain.MaterialFlags(binary.LittleEndian.Uint32(e[10:14])),
		}
	}
	r = r[paletteLen*paletteEntryLen:]

	t := New(key, grid, domain.Material{})
	for i := range t.cells {
		idx := int(binary.LittleEndian.Uint16(r[i*2:]))
		if idx >= paletteLen {
			return nil, zerr.With(malformed("palette index"), "index", idx)
		}
		t.cells[i] = palette[idx]
	}
	return t, nil
}

func malformed(stage string) error {
	return zerr.With(zerr.Wrap(domain.ErrTileDecodeFailed, "malformed payload"), "stage", stage)
}
