package router

import (
	"context"
	"strconv"

	"go.trai.ch/strata/internal/core/domain"
	"go.trai.ch/strata/internal/engine/tile"
	"go.trai.ch/zerr"
)

// ChunkKey returns the chunk store key a tile is persisted under. Tiles of
// one LOD and Z slab share a layer so their X/Y address maps directly.
func ChunkKey(k tile.Key) domain.ChunkKey {
	return domain.ChunkKey{
		Layer: "tile/" + strconv.Itoa(k.LOD) + "/" + strconv.FormatInt(k.Z, 10),
		X:     k.X,
		Y:     k.Y,
	}
}

// loadTile restores a persisted tile, or samples a fresh one from the tree.
// A persisted tile that tree writes have overtaken is deleted and resampled.
func (r *Router) loadTile(ctx context.Context, key tile.Key) (*tile.Tile, error) {
	if r.store == nil {
		return tile.Sample(ctx, key, r.grid, r.sample)
	}

	ck := ChunkKey(key)
	data, err := r.store.Load(ctx, ck)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return tile.Sample(ctx, key, r.grid, r.sample)
	}
	if !r.shadow.usable(key) {
		if err := r.store.Delete(ctx, ck); err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrChunkDeleteFailed, err.Error()), "tile", key.String())
		}
		return tile.Sample(ctx, key, r.grid, r.sample)
	}

	t, err := r.codec.Decode(data, r.grid, key)
	if err != nil {
		return nil, err
	}
	r.shadow.current(key)
	return t, nil
}

// sample reads the tree at pos. Tiles on the world's edge can reach past it;
// those cells hold the default material.
func (r *Router) sample(pos domain.Vec3) (domain.Material, error) {
	if !r.tree.Bounds().Contains(pos) {
		return r.tree.Options().DefaultMaterial, nil
	}
	return r.overlay.ReadVoxel(pos)
}

// flushTile persists t and writes its changed cells back through the overlay.
// On failure the cells are marked dirty again so a later flush retries them.
func (r *Router) flushTile(ctx context.Context, t *tile.Tile) error {
	cells := t.TakeDirty()
	if len(cells) == 0 {
		return nil
	}

	if r.store != nil {
		data, err := r.codec.Encode(t)
		if err == nil {
			err = r.store.Save(ctx, ChunkKey(t.Key()), data)
		}
		if err != nil {
			t.MarkDirty(cells)
			return err
		}
		r.shadow.current(t.Key())
	}

	bounds := r.tree.Bounds()
	updates := make([]domain.VoxelWrite, 0, len(cells))
	for _, c := range cells {
		if bounds.Contains(c.Center) {
			updates = append(updates, domain.VoxelWrite{Position: c.Center, Material: c.Material})
		}
	}
	if err := r.overlay.WriteMaterialBatch(ctx, updates); err != nil {
		t.MarkDirty(cells)
		return err
	}
	return nil
}
