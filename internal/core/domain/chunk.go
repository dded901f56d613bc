package domain

// ChunkKey addresses a persisted chunk. Layer namespaces independent grids
// that share the same (X, Y) coordinate space.
type ChunkKey struct {
	Layer string
	X     int64
	Y     int64
}
