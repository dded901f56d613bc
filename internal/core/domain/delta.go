package domain

import "time"

// DeltaEntry is a pending write buffered in the overlay. It exists only while
// NewMaterial differs from what base storage returned when it was written.
type DeltaEntry struct {
	Position     Vec3
	BaseSnapshot Material
	NewMaterial  Material
	Timestamp    time.Time
	// Seq orders entries written at the same timestamp.
	Seq uint64
}

// VoxelWrite pairs a position with the material to store there.
type VoxelWrite struct {
	Position Vec3
	Material Material
}
