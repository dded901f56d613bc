package domain

import "go.trai.ch/zerr"

var (
	// ErrOutOfBounds is returned when a position lies outside a node's or tile's declared bounds.
	ErrOutOfBounds = zerr.New("position out of bounds")

	// ErrInvalidConfiguration is returned when a configuration value is rejected.
	ErrInvalidConfiguration = zerr.New("invalid configuration")

	// ErrInvalidChildIndex is returned when a child index is outside 0-7.
	ErrInvalidChildIndex = zerr.New("invalid child index, expected 0-7")

	// ErrInvalidBounds is returned when a box has an inverted, empty or non-finite range.
	ErrInvalidBounds = zerr.New("invalid bounds")

	// ErrInvalidNode is returned when a node handle does not refer to a live node.
	ErrInvalidNode = zerr.New("invalid node handle")

	// ErrInvalidPath is returned when an octant path contains characters other than 0-7.
	ErrInvalidPath = zerr.New("invalid octant path")

	// ErrUnknownMaterial is returned when a material name is not in the catalog.
	ErrUnknownMaterial = zerr.New("unknown material")

	// ErrUnknownStrategy is returned when a consolidation strategy name is not recognized.
	ErrUnknownStrategy = zerr.New("unknown consolidation strategy")

	// ErrUnknownProcess is returned when a process kind is not recognized.
	ErrUnknownProcess = zerr.New("unknown process kind")

	// ErrUnknownStorageDriver is returned when the configured chunk store driver is not recognized.
	ErrUnknownStorageDriver = zerr.New("unknown storage driver, expected 'none', 'file' or 'sqlite'")

	// ErrConsolidationFailed is returned when applying deltas to base storage fails.
	ErrConsolidationFailed = zerr.New("delta consolidation failed")

	// ErrTileFlushFailed is returned when a tile cannot be flushed.
	ErrTileFlushFailed = zerr.New("failed to flush tile")

	// ErrTileLoadFailed is returned when a tile cannot be loaded or sampled.
	ErrTileLoadFailed = zerr.New("failed to load tile")

	// ErrTileDecodeFailed is returned when a persisted tile payload is malformed.
	ErrTileDecodeFailed = zerr.New("failed to decode tile")

	// ErrChunkCreateFailed is returned when the chunk store directory cannot be created.
	ErrChunkCreateFailed = zerr.New("failed to create chunk store")

	// ErrChunkReadFailed is returned when a chunk cannot be read.
	ErrChunkReadFailed = zerr.New("failed to read chunk")

	// ErrChunkWriteFailed is returned when a chunk cannot be written.
	ErrChunkWriteFailed = zerr.New("failed to write chunk")

	// ErrChunkDeleteFailed is returned when a chunk cannot be deleted.
	ErrChunkDeleteFailed = zerr.New("failed to delete chunk")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrSimulationFailed is returned when a simulation run fails.
	ErrSimulationFailed = zerr.New("simulation failed")
)
