package world

import (
	"voxelworld.dev/internal/sim/world/stream"
	"voxelworld.dev/internal/sim/world/terrain/store"
	"voxelworld.dev/internal/sim/world/voxel"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EditLogger interface {
	WriteEdit(entry EditEntry) error
}

// Journal persists edit deltas across evictions and restarts. It is also
// consulted as the store's delta source when chunks load.
type Journal interface {
	store.DeltaSource
	SaveChunk(coord voxel.ChunkCoord, deltas []store.Delta) error
}

type TickLogEntry struct {
	WorldID string       `json:"world_id"`
	Stats   stream.Stats `json:"stats"`
}

type EditEntry struct {
	Tick   uint64 `json:"tick"`
	Pos    [3]int `json:"pos"`
	From   uint16 `json:"from"`
	To     uint16 `json:"to"`
	Source string `json:"source,omitempty"`
}

type EditRequest struct {
	Pos    voxel.WorldPos
	Voxel  voxel.Voxel
	Source string
	// Resp, when set, receives the outcome once the edit is applied.
	Resp chan EditResult
}

type EditResult struct {
	Prev voxel.Voxel
	Err  error
}

// Params is the public description of a world sent to observers.
type Params struct {
	ID         string   `json:"id"`
	Seed       int64    `json:"seed"`
	ChunkSize  int      `json:"chunk_size"`
	TickRateHz int      `json:"tick_rate_hz"`
	LoadRadius int      `json:"load_radius"`
	Palette    []string `json:"palette"`
}
