package world

import (
	"voxelworld.dev/internal/sim/tuning"
	"voxelworld.dev/internal/sim/world/stream"
	"voxelworld.dev/internal/sim/world/terrain/gen"
)

type WorldConfig struct {
	ID         string
	ChunkSize  int
	TickRateHz int

	Terrain   gen.Params
	Streaming stream.Config
	Greedy    bool

	// SaveOnEvict writes a chunk's edits to the journal when it is evicted.
	SaveOnEvict bool
}

// ConfigFromTuning maps the YAML config onto the runtime config.
func ConfigFromTuning(t tuning.Config) WorldConfig {
	tr := t.Terrain
	return WorldConfig{
		ID:         t.World.ID,
		ChunkSize:  t.World.ChunkSize,
		TickRateHz: t.World.TickRateHz,
		Terrain: gen.Params{
			Seed:          tr.Seed,
			Frequency:     tr.Frequency,
			Amplitude:     tr.Amplitude,
			Octaves:       tr.Octaves,
			Persistence:   tr.Persistence,
			Lacunarity:    tr.Lacunarity,
			BaseHeight:    tr.BaseHeight,
			DirtDepth:     tr.DirtDepth,
			SnowLine:      tr.SnowLine,
			BeachHeight:   tr.BeachHeight,
			CaveFrequency: tr.CaveFrequency,
			CaveThreshold: tr.CaveThreshold,
			OrePermille:   tr.OrePermille,
		},
		Streaming: stream.Config{
			LoadRadius:            t.Streaming.LoadRadius,
			VerticalRadius:        t.Streaming.VerticalRadius,
			MaxGenerationsPerTick: t.Streaming.MaxGenerationsPerTick,
			MaxMeshesPerTick:      t.Streaming.MaxMeshesPerTick,
			MaxInFlight:           t.Streaming.MaxInFlight,
			Workers:               t.Streaming.Workers,
		},
		Greedy:      t.Meshing.Greedy,
		SaveOnEvict: t.Persistence.SaveOnEvict,
	}
}
