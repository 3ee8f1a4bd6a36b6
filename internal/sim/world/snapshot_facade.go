package world

import (
	"errors"
	"fmt"

	"voxelworld.dev/internal/persistence/snapshot"
	"voxelworld.dev/internal/sim/world/terrain/store"
)

var ErrSnapshotMismatch = errors.New("world: snapshot does not match world")

// ExportSnapshot captures the edits of every resident chunk.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    w.tick.Load(),
		},
		Seed:      w.cfg.Terrain.Seed,
		ChunkSize: w.cfg.ChunkSize,
		Chunks:    store.ExportEdits(w.chunks.Edits()),
	}
}

func (w *World) WriteSnapshot(path string) (snapshot.SnapshotV1, error) {
	snap := w.ExportSnapshot()
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// ImportEdits applies a snapshot's edits and reports how many deltas it read.
// Chunks loaded later pick them up on generation; resident chunks are edited
// in place. With a journal the edits are merged into it instead of being kept
// in memory.
func (w *World) ImportEdits(snap snapshot.SnapshotV1) (int, error) {
	if snap.Seed != w.cfg.Terrain.Seed || snap.ChunkSize != w.cfg.ChunkSize {
		return 0, fmt.Errorf("%w: seed %d size %d, world seed %d size %d",
			ErrSnapshotMismatch, snap.Seed, snap.ChunkSize, w.cfg.Terrain.Seed, w.cfg.ChunkSize)
	}
	m, err := store.ImportEdits(w.cfg.ChunkSize, snap.Chunks)
	if err != nil {
		return 0, err
	}
	if w.journal == nil {
		w.deltas.add(m)
	}
	n := 0
	for coord, ds := range m {
		if w.journal != nil {
			prev, err := w.journal.Deltas(coord)
			if err != nil {
				return n, fmt.Errorf("journal chunk %v: %w", coord, err)
			}
			if err := w.journal.SaveChunk(coord, append(prev, ds...)); err != nil {
				return n, fmt.Errorf("journal chunk %v: %w", coord, err)
			}
		}
		if !w.chunks.Loaded(coord) {
			n += len(ds)
			continue
		}
		for _, d := range ds {
			if _, err := w.chunks.Edit(coord, d.Pos, d.Voxel); err != nil && !errors.Is(err, store.ErrNotLoaded) {
				return n, err
			}
		}
		n += len(ds)
	}
	return n, nil
}

func (w *World) ImportSnapshotFile(path string) (int, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return 0, err
	}
	return w.ImportEdits(snap)
}
