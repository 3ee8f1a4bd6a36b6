package store

import (
	"fmt"

	snapv1 "voxelworld.dev/internal/persistence/snapshot"
	"voxelworld.dev/internal/sim/world/voxel"
)

// ExportEdits converts per-chunk deltas into snapshot records, in coordinate order.
func ExportEdits(edits map[voxel.ChunkCoord][]Delta) []snapv1.ChunkEditsV1 {
	keys := make([]voxel.ChunkCoord, 0, len(edits))
	for k := range edits {
		keys = append(keys, k)
	}
	sortCoords(keys)
	out := make([]snapv1.ChunkEditsV1, 0, len(keys))
	for _, k := range keys {
		ds := edits[k]
		rec := snapv1.ChunkEditsV1{
			Coord: [3]int{k.X, k.Y, k.Z},
			Edits: make([]snapv1.EditV1, 0, len(ds)),
		}
		for _, d := range ds {
			rec.Edits = append(rec.Edits, snapv1.EditV1{
				Pos:   [3]int{d.Pos.X, d.Pos.Y, d.Pos.Z},
				Voxel: uint16(d.Voxel),
			})
		}
		out = append(out, rec)
	}
	return out
}

// ImportEdits validates snapshot records against the chunk size.
func ImportEdits(size int, chunks []snapv1.ChunkEditsV1) (MapDeltas, error) {
	out := MapDeltas{}
	for _, rec := range chunks {
		coord := voxel.ChunkCoord{X: rec.Coord[0], Y: rec.Coord[1], Z: rec.Coord[2]}
		for _, e := range rec.Edits {
			p := voxel.Pos{X: e.Pos[0], Y: e.Pos[1], Z: e.Pos[2]}
			if p.X < 0 || p.X >= size || p.Y < 0 || p.Y >= size || p.Z < 0 || p.Z >= size {
				return nil, fmt.Errorf("chunk %v: %w: %+v (size %d)", coord, voxel.ErrOutOfBounds, p, size)
			}
			if !voxel.Voxel(e.Voxel).Valid() {
				return nil, fmt.Errorf("chunk %v: unknown voxel id %d", coord, e.Voxel)
			}
			out[coord] = append(out[coord], Delta{Pos: p, Voxel: voxel.Voxel(e.Voxel)})
		}
	}
	return out, nil
}

// MapDeltas is an in-memory DeltaSource.
type MapDeltas map[voxel.ChunkCoord][]Delta

func (m MapDeltas) Deltas(coord voxel.ChunkCoord) ([]Delta, error) {
	return m[coord], nil
}
