package store

import (
	"fmt"

	"voxelworld.dev/internal/sim/world/voxel"
)

func (s *ChunkStore) lookup(coord voxel.ChunkCoord) *Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[coord]
}

// Loaded reports whether coord is resident.
func (s *ChunkStore) Loaded(coord voxel.ChunkCoord) bool {
	return s.lookup(coord) != nil
}

// Dirty reports whether the chunk at coord needs a new mesh. Absent chunks are
// never dirty.
func (s *ChunkStore) Dirty(coord voxel.ChunkCoord) bool {
	ch := s.lookup(coord)
	return ch != nil && ch.Dirty()
}

func (s *ChunkStore) Version(coord voxel.ChunkCoord) (uint64, error) {
	ch := s.lookup(coord)
	if ch == nil {
		return 0, fmt.Errorf("%w: %v", ErrNotLoaded, coord)
	}
	return ch.Version(), nil
}

// Edit writes one voxel of a resident chunk and returns the previous value.
// A change marks the chunk dirty, bumps its version and dirties the
// neighbors whose boundary faces it can affect.
func (s *ChunkStore) Edit(coord voxel.ChunkCoord, p voxel.Pos, v voxel.Voxel) (voxel.Voxel, error) {
	ch := s.lookup(coord)
	if ch == nil {
		return voxel.Air, fmt.Errorf("%w: %v", ErrNotLoaded, coord)
	}
	prev, changed, err := ch.set(p, v)
	if err != nil || !changed {
		return prev, err
	}
	for axis := 0; axis < 3; axis++ {
		if f, ok := voxel.FaceOf(p, axis, s.size); ok {
			if nb := s.lookup(coord.Neighbor(f)); nb != nil {
				nb.markDirty()
			}
		}
	}
	return prev, nil
}

// Voxel reads a world position from the resident chunk containing it.
func (s *ChunkStore) Voxel(p voxel.WorldPos) (voxel.Voxel, error) {
	coord, local := voxel.Split(p, s.size)
	ch := s.lookup(coord)
	if ch == nil {
		return voxel.Air, fmt.Errorf("%w: %v", ErrNotLoaded, coord)
	}
	return ch.Get(local)
}

// SetVoxel edits a world position.
func (s *ChunkStore) SetVoxel(p voxel.WorldPos, v voxel.Voxel) (voxel.Voxel, error) {
	coord, local := voxel.Split(p, s.size)
	return s.Edit(coord, local, v)
}

// Neighbors returns the six face-adjacent chunks in voxel.Faces order; nil
// entries are not loaded, which is a normal state at the edge of the world.
func (s *ChunkStore) Neighbors(coord voxel.ChunkCoord) [6]*Chunk {
	var out [6]*Chunk
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, f := range voxel.Faces {
		out[i] = s.chunks[coord.Neighbor(f)]
	}
	return out
}

// Coords lists resident coordinates in x, y, z order.
func (s *ChunkStore) Coords() []voxel.ChunkCoord {
	s.mu.RLock()
	keys := make([]voxel.ChunkCoord, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sortCoords(keys)
	return keys
}

// Edits returns the deltas of every resident chunk that has any.
func (s *ChunkStore) Edits() map[voxel.ChunkCoord][]Delta {
	s.mu.RLock()
	chunks := make([]*Chunk, 0, len(s.chunks))
	for _, ch := range s.chunks {
		chunks = append(chunks, ch)
	}
	s.mu.RUnlock()

	out := map[voxel.ChunkCoord][]Delta{}
	for _, ch := range chunks {
		if ds := ch.Deltas(); len(ds) > 0 {
			out[ch.coord] = ds
		}
	}
	return out
}

// Chunk returns the resident chunk at coord without loading it.
func (s *ChunkStore) Chunk(coord voxel.ChunkCoord) (*Chunk, bool) {
	ch := s.lookup(coord)
	return ch, ch != nil
}
