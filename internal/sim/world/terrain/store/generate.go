package store

import (
	"fmt"

	"voxelworld.dev/internal/sim/world/voxel"
)

// GetOrLoad returns the resident chunk at coord, generating and inserting it
// if needed. Concurrent callers for the same coordinate share one generation.
// Loading a chunk that was waiting for eviction cancels the eviction.
func (s *ChunkStore) GetOrLoad(coord voxel.ChunkCoord) (*Chunk, error) {
	if ch, err := s.resident(coord); ch != nil || err != nil {
		return ch, err
	}
	v, err, _ := s.claims.Do(claimKey(coord), func() (any, error) {
		if ch, err := s.resident(coord); ch != nil || err != nil {
			return ch, err
		}
		ch, err := s.generate(coord)
		if err != nil {
			return nil, err
		}
		return s.insert(ch)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Chunk), nil
}

func (s *ChunkStore) resident(coord voxel.ChunkCoord) (*Chunk, error) {
	s.mu.RLock()
	ch, closed := s.chunks[coord], s.closed
	pending := ch != nil && ch.evictPending
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if !pending {
		return ch, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch = s.chunks[coord]
	if ch != nil {
		ch.evictPending = false
	}
	return ch, nil
}

func (s *ChunkStore) generate(coord voxel.ChunkCoord) (*Chunk, error) {
	ch := newChunk(coord, s.size)
	s.generations.Add(1)
	if err := s.gen.FillChunk(coord, ch.grid); err != nil {
		return nil, fmt.Errorf("generate chunk %v: %w", coord, err)
	}
	if s.deltas == nil {
		return ch, nil
	}
	s.waitSaved(coord)
	ds, err := s.deltas.Deltas(coord)
	if err != nil {
		return nil, fmt.Errorf("load deltas for chunk %v: %w", coord, err)
	}
	for _, d := range ds {
		if _, err := ch.grid.Set(d.Pos, d.Voxel); err != nil {
			if s.log != nil {
				s.log.Printf("chunk %v: skip saved delta: %v", coord, err)
			}
			continue
		}
		ch.edits[d.Pos] = d.Voxel
	}
	return ch, nil
}

func (s *ChunkStore) insert(ch *Chunk) (*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if existing, ok := s.chunks[ch.coord]; ok {
		return existing, nil
	}
	s.chunks[ch.coord] = ch
	// Neighbors now see real voxels where they saw an unknown boundary.
	s.markNeighborsDirtyLocked(ch.coord)
	return ch, nil
}

func (s *ChunkStore) markNeighborsDirtyLocked(coord voxel.ChunkCoord) {
	for _, f := range voxel.Faces {
		if nb := s.chunks[coord.Neighbor(f)]; nb != nil {
			nb.markDirty()
		}
	}
}

func claimKey(c voxel.ChunkCoord) string {
	return fmt.Sprintf("%d,%d,%d", c.X, c.Y, c.Z)
}
