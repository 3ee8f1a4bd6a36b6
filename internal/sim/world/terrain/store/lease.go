package store

import (
	"fmt"
	"sync"

	"voxelworld.dev/internal/sim/world/voxel"
)

// Lease pins a chunk and its loaded neighbors for one meshing task. While any
// lease references a chunk, eviction of that chunk is deferred.
type Lease struct {
	Coord   voxel.ChunkCoord
	Version uint64
	Epoch   uint64

	// Grid is a private copy of the chunk's voxels.
	Grid *voxel.Grid
	// Boundaries holds, per face, the neighbor's layer touching this chunk;
	// nil when that neighbor is not loaded.
	Boundaries [6]*voxel.Plane

	store     *ChunkStore
	chunk     *Chunk
	neighbors [6]*Chunk
	once      sync.Once
}

// MissingNeighbors counts faces whose neighbor was not loaded at acquire time.
func (l *Lease) MissingNeighbors() int {
	n := 0
	for _, b := range l.Boundaries {
		if b == nil {
			n++
		}
	}
	return n
}

// Acquire references the chunk at coord plus its loaded neighbors and
// snapshots what meshing needs.
func (s *ChunkStore) Acquire(coord voxel.ChunkCoord) (*Lease, error) {
	s.mu.Lock()
	ch := s.chunks[coord]
	if ch == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrNotLoaded, coord)
	}
	ch.refs++
	l := &Lease{
		Coord: coord,
		// Read under the store lock so a neighbor inserted after this point
		// always leaves the chunk dirty.
		Epoch: ch.epoch.Load(),
		store: s,
		chunk: ch,
	}
	for i, f := range voxel.Faces {
		if nb := s.chunks[coord.Neighbor(f)]; nb != nil {
			nb.refs++
			l.neighbors[i] = nb
		}
	}
	s.mu.Unlock()

	ch.mu.RLock()
	l.Grid = ch.grid.Clone()
	l.Version = ch.version.Load()
	ch.mu.RUnlock()

	for i, nb := range l.neighbors {
		if nb == nil {
			continue
		}
		f := voxel.Faces[i]
		layer := 0
		if f.Sign() < 0 {
			layer = s.size - 1
		}
		nb.mu.RLock()
		l.Boundaries[i] = nb.grid.Layer(f.Axis(), layer)
		nb.mu.RUnlock()
	}
	return l, nil
}

// Release drops the lease's references. When meshed is true the chunk is
// marked clean as of the lease's epoch; later invalidations keep it dirty.
// Deferred evictions whose last reference this was are completed here.
func (l *Lease) Release(meshed bool) {
	l.once.Do(func() {
		if meshed {
			l.chunk.markClean(l.Epoch)
		}
		s := l.store
		var evicted []*Chunk
		s.mu.Lock()
		for _, ch := range append(l.neighbors[:], l.chunk) {
			if ch == nil {
				continue
			}
			ch.refs--
			if ch.refs == 0 && ch.evictPending && s.chunks[ch.coord] == ch {
				s.removeLocked(ch)
				evicted = append(evicted, ch)
			}
		}
		s.mu.Unlock()
		s.notifyEvicted(evicted)
	})
}

// Evict removes the chunk at coord unless a meshing task references it, in
// which case the removal is deferred until the last reference is released.
// It reports whether coord is no longer resident; absent chunks are a no-op.
func (s *ChunkStore) Evict(coord voxel.ChunkCoord) bool {
	s.mu.Lock()
	ch := s.chunks[coord]
	if ch == nil {
		s.mu.Unlock()
		return true
	}
	if ch.refs > 0 {
		ch.evictPending = true
		s.mu.Unlock()
		return false
	}
	s.removeLocked(ch)
	s.mu.Unlock()
	s.notifyEvicted([]*Chunk{ch})
	return true
}

// EvictPending reports whether coord is waiting on references to drop.
func (s *ChunkStore) EvictPending(coord voxel.ChunkCoord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch := s.chunks[coord]
	return ch != nil && ch.evictPending
}

func (s *ChunkStore) removeLocked(ch *Chunk) {
	delete(s.chunks, ch.coord)
	ch.evictPending = false
	if s.onEvict != nil {
		if _, ok := s.saving[ch.coord]; !ok {
			s.saving[ch.coord] = make(chan struct{})
		}
	}
	// Faces that bordered this chunk are unknown again.
	s.markNeighborsDirtyLocked(ch.coord)
}

// notifyEvicted runs the evict hook outside the store lock, then lets loads
// of each coordinate proceed.
func (s *ChunkStore) notifyEvicted(chunks []*Chunk) {
	if s.onEvict == nil {
		return
	}
	for _, ch := range chunks {
		s.onEvict(ch.coord, ch.Deltas())
		s.mu.Lock()
		if done, ok := s.saving[ch.coord]; ok {
			close(done)
			delete(s.saving, ch.coord)
		}
		s.mu.Unlock()
	}
}

// waitSaved blocks until the evict hook for coord, if one is running, has
// returned.
func (s *ChunkStore) waitSaved(coord voxel.ChunkCoord) {
	s.mu.RLock()
	done := s.saving[coord]
	s.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// Retain cancels a pending eviction of coord and reports whether it is
// resident.
func (s *ChunkStore) Retain(coord voxel.ChunkCoord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.chunks[coord]
	if ch == nil {
		return false
	}
	ch.evictPending = false
	return true
}
