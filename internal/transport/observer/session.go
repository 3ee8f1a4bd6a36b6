package observer

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"sync"

	"golang.org/x/time/rate"

	"voxelworld.dev/internal/protocol"
	"voxelworld.dev/internal/sim/world/mesh"
	"voxelworld.dev/internal/sim/world/meshcache"
	"voxelworld.dev/internal/sim/world/voxel"
)

type session struct {
	id      string
	out     chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	center voxel.ChunkCoord
	radius int
	moved  bool

	// sent is only touched by the push loop. Cache entries are immutable, so
	// a different pointer is a different mesh even when a reloaded chunk
	// repeats an earlier version and epoch.
	sent map[voxel.ChunkCoord]*mesh.Mesh
}

func newSession(id string, center voxel.ChunkCoord, radius int) *session {
	return &session{
		id:     id,
		out:    make(chan []byte, 256),
		center: center,
		radius: radius,
		sent:   map[voxel.ChunkCoord]*mesh.Mesh{},
	}
}

func (s *session) setViewer(center voxel.ChunkCoord, radius int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if center != s.center || (radius > 0 && radius != s.radius) {
		s.moved = true
	}
	s.center = center
	if radius > 0 {
		s.radius = radius
	}
}

func (s *session) takeMoved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.moved
	s.moved = false
	return m
}

func (s *session) view() (voxel.ChunkCoord, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.center, s.radius
}

// diff returns the MESH and EVICT messages that bring the client from what it
// was sent to the cache snapshot, restricted to the session's radius.
func (s *session) diff(entries []meshcache.Entry, tick uint64) []any {
	center, radius := s.view()
	r2 := radius * radius
	var msgs []any
	seen := make(map[voxel.ChunkCoord]struct{}, len(entries))
	for _, e := range entries {
		if center.DistSq(e.Coord) > r2 {
			continue
		}
		seen[e.Coord] = struct{}{}
		if prev, ok := s.sent[e.Coord]; ok && prev == e.Mesh {
			continue
		}
		s.sent[e.Coord] = e.Mesh
		msgs = append(msgs, meshMsg(e, tick))
	}
	var gone []voxel.ChunkCoord
	for c := range s.sent {
		if _, ok := seen[c]; !ok {
			gone = append(gone, c)
		}
	}
	sortCoords(gone)
	for _, c := range gone {
		delete(s.sent, c)
		msgs = append(msgs, protocol.EvictMsg{
			Type:            protocol.TypeEvict,
			ProtocolVersion: protocol.Version,
			Tick:            tick,
			Coord:           [3]int{c.X, c.Y, c.Z},
		})
	}
	return msgs
}

// send blocks until the writer takes the message or ctx ends.
func (s *session) send(ctx context.Context, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case s.out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

func meshMsg(e meshcache.Entry, tick uint64) protocol.MeshMsg {
	m := e.Mesh
	n := len(m.Vertices)
	msg := protocol.MeshMsg{
		Type:            protocol.TypeMesh,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Coord:           [3]int{e.Coord.X, e.Coord.Y, e.Coord.Z},
		Version:         m.Version,
		Epoch:           m.Epoch,
		Offset:          [3]float32{e.Offset.X(), e.Offset.Y(), e.Offset.Z()},
		Positions:       make([]float32, 0, 3*n),
		Normals:         make([]float32, 0, 3*n),
		UVs:             make([]float32, 0, 2*n),
		Materials:       make([]uint16, 0, n),
		Indices:         m.Indices,
	}
	for _, v := range m.Vertices {
		msg.Positions = append(msg.Positions, v.Position[0], v.Position[1], v.Position[2])
		msg.Normals = append(msg.Normals, v.Normal[0], v.Normal[1], v.Normal[2])
		msg.UVs = append(msg.UVs, v.UV[0], v.UV[1])
		msg.Materials = append(msg.Materials, uint16(v.Material))
	}
	return msg
}

func sortCoords(cs []voxel.ChunkCoord) {
	slices.SortFunc(cs, func(a, b voxel.ChunkCoord) int {
		if a.X != b.X {
			return cmp.Compare(a.X, b.X)
		}
		if a.Y != b.Y {
			return cmp.Compare(a.Y, b.Y)
		}
		return cmp.Compare(a.Z, b.Z)
	})
}
