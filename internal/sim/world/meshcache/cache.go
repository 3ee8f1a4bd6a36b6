package meshcache

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"voxelworld.dev/internal/sim/world/mesh"
	"voxelworld.dev/internal/sim/world/voxel"
)

type meshes map[voxel.ChunkCoord]*mesh.Mesh

// Cache holds the latest mesh per chunk for the renderer. Readers load an
// immutable map and never block; writers copy it and swap the pointer.
type Cache struct {
	chunkSize int

	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[meshes]
	seq atomic.Uint64
}

type Entry struct {
	Coord voxel.ChunkCoord
	// Offset is the world position of the chunk origin; add it to vertex
	// positions.
	Offset mgl32.Vec3
	Mesh   *mesh.Mesh
}

func New(chunkSize int) *Cache {
	c := &Cache{chunkSize: chunkSize}
	empty := meshes{}
	c.cur.Store(&empty)
	return c
}

func (c *Cache) load() meshes { return *c.cur.Load() }

func (c *Cache) Get(coord voxel.ChunkCoord) (*mesh.Mesh, bool) {
	m, ok := c.load()[coord]
	return m, ok
}

func (c *Cache) Len() int { return len(c.load()) }

// Seq increases on every accepted change.
func (c *Cache) Seq() uint64 { return c.seq.Load() }

// Put installs m for coord unless the cached mesh was built from newer chunk
// state. It reports whether m was installed.
func (c *Cache) Put(coord voxel.ChunkCoord, m *mesh.Mesh) bool {
	if m == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.load()
	if prev, ok := old[coord]; ok && !m.Newer(prev) {
		return false
	}
	next := make(meshes, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[coord] = m
	c.cur.Store(&next)
	c.seq.Add(1)
	return true
}

// Remove drops coord. Absent coordinates are a no-op.
func (c *Cache) Remove(coord voxel.ChunkCoord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.load()
	if _, ok := old[coord]; !ok {
		return false
	}
	next := make(meshes, len(old))
	for k, v := range old {
		if k != coord {
			next[k] = v
		}
	}
	c.cur.Store(&next)
	c.seq.Add(1)
	return true
}

// Snapshot lists every cached mesh in coordinate order. The meshes are
// shared and must not be modified.
func (c *Cache) Snapshot() []Entry {
	cur := c.load()
	out := make([]Entry, 0, len(cur))
	for coord, m := range cur {
		o := coord.Origin(c.chunkSize)
		out = append(out, Entry{
			Coord:  coord,
			Offset: mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)},
			Mesh:   m,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Coord, out[j].Coord
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}
