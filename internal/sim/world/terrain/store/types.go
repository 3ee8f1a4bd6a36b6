package store

import (
	"errors"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"voxelworld.dev/internal/sim/world/voxel"
)

var (
	ErrNotLoaded = errors.New("store: chunk not loaded")
	ErrClosed    = errors.New("store: closed")
)

// Generator fills a freshly allocated grid for coord.
type Generator interface {
	FillChunk(coord voxel.ChunkCoord, grid *voxel.Grid) error
}

// Delta is one edited voxel, relative to generated terrain.
type Delta struct {
	Pos   voxel.Pos
	Voxel voxel.Voxel
}

// DeltaSource supplies previously saved edits, applied right after generation.
type DeltaSource interface {
	Deltas(coord voxel.ChunkCoord) ([]Delta, error)
}

// EvictHook observes chunks leaving the store together with their edits.
type EvictHook func(coord voxel.ChunkCoord, deltas []Delta)

type Chunk struct {
	coord voxel.ChunkCoord

	mu    sync.RWMutex
	grid  *voxel.Grid
	edits map[voxel.Pos]voxel.Voxel

	version atomic.Uint64
	// epoch moves on every event that invalidates the mesh; cleanEpoch is the
	// epoch the current mesh was built at.
	epoch      atomic.Uint64
	cleanEpoch atomic.Uint64

	// Guarded by ChunkStore.mu.
	refs         int
	evictPending bool
}

func newChunk(coord voxel.ChunkCoord, size int) *Chunk {
	ch := &Chunk{
		coord: coord,
		grid:  voxel.NewGrid(size),
		edits: map[voxel.Pos]voxel.Voxel{},
	}
	ch.epoch.Store(1)
	return ch
}

func (c *Chunk) Coord() voxel.ChunkCoord { return c.coord }

// Version counts effective edits since generation.
func (c *Chunk) Version() uint64 { return c.version.Load() }

// Dirty reports whether the latest mesh (if any) is out of date.
func (c *Chunk) Dirty() bool { return c.epoch.Load() != c.cleanEpoch.Load() }

func (c *Chunk) Get(p voxel.Pos) (voxel.Voxel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grid.Get(p)
}

// Snapshot copies the grid.
func (c *Chunk) Snapshot() *voxel.Grid {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grid.Clone()
}

// Deltas lists the chunk's edits in z, y, x order.
func (c *Chunk) Deltas() []Delta {
	c.mu.RLock()
	out := make([]Delta, 0, len(c.edits))
	for p, v := range c.edits {
		out = append(out, Delta{Pos: p, Voxel: v})
	}
	c.mu.RUnlock()
	sortDeltas(out)
	return out
}

func (c *Chunk) markDirty() { c.epoch.Add(1) }

func (c *Chunk) markClean(epoch uint64) {
	for {
		cur := c.cleanEpoch.Load()
		if cur >= epoch || c.cleanEpoch.CompareAndSwap(cur, epoch) {
			return
		}
	}
}

// set writes under the chunk lock and reports whether the value changed.
func (c *Chunk) set(p voxel.Pos, v voxel.Voxel) (voxel.Voxel, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, err := c.grid.Set(p, v)
	if err != nil || prev == v {
		return prev, false, err
	}
	c.edits[p] = v
	c.version.Add(1)
	c.markDirty()
	return prev, true, nil
}

// ChunkStore owns every live chunk. Other components refer to chunks by
// coordinate and go through the store for access.
type ChunkStore struct {
	size    int
	gen     Generator
	deltas  DeltaSource
	onEvict EvictHook
	log     *log.Logger

	mu     sync.RWMutex
	chunks map[voxel.ChunkCoord]*Chunk
	closed bool
	// saving holds, per evicted coordinate, a channel closed once the evict
	// hook has returned. Loads of that coordinate wait on it.
	saving map[voxel.ChunkCoord]chan struct{}

	// In-progress claims: one generation per coordinate at a time.
	claims      singleflight.Group
	generations atomic.Uint64
}

type Option func(*ChunkStore)

func WithDeltaSource(ds DeltaSource) Option {
	return func(s *ChunkStore) { s.deltas = ds }
}

func WithEvictHook(h EvictHook) Option {
	return func(s *ChunkStore) { s.onEvict = h }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ChunkStore) { s.log = l }
}

func NewChunkStore(size int, gen Generator, opts ...Option) *ChunkStore {
	s := &ChunkStore{
		size:   size,
		gen:    gen,
		chunks: map[voxel.ChunkCoord]*Chunk{},
		saving: map[voxel.ChunkCoord]chan struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ChunkStore) ChunkSize() int { return s.size }

// Generations counts generator invocations over the store's lifetime.
func (s *ChunkStore) Generations() uint64 { return s.generations.Load() }

func (s *ChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Close drops every chunk. Later loads fail with ErrClosed.
func (s *ChunkStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.chunks = map[voxel.ChunkCoord]*Chunk{}
}

func sortDeltas(ds []Delta) {
	sort.Slice(ds, func(i, j int) bool {
		a, b := ds[i].Pos, ds[j].Pos
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
}

func sortCoords(keys []voxel.ChunkCoord) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].Z < keys[j].Z
	})
}
