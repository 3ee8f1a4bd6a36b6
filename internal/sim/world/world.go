package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"voxelworld.dev/internal/sim/world/mesh"
	"voxelworld.dev/internal/sim/world/meshcache"
	"voxelworld.dev/internal/sim/world/stream"
	"voxelworld.dev/internal/sim/world/terrain/gen"
	"voxelworld.dev/internal/sim/world/terrain/store"
	"voxelworld.dev/internal/sim/world/voxel"
)

var (
	ErrNoJournal = errors.New("world: no edit journal configured")
	ErrBusy      = errors.New("world: edit queue full")
)

// World ties the chunk store, streaming and the mesh cache to one tick loop.
// Step and Run must not be used concurrently; the other methods are safe from
// any goroutine.
type World struct {
	cfg WorldConfig

	tick atomic.Uint64

	gen      *gen.Generator
	chunks   *store.ChunkStore
	cache    *meshcache.Cache
	streamer *stream.Manager
	deltas   *overlay

	journal    Journal
	tickLogger TickLogger
	editLogger EditLogger
	log        *log.Logger

	inbox    chan EditRequest
	stop     chan struct{}
	stopOnce sync.Once
	closed   atomic.Bool
}

type Option func(*World)

func WithJournal(j Journal) Option    { return func(w *World) { w.journal = j } }
func WithLogger(l *log.Logger) Option { return func(w *World) { w.log = l } }

func New(cfg WorldConfig, opts ...Option) (*World, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("world: chunk size must be > 0, got %d", cfg.ChunkSize)
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	g, err := gen.New(cfg.Terrain)
	if err != nil {
		return nil, err
	}
	w := &World{
		cfg:   cfg,
		gen:   g,
		inbox: make(chan EditRequest, 1024),
		stop:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	if w.log == nil {
		w.log = log.New(io.Discard, "", 0)
	}
	w.deltas = &overlay{journal: w.journal}

	storeOpts := []store.Option{
		store.WithDeltaSource(w.deltas),
		store.WithLogger(w.log),
	}
	if cfg.SaveOnEvict && w.journal != nil {
		storeOpts = append(storeOpts, store.WithEvictHook(w.saveEvicted))
	}
	w.chunks = store.NewChunkStore(cfg.ChunkSize, g, storeOpts...)
	w.cache = meshcache.New(cfg.ChunkSize)
	streamLog := log.New(w.log.Writer(), "[stream] ", w.log.Flags())
	w.streamer = stream.NewManager(cfg.Streaming, w.chunks, mesh.New(cfg.Greedy), w.cache, streamLog)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }
func (w *World) SetEditLogger(l EditLogger) { w.editLogger = l }

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Params() Params {
	return Params{
		ID:         w.cfg.ID,
		Seed:       w.cfg.Terrain.Seed,
		ChunkSize:  w.cfg.ChunkSize,
		TickRateHz: w.cfg.TickRateHz,
		LoadRadius: w.streamer.Config().LoadRadius,
		Palette:    voxel.Palette(),
	}
}

// Meshes is the renderer-facing cache. Reads never block the tick loop.
func (w *World) Meshes() *meshcache.Cache { return w.cache }

func (w *World) Chunks() *store.ChunkStore { return w.chunks }

func (w *World) Generator() *gen.Generator { return w.gen }

func (w *World) SetViewer(pos mgl32.Vec3) { w.streamer.SetViewer(pos) }

func (w *World) Viewer() mgl32.Vec3 { return w.streamer.Viewer() }

func (w *World) Stats() stream.Stats { return w.streamer.LastStats() }

// ChunkVoxels copies the voxels of a resident chunk.
func (w *World) ChunkVoxels(coord voxel.ChunkCoord) (*voxel.Grid, uint64, error) {
	ch, ok := w.chunks.Chunk(coord)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %v", store.ErrNotLoaded, coord)
	}
	g := ch.Snapshot()
	return g, ch.Version(), nil
}

func (w *World) saveEvicted(coord voxel.ChunkCoord, deltas []store.Delta) {
	if len(deltas) == 0 {
		return
	}
	if err := w.journal.SaveChunk(coord, deltas); err != nil {
		w.log.Printf("save evicted chunk %v: %v", coord, err)
	}
}

func (w *World) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Close stops streaming, saves edits when save-on-evict is enabled, flushes
// the logs and drops every chunk.
func (w *World) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.Stop()
	w.streamer.Stop()
	var err error
	if w.cfg.SaveOnEvict && w.journal != nil {
		_, err = w.SaveEdits()
	} else {
		err = w.FlushLogs()
	}
	w.chunks.Close()
	return err
}

// overlay serves journaled deltas with imported ones layered on top.
type overlay struct {
	journal Journal

	mu       sync.RWMutex
	imported store.MapDeltas
}

func (o *overlay) Deltas(coord voxel.ChunkCoord) ([]store.Delta, error) {
	var out []store.Delta
	if o.journal != nil {
		ds, err := o.journal.Deltas(coord)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	o.mu.RLock()
	out = append(out, o.imported[coord]...)
	o.mu.RUnlock()
	return out, nil
}

func (o *overlay) add(m store.MapDeltas) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.imported == nil {
		o.imported = store.MapDeltas{}
	}
	for k, ds := range m {
		o.imported[k] = append(o.imported[k], ds...)
	}
}
