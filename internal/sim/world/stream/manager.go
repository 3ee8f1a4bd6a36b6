package stream

import (
	"log"
	"runtime"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"

	"voxelworld.dev/internal/sim/world/mesh"
	"voxelworld.dev/internal/sim/world/meshcache"
	"voxelworld.dev/internal/sim/world/terrain/store"
	"voxelworld.dev/internal/sim/world/voxel"
)

type Config struct {
	LoadRadius int
	// VerticalRadius caps |dy| when positive.
	VerticalRadius int

	MaxGenerationsPerTick int
	MaxMeshesPerTick      int
	MaxInFlight           int
	Workers               int
}

func (c Config) withDefaults() Config {
	if c.LoadRadius < 0 {
		c.LoadRadius = 0
	}
	if c.MaxGenerationsPerTick <= 0 {
		c.MaxGenerationsPerTick = 8
	}
	if c.MaxMeshesPerTick <= 0 {
		c.MaxMeshesPerTick = 8
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 32
	}
	if c.Workers <= 0 {
		c.Workers = max(runtime.NumCPU(), 1)
	}
	return c
}

type result struct {
	coord voxel.ChunkCoord
	kind  taskKind
	built *mesh.Mesh
	err   error
}

// Manager decides each tick which chunks to generate, mesh and evict around
// the viewer. Step must be called from a single goroutine; SetViewer and
// LastStats are safe from any goroutine.
type Manager struct {
	cfg    Config
	store  *store.ChunkStore
	mesher mesh.Mesher
	cache  *meshcache.Cache
	pool   pond.Pool
	log    *log.Logger

	mu      sync.Mutex
	viewer  mgl32.Vec3
	last    Stats
	totals  Stats
	stopped bool

	// Owned by the Step goroutine.
	tick     uint64
	chunks   map[voxel.ChunkCoord]*chunkRuntime
	inFlight int
	results  chan result
	wg       sync.WaitGroup
}

func NewManager(cfg Config, st *store.ChunkStore, mesher mesh.Mesher, cache *meshcache.Cache, logger *log.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:     cfg,
		store:   st,
		mesher:  mesher,
		cache:   cache,
		pool:    pond.NewPool(cfg.Workers),
		log:     logger,
		chunks:  map[voxel.ChunkCoord]*chunkRuntime{},
		results: make(chan result, cfg.MaxInFlight),
	}
}

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) SetViewer(pos mgl32.Vec3) {
	m.mu.Lock()
	m.viewer = pos
	m.mu.Unlock()
}

func (m *Manager) Viewer() mgl32.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewer
}

func (m *Manager) LastStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// State reports the lifecycle state of coord; false means unloaded.
func (m *Manager) State(coord voxel.ChunkCoord) (State, bool) {
	rt := m.chunks[coord]
	if rt == nil {
		return 0, false
	}
	return rt.state, true
}

// Settled reports whether nothing is in flight and every tracked chunk is
// clean. Only meaningful between Steps on the Step goroutine.
func (m *Manager) Settled() bool {
	if m.inFlight > 0 {
		return false
	}
	for _, rt := range m.chunks {
		if rt.state != Clean {
			return false
		}
	}
	return true
}

// Wait blocks until every submitted task has finished. Results are applied
// by the next Step.
func (m *Manager) Wait() { m.wg.Wait() }

// Stop waits for outstanding tasks and shuts the pool down.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()
	m.pool.StopAndWait()
	m.wg.Wait()
}

// Step advances streaming by one tick: apply finished work, reconcile the
// tracked set with the load radius, evict, then issue new work nearest
// first within the per-tick budgets.
func (m *Manager) Step() Stats {
	m.tick++
	var s Stats
	s.Tick = m.tick

	m.drain(&s)

	center := ViewerChunk(m.Viewer(), m.store.ChunkSize())
	s.Viewer = [3]int{center.X, center.Y, center.Z}
	wanted := ComputeWantedChunks(center, m.cfg.LoadRadius, m.cfg.VerticalRadius)
	s.Wanted = len(wanted)
	wantSet := make(map[voxel.ChunkCoord]struct{}, len(wanted))
	for _, k := range wanted {
		wantSet[k] = struct{}{}
		rt := m.chunks[k]
		switch {
		case rt == nil:
			m.chunks[k] = &chunkRuntime{state: Loading}
		case rt.state == Evicting:
			// Back in range before the eviction went through.
			if m.store.Retain(k) {
				rt.state = Dirty
				break
			}
			// A released lease completed the removal; the chunk comes back
			// as a new instance whose versions restart, so the old mesh
			// would reject every rebuild.
			rt.state = Loading
			if m.cache.Remove(k) {
				s.Evicted++
			}
		}
	}

	for k, rt := range m.chunks {
		if _, ok := wantSet[k]; !ok && rt.state != Evicting {
			rt.state = Evicting
		}
	}
	m.evict(&s)

	for k, rt := range m.chunks {
		if rt.state == Clean && m.store.Dirty(k) {
			rt.state = Dirty
		}
	}

	m.issue(wanted, &s)

	for _, rt := range m.chunks {
		switch rt.state {
		case Loading:
			s.Loading++
		case Clean:
			s.Clean++
		case Dirty:
			s.Dirty++
		case Evicting:
			s.Evicting++
		}
	}
	s.InFlight = m.inFlight

	m.mu.Lock()
	m.totals.TotalGenerated += uint64(s.Generated)
	m.totals.TotalMeshed += uint64(s.Meshed)
	m.totals.TotalEvicted += uint64(s.Evicted)
	m.totals.TotalFailures += uint64(s.Failures)
	s.TotalGenerated = m.totals.TotalGenerated
	s.TotalMeshed = m.totals.TotalMeshed
	s.TotalEvicted = m.totals.TotalEvicted
	s.TotalFailures = m.totals.TotalFailures
	m.last = s
	m.mu.Unlock()
	return s
}

func (m *Manager) drain(s *Stats) {
	for {
		select {
		case r := <-m.results:
			m.apply(r, s)
		default:
			return
		}
	}
}

func (m *Manager) apply(r result, s *Stats) {
	m.inFlight--
	rt := m.chunks[r.coord]
	if rt == nil {
		return
	}
	rt.busy = false
	if r.err != nil {
		rt.failures++
		s.Failures++
		if m.log != nil {
			m.log.Printf("chunk %v: %s failed (attempt %d): %v", r.coord, r.kind, rt.failures, r.err)
		}
		return
	}
	rt.failures = 0
	if r.kind == taskGenerate {
		return
	}
	if rt.state == Evicting {
		s.Skipped++
		return
	}
	// A rejected Put means a newer mesh is already cached.
	if !m.cache.Put(r.coord, r.built) {
		s.Skipped++
	}
	rt.state = Clean
}

func (m *Manager) evict(s *Stats) {
	for k, rt := range m.chunks {
		if rt.state != Evicting || rt.busy {
			continue
		}
		if !m.store.Evict(k) {
			// A neighbor's meshing task still holds it; the store finishes
			// the removal on release and the next Step sees it gone.
			continue
		}
		m.cache.Remove(k)
		delete(m.chunks, k)
		s.Evicted++
	}
}

func (m *Manager) issue(wanted []voxel.ChunkCoord, s *Stats) {
	gens, meshes := m.cfg.MaxGenerationsPerTick, m.cfg.MaxMeshesPerTick
	for _, k := range wanted {
		if m.inFlight >= m.cfg.MaxInFlight || (gens == 0 && meshes == 0) {
			return
		}
		rt := m.chunks[k]
		if rt == nil || rt.busy {
			continue
		}
		switch {
		case rt.state == Loading && !m.store.Loaded(k):
			if gens == 0 {
				continue
			}
			gens--
			s.Generated++
			m.submit(k, rt, taskGenerate)
		case rt.state == Loading || rt.state == Dirty:
			if meshes == 0 {
				continue
			}
			meshes--
			s.Meshed++
			m.submit(k, rt, taskMesh)
		}
	}
}

func (m *Manager) submit(coord voxel.ChunkCoord, rt *chunkRuntime, kind taskKind) {
	rt.busy = true
	m.inFlight++
	m.wg.Add(1)
	m.pool.Submit(func() {
		defer m.wg.Done()
		r := result{coord: coord, kind: kind}
		if kind == taskGenerate {
			_, r.err = m.store.GetOrLoad(coord)
		} else {
			r.built, r.err = m.build(coord)
		}
		m.results <- r
	})
}

func (m *Manager) build(coord voxel.ChunkCoord) (*mesh.Mesh, error) {
	lease, err := m.store.Acquire(coord)
	if err != nil {
		return nil, err
	}
	out := m.mesher.Build(mesh.Input{Grid: lease.Grid, Neighbors: lease.Boundaries})
	out.Coord = coord
	out.Version = lease.Version
	out.Epoch = lease.Epoch
	lease.Release(true)
	return out, nil
}
