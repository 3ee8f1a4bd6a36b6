package world

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelworld.dev/internal/sim/tuning"
	"voxelworld.dev/internal/sim/world/stream"
	"voxelworld.dev/internal/sim/world/terrain/gen"
	"voxelworld.dev/internal/sim/world/terrain/store"
	"voxelworld.dev/internal/sim/world/voxel"
)

type memJournal struct {
	mu     sync.Mutex
	chunks map[voxel.ChunkCoord][]store.Delta
	saves  int
}

func newMemJournal() *memJournal {
	return &memJournal{chunks: map[voxel.ChunkCoord][]store.Delta{}}
}

func (j *memJournal) SaveChunk(coord voxel.ChunkCoord, ds []store.Delta) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.chunks[coord] = append([]store.Delta(nil), ds...)
	j.saves++
	return nil
}

func (j *memJournal) Deltas(coord voxel.ChunkCoord) ([]store.Delta, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]store.Delta(nil), j.chunks[coord]...), nil
}

type countingTickLog struct {
	mu      sync.Mutex
	entries []TickLogEntry
}

func (l *countingTickLog) WriteTick(e TickLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

type editLog struct {
	entries []EditEntry
	flushes int
}

func (l *editLog) WriteEdit(e EditEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func (l *editLog) Flush() error {
	l.flushes++
	return nil
}

func testConfig() WorldConfig {
	return WorldConfig{
		ID:         "test",
		ChunkSize:  8,
		TickRateHz: 100,
		Terrain:    gen.Defaults(),
		Streaming:  stream.Config{LoadRadius: 1, Workers: 2},
		Greedy:     true,
	}
}

func newTestWorld(t *testing.T, cfg WorldConfig, opts ...Option) *World {
	t.Helper()
	w, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func settle(t *testing.T, w *World) {
	t.Helper()
	for i := 0; i < 2000; i++ {
		w.Step()
		if w.streamer.Settled() {
			return
		}
		w.streamer.Wait()
	}
	t.Fatalf("world did not settle: %+v", w.Stats())
}

// surface returns the top terrain voxel at x=z=0 and points the viewer at it.
func surface(t *testing.T, w *World) voxel.WorldPos {
	t.Helper()
	h := w.Generator().HeightAt(0, 0)
	w.SetViewer(mgl32.Vec3{0.5, float32(h) + 0.5, 0.5})
	return voxel.WorldPos{X: 0, Y: h, Z: 0}
}

func TestStreamsAroundViewer(t *testing.T) {
	w := newTestWorld(t, testConfig())
	tl := &countingTickLog{}
	w.SetTickLogger(tl)
	p := surface(t, w)
	settle(t, w)

	if got, want := w.Meshes().Len(), 7; got != want {
		t.Fatalf("meshes=%d want %d", got, want)
	}
	coord, _ := voxel.Split(p, 8)
	m, ok := w.Meshes().Get(coord)
	if !ok || m.Empty() {
		t.Fatalf("surface chunk %v has no geometry", coord)
	}
	if len(tl.entries) == 0 || tl.entries[0].WorldID != "test" {
		t.Fatalf("tick log entries=%d", len(tl.entries))
	}
	if uint64(len(tl.entries)) != w.CurrentTick() {
		t.Fatalf("logged %d ticks, ran %d", len(tl.entries), w.CurrentTick())
	}
}

func TestEditRemeshes(t *testing.T) {
	w := newTestWorld(t, testConfig())
	el := &editLog{}
	w.SetEditLogger(el)
	p := surface(t, w)
	settle(t, w)

	prev, err := w.Edit(p, voxel.Air, "test")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if prev == voxel.Air {
		t.Fatalf("surface voxel was air")
	}
	settle(t, w)
	coord, _ := voxel.Split(p, 8)
	m, _ := w.Meshes().Get(coord)
	if m == nil || m.Version != 1 {
		t.Fatalf("mesh=%+v want version 1", m)
	}
	if len(el.entries) != 1 || el.entries[0].From != uint16(prev) || el.entries[0].Source != "test" {
		t.Fatalf("edit log=%+v", el.entries)
	}
	if _, err := w.Edit(voxel.WorldPos{X: 10000}, voxel.Stone, "test"); !errors.Is(err, store.ErrNotLoaded) {
		t.Fatalf("err=%v want ErrNotLoaded", err)
	}
	if _, err := w.Edit(p, voxel.Voxel(999), "test"); err == nil {
		t.Fatalf("unknown voxel accepted")
	}
}

func TestSubmitEditAppliesOnStep(t *testing.T) {
	w := newTestWorld(t, testConfig())
	p := surface(t, w)
	settle(t, w)

	resp := make(chan EditResult, 1)
	if err := w.SubmitEdit(EditRequest{Pos: p, Voxel: voxel.Log, Source: "queue", Resp: resp}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if v, _ := w.Chunks().Voxel(p); v == voxel.Log {
		t.Fatalf("edit applied before the tick")
	}
	w.Step()
	r := <-resp
	if r.Err != nil {
		t.Fatalf("edit result: %v", r.Err)
	}
	if v, _ := w.Chunks().Voxel(p); v != voxel.Log {
		t.Fatalf("voxel=%v want LOG", v)
	}
}

func leaveAndReturn(t *testing.T, w *World, p voxel.WorldPos) {
	t.Helper()
	back := w.Viewer()
	w.SetViewer(mgl32.Vec3{1000, 0, 1000})
	settle(t, w)
	coord, _ := voxel.Split(p, 8)
	if w.Chunks().Loaded(coord) {
		t.Fatalf("chunk %v not evicted", coord)
	}
	w.SetViewer(back)
	settle(t, w)
}

func TestEditsLostOnEvictionWithoutJournal(t *testing.T) {
	w := newTestWorld(t, testConfig())
	p := surface(t, w)
	settle(t, w)
	if _, err := w.Edit(p, voxel.Air, "test"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	leaveAndReturn(t, w, p)
	v, err := w.Chunks().Voxel(p)
	if err != nil || v != w.Generator().Generate(p.X, p.Y, p.Z) {
		t.Fatalf("voxel=%v err=%v want regenerated terrain", v, err)
	}
	if _, err := w.SaveEdits(); !errors.Is(err, ErrNoJournal) {
		t.Fatalf("err=%v want ErrNoJournal", err)
	}
}

func TestJournalKeepsEditsAcrossEviction(t *testing.T) {
	cfg := testConfig()
	cfg.SaveOnEvict = true
	j := newMemJournal()
	w := newTestWorld(t, cfg, WithJournal(j))
	p := surface(t, w)
	settle(t, w)
	if _, err := w.Edit(p, voxel.Air, "test"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	leaveAndReturn(t, w, p)
	if v, _ := w.Chunks().Voxel(p); v != voxel.Air {
		t.Fatalf("voxel=%v want AIR after reload", v)
	}
	j.mu.Lock()
	saves := j.saves
	j.mu.Unlock()
	if saves == 0 {
		t.Fatalf("evicted edits were not saved")
	}

	n, err := w.SaveEdits()
	if err != nil || n != 1 {
		t.Fatalf("save edits n=%d err=%v", n, err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	a := newTestWorld(t, testConfig())
	p := surface(t, a)
	settle(t, a)
	if _, err := a.Edit(p, voxel.Gravel, "test"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	path := filepath.Join(t.TempDir(), "edits.snap.zst")
	snap, err := a.WriteSnapshot(path)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if snap.EditCount() != 1 {
		t.Fatalf("edit count=%d", snap.EditCount())
	}

	b := newTestWorld(t, testConfig())
	n, err := b.ImportSnapshotFile(path)
	if err != nil || n != 1 {
		t.Fatalf("import n=%d err=%v", n, err)
	}
	surface(t, b)
	settle(t, b)
	if v, _ := b.Chunks().Voxel(p); v != voxel.Gravel {
		t.Fatalf("voxel=%v want GRAVEL", v)
	}

	cfg := testConfig()
	cfg.Terrain.Seed++
	c := newTestWorld(t, cfg)
	if _, err := c.ImportEdits(snap); !errors.Is(err, ErrSnapshotMismatch) {
		t.Fatalf("err=%v want ErrSnapshotMismatch", err)
	}
}

func TestImportIntoJournalMerges(t *testing.T) {
	j := newMemJournal()
	coord := voxel.ChunkCoord{X: 4}
	_ = j.SaveChunk(coord, []store.Delta{{Pos: voxel.Pos{X: 1}, Voxel: voxel.Stone}})
	w := newTestWorld(t, testConfig(), WithJournal(j))
	snap := w.ExportSnapshot()
	snap.Chunks = store.ExportEdits(map[voxel.ChunkCoord][]store.Delta{
		coord: {{Pos: voxel.Pos{X: 2}, Voxel: voxel.Dirt}},
	})
	if _, err := w.ImportEdits(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	ds, _ := j.Deltas(coord)
	if len(ds) != 2 {
		t.Fatalf("journal deltas=%+v want both", ds)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w := newTestWorld(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for w.CurrentTick() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("run loop did not tick")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run err=%v want context.Canceled", err)
	}
}

func TestConfigFromTuning(t *testing.T) {
	cfg := ConfigFromTuning(tuning.Defaults())
	if cfg.Terrain != gen.Defaults() {
		t.Fatalf("terrain=%+v want defaults", cfg.Terrain)
	}
	if cfg.ChunkSize != 16 || cfg.Streaming.LoadRadius != 6 || !cfg.Greedy {
		t.Fatalf("cfg=%+v", cfg)
	}
	if _, err := New(WorldConfig{}); err == nil {
		t.Fatalf("zero chunk size accepted")
	}
}

func TestCloseFlushesLogs(t *testing.T) {
	w, err := New(testConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	el := &editLog{}
	w.SetEditLogger(el)
	w.SetTickLogger(&countingTickLog{})
	if err := w.FlushLogs(); err != nil || el.flushes != 1 {
		t.Fatalf("flushes=%d err=%v", el.flushes, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if el.flushes != 2 {
		t.Fatalf("close did not flush: flushes=%d", el.flushes)
	}
}
