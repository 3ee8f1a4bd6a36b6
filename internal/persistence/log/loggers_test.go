package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"voxelworld.dev/internal/sim/world"
	"voxelworld.dev/internal/sim/world/stream"
)

func readTicks(t *testing.T, path string) []world.TickLogEntry {
	t.Helper()
	var got []world.TickLogEntry
	err := ReadJSONL(path, func(line []byte) error {
		var e world.TickLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return got
}

func TestTickLoggerRotatesByTickWindow(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir, "w-1", 4)
	for i := uint64(1); i <= 9; i++ {
		if err := l.WriteTick(world.TickLogEntry{WorldID: "w-1", Stats: stream.Stats{Tick: i, Meshed: int(i)}}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	segs, err := ListSegments(filepath.Join(dir, "ticks"), "ticks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("segments=%+v want 3", segs)
	}
	for i, want := range []uint64{0, 4, 8} {
		if segs[i].Start != want || segs[i].WorldID != "w-1" {
			t.Fatalf("segment %d=%+v", i, segs[i])
		}
	}
	first := readTicks(t, segs[0].Path)
	if len(first) != 3 || first[0].Stats.Tick != 1 || first[2].Stats.Meshed != 3 {
		t.Fatalf("first segment=%+v", first)
	}
	if last := readTicks(t, segs[2].Path); len(last) != 2 || last[1].Stats.Tick != 9 {
		t.Fatalf("last segment=%+v", last)
	}
}

func TestFlushMakesLinesDurable(t *testing.T) {
	dir := t.TempDir()
	l := NewEditLogger(dir, "w", 0)
	if err := l.WriteEdit(world.EditEntry{Tick: 9, Pos: [3]int{1, -2, 3}, From: 1, To: 0, Source: "test"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	path := l.w.Path(0)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	before := info.Size()
	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if info, _ = os.Stat(path); info.Size() <= before {
		t.Fatalf("flush wrote nothing: %d -> %d bytes", before, info.Size())
	}
	_ = l.Close()

	n := 0
	_ = ReadJSONL(path, func(line []byte) error {
		var e world.EditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if e.Pos != [3]int{1, -2, 3} || e.Source != "test" {
			t.Fatalf("entry=%+v", e)
		}
		n++
		return nil
	})
	if n != 1 {
		t.Fatalf("lines=%d", n)
	}
}

func TestReopenAppendsFrame(t *testing.T) {
	dir := t.TempDir()
	for i := uint64(1); i <= 2; i++ {
		l := NewTickLogger(dir, "w", 100)
		_ = l.WriteTick(world.TickLogEntry{Stats: stream.Stats{Tick: i}})
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	segs, _ := ListSegments(filepath.Join(dir, "ticks"), "ticks")
	if len(segs) != 1 {
		t.Fatalf("segments=%+v", segs)
	}
	if got := readTicks(t, segs[0].Path); len(got) != 2 || got[1].Stats.Tick != 2 {
		t.Fatalf("entries=%+v", got)
	}
}

func TestListSegmentsSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"edits-a-000000000010.jsonl.zst", "edits-a-000000000002.jsonl.zst", "edits-a-x.jsonl.zst", "ticks-a-000000000000.jsonl.zst", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	segs, err := ListSegments(dir, "edits")
	if err != nil || len(segs) != 2 || segs[0].Start != 2 || segs[1].Start != 10 {
		t.Fatalf("segments=%+v err=%v", segs, err)
	}
}
