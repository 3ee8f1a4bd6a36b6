package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"voxelworld.dev/internal/sim/world"
)

// DefaultTickWindow is one hour at 20 Hz.
const DefaultTickWindow = 72000

const segmentExt = ".jsonl.zst"

// SegmentWriter appends JSON lines to zstd files that each cover one window
// of ticks: <kind>-<world>-<first tick>.jsonl.zst. Lines are buffered until
// Flush, a rotation or Close.
type SegmentWriter struct {
	dir     string
	kind    string
	worldID string
	window  uint64

	mu    sync.Mutex
	start uint64
	f     *os.File
	enc   *zstd.Encoder
	buf   *bufio.Writer
}

func NewSegmentWriter(dir, kind, worldID string, window uint64) *SegmentWriter {
	if window == 0 {
		window = DefaultTickWindow
	}
	return &SegmentWriter{dir: dir, kind: kind, worldID: worldID, window: window}
}

// Append writes v to the segment holding tick.
func (w *SegmentWriter) Append(tick uint64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	start := tick - tick%w.window
	if w.f == nil || start != w.start {
		if err := w.openLocked(start); err != nil {
			return err
		}
	}
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

// Flush pushes buffered lines into the open segment's zstd stream.
func (w *SegmentWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *SegmentWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Path names the segment starting at tick start.
func (w *SegmentWriter) Path(start uint64) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s-%012d%s", w.kind, w.worldID, start, segmentExt))
}

func (w *SegmentWriter) openLocked(start uint64) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	// Appending after a restart adds a new zstd frame; readers decode
	// concatenated frames.
	f, err := os.OpenFile(w.Path(start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc, w.buf = f, enc, bufio.NewWriterSize(enc, 64*1024)
	w.start = start
	return nil
}

func (w *SegmentWriter) closeLocked() error {
	if w.f == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f, w.enc, w.buf = nil, nil, nil
	return err
}

// TickLogger writes one streaming stats entry per tick.
type TickLogger struct{ w *SegmentWriter }

func NewTickLogger(dir, worldID string, window uint64) *TickLogger {
	return &TickLogger{w: NewSegmentWriter(filepath.Join(dir, "ticks"), "ticks", worldID, window)}
}

func (l *TickLogger) WriteTick(v world.TickLogEntry) error { return l.w.Append(v.Stats.Tick, v) }
func (l *TickLogger) Flush() error                         { return l.w.Flush() }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// EditLogger records applied voxel edits; cmd/replay reads them back.
type EditLogger struct{ w *SegmentWriter }

func NewEditLogger(dir, worldID string, window uint64) *EditLogger {
	return &EditLogger{w: NewSegmentWriter(filepath.Join(dir, "edits"), "edits", worldID, window)}
}

func (l *EditLogger) WriteEdit(v world.EditEntry) error { return l.w.Append(v.Tick, v) }
func (l *EditLogger) Flush() error                      { return l.w.Flush() }
func (l *EditLogger) Close() error                      { return l.w.Close() }

type Segment struct {
	Path    string
	WorldID string
	Start   uint64
}

// ListSegments finds the segments of kind in dir, ordered by world then
// first tick. Files that do not follow the naming scheme are skipped.
func ListSegments(dir, kind string) ([]Segment, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Segment
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, kind+"-") || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		// World ids may contain dashes; the tick is the last field.
		rest := strings.TrimSuffix(strings.TrimPrefix(name, kind+"-"), segmentExt)
		i := strings.LastIndexByte(rest, '-')
		if i < 0 {
			continue
		}
		start, err := strconv.ParseUint(rest[i+1:], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Segment{Path: filepath.Join(dir, name), WorldID: rest[:i], Start: start})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorldID != out[j].WorldID {
			return out[i].WorldID < out[j].WorldID
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

// ReadJSONL decodes every line of a .jsonl.zst file with fn.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
