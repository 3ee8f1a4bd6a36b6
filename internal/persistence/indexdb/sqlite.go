package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelworld.dev/internal/persistence/snapshot"
	"voxelworld.dev/internal/sim/world"
	"voxelworld.dev/internal/sim/world/terrain/store"
	"voxelworld.dev/internal/sim/world/voxel"
)

var ErrClosed = errors.New("indexdb: closed")

// SQLiteIndex is the edit journal plus a secondary index of ticks, edits and
// snapshots. Chunk deltas are never dropped; index rows are dropped when the
// writer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	// mu guards sends on ch against Close.
	mu     sync.RWMutex
	ch     chan req
	wg     sync.WaitGroup
	closed bool

	asyncErr atomic.Pointer[error]

	// unsaved holds chunk saves whose transaction failed. Deltas serves them
	// and Flush retries them.
	unsavedMu sync.Mutex
	unsaved   map[voxel.ChunkCoord][]store.Delta

	dropTick     atomic.Uint64
	dropEdit     atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqChunk reqKind = iota + 1
	reqTick
	reqEdit
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	coord    voxel.ChunkCoord
	deltas   []store.Delta
	tick     world.TickLogEntry
	edit     world.EditEntry
	snapshot snapshotRow
	done     chan error
}

type snapshotRow struct {
	Tick    uint64
	Path    string
	WorldID string
	Seed    int64
	Chunks  int
	Edits   int
}

type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropEditTotal     uint64 `json:"drop_edit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:      db,
		ch:      make(chan req, 65536),
		unsaved: map[voxel.ChunkCoord][]store.Delta{},
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_edits (
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			voxel INTEGER NOT NULL,
			PRIMARY KEY (cx, cy, cz, x, y, z)
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			wanted INTEGER NOT NULL,
			in_flight INTEGER NOT NULL,
			generated INTEGER NOT NULL,
			meshed INTEGER NOT NULL,
			evicted INTEGER NOT NULL,
			failures INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			source TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			from_voxel INTEGER NOT NULL,
			to_voxel INTEGER NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_pos_tick ON edits(x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			edits INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.wg.Wait()
	s.unsavedMu.Lock()
	lost := len(s.unsaved)
	s.unsavedMu.Unlock()
	if lost > 0 {
		return errors.Join(fmt.Errorf("indexdb: %d chunk saves not written", lost), s.db.Close())
	}
	return s.db.Close()
}

// send queues r, blocking when the queue is full.
func (s *SQLiteIndex) send(r req) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.ch <- r
	return nil
}

// offer queues r unless the queue is full.
func (s *SQLiteIndex) offer(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// SaveChunk replaces the journaled deltas of coord.
func (s *SQLiteIndex) SaveChunk(coord voxel.ChunkCoord, deltas []store.Delta) error {
	if s == nil {
		return nil
	}
	cp := append([]store.Delta(nil), deltas...)
	return s.send(req{kind: reqChunk, coord: coord, deltas: cp})
}

// Flush commits everything queued so far and reports the first write error
// since the previous Flush.
func (s *SQLiteIndex) Flush() error {
	done := make(chan error, 1)
	if err := s.send(req{kind: reqFlush, done: done}); err != nil {
		return err
	}
	return <-done
}

// Deltas returns the journaled edits of coord, including saves still queued.
func (s *SQLiteIndex) Deltas(coord voxel.ChunkCoord) ([]store.Delta, error) {
	flushErr := s.Flush()
	s.unsavedMu.Lock()
	ds, ok := s.unsaved[coord]
	s.unsavedMu.Unlock()
	if ok {
		return append([]store.Delta(nil), ds...), nil
	}
	if flushErr != nil {
		return nil, flushErr
	}
	rows, err := s.db.Query(
		`SELECT x, y, z, voxel FROM chunk_edits WHERE cx=? AND cy=? AND cz=? ORDER BY z, y, x`,
		coord.X, coord.Y, coord.Z,
	)
	if err != nil {
		return nil, fmt.Errorf("deltas %v: %w", coord, err)
	}
	defer rows.Close()
	var out []store.Delta
	for rows.Next() {
		var d store.Delta
		var v int64
		if err := rows.Scan(&d.Pos.X, &d.Pos.Y, &d.Pos.Z, &v); err != nil {
			return nil, fmt.Errorf("deltas %v: %w", coord, err)
		}
		d.Voxel = voxel.Voxel(v)
		out = append(out, d)
	}
	return out, rows.Err()
}

// EditedChunks lists every chunk with journaled deltas.
func (s *SQLiteIndex) EditedChunks() ([]voxel.ChunkCoord, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT DISTINCT cx, cy, cz FROM chunk_edits ORDER BY cx, cy, cz`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []voxel.ChunkCoord
	for rows.Next() {
		var c voxel.ChunkCoord
		if err := rows.Scan(&c.X, &c.Y, &c.Z); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil {
		return nil
	}
	if !s.offer(req{kind: reqTick, tick: entry}) {
		// JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteEdit(entry world.EditEntry) error {
	if s == nil {
		return nil
	}
	if !s.offer(req{kind: reqEdit, edit: entry}) {
		s.dropEdit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		WorldID: snap.Header.WorldID,
		Seed:    snap.Seed,
		Chunks:  len(snap.Chunks),
		Edits:   snap.EditCount(),
	}
	if !s.offer(req{kind: reqSnapshot, snapshot: r}) {
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) Stats() QueueStats {
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropEditTotal:     s.dropEdit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) fail(err error) {
	s.asyncErr.CompareAndSwap(nil, &err)
}

func (s *SQLiteIndex) takeErr() error {
	if p := s.asyncErr.Swap(nil); p != nil {
		return *p
	}
	return nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastEditTick uint64
		editSeq      int
	)

	begin := func() error {
		if tx != nil {
			return nil
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
		return nil
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.fail(err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.fail(err)
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		switch r.kind {
		case reqFlush:
			commit()
			s.retryUnsaved(ctx)
			r.done <- s.takeErr()
			continue
		case reqChunk:
			// Journal writes get their own transaction; a failing index row
			// must not take queued edits down with it.
			commit()
			s.writeChunk(ctx, r.coord, r.deltas)
			continue
		}
		if err := begin(); err != nil {
			s.fail(err)
			continue
		}
		switch r.kind {
		case reqTick:
			st := r.tick.Stats
			raw, _ := json.Marshal(r.tick)
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO ticks(tick,wanted,in_flight,generated,meshed,evicted,failures,raw_json) VALUES(?,?,?,?,?,?,?,?)`,
				int64(st.Tick), st.Wanted, st.InFlight, st.Generated, st.Meshed, st.Evicted, st.Failures, string(raw),
			); err != nil {
				rollback(err)
				continue
			}
			opCount++

		case reqEdit:
			e := r.edit
			if e.Tick != lastEditTick {
				lastEditTick = e.Tick
				editSeq = 0
			}
			seq := editSeq
			editSeq++
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO edits(tick,seq,source,x,y,z,from_voxel,to_voxel) VALUES(?,?,?,?,?,?,?,?)`,
				int64(e.Tick), seq, e.Source, e.Pos[0], e.Pos[1], e.Pos[2], int64(e.From), int64(e.To),
			); err != nil {
				rollback(err)
				continue
			}
			opCount++

		case reqSnapshot:
			sn := r.snapshot
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO snapshots(tick,path,world_id,seed,chunks,edits) VALUES(?,?,?,?,?,?)`,
				int64(sn.Tick), sn.Path, sn.WorldID, sn.Seed, sn.Chunks, sn.Edits,
			); err != nil {
				rollback(err)
				continue
			}
			opCount++
		}
		// Committing when idle releases the single connection for readers.
		if tx != nil && (len(s.ch) == 0 || opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
	s.retryUnsaved(ctx)
}

func (s *SQLiteIndex) writeChunk(ctx context.Context, coord voxel.ChunkCoord, deltas []store.Delta) {
	err := s.saveChunkTx(ctx, coord, deltas)
	s.unsavedMu.Lock()
	defer s.unsavedMu.Unlock()
	if err != nil {
		s.fail(fmt.Errorf("save chunk %v: %w", coord, err))
		s.unsaved[coord] = deltas
		return
	}
	delete(s.unsaved, coord)
}

func (s *SQLiteIndex) retryUnsaved(ctx context.Context) {
	s.unsavedMu.Lock()
	pending := make(map[voxel.ChunkCoord][]store.Delta, len(s.unsaved))
	for k, v := range s.unsaved {
		pending[k] = v
	}
	s.unsavedMu.Unlock()
	for k, v := range pending {
		s.writeChunk(ctx, k, v)
	}
}

func (s *SQLiteIndex) saveChunkTx(ctx context.Context, c voxel.ChunkCoord, deltas []store.Delta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_edits WHERE cx=? AND cy=? AND cz=?`, c.X, c.Y, c.Z); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, d := range deltas {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chunk_edits(cx,cy,cz,x,y,z,voxel) VALUES(?,?,?,?,?,?,?)`,
			c.X, c.Y, c.Z, d.Pos.X, d.Pos.Y, d.Pos.Z, int64(d.Voxel),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
