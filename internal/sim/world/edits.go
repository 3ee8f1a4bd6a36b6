package world

import (
	"fmt"

	"voxelworld.dev/internal/sim/world/voxel"
)

// Edit writes one voxel of a resident chunk right away. Meshes catch up over
// the following ticks.
func (w *World) Edit(pos voxel.WorldPos, v voxel.Voxel, source string) (voxel.Voxel, error) {
	if !v.Valid() {
		return voxel.Air, fmt.Errorf("world: unknown voxel id %d", v)
	}
	prev, err := w.chunks.SetVoxel(pos, v)
	if err != nil {
		return prev, err
	}
	if prev != v && w.editLogger != nil {
		e := EditEntry{
			Tick:   w.tick.Load(),
			Pos:    [3]int{pos.X, pos.Y, pos.Z},
			From:   uint16(prev),
			To:     uint16(v),
			Source: source,
		}
		if err := w.editLogger.WriteEdit(e); err != nil {
			w.log.Printf("edit log: %v", err)
		}
	}
	return prev, nil
}

// SubmitEdit queues an edit for the next tick. It never blocks.
func (w *World) SubmitEdit(req EditRequest) error {
	select {
	case w.inbox <- req:
		return nil
	default:
		return ErrBusy
	}
}

// SaveEdits writes the edits of every resident chunk to the journal and
// reports how many chunks were written.
func (w *World) SaveEdits() (int, error) {
	if w.journal == nil {
		return 0, ErrNoJournal
	}
	n := 0
	for coord, ds := range w.chunks.Edits() {
		if err := w.journal.SaveChunk(coord, ds); err != nil {
			return n, fmt.Errorf("save chunk %v: %w", coord, err)
		}
		n++
	}
	if f, ok := w.journal.(flusher); ok {
		if err := f.Flush(); err != nil {
			return n, err
		}
	}
	return n, w.FlushLogs()
}

type flusher interface{ Flush() error }

// FlushLogs pushes buffered tick and edit log lines to disk, for loggers
// that buffer.
func (w *World) FlushLogs() error {
	var first error
	for _, l := range []any{w.tickLogger, w.editLogger} {
		if f, ok := l.(flusher); ok {
			if err := f.Flush(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
