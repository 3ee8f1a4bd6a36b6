package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEdits []EditRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.inbox:
			pendingEdits = append(pendingEdits, req)
		case <-ticker.C:
			w.stepInternal(pendingEdits)
			pendingEdits = pendingEdits[:0]
		}
	}
}

// Step runs one tick outside Run, applying whatever edits are queued.
func (w *World) Step() {
	var pending []EditRequest
	for {
		select {
		case req := <-w.inbox:
			pending = append(pending, req)
		default:
			w.stepInternal(pending)
			return
		}
	}
}

func (w *World) stepInternal(edits []EditRequest) {
	w.tick.Add(1)
	for _, req := range edits {
		prev, err := w.Edit(req.Pos, req.Voxel, req.Source)
		if req.Resp != nil {
			select {
			case req.Resp <- EditResult{Prev: prev, Err: err}:
			default:
			}
		}
	}
	stats := w.streamer.Step()
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(TickLogEntry{WorldID: w.cfg.ID, Stats: stats}); err != nil {
			w.log.Printf("tick log: %v", err)
		}
	}
}
