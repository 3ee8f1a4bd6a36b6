package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"voxelworld.dev/internal/persistence/indexdb"
	"voxelworld.dev/internal/sim/world"
)

func routes(mux *http.ServeMux, w *world.World, idx *indexdb.SQLiteIndex, snapshotFn func() (string, error)) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, idx))

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := struct {
			WorldID string       `json:"world_id"`
			Tick    uint64       `json:"tick"`
			Params  world.Params `json:"params"`
			Meshes  int          `json:"meshes"`
			Chunks  int          `json:"chunks"`
			Stats   any          `json:"stats"`
			Journal any          `json:"journal,omitempty"`
		}{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			Params:  w.Params(),
			Meshes:  w.Meshes().Len(),
			Chunks:  w.Chunks().Len(),
			Stats:   w.Stats(),
		}
		if idx != nil {
			resp.Journal = idx.Stats()
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		path, err := snapshotFn()
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path, "tick": w.CurrentTick()})
	})
	mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		n, err := w.SaveEdits()
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "chunks": n})
	})
}

func metricsHandler(w *world.World, idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		id := w.ID()
		s := w.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxelworld_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_tick gauge\n")
		fmt.Fprintf(rw, "voxelworld_tick{world=%q} %d\n", id, w.CurrentTick())

		fmt.Fprintf(rw, "# HELP voxelworld_chunks Tracked chunks by streaming state.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_chunks gauge\n")
		fmt.Fprintf(rw, "voxelworld_chunks{world=%q,state=%q} %d\n", id, "loading", s.Loading)
		fmt.Fprintf(rw, "voxelworld_chunks{world=%q,state=%q} %d\n", id, "clean", s.Clean)
		fmt.Fprintf(rw, "voxelworld_chunks{world=%q,state=%q} %d\n", id, "dirty", s.Dirty)
		fmt.Fprintf(rw, "voxelworld_chunks{world=%q,state=%q} %d\n", id, "evicting", s.Evicting)

		fmt.Fprintf(rw, "# HELP voxelworld_meshes Cached chunk meshes.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_meshes gauge\n")
		fmt.Fprintf(rw, "voxelworld_meshes{world=%q} %d\n", id, w.Meshes().Len())

		fmt.Fprintf(rw, "# HELP voxelworld_in_flight Generation and meshing tasks on the pool.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_in_flight gauge\n")
		fmt.Fprintf(rw, "voxelworld_in_flight{world=%q} %d\n", id, s.InFlight)

		fmt.Fprintf(rw, "# HELP voxelworld_tasks_total Finished streaming tasks.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_tasks_total counter\n")
		fmt.Fprintf(rw, "voxelworld_tasks_total{world=%q,kind=%q} %d\n", id, "generate", s.TotalGenerated)
		fmt.Fprintf(rw, "voxelworld_tasks_total{world=%q,kind=%q} %d\n", id, "mesh", s.TotalMeshed)
		fmt.Fprintf(rw, "voxelworld_tasks_total{world=%q,kind=%q} %d\n", id, "evict", s.TotalEvicted)
		fmt.Fprintf(rw, "voxelworld_tasks_total{world=%q,kind=%q} %d\n", id, "failure", s.TotalFailures)

		if idx == nil {
			return
		}
		q := idx.Stats()
		fmt.Fprintf(rw, "# HELP voxelworld_journal_queue_depth Pending journal writes.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_journal_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelworld_journal_queue_depth %d\n", q.QueueDepth)
		fmt.Fprintf(rw, "# HELP voxelworld_journal_dropped_total Journal rows dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE voxelworld_journal_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelworld_journal_dropped_total{kind=%q} %d\n", "tick", q.DropTickTotal)
		fmt.Fprintf(rw, "voxelworld_journal_dropped_total{kind=%q} %d\n", "edit", q.DropEditTotal)
		fmt.Fprintf(rw, "voxelworld_journal_dropped_total{kind=%q} %d\n", "snapshot", q.DropSnapshotTotal)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
