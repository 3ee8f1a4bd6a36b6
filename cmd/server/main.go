package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"voxelworld.dev/internal/persistence/indexdb"
	persistlog "voxelworld.dev/internal/persistence/log"
	"voxelworld.dev/internal/sim/tuning"
	"voxelworld.dev/internal/sim/world"
	"voxelworld.dev/internal/transport/observer"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configPath  = flag.String("config", "", "path to config.yaml (empty: built-in defaults)")
		envPath     = flag.String("env", ".env", "dotenv file with VOXEL_* overrides (ignored if missing)")
		snapPath    = flag.String("snapshot", "", "edit snapshot to import at startup (optional)")
		loadLatest  = flag.Bool("load_latest_snapshot", false, "import the newest snapshot in persistence.snapshot_dir when -snapshot is empty")
		allowRemote = flag.Bool("allow_remote", false, "accept observer connections from non-loopback addresses")
		editRate    = flag.Float64("edit_rate", 20, "observer edits per second per connection")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Fatalf("load env %s: %v", *envPath, err)
	}
	tune, err := tuning.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := tune.ApplyEnv(os.LookupEnv); err != nil {
		logger.Fatalf("config env: %v", err)
	}

	var opts []world.Option
	opts = append(opts, world.WithLogger(log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds)))

	// Optional edit journal; without it edits are lost when chunks unload.
	var idx *indexdb.SQLiteIndex
	if p := strings.TrimSpace(tune.Persistence.JournalPath); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			logger.Fatalf("journal dir: %v", err)
		}
		idx, err = indexdb.OpenSQLite(p)
		if err != nil {
			logger.Fatalf("open journal: %v", err)
		}
		defer idx.Close()
		opts = append(opts, world.WithJournal(idx))
		logger.Printf("edit journal=%s save_on_evict=%v", p, tune.Persistence.SaveOnEvict)
	}

	w, err := world.New(world.ConfigFromTuning(tune), opts...)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(tune.Persistence.SnapshotDir)
	}
	if snapshotToLoad != "" {
		n, err := w.ImportSnapshotFile(snapshotToLoad)
		if err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("imported snapshot=%s edits=%d", filepath.Base(snapshotToLoad), n)
	}

	var tickSinks tickFanout
	var editSinks editFanout
	if dir := strings.TrimSpace(tune.Persistence.TickLogDir); dir != "" {
		window := tune.Persistence.LogTickWindow
		tickLog := persistlog.NewTickLogger(dir, w.ID(), window)
		editLog := persistlog.NewEditLogger(dir, w.ID(), window)
		defer tickLog.Close()
		defer editLog.Close()
		tickSinks = append(tickSinks, tickLog)
		editSinks = append(editSinks, editLog)
	}
	if idx != nil {
		tickSinks = append(tickSinks, idx)
		editSinks = append(editSinks, idx)
	}
	if len(tickSinks) > 0 {
		w.SetTickLogger(tickSinks)
		w.SetEditLogger(editSinks)
	}

	ctx, cancel := signalContext()
	defer cancel()

	obsLogger := log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds)
	obs := observer.NewServer(w, obsLogger, observer.Options{
		AllowRemote: *allowRemote,
		EditRate:    *editRate,
	})

	snapDir := strings.TrimSpace(tune.Persistence.SnapshotDir)
	mux := http.NewServeMux()
	obs.Routes(mux)
	routes(mux, w, idx, func() (string, error) { return writeSnapshot(w, idx, snapDir) })

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("world: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Printf("listening on %s world=%s chunk_size=%d seed=%d", *addr, w.ID(), tune.World.ChunkSize, tune.Terrain.Seed)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil {
		logger.Printf("stopped: %v", err)
	}

	// Snapshot before Close so edits of resident chunks are included.
	if snapDir != "" {
		if path, err := writeSnapshot(w, idx, snapDir); err != nil {
			logger.Printf("shutdown snapshot: %v", err)
		} else {
			logger.Printf("wrote snapshot %s", path)
		}
	}
	if err := w.Close(); err != nil {
		logger.Printf("close world: %v", err)
	}
	logger.Printf("bye at tick %d", w.CurrentTick())
}

func writeSnapshot(w *world.World, idx *indexdb.SQLiteIndex, dir string) (string, error) {
	if dir == "" {
		return "", errors.New("persistence.snapshot_dir not configured")
	}
	// Logs up to the snapshot tick must be readable next to it.
	if err := w.FlushLogs(); err != nil {
		return "", fmt.Errorf("flush logs: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.snap.zst", w.CurrentTick()))
	snap, err := w.WriteSnapshot(path)
	if err != nil {
		return "", err
	}
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}
	return path, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(dir string) string {
	if dir == "" {
		return ""
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

type tickFanout []world.TickLogger

func (f tickFanout) WriteTick(entry world.TickLogEntry) error {
	var first error
	for _, l := range f {
		if err := l.WriteTick(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f tickFanout) Flush() error {
	var first error
	for _, l := range f {
		if fl, ok := l.(interface{ Flush() error }); ok {
			if err := fl.Flush(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

type editFanout []world.EditLogger

func (f editFanout) WriteEdit(entry world.EditEntry) error {
	var first error
	for _, l := range f {
		if err := l.WriteEdit(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f editFanout) Flush() error {
	var first error
	for _, l := range f {
		if fl, ok := l.(interface{ Flush() error }); ok {
			if err := fl.Flush(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
