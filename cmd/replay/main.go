package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "voxelworld.dev/internal/persistence/log"
	"voxelworld.dev/internal/persistence/snapshot"
	"voxelworld.dev/internal/sim/tuning"
	"voxelworld.dev/internal/sim/world"
	"voxelworld.dev/internal/sim/world/voxel"
)

// replay rebuilds an edit snapshot from a base snapshot plus edit logs.
func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml (must match the server's terrain)")
		snapPath   = flag.String("snapshot", "", "base snapshot (optional)")
		editsDir   = flag.String("edits", "", "dir containing edits-<world>-<tick>.jsonl.zst segments")
		outPath    = flag.String("out", "", "write the resulting snapshot here (optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop after this tick (inclusive, optional)")
	)
	flag.Parse()

	if *editsDir == "" && *snapPath == "" {
		fmt.Fprintln(os.Stderr, "need -edits and/or -snapshot")
		os.Exit(2)
	}

	tune, err := tuning.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := tune.ApplyEnv(os.LookupEnv); err != nil {
		fmt.Fprintln(os.Stderr, "config env:", err)
		os.Exit(1)
	}
	w, err := world.New(world.ConfigFromTuning(tune))
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	defer w.Close()

	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		if _, err := w.ImportEdits(snap); err != nil {
			fmt.Fprintln(os.Stderr, "import snapshot:", err)
			os.Exit(1)
		}
		// Load every edited chunk so the export below sees its deltas.
		for _, c := range snap.Chunks {
			if _, err := w.Chunks().GetOrLoad(voxel.ChunkCoord{X: c.Coord[0], Y: c.Coord[1], Z: c.Coord[2]}); err != nil {
				fmt.Fprintln(os.Stderr, "load chunk:", err)
				os.Exit(1)
			}
		}
		fmt.Printf("snapshot v%d world=%s tick=%d seed=%d chunks=%d edits=%d\n",
			snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed, len(snap.Chunks), snap.EditCount())
	}

	var applied, skipped int
	if *editsDir != "" {
		segs, err := editSegments(*editsDir, w.ID(), *toTick)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list edits:", err)
			os.Exit(1)
		}
		for _, seg := range segs {
			err := persistlog.ReadJSONL(seg.Path, func(line []byte) error {
				var e world.EditEntry
				if err := json.Unmarshal(line, &e); err != nil {
					return fmt.Errorf("%s: unmarshal: %w", filepath.Base(seg.Path), err)
				}
				if *toTick != 0 && e.Tick > *toTick {
					return nil
				}
				ok, err := applyEdit(w, e)
				if err != nil {
					return fmt.Errorf("%s: tick %d: %w", filepath.Base(seg.Path), e.Tick, err)
				}
				if ok {
					applied++
				} else {
					skipped++
				}
				return nil
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, "replay:", err)
				os.Exit(1)
			}
		}
	}

	snap := w.ExportSnapshot()
	fmt.Printf("replay ok: applied=%d unchanged=%d chunks=%d edits=%d\n", applied, skipped, len(snap.Chunks), snap.EditCount())
	if *outPath != "" {
		if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
			fmt.Fprintln(os.Stderr, "write snapshot:", err)
			os.Exit(1)
		}
	}
}

// applyEdit loads the target chunk and writes the logged voxel. It reports
// false when the voxel already held that value.
func applyEdit(w *world.World, e world.EditEntry) (bool, error) {
	pos := voxel.WorldPos{X: e.Pos[0], Y: e.Pos[1], Z: e.Pos[2]}
	coord, _ := voxel.Split(pos, w.Config().ChunkSize)
	if _, err := w.Chunks().GetOrLoad(coord); err != nil {
		return false, err
	}
	prev, err := w.Edit(pos, voxel.Voxel(e.To), "replay")
	if err != nil {
		return false, err
	}
	return prev != voxel.Voxel(e.To), nil
}

// editSegments lists the edit log segments of worldID in tick order,
// skipping segments that start after toTick (0 means no limit).
func editSegments(dir, worldID string, toTick uint64) ([]persistlog.Segment, error) {
	all, err := persistlog.ListSegments(dir, "edits")
	if err != nil {
		return nil, err
	}
	var out []persistlog.Segment
	for _, seg := range all {
		if seg.WorldID != worldID {
			continue
		}
		if toTick != 0 && seg.Start > toTick {
			break
		}
		out = append(out, seg)
	}
	return out, nil
}
