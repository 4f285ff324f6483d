package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "stationidle.ai/internal/persistence/log"
	"stationidle.ai/internal/persistence/snapshot"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/station"
	"stationidle.ai/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (empty: replay from a fresh station)")
		ticksDir   = flag.String("ticks", "", "ticks dir containing ticks-*.jsonl.zst (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml for fresh replays (default: <configs>/tuning.yaml)")
		stationID  = flag.String("station", "station_1", "station id for fresh replays")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	var st *station.Station
	var skip int
	if *snapPath == "" {
		if *ticksDir == "" {
			fmt.Fprintln(os.Stderr, "missing -snapshot or -ticks")
			os.Exit(2)
		}
		st, err = station.New(station.ConfigFromTuning(*stationID, tune), cats, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "station:", err)
			os.Exit(1)
		}
		fmt.Printf("fresh station=%s\n", *stationID)
	} else {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d station=%s tick=%d run=%s reason=%s days=%.2f total_days=%.2f operations=%d battles=%d rebirths=%d/%d\n",
			snap.Header.Version, snap.Header.StationID, snap.Header.Tick, snap.Header.RunID, snap.Header.Reason,
			snap.Days, snap.TotalDays, len(snap.Operations), len(snap.Battles), snap.RebirthOneCount, snap.RebirthTwoCount)
		if *ticksDir == "" {
			return
		}
		skip = snap.Header.AppliedCmds
		st, err = fromSnapshot(snap, tune, cats)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	files, err := persistlog.ListFiles(*ticksDir, "ticks")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", *ticksDir)
		os.Exit(1)
	}

	start := st.CurrentTick()
	checked, err := replay(st, files, skip, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from tick=%d) digest=%s\n", checked, start, st.StateDigest())
}

// fromSnapshot builds a station from snap with the clock settings it was
// written under.
func fromSnapshot(snap snapshot.SnapshotV1, tune tuning.Tuning, cats *catalogs.Catalogs) (*station.Station, error) {
	id := snap.Header.StationID
	cfg := station.ConfigFromTuning(id, tune)
	if snap.TickRateHz > 0 {
		cfg.TickRateHz = snap.TickRateHz
	}
	st, err := station.New(cfg, cats, nil)
	if err != nil {
		return nil, fmt.Errorf("station: %w", err)
	}
	warnings, err := st.ImportSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "snapshot repair:", w)
	}
	return st, nil
}

// replay re-applies the recorded commands of each tick entry and steps the
// station, comparing digests from verifyFrom on. The first skip commands of
// the starting tick's entry are already part of the imported state.
func replay(st *station.Station, files []string, skip int, verifyFrom, toTick uint64) (checked uint64, err error) {
	startTick := st.CurrentTick()
	if verifyFrom < startTick {
		verifyFrom = startTick
	}
	for _, path := range files {
		entries, err := persistlog.ReadTickEntries(path)
		if err != nil {
			return checked, err
		}
		for _, entry := range entries {
			if entry.Tick < startTick {
				continue
			}
			if toTick != 0 && entry.Tick > toTick {
				return checked, nil
			}
			if entry.Tick != st.CurrentTick() {
				return checked, fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", st.CurrentTick(), entry.Tick, filepath.Base(path))
			}

			cmds := entry.Commands
			if entry.Tick == startTick && skip > 0 {
				if skip > len(cmds) {
					return checked, fmt.Errorf("snapshot includes %d commands but tick %d logged %d", skip, entry.Tick, len(cmds))
				}
				cmds = cmds[skip:]
			}
			for i, rc := range cmds {
				res := st.Apply(rc.Command)
				if res.Accepted != rc.Accepted || res.Code != rc.Code {
					return checked, fmt.Errorf("command %d at tick %d (%s %s): accepted=%v code=%q, recorded accepted=%v code=%q",
						i, entry.Tick, rc.Command.Cmd, rc.Command.Target, res.Accepted, res.Code, rc.Accepted, rc.Code)
				}
			}

			tick, gotDigest := st.StepOnce()
			// Sanity check: StepOnce should have stepped the same tick.
			if tick != entry.Tick {
				return checked, fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, filepath.Base(path))
			}

			if tick >= verifyFrom {
				checked++
				if gotDigest != entry.Digest {
					return checked, fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
				}
			}
		}
	}
	return checked, nil
}
