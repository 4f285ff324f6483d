package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"stationidle.ai/internal/persistence/archive"
	"stationidle.ai/internal/persistence/snapshot"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/tuning"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "force-boss":
			forceBossCmd(os.Args[2:])
			return
		case "validate":
			validateCmd(os.Args[2:])
			return
		case "runs":
			runsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "cmd":
			commandCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type snapshotFile struct {
	Path    string
	Tick    uint64
	Size    int64
	ModTime time.Time
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	stationID := fs.String("station", "", "station id (optional; lists its snapshots)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "stations")
	if *stationID == "" {
		entries, err := os.ReadDir(base)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			snaps := listSnapshots(filepath.Join(base, e.Name()))
			if len(snaps) == 0 {
				fmt.Printf("%s\tno snapshots\n", e.Name())
				continue
			}
			last := snaps[len(snaps)-1]
			fmt.Printf("%s\tsnapshots=%d latest_tick=%d updated %s\n", e.Name(), len(snaps), last.Tick, humanize.Time(last.ModTime))
		}
		return
	}

	for _, s := range listSnapshots(filepath.Join(base, *stationID)) {
		h, err := snapshot.ReadHeader(s.Path)
		if err != nil {
			fmt.Printf("%d\t%s\t%s\tunreadable: %v\n", s.Tick, humanize.Bytes(uint64(s.Size)), humanize.Time(s.ModTime), err)
			continue
		}
		fmt.Printf("%d\t%s\t%s\treason=%s run=%s\n", s.Tick, humanize.Bytes(uint64(s.Size)), humanize.Time(s.ModTime), h.Reason, h.RunID)
	}
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	stationID := fs.String("station", "", "station id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*stationID) == "" {
		fmt.Fprintln(os.Stderr, "missing -station")
		os.Exit(2)
	}
	dir := filepath.Join(*dataDir, "stations", *stationID, "archives")
	ents, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "run_") {
			continue
		}
		meta, err := archive.ReadRunMeta(filepath.Join(dir, e.Name()))
		if err != nil {
			fmt.Fprintln(os.Stderr, "meta:", err)
			continue
		}
		ended := meta.CreatedAt
		if t, err := time.Parse(time.RFC3339Nano, meta.CreatedAt); err == nil {
			ended = humanize.Time(t)
		}
		fmt.Printf("run %d\tend_tick=%d days=%s total_days=%s rebirths=%d/%d ended %s\n",
			meta.Run, meta.EndTick, humanize.Ftoa(meta.Days), humanize.Ftoa(meta.TotalDays), meta.RebirthOne, meta.RebirthTwo, ended)
	}
}

func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configDir := fs.String("configs", "./configs", "config directory")
	schemaDir := fs.String("schemas", "./schemas", "schema directory")
	_ = fs.Parse(args)

	errs := catalogs.ValidateDir(*configDir, *schemaDir)
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e.Error())
	}
	if len(errs) > 0 {
		os.Exit(1)
	}
	if _, err := catalogs.Load(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	if _, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml")); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}
	fmt.Println("configs ok")
}

// forceBossCmd edits a snapshot offline so the boss appears on the next
// run of the server.
func forceBossCmd(args []string) {
	fs := flag.NewFlagSet("force-boss", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	stationID := fs.String("station", "", "station id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	configDir := fs.String("configs", "./configs", "config directory (for tuning.yaml)")
	resume := fs.Bool("resume", false, "unpause the clock")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*stationID) == "" {
		fmt.Fprintln(os.Stderr, "missing -station")
		os.Exit(2)
	}
	stationDir := filepath.Join(*dataDir, "stations", *stationID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		if snaps := listSnapshots(stationDir); len(snaps) > 0 {
			snapshotToLoad = snaps[len(snaps)-1].Path
		}
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	if err := forceBoss(&snap, tune.Boss.AppearanceCycle, *resume); err != nil {
		fmt.Fprintln(os.Stderr, "force boss:", err)
		os.Exit(2)
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(stationDir, "snapshots", fmt.Sprintf("%d.forceboss.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("force-boss ok: snapshot=%s tick=%d days=%s paused=%v out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, humanize.Ftoa(snap.Days), snap.Paused, *outPath)
}

// forceBoss rewinds the boss to its pre-appearance state and moves the
// clock one day before appearanceDay.
func forceBoss(snap *snapshot.SnapshotV1, appearanceDay float64, resume bool) error {
	if snap.Boss == nil {
		return fmt.Errorf("snapshot has no boss")
	}
	snap.Boss.Layer = 0
	snap.Boss.Xp = 0
	snap.Boss.Resolved = false
	snap.Boss.Available = false
	snap.Boss.Active = false
	snap.BossDefeated = false
	snap.Days = appearanceDay - 1
	if snap.Days < 0 {
		snap.Days = 0
	}
	if resume {
		snap.Paused = false
	}
	snap.Header.Reason = "admin"
	return nil
}

// listSnapshots returns <tick>.snap.zst files sorted by tick.
func listSnapshots(stationDir string) []snapshotFile {
	dir := filepath.Join(stationDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []snapshotFile
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
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, snapshotFile{Path: filepath.Join(dir, name), Tick: tick, Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out
}
