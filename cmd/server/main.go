package main

import (
	"context"
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

	"stationidle.ai/internal/persistence/archive"
	persistlog "stationidle.ai/internal/persistence/log"
	"stationidle.ai/internal/persistence/mirror"
	"stationidle.ai/internal/persistence/snapshot"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/station"
	"stationidle.ai/internal/sim/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		stationID  = flag.String("station", "station_1", "station id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks/events + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	envCfg, err := loadServerEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	stationDir := filepath.Join(*dataDir, "stations", *stationID)
	_ = os.MkdirAll(stationDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(stationDir)
	}

	// Tuning is required for a fresh station; resumes carry their own clock settings.
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(stationDir, envCfg.IndexBackend, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	var mir *mirror.Mirror
	if envCfg.Mirror.enabled() {
		mc := envCfg.Mirror
		client, err := mirror.NewClient(mirror.ClientConfig{
			Endpoint:        mc.Endpoint,
			Bucket:          mc.Bucket,
			Region:          mc.Region,
			AccessKeyID:     mc.AccessKeyID,
			SecretAccessKey: mc.SecretAccessKey,
		})
		if err != nil {
			logger.Fatalf("init mirror: %v", err)
		}
		mir = mirror.New(client, *dataDir, mirror.Options{Prefix: mc.Prefix, Workers: mc.Workers, Queue: mc.Queue}, logger)
		defer mir.Close()
		logger.Printf("mirror enabled bucket=%s prefix=%q logs=%v", mc.Bucket, mc.Prefix, mc.Logs)
	}

	cfg := station.ConfigFromTuning(*stationID, tune)
	var resume *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.StationID != "" && snap.Header.StationID != *stationID {
			logger.Fatalf("snapshot station id mismatch: flag=%s snap=%s", *stationID, snap.Header.StationID)
		}
		if snap.TickRateHz > 0 {
			cfg.TickRateHz = snap.TickRateHz
		}
		resume = &snap
	}

	st, err := station.New(cfg, cats, logger)
	if err != nil {
		logger.Fatalf("station: %v", err)
	}
	if resume != nil {
		warnings, err := st.ImportSnapshot(*resume)
		if err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		for _, w := range warnings {
			logger.Printf("snapshot repair: %s", w)
		}
		logger.Printf("resumed from snapshot=%s tick=%d run=%s", filepath.Base(snapshotToLoad), st.CurrentTick(), st.RunID())
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(stationDir)
	eventLog := persistlog.NewEventLogger(stationDir)
	defer tickLog.Close()
	defer eventLog.Close()
	if mir != nil && envCfg.Mirror.Logs {
		tickLog.SetOnClose(mir.Enqueue)
		eventLog.SetOnClose(mir.Enqueue)
	}
	st.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	st.SetEventLogger(multiEventLogger{a: eventLog, b: idx})

	persist := func(snap snapshot.SnapshotV1) {
		if err := persistSnapshot(stationDir, idx, mir, snap); err != nil {
			logger.Printf("snapshot %s: %v", snap.Header.Reason, err)
		}
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, envCfg.SnapshotQueue)
	st.SetSnapshotSink(snapCh)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				// Flush whatever the loop already handed over.
				for {
					select {
					case snap := <-snapCh:
						persist(snap)
					default:
						return
					}
				}
			case snap := <-snapCh:
				persist(snap)
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := st.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("station stopped: %v", err)
		}
	}()

	if !envCfg.EnablePprofHTTP {
		logger.Printf("pprof endpoints disabled (STATIONIDLE_ENABLE_PPROF_HTTP=false)")
	}
	srv := &http.Server{
		Addr: *addr,
		Handler: buildMux(httpDeps{
			Station:     st,
			Index:       idx,
			Mirror:      mir,
			EnableAdmin: envCfg.adminHTTPEnabled(),
			EnablePprof: envCfg.EnablePprofHTTP,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (station=%s env=%s)", *addr, *stationID, envCfg.DeployEnv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	<-runDone
	<-writerDone
	// The loop has exited so the station is safe to read from this goroutine.
	final := st.ExportSnapshot(station.ReasonShutdown)
	persist(final)
	logger.Printf("shutdown snapshot tick=%d", final.Header.Tick)
}

// persistSnapshot writes snap under stationDir, records it in the index and
// archives the finished run on rebirth. idx and mir may be nil.
func persistSnapshot(stationDir string, idx runtimeIndex, mir *mirror.Mirror, snap snapshot.SnapshotV1) error {
	path := filepath.Join(stationDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	mir.Enqueue(path)
	if idx != nil {
		idx.RecordSnapshot(path, snap)
		idx.RecordSnapshotState(snap)
	}
	run, archivedPath, ok, err := archive.ArchiveRunSnapshot(stationDir, path, snap)
	if err != nil {
		return fmt.Errorf("archive run: %w", err)
	}
	if !ok {
		return nil
	}
	if idx != nil {
		idx.RecordRun(run, snap.Header.RunID, snap.Header.Tick, archivedPath)
	}
	mir.Enqueue(archivedPath)
	mir.EnqueueIfExists(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	return nil
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

func latestSnapshot(stationDir string) string {
	dir := filepath.Join(stationDir, "snapshots")
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
