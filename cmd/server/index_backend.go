package main

import (
	"fmt"
	"path/filepath"

	"stationidle.ai/internal/persistence/indexdb"
	"stationidle.ai/internal/persistence/snapshot"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/station"
	"stationidle.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	station.TickLogger
	station.EventLogger
	Close() error
	Stats() indexdb.Stats
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordSnapshotState(snap snapshot.SnapshotV1)
	RecordRun(run int, runID string, endTick uint64, archivedSnapshotPath string)
}

func openRuntimeIndex(stationDir, backend string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}
	switch backend {
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(stationDir, "index", "station.sqlite"))
	case "none", "off", "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported STATIONIDLE_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a station.TickLogger
	b station.TickLogger
}

func (m multiTickLogger) WriteTick(entry station.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiEventLogger struct {
	a station.EventLogger
	b station.EventLogger
}

func (m multiEventLogger) WriteEvent(entry station.EventLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteEvent(entry)
	}
	if m.b != nil {
		_ = m.b.WriteEvent(entry)
	}
	return nil
}
