package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"stationidle.ai/internal/persistence/snapshot"
	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/station"
	"stationidle.ai/internal/sim/tuning"
)

func openTestIndex(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "station.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return idx, path
}

func openRead(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteIndex_WritesTicksCommandsAndEvents(t *testing.T) {
	idx, path := openTestIndex(t)
	_ = idx.WriteTick(station.TickLogEntry{
		Tick:   7,
		RunID:  "run-a",
		State:  "PLAYING",
		Days:   1.4,
		Digest: "abc",
		Commands: []station.RecordedCommand{
			{Command: station.Command{Cmd: protocol.CmdActivate, Target: "courseCorrection"}, Accepted: true},
			{Command: station.Command{Cmd: protocol.CmdActivate, Target: "fusionReactor"}, Code: protocol.ErrLocked},
		},
	})
	_ = idx.WriteEvent(station.EventLogEntry{
		Tick:   7,
		Cursor: 3,
		RunID:  "run-a",
		Event:  protocol.Event{"type": station.EventLevelUp, "target": "solarPanels"},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openRead(t, path)
	var (
		digest   string
		commands int
	)
	if err := db.QueryRow(`SELECT digest,commands FROM ticks WHERE tick=7`).Scan(&digest, &commands); err != nil {
		t.Fatalf("tick row: %v", err)
	}
	if digest != "abc" || commands != 2 {
		t.Fatalf("tick row mismatch: digest=%q commands=%d", digest, commands)
	}
	var code string
	if err := db.QueryRow(`SELECT code FROM commands WHERE tick=7 AND seq=1`).Scan(&code); err != nil {
		t.Fatalf("command row: %v", err)
	}
	if code != protocol.ErrLocked {
		t.Fatalf("code=%q want %q", code, protocol.ErrLocked)
	}
	var typ string
	if err := db.QueryRow(`SELECT type FROM events WHERE cursor=3`).Scan(&typ); err != nil {
		t.Fatalf("event row: %v", err)
	}
	if typ != station.EventLevelUp {
		t.Fatalf("type=%q", typ)
	}
}

func TestSQLiteIndex_RecordSnapshotStateAndRun(t *testing.T) {
	idx, path := openTestIndex(t)
	snap := snapshot.SnapshotV1{
		Header:       snapshot.Header{Version: 1, StationID: "s1", Tick: 99, RunID: "run-a", Reason: "rebirth"},
		Days:         19.8,
		TotalDays:    19.8,
		GridStrength: snapshot.UnitV1{ID: "gridStrength", Level: 1, Xp: 3},
		Modules:      []snapshot.ModuleV1{{Name: "centralCommand", Active: true, MaxLevel: 4}},
		Operations:   []snapshot.UnitV1{{ID: "solarPanels", Level: 4, MaxLevel: 4, Xp: 1.5, Active: true}},
		Boss:         &snapshot.BossV1{ID: "voidLeviathan", Layer: 2, MaxLayer: 2},
	}
	idx.RecordSnapshot("/data/snapshots/99.snap.zst", snap)
	idx.RecordSnapshotState(snap)
	idx.RecordRun(1, "run-a", 99, "/data/archives/run_001/99.snap.zst")
	idx.RecordRun(0, "ignored", 1, "x")
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openRead(t, path)
	var reason string
	if err := db.QueryRow(`SELECT reason FROM snapshots WHERE tick=99`).Scan(&reason); err != nil {
		t.Fatalf("snapshot row: %v", err)
	}
	if reason != "rebirth" {
		t.Fatalf("reason=%q", reason)
	}
	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM progression`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 4 {
		t.Fatalf("progression rows=%d want 4", rows)
	}
	var level int
	if err := db.QueryRow(`SELECT level FROM progression WHERE kind=? AND id=?`, station.KindBoss, "voidLeviathan").Scan(&level); err != nil {
		t.Fatalf("boss row: %v", err)
	}
	if level != 2 {
		t.Fatalf("boss level=%d", level)
	}
	var runs int
	if err := db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if runs != 1 {
		t.Fatalf("runs=%d want 1", runs)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	idx, path := openTestIndex(t)
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openRead(t, path)
	var digest string
	if err := db.QueryRow(`SELECT digest FROM catalogs WHERE name='modules'`).Scan(&digest); err != nil {
		t.Fatalf("modules row: %v", err)
	}
	if digest != cats.Modules.Digest {
		t.Fatalf("digest mismatch")
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(cats.Digests())+1 {
		t.Fatalf("catalog rows=%d", n)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick}

	_ = s.WriteTick(station.TickLogEntry{Tick: 2})
	_ = s.WriteEvent(station.EventLogEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})
	s.RecordSnapshotState(snapshot.SnapshotV1{})
	s.RecordRun(1, "r", 2, "/tmp/2.snap.zst")

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropEventTotal != 1 || st.DropSnapshotTotal != 1 ||
		st.DropSnapshotStateTotal != 1 || st.DropRunTotal != 1 {
		t.Fatalf("drop stats mismatch: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
