package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"stationidle.ai/internal/persistence/snapshot"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/station"
	"stationidle.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable read model of the station logs. Writes are
// queued and applied on a single goroutine; the JSONL logs remain the
// source of truth, so a full queue drops rows instead of blocking.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick          atomic.Uint64
	dropEvent         atomic.Uint64
	dropSnapshot      atomic.Uint64
	dropSnapshotState atomic.Uint64
	dropRun           atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqEvent
	reqSnapshot
	reqSnapshotState
	reqRun
)

type req struct {
	kind reqKind

	tick     station.TickLogEntry
	event    station.EventLogEntry
	snapshot snapshotRow
	state    snapshot.SnapshotV1
	run      runRow
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Reason     string
	RunID      string
	Days       float64
	TotalDays  float64
	RebirthOne int
	RebirthTwo int
}

type runRow struct {
	Run        int
	RunID      string
	EndTick    uint64
	Path       string
	RecordedAt string
}

// Stats reports queue pressure for /metrics.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropTickTotal          uint64
	DropEventTotal         uint64
	DropSnapshotTotal      uint64
	DropSnapshotStateTotal uint64
	DropRunTotal           uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			state TEXT NOT NULL,
			days REAL NOT NULL,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_run ON ticks(run_id, tick);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			cmd TEXT NOT NULL,
			target TEXT NOT NULL,
			accepted INTEGER NOT NULL,
			code TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_cmd_tick ON commands(cmd, tick);`,
		`CREATE TABLE IF NOT EXISTS events (
			cursor INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_tick ON events(type, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			reason TEXT NOT NULL,
			run_id TEXT NOT NULL,
			days REAL NOT NULL,
			total_days REAL NOT NULL,
			rebirth_one INTEGER NOT NULL,
			rebirth_two INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			end_tick INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_end_tick ON runs(end_tick);`,
		`CREATE TABLE IF NOT EXISTS progression (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			level INTEGER NOT NULL,
			max_level INTEGER NOT NULL,
			xp REAL NOT NULL,
			active INTEGER NOT NULL,
			PRIMARY KEY (kind, id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:             len(s.ch),
		QueueCapacity:          cap(s.ch),
		DropTickTotal:          s.dropTick.Load(),
		DropEventTotal:         s.dropEvent.Load(),
		DropSnapshotTotal:      s.dropSnapshot.Load(),
		DropSnapshotStateTotal: s.dropSnapshotState.Load(),
		DropRunTotal:           s.dropRun.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry station.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteEvent(entry station.EventLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqEvent, event: entry}, &s.dropEvent)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Reason:     snap.Header.Reason,
		RunID:      snap.Header.RunID,
		Days:       snap.Days,
		TotalDays:  snap.TotalDays,
		RebirthOne: snap.RebirthOneCount,
		RebirthTwo: snap.RebirthTwoCount,
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RecordSnapshotState replaces the progression table with the units of
// snap.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshotState, state: snap}, &s.dropSnapshotState)
}

func (s *SQLiteIndex) RecordRun(run int, runID string, endTick uint64, archivedSnapshotPath string) {
	if s == nil {
		return
	}
	if run <= 0 || archivedSnapshotPath == "" {
		return
	}
	r := runRow{
		Run:        run,
		RunID:      runID,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.enqueue(req{kind: reqRun, run: r}, &s.dropRun)
}

// catalogFiles maps catalog digest keys to their file names in configs/.
var catalogFiles = map[string]string{
	"attributes":       "attributes.json",
	"modules":          "modules.json",
	"factions":         "factions.json",
	"battles":          "battles.json",
	"sectors":          "sectors.json",
	"grid_strength":    "grid_strength.json",
	"galactic_secrets": "galactic_secrets.json",
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	digests := cats.Digests()
	names := make([]string, 0, len(digests))
	for name := range digests {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if configDir == "" {
			break
		}
		b, err := os.ReadFile(filepath.Join(configDir, catalogFiles[name]))
		if err != nil {
			continue
		}
		rows = append(rows, kv{name: name, digest: digests[name], json: b})
	}

	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type progressionRow struct {
	kind     string
	id       string
	level    int
	maxLevel int
	xp       float64
	active   bool
}

func progressionRows(snap snapshot.SnapshotV1) []progressionRow {
	rows := make([]progressionRow, 0, len(snap.Operations)+len(snap.Battles)+2)
	g := snap.GridStrength
	if g.ID != "" {
		rows = append(rows, progressionRow{kind: station.KindGrid, id: g.ID, level: g.Level, maxLevel: g.MaxLevel, xp: g.Xp, active: true})
	}
	for _, m := range snap.Modules {
		rows = append(rows, progressionRow{kind: station.KindModule, id: m.Name, maxLevel: m.MaxLevel, active: m.Active})
	}
	for _, u := range snap.Operations {
		rows = append(rows, progressionRow{kind: station.KindOperation, id: u.ID, level: u.Level, maxLevel: u.MaxLevel, xp: u.Xp, active: u.Active})
	}
	for _, u := range snap.Battles {
		rows = append(rows, progressionRow{kind: station.KindBattle, id: u.ID, level: u.Level, maxLevel: u.MaxLevel, xp: u.Xp, active: u.Active})
	}
	if b := snap.Boss; b != nil {
		rows = append(rows, progressionRow{kind: station.KindBoss, id: b.ID, level: b.Layer, maxLevel: b.MaxLayer, xp: b.Xp, active: b.Active})
	}
	return rows
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,run_id,state,days,digest,commands,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT OR REPLACE INTO commands(tick,seq,cmd,target,accepted,code) VALUES(?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(cursor,tick,run_id,type,raw_json) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,reason,run_id,days,total_days,rebirth_one,rebirth_two) VALUES(?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run,run_id,end_tick,snapshot_path,recorded_at) VALUES(?,?,?,?,?)`)
	insertProgression, _ := s.db.Prepare(`INSERT OR REPLACE INTO progression(kind,id,tick,level,max_level,xp,active) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommand, insertEvent, insertSnapshot, insertRun, insertProgression} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			b, _ := json.Marshal(e)
			if !exec(insertTick, int64(e.Tick), e.RunID, e.State, e.Days, e.Digest, len(e.Commands), string(b)) {
				continue
			}
			for i, c := range e.Commands {
				if !exec(insertCommand, int64(e.Tick), i, c.Command.Cmd, c.Command.Target, boolInt(c.Accepted), c.Code) {
					break
				}
			}

		case reqEvent:
			e := r.event
			typ, _ := e.Event["type"].(string)
			b, _ := json.Marshal(e.Event)
			exec(insertEvent, int64(e.Cursor), int64(e.Tick), e.RunID, typ, string(b))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Reason, sn.RunID, sn.Days, sn.TotalDays, sn.RebirthOne, sn.RebirthTwo)

		case reqSnapshotState:
			if _, err := tx.Exec(`DELETE FROM progression`); err != nil {
				rollback()
				continue
			}
			tick := int64(r.state.Header.Tick)
			for _, p := range progressionRows(r.state) {
				if !exec(insertProgression, p.kind, p.id, tick, p.level, p.maxLevel, p.xp, boolInt(p.active)) {
					break
				}
			}

		case reqRun:
			ru := r.run
			exec(insertRun, ru.Run, ru.RunID, int64(ru.EndTick), ru.Path, ru.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
