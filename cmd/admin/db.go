package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const dbUsage = "usage: admin db [-data ./data] [-station ID|-db PATH] [-limit N] [-kind K] [-type T] [-cmd C] snapshots|runs|ticks|commands|events|progression"

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	stationID := fs.String("station", "", "station id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	kind := fs.String("kind", "", "progression kind filter (operation|battle|module|grid|boss)")
	eventType := fs.String("type", "", "event type filter (events)")
	cmdName := fs.String("cmd", "", "command filter (commands)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*stationID) == "" {
			fmt.Fprintln(os.Stderr, "missing -station or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "stations", *stationID, "index", "station.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	opts := dbQueryOpts{Limit: *limit, Kind: *kind, EventType: *eventType, Cmd: *cmdName}
	if err := queryDB(db, q, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, dbUsage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type dbQueryOpts struct {
	Limit     int
	Kind      string
	EventType string
	Cmd       string
}

// queryDB prints one JSON object per row of the named read-model query.
func queryDB(db *sql.DB, q string, opts dbQueryOpts, w io.Writer) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,reason,run_id,days,total_days,rebirth_one,rebirth_two FROM snapshots ORDER BY tick DESC LIMIT ?`, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64   `json:"tick"`
				Path       string  `json:"path"`
				Reason     string  `json:"reason"`
				RunID      string  `json:"run_id"`
				Days       float64 `json:"days"`
				TotalDays  float64 `json:"total_days"`
				RebirthOne int     `json:"rebirth_one"`
				RebirthTwo int     `json:"rebirth_two"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Reason, &r.RunID, &r.Days, &r.TotalDays, &r.RebirthOne, &r.RebirthTwo); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "runs":
		rows, err := db.Query(`SELECT run,run_id,end_tick,snapshot_path,recorded_at FROM runs ORDER BY run DESC LIMIT ?`, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Run          int    `json:"run"`
				RunID        string `json:"run_id"`
				EndTick      int64  `json:"end_tick"`
				SnapshotPath string `json:"snapshot_path"`
				RecordedAt   string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Run, &r.RunID, &r.EndTick, &r.SnapshotPath, &r.RecordedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,run_id,state,days,digest,commands FROM ticks ORDER BY tick DESC LIMIT ?`, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64   `json:"tick"`
				RunID    string  `json:"run_id"`
				State    string  `json:"state"`
				Days     float64 `json:"days"`
				Digest   string  `json:"digest"`
				Commands int     `json:"commands"`
			}
			if err := rows.Scan(&r.Tick, &r.RunID, &r.State, &r.Days, &r.Digest, &r.Commands); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "commands":
		query := `SELECT tick,seq,cmd,target,accepted,code FROM commands ORDER BY tick DESC, seq DESC LIMIT ?`
		args := []any{opts.Limit}
		if c := strings.ToUpper(strings.TrimSpace(opts.Cmd)); c != "" {
			query = `SELECT tick,seq,cmd,target,accepted,code FROM commands WHERE cmd=? ORDER BY tick DESC, seq DESC LIMIT ?`
			args = []any{c, opts.Limit}
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Seq      int    `json:"seq"`
				Cmd      string `json:"cmd"`
				Target   string `json:"target,omitempty"`
				Accepted bool   `json:"accepted"`
				Code     string `json:"code,omitempty"`
			}
			var accepted int
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Cmd, &r.Target, &accepted, &r.Code); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Accepted = accepted != 0
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "events":
		query := `SELECT cursor,tick,run_id,type,raw_json FROM events ORDER BY cursor DESC LIMIT ?`
		args := []any{opts.Limit}
		if t := strings.TrimSpace(opts.EventType); t != "" {
			query = `SELECT cursor,tick,run_id,type,raw_json FROM events WHERE type=? ORDER BY cursor DESC LIMIT ?`
			args = []any{t, opts.Limit}
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Cursor int64           `json:"cursor"`
				Tick   int64           `json:"tick"`
				RunID  string          `json:"run_id"`
				Type   string          `json:"type"`
				Raw    json.RawMessage `json:"raw"`
			}
			var raw string
			if err := rows.Scan(&r.Cursor, &r.Tick, &r.RunID, &r.Type, &raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Raw = json.RawMessage(raw)
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "progression":
		query := `SELECT kind,id,tick,level,max_level,xp,active FROM progression ORDER BY kind, id`
		var args []any
		if k := strings.TrimSpace(opts.Kind); k != "" {
			query = `SELECT kind,id,tick,level,max_level,xp,active FROM progression WHERE kind=? ORDER BY id`
			args = []any{k}
		}
		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Kind     string  `json:"kind"`
				ID       string  `json:"id"`
				Tick     int64   `json:"tick"`
				Level    int     `json:"level"`
				MaxLevel int     `json:"max_level"`
				Xp       float64 `json:"xp"`
				Active   bool    `json:"active"`
			}
			var active int
			if err := rows.Scan(&r.Kind, &r.ID, &r.Tick, &r.Level, &r.MaxLevel, &r.Xp, &active); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Active = active != 0
			_ = enc.Encode(r)
		}
		return rows.Err()
	}
	return fmt.Errorf("unknown query: %s", q)
}
