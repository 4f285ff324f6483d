package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"sort"
	"strings"
	"time"

	"stationidle.ai/internal/persistence/indexdb"
	"stationidle.ai/internal/persistence/mirror"
	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/station"
	"stationidle.ai/internal/transport/ws"
)

type httpDeps struct {
	Station     *station.Station
	Index       runtimeIndex
	Mirror      *mirror.Mirror
	EnableAdmin bool
	EnablePprof bool
	Logger      *log.Logger
}

func buildMux(d httpDeps) *http.ServeMux {
	st := d.Station
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		var stats *indexdb.Stats
		if d.Index != nil {
			s := d.Index.Stats()
			stats = &s
		}
		writeMetrics(rw, st.ID(), st.Metrics(), stats)
		if d.Mirror != nil {
			writeMirrorMetrics(rw, d.Mirror.Stats())
		}
	})

	if d.EnableAdmin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			state, err := st.RequestState(ctx2)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				StationID string                 `json:"station_id"`
				RunID     string                 `json:"run_id"`
				Tick      uint64                 `json:"tick"`
				Metrics   station.StationMetrics `json:"metrics"`
				State     protocol.StateMsg      `json:"state"`
			}{
				StationID: st.ID(),
				RunID:     st.RunID(),
				Tick:      st.CurrentTick(),
				Metrics:   st.Metrics(),
				State:     state,
			}
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
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := st.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
		// Operator commands (FORCE_BOSS, RESET_BATTLE, GRANT_SECRET and the
		// player set) with admin rights.
		mux.HandleFunc("/admin/v1/cmd", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			var cmd station.Command
			if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
				http.Error(rw, "bad json", http.StatusBadRequest)
				return
			}
			cmd.Admin = true
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			res, err := st.Submit(ctx2, cmd)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(res)
		})
	} else if d.Logger != nil {
		d.Logger.Printf("admin endpoints disabled (STATIONIDLE_ENABLE_ADMIN_HTTP=false)")
	}
	if d.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(st, d.Logger).Handler())
	return mux
}

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(rw http.ResponseWriter, stationID string, m station.StationMetrics, idx *indexdb.Stats) {
	gauge := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
	}

	gauge("stationidle_tick", "Current station tick.")
	fmt.Fprintf(rw, "stationidle_tick{station=%q} %d\n", stationID, m.Tick)

	gauge("stationidle_days", "Days elapsed in the current run.")
	fmt.Fprintf(rw, "stationidle_days{station=%q} %.6f\n", stationID, m.Days)
	fmt.Fprintf(rw, "stationidle_total_days{station=%q} %.6f\n", stationID, m.TotalDays)

	gauge("stationidle_playing", "1 while the station is in PLAYING state.")
	playing := 0
	if m.State == "PLAYING" {
		playing = 1
	}
	fmt.Fprintf(rw, "stationidle_playing{station=%q} %d\n", stationID, playing)

	gauge("stationidle_clients", "Connected websocket clients.")
	fmt.Fprintf(rw, "stationidle_clients{station=%q} %d\n", stationID, m.Clients)

	gauge("stationidle_grid", "Grid load and strength.")
	fmt.Fprintf(rw, "stationidle_grid{station=%q,metric=%q} %.6f\n", stationID, "load", m.GridLoad)
	fmt.Fprintf(rw, "stationidle_grid{station=%q,metric=%q} %.6f\n", stationID, "strength", m.GridStrength)

	gauge("stationidle_active", "Running units by kind.")
	fmt.Fprintf(rw, "stationidle_active{station=%q,kind=%q} %d\n", stationID, "operation", m.ActiveOperations)
	fmt.Fprintf(rw, "stationidle_active{station=%q,kind=%q} %d\n", stationID, "battle", m.ActiveBattles)

	gauge("stationidle_boss_layer", "Boss layers cleared.")
	fmt.Fprintf(rw, "stationidle_boss_layer{station=%q} %d\n", stationID, m.BossLayer)

	gauge("stationidle_rebirths", "Rebirth counts by tier.")
	fmt.Fprintf(rw, "stationidle_rebirths{station=%q,tier=%q} %d\n", stationID, "one", m.RebirthOne)
	fmt.Fprintf(rw, "stationidle_rebirths{station=%q,tier=%q} %d\n", stationID, "two", m.RebirthTwo)

	gauge("stationidle_event_cursor", "Cursor of the latest emitted event.")
	fmt.Fprintf(rw, "stationidle_event_cursor{station=%q} %d\n", stationID, m.EventCursor)

	gauge("stationidle_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(rw, "stationidle_queue_depth{station=%q,queue=%q} %d\n", stationID, "commands", m.QueueDepths.Commands)
	fmt.Fprintf(rw, "stationidle_queue_depth{station=%q,queue=%q} %d\n", stationID, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "stationidle_queue_depth{station=%q,queue=%q} %d\n", stationID, "leave", m.QueueDepths.Leave)

	gauge("stationidle_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(rw, "stationidle_step_ms{station=%q} %.3f\n", stationID, m.StepMS)

	if len(m.Attributes) > 0 {
		gauge("stationidle_attribute", "Resolved attribute values.")
		for _, name := range sortedAttrNames(m.Attributes) {
			fmt.Fprintf(rw, "stationidle_attribute{station=%q,name=%q} %.6f\n", stationID, name, m.Attributes[name])
		}
	}

	if idx == nil {
		return
	}
	gauge("stationidle_index_queue_depth", "Index writer queue depth.")
	fmt.Fprintf(rw, "stationidle_index_queue_depth %d\n", idx.QueueDepth)
	fmt.Fprintf(rw, "# HELP stationidle_index_dropped_total Index rows dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE stationidle_index_dropped_total counter\n")
	fmt.Fprintf(rw, "stationidle_index_dropped_total{kind=%q} %d\n", "tick", idx.DropTickTotal)
	fmt.Fprintf(rw, "stationidle_index_dropped_total{kind=%q} %d\n", "event", idx.DropEventTotal)
	fmt.Fprintf(rw, "stationidle_index_dropped_total{kind=%q} %d\n", "snapshot", idx.DropSnapshotTotal)
	fmt.Fprintf(rw, "stationidle_index_dropped_total{kind=%q} %d\n", "snapshot_state", idx.DropSnapshotStateTotal)
	fmt.Fprintf(rw, "stationidle_index_dropped_total{kind=%q} %d\n", "run", idx.DropRunTotal)
}

func writeMirrorMetrics(rw http.ResponseWriter, s mirror.Stats) {
	fmt.Fprintf(rw, "# HELP stationidle_mirror_queue_depth Object-store mirror queue depth.\n")
	fmt.Fprintf(rw, "# TYPE stationidle_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "stationidle_mirror_queue_depth %d\n", s.QueueDepth)
	fmt.Fprintf(rw, "stationidle_mirror_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP stationidle_mirror_files_total Mirror files by outcome.\n")
	fmt.Fprintf(rw, "# TYPE stationidle_mirror_files_total counter\n")
	fmt.Fprintf(rw, "stationidle_mirror_files_total{outcome=%q} %d\n", "enqueued", s.EnqueuedTotal)
	fmt.Fprintf(rw, "stationidle_mirror_files_total{outcome=%q} %d\n", "dropped", s.DroppedTotal)
	fmt.Fprintf(rw, "stationidle_mirror_files_total{outcome=%q} %d\n", "uploaded", s.UploadedTotal)
	fmt.Fprintf(rw, "stationidle_mirror_files_total{outcome=%q} %d\n", "failed", s.FailedTotal)

	fmt.Fprintf(rw, "# HELP stationidle_mirror_last_upload_unix Unix time of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE stationidle_mirror_last_upload_unix gauge\n")
	fmt.Fprintf(rw, "stationidle_mirror_last_upload_unix %d\n", s.LastUploadUnix)
	fmt.Fprintf(rw, "stationidle_mirror_last_error_unix %d\n", s.LastErrorUnix)
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

func sortedAttrNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
