package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stationidle.ai/internal/persistence/archive"
	"stationidle.ai/internal/persistence/snapshot"
	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/catalogs"
	"stationidle.ai/internal/sim/station"
	"stationidle.ai/internal/sim/tuning"
)

func newTestStation(t *testing.T) *station.Station {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	st, err := station.New(station.ConfigFromTuning("srv-test", tuning.Defaults()), cats, nil)
	if err != nil {
		t.Fatalf("station: %v", err)
	}
	return st
}

func startMux(t *testing.T, st *station.Station, admin bool) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = st.Run(ctx) }()
	srv := httptest.NewServer(buildMux(httpDeps{Station: st, EnableAdmin: admin}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthAndMetrics(t *testing.T) {
	srv := startMux(t, newTestStation(t), false)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	for _, want := range []string{
		`stationidle_tick{station="srv-test"}`,
		`stationidle_grid{station="srv-test",metric="strength"}`,
		"# TYPE stationidle_playing gauge",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "stationidle_index_dropped_total") || strings.Contains(body, "stationidle_mirror_") {
		t.Fatalf("index and mirror metrics must be absent when not configured")
	}
}

func TestAdminDisabledHidesEndpoints(t *testing.T) {
	srv := startMux(t, newTestStation(t), false)
	resp, err := http.Get(srv.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404", resp.StatusCode)
	}
}

func TestAdminCommandAndState(t *testing.T) {
	srv := startMux(t, newTestStation(t), true)

	resp, err := http.Post(srv.URL+"/admin/v1/cmd", "application/json", strings.NewReader(`{"cmd":"FORCE_BOSS"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var res station.CommandResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if !res.Accepted {
		t.Fatalf("operator FORCE_BOSS should be accepted: %+v", res)
	}

	resp, err = http.Get(srv.URL + "/admin/v1/cmd")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want 405", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		StationID string            `json:"station_id"`
		State     protocol.StateMsg `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if out.StationID != "srv-test" || out.State.Type != protocol.TypeState {
		t.Fatalf("unexpected state response %+v", out)
	}
}

func TestPersistSnapshotArchivesRebirth(t *testing.T) {
	dir := t.TempDir()
	st := newTestStation(t)

	snap := st.ExportSnapshot(station.ReasonPeriodic)
	if err := persistSnapshot(dir, nil, nil, snap); err != nil {
		t.Fatalf("persist periodic: %v", err)
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "0.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "archives")); !os.IsNotExist(err) {
		t.Fatalf("periodic snapshot must not be archived")
	}

	snap.Header.Tick = 40
	snap.Header.Reason = station.ReasonRebirth
	if err := persistSnapshot(dir, nil, nil, snap); err != nil {
		t.Fatalf("persist rebirth: %v", err)
	}
	meta, err := archive.ReadRunMeta(filepath.Join(dir, "archives", "run_001"))
	if err != nil {
		t.Fatalf("run meta: %v", err)
	}
	if meta.EndTick != 40 || meta.RunID != snap.Header.RunID {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "40.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
	if _, err := snapshot.ReadHeader(filepath.Join(dir, "snapshots", "40.snap.zst")); err != nil {
		t.Fatalf("read header: %v", err)
	}
}

func TestServerEnvDefaults(t *testing.T) {
	t.Setenv("STATIONIDLE_DEPLOY_ENV", "Production")
	cfg, err := loadServerEnv()
	if err != nil {
		t.Fatalf("env: %v", err)
	}
	if cfg.DeployEnv != "production" || cfg.adminHTTPEnabled() {
		t.Fatalf("production must default admin off: %+v", cfg)
	}
	if cfg.SnapshotQueue != 2 {
		t.Fatalf("snapshot queue=%d", cfg.SnapshotQueue)
	}

	t.Setenv("STATIONIDLE_ENABLE_ADMIN_HTTP", "true")
	cfg, err = loadServerEnv()
	if err != nil {
		t.Fatalf("env: %v", err)
	}
	if !cfg.adminHTTPEnabled() {
		t.Fatalf("explicit override should enable admin")
	}
}

func TestMirrorEnv(t *testing.T) {
	cfg, err := loadServerEnv()
	if err != nil {
		t.Fatalf("env: %v", err)
	}
	if cfg.Mirror.enabled() || cfg.Mirror.Region != "auto" || cfg.Mirror.Queue != 1024 || !cfg.Mirror.Logs {
		t.Fatalf("unexpected mirror defaults: %+v", cfg.Mirror)
	}

	t.Setenv("STATIONIDLE_MIRROR_ENDPOINT", "https://objects.example.net")
	t.Setenv("STATIONIDLE_MIRROR_BUCKET", "station-backups")
	t.Setenv("STATIONIDLE_MIRROR_WORKERS", "3")
	t.Setenv("STATIONIDLE_MIRROR_LOGS", "false")
	cfg, err = loadServerEnv()
	if err != nil {
		t.Fatalf("env: %v", err)
	}
	if !cfg.Mirror.enabled() || cfg.Mirror.Bucket != "station-backups" || cfg.Mirror.Workers != 3 || cfg.Mirror.Logs {
		t.Fatalf("unexpected mirror env: %+v", cfg.Mirror)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.3:22":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
