package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"stationidle.ai/internal/persistence/snapshot"
)

// ReasonRebirth marks the snapshot taken right before a rebirth reset.
const ReasonRebirth = "rebirth"

type RunArchiveMeta struct {
	Run        int     `json:"run"`
	RunID      string  `json:"run_id"`
	StationID  string  `json:"station_id"`
	EndTick    uint64  `json:"end_tick"`
	Days       float64 `json:"days"`
	TotalDays  float64 `json:"total_days"`
	RebirthOne int     `json:"rebirth_one"`
	RebirthTwo int     `json:"rebirth_two"`
	Snapshot   string  `json:"snapshot"`
	CreatedAt  string  `json:"created_at"`
}

// ArchiveRunSnapshot copies a run-end snapshot into
// `stationDir/archives/run_<NNN>/`. Only rebirth snapshots end a run; any
// other reason returns archived=false.
func ArchiveRunSnapshot(stationDir, snapshotPath string, snap snapshot.SnapshotV1) (run int, archivedPath string, archived bool, err error) {
	if snap.Header.Reason != ReasonRebirth {
		return 0, "", false, nil
	}
	// Counters still describe the run being closed.
	run = snap.RebirthOneCount + snap.RebirthTwoCount + 1

	archiveDir := filepath.Join(stationDir, "archives", fmt.Sprintf("run_%03d", run))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := RunArchiveMeta{
		Run:        run,
		RunID:      snap.Header.RunID,
		StationID:  snap.Header.StationID,
		EndTick:    snap.Header.Tick,
		Days:       snap.Days,
		TotalDays:  snap.TotalDays,
		RebirthOne: snap.RebirthOneCount,
		RebirthTwo: snap.RebirthTwoCount,
		Snapshot:   filepath.Base(dst),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return run, dst, true, nil
}

// ReadRunMeta loads meta.json of an archived run directory.
func ReadRunMeta(runDir string) (RunArchiveMeta, error) {
	var meta RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(runDir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("%s: %w", runDir, err)
	}
	return meta, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
