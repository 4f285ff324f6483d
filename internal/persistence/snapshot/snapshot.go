package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	StationID string `json:"station_id"`
	Tick      uint64 `json:"tick"`
	RunID     string `json:"run_id,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// AppliedCmds counts the leading commands of tick Tick+1's log entry
	// whose effects the snapshot already holds. Replay skips them.
	AppliedCmds int `json:"applied_cmds,omitempty"`
}

// SnapshotV1 holds every mutable field of a station. Missing fields load as
// defaults.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRateHz    int     `json:"tick_rate_hz"`
	BaseGameSpeed float64 `json:"base_game_speed"`
	LifespanDays  float64 `json:"lifespan_days,omitempty"`

	Days         float64 `json:"days"`
	TotalDays    float64 `json:"total_days"`
	Paused       bool    `json:"paused"`
	BossDefeated bool    `json:"boss_defeated,omitempty"`

	RebirthOneCount int `json:"rebirth_one_count,omitempty"`
	RebirthTwoCount int `json:"rebirth_two_count,omitempty"`

	Accumulators map[string]float64 `json:"accumulators,omitempty"`
	GridStrength UnitV1             `json:"grid_strength"`
	Modules      []ModuleV1         `json:"modules,omitempty"`
	Operations   []UnitV1           `json:"operations,omitempty"`
	Battles      []UnitV1           `json:"battles,omitempty"`
	Boss         *BossV1            `json:"boss,omitempty"`

	PointOfInterest string          `json:"point_of_interest,omitempty"`
	Unlocks         map[string]bool `json:"unlocks,omitempty"`
	Secrets         []string        `json:"secrets,omitempty"`
	EventCursor     uint64          `json:"event_cursor,omitempty"`
}

type UnitV1 struct {
	ID       string  `json:"id"`
	Level    int     `json:"level"`
	MaxLevel int     `json:"max_level"`
	Xp       float64 `json:"xp"`
	Active   bool    `json:"active,omitempty"`
}

type ModuleV1 struct {
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	MaxLevel int    `json:"max_level"`
}

type BossV1 struct {
	ID        string  `json:"id"`
	Layer     int     `json:"layer"`
	MaxLayer  int     `json:"max_layer"`
	Xp        float64 `json:"xp"`
	Resolved  bool    `json:"resolved"`
	Available bool    `json:"available"`
	Active    bool    `json:"active"`
}

// WriteSnapshot writes a JSON header line followed by the gob body, all
// zstd-compressed.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version > Version {
		return snap, fmt.Errorf("snapshot version %d is newer than supported %d", snap.Header.Version, Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
