package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "snapshots", "120.snap.zst")
	in := SnapshotV1{
		Header:        Header{StationID: "station-1", Tick: 120, RunID: "run-a", Reason: "periodic"},
		TickRateHz:    20,
		BaseGameSpeed: 4,
		Days:          24.5,
		TotalDays:     90,
		Accumulators:  map[string]float64{"population": 12.25},
		GridStrength:  UnitV1{ID: "gridStrength", Level: 3, MaxLevel: 4, Xp: 1.5},
		Modules:       []ModuleV1{{Name: "centralCommand", Active: true, MaxLevel: 9}},
		Operations:    []UnitV1{{ID: "solarPanels", Level: 7, MaxLevel: 7, Xp: 3, Active: true}},
		Boss:          &BossV1{ID: "voidLeviathan", Layer: 2, Xp: 40, Available: true},
		Unlocks:       map[string]bool{"fusionReactor": true},
		Secrets:       []string{"wormholeTheory"},
	}
	if err := WriteSnapshot(p, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	h, err := ReadHeader(p)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Tick != 120 || h.StationID != "station-1" || h.Version != Version || h.Reason != "periodic" {
		t.Fatalf("unexpected header: %+v", h)
	}
	out, err := ReadSnapshot(p)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if out.Days != in.Days || out.Accumulators["population"] != 12.25 || out.Boss == nil || out.Boss.Layer != 2 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if len(out.Operations) != 1 || out.Operations[0] != in.Operations[0] {
		t.Fatalf("operations mismatch: %+v", out.Operations)
	}
}

func TestReadSnapshotMissingFile(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error")
	}
}
