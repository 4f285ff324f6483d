package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadShippedTuning(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.TickRateHz != 20 || tu.BaseGameSpeed != 4 {
		t.Fatalf("unexpected tuning: %+v", tu)
	}
	if tu.Boss.ForceAppearResume {
		t.Fatalf("force appear should keep pause by default")
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("base_game_speed: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.BaseGameSpeed != 8 || tu.TickRateHz != 20 || tu.OperationBaseXp != 10 {
		t.Fatalf("unexpected merge: %+v", tu)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected validation error")
	}
}
