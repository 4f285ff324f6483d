package progress

import (
	"math"
	"testing"
)

func TestDoAppliesEveryLevelUp(t *testing.T) {
	u := NewUnit("courseCorrection", Exponential{Base: 100, Growth: 1.5}, 0)
	if got := u.Do(260); got != 2 {
		t.Fatalf("expected 2 level-ups, got %d", got)
	}
	if u.Level != 2 || math.Abs(u.Xp-10) > 1e-9 {
		t.Fatalf("expected level 2 xp 10, got level %d xp %v", u.Level, u.Xp)
	}
	if u.MaxLevel != 2 {
		t.Fatalf("expected maxLevel 2, got %d", u.MaxLevel)
	}
}

func TestDoKeepsXpBelowRequirement(t *testing.T) {
	u := NewUnit("solarPanels", Progressive{Base: 10, Growth: 1.1}, 0)
	prev := 0
	for i := 0; i < 500; i++ {
		u.Do(float64(i%37) * 3.3)
		if u.Xp < 0 || u.Xp >= u.MaxXp() {
			t.Fatalf("xp out of range at step %d: xp=%v max=%v", i, u.Xp, u.MaxXp())
		}
		if u.Level < prev {
			t.Fatalf("level decreased at step %d", i)
		}
		prev = u.Level
	}
}

func TestDoIgnoresNonPositive(t *testing.T) {
	u := NewUnit("x", Exponential{Base: 10, Growth: 2}, 0)
	u.Do(-5)
	u.Do(math.NaN())
	u.Do(0)
	if u.Level != 0 || u.Xp != 0 {
		t.Fatalf("expected untouched unit, got level %d xp %v", u.Level, u.Xp)
	}
}

func TestCapFreezesXp(t *testing.T) {
	u := NewUnit("raid", Exponential{Base: 10, Growth: 1}, 3)
	u.Do(1000)
	if u.Level != 3 || u.Xp != 0 {
		t.Fatalf("expected capped level 3 xp 0, got %d %v", u.Level, u.Xp)
	}
	u.Do(50)
	if u.Level != 3 || u.Xp != 0 {
		t.Fatalf("capped unit progressed: %d %v", u.Level, u.Xp)
	}
	if u.XpLeft() != 0 || u.Progress() != 1 {
		t.Fatalf("capped unit should report full progress")
	}
}

func TestUpdateMaxLevelAndReset(t *testing.T) {
	u := NewUnit("x", Exponential{Base: 10, Growth: 1}, 0)
	u.MaxLevel = 7
	u.Level = 4
	u.Xp = 3
	u.UpdateMaxLevelAndReset()
	if u.Level != 0 || u.Xp != 0 || u.MaxLevel != 7 {
		t.Fatalf("lower level should keep previous max: %+v", u)
	}
	u.Level = 9
	u.UpdateMaxLevelAndReset()
	if u.MaxLevel != 9 {
		t.Fatalf("higher level should raise max, got %d", u.MaxLevel)
	}
	u.FullReset()
	if u.MaxLevel != 0 {
		t.Fatalf("full reset should clear max level")
	}
}

func TestRestoreClampsCorruptValues(t *testing.T) {
	u := NewUnit("x", Exponential{Base: 10, Growth: 1}, 5)
	u.Restore(-2, -1, math.NaN())
	if u.Level != 0 || u.MaxLevel != 0 || u.Xp != 0 {
		t.Fatalf("unexpected restore: %+v", u)
	}
	u.Restore(9, 2, 4)
	if u.Level != 5 || u.MaxLevel != 5 || u.Xp != 0 {
		t.Fatalf("expected clamp to cap: %+v", u)
	}
}

func TestLayeredAdvance(t *testing.T) {
	l := NewLayered("boss", []float64{100, 100, 100})
	if got := l.Do(250); got != 2 {
		t.Fatalf("expected 2 layers cleared, got %d", got)
	}
	if l.Layer != 2 || math.Abs(l.Xp-50) > 1e-9 || l.Resolved {
		t.Fatalf("expected layer 2 xp 50 unresolved, got %+v", l)
	}
	if l.LayersCleared() != 2 {
		t.Fatalf("expected 2 cleared, got %d", l.LayersCleared())
	}
	l.Do(50)
	if !l.Resolved || l.Xp != 100 || l.LayersCleared() != 3 {
		t.Fatalf("expected resolved at full stage, got %+v", l)
	}
	if got := l.Do(1000); got != 0 || l.Xp != 100 || l.Layer != 2 {
		t.Fatalf("resolved unit must not progress: %+v", l)
	}
	l.Reset()
	if l.Resolved || l.Layer != 0 || l.Xp != 0 || l.MaxLayer != 2 {
		t.Fatalf("reset mismatch: %+v", l)
	}
}

func TestTableCurve(t *testing.T) {
	c := Table{5, 8}
	if c.MaxXp(0) != 5 || c.MaxXp(1) != 8 || c.MaxXp(7) != 8 {
		t.Fatalf("table lookup mismatch")
	}
	if (Table{}).MaxXp(0) != 0 {
		t.Fatalf("empty table should be 0")
	}
}
