package scheduler

import (
	"math/rand"
	"testing"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/effects"
	"stationidle.ai/internal/sim/progress"
	"stationidle.ai/internal/sim/requirements"
)

func testSpecs() []ModuleSpec {
	curve := progress.Exponential{Base: 10, Growth: 1.1}
	return []ModuleSpec{
		{
			Name:            "centralCommand",
			ActiveByDefault: true,
			Components: []ComponentSpec{
				{Name: "navigation", Operations: []OperationSpec{
					{Name: "standbyOrbit", GridLoad: 0, Curve: curve},
					{Name: "courseCorrection", GridLoad: 2, Curve: curve, Effects: []effects.Definition{{Type: effects.Research, BaseValue: 1}}},
				}},
				{Name: "power", Operations: []OperationSpec{
					{Name: "solarPanels", GridLoad: 0, Curve: curve},
					{Name: "fusionReactor", GridLoad: 3, Curve: curve},
				}},
			},
		},
		{
			Name: "securityWing",
			Components: []ComponentSpec{
				{Name: "defense", Operations: []OperationSpec{
					{Name: "patrolDrones", GridLoad: 1, Curve: curve},
					{Name: "railguns", GridLoad: 2, Curve: curve},
				}},
			},
		},
	}
}

func newTestScheduler(t *testing.T, strength *float64) *Scheduler {
	t.Helper()
	s, err := New(testSpecs(), func() float64 { return *strength })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestDefaultActivation(t *testing.T) {
	strength := 5.0
	s := newTestScheduler(t, &strength)
	op, _ := s.Operation("standbyOrbit")
	if !op.Active {
		t.Fatalf("first operation of each component should default active")
	}
	m, _ := s.Module("securityWing")
	if m.Active {
		t.Fatalf("securityWing should default inactive")
	}
	if s.GridLoad() != 0 {
		t.Fatalf("inactive module must not count toward load, got %v", s.GridLoad())
	}
}

func TestTryActivateRejectsOverCapacity(t *testing.T) {
	strength := 4.0
	s := newTestScheduler(t, &strength)
	if a := s.TryActivateOperation("courseCorrection"); !a.Accepted {
		t.Fatalf("expected accept, got %+v", a)
	}
	a := s.TryActivateOperation("fusionReactor")
	if a.Accepted || a.Code != protocol.ErrGridCapacity {
		t.Fatalf("expected grid capacity rejection, got %+v", a)
	}
	solar, _ := s.Operation("solarPanels")
	fusion, _ := s.Operation("fusionReactor")
	if !solar.Active || fusion.Active {
		t.Fatalf("rejected admission must not mutate state")
	}
	if s.GridLoad() != 2 {
		t.Fatalf("expected load 2, got %v", s.GridLoad())
	}
}

func TestSiblingSwapReleasesLoad(t *testing.T) {
	strength := 3.0
	s := newTestScheduler(t, &strength)
	if a := s.TryActivateOperation("courseCorrection"); !a.Accepted {
		t.Fatalf("courseCorrection: %+v", a)
	}
	if a := s.TryActivateOperation("standbyOrbit"); !a.Accepted {
		t.Fatalf("swapping back should free load: %+v", a)
	}
	if a := s.TryActivateOperation("fusionReactor"); !a.Accepted {
		t.Fatalf("fusionReactor should fit after swap: %+v", a)
	}
	if s.GridLoad() != 3 {
		t.Fatalf("expected load 3, got %v", s.GridLoad())
	}
}

func TestInactiveModuleGatesProgress(t *testing.T) {
	strength := 10.0
	s := newTestScheduler(t, &strength)
	if a := s.TryActivateOperation("railguns"); !a.Accepted {
		t.Fatalf("railguns under inactive module should be selectable: %+v", a)
	}
	s.AdvanceActive(func(*Operation) float64 { return 100 })
	rail, _ := s.Operation("railguns")
	if rail.Level != 0 || rail.Xp != 0 {
		t.Fatalf("operation under inactive module progressed")
	}
	if !rail.Active {
		t.Fatalf("parent gating must not deactivate the operation")
	}
	orbit, _ := s.Operation("standbyOrbit")
	if orbit.Level == 0 {
		t.Fatalf("operation under active module should progress")
	}
}

func TestTryActivateModuleCountsItsLoad(t *testing.T) {
	strength := 1.0
	s := newTestScheduler(t, &strength)
	s.TryActivateOperation("railguns")
	if a := s.TryActivateModule("securityWing"); a.Accepted || a.Code != protocol.ErrGridCapacity {
		t.Fatalf("expected rejection, got %+v", a)
	}
	strength = 2
	if a := s.TryActivateModule("securityWing"); !a.Accepted {
		t.Fatalf("expected accept, got %+v", a)
	}
	if a := s.TryActivateModule("securityWing"); !a.Accepted {
		t.Fatalf("re-activation should be a no-op accept, got %+v", a)
	}
}

func TestLockedAndUnknown(t *testing.T) {
	specs := testSpecs()
	specs[0].Components[1].Operations[1].Gate = requirements.NewGate(
		[]requirements.Requirement{{Kind: requirements.KindAge, Value: 100}}, requirements.ScopePlaythrough)
	strength := 10.0
	s, err := New(specs, func() float64 { return strength })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a := s.TryActivateOperation("fusionReactor"); a.Code != protocol.ErrLocked {
		t.Fatalf("expected locked, got %+v", a)
	}
	if a := s.TryActivateOperation("warpDrive"); a.Code != protocol.ErrUnknownTarget {
		t.Fatalf("expected unknown, got %+v", a)
	}
}

func TestCapacityInvariantUnderRandomCommands(t *testing.T) {
	strength := 4.0
	s := newTestScheduler(t, &strength)
	names := []string{"standbyOrbit", "courseCorrection", "solarPanels", "fusionReactor", "patrolDrones", "railguns"}
	modules := []string{"centralCommand", "securityWing"}
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		switch r.Intn(4) {
		case 0:
			s.TryActivateOperation(names[r.Intn(len(names))])
		case 1:
			s.DeactivateOperation(names[r.Intn(len(names))])
		case 2:
			s.TryActivateModule(modules[r.Intn(len(modules))])
		case 3:
			s.DeactivateModule(modules[r.Intn(len(modules))])
		}
		if s.GridLoad() > strength {
			t.Fatalf("step %d: load %v exceeds strength %v", i, s.GridLoad(), strength)
		}
		for _, m := range s.Modules() {
			for _, c := range m.Components {
				n := 0
				for _, op := range c.Operations {
					if op.Active {
						n++
					}
				}
				if n > 1 {
					t.Fatalf("component %s has %d active operations", c.Name, n)
				}
			}
		}
	}
}

func TestEnforceCapacityAndResets(t *testing.T) {
	strength := 10.0
	s := newTestScheduler(t, &strength)
	s.TryActivateOperation("fusionReactor")
	s.TryActivateOperation("railguns")
	s.TryActivateModule("securityWing")
	strength = 3
	off := s.EnforceCapacity()
	if len(off) != 1 || off[0] != "securityWing" || s.GridLoad() > strength {
		t.Fatalf("unexpected enforcement: %v load=%v", off, s.GridLoad())
	}

	s.AdvanceActive(func(*Operation) float64 { return 50 })
	fusion, _ := s.Operation("fusionReactor")
	lvl := fusion.Level
	cc, _ := s.Module("centralCommand")
	if cc.MaxLevel == 0 || lvl == 0 {
		t.Fatalf("expected progress before reset")
	}
	s.SoftReset()
	if fusion.Level != 0 || fusion.MaxLevel != lvl || fusion.Active {
		t.Fatalf("soft reset mismatch: %+v", fusion.Unit)
	}
	s.FullReset()
	if fusion.MaxLevel != 0 || cc.MaxLevel != 0 {
		t.Fatalf("full reset should clear ceilings")
	}
}
