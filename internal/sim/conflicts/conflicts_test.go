package conflicts

import (
	"testing"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/clock"
	"stationidle.ai/internal/sim/effects"
	"stationidle.ai/internal/sim/progress"
)

func testSystem(t *testing.T, maxVisible int, auto bool) *System {
	t.Helper()
	curve := progress.Exponential{Base: 10, Growth: 1}
	danger := []effects.Definition{{Type: effects.Danger, BaseValue: 5}}
	reward := []effects.Definition{{Type: effects.Growth, BaseValue: 2}}
	specs := []BattleSpec{
		{Name: "scoutRaid", Faction: "pirates", TargetLevel: 2, Curve: curve, Effects: danger, Rewards: reward},
		{Name: "pirateFleet", Faction: "pirates", TargetLevel: 3, Curve: curve, Effects: danger},
		{Name: "swarmNest", Faction: "swarm", TargetLevel: 1, Curve: curve},
		{Name: "swarmQueen", Faction: "swarm", TargetLevel: 5, Curve: curve},
		{Name: "smugglers", Faction: "syndicate", TargetLevel: 1, Curve: curve},
	}
	boss := &BossSpec{
		Name:          "dreadnought",
		Faction:       "boss",
		AppearanceDay: 100,
		Layers: []LayerSpec{
			{MaxXp: 100, Effects: []effects.Definition{{Type: effects.Danger, BaseValue: 10}}},
			{MaxXp: 100, Effects: []effects.Definition{{Type: effects.Danger, BaseValue: 20}}},
			{MaxXp: 100, Effects: []effects.Definition{{Type: effects.Danger, BaseValue: 40}}},
		},
		Rewards: []effects.Definition{{Type: effects.ResearchFactor, BaseValue: 2}},
	}
	s, err := New(specs, boss, Options{MaxVisible: maxVisible, AutoEngage: auto})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func names(bs []*Battle) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.Name)
	}
	return out
}

func TestVisibleOnePerFactionAndCap(t *testing.T) {
	s := testSystem(t, 2, false)
	got := names(s.Visible())
	if len(got) != 2 || got[0] != "scoutRaid" || got[1] != "swarmNest" {
		t.Fatalf("unexpected visible set: %v", got)
	}
	if a := s.Activate("pirateFleet"); a.Code != protocol.ErrNotVisible {
		t.Fatalf("hidden battle should be rejected, got %+v", a)
	}
}

func TestBattleResolvesPassively(t *testing.T) {
	s := testSystem(t, 5, false)
	if a := s.Activate("scoutRaid"); !a.Accepted {
		t.Fatalf("activate: %+v", a)
	}
	_, done := s.AdvanceActive(25)
	if len(done) != 1 || done[0].Name != "scoutRaid" {
		t.Fatalf("expected scoutRaid resolved, got %+v", done)
	}
	b, _ := s.Battle("scoutRaid")
	if !b.Done() || !b.Active || b.Level != 2 || b.Xp != 0 {
		t.Fatalf("resolved battle should stay active and capped: %+v", b.Unit)
	}
	if v := b.EffectValue(effects.Growth); v != 2 || b.EffectValue(effects.Danger) != 0 {
		t.Fatalf("resolved battle should grant rewards only")
	}
	if got := names(s.Visible()); got[0] != "pirateFleet" {
		t.Fatalf("next pirate battle should become visible, got %v", got)
	}
	if a := s.Activate("scoutRaid"); !a.Accepted {
		t.Fatalf("already-active battle should be accepted as no-op")
	}
	if off := s.DismissResolved(); len(off) != 1 || b.Active {
		t.Fatalf("dismiss should deactivate resolved battle, got %v", off)
	}
	if a := s.Activate("scoutRaid"); a.Code != protocol.ErrResolved {
		t.Fatalf("resolved battle cannot restart, got %+v", a)
	}
	if got := s.FactionLevelsDefeated("pirates"); got != 2 {
		t.Fatalf("expected 2 pirate levels, got %d", got)
	}
}

func TestBossAppearsAndResolves(t *testing.T) {
	s := testSystem(t, 5, true)
	if a := s.Activate("dreadnought"); a.Code != protocol.ErrNotVisible {
		t.Fatalf("boss should not be engageable before it appears: %+v", a)
	}
	if s.CheckAppearance(99) {
		t.Fatalf("boss appeared early")
	}
	if !s.CheckAppearance(100) {
		t.Fatalf("boss should appear at threshold")
	}
	boss := s.Boss()
	if !boss.Available || !boss.Active {
		t.Fatalf("auto-engage should activate the boss")
	}
	if boss.EffectValue(effects.Danger) != 10 {
		t.Fatalf("first layer effect expected")
	}
	s.AdvanceActive(250)
	if boss.Layer != 2 || boss.Xp != 50 || boss.Resolved {
		t.Fatalf("unexpected boss state: %+v", boss.Layered)
	}
	if boss.EffectValue(effects.Danger) != 40 {
		t.Fatalf("layer change should switch effects, got %v", boss.EffectValue(effects.Danger))
	}
	_, done := s.AdvanceActive(50)
	if len(done) != 1 || !done[0].Boss || done[0].LayersCleared != 3 {
		t.Fatalf("expected boss resolution, got %+v", done)
	}
	if boss.DisplayedLevel() != 3 || !boss.Active {
		t.Fatalf("resolved boss should show 3 layers and stay engaged")
	}
	if a := s.Activate("dreadnought"); a.Code != protocol.ErrResolved {
		t.Fatalf("resolved boss cannot be re-activated: %+v", a)
	}
	if s.Deactivate("dreadnought") || !boss.Active {
		t.Fatalf("resolved boss must not return to idle")
	}
	if a := s.Toggle("dreadnought"); a.Code != protocol.ErrResolved || !boss.Active {
		t.Fatalf("toggling a resolved boss should leave it engaged: %+v", a)
	}
	frozen := boss.Xp
	if ups, _ := s.AdvanceActive(500); len(ups) != 0 || boss.Xp != frozen {
		t.Fatalf("resolved boss should take no further gain: %+v xp=%v", ups, boss.Xp)
	}
	if boss.EffectValue(effects.ResearchFactor) != 2 {
		t.Fatalf("boss rewards should apply")
	}
}

func TestForceAppearKeepsPauseByDefault(t *testing.T) {
	s := testSystem(t, 5, false)
	c := clock.New(4, 20, 0)
	c.Days, c.TotalDays = 150, 400
	s.CheckAppearance(c.Days)
	s.Boss().Active = true
	s.AdvanceActive(120)
	c.Pause()

	if err := s.ForceAppear(c, ForceOptions{}); err != nil {
		t.Fatalf("ForceAppear: %v", err)
	}
	boss := s.Boss()
	if boss.Available || boss.Active || boss.Layer != 0 || boss.Xp != 0 {
		t.Fatalf("boss state should be reset: %+v", boss)
	}
	if c.Days != 99 || c.TotalDays != 349 {
		t.Fatalf("clock should sit one day before appearance, got %v/%v", c.Days, c.TotalDays)
	}
	if !c.Paused {
		t.Fatalf("paused game should stay paused without Resume")
	}
	if err := s.ForceAppear(c, ForceOptions{Resume: true}); err != nil {
		t.Fatalf("ForceAppear: %v", err)
	}
	if c.Paused {
		t.Fatalf("Resume should unpause")
	}
}

func TestSoftResetKeepsCeilings(t *testing.T) {
	s := testSystem(t, 5, false)
	s.Activate("swarmNest")
	s.AdvanceActive(10)
	s.SoftReset()
	b, _ := s.Battle("swarmNest")
	if b.Level != 0 || b.MaxLevel != 1 || b.Active {
		t.Fatalf("soft reset mismatch: %+v", b.Unit)
	}
	s.FullReset()
	if b.MaxLevel != 0 {
		t.Fatalf("full reset should clear ceilings")
	}
}
