package station

import (
	"stationidle.ai/internal/protocol"
)

// ProgressionSnapshot is the read-only view of one progress-bearing entity.
type ProgressionSnapshot struct {
	Kind           string  `json:"kind"`
	ID             string  `json:"id"`
	Level          int     `json:"level"`
	MaxLevel       int     `json:"max_level"`
	Xp             float64 `json:"xp"`
	MaxXp          float64 `json:"max_xp"`
	Active         bool    `json:"active"`
	Resolved       bool    `json:"resolved"`
	Locked         bool    `json:"locked"`
	DisplayedLevel int     `json:"displayed_level"`
}

func (p ProgressionSnapshot) obs() protocol.UnitObs {
	return protocol.UnitObs{
		ID:             p.ID,
		Level:          p.Level,
		MaxLevel:       p.MaxLevel,
		Xp:             p.Xp,
		MaxXp:          p.MaxXp,
		Active:         p.Active,
		Resolved:       p.Resolved,
		Locked:         p.Locked,
		DisplayedLevel: p.DisplayedLevel,
	}
}

// Progression looks up id among operations, modules, battles, the boss and
// the grid strength unit.
func (s *Station) Progression(id string) (ProgressionSnapshot, bool) {
	if op, ok := s.scheduler.Operation(id); ok {
		return ProgressionSnapshot{
			Kind:           KindOperation,
			ID:             op.Name,
			Level:          op.Level,
			MaxLevel:       op.MaxLevel,
			Xp:             op.Xp,
			MaxXp:          op.MaxXp(),
			Active:         op.Active,
			Locked:         !op.Gate.Open() || !op.Module.Gate.Open(),
			DisplayedLevel: op.Level,
		}, true
	}
	if m, ok := s.scheduler.Module(id); ok {
		return ProgressionSnapshot{
			Kind:           KindModule,
			ID:             m.Name,
			Level:          m.Level(),
			MaxLevel:       m.MaxLevel,
			Active:         m.Active,
			Locked:         !m.Gate.Open(),
			DisplayedLevel: m.Level(),
		}, true
	}
	if b, ok := s.conflicts.Battle(id); ok {
		return ProgressionSnapshot{
			Kind:           KindBattle,
			ID:             b.Name,
			Level:          b.Level,
			MaxLevel:       b.MaxLevel,
			Xp:             b.Xp,
			MaxXp:          b.MaxXp(),
			Active:         b.Active,
			Resolved:       b.Done(),
			Locked:         !b.Gate.Open(),
			DisplayedLevel: b.DisplayedLevel(),
		}, true
	}
	if boss := s.conflicts.Boss(); boss != nil && boss.Name == id {
		return ProgressionSnapshot{
			Kind:           KindBoss,
			ID:             boss.Name,
			Level:          boss.Layer,
			MaxLevel:       boss.MaxLayer,
			Xp:             boss.Xp,
			MaxXp:          boss.Requirement(),
			Active:         boss.Active,
			Resolved:       boss.Resolved,
			Locked:         !boss.Available && !boss.Resolved,
			DisplayedLevel: boss.DisplayedLevel(),
		}, true
	}
	if id == s.grid.Name {
		return ProgressionSnapshot{
			Kind:           KindGrid,
			ID:             s.grid.Name,
			Level:          s.grid.Level,
			MaxLevel:       s.grid.MaxLevel,
			Xp:             s.grid.Xp,
			MaxXp:          s.grid.MaxXp(),
			Active:         true,
			DisplayedLevel: s.grid.Level,
		}, true
	}
	return ProgressionSnapshot{}, false
}

// State builds the STATE message for the last completed tick without
// per-tick events.
func (s *Station) State() protocol.StateMsg {
	return s.buildState(lastCompleted(s.tick.Load()), nil)
}

func (s *Station) buildState(nowTick uint64, events []protocol.Event) protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		StationID:       s.cfg.ID,
		State:           string(s.clock.State()),
		Days:            s.clock.Days,
		TotalDays:       s.clock.TotalDays,
		Attributes:      s.Attributes(),
		Grid: protocol.GridObs{
			Load:     s.scheduler.GridLoad(),
			Strength: s.gridStrength(),
			Level:    s.grid.Level,
			Xp:       s.grid.Xp,
			MaxXp:    s.grid.MaxXp(),
		},
		Modules:         make([]protocol.UnitObs, 0, len(s.scheduler.Modules())),
		Operations:      make([]protocol.UnitObs, 0, len(s.scheduler.Operations())),
		Battles:         make([]protocol.UnitObs, 0, len(s.conflicts.Battles())),
		VisibleBattles:  []string{},
		PointOfInterest: s.SelectedPOI(),
		Events:          events,
		EventCursor:     s.nextCursor,
	}
	for _, m := range s.scheduler.Modules() {
		p, _ := s.Progression(m.Name)
		msg.Modules = append(msg.Modules, p.obs())
	}
	for _, op := range s.scheduler.Operations() {
		p, _ := s.Progression(op.Name)
		msg.Operations = append(msg.Operations, p.obs())
	}
	for _, b := range s.conflicts.Battles() {
		p, _ := s.Progression(b.Name)
		msg.Battles = append(msg.Battles, p.obs())
	}
	for _, b := range s.conflicts.Visible() {
		msg.VisibleBattles = append(msg.VisibleBattles, b.Name)
	}
	if boss := s.conflicts.Boss(); boss != nil {
		p, _ := s.Progression(boss.Name)
		obs := p.obs()
		msg.Boss = &obs
	}
	return msg
}

// Welcome describes the station to a newly joined client.
func (s *Station) Welcome(sessionID string) protocol.WelcomeMsg {
	d := s.cats.Digests()
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		StationID:       s.cfg.ID,
		RunID:           s.runID,
		Params: protocol.StationParams{
			TickRateHz:        s.cfg.TickRateHz,
			BaseGameSpeed:     s.cfg.BaseGameSpeed,
			LifespanDays:      s.cfg.LifespanDays,
			BossAppearanceDay: s.cfg.BossAppearanceDay,
			MaxVisibleBattles: s.cfg.MaxVisibleBattles,
		},
		Catalogs: protocol.CatalogDigests{
			AttributesDigest:   d["attributes"],
			ModulesDigest:      d["modules"],
			FactionsDigest:     d["factions"],
			BattlesDigest:      d["battles"],
			SectorsDigest:      d["sectors"],
			GridStrengthDigest: d["grid_strength"],
		},
	}
}
