package station

import (
	"sort"

	"stationidle.ai/internal/persistence/snapshot"
)

const (
	ReasonPeriodic = "periodic"
	ReasonAdmin    = "admin"
	ReasonRebirth  = "rebirth"
	ReasonShutdown = "shutdown"
)

// ExportSnapshot captures the state after the last completed tick.
func (s *Station) ExportSnapshot(reason string) snapshot.SnapshotV1 {
	return s.exportAt(lastCompleted(s.tick.Load()), reason)
}

func (s *Station) exportAt(tick uint64, reason string) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			StationID: s.cfg.ID,
			Tick:      tick,
			RunID:     s.runID,
			Reason:    reason,

			// Commands applied since the last tick are already in the state
			// but are only logged with the next tick.
			AppliedCmds: len(s.pendingCmds),
		},
		TickRateHz:      s.cfg.TickRateHz,
		BaseGameSpeed:   s.cfg.BaseGameSpeed,
		LifespanDays:    s.cfg.LifespanDays,
		Days:            s.clock.Days,
		TotalDays:       s.clock.TotalDays,
		Paused:          s.clock.Paused,
		BossDefeated:    s.clock.BossDefeated,
		RebirthOneCount: s.rebirthOne,
		RebirthTwoCount: s.rebirthTwo,
		Accumulators:    s.graph.Stored(),
		GridStrength: snapshot.UnitV1{
			ID:       s.grid.Name,
			Level:    s.grid.Level,
			MaxLevel: s.grid.MaxLevel,
			Xp:       s.grid.Xp,
		},
		PointOfInterest: s.SelectedPOI(),
		Unlocks:         map[string]bool{},
		EventCursor:     s.nextCursor,
	}
	for _, m := range s.scheduler.Modules() {
		snap.Modules = append(snap.Modules, snapshot.ModuleV1{Name: m.Name, Active: m.Active, MaxLevel: m.MaxLevel})
	}
	for _, op := range s.scheduler.Operations() {
		snap.Operations = append(snap.Operations, snapshot.UnitV1{
			ID:       op.Name,
			Level:    op.Level,
			MaxLevel: op.MaxLevel,
			Xp:       op.Xp,
			Active:   op.Active,
		})
	}
	for _, b := range s.conflicts.Battles() {
		snap.Battles = append(snap.Battles, snapshot.UnitV1{
			ID:       b.Name,
			Level:    b.Level,
			MaxLevel: b.MaxLevel,
			Xp:       b.Xp,
			Active:   b.Active,
		})
	}
	if boss := s.conflicts.Boss(); boss != nil {
		snap.Boss = &snapshot.BossV1{
			ID:        boss.Name,
			Layer:     boss.Layer,
			MaxLayer:  boss.MaxLayer,
			Xp:        boss.Xp,
			Resolved:  boss.Resolved,
			Available: boss.Available,
			Active:    boss.Active,
		}
	}
	for _, g := range s.gates {
		if g.Gate.Completed {
			snap.Unlocks[unlockKey(g)] = true
		}
	}
	for name := range s.secrets {
		snap.Secrets = append(snap.Secrets, name)
	}
	sort.Strings(snap.Secrets)
	return snap
}

func unlockKey(g gateRef) string { return g.Kind + ":" + g.Name }
