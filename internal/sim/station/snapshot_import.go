package station

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"stationidle.ai/internal/persistence/snapshot"
)

// ImportSnapshot replaces the in-memory state with snap and sets the tick to
// snap.Header.Tick+1 (the next tick to simulate). Field-level damage is
// repaired: missing values keep defaults, corrupt numbers are clamped and
// unknown names are skipped. Each repair is returned as a warning.
//
// This must be called only when the station is stopped or from the loop
// goroutine.
func (s *Station) ImportSnapshot(snap snapshot.SnapshotV1) ([]string, error) {
	if snap.Header.Version > snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version: %d", snap.Header.Version)
	}
	var warns []string
	warnf := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		warns = append(warns, msg)
		s.logger.Printf("station: import: %s", msg)
	}
	if snap.Header.StationID != "" && snap.Header.StationID != s.cfg.ID {
		warnf("snapshot belongs to station %q, loading into %q", snap.Header.StationID, s.cfg.ID)
	}
	if snap.TickRateHz > 0 && snap.TickRateHz != s.cfg.TickRateHz {
		warnf("snapshot tick_rate_hz=%d differs from configured %d", snap.TickRateHz, s.cfg.TickRateHz)
	}

	s.tick.Store(snap.Header.Tick + 1)
	s.runID = snap.Header.RunID
	if s.runID == "" {
		s.runID = uuid.NewString()
	}

	s.clock.Days = cleanNonNegative(snap.Days)
	s.clock.TotalDays = math.Max(cleanNonNegative(snap.TotalDays), s.clock.Days)
	s.clock.Paused = snap.Paused
	s.clock.BossDefeated = snap.BossDefeated
	s.rebirthOne = maxInt(snap.RebirthOneCount, 0)
	s.rebirthTwo = maxInt(snap.RebirthTwoCount, 0)

	s.grid.Restore(snap.GridStrength.Level, snap.GridStrength.MaxLevel, snap.GridStrength.Xp)

	for _, mv := range snap.Modules {
		m, ok := s.scheduler.Module(mv.Name)
		if !ok {
			warnf("unknown module %q skipped", mv.Name)
			continue
		}
		m.Active = mv.Active
		m.MaxLevel = maxInt(mv.MaxLevel, 0)
	}
	for _, uv := range snap.Operations {
		op, ok := s.scheduler.Operation(uv.ID)
		if !ok {
			warnf("unknown operation %q skipped", uv.ID)
			continue
		}
		op.Restore(uv.Level, uv.MaxLevel, uv.Xp)
		op.Active = uv.Active
	}
	for _, uv := range snap.Battles {
		b, ok := s.conflicts.Battle(uv.ID)
		if !ok {
			warnf("unknown battle %q skipped", uv.ID)
			continue
		}
		b.Restore(uv.Level, uv.MaxLevel, uv.Xp)
		b.Active = uv.Active
	}
	if bv := snap.Boss; bv != nil {
		if boss := s.conflicts.Boss(); boss != nil && boss.Name == bv.ID {
			boss.Restore(bv.Layer, bv.Xp, bv.Resolved)
			boss.MaxLayer = maxInt(bv.MaxLayer, boss.Layer)
			boss.Available = bv.Available || bv.Resolved
			boss.Active = bv.Active || boss.Resolved
		} else {
			warnf("unknown boss %q skipped", bv.ID)
		}
	}

	s.secrets = map[string]bool{}
	for _, name := range snap.Secrets {
		if _, ok := s.cats.Secrets.ByName[name]; !ok {
			warnf("unknown secret %q skipped", name)
			continue
		}
		s.secrets[name] = true
	}

	known := map[string]bool{}
	for _, g := range s.gates {
		key := unlockKey(g)
		known[key] = true
		g.Gate.Completed = snap.Unlocks[key]
	}
	for key := range snap.Unlocks {
		if !known[key] {
			warnf("unknown unlock %q skipped", key)
		}
	}

	for _, name := range s.graph.Restore(snap.Accumulators) {
		warnf("unknown accumulator %q skipped", name)
	}

	s.scheduler.NormalizeComponents()
	for _, name := range s.scheduler.EnforceCapacity() {
		warnf("module %s switched off, grid load exceeded strength", name)
	}

	s.selectPOI(nil)
	if p, ok := s.poiByName[snap.PointOfInterest]; ok && p.Gate.Open() {
		s.selectPOI(p)
	} else {
		if snap.PointOfInterest != "" {
			warnf("point of interest %q unavailable, using default", snap.PointOfInterest)
		}
		s.selectDefaultPOI()
	}

	s.nextCursor = snap.EventCursor
	s.eventLog = nil
	s.tickEvents = nil
	s.pendingCmds = nil

	s.attrs = s.graph.ResolveAll()
	s.lastState = s.clock.State()
	return warns, nil
}

func cleanNonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
