package station

import (
	"encoding/json"
	"math"
	"time"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/requirements"
	"stationidle.ai/internal/sim/scheduler"
)

// StepOnce advances the station by a single tick using the same ordering as
// the server loop. It is primarily intended for deterministic replays and
// tests.
func (s *Station) StepOnce() (tick uint64, digest string) {
	tick = s.tick.Load()
	digest = s.step(tick)
	return tick, digest
}

func (s *Station) step(nowTick uint64) string {
	stepStart := time.Now()

	// The tick that exhausts the lifespan still settles its progress.
	scale := s.clock.ApplySpeed
	terminal := s.clock.Advance()
	if terminal {
		scale = s.clock.SettleSpeed
		s.emit(nowTick, EventTerminalReached, protocol.Event{"days": s.clock.Days})
	}

	if s.conflicts.CheckAppearance(s.clock.Days) {
		boss := s.conflicts.Boss()
		s.emit(nowTick, EventBossAppeared, protocol.Event{"target": boss.Name, "engaged": boss.Active})
	}

	if terminal || s.clock.IsPlaying() {
		s.advanceUnits(nowTick, scale)
	}

	s.attrs = s.graph.Step(scale)
	s.evaluateGates(nowTick, true)
	s.noteState(nowTick)

	// Bookkeeping.
	digest := s.stateDigest(nowTick)
	if s.tickLogger != nil {
		_ = s.tickLogger.WriteTick(TickLogEntry{
			Tick:     nowTick,
			RunID:    s.runID,
			State:    string(s.clock.State()),
			Days:     s.clock.Days,
			Commands: s.pendingCmds,
			Digest:   digest,
		})
	}
	s.pendingCmds = nil

	if s.snapshotSink != nil && nowTick != 0 && s.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(s.cfg.SnapshotEveryTicks) == 0 {
			select {
			case s.snapshotSink <- s.exportAt(nowTick, ReasonPeriodic):
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	if len(s.clients) > 0 {
		if b, err := json.Marshal(s.buildState(nowTick, s.tickEvents)); err == nil {
			for _, cl := range s.clients {
				sendLatest(cl.Out, b)
			}
		}
	}
	s.tickEvents = nil

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := s.tick.Add(1)
	s.publishMetrics(nextTick, stepMS)
	return digest
}

// advanceUnits feeds xp into operations, conflicts and the grid. Gains read
// the attributes resolved at the end of the previous tick. scale turns a
// per-day rate into this tick's share.
func (s *Station) advanceUnits(nowTick uint64, scale func(float64) float64) {
	opGain := scale(math.Round(s.cfg.OperationBaseXp * math.Max(1, s.attrs["research"])))
	ups := s.scheduler.AdvanceActive(func(*scheduler.Operation) float64 { return opGain })
	for _, u := range ups {
		s.emit(nowTick, EventLevelUp, protocol.Event{"kind": KindOperation, "target": u.Operation, "module": u.Module, "level": u.Level, "gained": u.Gained})
	}

	combat := scale(s.attrs["military"])
	bups, done := s.conflicts.AdvanceActive(combat)
	for _, u := range bups {
		kind := KindBattle
		if s.conflicts.IsBoss(u.Operation) {
			kind = KindBoss
		}
		s.emit(nowTick, EventLevelUp, protocol.Event{"kind": kind, "target": u.Operation, "faction": u.Module, "level": u.Level, "gained": u.Gained})
	}
	for _, r := range done {
		e := protocol.Event{"target": r.Name, "faction": r.Faction, "boss": r.Boss}
		if r.Boss {
			e["layers_cleared"] = r.LayersCleared
			s.clock.BossDefeated = true
		} else {
			e["level"] = r.Level
		}
		s.emit(nowTick, EventConflictResolved, e)
	}

	if n := s.grid.Do(scale(s.attrs["energy"])); n > 0 {
		s.emit(nowTick, EventLevelUp, protocol.Event{"kind": KindGrid, "target": s.grid.Name, "level": s.grid.Level, "gained": n})
	}
}

// noteState raises STATE_CHANGED when the clock state moved since the last
// call.
func (s *Station) noteState(nowTick uint64) {
	st := s.clock.State()
	if st == s.lastState {
		return
	}
	s.emit(nowTick, EventStateChanged, protocol.Event{"from": string(s.lastState), "to": string(st)})
	s.lastState = st
}

func (s *Station) collectGates() {
	s.gates = s.gates[:0]
	for _, m := range s.scheduler.Modules() {
		if m.Gate != nil {
			s.gates = append(s.gates, gateRef{Kind: KindModule, Name: m.Name, Gate: m.Gate})
		}
		for _, c := range m.Components {
			for _, op := range c.Operations {
				if op.Gate != nil {
					s.gates = append(s.gates, gateRef{Kind: KindOperation, Name: op.Name, Gate: op.Gate})
				}
			}
		}
	}
	for _, b := range s.conflicts.Battles() {
		if b.Gate != nil {
			s.gates = append(s.gates, gateRef{Kind: KindBattle, Name: b.Name, Gate: b.Gate})
		}
	}
	for _, p := range s.pois {
		if p.Gate != nil {
			s.gates = append(s.gates, gateRef{Kind: KindPOI, Name: p.Name, Gate: p.Gate})
		}
	}
}

// evaluateGates checks every requirement set against the current state. With
// emit set, newly opened gates raise UNLOCKED and closed ones LOCKED. Only
// update-scoped gates close; whatever they guard is switched off.
func (s *Station) evaluateGates(nowTick uint64, emit bool) {
	for _, g := range s.gates {
		wasOpen := g.Gate.Open()
		open, opened := g.Gate.Evaluate(s)
		if opened && emit {
			s.emit(nowTick, EventUnlocked, protocol.Event{"kind": g.Kind, "target": g.Name})
		}
		if open || g.Gate.Scope != requirements.ScopeUpdate {
			continue
		}
		off := s.switchOffLocked(g)
		if wasOpen && emit {
			s.emit(nowTick, EventLocked, protocol.Event{"kind": g.Kind, "target": g.Name, "switched_off": off})
		}
	}
	// An update-scoped gate may close under the selected point of interest.
	if s.poi != nil && !s.poi.Gate.Open() {
		s.selectDefaultPOI()
	}
}

// switchOffLocked deactivates the entity behind a closed gate and reports
// whether it was running.
func (s *Station) switchOffLocked(g gateRef) bool {
	switch g.Kind {
	case KindOperation:
		if op, ok := s.scheduler.Operation(g.Name); ok && op.Active {
			op.Active = false
			return true
		}
	case KindModule:
		if m, ok := s.scheduler.Module(g.Name); ok && m.Active {
			m.Active = false
			return true
		}
	case KindBattle:
		if b, ok := s.conflicts.Battle(g.Name); ok && b.Active {
			b.Active = false
			return true
		}
	}
	return false
}

func (s *Station) selectPOI(p *PointOfInterest) {
	if s.poi != nil {
		s.poi.Selected = false
	}
	s.poi = p
	if p != nil {
		p.Selected = true
	}
}

// selectDefaultPOI picks the first unlocked point of interest.
func (s *Station) selectDefaultPOI() {
	for _, p := range s.pois {
		if p.Gate.Open() {
			s.selectPOI(p)
			return
		}
	}
	s.selectPOI(nil)
}
