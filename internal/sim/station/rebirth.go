package station

import "stationidle.ai/internal/protocol"

// rebirth ends the current run. The outgoing state goes to the snapshot sink
// first so hosts can archive it. Tier two also clears level ceilings.
func (s *Station) rebirth(nowTick uint64, full bool) {
	if s.snapshotSink != nil {
		select {
		case s.snapshotSink <- s.exportAt(lastCompleted(nowTick), ReasonRebirth):
		default:
			s.logger.Printf("station: rebirth snapshot dropped, sink is backed up")
		}
	}

	tier := 1
	if full {
		tier = 2
		s.rebirthTwo++
		s.scheduler.FullReset()
		s.conflicts.FullReset()
		s.grid.FullReset()
	} else {
		s.rebirthOne++
		s.scheduler.SoftReset()
		s.conflicts.SoftReset()
		s.grid.UpdateMaxLevelAndReset()
	}
	s.clock.ResetRun()
	s.graph.Reset()
	for _, g := range s.gates {
		g.Gate.Reset()
	}
	s.attrs = s.graph.ResolveAll()
	s.evaluateGates(nowTick, false)
	s.selectDefaultPOI()
	for _, name := range s.scheduler.EnforceCapacity() {
		s.logger.Printf("station: module %s switched off after rebirth, grid too weak", name)
	}
	s.attrs = s.graph.ResolveAll()

	previous := s.runID
	count := s.rebirthOne
	if full {
		count = s.rebirthTwo
	}
	s.emit(nowTick, EventRebirth, protocol.Event{"tier": tier, "count": count, "previous_run_id": previous})
	s.StartNewSession()
}

func lastCompleted(nowTick uint64) uint64 {
	if nowTick == 0 {
		return 0
	}
	return nowTick - 1
}
