package station

import "stationidle.ai/internal/protocol"

const (
	EventLevelUp           = "LEVEL_UP"
	EventConflictResolved  = "CONFLICT_RESOLVED"
	EventBossAppeared      = "BOSS_APPEARED"
	EventTerminalReached   = "TERMINAL_REACHED"
	EventNewSessionStarted = "NEW_SESSION_STARTED"
	EventStateChanged      = "STATE_CHANGED"
	EventUnlocked          = "UNLOCKED"
	EventLocked            = "LOCKED"
	EventRebirth           = "REBIRTH"
)

// Entity kinds carried in event payloads and progression views.
const (
	KindModule    = "module"
	KindOperation = "operation"
	KindBattle    = "battle"
	KindBoss      = "boss"
	KindGrid      = "grid"
	KindPOI       = "point_of_interest"
)

type EventItem struct {
	Cursor uint64
	Tick   uint64
	Event  protocol.Event
}

// EventHandler receives every event synchronously on the loop goroutine. It
// must not block.
type EventHandler func(tick uint64, e protocol.Event)

func (s *Station) emit(nowTick uint64, typ string, fields protocol.Event) {
	e := protocol.Event{"t": nowTick, "type": typ}
	for k, v := range fields {
		e[k] = v
	}
	s.nextCursor++
	cursor := s.nextCursor
	e["cursor"] = cursor

	s.eventLog = append(s.eventLog, EventItem{Cursor: cursor, Tick: nowTick, Event: e})
	if over := len(s.eventLog) - s.cfg.EventLogSize; over > 0 {
		n := copy(s.eventLog, s.eventLog[over:])
		s.eventLog = s.eventLog[:n]
	}
	s.tickEvents = append(s.tickEvents, e)

	for _, h := range s.handlers {
		h(nowTick, e)
	}
	if s.eventLogger != nil {
		_ = s.eventLogger.WriteEvent(EventLogEntry{Tick: nowTick, Cursor: cursor, RunID: s.runID, Event: e})
	}
}

// EventsAfter returns up to limit retained events with a cursor above
// cursor. Loop goroutine only; other goroutines use RequestEventsAfter.
func (s *Station) EventsAfter(cursor uint64, limit int) ([]EventItem, uint64) {
	limit = protocol.ClampEventBatchLimit(limit)
	out := make([]EventItem, 0, limit)
	next := cursor
	for _, it := range s.eventLog {
		if it.Cursor <= cursor {
			continue
		}
		out = append(out, it)
		next = it.Cursor
		if len(out) >= limit {
			break
		}
	}
	return out, next
}

func (s *Station) EventCursor() uint64 { return s.nextCursor }
