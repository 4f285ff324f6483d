package station

// StationMetrics is a thread-safe read-only view of key runtime signals.
// It is updated from the loop goroutine and read from HTTP handlers and
// tests.
type StationMetrics struct {
	Tick uint64 `json:"tick"`

	State     string  `json:"state"`
	Days      float64 `json:"days"`
	TotalDays float64 `json:"total_days"`
	Clients   int     `json:"clients"`

	GridLoad     float64 `json:"grid_load"`
	GridStrength float64 `json:"grid_strength"`

	ActiveOperations int `json:"active_operations"`
	ActiveBattles    int `json:"active_battles"`
	BossLayer        int `json:"boss_layer"`

	RebirthOne int `json:"rebirth_one"`
	RebirthTwo int `json:"rebirth_two"`

	EventCursor uint64 `json:"event_cursor"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Attributes map[string]float64 `json:"attributes,omitempty"`
}

type QueueDepths struct {
	Commands int `json:"commands"`
	Join     int `json:"join"`
	Leave    int `json:"leave"`
}

func (s *Station) Metrics() StationMetrics {
	if s == nil {
		return StationMetrics{}
	}
	v := s.metrics.Load()
	if v == nil {
		return StationMetrics{}
	}
	m, ok := v.(StationMetrics)
	if !ok {
		return StationMetrics{}
	}
	return m
}

func (s *Station) publishMetrics(nextTick uint64, stepMS float64) {
	ops := 0
	for _, m := range s.scheduler.Modules() {
		if !m.Active {
			continue
		}
		for _, c := range m.Components {
			if c.ActiveOperation() != nil {
				ops++
			}
		}
	}
	battles := 0
	for _, b := range s.conflicts.Battles() {
		if b.Active {
			battles++
		}
	}
	bossLayer := 0
	if boss := s.conflicts.Boss(); boss != nil {
		bossLayer = boss.LayersCleared()
	}
	s.metrics.Store(StationMetrics{
		Tick:             nextTick,
		State:            string(s.clock.State()),
		Days:             s.clock.Days,
		TotalDays:        s.clock.TotalDays,
		Clients:          len(s.clients),
		GridLoad:         s.scheduler.GridLoad(),
		GridStrength:     s.gridStrength(),
		ActiveOperations: ops,
		ActiveBattles:    battles,
		BossLayer:        bossLayer,
		RebirthOne:       s.rebirthOne,
		RebirthTwo:       s.rebirthTwo,
		EventCursor:      s.nextCursor,
		QueueDepths: QueueDepths{
			Commands: len(s.cmds),
			Join:     len(s.join),
			Leave:    len(s.leave),
		},
		StepMS:     stepMS,
		Attributes: s.Attributes(),
	})
}
