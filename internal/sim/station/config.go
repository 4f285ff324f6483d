package station

import "stationidle.ai/internal/sim/tuning"

type Config struct {
	ID                 string
	TickRateHz         int
	BaseGameSpeed      float64
	LifespanDays       float64
	SnapshotEveryTicks int

	OperationBaseXp      float64
	PopulationHeatFactor float64
	GridStrengthBase     float64
	MaxVisibleBattles    int

	BossAppearanceDay float64
	BossAutoEngage    bool
	// ForceAppearResume unpauses the clock when an operator forces the boss.
	ForceAppearResume bool

	// EventLogSize bounds the cursor-addressable event history.
	EventLogSize int
}

// ConfigFromTuning maps tuning.yaml onto a station config.
func ConfigFromTuning(id string, t tuning.Tuning) Config {
	return Config{
		ID:                   id,
		TickRateHz:           t.TickRateHz,
		BaseGameSpeed:        t.BaseGameSpeed,
		LifespanDays:         t.LifespanDays,
		SnapshotEveryTicks:   t.SnapshotEveryTicks,
		OperationBaseXp:      t.OperationBaseXp,
		PopulationHeatFactor: t.PopulationHeatFactor,
		GridStrengthBase:     t.GridStrengthBase,
		MaxVisibleBattles:    t.MaxVisibleBattles,
		BossAppearanceDay:    t.Boss.AppearanceCycle,
		BossAutoEngage:       t.Boss.AutoEngage,
		ForceAppearResume:    t.Boss.ForceAppearResume,
	}
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "station-1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.BaseGameSpeed < 0 {
		c.BaseGameSpeed = 0
	}
	if c.LifespanDays < 0 {
		c.LifespanDays = 0
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
	if c.OperationBaseXp <= 0 {
		c.OperationBaseXp = 10
	}
	if c.PopulationHeatFactor < 0 {
		c.PopulationHeatFactor = 0.01
	}
	if c.GridStrengthBase < 0 {
		c.GridStrengthBase = 1
	}
	if c.MaxVisibleBattles <= 0 {
		c.MaxVisibleBattles = 5
	}
	if c.BossAppearanceDay < 0 {
		c.BossAppearanceDay = 0
	}
	if c.EventLogSize <= 0 {
		c.EventLogSize = 1024
	}
}
