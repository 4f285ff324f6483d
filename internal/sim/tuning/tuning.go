package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int     `yaml:"tick_rate_hz"`
	BaseGameSpeed      float64 `yaml:"base_game_speed"`
	LifespanDays       float64 `yaml:"lifespan_days"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks"`

	OperationBaseXp      float64 `yaml:"operation_base_xp"`
	PopulationHeatFactor float64 `yaml:"population_heat_factor"`
	GridStrengthBase     float64 `yaml:"grid_strength_base"`
	MaxVisibleBattles    int     `yaml:"max_visible_battles"`

	Boss Boss `yaml:"boss"`
}

type Boss struct {
	AppearanceCycle   float64 `yaml:"appearance_cycle"`
	AutoEngage        bool    `yaml:"auto_engage"`
	ForceAppearResume bool    `yaml:"force_appear_resume"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:      "1.0",
		TickRateHz:           20,
		BaseGameSpeed:        4,
		SnapshotEveryTicks:   3600,
		OperationBaseXp:      10,
		PopulationHeatFactor: 0.01,
		GridStrengthBase:     1,
		MaxVisibleBattles:    5,
		Boss: Boss{
			AppearanceCycle: 1000,
			AutoEngage:      true,
		},
	}
}

// Load reads path over Defaults, so an absent key keeps its default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("tick_rate_hz must be positive")
	case t.BaseGameSpeed < 0:
		return fmt.Errorf("base_game_speed must not be negative")
	case t.LifespanDays < 0:
		return fmt.Errorf("lifespan_days must not be negative")
	case t.PopulationHeatFactor < 0:
		return fmt.Errorf("population_heat_factor must not be negative")
	case t.MaxVisibleBattles < 0:
		return fmt.Errorf("max_visible_battles must not be negative")
	}
	return nil
}
