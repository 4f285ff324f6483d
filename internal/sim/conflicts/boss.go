package conflicts

import (
	"fmt"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/effects"
	"stationidle.ai/internal/sim/progress"
	"stationidle.ai/internal/sim/scheduler"
)

type LayerSpec struct {
	MaxXp   float64
	Effects []effects.Definition
}

type BossSpec struct {
	Name          string
	Title         string
	Faction       string
	AppearanceDay float64
	Layers        []LayerSpec
	Rewards       []effects.Definition
}

// Boss is the layered conflict. Level is the current layer and each layer
// carries its own effect set.
type Boss struct {
	*progress.Layered
	Title         string
	Faction       string
	AppearanceDay float64
	Layers        []LayerSpec
	Rewards       []effects.Definition
	Available     bool
	Active        bool
}

func newBoss(spec BossSpec) (*Boss, error) {
	if len(spec.Layers) == 0 {
		return nil, fmt.Errorf("boss %q: no layers", spec.Name)
	}
	stages := make([]float64, len(spec.Layers))
	for i, l := range spec.Layers {
		if l.MaxXp <= 0 {
			return nil, fmt.Errorf("boss %q layer %d: max_xp must be positive", spec.Name, i)
		}
		stages[i] = l.MaxXp
	}
	return &Boss{
		Layered:       progress.NewLayered(spec.Name, stages),
		Title:         spec.Title,
		Faction:       spec.Faction,
		AppearanceDay: spec.AppearanceDay,
		Layers:        spec.Layers,
		Rewards:       spec.Rewards,
	}, nil
}

func (b *Boss) activate() scheduler.Admission {
	if b.Resolved {
		return scheduler.Admission{Code: protocol.ErrResolved, Reason: "boss already defeated"}
	}
	if !b.Available {
		return scheduler.Admission{Code: protocol.ErrNotVisible, Reason: "boss has not appeared"}
	}
	b.Active = true
	return scheduler.Admission{Accepted: true}
}

func (b *Boss) DisplayedLevel() int { return b.LayersCleared() }

func (b *Boss) Effects() []effects.Definition {
	if b.Resolved {
		return b.Rewards
	}
	if b.Active && b.Layer < len(b.Layers) {
		return b.Layers[b.Layer].Effects
	}
	return nil
}

func (b *Boss) EffectValue(t effects.Type) float64 {
	return effects.ValueOf(b.Effects(), t, effects.ScalingFlat, 0)
}

func (b *Boss) Contributing() bool { return b.Resolved || b.Active }
