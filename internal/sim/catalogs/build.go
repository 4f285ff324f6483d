package catalogs

import (
	"stationidle.ai/internal/sim/conflicts"
	"stationidle.ai/internal/sim/progress"
	"stationidle.ai/internal/sim/scheduler"
)

// ModuleSpecs flattens categories into scheduler input. Every call builds
// fresh requirement gates.
func (c *Catalogs) ModuleSpecs() []scheduler.ModuleSpec {
	var out []scheduler.ModuleSpec
	for _, cat := range c.Modules.Categories {
		for _, m := range cat.Modules {
			ms := scheduler.ModuleSpec{
				Name:            m.Name,
				Title:           m.Title,
				Category:        cat.Name,
				ActiveByDefault: m.ActiveByDefault,
				Gate:            m.Requirements.Gate(),
			}
			for _, comp := range m.Components {
				cs := scheduler.ComponentSpec{Name: comp.Name}
				for _, op := range comp.Operations {
					cs.Operations = append(cs.Operations, scheduler.OperationSpec{
						Name:     op.Name,
						Title:    op.Title,
						GridLoad: op.GridLoad,
						Effects:  op.Effects,
						Scaling:  op.Scaling,
						Curve:    op.CurveDef.Build(),
						Gate:     op.Requirements.Gate(),
					})
				}
				ms.Components = append(ms.Components, cs)
			}
			out = append(out, ms)
		}
	}
	return out
}

// BattleSpecs uses the faction curve unless a battle overrides it.
func (c *Catalogs) BattleSpecs() []conflicts.BattleSpec {
	out := make([]conflicts.BattleSpec, 0, len(c.Battles.Battles))
	for _, b := range c.Battles.Battles {
		var curve progress.Curve
		if b.Curve != nil {
			curve = b.Curve.Build()
		} else {
			curve = c.Factions.ByName[b.Faction].CurveDef.Build()
		}
		out = append(out, conflicts.BattleSpec{
			Name:        b.Name,
			Title:       b.Title,
			Faction:     b.Faction,
			TargetLevel: b.TargetLevel,
			Curve:       curve,
			Effects:     b.Effects,
			Rewards:     b.Rewards,
			Gate:        b.Requirements.Gate(),
		})
	}
	return out
}

func (c *Catalogs) BossSpec(appearanceDay float64) *conflicts.BossSpec {
	b := c.Battles.Boss
	if b == nil {
		return nil
	}
	spec := &conflicts.BossSpec{
		Name:          b.Name,
		Title:         b.Title,
		Faction:       b.Faction,
		AppearanceDay: appearanceDay,
		Rewards:       b.Rewards,
	}
	for _, l := range b.Layers {
		spec.Layers = append(spec.Layers, conflicts.LayerSpec{MaxXp: l.MaxXp, Effects: l.Effects})
	}
	return spec
}
