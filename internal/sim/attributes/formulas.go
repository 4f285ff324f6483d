package attributes

import "math"

const (
	FormulaHeat           = "heat"
	FormulaGridLoad       = "grid_load"
	FormulaGridStrength   = "grid_strength"
	AccumulatorPopulation = "population"
)

// Heat is danger not covered by military, never below 1.
func Heat(v Values) float64 {
	return math.Max(v["danger"]-v["military"], 1)
}

// PopulationDelta is growth minus population decay driven by heat.
func PopulationDelta(heatFactor float64) Delta {
	return func(pop float64, v Values) float64 {
		return v["growth"] - pop*heatFactor*v["heat"]
	}
}
