package effects

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type Type string

const (
	Danger         Type = "Danger"
	Energy         Type = "Energy"
	EnergyFactor   Type = "EnergyFactor"
	Growth         Type = "Growth"
	Industry       Type = "Industry"
	Military       Type = "Military"
	MilitaryFactor Type = "MilitaryFactor"
	Research       Type = "Research"
	ResearchFactor Type = "ResearchFactor"
)

type Operator string

const (
	Additive       Operator = "+"
	Multiplicative Operator = "x"
)

var operators = map[Type]Operator{
	Danger:         Additive,
	Energy:         Additive,
	EnergyFactor:   Multiplicative,
	Growth:         Additive,
	Industry:       Additive,
	Military:       Additive,
	MilitaryFactor: Multiplicative,
	Research:       Additive,
	ResearchFactor: Multiplicative,
}

// byName maps lowercase and display names back to types. Built once.
var byName = func() map[string]Type {
	m := make(map[string]Type, len(operators)*2)
	for t := range operators {
		m[string(t)] = t
		m[strings.ToLower(string(t))] = t
	}
	return m
}()

func ParseType(name string) (Type, error) {
	if t, ok := byName[name]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown effect type %q", name)
}

func (t Type) Operator() Operator { return operators[t] }

func (t Type) Valid() bool {
	_, ok := operators[t]
	return ok
}

func (t Type) Additive() bool { return operators[t] == Additive }

// Name is the reverse lookup of ParseType.
func (t Type) Name() string { return string(t) }

func AllTypes() []Type {
	out := make([]Type, 0, len(operators))
	for t := range operators {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type Definition struct {
	Type      Type    `json:"effect_type"`
	BaseValue float64 `json:"base_value"`
}

type Source interface {
	Effects() []Definition
	EffectValue(t Type) float64
	Contributing() bool
}

// Resolve folds every contributing source's value for t. Sources that do not
// carry t are skipped, so an empty product is 1 and an empty sum is 0.
func Resolve(t Type, sources []Source) float64 {
	additive := t.Additive()
	acc := 0.0
	if !additive {
		acc = 1
	}
	for _, s := range sources {
		if s == nil || !s.Contributing() || !Has(s, t) {
			continue
		}
		v := s.EffectValue(t)
		if math.IsNaN(v) {
			continue
		}
		if additive {
			acc += v
		} else {
			acc *= v
		}
	}
	return acc
}

// Total is additiveSum * multiplicativeProduct over types. With no additive
// type in the list the sum is 1.
func Total(types []Type, sources []Source) float64 {
	sum := 0.0
	hasAdditive := false
	product := 1.0
	for _, t := range types {
		if t.Additive() {
			hasAdditive = true
			sum += Resolve(t, sources)
		} else {
			product *= Resolve(t, sources)
		}
	}
	if !hasAdditive {
		sum = 1
	}
	return sum * product
}

func Has(s Source, t Type) bool {
	for _, d := range s.Effects() {
		if d.Type == t {
			return true
		}
	}
	return false
}

type Scaling string

const (
	ScalingLinear Scaling = "linear"
	ScalingLog    Scaling = "log"
	ScalingFlat   Scaling = "flat"
)

// LevelValue is the effective value of d for a source at level.
func LevelValue(d Definition, rule Scaling, level int) float64 {
	l := float64(level)
	switch rule {
	case ScalingFlat:
		return d.BaseValue
	case ScalingLog:
		f := math.Log10(l + 1)
		if d.Type.Additive() {
			return d.BaseValue * (1 + f)
		}
		return 1 + d.BaseValue*f
	default:
		if d.Type.Additive() {
			return d.BaseValue * (l + 1)
		}
		return 1 + d.BaseValue*l
	}
}

func ValueOf(defs []Definition, t Type, rule Scaling, level int) float64 {
	for _, d := range defs {
		if d.Type == t {
			return LevelValue(d, rule, level)
		}
	}
	if t.Additive() {
		return 0
	}
	return 1
}

// Static is a Source with constant values, used for conflicts, rewards and
// points of interest.
type Static struct {
	Defs   []Definition
	Active bool
}

func (s Static) Effects() []Definition { return s.Defs }

func (s Static) EffectValue(t Type) float64 { return ValueOf(s.Defs, t, ScalingFlat, 0) }

func (s Static) Contributing() bool { return s.Active }
