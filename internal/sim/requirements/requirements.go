package requirements

import "fmt"

type Kind string

const (
	KindAttribute             Kind = "attribute"
	KindOperationLevel        Kind = "operation_level"
	KindAge                   Kind = "age"
	KindFactionLevelsDefeated Kind = "faction_levels_defeated"
	KindGalacticSecret        Kind = "galactic_secret"
)

type Scope string

const (
	ScopePermanent   Scope = "permanent"
	ScopePlaythrough Scope = "playthrough"
	ScopeUpdate      Scope = "update"
)

// Context is the read-only view a requirement is checked against.
type Context interface {
	Attribute(name string) float64
	OperationLevel(name string) int
	Days() float64
	FactionLevelsDefeated(faction string) int
	HasSecret(name string) bool
}

type Requirement struct {
	Kind   Kind    `json:"kind"`
	Target string  `json:"target,omitempty"`
	Value  float64 `json:"value,omitempty"`
}

func (r Requirement) Validate() error {
	switch r.Kind {
	case KindAge:
		return nil
	case KindAttribute, KindOperationLevel, KindFactionLevelsDefeated, KindGalacticSecret:
		if r.Target == "" {
			return fmt.Errorf("%s requirement: empty target", r.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown requirement kind %q", r.Kind)
	}
}

func Met(r Requirement, ctx Context) bool {
	switch r.Kind {
	case KindAttribute:
		return ctx.Attribute(r.Target) >= r.Value
	case KindOperationLevel:
		return float64(ctx.OperationLevel(r.Target)) >= r.Value
	case KindAge:
		return ctx.Days() >= r.Value
	case KindFactionLevelsDefeated:
		return float64(ctx.FactionLevelsDefeated(r.Target)) >= r.Value
	case KindGalacticSecret:
		return ctx.HasSecret(r.Target)
	default:
		return false
	}
}

// Gate unlocks an entity once all requirements hold. Outside ScopeUpdate the
// unlock is sticky until Reset.
type Gate struct {
	Requirements []Requirement
	Scope        Scope
	Completed    bool
}

func NewGate(reqs []Requirement, scope Scope) *Gate {
	if scope == "" {
		scope = ScopePlaythrough
	}
	g := &Gate{Requirements: append([]Requirement(nil), reqs...), Scope: scope}
	if len(g.Requirements) == 0 {
		g.Completed = true
	}
	return g
}

// Evaluate reports whether the gate is open and whether it opened on this
// call.
func (g *Gate) Evaluate(ctx Context) (open bool, justOpened bool) {
	if g == nil {
		return true, false
	}
	if g.Completed && g.Scope != ScopeUpdate {
		return true, false
	}
	met := true
	for _, r := range g.Requirements {
		if !Met(r, ctx) {
			met = false
			break
		}
	}
	justOpened = met && !g.Completed
	g.Completed = met
	return met, justOpened
}

func (g *Gate) Open() bool { return g == nil || g.Completed }

// Reset relocks the gate for a new run. Permanent gates survive.
func (g *Gate) Reset() {
	if g == nil || len(g.Requirements) == 0 || g.Scope == ScopePermanent {
		return
	}
	g.Completed = false
}
