package attributes

import (
	"fmt"
	"log"
	"math"
	"sort"

	"stationidle.ai/internal/sim/effects"
)

type Kind string

const (
	KindComposed    Kind = "composed"
	KindFormula     Kind = "formula"
	KindAccumulator Kind = "accumulator"
)

type Definition struct {
	Name        string         `json:"name"`
	Title       string         `json:"title"`
	Kind        Kind           `json:"kind"`
	EffectTypes []effects.Type `json:"effect_types,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	Formula     string         `json:"formula,omitempty"`
	Min         *float64       `json:"min,omitempty"`
	Initial     float64        `json:"initial,omitempty"`
}

type Values map[string]float64

// Formula computes a derived attribute from already-resolved values.
type Formula func(v Values) float64

// Delta is the per-tick change of an accumulator before speed scaling.
type Delta func(current float64, v Values) float64

type Options struct {
	Sources  func() []effects.Source
	Formulas map[string]Formula
	Deltas   map[string]Delta
	Logger   *log.Logger
}

type Graph struct {
	defs     map[string]Definition
	order    []string
	cyclic   map[string]bool
	sources  func() []effects.Source
	formulas map[string]Formula
	deltas   map[string]Delta
	logger   *log.Logger

	values   Values
	stored   map[string]float64
	warnings []string
}

func New(defs []Definition, opts Options) *Graph {
	g := &Graph{
		defs:     map[string]Definition{},
		cyclic:   map[string]bool{},
		sources:  opts.Sources,
		formulas: opts.Formulas,
		deltas:   opts.Deltas,
		logger:   opts.Logger,
		values:   Values{},
		stored:   map[string]float64{},
	}
	if g.sources == nil {
		g.sources = func() []effects.Source { return nil }
	}
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		if _, dup := g.defs[d.Name]; dup {
			g.warn("attribute %q defined twice, keeping first", d.Name)
			continue
		}
		g.defs[d.Name] = d
		names = append(names, d.Name)
		switch d.Kind {
		case KindFormula:
			if g.formulas[d.Formula] == nil {
				g.warn("attribute %q: unknown formula %q, resolves to 0", d.Name, d.Formula)
			}
		case KindAccumulator:
			if g.deltas[d.Formula] == nil {
				g.warn("attribute %q: unknown accumulator %q, value is constant", d.Name, d.Formula)
			}
			g.stored[d.Name] = g.floor(d, d.Initial)
		case KindComposed:
		default:
			g.warn("attribute %q: unknown kind %q", d.Name, d.Kind)
		}
	}
	g.order = g.topoOrder(names)
	for _, n := range g.order {
		g.values[n] = 0
	}
	g.ResolveAll()
	return g
}

// topoOrder is Kahn's algorithm seeded in definition order. Members of a
// cycle are appended last and flagged.
func (g *Graph) topoOrder(names []string) []string {
	index := map[string]int{}
	for i, n := range names {
		index[n] = i
	}
	indeg := map[string]int{}
	out := map[string][]string{}
	for _, n := range names {
		for _, dep := range g.defs[n].DependsOn {
			if _, ok := g.defs[dep]; !ok {
				g.warn("attribute %q depends on unknown %q, read as 0", n, dep)
				continue
			}
			if dep == n {
				indeg[n]++
				continue
			}
			indeg[n]++
			out[dep] = append(out[dep], n)
		}
	}
	var ready []string
	for _, n := range names {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}
	order := make([]string, 0, len(names))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return index[ready[i]] < index[ready[j]] })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, m := range out[n] {
			indeg[m]--
			if indeg[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	if len(order) < len(names) {
		for _, n := range names {
			if indeg[n] > 0 {
				g.cyclic[n] = true
				order = append(order, n)
			}
		}
		cyc := make([]string, 0, len(g.cyclic))
		for n := range g.cyclic {
			cyc = append(cyc, n)
		}
		sort.Strings(cyc)
		g.warn("attribute dependency cycle among %v, keeping previous values", cyc)
	}
	return order
}

func (g *Graph) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	g.warnings = append(g.warnings, msg)
	if g.logger != nil {
		g.logger.Printf("attributes: %s", msg)
	}
}

func (g *Graph) floor(d Definition, v float64) float64 {
	if math.IsNaN(v) {
		v = d.Initial
	}
	if d.Min != nil && v < *d.Min {
		return *d.Min
	}
	return v
}

func (g *Graph) Warnings() []string { return append([]string(nil), g.warnings...) }

func (g *Graph) Order() []string { return append([]string(nil), g.order...) }

// ResolveAll recomputes every attribute from the current sources. Accumulators
// report their stored value.
func (g *Graph) ResolveAll() Values {
	sources := g.sources()
	next := make(Values, len(g.order))
	for _, n := range g.order {
		d := g.defs[n]
		if g.cyclic[n] {
			next[n] = g.values[n]
			continue
		}
		switch d.Kind {
		case KindComposed:
			next[n] = g.floor(d, effects.Total(d.EffectTypes, sources))
		case KindFormula:
			if f := g.formulas[d.Formula]; f != nil {
				next[n] = g.floor(d, f(next))
			} else {
				next[n] = 0
			}
		case KindAccumulator:
			next[n] = g.stored[n]
		}
	}
	g.values = next
	return g.Values()
}

// Step integrates accumulators by scale(delta) and re-resolves. scale is the
// clock's speed conversion; it returns 0 while time is frozen.
func (g *Graph) Step(scale func(float64) float64) Values {
	g.ResolveAll()
	for _, n := range g.order {
		d := g.defs[n]
		if d.Kind != KindAccumulator || g.cyclic[n] {
			continue
		}
		delta := g.deltas[d.Formula]
		if delta == nil {
			continue
		}
		cur := g.stored[n]
		dv := delta(cur, g.values)
		if scale != nil {
			dv = scale(dv)
		}
		next := g.floor(d, cur+dv)
		g.stored[n] = next
		g.values[n] = next
	}
	return g.ResolveAll()
}

func (g *Graph) Value(name string) float64 { return g.values[name] }

func (g *Graph) Values() Values {
	out := make(Values, len(g.values))
	for k, v := range g.values {
		out[k] = v
	}
	return out
}

func (g *Graph) Definition(name string) (Definition, bool) {
	d, ok := g.defs[name]
	return d, ok
}

func (g *Graph) Stored() map[string]float64 {
	out := make(map[string]float64, len(g.stored))
	for k, v := range g.stored {
		out[k] = v
	}
	return out
}

// Restore loads accumulator values. Unknown names are reported and skipped;
// missing ones keep their current value.
func (g *Graph) Restore(stored map[string]float64) []string {
	var skipped []string
	for n, v := range stored {
		d, ok := g.defs[n]
		if !ok || d.Kind != KindAccumulator {
			skipped = append(skipped, n)
			continue
		}
		if math.IsInf(v, 0) {
			v = d.Initial
		}
		g.stored[n] = g.floor(d, v)
	}
	sort.Strings(skipped)
	g.ResolveAll()
	return skipped
}

// Reset returns accumulators to their initial values.
func (g *Graph) Reset() {
	for n, d := range g.defs {
		if d.Kind == KindAccumulator {
			g.stored[n] = g.floor(d, d.Initial)
		}
	}
	g.ResolveAll()
}
