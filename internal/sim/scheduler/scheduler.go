package scheduler

import (
	"fmt"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/effects"
	"stationidle.ai/internal/sim/progress"
	"stationidle.ai/internal/sim/requirements"
)

type OperationSpec struct {
	Name     string
	Title    string
	GridLoad float64
	Effects  []effects.Definition
	Scaling  effects.Scaling
	Curve    progress.Curve
	Gate     *requirements.Gate
}

type ComponentSpec struct {
	Name       string
	Operations []OperationSpec
}

type ModuleSpec struct {
	Name            string
	Title           string
	Category        string
	ActiveByDefault bool
	Components      []ComponentSpec
	Gate            *requirements.Gate
}

type Operation struct {
	*progress.Unit
	Title     string
	GridLoad  float64
	Defs      []effects.Definition
	Scaling   effects.Scaling
	Gate      *requirements.Gate
	Active    bool
	Module    *Module
	Component *Component
}

func (o *Operation) Effects() []effects.Definition { return o.Defs }

func (o *Operation) EffectValue(t effects.Type) float64 {
	return effects.ValueOf(o.Defs, t, o.Scaling, o.Level)
}

// Contributing is true only when the operation and its module both run.
func (o *Operation) Contributing() bool { return o.Active && o.Module.Active }

type Component struct {
	Name       string
	Module     *Module
	Operations []*Operation
}

// ActiveOperation returns the running choice of the component, or nil.
func (c *Component) ActiveOperation() *Operation {
	for _, op := range c.Operations {
		if op.Active {
			return op
		}
	}
	return nil
}

type Module struct {
	Name            string
	Title           string
	Category        string
	Active          bool
	ActiveByDefault bool
	MaxLevel        int
	Gate            *requirements.Gate
	Components      []*Component
}

// Level is the sum of operation levels.
func (m *Module) Level() int {
	sum := 0
	for _, c := range m.Components {
		for _, op := range c.Operations {
			sum += op.Level
		}
	}
	return sum
}

func (m *Module) ActiveLoad() float64 {
	sum := 0.0
	for _, c := range m.Components {
		if op := c.ActiveOperation(); op != nil {
			sum += op.GridLoad
		}
	}
	return sum
}

func (m *Module) UpdateMaxLevel() {
	if l := m.Level(); l > m.MaxLevel {
		m.MaxLevel = l
	}
}

type Admission struct {
	Accepted bool
	Code     string
	Reason   string
}

func accept() Admission { return Admission{Accepted: true} }

func reject(code, format string, args ...any) Admission {
	return Admission{Code: code, Reason: fmt.Sprintf(format, args...)}
}

type LevelUp struct {
	Operation string
	Module    string
	Level     int
	Gained    int
}

// Scheduler owns the module tree. strength reports the current grid
// capacity.
type Scheduler struct {
	modules  []*Module
	byModule map[string]*Module
	ops      []*Operation
	byOp     map[string]*Operation
	strength func() float64
}

func New(specs []ModuleSpec, strength func() float64) (*Scheduler, error) {
	s := &Scheduler{
		byModule: map[string]*Module{},
		byOp:     map[string]*Operation{},
		strength: strength,
	}
	if s.strength == nil {
		s.strength = func() float64 { return 0 }
	}
	for _, ms := range specs {
		if ms.Name == "" {
			return nil, fmt.Errorf("module: empty name")
		}
		if _, dup := s.byModule[ms.Name]; dup {
			return nil, fmt.Errorf("module %q: duplicate", ms.Name)
		}
		m := &Module{
			Name:            ms.Name,
			Title:           ms.Title,
			Category:        ms.Category,
			ActiveByDefault: ms.ActiveByDefault,
			Active:          ms.ActiveByDefault,
			Gate:            ms.Gate,
		}
		for _, cs := range ms.Components {
			c := &Component{Name: cs.Name, Module: m}
			for _, spec := range cs.Operations {
				if spec.Name == "" {
					return nil, fmt.Errorf("module %q component %q: empty operation name", ms.Name, cs.Name)
				}
				if _, dup := s.byOp[spec.Name]; dup {
					return nil, fmt.Errorf("operation %q: duplicate", spec.Name)
				}
				if spec.GridLoad < 0 {
					return nil, fmt.Errorf("operation %q: negative grid load", spec.Name)
				}
				op := &Operation{
					Unit:      progress.NewUnit(spec.Name, spec.Curve, 0),
					Title:     spec.Title,
					GridLoad:  spec.GridLoad,
					Defs:      spec.Effects,
					Scaling:   spec.Scaling,
					Gate:      spec.Gate,
					Module:    m,
					Component: c,
				}
				c.Operations = append(c.Operations, op)
				s.ops = append(s.ops, op)
				s.byOp[op.Name] = op
			}
			m.Components = append(m.Components, c)
		}
		s.modules = append(s.modules, m)
		s.byModule[m.Name] = m
	}
	s.applyDefaultActivation()
	return s, nil
}

// applyDefaultActivation marks the first operation of every component
// active. Modules keep their own default switch.
func (s *Scheduler) applyDefaultActivation() {
	for _, m := range s.modules {
		m.Active = m.ActiveByDefault
		for _, c := range m.Components {
			for i, op := range c.Operations {
				op.Active = i == 0
			}
		}
	}
}

func (s *Scheduler) Modules() []*Module       { return s.modules }
func (s *Scheduler) Operations() []*Operation { return s.ops }

func (s *Scheduler) Module(name string) (*Module, bool) {
	m, ok := s.byModule[name]
	return m, ok
}

func (s *Scheduler) Operation(name string) (*Operation, bool) {
	op, ok := s.byOp[name]
	return op, ok
}

func (s *Scheduler) OperationLevel(name string) int {
	if op, ok := s.byOp[name]; ok {
		return op.Level
	}
	return 0
}

// GridLoad sums active operations under active modules.
func (s *Scheduler) GridLoad() float64 {
	sum := 0.0
	for _, m := range s.modules {
		if m.Active {
			sum += m.ActiveLoad()
		}
	}
	return sum
}

func (s *Scheduler) Sources() []effects.Source {
	out := make([]effects.Source, 0, len(s.ops))
	for _, op := range s.ops {
		out = append(out, op)
	}
	return out
}

// TryActivateOperation admits name if the projected load fits the grid. The
// sibling swap counts only when the module runs; an inactive module adds no
// load until it is switched on.
func (s *Scheduler) TryActivateOperation(name string) Admission {
	op, ok := s.byOp[name]
	if !ok {
		return reject(protocol.ErrUnknownTarget, "unknown operation %q", name)
	}
	if !op.Gate.Open() || !op.Module.Gate.Open() {
		return reject(protocol.ErrLocked, "operation %q is locked", name)
	}
	if op.Active {
		return accept()
	}
	sibling := op.Component.ActiveOperation()
	if op.Module.Active {
		after := s.GridLoad() + op.GridLoad
		if sibling != nil {
			after -= sibling.GridLoad
		}
		if after > s.strength() {
			return reject(protocol.ErrGridCapacity, "grid load %.2f would exceed strength %.2f", after, s.strength())
		}
	}
	if sibling != nil {
		sibling.Active = false
	}
	op.Active = true
	return accept()
}

func (s *Scheduler) TryActivateModule(name string) Admission {
	m, ok := s.byModule[name]
	if !ok {
		return reject(protocol.ErrUnknownTarget, "unknown module %q", name)
	}
	if !m.Gate.Open() {
		return reject(protocol.ErrLocked, "module %q is locked", name)
	}
	if m.Active {
		return accept()
	}
	after := s.GridLoad() + m.ActiveLoad()
	if after > s.strength() {
		return reject(protocol.ErrGridCapacity, "grid load %.2f would exceed strength %.2f", after, s.strength())
	}
	m.Active = true
	return accept()
}

func (s *Scheduler) DeactivateOperation(name string) bool {
	op, ok := s.byOp[name]
	if !ok {
		return false
	}
	op.Active = false
	return true
}

func (s *Scheduler) DeactivateModule(name string) bool {
	m, ok := s.byModule[name]
	if !ok {
		return false
	}
	m.Active = false
	return true
}

// AdvanceActive feeds gain(op) xp into every running operation. Operations
// under an inactive module stay frozen even if marked active.
func (s *Scheduler) AdvanceActive(gain func(*Operation) float64) []LevelUp {
	var ups []LevelUp
	for _, m := range s.modules {
		if !m.Active {
			continue
		}
		for _, c := range m.Components {
			op := c.ActiveOperation()
			if op == nil {
				continue
			}
			if n := op.Do(gain(op)); n > 0 {
				ups = append(ups, LevelUp{Operation: op.Name, Module: m.Name, Level: op.Level, Gained: n})
			}
		}
		m.UpdateMaxLevel()
	}
	return ups
}

// EnforceCapacity switches modules off, last first, until the load fits.
func (s *Scheduler) EnforceCapacity() []string {
	var off []string
	for i := len(s.modules) - 1; i >= 0 && s.GridLoad() > s.strength(); i-- {
		m := s.modules[i]
		if m.Active && m.ActiveLoad() > 0 {
			m.Active = false
			off = append(off, m.Name)
		}
	}
	return off
}

// SoftReset keeps level ceilings and restores default activation.
func (s *Scheduler) SoftReset() {
	for _, m := range s.modules {
		m.UpdateMaxLevel()
	}
	for _, op := range s.ops {
		op.UpdateMaxLevelAndReset()
	}
	s.applyDefaultActivation()
}

func (s *Scheduler) FullReset() {
	for _, op := range s.ops {
		op.FullReset()
	}
	for _, m := range s.modules {
		m.MaxLevel = 0
	}
	s.applyDefaultActivation()
}

// NormalizeComponents leaves at most one active operation per component,
// keeping the first.
func (s *Scheduler) NormalizeComponents() {
	for _, m := range s.modules {
		for _, c := range m.Components {
			seen := false
			for _, op := range c.Operations {
				if op.Active {
					if seen {
						op.Active = false
					}
					seen = true
				}
			}
		}
	}
}
