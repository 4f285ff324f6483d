package conflicts

import (
	"fmt"

	"stationidle.ai/internal/protocol"
	"stationidle.ai/internal/sim/clock"
	"stationidle.ai/internal/sim/effects"
	"stationidle.ai/internal/sim/progress"
	"stationidle.ai/internal/sim/requirements"
	"stationidle.ai/internal/sim/scheduler"
)

type BattleSpec struct {
	Name        string
	Title       string
	Faction     string
	TargetLevel int
	Curve       progress.Curve
	Effects     []effects.Definition
	Rewards     []effects.Definition
	Gate        *requirements.Gate
}

type Battle struct {
	*progress.Unit
	Title       string
	Faction     string
	TargetLevel int
	Defs        []effects.Definition
	Rewards     []effects.Definition
	Gate        *requirements.Gate
	Active      bool
}

func (b *Battle) Done() bool { return b.Level >= b.TargetLevel }

func (b *Battle) DisplayedLevel() int { return b.Level }

// Effects are the ongoing effects while fighting and the rewards once won.
func (b *Battle) Effects() []effects.Definition {
	if b.Done() {
		return b.Rewards
	}
	if b.Active {
		return b.Defs
	}
	return nil
}

func (b *Battle) EffectValue(t effects.Type) float64 {
	return effects.ValueOf(b.Effects(), t, effects.ScalingFlat, 0)
}

func (b *Battle) Contributing() bool { return b.Done() || b.Active }

type Resolution struct {
	Name          string
	Faction       string
	Boss          bool
	LayersCleared int
	Level         int
}

// System owns the simple battles and the boss.
type System struct {
	battles    []*Battle
	byName     map[string]*Battle
	boss       *Boss
	maxVisible int
	autoEngage bool
}

type Options struct {
	MaxVisible int
	AutoEngage bool
}

func New(specs []BattleSpec, boss *BossSpec, opts Options) (*System, error) {
	s := &System{byName: map[string]*Battle{}, maxVisible: opts.MaxVisible, autoEngage: opts.AutoEngage}
	for _, bs := range specs {
		if bs.Name == "" {
			return nil, fmt.Errorf("battle: empty name")
		}
		if _, dup := s.byName[bs.Name]; dup {
			return nil, fmt.Errorf("battle %q: duplicate", bs.Name)
		}
		if bs.TargetLevel <= 0 {
			return nil, fmt.Errorf("battle %q: target level must be positive", bs.Name)
		}
		b := &Battle{
			Unit:        progress.NewUnit(bs.Name, bs.Curve, bs.TargetLevel),
			Title:       bs.Title,
			Faction:     bs.Faction,
			TargetLevel: bs.TargetLevel,
			Defs:        bs.Effects,
			Rewards:     bs.Rewards,
			Gate:        bs.Gate,
		}
		s.battles = append(s.battles, b)
		s.byName[b.Name] = b
	}
	if boss != nil {
		if _, dup := s.byName[boss.Name]; dup || boss.Name == "" {
			return nil, fmt.Errorf("boss %q: invalid or duplicate name", boss.Name)
		}
		b, err := newBoss(*boss)
		if err != nil {
			return nil, err
		}
		s.boss = b
	}
	return s, nil
}

func (s *System) Battles() []*Battle { return s.battles }

func (s *System) Battle(name string) (*Battle, bool) {
	b, ok := s.byName[name]
	return b, ok
}

func (s *System) Boss() *Boss { return s.boss }

func (s *System) IsBoss(name string) bool { return s.boss != nil && s.boss.Name == name }

func (s *System) Has(name string) bool {
	_, ok := s.byName[name]
	return ok || s.IsBoss(name)
}

// Visible lists unresolved, unlocked battles: the first of each faction, at
// most maxVisible overall.
func (s *System) Visible() []*Battle {
	var out []*Battle
	seen := map[string]bool{}
	for _, b := range s.battles {
		if s.maxVisible > 0 && len(out) >= s.maxVisible {
			break
		}
		if b.Done() || !b.Gate.Open() || seen[b.Faction] {
			continue
		}
		seen[b.Faction] = true
		out = append(out, b)
	}
	return out
}

func (s *System) isVisible(b *Battle) bool {
	for _, v := range s.Visible() {
		if v == b {
			return true
		}
	}
	return false
}

func (s *System) Activate(name string) scheduler.Admission {
	if s.IsBoss(name) {
		return s.boss.activate()
	}
	b, ok := s.byName[name]
	if !ok {
		return scheduler.Admission{Code: protocol.ErrUnknownTarget, Reason: fmt.Sprintf("unknown battle %q", name)}
	}
	if b.Active {
		return scheduler.Admission{Accepted: true}
	}
	if !b.Gate.Open() {
		return scheduler.Admission{Code: protocol.ErrLocked, Reason: fmt.Sprintf("battle %q is locked", name)}
	}
	if b.Done() {
		return scheduler.Admission{Code: protocol.ErrResolved, Reason: fmt.Sprintf("battle %q already won", name)}
	}
	if !s.isVisible(b) {
		return scheduler.Admission{Code: protocol.ErrNotVisible, Reason: fmt.Sprintf("battle %q is not in view", name)}
	}
	b.Active = true
	return scheduler.Admission{Accepted: true}
}

func (s *System) Deactivate(name string) bool {
	if s.IsBoss(name) {
		// A defeated boss stays engaged at its final stage.
		if s.boss.Resolved {
			return false
		}
		s.boss.Active = false
		return true
	}
	b, ok := s.byName[name]
	if !ok {
		return false
	}
	b.Active = false
	return true
}

func (s *System) Toggle(name string) scheduler.Admission {
	active := false
	if s.IsBoss(name) {
		active = s.boss.Active
	} else if b, ok := s.byName[name]; ok {
		active = b.Active
	}
	if active {
		if !s.Deactivate(name) {
			return scheduler.Admission{Code: protocol.ErrResolved, Reason: "boss already defeated"}
		}
		return scheduler.Admission{Accepted: true}
	}
	return s.Activate(name)
}

// AdvanceActive feeds gain into every active, unresolved conflict. Battles
// that finish stay active and flagged done. The boss stays active once
// resolved and takes no further gain.
func (s *System) AdvanceActive(gain float64) ([]scheduler.LevelUp, []Resolution) {
	var ups []scheduler.LevelUp
	var done []Resolution
	for _, b := range s.battles {
		if !b.Active || b.Done() {
			continue
		}
		if n := b.Do(gain); n > 0 {
			ups = append(ups, scheduler.LevelUp{Operation: b.Name, Module: b.Faction, Level: b.Level, Gained: n})
			if b.Done() {
				done = append(done, Resolution{Name: b.Name, Faction: b.Faction, Level: b.Level})
			}
		}
	}
	if s.boss != nil && s.boss.Active && !s.boss.Resolved {
		if n := s.boss.Do(gain); n > 0 {
			ups = append(ups, scheduler.LevelUp{Operation: s.boss.Name, Module: s.boss.Faction, Level: s.boss.LayersCleared(), Gained: n})
			if s.boss.Resolved {
				done = append(done, Resolution{Name: s.boss.Name, Faction: s.boss.Faction, Boss: true, LayersCleared: s.boss.LayersCleared()})
			}
		}
	}
	return ups, done
}

// DismissResolved switches off every won battle that is still marked active.
func (s *System) DismissResolved() []string {
	var out []string
	for _, b := range s.battles {
		if b.Active && b.Done() {
			b.Active = false
			out = append(out, b.Name)
		}
	}
	return out
}

func (s *System) FactionLevelsDefeated(faction string) int {
	sum := 0
	for _, b := range s.battles {
		if b.Faction == faction {
			sum += b.Level
		}
	}
	if s.boss != nil && s.boss.Faction == faction {
		sum += s.boss.LayersCleared()
	}
	return sum
}

// CheckAppearance makes the boss available once days reach its threshold.
func (s *System) CheckAppearance(days float64) bool {
	b := s.boss
	if b == nil || b.Available || b.Resolved || b.AppearanceDay <= 0 || days < b.AppearanceDay {
		return false
	}
	b.Available = true
	if s.autoEngage {
		b.Active = true
	}
	return true
}

type ForceOptions struct {
	// Resume unpauses a paused clock. Off by default so a paused game stays
	// paused.
	Resume bool
}

// ForceAppear rewinds the boss to its initial state and moves the clock to
// one day before the appearance threshold so the next tick brings it in.
func (s *System) ForceAppear(c *clock.Clock, opts ForceOptions) error {
	if s.boss == nil {
		return fmt.Errorf("no boss configured")
	}
	s.boss.Available = false
	s.boss.Active = false
	s.boss.Reset()
	c.BossDefeated = false
	target := s.boss.AppearanceDay - 1
	if target < 0 {
		target = 0
	}
	c.SetDays(target)
	if opts.Resume {
		c.Unpause()
	}
	return nil
}

func (s *System) ResetBattle(name string) bool {
	if s.IsBoss(name) {
		s.boss.Reset()
		return true
	}
	b, ok := s.byName[name]
	if !ok {
		return false
	}
	b.Level = 0
	b.Xp = 0
	return true
}

func (s *System) SoftReset() {
	for _, b := range s.battles {
		b.UpdateMaxLevelAndReset()
		b.Active = false
	}
	if s.boss != nil {
		s.boss.Reset()
		s.boss.Available = false
		s.boss.Active = false
	}
}

func (s *System) FullReset() {
	for _, b := range s.battles {
		b.FullReset()
		b.Active = false
	}
	if s.boss != nil {
		s.boss.Reset()
		s.boss.MaxLayer = 0
		s.boss.Available = false
		s.boss.Active = false
	}
}

func (s *System) Sources() []effects.Source {
	out := make([]effects.Source, 0, len(s.battles)+1)
	for _, b := range s.battles {
		out = append(out, b)
	}
	if s.boss != nil {
		out = append(out, s.boss)
	}
	return out
}
