package progress

import "math"

type Curve interface {
	MaxXp(level int) float64
}

// Exponential requires Base * Growth^level xp per level.
type Exponential struct {
	Base   float64
	Growth float64
}

func (c Exponential) MaxXp(level int) float64 {
	return c.Base * math.Pow(c.Growth, float64(level))
}

// Progressive requires Base * (level+1) * Growth^level xp per level.
type Progressive struct {
	Base   float64
	Growth float64
}

func (c Progressive) MaxXp(level int) float64 {
	return c.Base * float64(level+1) * math.Pow(c.Growth, float64(level))
}

// Table lists explicit requirements; levels past the end reuse the last one.
type Table []float64

func (c Table) MaxXp(level int) float64 {
	if len(c) == 0 {
		return 0
	}
	if level < 0 {
		level = 0
	}
	if level >= len(c) {
		return c[len(c)-1]
	}
	return c[level]
}

type Kind string

const (
	KindExponential Kind = "exponential"
	KindProgressive Kind = "progressive"
	KindTable       Kind = "table"
)

func NewCurve(kind Kind, base, growth float64, table []float64) Curve {
	switch kind {
	case KindExponential:
		return Exponential{Base: base, Growth: growth}
	case KindTable:
		return Table(append([]float64(nil), table...))
	default:
		return Progressive{Base: base, Growth: growth}
	}
}

// Unit is the level/xp state machine shared by operations, battles and the
// grid strength. Cap of 0 means uncapped.
type Unit struct {
	Name     string
	Level    int
	MaxLevel int
	Xp       float64
	Cap      int
	Curve    Curve
}

func NewUnit(name string, curve Curve, cap int) *Unit {
	return &Unit{Name: name, Curve: curve, Cap: cap}
}

func (u *Unit) MaxXp() float64 {
	if u.Curve == nil {
		return 0
	}
	return u.Curve.MaxXp(u.Level)
}

func (u *Unit) XpLeft() float64 {
	if u.Capped() {
		return 0
	}
	return math.Max(0, u.MaxXp()-u.Xp)
}

func (u *Unit) Progress() float64 {
	if u.Capped() {
		return 1
	}
	m := u.MaxXp()
	if m <= 0 {
		return 0
	}
	return math.Min(1, u.Xp/m)
}

func (u *Unit) Capped() bool { return u.Cap > 0 && u.Level >= u.Cap }

// Do adds amount xp and applies every level-up the overflow pays for. It
// returns the number of levels gained.
func (u *Unit) Do(amount float64) int {
	if !(amount > 0) || math.IsInf(amount, 1) {
		return 0
	}
	if u.Capped() {
		u.clampToCap()
		return 0
	}
	u.Xp += amount
	gained := 0
	for {
		m := u.MaxXp()
		if m <= 0 || u.Xp < m {
			break
		}
		u.Xp -= m
		u.Level++
		gained++
		if u.Level > u.MaxLevel {
			u.MaxLevel = u.Level
		}
		if u.Capped() {
			u.clampToCap()
			break
		}
	}
	return gained
}

func (u *Unit) clampToCap() {
	u.Level = u.Cap
	u.Xp = 0
	if u.MaxLevel < u.Level {
		u.MaxLevel = u.Level
	}
}

// UpdateMaxLevelAndReset keeps the ceiling and clears the current run.
func (u *Unit) UpdateMaxLevelAndReset() {
	if u.Level > u.MaxLevel {
		u.MaxLevel = u.Level
	}
	u.Level = 0
	u.Xp = 0
}

func (u *Unit) FullReset() {
	u.Level = 0
	u.Xp = 0
	u.MaxLevel = 0
}

// Restore loads persisted values, clamping whatever is out of range.
func (u *Unit) Restore(level, maxLevel int, xp float64) {
	if level < 0 {
		level = 0
	}
	if u.Cap > 0 && level > u.Cap {
		level = u.Cap
	}
	if maxLevel < level {
		maxLevel = level
	}
	if math.IsNaN(xp) || xp < 0 {
		xp = 0
	}
	u.Level = level
	u.MaxLevel = maxLevel
	u.Xp = xp
	if u.Capped() {
		u.Xp = 0
		return
	}
	if m := u.MaxXp(); m > 0 && u.Xp >= m {
		u.Xp = 0
	}
}
