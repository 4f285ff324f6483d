package clock

import "math"

type State string

const (
	StatePlaying      State = "PLAYING"
	StatePaused       State = "PAUSED"
	StateTerminal     State = "TERMINAL"
	StateBossDefeated State = "BOSS_DEFEATED"
)

// Clock tracks elapsed in-game days. Lifespan of 0 never ends.
type Clock struct {
	Days          float64
	TotalDays     float64
	Paused        bool
	BossDefeated  bool
	Lifespan      float64
	BaseGameSpeed float64
	UpdateSpeed   float64
}

func New(baseGameSpeed, updateSpeed, lifespan float64) *Clock {
	if updateSpeed <= 0 {
		updateSpeed = 20
	}
	if baseGameSpeed < 0 {
		baseGameSpeed = 0
	}
	return &Clock{BaseGameSpeed: baseGameSpeed, UpdateSpeed: updateSpeed, Lifespan: lifespan}
}

func (c *Clock) IsAlive() bool {
	return c.Lifespan <= 0 || c.Days < c.Lifespan
}

func (c *Clock) IsPlaying() bool {
	return c.State() == StatePlaying
}

func (c *Clock) State() State {
	switch {
	case c.BossDefeated:
		return StateBossDefeated
	case !c.IsAlive():
		return StateTerminal
	case c.Paused:
		return StatePaused
	default:
		return StatePlaying
	}
}

// Speed is game days per second. ignoreTerminal keeps time running past the
// lifespan for the few transitions that need it.
func (c *Clock) Speed(ignoreTerminal bool) float64 {
	if c.Paused || c.BossDefeated {
		return 0
	}
	if !ignoreTerminal && !c.IsAlive() {
		return 0
	}
	return c.BaseGameSpeed
}

// ApplySpeed converts a per-day value into its per-tick share.
func (c *Clock) ApplySpeed(v float64) float64 {
	return v * c.Speed(false) / c.UpdateSpeed
}

// SettleSpeed is ApplySpeed for the tick the lifespan runs out on, which
// still earns its share of progress.
func (c *Clock) SettleSpeed(v float64) float64 {
	return v * c.Speed(true) / c.UpdateSpeed
}

// Advance moves time by one tick. It reports true only on the tick the
// lifespan runs out.
func (c *Clock) Advance() bool {
	if !c.IsAlive() {
		return false
	}
	d := c.ApplySpeed(1)
	if d == 0 {
		return false
	}
	c.Days += d
	c.TotalDays += d
	return !c.IsAlive()
}

// SetDays moves the current-run clock and shifts the lifetime total by the
// same delta.
func (c *Clock) SetDays(days float64) {
	if math.IsNaN(days) || days < 0 {
		days = 0
	}
	c.TotalDays = math.Max(0, c.TotalDays+days-c.Days)
	c.Days = days
}

func (c *Clock) Pause()   { c.Paused = true }
func (c *Clock) Unpause() { c.Paused = false }

func (c *Clock) TogglePause() { c.Paused = !c.Paused }

// ResetRun starts a new run; total days are kept.
func (c *Clock) ResetRun() {
	c.Days = 0
	c.BossDefeated = false
}
