package progress

import "math"

// Layered walks an ordered list of stages. Layer indexes the current stage;
// completing the last one resolves the unit and freezes it.
type Layered struct {
	Name     string
	Layer    int
	Xp       float64
	MaxLayer int
	Resolved bool
	Stages   []float64
}

func NewLayered(name string, stages []float64) *Layered {
	return &Layered{Name: name, Stages: append([]float64(nil), stages...)}
}

func (l *Layered) StageCount() int { return len(l.Stages) }

func (l *Layered) Requirement() float64 {
	if len(l.Stages) == 0 {
		return 0
	}
	i := l.Layer
	if i >= len(l.Stages) {
		i = len(l.Stages) - 1
	}
	return l.Stages[i]
}

// Do returns the number of layers completed by amount.
func (l *Layered) Do(amount float64) int {
	if l.Resolved || !(amount > 0) || math.IsInf(amount, 1) || len(l.Stages) == 0 {
		return 0
	}
	l.Xp += amount
	cleared := 0
	for {
		req := l.Requirement()
		if req <= 0 || l.Xp < req {
			break
		}
		cleared++
		if l.Layer >= len(l.Stages)-1 {
			l.Layer = len(l.Stages) - 1
			l.Xp = req
			l.Resolved = true
			break
		}
		l.Xp -= req
		l.Layer++
		if l.Layer > l.MaxLayer {
			l.MaxLayer = l.Layer
		}
	}
	return cleared
}

// LayersCleared counts completed stages, including the final one once
// resolved.
func (l *Layered) LayersCleared() int {
	if l.Resolved {
		return l.Layer + 1
	}
	return l.Layer
}

func (l *Layered) Progress() float64 {
	req := l.Requirement()
	if req <= 0 {
		return 0
	}
	return math.Min(1, l.Xp/req)
}

func (l *Layered) Reset() {
	if l.Layer > l.MaxLayer {
		l.MaxLayer = l.Layer
	}
	l.Layer = 0
	l.Xp = 0
	l.Resolved = false
}

func (l *Layered) Restore(layer int, xp float64, resolved bool) {
	if layer < 0 {
		layer = 0
	}
	if n := len(l.Stages); n > 0 && layer >= n {
		layer = n - 1
	}
	if math.IsNaN(xp) || xp < 0 {
		xp = 0
	}
	l.Layer = layer
	l.Xp = xp
	l.Resolved = resolved && len(l.Stages) > 0 && layer == len(l.Stages)-1
	if l.Resolved {
		l.Xp = l.Requirement()
	} else if req := l.Requirement(); req > 0 && l.Xp >= req {
		l.Xp = 0
	}
	if l.Layer > l.MaxLayer {
		l.MaxLayer = l.Layer
	}
}
