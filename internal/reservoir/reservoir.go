// Package reservoir models how much paint is left on the brush.
package reservoir

// Load counts the strokes the brush can still make before it must be dipped.
// A fresh Load is empty, so the first stroke always dips.
type Load struct {
	aliveTime  int
	brushCoeff float64
	remaining  int
}

// New creates an empty load. aliveTime is the number of strokes a single dip
// supports; brushCoeff is carried for future brush models and not applied.
func New(aliveTime int, brushCoeff float64) *Load {
	if aliveTime < 1 {
		aliveTime = 1
	}
	return &Load{aliveTime: aliveTime, brushCoeff: brushCoeff}
}

// Remaining returns strokes left before a re-dip
func (l *Load) Remaining() int {
	return l.remaining
}

// Capacity returns the strokes one dip supports
func (l *Load) Capacity() int {
	return l.aliveTime
}

// BrushCoeff returns the configured brush coefficient
func (l *Load) BrushCoeff() float64 {
	return l.brushCoeff
}

// ConsumeStroke decrements the remaining count, never below zero
func (l *Load) ConsumeStroke() {
	if l.remaining > 0 {
		l.remaining--
	}
}

// Reload refills the brush to capacity
func (l *Load) Reload() {
	l.remaining = l.Capacity()
}

// Empty forgets whatever is on the brush
func (l *Load) Empty() {
	l.remaining = 0
}
