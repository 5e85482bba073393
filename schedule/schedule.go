// Package schedule provides the step-counter schedulers coordinated by the
// training loop: a linear teacher-forcing schedule and the learning rate
// schedules. Schedulers advance on every training step regardless of
// gradient accumulation boundaries.
package schedule

import "fmt"

// Scheduler produces a scalar value per training step.
type Scheduler interface {
	// Step advances the internal position.
	Step()
	// Value reads the current scalar without mutation.
	Value() float64
	// Steps reports the current position, for checkpointing.
	Steps() int
	// SetSteps restores a position from a checkpoint.
	SetSteps(n int)
}

// Linear moves from Start toward End over Fraction*TotalIters steps and
// holds at End thereafter.
type Linear struct {
	start, end float64
	horizon    int
	steps      int
}

// NewLinear builds a linear schedule over totalIters steps, of which the
// leading fraction actually interpolates.
func NewLinear(start, end float64, totalIters int, fraction float64) *Linear {
	horizon := int(fraction * float64(totalIters))
	if horizon < 1 {
		horizon = 1
	}
	return &Linear{start: start, end: end, horizon: horizon}
}

func (l *Linear) Step() { l.steps++ }

func (l *Linear) Value() float64 {
	if l.steps >= l.horizon {
		return l.end
	}
	progress := float64(l.steps) / float64(l.horizon)
	return l.start + (l.end-l.start)*progress
}

func (l *Linear) Steps() int     { return l.steps }
func (l *Linear) SetSteps(n int) { l.steps = n }

// Constant is the no-op scheduler: it counts steps but always yields the
// same value.
type Constant struct {
	value float64
	steps int
}

func NewConstant(value float64) *Constant { return &Constant{value: value} }

func (c *Constant) Step()          { c.steps++ }
func (c *Constant) Value() float64 { return c.value }
func (c *Constant) Steps() int     { return c.steps }
func (c *Constant) SetSteps(n int) { c.steps = n }

// NewTeacherForce builds the teacher forcing scheduler named by the
// configuration: "none" keeps teacher forcing off, "linear" interpolates
// from start to end. Any other name is a configuration error.
func NewTeacherForce(name string, start, end float64, totalIters int, fraction float64) (Scheduler, error) {
	switch name {
	case "", "none":
		return NewConstant(0), nil
	case "linear":
		return NewLinear(start, end, totalIters, fraction), nil
	}

	return nil, fmt.Errorf("invalid teacher_force_scheduler %q: supported values are \"none\" and \"linear\"", name)
}
