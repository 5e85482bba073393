package schedule

import (
	"fmt"
	"math"
)

// LRScheduler produces the learning rate for the current step. The trainer
// reads LastLR before each optimizer update and calls Step once per
// training step, accumulation or not.
type LRScheduler interface {
	Step()
	LastLR() float64
	Steps() int
	SetSteps(n int)
}

// ConstantLR is the pass-through scheduler: the base learning rate,
// unchanged, forever.
type ConstantLR struct {
	lr    float64
	steps int
}

func NewConstantLR(lr float64) *ConstantLR { return &ConstantLR{lr: lr} }

func (s *ConstantLR) Step()           { s.steps++ }
func (s *ConstantLR) LastLR() float64 { return s.lr }
func (s *ConstantLR) Steps() int      { return s.steps }
func (s *ConstantLR) SetSteps(n int)  { s.steps = n }

// WarmupDecay ramps linearly from zero over the warmup steps, then decays
// to zero over the remaining steps, either linearly or on a half cosine.
type WarmupDecay struct {
	base    float64
	warmup  int
	total   int
	cosine  bool
	steps   int
}

func (s *WarmupDecay) Step()          { s.steps++ }
func (s *WarmupDecay) Steps() int     { return s.steps }
func (s *WarmupDecay) SetSteps(n int) { s.steps = n }

func (s *WarmupDecay) LastLR() float64 {
	if s.warmup > 0 && s.steps < s.warmup {
		return s.base * float64(s.steps) / float64(s.warmup)
	}
	if s.steps >= s.total {
		return 0
	}

	progress := float64(s.steps-s.warmup) / float64(s.total-s.warmup)
	if s.cosine {
		return s.base * 0.5 * (1 + math.Cos(math.Pi*progress))
	}
	return s.base * (1 - progress)
}

// NewLR builds the learning rate scheduler named by the configuration.
// "none" keeps the base rate; "linear" and "cosine" decay it after a
// warmup fraction of the total steps.
func NewLR(name string, baseLR float64, totalSteps int, warmupFraction float64) (LRScheduler, error) {
	switch name {
	case "", "none":
		return NewConstantLR(baseLR), nil
	case "linear":
		return &WarmupDecay{base: baseLR, warmup: int(warmupFraction * float64(totalSteps)), total: totalSteps}, nil
	case "cosine":
		return &WarmupDecay{base: baseLR, warmup: int(warmupFraction * float64(totalSteps)), total: totalSteps, cosine: true}, nil
	}

	return nil, fmt.Errorf("invalid scheduler %q: supported values are \"none\", \"linear\" and \"cosine\"", name)
}
