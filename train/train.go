// Package train orchestrates the training loop: per-step forward, loss,
// backward and optimizer updates with gradient accumulation and clipping,
// scheduler coordination, periodic validation, metric logging and
// checkpointing. The loop owns a single logical thread of control; the
// model, optimizer and loaders are collaborators behind small contracts.
package train

import (
	"github.com/pdevine/tensor"

	"github.com/convqa/convqa/coqa"
)

// Parameter is one trainable tensor with its accumulated gradient. The
// optimizer is the only writer of Value; Backward accumulates into Grad
// until the optimizer consumes and zeroes it at an accumulation boundary.
type Parameter struct {
	Name  string
	Value *tensor.Dense
	Grad  *tensor.Dense
}

// Model is the forward/backward contract the trainer drives. Forward
// receives the batch fields matching ForwardArgs plus the current
// teacher-forcing scalar and returns named output tensors; Backward
// accumulates parameter gradients from the loss gradients keyed by output
// name.
type Model interface {
	ForwardArgs() []string
	Forward(inputs coqa.Batch, teacherForce float64) (map[string]*tensor.Dense, error)
	Backward(grads map[string]*tensor.Dense) error
	Parameters() []*Parameter
	SetTraining(training bool)
}

// DataLoader produces a finite, restartable sequence of batches. One
// iteration over an epoch yields Batches() batches.
type DataLoader interface {
	Batches() int
	Next() (coqa.Batch, bool)
	Reset()
}

// AvgValue maintains a running weighted mean over a stream of
// (value, weight) pairs.
type AvgValue struct {
	sum    float64
	weight float64
}

// Update folds in a value observed with the given weight, typically the
// number of samples it was averaged over.
func (a *AvgValue) Update(value float64, weight int) {
	a.sum += value * float64(weight)
	a.weight += float64(weight)
}

// Value returns the weighted mean, zero when nothing was observed.
func (a *AvgValue) Value() float64 {
	if a.weight == 0 {
		return 0
	}
	return a.sum / a.weight
}

// Reset discards all observations.
func (a *AvgValue) Reset() {
	a.sum = 0
	a.weight = 0
}
