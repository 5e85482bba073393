package losses

import (
	"testing"

	"github.com/pdevine/tensor"
	"github.com/stretchr/testify/assert"
	req "github.com/stretchr/testify/require"
)

func f32Tensor(shape []int, data []float32) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func TestRationaleClassBalance(t *testing.T) {
	// One rationale token out of four. The positive class and the negative
	// class each carry half of the normalized weight mass, so at zero
	// logits the loss is exactly log(2).
	logits := f32Tensor([]int{1, 4}, make([]float32, 4))
	labels := f32Tensor([]int{1, 4}, []float32{1, 0, 0, 0})
	passage := f32Tensor([]int{1, 4}, []float32{1, 1, 1, 1})

	term, err := Rationale(logits, labels, passage, 50, ReductionMean, nil)
	req.NoError(t, err)
	assert.InDelta(t, log2, term.Value(), 1e-5)

	// Weights: positive 4/1, negatives 4/3 each, norm 8. Gradient at zero
	// logits is w*(sigmoid(0)-y).
	grad := term.Grad.Data().([]float32)
	assert.InDelta(t, 0.5*(0.5-1), grad[0], 1e-5)
	for _, g := range grad[1:] {
		assert.InDelta(t, float64(1)/6*0.5, g, 1e-5)
	}
}

func TestRationaleOverlongDiscarded(t *testing.T) {
	logits := f32Tensor([]int{2, 3}, make([]float32, 6))
	labels := f32Tensor([]int{2, 3}, []float32{1, 1, 1, 1, 0, 0})
	passage := f32Tensor([]int{2, 3}, []float32{1, 1, 1, 1, 1, 1})

	term, err := Rationale(logits, labels, passage, 2, ReductionNone, nil)
	req.NoError(t, err)

	// The first example's rationale spans 3 tokens against a limit of 2;
	// it is dropped entirely.
	req.Len(t, term.Values, 1)

	grad := term.Grad.Data().([]float32)
	for _, g := range grad[:3] {
		assert.Zero(t, g)
	}
}

func TestRationaleAllDiscardedReducesToZero(t *testing.T) {
	logits := f32Tensor([]int{1, 2}, make([]float32, 2))
	labels := f32Tensor([]int{1, 2}, []float32{1, 1})
	passage := f32Tensor([]int{1, 2}, []float32{1, 1})

	term, err := Rationale(logits, labels, passage, 1, ReductionMean, nil)
	req.NoError(t, err)
	assert.Zero(t, term.Value())
}

func TestRationaleSingleClassWeightRewrite(t *testing.T) {
	// Every passage token is a rationale token: the negative-class weight
	// divides by zero and must be rewritten to zero, leaving a uniform
	// positive weighting instead of inf.
	logits := f32Tensor([]int{1, 3}, make([]float32, 3))
	labels := f32Tensor([]int{1, 3}, []float32{1, 1, 1})
	passage := f32Tensor([]int{1, 3}, []float32{1, 1, 1})

	term, err := Rationale(logits, labels, passage, 50, ReductionMean, nil)
	req.NoError(t, err)
	assert.InDelta(t, log2, term.Value(), 1e-5)
	assert.False(t, term.Value() != term.Value(), "loss must not be NaN")
}

func TestRationalePassageMaskZeroesLabels(t *testing.T) {
	// A rationale label outside the passage does not count as a positive:
	// with the mask zeroed everywhere the example has no classes at all
	// and its loss collapses to zero.
	logits := f32Tensor([]int{1, 2}, []float32{3, -2})
	labels := f32Tensor([]int{1, 2}, []float32{1, 1})
	passage := f32Tensor([]int{1, 2}, []float32{0, 0})

	term, err := Rationale(logits, labels, passage, 50, ReductionMean, nil)
	req.NoError(t, err)
	assert.Zero(t, term.Value())

	grad := term.Grad.Data().([]float32)
	for _, g := range grad {
		assert.Zero(t, g)
	}
}

func TestRationaleMask(t *testing.T) {
	logits := f32Tensor([]int{2, 2}, make([]float32, 4))
	labels := f32Tensor([]int{2, 2}, []float32{1, 0, 1, 0})
	passage := f32Tensor([]int{2, 2}, []float32{1, 1, 1, 1})

	term, err := Rationale(logits, labels, passage, 50, ReductionNone, []bool{false, true})
	req.NoError(t, err)
	req.Len(t, term.Values, 1)

	grad := term.Grad.Data().([]float32)
	assert.Zero(t, grad[0])
	assert.Zero(t, grad[1])
}
