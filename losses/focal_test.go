package losses

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	req "github.com/stretchr/testify/require"
)

const log3 = 1.0986123

func TestFocalGammaZeroIsCrossEntropy(t *testing.T) {
	logits := f32Tensor([]int{1, 3}, make([]float32, 3))
	labels := labelTensor([]int{1}, []int32{0})

	term, err := Focal(logits, labels, nil, 1, 0, ReductionMean, nil)
	req.NoError(t, err)
	assert.InDelta(t, log3, term.Value(), 1e-5)

	// With gamma 0 the gradient is the plain softmax-minus-onehot.
	grad := term.Grad.Data().([]float32)
	assert.InDelta(t, float64(1)/3-1, grad[0], 1e-5)
	assert.InDelta(t, float64(1)/3, grad[1], 1e-5)
	assert.InDelta(t, float64(1)/3, grad[2], 1e-5)
}

func TestFocalDefaultDownweightsEasyExamples(t *testing.T) {
	logits := f32Tensor([]int{1, 3}, make([]float32, 3))
	labels := labelTensor([]int{1}, []int32{0})

	term, err := YesNoGen(logits, labels, nil, ReductionMean, nil)
	req.NoError(t, err)

	// pt = 1/3, so the focal factor is (2/3)^2.
	want := math32.Pow(2.0/3, 2) * log3
	assert.InDelta(t, want, term.Value(), 1e-5)

	// A confidently correct prediction is downweighted to nearly nothing.
	easy := f32Tensor([]int{1, 3}, []float32{10, 0, 0})
	easyTerm, err := YesNoGen(easy, labels, nil, ReductionMean, nil)
	req.NoError(t, err)
	assert.Less(t, easyTerm.Value(), float32(1e-4))
}

func TestFocalClassWeights(t *testing.T) {
	logits := f32Tensor([]int{1, 3}, make([]float32, 3))
	labels := labelTensor([]int{1}, []int32{1})

	plain, err := Focal(logits, labels, nil, 1, 2, ReductionMean, nil)
	req.NoError(t, err)

	weighted, err := Focal(logits, labels, []float32{1, 2, 1}, 1, 2, ReductionMean, nil)
	req.NoError(t, err)

	assert.InDelta(t, 2*plain.Value(), weighted.Value(), 1e-5)
}

func TestFocalMask(t *testing.T) {
	logits := f32Tensor([]int{2, 3}, make([]float32, 6))
	labels := labelTensor([]int{2}, []int32{0, 1})

	term, err := Focal(logits, labels, nil, 1, 2, ReductionNone, []bool{false, true})
	req.NoError(t, err)
	req.Len(t, term.Values, 1)

	grad := term.Grad.Data().([]float32)
	for _, g := range grad[:3] {
		assert.Zero(t, g)
	}
}

func TestFocalLabelOutOfRange(t *testing.T) {
	logits := f32Tensor([]int{1, 3}, make([]float32, 3))
	labels := labelTensor([]int{1}, []int32{3})

	_, err := Focal(logits, labels, nil, 1, 2, ReductionMean, nil)
	req.Error(t, err)
}
