package losses

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/pdevine/tensor"
	"github.com/stretchr/testify/assert"
	req "github.com/stretchr/testify/require"
)

func TestNewInvalidModelType(t *testing.T) {
	_, err := New("decoder", Params{})
	req.Error(t, err)
	assert.Contains(t, err.Error(), "invalid model_type")
}

func encoderDecoderFixture(yesNo []float32) (outputs, targets map[string]*tensor.Dense) {
	b := len(yesNo)
	outputs = map[string]*tensor.Dense{
		OutputEncoderYNGLogits:       f32Tensor([]int{b, 3}, make([]float32, b*3)),
		OutputEncoderRationaleLogits: f32Tensor([]int{b, 2}, make([]float32, b*2)),
		OutputLogits:                 f32Tensor([]int{b, 2, 2}, make([]float32, b*4)),
	}

	yngLabels := make([]int32, b)
	labels := make([]int32, b*2)
	rationale := make([]float32, b*2)
	passage := make([]float32, b*2)
	for i := 0; i < b; i++ {
		yngLabels[i] = int32(i % 3)
		labels[i*2] = 1
		labels[i*2+1] = 0
		rationale[i*2] = 1
		passage[i*2] = 1
		passage[i*2+1] = 1
	}

	targets = map[string]*tensor.Dense{
		FieldYNGLabel:        labelTensor([]int{b}, yngLabels),
		FieldLabels:          labelTensor([]int{b, 2}, labels),
		FieldRationaleLabels: f32Tensor([]int{b, 2}, rationale),
		FieldPassageMask:     f32Tensor([]int{b, 2}, passage),
		FieldYesNo:           f32Tensor([]int{b}, yesNo),
	}
	return outputs, targets
}

func TestEncoderDecoderAllYesNo(t *testing.T) {
	// When every answer is yes/no, the rationale and generative terms have
	// no surviving examples and only the classification term remains.
	outputs, targets := encoderDecoderFixture([]float32{1, 1})

	loss, err := New("encoder_decoder", Params{MaxRationaleLength: 50, YNGWeight: 1, RationaleWeight: 1, GenerativeWeight: 1})
	req.NoError(t, err)

	out, err := loss.Compute(outputs, targets)
	req.NoError(t, err)

	assert.Zero(t, out.Inner[InnerRationale])
	assert.Zero(t, out.Inner[InnerGenerative])
	assert.InDelta(t, out.Inner[InnerYNG], out.Total, 1e-6)

	for _, g := range out.Grads[OutputLogits].Data().([]float32) {
		assert.Zero(t, g)
	}
	for _, g := range out.Grads[OutputEncoderRationaleLogits].Data().([]float32) {
		assert.Zero(t, g)
	}
}

func TestEncoderDecoderWeightedTotal(t *testing.T) {
	outputs, targets := encoderDecoderFixture([]float32{1, 0})

	p := Params{MaxRationaleLength: 50, YNGWeight: 0.5, RationaleWeight: 2, GenerativeWeight: 3}
	loss, err := New("encoder_decoder", p)
	req.NoError(t, err)

	out, err := loss.Compute(outputs, targets)
	req.NoError(t, err)

	// The reported inner values are unweighted; the total applies the
	// configured term weights.
	want := p.YNGWeight*out.Inner[InnerYNG] +
		p.RationaleWeight*out.Inner[InnerRationale] +
		p.GenerativeWeight*out.Inner[InnerGenerative]
	assert.InDelta(t, want, out.Total, 1e-6)

	// Only the generative example feeds the generative term: uniform
	// logits over two target tokens cost log(2).
	assert.InDelta(t, log2, out.Inner[InnerGenerative], 1e-5)
}

func TestEncoderDecoderInnerValues(t *testing.T) {
	outputs, targets := encoderDecoderFixture([]float32{0, 0})

	loss, err := New("encoder_decoder", Params{MaxRationaleLength: 50, YNGWeight: 1, RationaleWeight: 1, GenerativeWeight: 1})
	req.NoError(t, err)

	out, err := loss.Compute(outputs, targets)
	req.NoError(t, err)

	// Uniform 3-way classification logits: focal loss (2/3)^2 * log(3).
	wantYNG := math32.Pow(2.0/3, 2) * log3
	assert.InDelta(t, wantYNG, out.Inner[InnerYNG], 1e-5)
	assert.InDelta(t, log2, out.Inner[InnerGenerative], 1e-5)
	assert.InDelta(t, log2, out.Inner[InnerRationale], 1e-5)
}

func TestEncoderLossWithoutYNGHead(t *testing.T) {
	outputs := map[string]*tensor.Dense{
		OutputRationaleLogits: f32Tensor([]int{1, 2}, make([]float32, 2)),
	}
	targets := map[string]*tensor.Dense{
		FieldRationaleLabels: f32Tensor([]int{1, 2}, []float32{1, 0}),
		FieldPassageMask:     f32Tensor([]int{1, 2}, []float32{1, 1}),
	}

	loss, err := New("encoder", Params{MaxRationaleLength: 50, YNGWeight: 1, RationaleWeight: 1})
	req.NoError(t, err)

	out, err := loss.Compute(outputs, targets)
	req.NoError(t, err)

	assert.NotContains(t, out.Inner, InnerYNG)
	assert.InDelta(t, out.Inner[InnerRationale], out.Total, 1e-6)
}

func TestEncoderLossWithYNGHead(t *testing.T) {
	outputs := map[string]*tensor.Dense{
		OutputRationaleLogits: f32Tensor([]int{1, 2}, make([]float32, 2)),
		OutputYNGLogits:       f32Tensor([]int{1, 3}, make([]float32, 3)),
	}
	targets := map[string]*tensor.Dense{
		FieldRationaleLabels: f32Tensor([]int{1, 2}, []float32{1, 0}),
		FieldPassageMask:     f32Tensor([]int{1, 2}, []float32{1, 1}),
		FieldYNGLabel:        labelTensor([]int{1}, []int32{2}),
	}

	loss, err := New("encoder", Params{MaxRationaleLength: 50, YNGWeight: 1, RationaleWeight: 1})
	req.NoError(t, err)

	out, err := loss.Compute(outputs, targets)
	req.NoError(t, err)

	assert.Contains(t, out.Inner, InnerYNG)
	assert.InDelta(t, out.Inner[InnerRationale]+out.Inner[InnerYNG], out.Total, 1e-6)
	assert.Contains(t, out.Grads, OutputYNGLogits)
}

func TestCompositeMissingField(t *testing.T) {
	outputs, targets := encoderDecoderFixture([]float32{1})
	delete(targets, FieldYNGLabel)

	loss, err := New("encoder_decoder", Params{MaxRationaleLength: 50, YNGWeight: 1, RationaleWeight: 1, GenerativeWeight: 1})
	req.NoError(t, err)

	_, err = loss.Compute(outputs, targets)
	req.Error(t, err)
	assert.Contains(t, err.Error(), "yng_label")
}
