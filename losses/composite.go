package losses

import (
	"fmt"

	"github.com/pdevine/tensor"
)

// Inner loss names reported by the composite losses.
const (
	InnerYNG        = "yng_loss"
	InnerRationale  = "rationale_loss"
	InnerGenerative = "generative_loss"
)

// Output is the result of a composite loss: the weighted total, the
// unweighted component values for logging, and the weighted gradients
// keyed by model output name.
type Output struct {
	Total float32
	Inner map[string]float32
	Grads map[string]*tensor.Dense
}

// ComputeLoss combines loss terms over a model's outputs and a batch.
type ComputeLoss interface {
	Compute(outputs, targets map[string]*tensor.Dense) (*Output, error)
}

// Params configures the composite loss built by New.
type Params struct {
	MaxRationaleLength int
	YNGWeight          float32
	RationaleWeight    float32
	GenerativeWeight   float32
	ClassWeights       []float32 // optional yes/no/generative class weights
}

// New selects the composite loss for a model type. Model types outside
// "encoder_decoder" and "encoder" are a configuration error.
func New(modelType string, p Params) (ComputeLoss, error) {
	switch modelType {
	case "encoder_decoder":
		return &EncoderDecoderLoss{Params: p}, nil
	case "encoder":
		return &EncoderLoss{Params: p}, nil
	}

	return nil, fmt.Errorf("invalid model_type %q: supported values are \"encoder_decoder\" and \"encoder\"", modelType)
}

// EncoderDecoderLoss combines the classification, rationale and generative
// terms. Classification runs over the full batch; the rationale and
// generative terms are restricted to generative examples, identified by a
// negated yes_no flag, so yes/no answers never contribute to them.
type EncoderDecoderLoss struct {
	Params
}

func (l *EncoderDecoderLoss) Compute(outputs, targets map[string]*tensor.Dense) (*Output, error) {
	isGenerative, err := generativeMask(targets)
	if err != nil {
		return nil, err
	}

	yngLogits, err := require(outputs, OutputEncoderYNGLogits, "output")
	if err != nil {
		return nil, err
	}
	yngLabels, err := require(targets, FieldYNGLabel, "batch field")
	if err != nil {
		return nil, err
	}
	yng, err := YesNoGen(yngLogits, yngLabels, l.ClassWeights, ReductionMean, nil)
	if err != nil {
		return nil, err
	}

	rationale, err := l.rationaleTerm(outputs, targets, OutputEncoderRationaleLogits, isGenerative)
	if err != nil {
		return nil, err
	}

	genLogits, err := require(outputs, OutputLogits, "output")
	if err != nil {
		return nil, err
	}
	genLabels, err := require(targets, FieldLabels, "batch field")
	if err != nil {
		return nil, err
	}
	generative, err := Generative(genLogits, genLabels, ReductionMean, isGenerative)
	if err != nil {
		return nil, err
	}

	return &Output{
		Total: l.YNGWeight*yng.Value() + l.RationaleWeight*rationale.Value() + l.GenerativeWeight*generative.Value(),
		Inner: map[string]float32{
			InnerYNG:        yng.Value(),
			InnerRationale:  rationale.Value(),
			InnerGenerative: generative.Value(),
		},
		Grads: map[string]*tensor.Dense{
			OutputEncoderYNGLogits:       scaled(yng.Grad, l.YNGWeight),
			OutputEncoderRationaleLogits: scaled(rationale.Grad, l.RationaleWeight),
			OutputLogits:                 scaled(generative.Grad, l.GenerativeWeight),
		},
	}, nil
}

func (l *EncoderDecoderLoss) rationaleTerm(outputs, targets map[string]*tensor.Dense, logitsName string, mask []bool) (*Term, error) {
	return rationaleTerm(outputs, targets, logitsName, l.MaxRationaleLength, mask)
}

// EncoderLoss is the encoder-only variant: rationale loss over the full
// batch, plus the classification term when the model exposes a yes/no head.
// There is no generative term.
type EncoderLoss struct {
	Params
}

func (l *EncoderLoss) Compute(outputs, targets map[string]*tensor.Dense) (*Output, error) {
	rationale, err := rationaleTerm(outputs, targets, OutputRationaleLogits, l.MaxRationaleLength, nil)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Total: l.RationaleWeight * rationale.Value(),
		Inner: map[string]float32{InnerRationale: rationale.Value()},
		Grads: map[string]*tensor.Dense{OutputRationaleLogits: scaled(rationale.Grad, l.RationaleWeight)},
	}

	if yngLogits, ok := outputs[OutputYNGLogits]; ok && l.YNGWeight > 0 {
		yngLabels, err := require(targets, FieldYNGLabel, "batch field")
		if err != nil {
			return nil, err
		}
		yng, err := YesNoGen(yngLogits, yngLabels, l.ClassWeights, ReductionMean, nil)
		if err != nil {
			return nil, err
		}
		out.Total += l.YNGWeight * yng.Value()
		out.Inner[InnerYNG] = yng.Value()
		out.Grads[OutputYNGLogits] = scaled(yng.Grad, l.YNGWeight)
	}

	return out, nil
}

func rationaleTerm(outputs, targets map[string]*tensor.Dense, logitsName string, maxRationaleLength int, mask []bool) (*Term, error) {
	logits, err := require(outputs, logitsName, "output")
	if err != nil {
		return nil, err
	}
	labels, err := require(targets, FieldRationaleLabels, "batch field")
	if err != nil {
		return nil, err
	}
	passageMask, err := require(targets, FieldPassageMask, "batch field")
	if err != nil {
		return nil, err
	}

	return Rationale(logits, labels, passageMask, maxRationaleLength, ReductionMean, mask)
}

// generativeMask negates the yes_no flag: true marks examples whose answer
// must be generated rather than classified.
func generativeMask(targets map[string]*tensor.Dense) ([]bool, error) {
	yesNo, err := require(targets, FieldYesNo, "batch field")
	if err != nil {
		return nil, err
	}
	data, err := float32Data(yesNo, FieldYesNo)
	if err != nil {
		return nil, err
	}

	mask := make([]bool, len(data))
	for i, v := range data {
		mask[i] = v == 0
	}
	return mask, nil
}

func require(m map[string]*tensor.Dense, name, kind string) (*tensor.Dense, error) {
	t, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("missing %s %q", kind, name)
	}
	return t, nil
}

func scaled(t *tensor.Dense, w float32) *tensor.Dense {
	if w == 1 {
		return t
	}
	data := t.Data().([]float32)
	for i := range data {
		data[i] *= w
	}
	return t
}
