// Package losses implements the multi-task loss terms used to train
// conversational question answering models: a per-example normalized
// generative cross entropy, a class-balanced rationale token loss, and a
// focal yes/no/generative classification loss, combined by a weighted
// composite selected per model type.
//
// The stack has no autograd, so every term returns both its reduced value
// and the analytic gradient of that value with respect to the logits it
// consumed. The composite merges the gradients, scaled by the term weights,
// keyed by model output name.
package losses

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pdevine/tensor"
)

const epsilon = 1e-7

// IgnoreIndex marks label positions excluded from loss computation.
const IgnoreIndex = -100

// Batch field names consumed by the loss terms.
const (
	FieldLabels          = "labels"
	FieldRationaleLabels = "rationale_labels"
	FieldPassageMask     = "passage_mask"
	FieldYNGLabel        = "yng_label"
	FieldYesNo           = "yes_no"
)

// Model output names.
const (
	OutputLogits                 = "logits"
	OutputEncoderRationaleLogits = "encoder_rationale_logits"
	OutputEncoderYNGLogits       = "encoder_yng_logits"
	OutputRationaleLogits        = "rationale_logits"
	OutputYNGLogits              = "yng_logits"
)

type Reduction string

const (
	ReductionNone Reduction = "none"
	ReductionMean Reduction = "mean"
	ReductionSum  Reduction = "sum"
)

// ApplyReduction reduces a vector of per-example loss values. An empty
// input reduces to zero under mean and sum rather than producing NaN.
func ApplyReduction(values []float32, reduction Reduction) ([]float32, error) {
	switch reduction {
	case ReductionNone:
		return values, nil
	case ReductionMean:
		if len(values) == 0 {
			return []float32{0}, nil
		}
		var sum float32
		for _, v := range values {
			sum += v
		}
		return []float32{sum / float32(len(values))}, nil
	case ReductionSum:
		var sum float32
		for _, v := range values {
			sum += v
		}
		return []float32{sum}, nil
	}

	return nil, fmt.Errorf("invalid reduction %q: supported values are \"none\", \"mean\" and \"sum\"", reduction)
}

// Term is the result of a single loss term.
type Term struct {
	// Values holds the loss after reduction: per surviving example for
	// ReductionNone, a single element otherwise.
	Values []float32

	// Grad is the gradient of the reduced loss with respect to the logits
	// the term consumed, with the same shape. Rows belonging to masked or
	// discarded examples are zero.
	Grad *tensor.Dense
}

// Value returns the reduced scalar, or zero when nothing survived.
func (t *Term) Value() float32 {
	if len(t.Values) == 0 {
		return 0
	}
	return t.Values[0]
}

func float32Data(t *tensor.Dense, name string) ([]float32, error) {
	d, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%s: expected float32 backing, got %T", name, t.Data())
	}
	return d, nil
}

func int32Data(t *tensor.Dense, name string) ([]int32, error) {
	d, ok := t.Data().([]int32)
	if !ok {
		return nil, fmt.Errorf("%s: expected int32 backing, got %T", name, t.Data())
	}
	return d, nil
}

// logSumExp over a logit row, numerically stable.
func logSumExp(row []float32) float32 {
	max := math32.Inf(-1)
	for _, v := range row {
		if v > max {
			max = v
		}
	}
	var sum float32
	for _, v := range row {
		sum += math32.Exp(v - max)
	}
	return max + math32.Log(sum)
}

func softmaxInto(dst, row []float32) {
	lse := logSumExp(row)
	for i, v := range row {
		dst[i] = math32.Exp(v - lse)
	}
}

func sigmoid(x float32) float32 {
	if x >= 0 {
		return 1 / (1 + math32.Exp(-x))
	}
	e := math32.Exp(x)
	return e / (1 + e)
}

// bceWithLogits computes binary cross entropy against a logit, the stable
// formulation max(x,0) - x*y + log(1+exp(-|x|)).
func bceWithLogits(x, y float32) float32 {
	m := x
	if m < 0 {
		m = 0
	}
	return m - x*y + math32.Log1p(math32.Exp(-math32.Abs(x)))
}

// gradScale is the factor applied to per-example gradients so Grad matches
// the reduced value: 1/N for mean, 1 otherwise.
func gradScale(reduction Reduction, survivors int) float32 {
	if reduction == ReductionMean && survivors > 0 {
		return 1 / float32(survivors)
	}
	return 1
}
