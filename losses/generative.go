package losses

import (
	"fmt"

	"github.com/pdevine/tensor"
)

// Generative computes the answer generation loss: token-level cross entropy
// summed per example and normalized by the example's count of non-ignored
// target tokens, so long answers do not dominate short ones. logits is
// [batch, seq, vocab], labels is [batch, seq] with IgnoreIndex at positions
// excluded from both the sum and the count. mask, when non-nil, selects the
// examples that participate; the rest contribute nothing.
func Generative(logits, labels *tensor.Dense, reduction Reduction, mask []bool) (*Term, error) {
	shape := logits.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("generative loss: logits must be [batch, seq, vocab], got %v", shape)
	}
	b, s, v := shape[0], shape[1], shape[2]

	labelShape := labels.Shape()
	if len(labelShape) != 2 || labelShape[0] != b || labelShape[1] != s {
		return nil, fmt.Errorf("generative loss: labels shape %v does not match logits %v", labelShape, shape)
	}
	if mask != nil && len(mask) != b {
		return nil, fmt.Errorf("generative loss: mask length %d does not match batch %d", len(mask), b)
	}

	logitData, err := float32Data(logits, "generative logits")
	if err != nil {
		return nil, err
	}
	labelData, err := int32Data(labels, "generative labels")
	if err != nil {
		return nil, err
	}

	gradData := make([]float32, b*s*v)
	probs := make([]float32, v)

	var values []float32
	type exampleGrad struct {
		index int
		denom float32
	}
	var survivors []exampleGrad

	for i := 0; i < b; i++ {
		if mask != nil && !mask[i] {
			continue
		}

		var sum float32
		var count int
		for t := 0; t < s; t++ {
			label := labelData[i*s+t]
			if label == IgnoreIndex {
				continue
			}
			if label < 0 || int(label) >= v {
				return nil, fmt.Errorf("generative loss: label %d out of range [0, %d)", label, v)
			}

			row := logitData[(i*s+t)*v : (i*s+t+1)*v]
			softmaxInto(probs, row)

			sum += logSumExp(row) - row[label]
			count++

			gradRow := gradData[(i*s+t)*v : (i*s+t+1)*v]
			copy(gradRow, probs)
			gradRow[label] -= 1
		}

		denom := float32(count)
		if denom < epsilon {
			denom = epsilon
		}
		values = append(values, sum/denom)
		survivors = append(survivors, exampleGrad{index: i, denom: denom})
	}

	scale := gradScale(reduction, len(survivors))
	for _, e := range survivors {
		f := scale / e.denom
		row := gradData[e.index*s*v : (e.index+1)*s*v]
		for j := range row {
			row[j] *= f
		}
	}

	reduced, err := ApplyReduction(values, reduction)
	if err != nil {
		return nil, err
	}

	return &Term{
		Values: reduced,
		Grad:   tensor.New(tensor.WithShape(b, s, v), tensor.WithBacking(gradData)),
	}, nil
}
