package losses

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pdevine/tensor"
)

// Rationale computes a class-balanced binary cross entropy over passage
// tokens. Rationale tokens are typically a small minority of the passage,
// so each example's token weights are set to totals/positives for rationale
// positions and totals/negatives elsewhere, then normalized to sum to one:
// the positive and negative classes each carry half of the example's loss
// mass, and the loss is scale-invariant to passage length.
//
// Examples whose rationale length exceeds maxRationaleLength, or that are
// excluded by mask, are discarded entirely: they contribute nothing to the
// batch loss, not even as zero. A class absent from an example would make
// the opposing weight infinite by division; such weights are rewritten to
// zero instead of propagating inf.
func Rationale(logits, labels, passageMask *tensor.Dense, maxRationaleLength int, reduction Reduction, mask []bool) (*Term, error) {
	shape := logits.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("rationale loss: logits must be [batch, seq], got %v", shape)
	}
	b, s := shape[0], shape[1]

	for name, t := range map[string]*tensor.Dense{"labels": labels, "passage_mask": passageMask} {
		ts := t.Shape()
		if len(ts) != 2 || ts[0] != b || ts[1] != s {
			return nil, fmt.Errorf("rationale loss: %s shape %v does not match logits %v", name, ts, shape)
		}
	}
	if mask != nil && len(mask) != b {
		return nil, fmt.Errorf("rationale loss: mask length %d does not match batch %d", len(mask), b)
	}

	logitData, err := float32Data(logits, "rationale logits")
	if err != nil {
		return nil, err
	}
	labelData, err := float32Data(labels, "rationale labels")
	if err != nil {
		return nil, err
	}
	maskData, err := float32Data(passageMask, "passage mask")
	if err != nil {
		return nil, err
	}

	gradData := make([]float32, b*s)
	lab := make([]float32, s)
	weights := make([]float32, s)

	var values []float32
	type survivor struct{ index int }
	var survivors []survivor

	for i := 0; i < b; i++ {
		row := i * s

		// Zero labels outside the passage.
		var rationaleLength float32
		for t := 0; t < s; t++ {
			lab[t] = labelData[row+t] * maskData[row+t]
			rationaleLength += lab[t]
		}

		if rationaleLength > float32(maxRationaleLength) {
			continue
		}
		if mask != nil && !mask[i] {
			continue
		}

		var totals, positives float32
		for t := 0; t < s; t++ {
			totals += maskData[row+t]
			positives += lab[t]
		}
		negatives := totals - positives
		if totals < epsilon {
			totals = epsilon
		}

		var norm float32
		for t := 0; t < s; t++ {
			var w float32
			if lab[t] == 1 {
				w = totals / positives
			} else {
				w = totals / negatives
			}
			if math32.IsInf(w, 0) || math32.IsNaN(w) {
				w = 0
			}
			w *= maskData[row+t]
			weights[t] = w
			norm += w
		}
		if norm < epsilon {
			norm = epsilon
		}

		var loss float32
		for t := 0; t < s; t++ {
			w := weights[t] / norm
			x := logitData[row+t]
			loss += w * bceWithLogits(x, lab[t])
			gradData[row+t] = w * (sigmoid(x) - lab[t])
		}

		values = append(values, loss)
		survivors = append(survivors, survivor{index: i})
	}

	scale := gradScale(reduction, len(survivors))
	if scale != 1 {
		for _, e := range survivors {
			row := gradData[e.index*s : (e.index+1)*s]
			for j := range row {
				row[j] *= scale
			}
		}
	}

	reduced, err := ApplyReduction(values, reduction)
	if err != nil {
		return nil, err
	}

	return &Term{
		Values: reduced,
		Grad:   tensor.New(tensor.WithShape(b, s), tensor.WithBacking(gradData)),
	}, nil
}
