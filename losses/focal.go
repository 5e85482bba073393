package losses

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pdevine/tensor"
)

// Focal loss defaults, matching the yes/no/generative head.
const (
	DefaultFocalAlpha = 1.0
	DefaultFocalGamma = 2.0
)

// Focal computes a categorical focal loss with logits: standard cross
// entropy scaled by alpha*(1-pt)^gamma where pt is the predicted
// probability of the true class. With gamma = 0 it reduces to alpha-scaled
// cross entropy. logits is [batch, classes], labels is [batch]. weight,
// when non-nil, is a per-class factor looked up by label.
func Focal(logits, labels *tensor.Dense, weight []float32, alpha, gamma float32, reduction Reduction, mask []bool) (*Term, error) {
	shape := logits.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("focal loss: logits must be [batch, classes], got %v", shape)
	}
	b, c := shape[0], shape[1]

	labelShape := labels.Shape()
	if len(labelShape) != 1 || labelShape[0] != b {
		return nil, fmt.Errorf("focal loss: labels shape %v does not match batch %d", labelShape, b)
	}
	if weight != nil && len(weight) != c {
		return nil, fmt.Errorf("focal loss: %d class weights for %d classes", len(weight), c)
	}
	if mask != nil && len(mask) != b {
		return nil, fmt.Errorf("focal loss: mask length %d does not match batch %d", len(mask), b)
	}

	logitData, err := float32Data(logits, "focal logits")
	if err != nil {
		return nil, err
	}
	labelData, err := int32Data(labels, "focal labels")
	if err != nil {
		return nil, err
	}

	gradData := make([]float32, b*c)
	probs := make([]float32, c)

	var values []float32
	var survivors int

	for i := 0; i < b; i++ {
		if mask != nil && !mask[i] {
			continue
		}

		label := labelData[i]
		if label < 0 || int(label) >= c {
			return nil, fmt.Errorf("focal loss: label %d out of range [0, %d)", label, c)
		}

		row := logitData[i*c : (i+1)*c]
		softmaxInto(probs, row)

		ce := logSumExp(row) - row[label]
		pt := math32.Exp(-ce)
		base := 1 - pt

		w := float32(1)
		if weight != nil {
			w = weight[label]
		}

		loss := alpha * math32.Pow(base, gamma) * ce * w

		// d loss / d ce; the second term vanishes as ce -> 0.
		d := math32.Pow(base, gamma)
		if gamma != 0 && base > 0 {
			d += gamma * math32.Pow(base, gamma-1) * pt * ce
		}
		d *= alpha * w

		gradRow := gradData[i*c : (i+1)*c]
		for v := 0; v < c; v++ {
			gradRow[v] = d * probs[v]
		}
		gradRow[label] -= d

		values = append(values, loss)
		survivors++
	}

	scale := gradScale(reduction, survivors)
	if scale != 1 {
		for j := range gradData {
			gradData[j] *= scale
		}
	}

	reduced, err := ApplyReduction(values, reduction)
	if err != nil {
		return nil, err
	}

	return &Term{
		Values: reduced,
		Grad:   tensor.New(tensor.WithShape(b, c), tensor.WithBacking(gradData)),
	}, nil
}

// YesNoGen is the classification loss over the yes/no/generative head,
// a focal loss with the default alpha and gamma.
func YesNoGen(logits, labels *tensor.Dense, weight []float32, reduction Reduction, mask []bool) (*Term, error) {
	return Focal(logits, labels, weight, DefaultFocalAlpha, DefaultFocalGamma, reduction, mask)
}
