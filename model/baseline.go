// Package model provides a small reference model satisfying the trainer's
// forward/backward contract: a bag-of-embeddings encoder with rationale,
// yes/no/generative and answer-token heads. It exists to exercise the
// training and evaluation pipeline end to end; production architectures
// plug in behind the same contract.
package model

import (
	"fmt"
	"math/rand"

	"github.com/pdevine/tensor"

	"github.com/convqa/convqa/coqa"
	"github.com/convqa/convqa/losses"
	"github.com/convqa/convqa/train"
)

// Baseline embeds input tokens, mean-pools them under the attention mask,
// and scores its heads from the result: a per-token rationale logit, a
// 3-way yes/no/generative logit, and for the encoder_decoder variant a
// per-position vocabulary logit whose context mixes the pooled encoding
// with the embedding of the previous target token, scaled by the
// teacher-forcing value.
type Baseline struct {
	modelType string
	vocabSize int
	dim       int

	embedding  *train.Parameter // [vocab, dim]
	rationaleW *train.Parameter // [dim]
	rationaleB *train.Parameter // [1]
	yngW       *train.Parameter // [3, dim]
	yngB       *train.Parameter // [3]
	decoderW   *train.Parameter // [vocab, dim]
	decoderB   *train.Parameter // [vocab]

	training bool
	last     *activations
}

// activations captures what backward needs from the last forward pass.
type activations struct {
	batch, seq, labelSeq int
	teacherForce         float32

	ids      []int32   // [batch*seq]
	att      []float32 // [batch*seq]
	attCount []float32 // [batch]
	pooled   []float32 // [batch*dim]
	labels   []int32   // [batch*labelSeq], encoder_decoder only
	contexts []float32 // [batch*labelSeq*dim], encoder_decoder only
}

// NewBaseline builds a model for the given vocabulary and embedding size.
// modelType selects the output surface: "encoder_decoder" exposes the
// generative head, "encoder" only the rationale and yes/no heads.
func NewBaseline(modelType string, vocabSize, dim int, seed int64) (*Baseline, error) {
	switch modelType {
	case "encoder_decoder", "encoder":
	default:
		return nil, fmt.Errorf("invalid model_type %q: supported values are \"encoder_decoder\" and \"encoder\"", modelType)
	}

	rng := rand.New(rand.NewSource(seed))
	param := func(name string, shape ...int) *train.Parameter {
		n := 1
		for _, d := range shape {
			n *= d
		}
		value := make([]float32, n)
		for i := range value {
			value[i] = float32(rng.NormFloat64()) * 0.02
		}
		return &train.Parameter{
			Name:  name,
			Value: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(value)),
			Grad:  tensor.New(tensor.WithShape(shape...), tensor.WithBacking(make([]float32, n))),
		}
	}

	return &Baseline{
		modelType:  modelType,
		vocabSize:  vocabSize,
		dim:        dim,
		embedding:  param("embedding", vocabSize, dim),
		rationaleW: param("rationale.weight", dim),
		rationaleB: param("rationale.bias", 1),
		yngW:       param("yng.weight", 3, dim),
		yngB:       param("yng.bias", 3),
		decoderW:   param("decoder.weight", vocabSize, dim),
		decoderB:   param("decoder.bias", vocabSize),
	}, nil
}

func (m *Baseline) ForwardArgs() []string {
	if m.modelType == "encoder" {
		return []string{coqa.FieldInputIDs, coqa.FieldAttentionMask}
	}
	return []string{coqa.FieldInputIDs, coqa.FieldAttentionMask, losses.FieldLabels}
}

func (m *Baseline) Parameters() []*train.Parameter {
	return []*train.Parameter{
		m.embedding, m.rationaleW, m.rationaleB,
		m.yngW, m.yngB, m.decoderW, m.decoderB,
	}
}

func (m *Baseline) SetTraining(training bool) { m.training = training }

func (m *Baseline) Forward(inputs coqa.Batch, teacherForce float64) (map[string]*tensor.Dense, error) {
	idsT, ok := inputs[coqa.FieldInputIDs]
	if !ok {
		return nil, fmt.Errorf("missing batch field %q", coqa.FieldInputIDs)
	}
	attT, ok := inputs[coqa.FieldAttentionMask]
	if !ok {
		return nil, fmt.Errorf("missing batch field %q", coqa.FieldAttentionMask)
	}

	shape := idsT.Shape()
	b, s := shape[0], shape[1]
	ids := idsT.Data().([]int32)
	att := attT.Data().([]float32)

	d := m.dim
	emb := m.embedding.Value.Data().([]float32)

	ac := &activations{
		batch:        b,
		seq:          s,
		teacherForce: float32(teacherForce),
		ids:          ids,
		att:          att,
		attCount:     make([]float32, b),
		pooled:       make([]float32, b*d),
	}

	for i := 0; i < b; i++ {
		for t := 0; t < s; t++ {
			id := ids[i*s+t]
			if id < 0 || int(id) >= m.vocabSize {
				return nil, fmt.Errorf("input id %d out of range [0, %d)", id, m.vocabSize)
			}
			a := att[i*s+t]
			if a == 0 {
				continue
			}
			ac.attCount[i] += a
			for k := 0; k < d; k++ {
				ac.pooled[i*d+k] += a * emb[int(id)*d+k]
			}
		}
		if ac.attCount[i] > 0 {
			inv := 1 / ac.attCount[i]
			for k := 0; k < d; k++ {
				ac.pooled[i*d+k] *= inv
			}
		}
	}

	rw := m.rationaleW.Value.Data().([]float32)
	rb := m.rationaleB.Value.Data().([]float32)
	rationaleLogits := make([]float32, b*s)
	for i := 0; i < b; i++ {
		for t := 0; t < s; t++ {
			id := int(ids[i*s+t])
			var dot float32
			for k := 0; k < d; k++ {
				dot += rw[k] * emb[id*d+k]
			}
			rationaleLogits[i*s+t] = dot + rb[0]
		}
	}

	yw := m.yngW.Value.Data().([]float32)
	yb := m.yngB.Value.Data().([]float32)
	yngLogits := make([]float32, b*3)
	for i := 0; i < b; i++ {
		for c := 0; c < 3; c++ {
			var dot float32
			for k := 0; k < d; k++ {
				dot += yw[c*d+k] * ac.pooled[i*d+k]
			}
			yngLogits[i*3+c] = dot + yb[c]
		}
	}

	outputs := make(map[string]*tensor.Dense, 3)
	if m.modelType == "encoder" {
		outputs[losses.OutputRationaleLogits] = tensor.New(tensor.WithShape(b, s), tensor.WithBacking(rationaleLogits))
		outputs[losses.OutputYNGLogits] = tensor.New(tensor.WithShape(b, 3), tensor.WithBacking(yngLogits))
		m.last = ac
		return outputs, nil
	}

	labelsT, ok := inputs[losses.FieldLabels]
	if !ok {
		return nil, fmt.Errorf("missing batch field %q", losses.FieldLabels)
	}
	labels := labelsT.Data().([]int32)
	lt := labelsT.Shape()[1]

	ac.labelSeq = lt
	ac.labels = labels
	ac.contexts = make([]float32, b*lt*d)

	dw := m.decoderW.Value.Data().([]float32)
	db := m.decoderB.Value.Data().([]float32)
	logits := make([]float32, b*lt*m.vocabSize)

	for i := 0; i < b; i++ {
		for t := 0; t < lt; t++ {
			ctx := ac.contexts[(i*lt+t)*d : (i*lt+t+1)*d]
			copy(ctx, ac.pooled[i*d:(i+1)*d])
			if t > 0 {
				if prev := labels[i*lt+t-1]; prev >= 0 && int(prev) < m.vocabSize {
					for k := 0; k < d; k++ {
						ctx[k] += ac.teacherForce * emb[int(prev)*d+k]
					}
				}
			}

			row := logits[(i*lt+t)*m.vocabSize : (i*lt+t+1)*m.vocabSize]
			for v := 0; v < m.vocabSize; v++ {
				var dot float32
				for k := 0; k < d; k++ {
					dot += dw[v*d+k] * ctx[k]
				}
				row[v] = dot + db[v]
			}
		}
	}

	outputs[losses.OutputLogits] = tensor.New(tensor.WithShape(b, lt, m.vocabSize), tensor.WithBacking(logits))
	outputs[losses.OutputEncoderRationaleLogits] = tensor.New(tensor.WithShape(b, s), tensor.WithBacking(rationaleLogits))
	outputs[losses.OutputEncoderYNGLogits] = tensor.New(tensor.WithShape(b, 3), tensor.WithBacking(yngLogits))
	m.last = ac
	return outputs, nil
}

// Backward accumulates parameter gradients from the loss gradients of the
// last forward pass. Gradients are added, not assigned: the accumulation
// window is closed by the optimizer's ZeroGrad.
func (m *Baseline) Backward(grads map[string]*tensor.Dense) error {
	ac := m.last
	if ac == nil {
		return fmt.Errorf("backward called before forward")
	}

	b, s, d := ac.batch, ac.seq, m.dim
	emb := m.embedding.Value.Data().([]float32)
	gEmb := m.embedding.Grad.Data().([]float32)
	dpooled := make([]float32, b*d)

	rationaleName := losses.OutputEncoderRationaleLogits
	yngName := losses.OutputEncoderYNGLogits
	if m.modelType == "encoder" {
		rationaleName = losses.OutputRationaleLogits
		yngName = losses.OutputYNGLogits
	}

	if g, ok := grads[rationaleName]; ok {
		gData := g.Data().([]float32)
		rw := m.rationaleW.Value.Data().([]float32)
		gRW := m.rationaleW.Grad.Data().([]float32)
		gRB := m.rationaleB.Grad.Data().([]float32)

		for i := 0; i < b; i++ {
			for t := 0; t < s; t++ {
				gr := gData[i*s+t]
				if gr == 0 {
					continue
				}
				id := int(ac.ids[i*s+t])
				gRB[0] += gr
				for k := 0; k < d; k++ {
					gRW[k] += gr * emb[id*d+k]
					gEmb[id*d+k] += gr * rw[k]
				}
			}
		}
	}

	if g, ok := grads[yngName]; ok {
		gData := g.Data().([]float32)
		yw := m.yngW.Value.Data().([]float32)
		gYW := m.yngW.Grad.Data().([]float32)
		gYB := m.yngB.Grad.Data().([]float32)

		for i := 0; i < b; i++ {
			for c := 0; c < 3; c++ {
				gy := gData[i*3+c]
				if gy == 0 {
					continue
				}
				gYB[c] += gy
				for k := 0; k < d; k++ {
					gYW[c*d+k] += gy * ac.pooled[i*d+k]
					dpooled[i*d+k] += gy * yw[c*d+k]
				}
			}
		}
	}

	if g, ok := grads[losses.OutputLogits]; ok && m.modelType == "encoder_decoder" {
		gData := g.Data().([]float32)
		lt := ac.labelSeq
		dw := m.decoderW.Value.Data().([]float32)
		gDW := m.decoderW.Grad.Data().([]float32)
		gDB := m.decoderB.Grad.Data().([]float32)
		dctx := make([]float32, d)

		for i := 0; i < b; i++ {
			for t := 0; t < lt; t++ {
				ctx := ac.contexts[(i*lt+t)*d : (i*lt+t+1)*d]
				row := gData[(i*lt+t)*m.vocabSize : (i*lt+t+1)*m.vocabSize]

				for k := range dctx {
					dctx[k] = 0
				}
				for v, gv := range row {
					if gv == 0 {
						continue
					}
					gDB[v] += gv
					for k := 0; k < d; k++ {
						gDW[v*d+k] += gv * ctx[k]
						dctx[k] += gv * dw[v*d+k]
					}
				}

				for k := 0; k < d; k++ {
					dpooled[i*d+k] += dctx[k]
				}
				if t > 0 {
					if prev := ac.labels[i*lt+t-1]; prev >= 0 && int(prev) < m.vocabSize {
						for k := 0; k < d; k++ {
							gEmb[int(prev)*d+k] += ac.teacherForce * dctx[k]
						}
					}
				}
			}
		}
	}

	// Pooling distributes back to the attended token embeddings.
	for i := 0; i < b; i++ {
		if ac.attCount[i] == 0 {
			continue
		}
		inv := 1 / ac.attCount[i]
		for t := 0; t < s; t++ {
			a := ac.att[i*s+t]
			if a == 0 {
				continue
			}
			id := int(ac.ids[i*s+t])
			for k := 0; k < d; k++ {
				gEmb[id*d+k] += a * inv * dpooled[i*d+k]
			}
		}
	}

	return nil
}
