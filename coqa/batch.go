package coqa

import (
	"github.com/pdevine/tensor"

	"github.com/convqa/convqa/losses"
)

// Batch field names beyond the loss targets.
const (
	FieldInputIDs      = "input_ids"
	FieldAttentionMask = "attention_mask"
)

// Batch maps field names to tensors sharing a leading batch dimension,
// row-aligned by example.
type Batch map[string]*tensor.Dense

// Size returns the shared leading dimension, zero for an empty batch.
func (b Batch) Size() int {
	for _, t := range b {
		return t.Shape()[0]
	}
	return 0
}

// Select keeps the fields whose names appear in args, so a model receives
// exactly the arguments its forward pass declares. Unmatched fields are
// ignored, which lets heterogeneous batches serve different model types.
func (b Batch) Select(args []string) Batch {
	out := make(Batch, len(args))
	for _, name := range args {
		if t, ok := b[name]; ok {
			out[name] = t
		}
	}
	return out
}

// Collate pads a slice of examples to the batch maximum lengths and stacks
// them into tensors: input ids and attention to zero, decoder labels to the
// ignore index so padding never scores, rationale labels and passage mask
// to zero so padding carries no weight.
func Collate(examples []Example) Batch {
	b := len(examples)

	var inputLen, labelLen int
	for _, ex := range examples {
		inputLen = max(inputLen, len(ex.InputIDs))
		labelLen = max(labelLen, len(ex.Labels))
	}
	if inputLen == 0 {
		inputLen = 1
	}
	if labelLen == 0 {
		labelLen = 1
	}

	inputIDs := make([]int32, b*inputLen)
	attention := make([]float32, b*inputLen)
	labels := make([]int32, b*labelLen)
	rationale := make([]float32, b*inputLen)
	passage := make([]float32, b*inputLen)
	yng := make([]int32, b)
	yesNo := make([]float32, b)

	for i := range labels {
		labels[i] = losses.IgnoreIndex
	}

	for i, ex := range examples {
		copy(inputIDs[i*inputLen:], ex.InputIDs)
		for t := range ex.InputIDs {
			attention[i*inputLen+t] = 1
		}
		copy(labels[i*labelLen:], ex.Labels)
		copy(rationale[i*inputLen:], ex.RationaleLabels)
		copy(passage[i*inputLen:], ex.PassageMask)
		yng[i] = ex.YNGLabel
		if ex.YesNo {
			yesNo[i] = 1
		}
	}

	return Batch{
		FieldInputIDs:               tensor.New(tensor.WithShape(b, inputLen), tensor.WithBacking(inputIDs)),
		FieldAttentionMask:          tensor.New(tensor.WithShape(b, inputLen), tensor.WithBacking(attention)),
		losses.FieldLabels:          tensor.New(tensor.WithShape(b, labelLen), tensor.WithBacking(labels)),
		losses.FieldRationaleLabels: tensor.New(tensor.WithShape(b, inputLen), tensor.WithBacking(rationale)),
		losses.FieldPassageMask:     tensor.New(tensor.WithShape(b, inputLen), tensor.WithBacking(passage)),
		losses.FieldYNGLabel:        tensor.New(tensor.WithShape(b), tensor.WithBacking(yng)),
		losses.FieldYesNo:           tensor.New(tensor.WithShape(b), tensor.WithBacking(yesNo)),
	}
}
