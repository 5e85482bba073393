package train

import (
	"testing"

	"github.com/pdevine/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParam(name string, values ...float32) *Parameter {
	grads := make([]float32, len(values))
	return &Parameter{
		Name:  name,
		Value: tensor.New(tensor.WithShape(len(values)), tensor.WithBacking(values)),
		Grad:  tensor.New(tensor.WithShape(len(values)), tensor.WithBacking(grads)),
	}
}

func setGrad(p *Parameter, values ...float32) {
	copy(p.Grad.Data().([]float32), values)
}

func TestNewOptimizer(t *testing.T) {
	for _, name := range []string{"sgd", "adamw"} {
		opt, err := NewOptimizer(name, 1e-3, 0)
		require.NoError(t, err)
		assert.Equal(t, 1e-3, opt.LR())
	}

	_, err := NewOptimizer("rmsprop", 1e-3, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid optimizer")
}

func TestSGDStep(t *testing.T) {
	p := newParam("w", 1)
	setGrad(p, 0.5)

	opt := &SGD{lr: 0.1}
	require.NoError(t, opt.Step([]*Parameter{p}))

	assert.InDelta(t, 0.95, p.Value.Data().([]float32)[0], 1e-6)
}

func TestZeroGrad(t *testing.T) {
	p := newParam("w", 1, 2)
	setGrad(p, 3, 4)

	opt := &SGD{lr: 0.1}
	opt.ZeroGrad([]*Parameter{p})

	for _, g := range p.Grad.Data().([]float32) {
		assert.Zero(t, g)
	}
}

func TestAdamWFirstStep(t *testing.T) {
	p := newParam("w", 1)
	setGrad(p, 1)

	opt := NewAdamW(0.1, 0)
	require.NoError(t, opt.Step([]*Parameter{p}))

	// With bias correction the first update moves by almost exactly lr.
	assert.InDelta(t, 0.9, p.Value.Data().([]float32)[0], 1e-4)
}

func TestAdamWWeightDecay(t *testing.T) {
	p := newParam("w", 1)
	setGrad(p, 0)

	// Zero gradient: only the decoupled decay term moves the weight.
	opt := NewAdamW(0.1, 0.5)
	require.NoError(t, opt.Step([]*Parameter{p}))

	assert.InDelta(t, 0.95, p.Value.Data().([]float32)[0], 1e-5)
}

func TestAdamWSnapshotRestore(t *testing.T) {
	p := newParam("w", 1)
	setGrad(p, 1)

	opt := NewAdamW(0.1, 0)
	require.NoError(t, opt.Step([]*Parameter{p}))

	snap, err := opt.Snapshot()
	require.NoError(t, err)

	restored := NewAdamW(0.1, 0)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, opt.step, restored.step)
	require.Contains(t, restored.moments, "w")
	assert.InDeltaSlice(t, opt.moments["w"].M, restored.moments["w"].M, 1e-7)
	assert.InDeltaSlice(t, opt.moments["w"].V, restored.moments["w"].V, 1e-7)
}

func TestClipGradNorm(t *testing.T) {
	p := newParam("w", 0, 0)
	setGrad(p, 3, 4)

	norm := ClipGradNorm([]*Parameter{p}, 1)
	assert.InDelta(t, 5, norm, 1e-6)

	g := p.Grad.Data().([]float32)
	assert.InDelta(t, 0.6, g[0], 1e-5)
	assert.InDelta(t, 0.8, g[1], 1e-5)
}

func TestClipGradNormBelowThreshold(t *testing.T) {
	p := newParam("w", 0)
	setGrad(p, 0.5)

	norm := ClipGradNorm([]*Parameter{p}, 1)
	assert.InDelta(t, 0.5, norm, 1e-6)
	assert.InDelta(t, 0.5, p.Grad.Data().([]float32)[0], 1e-6)
}
