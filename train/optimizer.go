package train

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/fxamacker/cbor/v2"
)

// Optimizer applies accumulated gradients to parameters. SetLR is driven
// by the learning rate scheduler every step; Step runs only on
// accumulation boundaries. Snapshot and Restore round-trip internal state
// through checkpoints.
type Optimizer interface {
	Step(params []*Parameter) error
	ZeroGrad(params []*Parameter)
	SetLR(lr float64)
	LR() float64
	Snapshot() ([]byte, error)
	Restore(b []byte) error
}

// NewOptimizer builds the optimizer named by the configuration.
func NewOptimizer(name string, lr, weightDecay float64) (Optimizer, error) {
	switch name {
	case "sgd":
		return &SGD{lr: lr}, nil
	case "adamw":
		return NewAdamW(lr, weightDecay), nil
	}

	return nil, fmt.Errorf("invalid optimizer %q: supported values are \"sgd\" and \"adamw\"", name)
}

func zeroGrad(params []*Parameter) {
	for _, p := range params {
		g := p.Grad.Data().([]float32)
		for i := range g {
			g[i] = 0
		}
	}
}

// SGD is plain stochastic gradient descent.
type SGD struct {
	lr float64
}

func (o *SGD) Step(params []*Parameter) error {
	lr := float32(o.lr)
	for _, p := range params {
		v := p.Value.Data().([]float32)
		g := p.Grad.Data().([]float32)
		for i := range v {
			v[i] -= lr * g[i]
		}
	}
	return nil
}

func (o *SGD) ZeroGrad(params []*Parameter) { zeroGrad(params) }
func (o *SGD) SetLR(lr float64)             { o.lr = lr }
func (o *SGD) LR() float64                  { return o.lr }

type sgdState struct {
	LR float64 `cbor:"lr"`
}

func (o *SGD) Snapshot() ([]byte, error) {
	return cbor.Marshal(sgdState{LR: o.lr})
}

func (o *SGD) Restore(b []byte) error {
	var st sgdState
	if err := cbor.Unmarshal(b, &st); err != nil {
		return err
	}
	o.lr = st.LR
	return nil
}

// AdamW is Adam with decoupled weight decay.
type AdamW struct {
	lr          float64
	weightDecay float64
	beta1       float32
	beta2       float32
	eps         float32

	step    int
	moments map[string]*adamMoments
}

type adamMoments struct {
	M []float32 `cbor:"m"`
	V []float32 `cbor:"v"`
}

func NewAdamW(lr, weightDecay float64) *AdamW {
	return &AdamW{
		lr:          lr,
		weightDecay: weightDecay,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		moments:     make(map[string]*adamMoments),
	}
}

func (o *AdamW) Step(params []*Parameter) error {
	o.step++
	c1 := 1 - math.Pow(float64(o.beta1), float64(o.step))
	c2 := 1 - math.Pow(float64(o.beta2), float64(o.step))
	lr := float32(o.lr)
	decay := float32(o.weightDecay)

	for _, p := range params {
		v := p.Value.Data().([]float32)
		g := p.Grad.Data().([]float32)

		mom, ok := o.moments[p.Name]
		if !ok {
			mom = &adamMoments{M: make([]float32, len(v)), V: make([]float32, len(v))}
			o.moments[p.Name] = mom
		}
		if len(mom.M) != len(v) {
			return fmt.Errorf("adamw: moment size %d does not match parameter %q size %d", len(mom.M), p.Name, len(v))
		}

		for i := range v {
			mom.M[i] = o.beta1*mom.M[i] + (1-o.beta1)*g[i]
			mom.V[i] = o.beta2*mom.V[i] + (1-o.beta2)*g[i]*g[i]

			mHat := mom.M[i] / float32(c1)
			vHat := mom.V[i] / float32(c2)

			v[i] -= lr * (mHat/(math32.Sqrt(vHat)+o.eps) + decay*v[i])
		}
	}
	return nil
}

func (o *AdamW) ZeroGrad(params []*Parameter) { zeroGrad(params) }
func (o *AdamW) SetLR(lr float64)             { o.lr = lr }
func (o *AdamW) LR() float64                  { return o.lr }

type adamState struct {
	LR      float64                 `cbor:"lr"`
	Step    int                     `cbor:"step"`
	Moments map[string]*adamMoments `cbor:"moments"`
}

func (o *AdamW) Snapshot() ([]byte, error) {
	return cbor.Marshal(adamState{LR: o.lr, Step: o.step, Moments: o.moments})
}

func (o *AdamW) Restore(b []byte) error {
	var st adamState
	if err := cbor.Unmarshal(b, &st); err != nil {
		return err
	}
	o.lr = st.LR
	o.step = st.Step
	if st.Moments != nil {
		o.moments = st.Moments
	}
	return nil
}

// ClipGradNorm rescales all gradients in place when their global L2 norm
// exceeds maxNorm, and returns the norm observed before clipping.
func ClipGradNorm(params []*Parameter, maxNorm float64) float64 {
	var sumSquares float64
	for _, p := range params {
		for _, g := range p.Grad.Data().([]float32) {
			sumSquares += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sumSquares)

	if norm > maxNorm {
		scale := float32(maxNorm / (norm + 1e-6))
		for _, p := range params {
			g := p.Grad.Data().([]float32)
			for i := range g {
				g[i] *= scale
			}
		}
	}
	return norm
}
