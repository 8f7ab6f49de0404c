package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Activation is applied elementwise (or per row for Softmax) after a
// layer's affine transform.
type Activation int

const (
	Linear Activation = iota
	ReLUActivation
	SoftmaxActivation
)

func (a Activation) String() string {
	switch a {
	case ReLUActivation:
		return "relu"
	case SoftmaxActivation:
		return "softmax"
	default:
		return "linear"
	}
}

// activation holds the forward output needed to differentiate a.
type activation struct {
	kind Activation
	out  *tensor.Tensor
}

// forward applies the activation to z in place.
func (a *activation) forward(z *tensor.Tensor) *tensor.Tensor {
	switch a.kind {
	case ReLUActivation:
		reluInPlace(z.Data)
	case SoftmaxActivation:
		softmaxRows(z.Data, z.Shape[len(z.Shape)-1])
	}
	a.out = z
	return z
}

// backward turns dL/d(out) into dL/dz in place.
func (a *activation) backward(g *tensor.Tensor) *tensor.Tensor {
	switch a.kind {
	case ReLUActivation:
		reluGrad(g.Data, a.out.Data)
	case SoftmaxActivation:
		softmaxGrad(g.Data, a.out.Data, a.out.Shape[len(a.out.Shape)-1])
	}
	return g
}

func reluInPlace(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

func reluGrad(g, out []float32) {
	for i, v := range out {
		if v <= 0 {
			g[i] = 0
		}
	}
}

func softmaxRows(x []float32, n int) {
	for off := 0; off < len(x); off += n {
		row := x[off : off+n]
		peak := row[0]
		for _, v := range row[1:] {
			peak = max(peak, v)
		}
		var sum float64
		for j, v := range row {
			e := math.Exp(float64(v - peak))
			row[j] = float32(e)
			sum += e
		}
		for j := range row {
			row[j] = float32(float64(row[j]) / sum)
		}
	}
}

// softmaxGrad computes dz_i = p_i * (g_i - sum_j g_j p_j) per row.
func softmaxGrad(g, p []float32, n int) {
	for off := 0; off < len(g); off += n {
		gr, pr := g[off:off+n], p[off:off+n]
		var dot float64
		for j := range gr {
			dot += float64(gr[j]) * float64(pr[j])
		}
		for j := range gr {
			gr[j] = float32(float64(pr[j]) * (float64(gr[j]) - dot))
		}
	}
}

// softmaxOutput is implemented by layers that end in a softmax, so the
// model can hand them the cross-entropy gradient with respect to the
// logits directly.
type softmaxOutput interface {
	endsInSoftmax() bool
	backwardLogits(grad *tensor.Tensor) *tensor.Tensor
}

// ReLU is a standalone rectifier layer.
type ReLU struct {
	name string
	act  activation
}

// NewReLU creates a ReLU layer.
func NewReLU(name string) *ReLU {
	return &ReLU{name: name, act: activation{kind: ReLUActivation}}
}

func (l *ReLU) Name() string { return l.name }

func (l *ReLU) Build(in []int, _ *rand.Rand) ([]int, error) {
	return append([]int(nil), in...), nil
}

func (l *ReLU) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	return l.act.forward(x.Clone())
}

func (l *ReLU) Backward(g *tensor.Tensor) *tensor.Tensor { return l.act.backward(g) }

func (l *ReLU) Params() []*Param { return nil }

// Softmax normalizes the last dimension into a probability distribution.
type Softmax struct {
	name string
	act  activation
}

// NewSoftmax creates a Softmax layer.
func NewSoftmax(name string) *Softmax {
	return &Softmax{name: name, act: activation{kind: SoftmaxActivation}}
}

func (l *Softmax) Name() string { return l.name }

func (l *Softmax) Build(in []int, _ *rand.Rand) ([]int, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("nn: layer %s: softmax needs at least one dimension", l.name)
	}
	return append([]int(nil), in...), nil
}

func (l *Softmax) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	return l.act.forward(x.Clone())
}

func (l *Softmax) Backward(g *tensor.Tensor) *tensor.Tensor { return l.act.backward(g) }

func (l *Softmax) Params() []*Param { return nil }

func (l *Softmax) endsInSoftmax() bool { return true }

func (l *Softmax) backwardLogits(g *tensor.Tensor) *tensor.Tensor { return g }
