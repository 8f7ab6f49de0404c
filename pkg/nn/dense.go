package nn

import (
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Dense is a fully connected layer on [batch, features] input.
type Dense struct {
	name  string
	units int
	init  Initializer

	in     int
	kernel *Param
	bias   *Param
	x      *tensor.Tensor
	act    activation
}

// NewDense creates a fully connected layer.
func NewDense(name string, units int, act Activation, init Initializer) *Dense {
	return &Dense{name: name, units: units, init: init, act: activation{kind: act}}
}

func (l *Dense) Name() string { return l.name }

func (l *Dense) Build(in []int, rng *rand.Rand) ([]int, error) {
	if len(in) != 1 {
		return nil, shapeError(l.name, in, "[features]")
	}
	l.in = in[0]
	l.kernel = newParam("kernel", true, l.in, l.units)
	l.bias = newParam("bias", true, l.units)
	l.init.fill(l.kernel.Value, l.in, l.units, rng)
	return []int{l.units}, nil
}

func (l *Dense) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	b := batchOf(x)
	l.x = x
	out := tensor.Zeros(b, l.units)
	gemm(false, false, 1, x.Data, b, l.in, l.kernel.Value, l.in, l.units, 0, out.Data)
	addBias(out.Data, l.bias.Value)
	return l.act.forward(out)
}

func (l *Dense) Backward(g *tensor.Tensor) *tensor.Tensor {
	return l.backwardLogits(l.act.backward(g))
}

func (l *Dense) endsInSoftmax() bool { return l.act.kind == SoftmaxActivation }

// backwardLogits differentiates the affine part given dL/dz.
func (l *Dense) backwardLogits(g *tensor.Tensor) *tensor.Tensor {
	b := batchOf(g)
	gemm(true, false, 1, l.x.Data, b, l.in, g.Data, b, l.units, 1, l.kernel.Grad)
	sumRows(l.bias.Grad, g.Data)
	dx := tensor.Zeros(b, l.in)
	gemm(false, true, 1, g.Data, b, l.units, l.kernel.Value, l.in, l.units, 0, dx.Data)
	return dx
}

func (l *Dense) Params() []*Param { return []*Param{l.kernel, l.bias} }
