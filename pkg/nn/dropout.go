package nn

import (
	"fmt"
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Dropout zeroes a fraction Rate of activations during training and
// rescales the rest by 1/(1-Rate). It is the identity at inference.
type Dropout struct {
	name string
	rate float64
	rng  *rand.Rand
	mask []float32
}

// NewDropout creates a Dropout layer.
func NewDropout(name string, rate float64) *Dropout {
	return &Dropout{name: name, rate: rate}
}

func (l *Dropout) Name() string { return l.name }

func (l *Dropout) Build(in []int, rng *rand.Rand) ([]int, error) {
	if l.rate < 0 || l.rate >= 1 {
		return nil, fmt.Errorf("nn: layer %s: dropout rate %g not in [0, 1)", l.name, l.rate)
	}
	l.rng = rng
	return append([]int(nil), in...), nil
}

func (l *Dropout) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	if !training || l.rate == 0 {
		l.mask = nil
		return x
	}
	out := x.Clone()
	if cap(l.mask) < len(out.Data) {
		l.mask = make([]float32, len(out.Data))
	}
	l.mask = l.mask[:len(out.Data)]
	keep := float32(1 / (1 - l.rate))
	for i := range out.Data {
		if l.rng.Float64() < l.rate {
			l.mask[i] = 0
		} else {
			l.mask[i] = keep
		}
		out.Data[i] *= l.mask[i]
	}
	return out
}

func (l *Dropout) Backward(g *tensor.Tensor) *tensor.Tensor {
	if l.mask == nil {
		return g
	}
	for i := range g.Data {
		g.Data[i] *= l.mask[i]
	}
	return g
}

func (l *Dropout) Params() []*Param { return nil }
