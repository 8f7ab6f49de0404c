package nn

import (
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// DepthwiseConv2D convolves each input channel with its own kernel
// (depth multiplier 1), stride 1. The kernel is [kh, kw, channels, 1].
type DepthwiseConv2D struct {
	name    string
	kh, kw  int
	padding Padding
	init    Initializer

	inH, inW, c int
	outH, outW  int
	padT, padL  int

	kernel *Param
	bias   *Param
	x      *tensor.Tensor
	act    activation
}

// NewDepthwiseConv2D creates a square-kernel depthwise convolution.
func NewDepthwiseConv2D(name string, kernel int, padding Padding, act Activation, init Initializer) *DepthwiseConv2D {
	return &DepthwiseConv2D{name: name, kh: kernel, kw: kernel, padding: padding, init: init, act: activation{kind: act}}
}

func (l *DepthwiseConv2D) Name() string { return l.name }

func (l *DepthwiseConv2D) Build(in []int, rng *rand.Rand) ([]int, error) {
	if len(in) != 3 {
		return nil, shapeError(l.name, in, "[height width channels]")
	}
	l.inH, l.inW, l.c = in[0], in[1], in[2]
	if l.padding == Same {
		l.outH, l.outW = l.inH, l.inW
		l.padT, l.padL = (l.kh-1)/2, (l.kw-1)/2
	} else {
		l.outH, l.outW = l.inH-l.kh+1, l.inW-l.kw+1
		if l.outH <= 0 || l.outW <= 0 {
			return nil, shapeError(l.name, in, "spatial size >= kernel")
		}
	}
	l.kernel = newParam("depthwise_kernel", true, l.kh, l.kw, l.c, 1)
	l.bias = newParam("bias", true, l.c)
	l.init.fill(l.kernel.Value, l.kh*l.kw, l.kh*l.kw, rng)
	return []int{l.outH, l.outW, l.c}, nil
}

func (l *DepthwiseConv2D) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	b := batchOf(x)
	l.x = x
	c := l.c
	out := tensor.Zeros(b, l.outH, l.outW, c)
	k := l.kernel.Value
	for s := 0; s < b; s++ {
		xs := x.Data[s*l.inH*l.inW*c:]
		os := out.Data[s*l.outH*l.outW*c:]
		for oy := 0; oy < l.outH; oy++ {
			for ox := 0; ox < l.outW; ox++ {
				dst := os[(oy*l.outW+ox)*c:][:c]
				copy(dst, l.bias.Value)
				for ky := 0; ky < l.kh; ky++ {
					iy := oy + ky - l.padT
					if iy < 0 || iy >= l.inH {
						continue
					}
					for kx := 0; kx < l.kw; kx++ {
						ix := ox + kx - l.padL
						if ix < 0 || ix >= l.inW {
							continue
						}
						src := xs[(iy*l.inW+ix)*c:][:c]
						kr := k[(ky*l.kw+kx)*c:][:c]
						for j := range dst {
							dst[j] += src[j] * kr[j]
						}
					}
				}
			}
		}
	}
	return l.act.forward(out)
}

func (l *DepthwiseConv2D) Backward(g *tensor.Tensor) *tensor.Tensor {
	g = l.act.backward(g)
	b := batchOf(g)
	c := l.c
	dx := tensor.Zeros(b, l.inH, l.inW, c)
	k, dk := l.kernel.Value, l.kernel.Grad
	for s := 0; s < b; s++ {
		xs := l.x.Data[s*l.inH*l.inW*c:]
		dxs := dx.Data[s*l.inH*l.inW*c:]
		gs := g.Data[s*l.outH*l.outW*c:]
		for oy := 0; oy < l.outH; oy++ {
			for ox := 0; ox < l.outW; ox++ {
				gr := gs[(oy*l.outW+ox)*c:][:c]
				for j, v := range gr {
					l.bias.Grad[j] += v
				}
				for ky := 0; ky < l.kh; ky++ {
					iy := oy + ky - l.padT
					if iy < 0 || iy >= l.inH {
						continue
					}
					for kx := 0; kx < l.kw; kx++ {
						ix := ox + kx - l.padL
						if ix < 0 || ix >= l.inW {
							continue
						}
						off := (iy*l.inW + ix) * c
						kOff := (ky*l.kw + kx) * c
						for j, v := range gr {
							dk[kOff+j] += v * xs[off+j]
							dxs[off+j] += v * k[kOff+j]
						}
					}
				}
			}
		}
	}
	return dx
}

func (l *DepthwiseConv2D) Params() []*Param { return []*Param{l.kernel, l.bias} }
