package nn

import (
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Conv2D is a stride-1 2-D convolution over NHWC input. The kernel is
// stored as [kh, kw, inChannels, filters]. Each sample is unrolled with
// im2col and multiplied by the kernel matrix.
type Conv2D struct {
	name    string
	filters int
	kh, kw  int
	padding Padding
	init    Initializer

	inH, inW, inC int
	outH, outW    int
	padT, padL    int

	kernel *Param
	bias   *Param
	x      *tensor.Tensor
	cols   []float32
	act    activation
}

// NewConv2D creates a square-kernel convolution.
func NewConv2D(name string, filters, kernel int, padding Padding, act Activation, init Initializer) *Conv2D {
	return &Conv2D{
		name:    name,
		filters: filters,
		kh:      kernel,
		kw:      kernel,
		padding: padding,
		init:    init,
		act:     activation{kind: act},
	}
}

func (l *Conv2D) Name() string { return l.name }

func (l *Conv2D) Build(in []int, rng *rand.Rand) ([]int, error) {
	if len(in) != 3 {
		return nil, shapeError(l.name, in, "[height width channels]")
	}
	l.inH, l.inW, l.inC = in[0], in[1], in[2]
	if l.padding == Same {
		l.outH, l.outW = l.inH, l.inW
		l.padT, l.padL = (l.kh-1)/2, (l.kw-1)/2
	} else {
		l.outH, l.outW = l.inH-l.kh+1, l.inW-l.kw+1
		if l.outH <= 0 || l.outW <= 0 {
			return nil, shapeError(l.name, in, "spatial size >= kernel")
		}
	}
	l.kernel = newParam("kernel", true, l.kh, l.kw, l.inC, l.filters)
	l.bias = newParam("bias", true, l.filters)
	l.init.fill(l.kernel.Value, l.kh*l.kw*l.inC, l.kh*l.kw*l.filters, rng)
	return []int{l.outH, l.outW, l.filters}, nil
}

// pointwise reports whether im2col is the identity.
func (l *Conv2D) pointwise() bool {
	return l.kh == 1 && l.kw == 1
}

func (l *Conv2D) depth() int { return l.kh * l.kw * l.inC }

// im2col unrolls one sample into a [outH*outW, kh*kw*inC] matrix.
func (l *Conv2D) im2col(x, cols []float32) {
	c := l.inC
	kd := l.depth()
	for oy := 0; oy < l.outH; oy++ {
		for ox := 0; ox < l.outW; ox++ {
			row := cols[(oy*l.outW+ox)*kd:][:kd]
			i := 0
			for ky := 0; ky < l.kh; ky++ {
				iy := oy + ky - l.padT
				for kx := 0; kx < l.kw; kx++ {
					ix := ox + kx - l.padL
					if iy < 0 || iy >= l.inH || ix < 0 || ix >= l.inW {
						clear(row[i : i+c])
					} else {
						copy(row[i:i+c], x[(iy*l.inW+ix)*c:][:c])
					}
					i += c
				}
			}
		}
	}
}

// col2im scatters column gradients back onto one sample, accumulating.
func (l *Conv2D) col2im(cols, dx []float32) {
	c := l.inC
	kd := l.depth()
	for oy := 0; oy < l.outH; oy++ {
		for ox := 0; ox < l.outW; ox++ {
			row := cols[(oy*l.outW+ox)*kd:][:kd]
			i := 0
			for ky := 0; ky < l.kh; ky++ {
				iy := oy + ky - l.padT
				for kx := 0; kx < l.kw; kx++ {
					ix := ox + kx - l.padL
					if iy >= 0 && iy < l.inH && ix >= 0 && ix < l.inW {
						dst := dx[(iy*l.inW+ix)*c:][:c]
						for j, v := range row[i : i+c] {
							dst[j] += v
						}
					}
					i += c
				}
			}
		}
	}
}

// sampleCols returns the im2col matrix of sample b.
func (l *Conv2D) sampleCols(x []float32) []float32 {
	if l.pointwise() && l.padding == Same {
		return x
	}
	n := l.outH * l.outW * l.depth()
	if cap(l.cols) < n {
		l.cols = make([]float32, n)
	}
	l.cols = l.cols[:n]
	l.im2col(x, l.cols)
	return l.cols
}

func (l *Conv2D) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	b := batchOf(x)
	l.x = x
	in := l.inH * l.inW * l.inC
	p := l.outH * l.outW
	out := tensor.Zeros(b, l.outH, l.outW, l.filters)
	for s := 0; s < b; s++ {
		cols := l.sampleCols(x.Data[s*in : (s+1)*in])
		dst := out.Data[s*p*l.filters : (s+1)*p*l.filters]
		gemm(false, false, 1, cols, p, l.depth(), l.kernel.Value, l.depth(), l.filters, 0, dst)
		addBias(dst, l.bias.Value)
	}
	return l.act.forward(out)
}

func (l *Conv2D) Backward(g *tensor.Tensor) *tensor.Tensor {
	g = l.act.backward(g)
	b := batchOf(g)
	in := l.inH * l.inW * l.inC
	p := l.outH * l.outW
	kd := l.depth()
	dx := tensor.Zeros(b, l.inH, l.inW, l.inC)
	var dcols []float32
	if !l.pointwise() || l.padding != Same {
		dcols = make([]float32, p*kd)
	}
	for s := 0; s < b; s++ {
		gs := g.Data[s*p*l.filters : (s+1)*p*l.filters]
		cols := l.sampleCols(l.x.Data[s*in : (s+1)*in])
		gemm(true, false, 1, cols, p, kd, gs, p, l.filters, 1, l.kernel.Grad)
		sumRows(l.bias.Grad, gs)
		dxs := dx.Data[s*in : (s+1)*in]
		if dcols == nil {
			gemm(false, true, 1, gs, p, l.filters, l.kernel.Value, kd, l.filters, 0, dxs)
			continue
		}
		gemm(false, true, 1, gs, p, l.filters, l.kernel.Value, kd, l.filters, 0, dcols)
		l.col2im(dcols, dxs)
	}
	return dx
}

func (l *Conv2D) Params() []*Param { return []*Param{l.kernel, l.bias} }
