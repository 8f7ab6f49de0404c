package nn

import (
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// MaxPool2D takes the maximum over non-overlapping size x size windows
// (stride = size, valid padding).
type MaxPool2D struct {
	name string
	size int

	inH, inW, c int
	outH, outW  int
	argmax      []int32
	inShape     []int
}

// NewMaxPool2D creates a max-pooling layer.
func NewMaxPool2D(name string, size int) *MaxPool2D {
	return &MaxPool2D{name: name, size: size}
}

func (l *MaxPool2D) Name() string { return l.name }

func (l *MaxPool2D) Build(in []int, _ *rand.Rand) ([]int, error) {
	if len(in) != 3 || in[0] < l.size || in[1] < l.size {
		return nil, shapeError(l.name, in, "[height width channels] at least pool size")
	}
	l.inH, l.inW, l.c = in[0], in[1], in[2]
	l.outH, l.outW = l.inH/l.size, l.inW/l.size
	return []int{l.outH, l.outW, l.c}, nil
}

func (l *MaxPool2D) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	b := batchOf(x)
	c := l.c
	l.inShape = x.Shape
	out := tensor.Zeros(b, l.outH, l.outW, c)
	if cap(l.argmax) < len(out.Data) {
		l.argmax = make([]int32, len(out.Data))
	}
	l.argmax = l.argmax[:len(out.Data)]
	for s := 0; s < b; s++ {
		inOff := s * l.inH * l.inW * c
		for oy := 0; oy < l.outH; oy++ {
			for ox := 0; ox < l.outW; ox++ {
				for j := 0; j < c; j++ {
					best := inOff + ((oy*l.size)*l.inW+ox*l.size)*c + j
					for py := 0; py < l.size; py++ {
						for px := 0; px < l.size; px++ {
							idx := inOff + ((oy*l.size+py)*l.inW+ox*l.size+px)*c + j
							if x.Data[idx] > x.Data[best] {
								best = idx
							}
						}
					}
					o := ((s*l.outH+oy)*l.outW+ox)*c + j
					out.Data[o] = x.Data[best]
					l.argmax[o] = int32(best)
				}
			}
		}
	}
	return out
}

func (l *MaxPool2D) Backward(g *tensor.Tensor) *tensor.Tensor {
	dx := tensor.Zeros(l.inShape...)
	for o, v := range g.Data {
		dx.Data[l.argmax[o]] += v
	}
	return dx
}

func (l *MaxPool2D) Params() []*Param { return nil }

// GlobalAvgPool2D averages each channel over the spatial axes:
// [b, h, w, c] -> [b, c].
type GlobalAvgPool2D struct {
	name    string
	h, w, c int
}

// NewGlobalAvgPool2D creates a global average pooling layer.
func NewGlobalAvgPool2D(name string) *GlobalAvgPool2D {
	return &GlobalAvgPool2D{name: name}
}

func (l *GlobalAvgPool2D) Name() string { return l.name }

func (l *GlobalAvgPool2D) Build(in []int, _ *rand.Rand) ([]int, error) {
	if len(in) != 3 {
		return nil, shapeError(l.name, in, "[height width channels]")
	}
	l.h, l.w, l.c = in[0], in[1], in[2]
	return []int{l.c}, nil
}

func (l *GlobalAvgPool2D) Forward(x *tensor.Tensor, _ bool) *tensor.Tensor {
	b := batchOf(x)
	out := tensor.Zeros(b, l.c)
	hw := l.h * l.w
	for s := 0; s < b; s++ {
		dst := out.Data[s*l.c : (s+1)*l.c]
		src := x.Data[s*hw*l.c : (s+1)*hw*l.c]
		sumRows(dst, src)
		for j := range dst {
			dst[j] /= float32(hw)
		}
	}
	return out
}

func (l *GlobalAvgPool2D) Backward(g *tensor.Tensor) *tensor.Tensor {
	b := batchOf(g)
	hw := l.h * l.w
	dx := tensor.Zeros(b, l.h, l.w, l.c)
	for s := 0; s < b; s++ {
		gs := g.Data[s*l.c : (s+1)*l.c]
		for p := 0; p < hw; p++ {
			dst := dx.Data[(s*hw+p)*l.c:][:l.c]
			for j, v := range gs {
				dst[j] = v / float32(hw)
			}
		}
	}
	return dx
}

func (l *GlobalAvgPool2D) Params() []*Param { return nil }
