// Package tensor provides a minimal dense float32 tensor in row-major
// (C) order. Image-like tensors use NHWC layout: [batch, height, width,
// channels].
package tensor

import (
	"fmt"
)

// Tensor is a dense row-major float32 array with an explicit shape.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New wraps data with the given shape. It panics if the sizes disagree.
func New(shape []int, data []float32) *Tensor {
	if n := Size(shape); n != len(data) {
		panic(fmt.Sprintf("tensor: shape %v needs %d values, got %d", shape, n, len(data)))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}
}

// Zeros allocates a zero-filled tensor.
func Zeros(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, Size(shape))}
}

// Size returns the number of elements described by shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.Shape[i] }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	d := make([]float32, len(t.Data))
	copy(d, t.Data)
	return &Tensor{Shape: append([]int(nil), t.Shape...), Data: d}
}

// Reshape returns a tensor sharing data with a new shape.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	return New(shape, t.Data)
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Stack concatenates tensors with a leading batch dimension of 1 along
// that dimension. All inputs must share the trailing shape.
func Stack(items []*Tensor) (*Tensor, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("tensor: stack of zero tensors")
	}
	inner := items[0].Shape[1:]
	per := Size(inner)
	out := make([]float32, 0, per*len(items))
	for i, it := range items {
		if it.Shape[0] != 1 || !SameShape(it.Shape[1:], inner) {
			return nil, fmt.Errorf("tensor: stack item %d has shape %v, want [1 %v]", i, it.Shape, inner)
		}
		out = append(out, it.Data...)
	}
	shape := append([]int{len(items)}, inner...)
	return &Tensor{Shape: shape, Data: out}, nil
}

// Row returns the i-th slice along the first dimension, sharing data.
func (t *Tensor) Row(i int) []float32 {
	per := len(t.Data) / t.Shape[0]
	return t.Data[i*per : (i+1)*per]
}

// ArgMax returns the index of the largest value in v, preferring the
// lowest index on ties.
func ArgMax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
