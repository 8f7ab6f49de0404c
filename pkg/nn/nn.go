// Package nn is a small float32 neural network library with explicit
// backpropagation, sized for spectrogram classifiers.
//
// Tensors are NHWC. A Model is an ordered stack of Layers built against a
// fixed per-sample input shape. Matrix products go through gonum's
// float32 BLAS.
//
// A Model is safe for concurrent use; forward and backward passes are
// serialized because layers cache activations between them.
package nn

import (
	"fmt"
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Layer is one stage of a Model.
//
// Build is called once with the per-sample input shape (no batch
// dimension). It allocates parameters and returns the per-sample output
// shape. Forward and Backward operate on batched tensors; Backward must
// follow the Forward call it differentiates and accumulates into the
// parameter gradients. Backward may reuse grad's storage.
type Layer interface {
	Name() string
	Build(in []int, rng *rand.Rand) ([]int, error)
	Forward(x *tensor.Tensor, training bool) *tensor.Tensor
	Backward(grad *tensor.Tensor) *tensor.Tensor
	Params() []*Param
}

// Padding selects the convolution border mode.
type Padding int

const (
	// Same zero-pads so the output has the input's spatial size.
	Same Padding = iota
	// Valid uses only positions where the kernel fits entirely.
	Valid
)

func (p Padding) String() string {
	if p == Valid {
		return "valid"
	}
	return "same"
}

func shapeError(layer string, in []int, want string) error {
	return fmt.Errorf("nn: layer %s: input shape %v, want %s", layer, in, want)
}

func batchOf(x *tensor.Tensor) int { return x.Shape[0] }
