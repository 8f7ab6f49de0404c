package nn

import (
	"math"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Loss scores a batch of predictions against targets of the same shape.
type Loss interface {
	Name() string
	Loss(pred, target *tensor.Tensor) float64
	Grad(pred, target *tensor.Tensor) *tensor.Tensor
}

const probEpsilon = 1e-7

// CategoricalCrossEntropy is -mean(sum(y*log(p))) over one-hot targets.
type CategoricalCrossEntropy struct{}

func (CategoricalCrossEntropy) Name() string { return "categorical_crossentropy" }

func (CategoricalCrossEntropy) Loss(pred, target *tensor.Tensor) float64 {
	b := batchOf(pred)
	var sum float64
	for i, y := range target.Data {
		if y == 0 {
			continue
		}
		p := math.Min(math.Max(float64(pred.Data[i]), probEpsilon), 1-probEpsilon)
		sum -= float64(y) * math.Log(p)
	}
	return sum / float64(b)
}

// Grad returns dL/dp with clipped probabilities.
func (CategoricalCrossEntropy) Grad(pred, target *tensor.Tensor) *tensor.Tensor {
	b := float64(batchOf(pred))
	g := tensor.Zeros(pred.Shape...)
	for i, y := range target.Data {
		p := math.Min(math.Max(float64(pred.Data[i]), probEpsilon), 1-probEpsilon)
		g.Data[i] = float32(-float64(y) / p / b)
	}
	return g
}

// LogitsGrad returns dL/dz for a softmax output, (p - y) / batch.
func (CategoricalCrossEntropy) LogitsGrad(pred, target *tensor.Tensor) *tensor.Tensor {
	b := float32(batchOf(pred))
	g := tensor.Zeros(pred.Shape...)
	for i := range g.Data {
		g.Data[i] = (pred.Data[i] - target.Data[i]) / b
	}
	return g
}

type logitsLoss interface {
	LogitsGrad(pred, target *tensor.Tensor) *tensor.Tensor
}

// Accuracy is the fraction of rows whose arg-max matches the target's.
func Accuracy(pred, target *tensor.Tensor) float64 {
	b := batchOf(pred)
	if b == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < b; i++ {
		if tensor.ArgMax(pred.Row(i)) == tensor.ArgMax(target.Row(i)) {
			correct++
		}
	}
	return float64(correct) / float64(b)
}
