package nn

import (
	"math"
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Batch-norm defaults.
const (
	DefaultMomentum = 0.99
	DefaultEpsilon  = 1e-3
)

// BatchNorm normalizes the last (channel) axis. Training uses batch
// statistics and updates the moving mean and variance; inference uses the
// moving statistics.
type BatchNorm struct {
	name     string
	momentum float64
	epsilon  float64

	c          int
	gamma      *Param
	beta       *Param
	movingMean *Param
	movingVar  *Param

	xhat   []float32
	invStd []float64
}

// NewBatchNorm creates a batch-norm layer with the default momentum and
// epsilon.
func NewBatchNorm(name string) *BatchNorm {
	return &BatchNorm{name: name, momentum: DefaultMomentum, epsilon: DefaultEpsilon}
}

func (l *BatchNorm) Name() string { return l.name }

func (l *BatchNorm) Build(in []int, _ *rand.Rand) ([]int, error) {
	if len(in) == 0 {
		return nil, shapeError(l.name, in, "at least one dimension")
	}
	l.c = in[len(in)-1]
	l.gamma = newParam("gamma", true, l.c)
	l.beta = newParam("beta", true, l.c)
	l.movingMean = newParam("moving_mean", false, l.c)
	l.movingVar = newParam("moving_variance", false, l.c)
	OnesInit.fill(l.gamma.Value, 0, 0, nil)
	OnesInit.fill(l.movingVar.Value, 0, 0, nil)
	return append([]int(nil), in...), nil
}

func (l *BatchNorm) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	c := l.c
	out := tensor.Zeros(x.Shape...)
	if !training {
		for j := 0; j < c; j++ {
			inv := 1 / math.Sqrt(float64(l.movingVar.Value[j])+l.epsilon)
			scale := float32(float64(l.gamma.Value[j]) * inv)
			shift := l.beta.Value[j] - l.movingMean.Value[j]*scale
			for i := j; i < len(x.Data); i += c {
				out.Data[i] = x.Data[i]*scale + shift
			}
		}
		return out
	}

	n := len(x.Data) / c
	mean := make([]float64, c)
	variance := make([]float64, c)
	for i, v := range x.Data {
		mean[i%c] += float64(v)
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	for i, v := range x.Data {
		d := float64(v) - mean[i%c]
		variance[i%c] += d * d
	}
	if cap(l.xhat) < len(x.Data) {
		l.xhat = make([]float32, len(x.Data))
	}
	l.xhat = l.xhat[:len(x.Data)]
	l.invStd = make([]float64, c)
	m := l.momentum
	for j := range variance {
		variance[j] /= float64(n)
		l.invStd[j] = 1 / math.Sqrt(variance[j]+l.epsilon)
		l.movingMean.Value[j] = float32(m*float64(l.movingMean.Value[j]) + (1-m)*mean[j])
		l.movingVar.Value[j] = float32(m*float64(l.movingVar.Value[j]) + (1-m)*variance[j])
	}
	for i, v := range x.Data {
		j := i % c
		xh := float32((float64(v) - mean[j]) * l.invStd[j])
		l.xhat[i] = xh
		out.Data[i] = l.gamma.Value[j]*xh + l.beta.Value[j]
	}
	return out
}

// Backward uses the batch statistics of the last training Forward.
func (l *BatchNorm) Backward(g *tensor.Tensor) *tensor.Tensor {
	c := l.c
	n := float64(len(g.Data) / c)
	sumG := make([]float64, c)
	sumGX := make([]float64, c)
	for i, v := range g.Data {
		j := i % c
		sumG[j] += float64(v)
		sumGX[j] += float64(v) * float64(l.xhat[i])
	}
	for j := 0; j < c; j++ {
		l.gamma.Grad[j] += float32(sumGX[j])
		l.beta.Grad[j] += float32(sumG[j])
	}
	dx := tensor.Zeros(g.Shape...)
	for i, v := range g.Data {
		j := i % c
		gamma := float64(l.gamma.Value[j])
		// dx = gamma*invStd/n * (n*g - sum(g) - xhat*sum(g*xhat))
		dx.Data[i] = float32(gamma * l.invStd[j] / n * (n*float64(v) - sumG[j] - float64(l.xhat[i])*sumGX[j]))
	}
	return dx
}

func (l *BatchNorm) Params() []*Param {
	return []*Param{l.gamma, l.beta, l.movingMean, l.movingVar}
}
