package nn

import "math"

// Optimizer updates trainable parameters from their gradients.
type Optimizer interface {
	Name() string
	Step(params []*Param)
}

// Adam implements the Adam optimizer with bias correction folded into
// the step size.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	t int
	m map[*Param][]float32
	v map[*Param][]float32
}

// NewAdam returns Adam with beta1 0.9, beta2 0.999 and epsilon 1e-7.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
		m:            make(map[*Param][]float32),
		v:            make(map[*Param][]float32),
	}
}

func (a *Adam) Name() string { return "adam" }

// Steps returns how many updates have been applied.
func (a *Adam) Steps() int { return a.t }

func (a *Adam) Step(params []*Param) {
	a.t++
	b1, b2 := a.Beta1, a.Beta2
	lr := a.LearningRate * math.Sqrt(1-math.Pow(b2, float64(a.t))) / (1 - math.Pow(b1, float64(a.t)))
	for _, p := range params {
		if !p.Trainable {
			continue
		}
		m, ok := a.m[p]
		if !ok {
			m = make([]float32, len(p.Value))
			a.m[p] = m
			a.v[p] = make([]float32, len(p.Value))
		}
		v := a.v[p]
		for i, g := range p.Grad {
			gf := float64(g)
			mi := b1*float64(m[i]) + (1-b1)*gf
			vi := b2*float64(v[i]) + (1-b2)*gf*gf
			m[i], v[i] = float32(mi), float32(vi)
			p.Value[i] -= float32(lr * mi / (math.Sqrt(vi) + a.Epsilon))
		}
	}
}
