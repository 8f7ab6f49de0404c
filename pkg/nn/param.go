package nn

import (
	"math"
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Param is a named weight array. Non-trainable params (batch-norm moving
// statistics) have no gradient but are part of the model's weights.
type Param struct {
	Name      string
	Shape     []int
	Value     []float32
	Grad      []float32
	Trainable bool
}

func newParam(name string, trainable bool, shape ...int) *Param {
	n := tensor.Size(shape)
	p := &Param{
		Name:      name,
		Shape:     shape,
		Value:     make([]float32, n),
		Trainable: trainable,
	}
	if trainable {
		p.Grad = make([]float32, n)
	}
	return p
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	clear(p.Grad)
}

// Initializer fills a freshly allocated weight array.
type Initializer int

const (
	// GlorotNormal draws from N(0, 2/(fanIn+fanOut)).
	GlorotNormal Initializer = iota
	// HeNormal draws from N(0, 2/fanIn).
	HeNormal
	// ZerosInit fills with 0.
	ZerosInit
	// OnesInit fills with 1.
	OnesInit
)

func (in Initializer) fill(v []float32, fanIn, fanOut int, rng *rand.Rand) {
	switch in {
	case ZerosInit:
		clear(v)
	case OnesInit:
		for i := range v {
			v[i] = 1
		}
	case HeNormal:
		std := math.Sqrt(2 / float64(fanIn))
		for i := range v {
			v[i] = float32(rng.NormFloat64() * std)
		}
	default:
		std := math.Sqrt(2 / float64(fanIn+fanOut))
		for i := range v {
			v[i] = float32(rng.NormFloat64() * std)
		}
	}
}

// Weight is a serializable copy of one Param.
type Weight struct {
	Name  string    `msgpack:"name" json:"name"`
	Shape []int     `msgpack:"shape" json:"shape"`
	Data  []float32 `msgpack:"data" json:"data"`
}

// Snapshot is a deep copy of every weight of a model, trainable or not.
type Snapshot []Weight
