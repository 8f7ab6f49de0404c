package nn

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// ErrNotCompiled is returned by TrainBatch and Evaluate before Compile.
var ErrNotCompiled = errors.New("nn: model not compiled")

// Metrics summarizes one batch.
type Metrics struct {
	Loss     float64 `json:"loss" msgpack:"loss"`
	Accuracy float64 `json:"accuracy" msgpack:"accuracy"`
}

// Model is a sequential stack of layers.
type Model struct {
	name   string
	input  []int
	layers []Layer
	shapes [][]int
	rng    *rand.Rand

	mu   sync.Mutex
	opt  Optimizer
	loss Loss
}

// NewModel builds layers in order against the per-sample input shape.
// seed drives weight initialization and dropout.
func NewModel(name string, input []int, seed int64, layers ...Layer) (*Model, error) {
	m := &Model{
		name:   name,
		input:  append([]int(nil), input...),
		layers: layers,
		rng:    rand.New(rand.NewSource(seed)),
	}
	seen := make(map[string]bool, len(layers))
	shape := m.input
	for _, l := range layers {
		if seen[l.Name()] {
			return nil, fmt.Errorf("nn: duplicate layer name %q", l.Name())
		}
		seen[l.Name()] = true
		out, err := l.Build(shape, m.rng)
		if err != nil {
			return nil, err
		}
		m.shapes = append(m.shapes, out)
		shape = out
	}
	return m, nil
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// InputShape returns the per-sample input shape.
func (m *Model) InputShape() []int { return append([]int(nil), m.input...) }

// OutputShape returns the per-sample output shape.
func (m *Model) OutputShape() []int {
	if len(m.shapes) == 0 {
		return m.InputShape()
	}
	return append([]int(nil), m.shapes[len(m.shapes)-1]...)
}

// Layers returns the layers in order.
func (m *Model) Layers() []Layer { return m.layers }

// Compile attaches an optimizer and a loss.
func (m *Model) Compile(opt Optimizer, loss Loss) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opt = opt
	m.loss = loss
}

// Compiled reports whether Compile has been called.
func (m *Model) Compiled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opt != nil && m.loss != nil
}

func (m *Model) checkInput(x *tensor.Tensor) error {
	if x == nil || x.Rank() != len(m.input)+1 || !tensor.SameShape(x.Shape[1:], m.input) || x.Shape[0] == 0 {
		var got []int
		if x != nil {
			got = x.Shape
		}
		return fmt.Errorf("nn: model %s: input shape %v, want [batch %v]", m.name, got, m.input)
	}
	return nil
}

func (m *Model) forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	for _, l := range m.layers {
		x = l.Forward(x, training)
	}
	return x
}

// Predict runs inference on a batch.
func (m *Model) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forward(x, false), nil
}

// TrainBatch runs one forward/backward pass and an optimizer step. The
// returned metrics are computed on the training-mode forward pass.
func (m *Model) TrainBatch(x, y *tensor.Tensor) (Metrics, error) {
	if err := m.checkInput(x); err != nil {
		return Metrics{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opt == nil || m.loss == nil {
		return Metrics{}, ErrNotCompiled
	}
	if err := m.checkTarget(x, y); err != nil {
		return Metrics{}, err
	}

	params := m.params()
	for _, p := range params {
		p.ZeroGrad()
	}
	pred := m.forward(x, true)
	met := Metrics{Loss: m.loss.Loss(pred, y), Accuracy: Accuracy(pred, y)}

	i := len(m.layers) - 1
	var g *tensor.Tensor
	last, fused := m.layers[i].(softmaxOutput)
	ll, ok := m.loss.(logitsLoss)
	if fused && ok && last.endsInSoftmax() {
		g = last.backwardLogits(ll.LogitsGrad(pred, y))
		i--
	} else {
		g = m.loss.Grad(pred, y)
	}
	for ; i >= 0; i-- {
		g = m.layers[i].Backward(g)
	}
	m.opt.Step(params)
	return met, nil
}

// Evaluate scores a batch in inference mode.
func (m *Model) Evaluate(x, y *tensor.Tensor) (Metrics, *tensor.Tensor, error) {
	if err := m.checkInput(x); err != nil {
		return Metrics{}, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loss == nil {
		return Metrics{}, nil, ErrNotCompiled
	}
	if err := m.checkTarget(x, y); err != nil {
		return Metrics{}, nil, err
	}
	pred := m.forward(x, false)
	return Metrics{Loss: m.loss.Loss(pred, y), Accuracy: Accuracy(pred, y)}, pred, nil
}

func (m *Model) checkTarget(x, y *tensor.Tensor) error {
	want := append([]int{x.Shape[0]}, m.OutputShape()...)
	if y == nil || !tensor.SameShape(y.Shape, want) {
		var got []int
		if y != nil {
			got = y.Shape
		}
		return fmt.Errorf("nn: model %s: target shape %v, want %v", m.name, got, want)
	}
	return nil
}

func (m *Model) params() []*Param {
	var ps []*Param
	for _, l := range m.layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}

// Weights returns a deep copy of every parameter, named
// "<layer>/<param>", in layer order.
func (m *Model) Weights() []Weight {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ws []Weight
	for _, l := range m.layers {
		for _, p := range l.Params() {
			ws = append(ws, Weight{
				Name:  l.Name() + "/" + p.Name,
				Shape: append([]int(nil), p.Shape...),
				Data:  append([]float32(nil), p.Value...),
			})
		}
	}
	return ws
}

// SetWeights copies ws into the model. Every parameter must be present
// with a matching shape.
func (m *Model) SetWeights(ws []Weight) error {
	byName := make(map[string]Weight, len(ws))
	for _, w := range ws {
		byName[w.Name] = w
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	type pending struct {
		p *Param
		w Weight
	}
	var todo []pending
	for _, l := range m.layers {
		for _, p := range l.Params() {
			name := l.Name() + "/" + p.Name
			w, ok := byName[name]
			if !ok {
				return fmt.Errorf("nn: missing weight %q", name)
			}
			if !tensor.SameShape(w.Shape, p.Shape) || len(w.Data) != len(p.Value) {
				return fmt.Errorf("nn: weight %q has shape %v, want %v", name, w.Shape, p.Shape)
			}
			todo = append(todo, pending{p, w})
		}
	}
	if len(todo) != len(byName) {
		return fmt.Errorf("nn: %d weights given, model has %d", len(byName), len(todo))
	}
	for _, t := range todo {
		copy(t.p.Value, t.w.Data)
	}
	return nil
}

// Snapshot captures all weights, including batch-norm moving statistics.
func (m *Model) Snapshot() Snapshot { return m.Weights() }

// Restore sets the weights captured by Snapshot.
func (m *Model) Restore(s Snapshot) error { return m.SetWeights(s) }

// CountParams returns the number of trainable and non-trainable scalars.
func (m *Model) CountParams() (trainable, frozen int) {
	for _, p := range m.params() {
		if p.Trainable {
			trainable += len(p.Value)
		} else {
			frozen += len(p.Value)
		}
	}
	return trainable, frozen
}

// Summary renders a layer table with output shapes and parameter counts.
func (m *Model) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %q\n", m.name)
	fmt.Fprintf(&b, "%-28s %-22s %10s\n", "Layer (type)", "Output Shape", "Param #")
	b.WriteString(strings.Repeat("=", 62) + "\n")
	fmt.Fprintf(&b, "%-28s %-22s %10d\n", "input ("+"Input"+")", formatShape(m.input), 0)
	for i, l := range m.layers {
		n := 0
		for _, p := range l.Params() {
			n += len(p.Value)
		}
		kind := reflect.TypeOf(l).Elem().Name()
		fmt.Fprintf(&b, "%-28s %-22s %10d\n", l.Name()+" ("+kind+")", formatShape(m.shapes[i]), n)
	}
	b.WriteString(strings.Repeat("=", 62) + "\n")
	tr, fr := m.CountParams()
	fmt.Fprintf(&b, "Total params: %d\nTrainable params: %d\nNon-trainable params: %d\n", tr+fr, tr, fr)
	return b.String()
}

func formatShape(s []int) string {
	parts := make([]string, 0, len(s)+1)
	parts = append(parts, "null")
	for _, d := range s {
		parts = append(parts, fmt.Sprint(d))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
