package nn

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

func randTensor(rng *rand.Rand, shape ...int) *tensor.Tensor {
	x := tensor.Zeros(shape...)
	for i := range x.Data {
		x.Data[i] = float32(rng.NormFloat64())
	}
	return x
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func near(num, ana float64) bool {
	return math.Abs(num-ana) <= 1e-2*math.Max(1, math.Abs(num)+math.Abs(ana))
}

// checkGrad compares analytic gradients of L = sum(out * r) against
// central differences for the input and every trainable parameter.
func checkGrad(t *testing.T, l Layer, in []int, batch int) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	if _, err := l.Build(in, rng); err != nil {
		t.Fatalf("Build: %v", err)
	}
	x := randTensor(rng, append([]int{batch}, in...)...)
	out := l.Forward(x, true)
	r := randTensor(rng, out.Shape...)
	for _, p := range l.Params() {
		p.ZeroGrad()
	}
	dx := l.Backward(r.Clone())

	loss := func() float64 { return dot(l.Forward(x, true).Data, r.Data) }
	const h = 1e-2
	compare := func(what string, v []float32, grad []float32) {
		step := max(1, len(v)/25)
		for i := 0; i < len(v); i += step {
			orig := v[i]
			v[i] = orig + h
			lp := loss()
			v[i] = orig - h
			lm := loss()
			v[i] = orig
			num := (lp - lm) / (2 * h)
			if !near(num, float64(grad[i])) {
				t.Fatalf("%s[%d]: numeric %v analytic %v", what, i, num, grad[i])
			}
		}
	}
	compare("input", x.Data, dx.Data)
	for _, p := range l.Params() {
		if p.Trainable {
			compare(l.Name()+"/"+p.Name, p.Value, p.Grad)
		}
	}
}

func TestDenseGradient(t *testing.T) {
	checkGrad(t, NewDense("fc", 5, Linear, GlorotNormal), []int{7}, 3)
}

func TestConv2DGradient(t *testing.T) {
	checkGrad(t, NewConv2D("conv", 4, 3, Same, Linear, HeNormal), []int{5, 6, 2}, 2)
}

func TestConv2DValidGradient(t *testing.T) {
	checkGrad(t, NewConv2D("conv", 3, 3, Valid, Linear, HeNormal), []int{5, 5, 2}, 2)
}

func TestPointwiseConvGradient(t *testing.T) {
	checkGrad(t, NewConv2D("pw", 3, 1, Same, Linear, GlorotNormal), []int{4, 3, 5}, 2)
}

func TestDepthwiseGradient(t *testing.T) {
	checkGrad(t, NewDepthwiseConv2D("dw", 3, Same, Linear, GlorotNormal), []int{5, 4, 3}, 2)
}

func TestBatchNormGradient(t *testing.T) {
	checkGrad(t, NewBatchNorm("bn"), []int{3, 3, 4}, 3)
}

func TestGlobalAvgPoolGradient(t *testing.T) {
	checkGrad(t, NewGlobalAvgPool2D("gap"), []int{3, 4, 2}, 2)
}

func TestSoftmaxGradient(t *testing.T) {
	checkGrad(t, NewSoftmax("softmax"), []int{6}, 3)
}

func TestConvMatchesDirect(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	l := NewConv2D("conv", 2, 3, Same, Linear, HeNormal)
	if _, err := l.Build([]int{4, 4, 1}, rng); err != nil {
		t.Fatal(err)
	}
	x := randTensor(rng, 1, 4, 4, 1)
	out := l.Forward(x, false)
	k := l.kernel.Value
	for y := 0; y < 4; y++ {
		for xx := 0; xx < 4; xx++ {
			for f := 0; f < 2; f++ {
				want := float64(l.bias.Value[f])
				for ky := 0; ky < 3; ky++ {
					for kx := 0; kx < 3; kx++ {
						iy, ix := y+ky-1, xx+kx-1
						if iy < 0 || iy >= 4 || ix < 0 || ix >= 4 {
							continue
						}
						want += float64(x.Data[iy*4+ix]) * float64(k[(ky*3+kx)*2+f])
					}
				}
				got := out.Data[(y*4+xx)*2+f]
				if math.Abs(float64(got)-want) > 1e-5 {
					t.Fatalf("out[%d,%d,%d] = %v, want %v", y, xx, f, got, want)
				}
			}
		}
	}
}

func TestMaxPoolRoutesGradient(t *testing.T) {
	l := NewMaxPool2D("pool", 2)
	if _, err := l.Build([]int{2, 3, 1}, nil); err != nil {
		t.Fatal(err)
	}
	x := tensor.New([]int{1, 2, 3, 1}, []float32{1, 5, 9, 3, 2, 0})
	out := l.Forward(x, true)
	if len(out.Data) != 1 || out.Data[0] != 5 {
		t.Fatalf("pool out = %v, want [5]", out.Data)
	}
	dx := l.Backward(tensor.New([]int{1, 1, 1, 1}, []float32{2}))
	want := []float32{0, 2, 0, 0, 0, 0}
	for i := range want {
		if dx.Data[i] != want[i] {
			t.Fatalf("dx = %v, want %v", dx.Data, want)
		}
	}
}

func TestDropoutInference(t *testing.T) {
	l := NewDropout("drop", 0.5)
	if _, err := l.Build([]int{4}, rand.New(rand.NewSource(1))); err != nil {
		t.Fatal(err)
	}
	x := tensor.New([]int{1, 4}, []float32{1, 2, 3, 4})
	if out := l.Forward(x, false); out != x {
		t.Fatal("dropout must be the identity at inference")
	}
	out := l.Forward(x, true)
	for i, v := range out.Data {
		if v != 0 && v != 2*x.Data[i] {
			t.Fatalf("out[%d] = %v, want 0 or %v", i, v, 2*x.Data[i])
		}
	}
}

// stripes returns a batch of 6x6 images: class 0 has horizontal stripes,
// class 1 vertical stripes.
func stripes(rng *rand.Rand, n int) (*tensor.Tensor, *tensor.Tensor) {
	x := tensor.Zeros(n, 6, 6, 1)
	y := tensor.Zeros(n, 2)
	for s := 0; s < n; s++ {
		cls := s % 2
		y.Data[s*2+cls] = 1
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				line := i
				if cls == 1 {
					line = j
				}
				v := float32(line % 2)
				x.Data[s*36+i*6+j] = v + float32(rng.NormFloat64()*0.1)
			}
		}
	}
	return x, y
}

func tinyModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel("tiny", []int{6, 6, 1}, 42,
		NewConv2D("conv", 4, 3, Same, ReLUActivation, HeNormal),
		NewBatchNorm("bn"),
		NewMaxPool2D("pool", 2),
		NewGlobalAvgPool2D("gap"),
		NewDense("fc", 8, ReLUActivation, HeNormal),
		NewDropout("drop", 0.1),
		NewDense("out", 2, SoftmaxActivation, GlorotNormal),
	)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestModelLearns(t *testing.T) {
	m := tinyModel(t)
	m.Compile(NewAdam(0.01), CategoricalCrossEntropy{})
	rng := rand.New(rand.NewSource(9))

	xv, yv := stripes(rng, 16)
	before, _, err := m.Evaluate(xv, yv)
	if err != nil {
		t.Fatal(err)
	}
	for step := 0; step < 150; step++ {
		x, y := stripes(rng, 8)
		if _, err := m.TrainBatch(x, y); err != nil {
			t.Fatal(err)
		}
	}
	after, probs, err := m.Evaluate(xv, yv)
	if err != nil {
		t.Fatal(err)
	}
	if after.Loss >= before.Loss {
		t.Fatalf("loss did not decrease: %v -> %v", before.Loss, after.Loss)
	}
	if after.Accuracy < 0.9 {
		t.Fatalf("accuracy = %v, want >= 0.9", after.Accuracy)
	}
	for i := 0; i < 16; i++ {
		row := probs.Row(i)
		if s := row[0] + row[1]; math.Abs(float64(s)-1) > 1e-5 {
			t.Fatalf("row %d sums to %v", i, s)
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	m := tinyModel(t)
	m.Compile(NewAdam(0.01), CategoricalCrossEntropy{})
	snap := m.Snapshot()

	x, y := stripes(rand.New(rand.NewSource(1)), 4)
	if _, err := m.TrainBatch(x, y); err != nil {
		t.Fatal(err)
	}
	changed := false
	for i, w := range m.Weights() {
		if w.Name != "bn/moving_mean" {
			continue
		}
		for j := range w.Data {
			if w.Data[j] != snap[i].Data[j] {
				changed = true
			}
		}
	}
	if !changed {
		t.Fatal("training should update batch-norm moving statistics")
	}

	if err := m.Restore(snap); err != nil {
		t.Fatal(err)
	}
	for i, w := range m.Weights() {
		for j := range w.Data {
			if w.Data[j] != snap[i].Data[j] {
				t.Fatalf("%s[%d] = %v after restore, want %v", w.Name, j, w.Data[j], snap[i].Data[j])
			}
		}
	}
}

func TestSetWeightsShapeMismatch(t *testing.T) {
	m := tinyModel(t)
	ws := m.Weights()
	ws[0].Shape = []int{1}
	if err := m.SetWeights(ws); err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if err := m.SetWeights(m.Weights()[1:]); err == nil {
		t.Fatal("expected missing weight error")
	}
}

func TestTrainBeforeCompile(t *testing.T) {
	m := tinyModel(t)
	x, y := stripes(rand.New(rand.NewSource(1)), 2)
	if _, err := m.TrainBatch(x, y); err != ErrNotCompiled {
		t.Fatalf("err = %v, want ErrNotCompiled", err)
	}
}

func TestPredictRejectsWrongShape(t *testing.T) {
	m := tinyModel(t)
	if _, err := m.Predict(tensor.Zeros(1, 5, 6, 1)); err == nil {
		t.Fatal("expected input shape error")
	}
}

func TestSummary(t *testing.T) {
	m := tinyModel(t)
	s := m.Summary()
	for _, want := range []string{`Model: "tiny"`, "conv (Conv2D)", "[null,3,3,4]", "Non-trainable params: 8"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}
