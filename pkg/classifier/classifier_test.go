package classifier

import (
	"errors"
	"testing"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

func smallConfig() Config {
	return Config{NumClasses: 3, InputHeight: 32, InputWidth: 32, LearningRate: 0.001, DropoutRate: 0.3, Seed: 1}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(10, fbank.DefaultConfig())
	if cfg.InputHeight != 128 || cfg.InputWidth != 126 {
		t.Fatalf("input = %dx%d, want 128x126", cfg.InputHeight, cfg.InputWidth)
	}
	if cfg.LearningRate != 0.001 || cfg.DropoutRate != 0.3 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestBuildTopology(t *testing.T) {
	m, err := Build(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"block1_conv", "block1_bn", "block1_pool",
		"block2_conv", "block2_bn", "block2_pool",
		"block3_dw", "block3_dw_bn", "block3_pw", "block3_pw_bn", "block3_pool",
		"block4_dw", "block4_dw_bn", "block4_pw", "block4_pw_bn", "block4_pool",
		"global_avg_pool", "fc1", "dropout1", "fc2", "dropout2", "predictions",
	}
	layers := m.Layers()
	if len(layers) != len(want) {
		t.Fatalf("got %d layers, want %d", len(layers), len(want))
	}
	for i, l := range layers {
		if l.Name() != want[i] {
			t.Errorf("layer %d = %s, want %s", i, l.Name(), want[i])
		}
	}
	if out := m.OutputShape(); len(out) != 1 || out[0] != 3 {
		t.Fatalf("output shape = %v", out)
	}
	if m.Compiled() {
		t.Fatal("Build must not compile")
	}
}

func TestBuildRejectsBadConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.NumClasses = 1
	if _, err := Build(cfg); !errors.Is(err, birdid.ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
}

func TestPredictSumsToOne(t *testing.T) {
	m, err := New(smallConfig())
	if err != nil {
		t.Fatal(err)
	}
	x := tensor.Zeros(2, 32, 32, 1)
	for i := range x.Data {
		x.Data[i] = float32(i%7) / 7
	}
	p, err := m.Predict(x)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		var sum float32
		for _, v := range p.Row(i) {
			sum += v
		}
		if sum < 0.999 || sum > 1.001 {
			t.Fatalf("row %d sums to %v", i, sum)
		}
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	cfg := smallConfig()
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	data, err := NewArtifact(cfg, fbank.DefaultConfig(), m).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	a, err := UnmarshalArtifact(data)
	if err != nil {
		t.Fatal(err)
	}
	if a.Spectrogram != fbank.DefaultConfig() || a.Model != cfg {
		t.Fatalf("configs not preserved: %+v", a)
	}
	m2, err := a.Build()
	if err != nil {
		t.Fatal(err)
	}
	w1, w2 := m.Weights(), m2.Weights()
	for i := range w1 {
		for j := range w1[i].Data {
			if w1[i].Data[j] != w2[i].Data[j] {
				t.Fatalf("%s differs after round trip", w1[i].Name)
			}
		}
	}
}

func TestUnmarshalArtifactGarbage(t *testing.T) {
	if _, err := UnmarshalArtifact([]byte("not msgpack")); !errors.Is(err, birdid.ErrResourceUnavailable) {
		t.Fatalf("err = %v, want ErrResourceUnavailable", err)
	}
}
