package dataset

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/preprocess"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/stft"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

func samplesPerClass(perClass ...int) []Sample {
	var out []Sample
	for c, n := range perClass {
		for i := 0; i < n; i++ {
			out = append(out, Sample{BirdID: string(rune('a' + c)), Path: filepath.Join("x", string(rune('a'+c)), string(rune('0'+i))+".wav"), ClassIndex: c})
		}
	}
	return out
}

func countByClass(s []Sample) map[int]int {
	m := make(map[int]int)
	for _, x := range s {
		m[x.ClassIndex]++
	}
	return m
}

func TestStratifiedSplit(t *testing.T) {
	samples := samplesPerClass(10, 10, 10)
	split, err := StratifiedSplit(samples, 0.7, 0.15, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(split.Train) != 21 || len(split.Validation) != 3 || len(split.Test) != 6 {
		t.Fatalf("sizes = %d/%d/%d, want 21/3/6", len(split.Train), len(split.Validation), len(split.Test))
	}
	for c := 0; c < 3; c++ {
		if n := countByClass(split.Train)[c]; n != 7 {
			t.Errorf("class %d train = %d, want 7", c, n)
		}
		if n := countByClass(split.Validation)[c]; n != 1 {
			t.Errorf("class %d validation = %d, want 1", c, n)
		}
		if n := countByClass(split.Test)[c]; n != 2 {
			t.Errorf("class %d test = %d, want 2", c, n)
		}
	}

	var all []string
	for _, set := range [][]Sample{split.Train, split.Validation, split.Test} {
		for _, s := range set {
			all = append(all, s.Path)
		}
	}
	slices.Sort(all)
	if len(slices.Compact(all)) != 30 {
		t.Fatal("split sets overlap or lose samples")
	}
}

func TestRandomSplit(t *testing.T) {
	split, err := RandomSplit(samplesPerClass(10, 10, 10), 0.7, 0.15, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}
	if len(split.Train) != 21 || len(split.Validation) != 4 || len(split.Test) != 5 {
		t.Fatalf("sizes = %d/%d/%d, want 21/4/5", len(split.Train), len(split.Validation), len(split.Test))
	}
}

func TestSplitRejectsBadRatios(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := StratifiedSplit(nil, 0.9, 0.2, rng); !errors.Is(err, birdid.ErrPrecondition) {
		t.Fatalf("err = %v", err)
	}
	if _, err := RandomSplit(nil, -0.1, 0.2, rng); !errors.Is(err, birdid.ErrPrecondition) {
		t.Fatalf("err = %v", err)
	}
}

func TestStats(t *testing.T) {
	split, _ := StratifiedSplit(samplesPerClass(4, 6), 0.5, 0.25, rand.New(rand.NewSource(3)))
	st := StatsOf(split)
	if st.Total != 10 || st.PerClass[0] != 4 || st.PerClass[1] != 6 {
		t.Fatalf("stats = %+v", st)
	}
	if st.TrainCount+st.ValidationCount+st.TestCount != 10 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestParseManifest(t *testing.T) {
	classes, err := ParseManifest([]byte(`
classes:
  - id: blackbird
    name: Common Blackbird
    scientific_name: Turdus merula
    class_index: 9
  - id: robin
    name: European Robin
    scientific_name: Erithacus rubecula
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(classes) != 2 || classes[0].Index != 0 || classes[1].Index != 1 {
		t.Fatalf("classes = %+v", classes)
	}
	if classes[0].ScientificName != "Turdus merula" {
		t.Fatalf("scientific name = %q", classes[0].ScientificName)
	}

	if _, err := ParseManifest([]byte("classes:\n  - id: a\n  - id: a\n")); !errors.Is(err, birdid.ErrPrecondition) {
		t.Fatalf("duplicate ids: %v", err)
	}
	if _, err := ParseManifest([]byte("classes: []\n")); !errors.Is(err, birdid.ErrPrecondition) {
		t.Fatalf("empty manifest: %v", err)
	}
}

func TestIndex(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"robin/b.wav", "robin/a.flac", "robin/notes.txt", "wren/1.pcm"} {
		p := filepath.Join(dir, f)
		os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	classes := birdid.NewClassList([]birdid.Class{{ID: "robin"}, {ID: "owl"}, {ID: "wren"}})
	got, err := Index(dir, classes)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("indexed %d samples: %+v", len(got), got)
	}
	if filepath.Base(got[0].Path) != "a.flac" || got[0].ClassIndex != 0 {
		t.Fatalf("first = %+v", got[0])
	}
	if got[2].BirdID != "wren" || got[2].ClassIndex != 2 {
		t.Fatalf("last = %+v", got[2])
	}
}

func ones(frames, bins int) fbank.Spectrogram {
	s := make(fbank.Spectrogram, frames)
	for i := range s {
		s[i] = make([]float32, bins)
		for j := range s[i] {
			s[i][j] = 1
		}
	}
	return s
}

func TestAugmentTimeMask(t *testing.T) {
	spec := ones(50, 16)
	out := Augment(spec, TimeMask, rand.New(rand.NewSource(4)))
	zeroFrames := 0
	for _, f := range out {
		if f[0] == 0 {
			for _, v := range f {
				if v != 0 {
					t.Fatal("partially masked frame")
				}
			}
			zeroFrames++
		}
	}
	if zeroFrames < 5 || zeroFrames > 24 {
		t.Fatalf("masked %d frames, want 5..24", zeroFrames)
	}
	if spec[0][0] != 1 || spec[49][0] != 1 {
		t.Fatal("input modified")
	}
	for i := 0; i < 50; i++ {
		if spec[i][0] != 1 {
			t.Fatal("input modified")
		}
	}
}

func TestAugmentFreqMask(t *testing.T) {
	out := Augment(ones(10, 40), FreqMask, rand.New(rand.NewSource(5)))
	zero := 0
	for _, v := range out[0] {
		if v == 0 {
			zero++
		}
	}
	if zero < 3 || zero > 17 {
		t.Fatalf("masked %d bins, want 3..17", zero)
	}
	for _, f := range out {
		if !slices.Equal(f, out[0]) {
			t.Fatal("frequency mask differs between frames")
		}
	}
}

func TestAugmentMaskWiderThanInput(t *testing.T) {
	out := Augment(ones(3, 2), TimeMask, rand.New(rand.NewSource(6)))
	for _, f := range out {
		if f[0] != 0 {
			t.Fatal("short spectrogram not fully masked")
		}
	}
}

func TestAugmentNoiseBounded(t *testing.T) {
	out := Augment(ones(20, 20), Noise, rand.New(rand.NewSource(7)))
	changed := false
	for _, f := range out {
		for _, v := range f {
			if math.Abs(float64(v)-1) > 0.01+1e-6 {
				t.Fatalf("noise %v exceeds 0.01", v-1)
			}
			if v != 1 {
				changed = true
			}
		}
	}
	if !changed {
		t.Fatal("noise had no effect")
	}
}

func TestMaybeAugmentRate(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	spec := ones(30, 8)
	n := 0
	for i := 0; i < 1000; i++ {
		if _, ok := MaybeAugment(spec, rng); ok {
			n++
		}
	}
	if n < 400 || n > 600 {
		t.Fatalf("augmented %d of 1000, want about 500", n)
	}
}

func testExtractor(t *testing.T) *fbank.Extractor {
	t.Helper()
	cfg := fbank.Config{SampleRate: 8000, FFTSize: 256, HopLength: 128, NumMels: 16, FMin: 0, FMax: 4000, TargetDuration: 0.5}
	e, err := fbank.New(cfg, stft.Fast)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func toneLoader(fail string) Loader {
	return func(_ context.Context, s Sample) (preprocess.Buffer, error) {
		if s.Path == fail {
			return preprocess.Buffer{}, errors.New("broken file")
		}
		x := make([]float32, 4000)
		freq := 300.0 * float64(s.ClassIndex+1)
		for i := range x {
			x[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / 8000))
		}
		return preprocess.Buffer{Samples: x, SampleRate: 8000}, nil
	}
}

func drain(t *testing.T, g *Generator) []*Batch {
	t.Helper()
	var out []*Batch
	for {
		b, err := g.Next(context.Background())
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, b)
	}
}

func TestGeneratorBatches(t *testing.T) {
	g, err := NewGenerator(GeneratorOptions{
		Samples:    samplesPerClass(4, 3),
		NumClasses: 2,
		BatchSize:  3,
		Extractor:  testExtractor(t),
		Loader:     toneLoader(""),
		Seed:       1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if g.NumBatches() != 3 {
		t.Fatalf("NumBatches = %d", g.NumBatches())
	}
	batches := drain(t, g)
	if len(batches) != 3 {
		t.Fatalf("got %d batches", len(batches))
	}
	b := batches[0]
	if want := []int{3, 16, 30, 1}; !slices.Equal(b.X.Shape, want) {
		t.Fatalf("X shape = %v, want %v", b.X.Shape, want)
	}
	if want := []int{3, 2}; !slices.Equal(b.Y.Shape, want) {
		t.Fatalf("Y shape = %v", b.Y.Shape)
	}
	for i, c := range b.Labels() {
		if b.Y.Data[i*2+c] != 1 || b.Y.Data[i*2+1-c] != 0 {
			t.Fatalf("row %d not one-hot for class %d: %v", i, c, b.Y.Row(i))
		}
	}
	if len(batches[2].Samples) != 1 {
		t.Fatalf("last batch has %d samples", len(batches[2].Samples))
	}

	g.Reset()
	seen := 0
	for _, b := range drain(t, g) {
		seen += len(b.Samples)
	}
	if seen != 7 {
		t.Fatalf("second epoch saw %d samples", seen)
	}
}

func TestGeneratorSkipsBrokenSamples(t *testing.T) {
	samples := samplesPerClass(2)
	g, _ := NewGenerator(GeneratorOptions{
		Samples:    samples,
		NumClasses: 1,
		BatchSize:  8,
		Extractor:  testExtractor(t),
		Loader:     toneLoader(samples[0].Path),
	})
	b, err := g.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if b.Skipped != 1 || len(b.Samples) != 1 || b.X.Dim(0) != 1 {
		t.Fatalf("batch: skipped=%d samples=%d", b.Skipped, len(b.Samples))
	}
	if _, err := g.Next(context.Background()); err != io.EOF {
		t.Fatalf("err = %v, want EOF", err)
	}
}

func TestGeneratorDeterministicAcrossWorkers(t *testing.T) {
	run := func(workers int) []float32 {
		g, err := NewGenerator(GeneratorOptions{
			Samples:    samplesPerClass(3, 3),
			NumClasses: 2,
			BatchSize:  6,
			Extractor:  testExtractor(t),
			Loader:     toneLoader(""),
			Augment:    true,
			Seed:       42,
			Workers:    workers,
		})
		if err != nil {
			t.Fatal(err)
		}
		b, err := g.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		return b.X.Data
	}
	if !slices.Equal(run(1), run(4)) {
		t.Fatal("batches differ between worker counts")
	}
}

func TestGeneratorCancelled(t *testing.T) {
	g, _ := NewGenerator(GeneratorOptions{
		Samples:    samplesPerClass(2),
		NumClasses: 1,
		Extractor:  testExtractor(t),
		Loader:     toneLoader(""),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}
}

func TestGeneratorRejectsBadLabels(t *testing.T) {
	_, err := NewGenerator(GeneratorOptions{
		Samples:    []Sample{{Path: "x", ClassIndex: 3}},
		NumClasses: 2,
		Extractor:  testExtractor(t),
	})
	if !errors.Is(err, birdid.ErrPrecondition) {
		t.Fatalf("err = %v", err)
	}
}
