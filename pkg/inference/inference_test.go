package inference

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/classifier"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/modelstore"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/storage"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

var abc = birdid.NewClassList([]birdid.Class{
	{ID: "a", Name: "A"},
	{ID: "b", Name: "B"},
	{ID: "c", Name: "C"},
})

func TestRank(t *testing.T) {
	got := Rank([]float32{0.1, 0.5, 0.4}, abc, 2)
	if len(got) != 2 {
		t.Fatalf("got %d predictions", len(got))
	}
	if got[0].BirdID != "b" || got[0].Rank != 1 || got[1].BirdID != "c" || got[1].Rank != 2 {
		t.Fatalf("Rank = %+v", got)
	}
	if math.Abs(got[0].Confidence-0.5) > 1e-6 {
		t.Fatalf("confidence = %v", got[0].Confidence)
	}
}

func TestRankTiesKeepIndexOrder(t *testing.T) {
	got := Rank([]float32{0.3, 0.4, 0.3}, abc, 10)
	if len(got) != 3 || got[0].BirdID != "b" || got[1].BirdID != "a" || got[2].BirdID != "c" {
		t.Fatalf("Rank = %+v", got)
	}
}

func TestFuse(t *testing.T) {
	got := Fuse([]float32{0.5, 0.4, 0.1}, []float32{0.1, 1})
	want := []float32{0.05, 0.4, 0.1}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("Fuse = %v, want %v", got, want)
		}
	}
}

func TestDemo(t *testing.T) {
	classes := birdid.NewClassList(make([]birdid.Class, 10))
	for i := range classes {
		classes[i].ID = string(rune('a' + i))
	}
	preds, spec := Demo(classes, 5, rand.New(rand.NewSource(9)))
	if len(preds) != 5 {
		t.Fatalf("got %d predictions", len(preds))
	}
	sum := 0.0
	for i, p := range preds {
		sum += p.Confidence
		if p.Rank != i+1 {
			t.Fatalf("rank %d at position %d", p.Rank, i)
		}
		if i > 0 && !(p.Confidence < preds[i-1].Confidence) {
			t.Fatalf("confidences not strictly descending: %v then %v", preds[i-1].Confidence, p.Confidence)
		}
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("confidences sum to %v", sum)
	}
	if len(spec) != 128 || len(spec[0]) != 128 {
		t.Fatalf("spectrogram %dx%d", len(spec), len(spec[0]))
	}

	again, _ := Demo(classes, 5, rand.New(rand.NewSource(9)))
	for i := range preds {
		if preds[i] != again[i] {
			t.Fatal("demo is not deterministic for a seed")
		}
	}
}

func TestInGraphFeatures(t *testing.T) {
	f := DefaultInGraphFeatures()
	x, spec, err := f.Features(make([]float32, 16000), 16000)
	if err != nil {
		t.Fatal(err)
	}
	if spec != nil || x.Rank() != 2 || x.Dim(0) != 1 || x.Dim(1) != 144000 {
		t.Fatalf("shape = %v", x.Shape)
	}
	if _, _, err := f.Features(nil, 16000); !errors.Is(err, birdid.ErrPrecondition) {
		t.Fatalf("empty input: %v", err)
	}
}

// fakeBackend returns fixed probabilities and optionally a geo prior.
type fakeBackend struct {
	probs  []float32
	geo    []float32
	closed atomic.Bool
}

func (f *fakeBackend) Predict(context.Context, *tensor.Tensor) ([]float32, error) {
	return f.probs, nil
}

func (f *fakeBackend) Close() error { f.closed.Store(true); return nil }

func (f *fakeBackend) HasGeo() bool { return f.geo != nil }

func (f *fakeBackend) PredictGeo(context.Context, birdid.Geo) ([]float32, error) {
	return f.geo, nil
}

type fixedFeatures struct{}

func (fixedFeatures) Features(samples []float32, _ int) (*tensor.Tensor, fbank.Spectrogram, error) {
	if len(samples) == 0 {
		return nil, nil, birdid.ErrPrecondition
	}
	return tensor.Zeros(1, 1), fbank.Spectrogram{{0.5}}, nil
}

func fakeLoader(b *fakeBackend, calls *atomic.Int32) Loader {
	return LoaderFunc(func(context.Context) (*Model, error) {
		calls.Add(1)
		return &Model{Backend: b, Classes: abc, Features: fixedFeatures{}}, nil
	})
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{probs: []float32{0.1, 0.5, 0.4}}
	var calls atomic.Int32
	s, err := New(Options{Loader: fakeLoader(b, &calls)})
	if err != nil {
		t.Fatal(err)
	}
	if st := s.Status(); st.Loaded || st.State != "unloaded" {
		t.Fatalf("initial status = %+v", st)
	}

	res := s.Identify(ctx, []float32{1}, 22050, 2, nil)
	if !res.Success || res.Demo || len(res.Predictions) != 2 || res.Predictions[0].BirdID != "b" {
		t.Fatalf("Identify = %+v", res)
	}
	if len(res.Spectrogram) != 1 {
		t.Fatalf("spectrogram = %v", res.Spectrogram)
	}
	if st := s.Status(); !st.Loaded || st.NumClasses != 3 {
		t.Fatalf("status = %+v", st)
	}
	s.Identify(ctx, []float32{1}, 22050, 2, nil)
	if calls.Load() != 1 {
		t.Fatalf("loader called %d times", calls.Load())
	}
	if got := s.SearchLabels("b"); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("SearchLabels = %+v", got)
	}

	if err := s.Unload(); err != nil {
		t.Fatal(err)
	}
	if !b.closed.Load() {
		t.Fatal("Unload did not close the backend")
	}
	if st := s.Status(); st.Loaded || st.State != "unloaded" {
		t.Fatalf("after Unload = %+v", st)
	}
	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("loader called %d times after Reload", calls.Load())
	}
}

func TestIdentifyBadInput(t *testing.T) {
	var calls atomic.Int32
	s, _ := New(Options{Loader: fakeLoader(&fakeBackend{probs: []float32{1, 0, 0}}, &calls)})
	res := s.Identify(context.Background(), nil, 22050, 3, nil)
	if res.Success || res.Error == "" || res.Predictions == nil || len(res.Predictions) != 0 {
		t.Fatalf("Identify = %+v", res)
	}
}

func TestGeoFusion(t *testing.T) {
	b := &fakeBackend{probs: []float32{0.5, 0.3, 0.2}, geo: []float32{0.1, 1, 1}}
	var calls atomic.Int32
	s, _ := New(Options{Loader: fakeLoader(b, &calls)})
	ctx := context.Background()

	preds, _, err := s.Predict(ctx, []float32{1}, 48000, 1, nil)
	if err != nil || preds[0].BirdID != "a" {
		t.Fatalf("without geo: %+v, %v", preds, err)
	}
	preds, _, err = s.Predict(ctx, []float32{1}, 48000, 1, &birdid.Geo{Lat: 52, Lon: 13, Week: 20})
	if err != nil || preds[0].BirdID != "b" {
		t.Fatalf("with geo: %+v, %v", preds, err)
	}
}

func TestLoadErrorRetained(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("disk on fire")
	s, _ := New(Options{Loader: LoaderFunc(func(context.Context) (*Model, error) {
		calls.Add(1)
		return nil, boom
	})})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Load(ctx); !errors.Is(err, boom) {
			t.Fatalf("Load = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("failed load retried %d times", calls.Load())
	}
	if st := s.Status(); st.State != "error" || st.Error == "" {
		t.Fatalf("status = %+v", st)
	}
	s.Reload(ctx)
	if calls.Load() != 2 {
		t.Fatalf("Reload did not retry")
	}
}

func TestDemoFallback(t *testing.T) {
	s, _ := New(Options{
		Loader: LoaderFunc(func(context.Context) (*Model, error) {
			return nil, birdid.ErrResourceUnavailable
		}),
		DemoClasses: abc,
		DemoSeed:    1,
	})
	res := s.Identify(context.Background(), []float32{1}, 22050, 3, nil)
	if !res.Success || !res.Demo || len(res.Predictions) != 3 || len(res.Spectrogram) != 128 {
		t.Fatalf("Identify = %+v", res)
	}
	sum := 0.0
	for _, p := range res.Predictions {
		sum += p.Confidence
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("sum = %v", sum)
	}
}

func TestNewRequiresLoader(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, birdid.ErrPrecondition) {
		t.Fatalf("err = %v", err)
	}
}

// countingFS counts reads and holds each one until gate is closed.
type countingFS struct {
	storage.FileStore
	mu      sync.Mutex
	reads   map[string]int
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (c *countingFS) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	c.mu.Lock()
	c.reads[path]++
	c.mu.Unlock()
	c.once.Do(func() { close(c.started) })
	<-c.gate
	return c.FileStore.Read(ctx, path)
}

func smallSpec() fbank.Config {
	return fbank.Config{SampleRate: 8000, FFTSize: 256, HopLength: 128, NumMels: 16, FMax: 4000, TargetDuration: 0.5}
}

func TestConcurrentLoadReadsOnce(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	spec := smallSpec()
	cfg := classifier.DefaultConfig(3, spec)
	m, err := classifier.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := modelstore.New(mem, "model").Save(ctx, abc, classifier.NewArtifact(cfg, spec, m)); err != nil {
		t.Fatal(err)
	}

	fs := &countingFS{FileStore: mem, reads: map[string]int{}, gate: make(chan struct{}), started: make(chan struct{})}
	s, _ := New(Options{Loader: StoreLoader{Store: modelstore.New(fs, "model")}})

	audio := make([]float32, 8000)
	for i := range audio {
		audio[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}

	var wg sync.WaitGroup
	results := make([]birdid.IdentifyResult, 2)
	identify := func(i int) {
		defer wg.Done()
		results[i] = s.Identify(ctx, audio, 16000, 3, nil)
	}
	wg.Add(1)
	go identify(0)
	<-fs.started

	wg.Add(1)
	go identify(1)
	if err := s.LoadNoWait(ctx); !errors.Is(err, birdid.ErrLoadInProgress) {
		t.Errorf("LoadNoWait during load = %v", err)
	}
	if st := s.Status(); st.State != "loading" {
		t.Errorf("status during load = %+v", st)
	}
	close(fs.gate)
	wg.Wait()

	for i, r := range results {
		if !r.Success || len(r.Predictions) != 3 {
			t.Fatalf("result %d = %+v", i, r)
		}
	}
	if fs.reads["model/"+modelstore.LabelsFile] != 1 || fs.reads["model/"+modelstore.WeightsFile] != 1 {
		t.Fatalf("reads = %v", fs.reads)
	}
	if len(results[0].Spectrogram) != 30 || len(results[0].Spectrogram[0]) != 16 {
		t.Fatalf("spectrogram %dx%d", len(results[0].Spectrogram), len(results[0].Spectrogram[0]))
	}
}

func TestReadLabelsMissing(t *testing.T) {
	if _, err := ReadLabels(t.TempDir() + "/labels.json"); !errors.Is(err, birdid.ErrResourceUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestONNXBackendMissingModel(t *testing.T) {
	_, err := NewONNXBackend(ONNXConfig{ModelPath: t.TempDir() + "/missing.onnx"}, nil)
	if !errors.Is(err, birdid.ErrResourceUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestONNXMetaModelFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	b := &ONNXBackend{cfg: ONNXConfig{MetaModelPath: "meta.onnx"}.withDefaults()}
	b.attachMeta(func(path, input, output string) (*ort.DynamicAdvancedSession, error) {
		if path != "meta.onnx" || input != "input" || output != "output" {
			t.Errorf("open(%q, %q, %q)", path, input, output)
		}
		return nil, errors.New("unsupported opset")
	}, log)
	if b.HasGeo() {
		t.Fatal("geo scoring enabled after a failed open")
	}
	out := logs.String()
	for _, want := range []string{"level=WARN", "meta.onnx", "unsupported opset"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestONNXNoMetaModelConfigured(t *testing.T) {
	b := &ONNXBackend{cfg: ONNXConfig{}.withDefaults()}
	b.attachMeta(func(string, string, string) (*ort.DynamicAdvancedSession, error) {
		t.Fatal("open called without a metadata model path")
		return nil, nil
	}, slog.Default())
	if b.HasGeo() {
		t.Fatal("geo scoring enabled without a metadata model")
	}
}
