package inference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// ONNXConfig locates a pretrained audio model and its optional metadata
// model.
type ONNXConfig struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default.
	LibraryPath string `yaml:"library_path" json:"libraryPath"`

	ModelPath  string `yaml:"model_path" json:"modelPath"`
	LabelsPath string `yaml:"labels_path" json:"labelsPath"`
	InputName  string `yaml:"input_name" json:"inputName"`
	OutputName string `yaml:"output_name" json:"outputName"`

	// MetaModelPath is optional. Its input is [1, 3] = lat, lon, week.
	MetaModelPath  string `yaml:"meta_model_path,omitempty" json:"metaModelPath,omitempty"`
	MetaInputName  string `yaml:"meta_input_name,omitempty" json:"metaInputName,omitempty"`
	MetaOutputName string `yaml:"meta_output_name,omitempty" json:"metaOutputName,omitempty"`

	// SampleRate and Duration size the waveform input. Defaults are
	// 48000 Hz and 3 s.
	SampleRate int     `yaml:"sample_rate" json:"sampleRate"`
	Duration   float64 `yaml:"duration" json:"duration"`

	// Threads bounds intra-op parallelism. 0 lets onnxruntime decide.
	Threads int `yaml:"threads,omitempty" json:"threads,omitempty"`
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.InputName == "" {
		c.InputName = "input"
	}
	if c.OutputName == "" {
		c.OutputName = "output"
	}
	if c.MetaInputName == "" {
		c.MetaInputName = "input"
	}
	if c.MetaOutputName == "" {
		c.MetaOutputName = "output"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Duration <= 0 {
		c.Duration = 3
	}
	return c
}

func (c ONNXConfig) features() InGraphFeatures {
	c = c.withDefaults()
	return InGraphFeatures{SampleRate: c.SampleRate, Samples: int(c.Duration * float64(c.SampleRate))}
}

var ortInit struct {
	sync.Mutex
	done bool
}

// initORT initializes the onnxruntime environment once per process.
func initORT(lib string) error {
	ortInit.Lock()
	defer ortInit.Unlock()
	if ortInit.done || ort.IsInitialized() {
		ortInit.done = true
		return nil
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("inference: initialize onnxruntime: %w: %w", birdid.ErrResourceUnavailable, err)
	}
	ortInit.done = true
	return nil
}

// ONNXBackend runs a pretrained audio model with onnxruntime.
type ONNXBackend struct {
	cfg ONNXConfig

	mu     sync.Mutex
	audio  *ort.DynamicAdvancedSession
	meta   *ort.DynamicAdvancedSession
	closed bool
}

// NewONNXBackend opens the audio session and, when configured, the
// metadata session. A metadata model that fails to open is logged to log
// (slog.Default() when nil) and skipped.
func NewONNXBackend(cfg ONNXConfig, log *slog.Logger) (*ONNXBackend, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	if _, err := os.Stat(cfg.ModelPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("inference: model %s not found: %w", cfg.ModelPath, birdid.ErrResourceUnavailable)
	}
	if err := initORT(cfg.LibraryPath); err != nil {
		return nil, err
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("inference: session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.Threads); err != nil {
			return nil, fmt.Errorf("inference: session threads: %w", err)
		}
	}

	audio, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("inference: open %s: %w: %w", cfg.ModelPath, birdid.ErrResourceUnavailable, err)
	}
	b := &ONNXBackend{cfg: cfg, audio: audio}
	b.attachMeta(func(path, input, output string) (*ort.DynamicAdvancedSession, error) {
		return ort.NewDynamicAdvancedSession(path, []string{input}, []string{output}, opts)
	}, log)
	return b, nil
}

// openSession opens a session with one named input and one named output.
type openSession func(path, input, output string) (*ort.DynamicAdvancedSession, error)

// attachMeta opens the configured metadata model. On failure the backend
// keeps working without geo scores.
func (b *ONNXBackend) attachMeta(open openSession, log *slog.Logger) {
	if b.cfg.MetaModelPath == "" {
		return
	}
	meta, err := open(b.cfg.MetaModelPath, b.cfg.MetaInputName, b.cfg.MetaOutputName)
	if err != nil {
		log.Warn("metadata model unavailable, geo scoring disabled",
			"path", b.cfg.MetaModelPath, "error", err)
		return
	}
	b.meta = meta
}

// run feeds one float32 input and copies out the float32 output. Both
// tensors are destroyed before returning.
func run(s *ort.DynamicAdvancedSession, shape []int, data []float32) ([]float32, error) {
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	in, err := ort.NewTensor(ort.NewShape(dims...), data)
	if err != nil {
		return nil, fmt.Errorf("inference: input tensor: %w: %w", birdid.ErrInference, err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := s.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("inference: run: %w: %w", birdid.ErrInference, err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("inference: output is not float32: %w", birdid.ErrInference)
	}
	return append([]float32(nil), out.GetData()...), nil
}

// Predict implements [Backend].
func (b *ONNXBackend) Predict(_ context.Context, x *tensor.Tensor) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("inference: onnx backend closed: %w", birdid.ErrResourceUnavailable)
	}
	return run(b.audio, x.Shape, x.Data)
}

// HasGeo implements [GeoScorer].
func (b *ONNXBackend) HasGeo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.meta != nil && !b.closed
}

// PredictGeo implements [GeoScorer].
func (b *ONNXBackend) PredictGeo(_ context.Context, geo birdid.Geo) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.meta == nil {
		return nil, fmt.Errorf("inference: no metadata model: %w", birdid.ErrResourceUnavailable)
	}
	return run(b.meta, []int{1, 3}, []float32{float32(geo.Lat), float32(geo.Lon), float32(geo.Week)})
}

// Close implements [Backend].
func (b *ONNXBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var errs []error
	if b.meta != nil {
		errs = append(errs, b.meta.Destroy())
	}
	errs = append(errs, b.audio.Destroy())
	return errors.Join(errs...)
}
