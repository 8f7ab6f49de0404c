package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/audiofile"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/preprocess"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// DefaultBatchSize is used when GeneratorOptions.BatchSize is zero.
const DefaultBatchSize = 32

// Loader reads the waveform of a sample.
type Loader func(ctx context.Context, s Sample) (preprocess.Buffer, error)

// FileLoader decodes s.Path with audiofile.Decode. Raw .pcm files are
// read at pcmRate.
func FileLoader(pcmRate int) Loader {
	return func(_ context.Context, s Sample) (preprocess.Buffer, error) {
		return audiofile.Decode(s.Path, pcmRate)
	}
}

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	Samples    []Sample
	NumClasses int
	BatchSize  int

	// Extractor computes features. Required.
	Extractor *fbank.Extractor

	// Augment enables random spectrogram augmentation (training only).
	Augment bool

	// Seed drives shuffling and augmentation.
	Seed int64

	// Loader defaults to FileLoader at the extractor's sample rate.
	Loader Loader

	// HighQuality resamples with the windowed-sinc resampler instead of
	// linear interpolation when a file's rate differs from the target.
	HighQuality bool

	// Workers bounds parallel feature extraction. Defaults to GOMAXPROCS.
	Workers int

	Logger *slog.Logger
}

// Batch is one step of training or evaluation data.
type Batch struct {
	// X is [B, nMels, frames, 1].
	X *tensor.Tensor
	// Y is one-hot [B, numClasses].
	Y *tensor.Tensor
	// Samples are the recordings in X, in row order.
	Samples []Sample
	// Skipped counts samples that failed to load.
	Skipped int
}

// Labels returns the class index of each row.
func (b *Batch) Labels() []int {
	out := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = s.ClassIndex
	}
	return out
}

// Generator streams batches over a sample list. Each epoch visits every
// sample once in a shuffled order. Results are deterministic for a given
// seed regardless of worker count.
//
// A Generator is not safe for concurrent use.
type Generator struct {
	opts    GeneratorOptions
	samples []Sample
	rng     *rand.Rand
	pos     int
	log     *slog.Logger
}

// NewGenerator validates opts and shuffles the first epoch.
func NewGenerator(opts GeneratorOptions) (*Generator, error) {
	if opts.Extractor == nil {
		return nil, fmt.Errorf("dataset: generator needs an extractor: %w", birdid.ErrPrecondition)
	}
	if opts.NumClasses < 1 {
		return nil, fmt.Errorf("dataset: %d classes: %w", opts.NumClasses, birdid.ErrPrecondition)
	}
	for _, s := range opts.Samples {
		if s.ClassIndex < 0 || s.ClassIndex >= opts.NumClasses {
			return nil, fmt.Errorf("dataset: sample %s class %d out of range: %w", s.Path, s.ClassIndex, birdid.ErrPrecondition)
		}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Loader == nil {
		opts.Loader = FileLoader(opts.Extractor.Config().SampleRate)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	g := &Generator{
		opts:    opts,
		samples: slices.Clone(opts.Samples),
		rng:     rand.New(rand.NewSource(opts.Seed)),
		log:     log,
	}
	g.shuffle()
	return g, nil
}

func (g *Generator) shuffle() {
	g.rng.Shuffle(len(g.samples), func(i, j int) {
		g.samples[i], g.samples[j] = g.samples[j], g.samples[i]
	})
}

// Len returns the number of samples per epoch.
func (g *Generator) Len() int { return len(g.samples) }

// NumBatches returns ceil(Len / BatchSize).
func (g *Generator) NumBatches() int {
	return (len(g.samples) + g.opts.BatchSize - 1) / g.opts.BatchSize
}

// Reset starts a new epoch with a fresh shuffle.
func (g *Generator) Reset() {
	g.pos = 0
	g.shuffle()
}

type item struct {
	x   *tensor.Tensor
	err error
}

// Next returns the next batch, or io.EOF when the epoch is exhausted.
// Samples that fail to load are logged and left out; a chunk in which
// every sample fails is skipped.
func (g *Generator) Next(ctx context.Context) (*Batch, error) {
	for g.pos < len(g.samples) {
		end := min(g.pos+g.opts.BatchSize, len(g.samples))
		chunk := g.samples[g.pos:end]
		g.pos = end

		seeds := make([]int64, len(chunk))
		for i := range seeds {
			seeds[i] = g.rng.Int63()
		}
		items := make([]item, len(chunk))

		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(g.opts.Workers)
		for i, s := range chunk {
			eg.Go(func() error {
				if err := egctx.Err(); err != nil {
					return err
				}
				x, err := g.features(egctx, s, rand.New(rand.NewSource(seeds[i])))
				items[i] = item{x: x, err: err}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		b := &Batch{}
		var xs []*tensor.Tensor
		for i, it := range items {
			if it.err != nil {
				g.log.Warn("skipping sample", "path", chunk[i].Path, "error", it.err)
				b.Skipped++
				continue
			}
			xs = append(xs, it.x)
			b.Samples = append(b.Samples, chunk[i])
		}
		if len(xs) == 0 {
			continue
		}
		x, err := tensor.Stack(xs)
		if err != nil {
			return nil, fmt.Errorf("dataset: stack batch: %w", err)
		}
		b.X = x
		b.Y = OneHot(b.Labels(), g.opts.NumClasses)
		return b, nil
	}
	return nil, io.EOF
}

func (g *Generator) features(ctx context.Context, s Sample, rng *rand.Rand) (*tensor.Tensor, error) {
	buf, err := g.opts.Loader(ctx, s)
	if err != nil {
		return nil, err
	}
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	samples := buf.Samples
	if rate := g.opts.Extractor.Config().SampleRate; buf.SampleRate != rate {
		if g.opts.HighQuality {
			samples, err = preprocess.ResampleHQ(samples, buf.SampleRate, rate)
			if err != nil {
				return nil, err
			}
		} else {
			samples = preprocess.Resample(samples, buf.SampleRate, rate)
		}
	}
	spec, err := g.opts.Extractor.Extract(samples)
	if err != nil {
		return nil, err
	}
	if g.opts.Augment {
		spec, _ = MaybeAugment(spec, rng)
	}
	return fbank.ToTensor(spec), nil
}

// OneHot encodes labels as a [len(labels), numClasses] tensor.
func OneHot(labels []int, numClasses int) *tensor.Tensor {
	y := tensor.Zeros(len(labels), numClasses)
	for i, c := range labels {
		y.Data[i*numClasses+c] = 1
	}
	return y
}
