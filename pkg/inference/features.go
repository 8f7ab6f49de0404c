package inference

import (
	"fmt"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/preprocess"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// ExternalFeatures computes the normalized log-mel spectrogram outside
// the model and feeds it as [1, nMels, frames, 1].
type ExternalFeatures struct {
	Extractor *fbank.Extractor
}

// Features implements [FeatureExtractor].
func (f ExternalFeatures) Features(samples []float32, sampleRate int) (*tensor.Tensor, fbank.Spectrogram, error) {
	return f.Extractor.Tensor(samples, sampleRate)
}

// InGraphFeatures feeds the raw waveform, resampled and fitted from the
// head to a fixed length, as [1, N]. It suits models that compute their
// spectrogram inside the graph.
type InGraphFeatures struct {
	SampleRate int
	Samples    int
}

// DefaultInGraphFeatures is 3 s at 48 kHz.
func DefaultInGraphFeatures() InGraphFeatures {
	return InGraphFeatures{SampleRate: 48000, Samples: 3 * 48000}
}

// Features implements [FeatureExtractor]. No spectrogram is returned.
func (f InGraphFeatures) Features(samples []float32, sampleRate int) (*tensor.Tensor, fbank.Spectrogram, error) {
	buf := preprocess.Buffer{Samples: samples, SampleRate: sampleRate}
	if err := buf.Validate(); err != nil {
		return nil, nil, fmt.Errorf("inference: %w", err)
	}
	if f.SampleRate <= 0 || f.Samples <= 0 {
		return nil, nil, fmt.Errorf("inference: in-graph target %+v: %w", f, birdid.ErrPrecondition)
	}
	x := preprocess.Resample(samples, sampleRate, f.SampleRate)
	x = preprocess.FitHead(x, f.Samples)
	return tensor.New([]int{1, f.Samples}, x), nil, nil
}
