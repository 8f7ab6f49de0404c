package inference

import (
	"context"
	"fmt"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/nn"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Backend runs the forward pass of a loaded model.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Predict returns the class probability vector for a single-example
	// batch x.
	Predict(ctx context.Context, x *tensor.Tensor) ([]float32, error)

	// Close releases the model. Predict must not be called afterwards.
	Close() error
}

// GeoScorer is implemented by backends with a metadata model that turns
// recording location and week into a per-class prior.
type GeoScorer interface {
	HasGeo() bool
	PredictGeo(ctx context.Context, geo birdid.Geo) ([]float32, error)
}

// Model is a loaded, ready-to-use classifier.
type Model struct {
	Backend  Backend
	Classes  birdid.ClassList
	Features FeatureExtractor
}

// Close releases the backend.
func (m *Model) Close() error {
	if m == nil || m.Backend == nil {
		return nil
	}
	return m.Backend.Close()
}

// NetworkBackend serves an in-process nn.Model.
type NetworkBackend struct {
	model *nn.Model
}

// NewNetworkBackend wraps m.
func NewNetworkBackend(m *nn.Model) *NetworkBackend {
	return &NetworkBackend{model: m}
}

// Predict implements [Backend].
func (b *NetworkBackend) Predict(_ context.Context, x *tensor.Tensor) ([]float32, error) {
	if x.Rank() == 0 || x.Dim(0) != 1 {
		return nil, fmt.Errorf("inference: batch of %v, want one example: %w", x.Shape, birdid.ErrPrecondition)
	}
	y, err := b.model.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("inference: %w: %w", birdid.ErrInference, err)
	}
	return append([]float32(nil), y.Row(0)...), nil
}

// Close implements [Backend].
func (b *NetworkBackend) Close() error { return nil }

// FeatureExtractor turns a raw waveform into the model's input tensor.
// The spectrogram is returned for display and may be nil.
type FeatureExtractor interface {
	Features(samples []float32, sampleRate int) (*tensor.Tensor, fbank.Spectrogram, error)
}
