package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/stft"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/modelstore"
)

// Loader reads a model from durable storage.
type Loader interface {
	Load(ctx context.Context) (*Model, error)
}

// LoaderFunc adapts a function to [Loader].
type LoaderFunc func(ctx context.Context) (*Model, error)

func (f LoaderFunc) Load(ctx context.Context) (*Model, error) { return f(ctx) }

// StoreLoader loads a classifier trained by this module from a
// modelstore. Features are computed outside the graph with the
// spectrogram config recorded in the artifact.
type StoreLoader struct {
	Store  *modelstore.Store
	Method stft.Method
}

// Load implements [Loader].
func (l StoreLoader) Load(ctx context.Context) (*Model, error) {
	b, err := l.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	ex, err := fbank.New(b.Artifact.Spectrogram, l.Method)
	if err != nil {
		return nil, fmt.Errorf("inference: artifact spectrogram config: %w: %w", birdid.ErrResourceUnavailable, err)
	}
	m, err := b.Artifact.Build()
	if err != nil {
		return nil, err
	}
	return &Model{
		Backend:  NewNetworkBackend(m),
		Classes:  b.Classes,
		Features: ExternalFeatures{Extractor: ex},
	}, nil
}

// ONNXLoader loads a pretrained ONNX audio model whose labels file is a
// JSON array of "Scientific name_Common Name" strings.
type ONNXLoader struct {
	Config ONNXConfig
	Logger *slog.Logger
}

// Load implements [Loader]. Labels are read before the session is
// created so a missing labels file never leaves a half-open session.
func (l ONNXLoader) Load(_ context.Context) (*Model, error) {
	labels, err := ReadLabels(l.Config.LabelsPath)
	if err != nil {
		return nil, err
	}
	b, err := NewONNXBackend(l.Config, l.Logger)
	if err != nil {
		return nil, err
	}
	return &Model{
		Backend:  b,
		Classes:  birdid.ClassesFromLabels(labels),
		Features: l.Config.features(),
	}, nil
}

// ReadLabels reads a JSON array of label strings.
func ReadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("inference: labels %s not found: %w", path, birdid.ErrResourceUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("inference: read labels: %w: %w", birdid.ErrResourceUnavailable, err)
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("inference: decode labels: %w: %w", birdid.ErrResourceUnavailable, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("inference: labels %s empty: %w", path, birdid.ErrResourceUnavailable)
	}
	return labels, nil
}
