package classifier

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/nn"
)

// ArtifactVersion is the current artifact format.
const ArtifactVersion = 1

// Artifact is everything needed to rebuild a trained model: the network
// config, the spectrogram config it was trained on, and its weights.
type Artifact struct {
	Version     int          `msgpack:"version"`
	Model       Config       `msgpack:"model"`
	Spectrogram fbank.Config `msgpack:"spectrogram"`
	Weights     []nn.Weight  `msgpack:"weights"`
}

// NewArtifact captures m's current weights.
func NewArtifact(cfg Config, spec fbank.Config, m *nn.Model) *Artifact {
	return &Artifact{
		Version:     ArtifactVersion,
		Model:       cfg,
		Spectrogram: spec,
		Weights:     m.Weights(),
	}
}

// Marshal encodes the artifact with msgpack.
func (a *Artifact) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("classifier: encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalArtifact decodes an artifact and checks its version.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("classifier: decode artifact: %w: %w", birdid.ErrResourceUnavailable, err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("classifier: artifact version %d, want %d: %w", a.Version, ArtifactVersion, birdid.ErrResourceUnavailable)
	}
	return &a, nil
}

// Build rebuilds the network and loads the artifact's weights. The
// returned model is compiled so it can continue training.
func (a *Artifact) Build() (*nn.Model, error) {
	m, err := New(a.Model)
	if err != nil {
		return nil, err
	}
	if err := m.SetWeights(a.Weights); err != nil {
		return nil, fmt.Errorf("classifier: load weights: %w: %w", birdid.ErrResourceUnavailable, err)
	}
	return m, nil
}
