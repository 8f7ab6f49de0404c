// Package fbank turns waveforms into normalized log-mel spectrograms, the
// input features of the bird classifier.
//
// The pipeline is
//
//	peak normalize -> pad/trim to TargetDuration -> Hann STFT magnitudes
//	-> mel filterbank -> power to dB -> global min/max to [0, 1]
//
// Default parameters:
//
//	SampleRate:     22050
//	FFTSize:        2048
//	HopLength:      512
//	NumMels:        128
//	FMin:           0
//	FMax:           11025
//	TargetDuration: 3.0 s
//
// which yields 128 x 126 spectrograms.
package fbank

import (
	"fmt"
	"math"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/preprocess"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/stft"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

// Config controls spectrogram extraction. It is comparable and used as
// the filterbank cache key.
type Config struct {
	SampleRate     int     `json:"sampleRate" yaml:"sample_rate" msgpack:"sample_rate"`
	FFTSize        int     `json:"fftSize" yaml:"fft_size" msgpack:"fft_size"`
	HopLength      int     `json:"hopLength" yaml:"hop_length" msgpack:"hop_length"`
	NumMels        int     `json:"nMels" yaml:"n_mels" msgpack:"n_mels"`
	FMin           float64 `json:"fMin" yaml:"f_min" msgpack:"f_min"`
	FMax           float64 `json:"fMax" yaml:"f_max" msgpack:"f_max"`
	TargetDuration float64 `json:"targetDuration" yaml:"target_duration" msgpack:"target_duration"`
}

// DefaultConfig returns the configuration the classifier is trained with.
func DefaultConfig() Config {
	return Config{
		SampleRate:     22050,
		FFTSize:        2048,
		HopLength:      512,
		NumMels:        128,
		FMin:           0,
		FMax:           11025,
		TargetDuration: 3.0,
	}
}

// Validate reports malformed configurations as ErrPrecondition.
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("fbank: "+format+": %w", append(args, birdid.ErrPrecondition)...)
	}
	switch {
	case c.SampleRate <= 0:
		return bad("sample rate %d", c.SampleRate)
	case c.FFTSize < 2:
		return bad("fft size %d", c.FFTSize)
	case c.HopLength <= 0:
		return bad("hop length %d", c.HopLength)
	case c.NumMels <= 0:
		return bad("mel count %d", c.NumMels)
	case c.FMin < 0 || c.FMax <= c.FMin:
		return bad("frequency range [%g, %g]", c.FMin, c.FMax)
	case c.FMax > float64(c.SampleRate)/2:
		return bad("fmax %g above nyquist %d", c.FMax, c.SampleRate/2)
	case c.TargetSamples() < c.FFTSize:
		return bad("target %d samples shorter than fft %d", c.TargetSamples(), c.FFTSize)
	}
	return nil
}

// TargetSamples returns floor(TargetDuration * SampleRate).
func (c Config) TargetSamples() int {
	return int(math.Floor(c.TargetDuration * float64(c.SampleRate)))
}

// Dimensions returns the spectrogram size as (height, width) =
// (NumMels, floor((TargetSamples-FFTSize)/HopLength)+1).
func (c Config) Dimensions() (height, width int) {
	return c.NumMels, (c.TargetSamples()-c.FFTSize)/c.HopLength + 1
}

// Spectrogram is a feature matrix indexed [frame][mel bin].
type Spectrogram [][]float32

// Frames returns the number of time frames.
func (s Spectrogram) Frames() int { return len(s) }

// Bins returns the number of frequency bins per frame.
func (s Spectrogram) Bins() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Extractor computes normalized log-mel spectrograms.
type Extractor struct {
	cfg  Config
	tr   stft.Transform
	bank Filterbank
}

// New creates an Extractor. The filterbank comes from the shared cache.
func New(cfg Config, method stft.Method) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{
		cfg:  cfg,
		tr:   stft.Transform{FrameSize: cfg.FFTSize, HopSize: cfg.HopLength, Method: method},
		bank: CachedFilterbank(cfg),
	}, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Extract runs the full pipeline on samples already at cfg.SampleRate.
// Output is TargetSamples-derived: Dimensions() frames x bins, values in
// [0, 1].
func (e *Extractor) Extract(samples []float32) (Spectrogram, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("fbank: empty waveform: %w", birdid.ErrPrecondition)
	}
	x := preprocess.Normalize(samples)
	x = preprocess.PadOrTrim(x, e.cfg.TargetSamples())
	mags, err := e.tr.Magnitudes(x)
	if err != nil {
		return nil, fmt.Errorf("fbank: stft: %w", err)
	}
	mel := e.bank.Apply(mags)
	return NormalizeSpectrogram(PowerToDB(mel)), nil
}

// FromWaveform resamples samples from sampleRate to cfg.SampleRate and
// extracts the spectrogram.
func (e *Extractor) FromWaveform(samples []float32, sampleRate int) (Spectrogram, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("fbank: sample rate %d: %w", sampleRate, birdid.ErrPrecondition)
	}
	buf, err := preprocess.Prepare(
		preprocess.Buffer{Samples: samples, SampleRate: sampleRate},
		preprocess.Target{SampleRate: e.cfg.SampleRate, Samples: e.cfg.TargetSamples()},
	)
	if err != nil {
		return nil, fmt.Errorf("fbank: %w", err)
	}
	return e.Extract(buf.Samples)
}

// Tensor is FromWaveform followed by ToTensor.
func (e *Extractor) Tensor(samples []float32, sampleRate int) (*tensor.Tensor, Spectrogram, error) {
	spec, err := e.FromWaveform(samples, sampleRate)
	if err != nil {
		return nil, nil, err
	}
	return ToTensor(spec), spec, nil
}
