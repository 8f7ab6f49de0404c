package preprocess

import (
	"fmt"
	"time"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

// Buffer is a mono waveform at a known sample rate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the length of the buffer in wall-clock time.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Validate checks that the buffer can be processed.
func (b Buffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("preprocess: sample rate %d: %w", b.SampleRate, birdid.ErrPrecondition)
	}
	if len(b.Samples) == 0 {
		return fmt.Errorf("preprocess: empty buffer: %w", birdid.ErrPrecondition)
	}
	return nil
}

// Target describes the waveform expected by a feature extractor.
type Target struct {
	SampleRate int
	Samples    int
}

// Prepare applies Normalize, Resample and PadOrTrim in that order and
// returns a buffer at the target rate and length.
func Prepare(b Buffer, t Target) (Buffer, error) {
	if err := b.Validate(); err != nil {
		return Buffer{}, err
	}
	if t.SampleRate <= 0 || t.Samples <= 0 {
		return Buffer{}, fmt.Errorf("preprocess: invalid target %+v: %w", t, birdid.ErrPrecondition)
	}
	x := Normalize(b.Samples)
	x = Resample(x, b.SampleRate, t.SampleRate)
	x = PadOrTrim(x, t.Samples)
	return Buffer{Samples: x, SampleRate: t.SampleRate}, nil
}
