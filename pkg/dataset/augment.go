package dataset

import (
	"math/rand"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/audio/fbank"
)

// Augmentation is a spectrogram perturbation applied during training.
type Augmentation int

const (
	TimeMask Augmentation = iota
	FreqMask
	Noise
)

func (a Augmentation) String() string {
	switch a {
	case TimeMask:
		return "time_mask"
	case FreqMask:
		return "freq_mask"
	case Noise:
		return "noise"
	}
	return "unknown"
}

// Augment returns a perturbed copy of spec:
//
//	TimeMask  zero 5..24 consecutive frames
//	FreqMask  zero 3..17 consecutive bins in every frame
//	Noise     add uniform noise in ±level/2, level drawn from [0, 0.02)
//
// Masks wider than the spectrogram start at 0 and are cut at the edge.
func Augment(spec fbank.Spectrogram, kind Augmentation, rng *rand.Rand) fbank.Spectrogram {
	out := make(fbank.Spectrogram, len(spec))
	for i, f := range spec {
		out[i] = append([]float32(nil), f...)
	}
	if len(out) == 0 {
		return out
	}
	switch kind {
	case TimeMask:
		width := rng.Intn(20) + 5
		start := maskStart(len(out), width, rng)
		for t := start; t < start+width && t < len(out); t++ {
			clear(out[t])
		}
	case FreqMask:
		height := rng.Intn(15) + 3
		start := maskStart(out.Bins(), height, rng)
		for _, frame := range out {
			for f := start; f < start+height && f < len(frame); f++ {
				frame[f] = 0
			}
		}
	case Noise:
		level := rng.Float64() * 0.02
		for _, frame := range out {
			for i := range frame {
				frame[i] += float32((rng.Float64() - 0.5) * level)
			}
		}
	}
	return out
}

func maskStart(n, width int, rng *rand.Rand) int {
	if n <= width {
		return 0
	}
	return int(rng.Float64() * float64(n-width))
}

// MaybeAugment applies one augmentation chosen uniformly at random with
// probability 0.5 and otherwise returns spec unchanged.
func MaybeAugment(spec fbank.Spectrogram, rng *rand.Rand) (fbank.Spectrogram, bool) {
	if rng.Float64() <= 0.5 {
		return spec, false
	}
	return Augment(spec, Augmentation(rng.Intn(3)), rng), true
}
