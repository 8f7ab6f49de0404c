package preprocess

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

// Resample converts x from rate `from` to rate `to` by linear
// interpolation. The output has floor(len(x)*to/from) samples. When the
// rates are equal a copy of x is returned.
//
// Output sample i reads source position i*from/to, interpolating between
// floor and ceil of that position (ceil clamped to the last sample).
func Resample(x []float32, from, to int) []float32 {
	if from == to || len(x) == 0 {
		out := make([]float32, len(x))
		copy(out, x)
		return out
	}
	ratio := float64(from) / float64(to)
	out := make([]float32, len(x)*to/from)
	last := len(x) - 1
	for i := range out {
		pos := float64(i) * ratio
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		if hi > last {
			hi = last
		}
		if lo > last {
			lo = last
		}
		frac := pos - float64(lo)
		out[i] = float32(float64(x[lo])*(1-frac) + float64(x[hi])*frac)
	}
	return out
}

// ResampleHQ converts x with a windowed-sinc resampler. It is slower than
// Resample and meant for offline dataset decoding. The output length
// matches Resample's so both paths produce identically shaped features.
func ResampleHQ(x []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("preprocess: invalid rates %d -> %d: %w", from, to, birdid.ErrPrecondition)
	}
	if from == to || len(x) == 0 {
		out := make([]float32, len(x))
		copy(out, x)
		return out, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("preprocess: create resampler: %w", err)
	}
	in := make([]float64, len(x))
	for i, v := range x {
		in[i] = float64(v)
	}
	res, err := rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("preprocess: resample: %w", err)
	}
	n := len(x) * to / from
	out := make([]float32, n)
	for i := 0; i < n && i < len(res); i++ {
		out[i] = float32(res[i])
	}
	return out, nil
}
