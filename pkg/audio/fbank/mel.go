package fbank

import (
	"math"
	"sync"
)

// HzToMel converts a frequency to the HTK mel scale.
func HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz is the inverse of HzToMel.
func MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// Filterbank holds triangular mel filters, [numMels][fftSize/2+1].
type Filterbank [][]float64

// NewFilterbank builds numMels triangular filters spaced evenly on the mel
// scale between fMin and fMax. Filter m rises linearly from bin b[m] to
// b[m+1] and falls to b[m+2], where b = floor((fftSize+1)*hz/sampleRate)
// over numMels+2 mel points. Bins past Nyquist are ignored, so a filter
// whose edges collapse onto the same bin is all zero.
func NewFilterbank(sampleRate, fftSize, numMels int, fMin, fMax float64) Filterbank {
	numBins := fftSize/2 + 1
	melMin, melMax := HzToMel(fMin), HzToMel(fMax)

	bins := make([]int, numMels+2)
	for i := range bins {
		mel := melMin + float64(i)*(melMax-melMin)/float64(numMels+1)
		bins[i] = int(math.Floor(float64(fftSize+1) * MelToHz(mel) / float64(sampleRate)))
	}

	bank := make(Filterbank, numMels)
	for m := range bank {
		f := make([]float64, numBins)
		lo, mid, hi := bins[m], bins[m+1], bins[m+2]
		for k := lo; k < mid && k < numBins; k++ {
			f[k] = float64(k-lo) / float64(mid-lo)
		}
		for k := mid; k < hi && k < numBins; k++ {
			f[k] = float64(hi-k) / float64(hi-mid)
		}
		bank[m] = f
	}
	return bank
}

// Apply projects magnitude frames onto the filters.
func (fb Filterbank) Apply(frames [][]float64) [][]float64 {
	out := make([][]float64, len(frames))
	for t, frame := range frames {
		row := make([]float64, len(fb))
		for m, filter := range fb {
			var sum float64
			n := min(len(filter), len(frame))
			for k := 0; k < n; k++ {
				sum += frame[k] * filter[k]
			}
			row[m] = sum
		}
		out[t] = row
	}
	return out
}

var (
	bankMu    sync.Mutex
	bankCache = map[Config]Filterbank{}
)

// CachedFilterbank returns the filterbank for cfg, building it on first
// use. The result is shared and must not be modified.
func CachedFilterbank(cfg Config) Filterbank {
	key := Config{
		SampleRate: cfg.SampleRate,
		FFTSize:    cfg.FFTSize,
		NumMels:    cfg.NumMels,
		FMin:       cfg.FMin,
		FMax:       cfg.FMax,
	}
	bankMu.Lock()
	defer bankMu.Unlock()
	if fb, ok := bankCache[key]; ok {
		return fb
	}
	fb := NewFilterbank(cfg.SampleRate, cfg.FFTSize, cfg.NumMels, cfg.FMin, cfg.FMax)
	bankCache[key] = fb
	return fb
}
