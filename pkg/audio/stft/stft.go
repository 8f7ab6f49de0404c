// Package stft computes short-time Fourier magnitude spectra of mono
// waveforms using a Hann window.
//
// Two transforms are available. Direct evaluates the DFT sum for every
// bin and is kept as the numerical reference. Fast uses a mixed-radix FFT
// and is the default. Both produce F/2+1 magnitudes per frame.
package stft

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/birdid"
)

// Method selects the transform used per frame.
type Method int

const (
	// Fast uses an FFT.
	Fast Method = iota
	// Direct evaluates the DFT sum, O(F^2) per frame.
	Direct
)

func (m Method) String() string {
	switch m {
	case Fast:
		return "fast"
	case Direct:
		return "direct"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod parses "fast" or "direct".
func ParseMethod(s string) (Method, error) {
	switch s {
	case "", "fast", "fft":
		return Fast, nil
	case "direct", "dft":
		return Direct, nil
	}
	return Fast, fmt.Errorf("stft: unknown method %q: %w", s, birdid.ErrPrecondition)
}

var (
	windowMu    sync.Mutex
	windowCache = map[int][]float64{}
)

// HannWindow returns w[i] = 0.5*(1-cos(2*pi*i/(F-1))). The returned slice
// is shared and must not be modified.
func HannWindow(size int) []float64 {
	windowMu.Lock()
	defer windowMu.Unlock()
	if w, ok := windowCache[size]; ok {
		return w
	}
	w := window.Hann(size)
	windowCache[size] = w
	return w
}

// DFTMagnitude returns |X[k]| for k in [0, F/2] by direct summation.
func DFTMagnitude(frame []float64) []float64 {
	n := len(frame)
	bins := n/2 + 1
	out := make([]float64, bins)
	for k := 0; k < bins; k++ {
		var re, im float64
		for i, v := range frame {
			angle := 2 * math.Pi * float64(k) * float64(i) / float64(n)
			re += v * math.Cos(angle)
			im -= v * math.Sin(angle)
		}
		out[k] = math.Sqrt(re*re + im*im)
	}
	return out
}

// FFTMagnitude returns |X[k]| for k in [0, F/2] using an FFT.
func FFTMagnitude(frame []float64) []float64 {
	coeffs := fft.FFTReal(frame)
	bins := len(frame)/2 + 1
	out := make([]float64, bins)
	for k := range out {
		out[k] = cmplx.Abs(coeffs[k])
	}
	return out
}

// Transform is a framed, windowed magnitude transform.
type Transform struct {
	FrameSize int
	HopSize   int
	Method    Method
}

// NumFrames returns floor((n-F)/H)+1, or 0 when n < F.
func (t Transform) NumFrames(n int) int {
	if n < t.FrameSize || t.HopSize <= 0 {
		return 0
	}
	return (n-t.FrameSize)/t.HopSize + 1
}

// NumBins returns F/2+1.
func (t Transform) NumBins() int { return t.FrameSize/2 + 1 }

func (t Transform) validate(n int) error {
	if t.FrameSize < 2 || t.HopSize <= 0 {
		return fmt.Errorf("stft: frame %d hop %d: %w", t.FrameSize, t.HopSize, birdid.ErrPrecondition)
	}
	if n < t.FrameSize {
		return fmt.Errorf("stft: %d samples shorter than frame %d: %w", n, t.FrameSize, birdid.ErrPrecondition)
	}
	return nil
}

// Magnitudes returns one row of F/2+1 magnitudes per frame.
func (t Transform) Magnitudes(x []float32) ([][]float64, error) {
	if err := t.validate(len(x)); err != nil {
		return nil, err
	}
	mag := FFTMagnitude
	if t.Method == Direct {
		mag = DFTMagnitude
	}
	win := HannWindow(t.FrameSize)
	frames := make([][]float64, t.NumFrames(len(x)))
	buf := make([]float64, t.FrameSize)
	for f := range frames {
		start := f * t.HopSize
		for i := range buf {
			buf[i] = float64(x[start+i]) * win[i]
		}
		frames[f] = mag(buf)
	}
	return frames, nil
}
