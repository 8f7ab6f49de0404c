package fbank

import (
	"math"

	"github.com/meteyaran/Ethno-Ornithology-Atlas/pkg/tensor"
)

const (
	powerFloor = 1e-10
	powerRef   = 1.0
)

// PowerToDB squares each value and converts it to decibels,
// 10*log10(max(v*v, 1e-10)/1).
func PowerToDB(frames [][]float64) [][]float64 {
	out := make([][]float64, len(frames))
	for t, frame := range frames {
		row := make([]float64, len(frame))
		for i, v := range frame {
			row[i] = 10 * math.Log10(math.Max(v*v, powerFloor)/powerRef)
		}
		out[t] = row
	}
	return out
}

// NormalizeSpectrogram maps values linearly onto [0, 1] using the global
// minimum and maximum. A constant input maps to all zeros.
func NormalizeSpectrogram(frames [][]float64) Spectrogram {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, frame := range frames {
		for _, v := range frame {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	out := make(Spectrogram, len(frames))
	for t, frame := range frames {
		row := make([]float32, len(frame))
		for i, v := range frame {
			row[i] = float32((v - lo) / span)
		}
		out[t] = row
	}
	return out
}

// ToTensor lays a spectrogram out as a [1, bins, frames, 1] tensor with
// frequency on the height axis: data[f*frames+t] = spec[t][f].
func ToTensor(spec Spectrogram) *tensor.Tensor {
	height, width := spec.Bins(), spec.Frames()
	data := make([]float32, height*width)
	for t, frame := range spec {
		for f, v := range frame {
			data[f*width+t] = v
		}
	}
	return tensor.New([]int{1, height, width, 1}, data)
}
