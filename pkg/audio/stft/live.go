package stft

// LiveSpectrogram is an unfiltered magnitude spectrogram with its axes,
// streamed to visualizers.
type LiveSpectrogram struct {
	Frequencies []float64   `json:"frequencies"`
	Times       []float64   `json:"times"`
	Magnitudes  [][]float64 `json:"magnitudes"`
}

// Live computes raw per-bin magnitudes with their frequency axis
// (k*rate/window) and time axis (i*hop/rate). No mel projection is
// applied. Input shorter than one window yields an empty result.
func Live(x []float32, sampleRate, windowSize, hopSize int) LiveSpectrogram {
	t := Transform{FrameSize: windowSize, HopSize: hopSize, Method: Fast}
	out := LiveSpectrogram{
		Frequencies: []float64{},
		Times:       []float64{},
		Magnitudes:  [][]float64{},
	}
	if sampleRate <= 0 {
		return out
	}
	mags, err := t.Magnitudes(x)
	if err != nil {
		return out
	}
	out.Frequencies = make([]float64, t.NumBins())
	for k := range out.Frequencies {
		out.Frequencies[k] = float64(k) * float64(sampleRate) / float64(windowSize)
	}
	out.Times = make([]float64, len(mags))
	for i := range out.Times {
		out.Times[i] = float64(i*hopSize) / float64(sampleRate)
	}
	out.Magnitudes = mags
	return out
}
