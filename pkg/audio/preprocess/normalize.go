package preprocess

// Normalize scales x so that its peak absolute value is 1. An all-zero
// input is returned unchanged (as a copy).
func Normalize(x []float32) []float32 {
	out := make([]float32, len(x))
	peak := float64(Peak(x))
	if peak == 0 {
		copy(out, x)
		return out
	}
	for i, v := range x {
		out[i] = float32(float64(v) / peak)
	}
	return out
}

// Peak returns max|x|.
func Peak(x []float32) float32 {
	var peak float32
	for _, v := range x {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
