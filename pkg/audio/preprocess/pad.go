package preprocess

// PadOrTrim returns a slice of exactly length n. Longer inputs are
// cropped around their center (the odd sample is dropped from the end);
// shorter inputs are zero-padded on both sides (the odd zero goes to the
// end).
func PadOrTrim(x []float32, n int) []float32 {
	out := make([]float32, n)
	switch {
	case len(x) > n:
		start := (len(x) - n) / 2
		copy(out, x[start:start+n])
	case len(x) < n:
		start := (n - len(x)) / 2
		copy(out[start:], x)
	default:
		copy(out, x)
	}
	return out
}

// FitHead returns a slice of exactly length n, keeping the head of x and
// zero-padding the tail.
func FitHead(x []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, x)
	return out
}
