package preprocess

import "encoding/binary"

// DecodePCM16 converts little-endian signed 16-bit PCM to floats in
// [-1, 1). A trailing odd byte is ignored.
func DecodePCM16(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(b[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out
}
