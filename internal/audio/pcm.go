package audio

import "encoding/binary"

// Interleave writes stereo float samples into dst as interleaved int16 and
// returns the absolute peak of the input.
func Interleave(dst []int16, src [][2]float64) float64 {
	peak := 0.0
	for i, s := range src {
		dst[i*2] = ToInt16(s[0])
		dst[i*2+1] = ToInt16(s[1])
		peak = max(peak, abs(s[0]), abs(s[1]))
	}
	return peak
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
