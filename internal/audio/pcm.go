package audio

import "encoding/binary"

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples decodes little-endian int16 samples. A trailing odd byte
// is ignored.
func BytesToSamples(buf []byte) []int16 {
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
	return samples
}

// ToFloat32 normalises int16 samples into dst as float32 in [-1, 1).
// dst must be at least as long as samples.
func ToFloat32(dst []float32, samples []int16) []float32 {
	dst = dst[:len(samples)]
	for i, s := range samples {
		dst[i] = float32(s) / 32768
	}
	return dst
}
