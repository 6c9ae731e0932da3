package pcm

import (
	"encoding/binary"
	"math"
)

// Quantize converts one float sample to 16-bit signed linear PCM.
//
// The sample is clamped to [-1, 1]. Negative values scale by 0x8000 and
// non-negative values by 0x7FFF, so -1.0 maps to -32768 and 1.0 to 32767.
// The product truncates toward zero. NaN maps to 0; infinities clamp like
// any other out-of-range value.
func Quantize(s float32) int16 {
	v := float64(s)
	switch {
	case v != v:
		return 0
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	case v < 0:
		return int16(v * 0x8000)
	default:
		return int16(v * 0x7FFF)
	}
}

// EncodeWindow quantises samples and serialises them as little-endian int16.
// The returned slice is newly allocated and has length 2*len(samples).
func EncodeWindow(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Quantize(s)))
	}
	return out
}

// DecodeWindow is the inverse of the serialisation step of [EncodeWindow].
// A trailing odd byte is ignored.
func DecodeWindow(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
