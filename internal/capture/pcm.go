package capture

import (
	"encoding/binary"
	"fmt"
)

const maxInt16 = 32768.0

// ConvertPCM16 decodes little-endian signed 16-bit samples from src into
// dst as floats in [-1, 1). It returns the number of samples written,
// bounded by both len(dst) and len(src)/2.
func ConvertPCM16(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := range n {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(src[2*i:]))) / maxInt16
	}
	return n
}

// pcmDivisor returns the full-scale value for an integer bit depth.
func pcmDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported audio bit depth: %d", bitDepth)
	}
}
