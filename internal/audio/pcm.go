package audio

import "encoding/binary"

// BytesToPCM16 converts little-endian PCM bytes to int16 samples.
func BytesToPCM16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i : 2*i+2]))
	}
	return out
}

// PCM16ToBytes converts int16 samples to little-endian PCM bytes.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:2*i+2], uint16(s))
	}
	return out
}

// DownsampleBy3 reduces the sample rate by an integer factor of three
// (48 kHz relay audio → 16 kHz speech-provider audio) by averaging each
// group of three samples. Trailing samples that do not fill a group are
// dropped; at 20 ms frame sizes that never happens.
func DownsampleBy3(in []int16) []int16 {
	n := len(in) / 3
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		sum := int(in[3*i]) + int(in[3*i+1]) + int(in[3*i+2])
		out[i] = int16(sum / 3)
	}
	return out
}

// UpsampleBy3 raises the sample rate by an integer factor of three
// (16 kHz synthesized audio → 48 kHz relay audio) with linear interpolation.
func UpsampleBy3(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	out := make([]int16, len(in)*3)
	for i := 0; i < len(in); i++ {
		cur := int(in[i])
		next := cur
		if i+1 < len(in) {
			next = int(in[i+1])
		}
		out[3*i] = int16(cur)
		out[3*i+1] = int16(cur + (next-cur)/3)
		out[3*i+2] = int16(cur + 2*(next-cur)/3)
	}
	return out
}
