package mediastream

import (
	"bytes"
	"encoding/binary"
)

// Telephony-grade audio constants for provider media streams:
// 8 kHz, mono, G.711 mu-law companded, decoded here to 16-bit linear PCM.
const (
	sampleRate     = 8000
	numChannels    = 1
	bytesPerSample = 2
)

// DecodeMulaw expands G.711 mu-law companded samples to 16-bit little-endian
// linear PCM. Output is exactly twice the input length.
func DecodeMulaw(in []byte) []byte {
	out := make([]byte, len(in)*bytesPerSample)
	for i, b := range in {
		s := decodeMulawSample(b)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func decodeMulawSample(u byte) int16 {
	// Mu-law bytes are transmitted complemented.
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	t := (int32(mantissa)<<3 + 0x84) << exponent
	t -= 0x84

	if sign != 0 {
		return int16(-t)
	}
	return int16(t)
}

// WrapWAV frames raw PCM in a minimal self-describing RIFF/WAVE container
// (8 kHz, mono, 16-bit) so the transcription service can identify the format.
func WrapWAV(pcm []byte) []byte {
	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bytesPerSample)
	blockAlign := uint16(numChannels * bytesPerSample)

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))               // fmt chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))                // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(8*bytesPerSample)) // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)

	return buf.Bytes()
}
