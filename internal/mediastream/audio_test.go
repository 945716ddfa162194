package mediastream

import (
	"encoding/binary"
	"testing"
)

func TestDecodeMulawSample(t *testing.T) {
	cases := []struct {
		in   byte
		want int16
	}{
		// Reference points of the G.711 expansion table.
		{0xFF, 0},      // positive zero
		{0x7F, 0},      // negative zero
		{0x80, 32124},  // maximum positive
		{0x00, -32124}, // maximum negative
		{0xFE, 8},
		{0x7E, -8},
	}
	for _, tc := range cases {
		if got := decodeMulawSample(tc.in); got != tc.want {
			t.Fatalf("decodeMulawSample(%#x) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDecodeMulawLength(t *testing.T) {
	in := []byte{0xFF, 0x80, 0x00, 0x7F}
	out := DecodeMulaw(in)
	if len(out) != len(in)*2 {
		t.Fatalf("output length = %d, want %d", len(out), len(in)*2)
	}
	if got := int16(binary.LittleEndian.Uint16(out[2:4])); got != 32124 {
		t.Fatalf("second sample = %d, want 32124", got)
	}
}

func TestWrapWAVHeader(t *testing.T) {
	pcm := make([]byte, 320)
	wav := WrapWAV(pcm)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: %q %q", wav[0:4], wav[8:12])
	}
	if string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q %q", wav[12:16], wav[36:40])
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Fatalf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 8000 {
		t.Fatalf("sample rate = %d, want 8000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Fatalf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", got, len(pcm))
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Fatalf("riff size = %d, want %d", got, 36+len(pcm))
	}
}
