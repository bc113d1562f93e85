package service

import (
	"bytes"
	"testing"
)

func TestReadHandshakeMeta(t *testing.T) {
	nameBuf := make([]byte, 64)
	copy(nameBuf, "Pixel 7")
	payload := append(nameBuf, 0x04, 0x38, 0x07, 0x80) // 1080x1920 big-endian

	name, width, height, err := readHandshakeMeta(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("readHandshakeMeta() error: %v", err)
	}
	if name != "Pixel 7" {
		t.Errorf("name = %q, want %q", name, "Pixel 7")
	}
	if width != 1080 || height != 1920 {
		t.Errorf("resolution = %dx%d, want 1080x1920", width, height)
	}
}

func TestReadHandshakeMetaTruncatedName(t *testing.T) {
	// 63 bytes instead of 64: a short read anywhere in the handshake is fatal.
	payload := make([]byte, 63)
	copy(payload, "Pixel 7")

	if _, _, _, err := readHandshakeMeta(bytes.NewReader(payload)); err == nil {
		t.Fatal("expected error for truncated device name")
	}
}

func TestReadHandshakeMetaMissingResolution(t *testing.T) {
	nameBuf := make([]byte, 64)
	copy(nameBuf, "Pixel 7")
	payload := append(nameBuf, 0x04, 0x38) // only 2 of 4 resolution bytes

	if _, _, _, err := readHandshakeMeta(bytes.NewReader(payload)); err == nil {
		t.Fatal("expected error for truncated resolution")
	}
}

func TestReadHandshakeMetaEmptyName(t *testing.T) {
	payload := make([]byte, 68) // all NUL name + zero resolution

	if _, _, _, err := readHandshakeMeta(bytes.NewReader(payload)); err == nil {
		t.Fatal("expected error for empty device name")
	}
}

func TestExtractNAL(t *testing.T) {
	sps := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x0a, 0xf8, 0x41, 0xa2}
	pps := []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0xce, 0x38, 0x80}
	idr := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0x10}

	var stream []byte
	stream = append(stream, sps...)
	stream = append(stream, pps...)
	stream = append(stream, idr...)

	nal1, rest := extractNAL(stream)
	if !bytes.Equal(nal1, sps) {
		t.Errorf("first unit is not the SPS: %x", nal1)
	}

	nal2, rest := extractNAL(rest)
	if !bytes.Equal(nal2, pps) {
		t.Errorf("second unit is not the PPS: %x", nal2)
	}

	// The IDR has no successor yet, so it stays buffered until more data
	// arrives or the flush threshold is hit.
	nal3, rest := extractNAL(rest)
	if nal3 != nil {
		t.Errorf("expected trailing unit to stay buffered, got %x", nal3)
	}
	if !bytes.Equal(rest, idr) {
		t.Errorf("remaining buffer mismatch: %x", rest)
	}
}

func TestExtractNALShortBuffer(t *testing.T) {
	nal, rest := extractNAL([]byte{0x00, 0x00, 0x01})
	if nal != nil {
		t.Errorf("expected nil unit for short buffer, got %x", nal)
	}
	if len(rest) != 3 {
		t.Errorf("remaining length = %d, want 3", len(rest))
	}
}

func TestExtractNALThreeByteStartCode(t *testing.T) {
	unit1 := []byte{0x00, 0x00, 0x01, 0x67, 0xaa}
	unit2 := []byte{0x00, 0x00, 0x01, 0x68, 0xbb}

	stream := append(append([]byte(nil), unit1...), unit2...)

	nal, rest := extractNAL(stream)
	if !bytes.Equal(nal, unit1) {
		t.Errorf("unit = %x, want %x", nal, unit1)
	}
	if !bytes.Equal(rest, unit2) {
		t.Errorf("remaining = %x, want %x", rest, unit2)
	}
}

func TestExtractNALFlushesOversizedUnit(t *testing.T) {
	// A single unit larger than the flush threshold with no successor is
	// emitted anyway instead of buffering forever.
	big := make([]byte, 1024*100+10)
	copy(big, []byte{0x00, 0x00, 0x00, 0x01, 0x65})

	nal, rest := extractNAL(big)
	if nal == nil {
		t.Fatal("oversized unit was not flushed")
	}
	if rest != nil {
		t.Errorf("expected empty remainder, got %d bytes", len(rest))
	}
}

func TestNALUnitType(t *testing.T) {
	tests := []struct {
		data []byte
		want int
	}{
		{[]byte{0x00, 0x00, 0x00, 0x01, 0x67}, 7}, // SPS
		{[]byte{0x00, 0x00, 0x00, 0x01, 0x68}, 8}, // PPS
		{[]byte{0x00, 0x00, 0x01, 0x65}, 5},       // IDR, 3-byte start code
		{[]byte{0x01, 0x02, 0x03, 0x04}, -1},
		{[]byte{0x00, 0x00}, -1},
	}
	for _, tt := range tests {
		if got := nalUnitType(tt.data); got != tt.want {
			t.Errorf("nalUnitType(%x) = %d, want %d", tt.data, got, tt.want)
		}
	}
}

func TestClientStateString(t *testing.T) {
	if StateIdle.String() != "IDLE" || StateStreaming.String() != "STREAMING" || StateClosed.String() != "CLOSED" {
		t.Error("unexpected state names")
	}
}
