package service

import (
	"bytes"
	"testing"
)

func TestExtractJPEG(t *testing.T) {
	banner := []byte("PID: 1234\nINFO: Using projection 1080x1920@1080x1920/0\n")
	image := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}
	raw := append(append([]byte(nil), banner...), image...)

	got, err := extractJPEG(raw)
	if err != nil {
		t.Fatalf("extractJPEG() error: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Errorf("extracted %x, want %x", got, image)
	}
}

func TestExtractJPEGNoSOI(t *testing.T) {
	if _, err := extractJPEG([]byte("no markers here")); err == nil {
		t.Fatal("expected error when SOI is missing")
	}
}

func TestExtractJPEGMissingEOI(t *testing.T) {
	// EOI absent: everything from the SOI onward is returned.
	raw := []byte{'x', 'x', 0xFF, 0xD8, 0x01, 0x02, 0x03}

	got, err := extractJPEG(raw)
	if err != nil {
		t.Fatalf("extractJPEG() error: %v", err)
	}
	want := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03}
	if !bytes.Equal(got, want) {
		t.Errorf("extracted %x, want %x", got, want)
	}
}

func TestExtractJPEGUsesLastEOI(t *testing.T) {
	// Embedded thumbnails carry their own EOI; the outermost one wins.
	raw := []byte{0xFF, 0xD8, 0xFF, 0xD8, 0xAA, 0xFF, 0xD9, 0xBB, 0xFF, 0xD9}

	got, err := extractJPEG(raw)
	if err != nil {
		t.Fatalf("extractJPEG() error: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("extracted %x, want whole buffer %x", got, raw)
	}
}
