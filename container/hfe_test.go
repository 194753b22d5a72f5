package container

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/halvarsson/fluxcore/trackhandler"
)

// TestHFECreateOpenRoundTrip creates a fresh HFE image, writes a
// pattern into one track's decoded payload, serializes it (which
// re-encodes every track as raw MFM bitcells), reopens it, and
// confirms the scanner recovered the payload.
func TestHFECreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.hfe")

	d, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Info.Tracks[0].Type != trackhandler.IBMPCDD {
		t.Fatalf("got track type %v, want IBMPCDD", d.Info.Tracks[0].Type)
	}

	pattern := make([]byte, d.Info.Tracks[2].Len)
	for i := range pattern {
		pattern[i] = byte(i*13 + 7)
	}
	copy(d.Info.Tracks[2].Dat, pattern)

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	if !bytes.Equal(reopened.Info.Tracks[2].Dat, pattern) {
		t.Fatalf("reopened track 2 data mismatch")
	}
	h := trackhandler.Lookup(trackhandler.IBMPCDD)
	for i := 0; i < h.NrSectors; i++ {
		if !reopened.IsSectorValid(2, i) {
			t.Errorf("sector %d on track 2 not recovered", i)
		}
	}
}

func TestHFEOpenRejectsBadSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hfe")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x55}, 1024), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, true); err == nil {
		t.Fatal("expected Open to reject a file without the HFE signature")
	}
}

func TestBitReverse(t *testing.T) {
	cases := []struct{ in, want byte }{
		{0x00, 0x00},
		{0xFF, 0xFF},
		{0x80, 0x01},
		{0xA5, 0xA5},
		{0xC4, 0x23},
	}
	for _, c := range cases {
		if got := bitReverse(c.in); got != c.want {
			t.Errorf("bitReverse(%#02x) = %#02x, want %#02x", c.in, got, c.want)
		}
	}
}
