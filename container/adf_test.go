package container

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/halvarsson/fluxcore/bits"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestADFIdentity opens a non-filler ADF read-only and closes it again:
// the file must be untouched and every sector of track 0 marked valid.
func TestADFIdentity(t *testing.T) {
	data := make([]byte, adfTotalSize)
	data[0x100] = 0x4E
	path := writeTempFile(t, "disk.adf", data)

	d, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for s := 0; s < adfSectorsPerTrack; s++ {
		if !d.IsSectorValid(0, s) {
			t.Errorf("track 0 sector %d should be valid", s)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(after, data) {
		t.Fatal("read-only open/close modified the file")
	}
}

// TestADFEmptyNDOS opens an all-"NDOS"-filler ADF: no sector anywhere
// may be marked valid.
func TestADFEmptyNDOS(t *testing.T) {
	data := bytes.Repeat([]byte("NDOS"), adfTotalSize/4)
	path := writeTempFile(t, "empty.adf", data)

	d, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	for i := range d.Info.Tracks {
		ti := &d.Info.Tracks[i]
		for s := 0; s < ti.NrSectors; s++ {
			if ti.IsValidSector(s) {
				t.Fatalf("track %d sector %d should be filler, not valid", i, s)
			}
		}
	}
}

// TestADFBadSizeRejected confirms the exact-size check.
func TestADFBadSizeRejected(t *testing.T) {
	path := writeTempFile(t, "short.adf", make([]byte, 12345))
	if _, err := Open(path, true); err == nil {
		t.Fatal("expected Open to reject a wrong-sized ADF")
	}
}

// TestADFRedirectsToEADF opens a file carrying the UAE-1ADF signature
// through the .adf suffix: the disk must end up owned by the eADF
// driver, not the plain ADF one.
func TestADFRedirectsToEADF(t *testing.T) {
	path := writeTempFile(t, "extended.adf", []byte("UAE-1ADF"))

	d, err := Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	dc, ok := d.Container.(driverCloser)
	if !ok {
		t.Fatalf("disk container is %T, want driverCloser", d.Container)
	}
	if dc.driver.Name != "eadf" {
		t.Fatalf("resolved driver = %q, want eadf", dc.driver.Name)
	}
}

// TestIMGOpenHDGeometry checks the 1,474,560-byte size maps to the HD
// track type with a doubled revolution bit count.
func TestIMGOpenHDGeometry(t *testing.T) {
	path := writeTempFile(t, "disk.img", make([]byte, imgNrTracks*512*18))

	d, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	if len(d.Info.Tracks) != imgNrTracks {
		t.Fatalf("got %d tracks, want %d", len(d.Info.Tracks), imgNrTracks)
	}
	for i := range d.Info.Tracks {
		ti := &d.Info.Tracks[i]
		if ti.TypeName != "ibm_pc_hd" {
			t.Fatalf("track %d type = %q, want ibm_pc_hd", i, ti.TypeName)
		}
		if ti.TotalBits != 2*defaultBitsPerTrack {
			t.Fatalf("track %d TotalBits = %d, want %d", i, ti.TotalBits, 2*defaultBitsPerTrack)
		}
	}
}

// TestAmigaChecksumZeroBlock: a 512-byte block of zeros checksums to 0.
func TestAmigaChecksumZeroBlock(t *testing.T) {
	words := make([]uint32, 128)
	if got := bits.AmigaChecksum(words); got != 0 {
		t.Fatalf("AmigaChecksum(zero block) = %#x, want 0", got)
	}
}
