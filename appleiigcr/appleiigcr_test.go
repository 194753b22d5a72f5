package appleiigcr

import (
	"bytes"
	"testing"

	"github.com/halvarsson/fluxcore/bits"
	"github.com/halvarsson/fluxcore/stream"
	"github.com/halvarsson/fluxcore/tbuf"
	"github.com/halvarsson/fluxcore/trackhandler"
	"github.com/halvarsson/fluxcore/trackraw"
)

// fakeRawDisk is a minimal trackhandler.RawDisk backed by a single track's
// payload buffer, standing in for *disk.Disk in these package-local tests.
type fakeRawDisk struct {
	dat   []byte
	valid [16]bool
}

func newFakeRawDisk(nrSectors, bytesPerSector int) *fakeRawDisk {
	return &fakeRawDisk{dat: make([]byte, nrSectors*bytesPerSector)}
}

func (f *fakeRawDisk) TrackLen(tracknr int) int            { return len(f.dat) }
func (f *fakeRawDisk) TrackDat(tracknr int) []byte         { return f.dat }
func (f *fakeRawDisk) SetTrackDat(tracknr int, dat []byte) { f.dat = dat }
func (f *fakeRawDisk) SetSectorValid(tracknr, sector int)  { f.valid[sector] = true }
func (f *fakeRawDisk) IsSectorValid(tracknr, sector int) bool {
	return f.valid[sector]
}
func (f *fakeRawDisk) SetAllSectorsInvalid(tracknr int) {
	for i := range f.valid {
		f.valid[i] = false
	}
}

type rawSource struct{ raw *trackraw.TrackRaw }

func (r rawSource) MaterializeTrack(tracknr int) (*trackraw.TrackRaw, error) { return r.raw, nil }

func replaySourceFor(raw *trackraw.TrackRaw, tracknr int) stream.Source {
	src := stream.NewImageReplaySource(rawSource{raw})
	src.SetDensity(1000)
	if err := src.SelectTrack(tracknr); err != nil {
		panic(err)
	}
	return src
}

func fillPattern(dat []byte) {
	for i := range dat {
		dat[i] = byte(i*11 + 5)
	}
}

func TestAppleII16SectorWriteReadRoundTrip(t *testing.T) {
	h := trackhandler.Lookup(trackhandler.AppleII16Sector)
	if h == nil {
		t.Fatal("AppleII16Sector handler not registered")
	}

	src := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	fillPattern(src.dat)

	raw := trackraw.New(400000)
	tb := tbuf.Init(raw, 0)
	h.ReadRaw(src, 0, tb)
	tb.Finalise()

	dst := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	if err := h.WriteRaw(dst, 0, replaySourceFor(raw, 0)); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}

	for i := 0; i < h.NrSectors; i++ {
		if !dst.valid[i] {
			t.Errorf("sector %d not recovered", i)
		}
	}
	if !bytes.Equal(src.dat, dst.dat) {
		t.Fatalf("decoded data mismatch")
	}
}

func TestAppleII13SectorIsHonestlyNotImplemented(t *testing.T) {
	h := trackhandler.Lookup(trackhandler.AppleII13Sector)
	if h == nil {
		t.Fatal("AppleII13Sector handler not registered")
	}
	if h.ReadRaw != nil {
		t.Fatal("AppleII13Sector.ReadRaw should be nil: no 5-and-3 encoder exists")
	}

	raw := trackraw.New(400000)
	err := h.WriteRaw(newFakeRawDisk(h.NrSectors, h.BytesPerSector), 0, replaySourceFor(raw, 0))
	if err == nil {
		t.Fatal("expected AppleII13Sector.WriteRaw to report not-implemented")
	}
}

func TestDecode62EncodeRoundTrip(t *testing.T) {
	var payload [256]byte
	fillPattern(payload[:])

	// encode62 returns the pre-disk-encoding (6-bit-value, XOR-chained)
	// byte sequence; readRaw maps each of those through GCR6Encode to
	// get the on-disk byte, which is what decode62 expects as input
	// (it looks values up through GCR6Table, the inverse map).
	decoded, finalXOR := encode62(payload, format16.dataRawLength)
	raw := make([]byte, len(decoded))
	for i, v := range decoded {
		raw[i] = bits.GCR6Encode(v & 0x3F)
	}

	got, checksum := decode62(raw)
	if got != payload {
		t.Fatalf("decode62(encode62(payload)) mismatch")
	}
	if checksum != finalXOR {
		t.Fatalf("checksum = %#02x, want %#02x", checksum, finalXOR)
	}
}
