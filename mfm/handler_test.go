package mfm

import (
	"bytes"
	"testing"

	"github.com/halvarsson/fluxcore/stream"
	"github.com/halvarsson/fluxcore/tbuf"
	"github.com/halvarsson/fluxcore/trackhandler"
	"github.com/halvarsson/fluxcore/trackraw"
)

// fakeRawDisk is a minimal trackhandler.RawDisk backed by a single track's
// payload buffer, standing in for *disk.Disk in these package-local tests.
type fakeRawDisk struct {
	dat    []byte
	valid  [36]bool // wide enough for every registered handler's NrSectors
	nrSecs int
}

func newFakeRawDisk(nrSectors, bytesPerSector int) *fakeRawDisk {
	return &fakeRawDisk{dat: make([]byte, nrSectors*bytesPerSector), nrSecs: nrSectors}
}

func (f *fakeRawDisk) TrackLen(tracknr int) int               { return len(f.dat) }
func (f *fakeRawDisk) TrackDat(tracknr int) []byte            { return f.dat }
func (f *fakeRawDisk) SetTrackDat(tracknr int, dat []byte)    { f.dat = dat }
func (f *fakeRawDisk) SetSectorValid(tracknr, sector int)     { f.valid[sector] = true }
func (f *fakeRawDisk) IsSectorValid(tracknr, sector int) bool { return f.valid[sector] }
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
		dat[i] = byte(i*7 + 3)
	}
}

func TestIBMPCWriteReadRoundTrip(t *testing.T) {
	h := trackhandler.Lookup(trackhandler.IBMPCDD)
	if h == nil {
		t.Fatal("IBMPCDD handler not registered")
	}

	src := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	fillPattern(src.dat)

	raw := trackraw.New(200000)
	tb := tbuf.Init(raw, 0)
	h.ReadRaw(src, 3, tb)
	tb.Finalise()

	dst := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	if err := h.WriteRaw(dst, 3, replaySourceFor(raw, 3)); err != nil {
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

func TestIBMPCSiemensISDXRoundTrip(t *testing.T) {
	h := trackhandler.Lookup(trackhandler.IBMPCSiemensISDX)
	if h == nil {
		t.Fatal("IBMPCSiemensISDX handler not registered")
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
	if !bytes.Equal(src.dat, dst.dat) {
		t.Fatalf("decoded data mismatch")
	}
}

func TestAmigaDOSWriteReadRoundTrip(t *testing.T) {
	h := trackhandler.Lookup(trackhandler.AmigaDOS)
	if h == nil {
		t.Fatal("AmigaDOS handler not registered")
	}

	src := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	fillPattern(src.dat)

	raw := trackraw.New(120000)
	tb := tbuf.Init(raw, 0)
	h.ReadRaw(src, 5, tb)
	tb.Finalise()

	dst := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	if err := h.WriteRaw(dst, 5, replaySourceFor(raw, 5)); err != nil {
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

func TestAmigaOddEvenLongRoundTrip(t *testing.T) {
	raw := trackraw.New(4096)
	tb := tbuf.Init(raw, 0)
	want := uint32(0xDEADBEEF)
	writeMFMOddEvenLong(tb, want)

	src := replaySourceFor(raw, 0)
	got, err := readMFMOddEvenLong(src)
	if err != nil {
		t.Fatalf("readMFMOddEvenLong: %v", err)
	}
	if got != want {
		t.Fatalf("round trip = %#08x, want %#08x", got, want)
	}
}

// TestIBMPCFluxRoundTrip drives the full hardware-shaped path: encode
// a track to raw cells, flatten it to flux transition intervals as an
// adapter would write them, then recover the sectors back through the
// PLL-driven PulseSource.
func TestIBMPCFluxRoundTrip(t *testing.T) {
	h := trackhandler.Lookup(trackhandler.IBMPCDD)
	src := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	fillPattern(src.dat)

	raw := trackraw.New(100000)
	tb := tbuf.Init(raw, 0)
	h.ReadRaw(src, 3, tb)
	tb.Finalise()

	nsPerCell := h.Density.NsPerCell()
	intervals := stream.FluxFromTrack(raw, nsPerCell)
	if len(intervals) == 0 {
		t.Fatal("no flux intervals generated")
	}

	dst := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	pulse := stream.NewPulseSource(intervals, nsPerCell)
	if err := h.WriteRaw(dst, 3, pulse); err != nil {
		t.Fatalf("WriteRaw over flux: %v", err)
	}
	if !bytes.Equal(src.dat, dst.dat) {
		t.Fatalf("decoded data mismatch after flux round trip")
	}
}

func TestIBMWriteRawRejectsBadTrack(t *testing.T) {
	h := trackhandler.Lookup(trackhandler.IBMPCDD)
	src := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	fillPattern(src.dat)

	raw := trackraw.New(200000)
	tb := tbuf.Init(raw, 0)
	h.ReadRaw(src, 3, tb) // encoded for track 3
	tb.Finalise()

	dst := newFakeRawDisk(h.NrSectors, h.BytesPerSector)
	err := h.WriteRaw(dst, 4, replaySourceFor(raw, 0)) // decoded as track 4: every header mismatches
	if err == nil {
		t.Fatalf("expected an error decoding track-3 data as track 4")
	}
}
