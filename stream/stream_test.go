package stream_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/halvarsson/fluxcore/stream"
	"github.com/halvarsson/fluxcore/trackraw"
)

// sampleByte is a value v (>= 0x0E) that encodes as the KryoFlux one-byte sample
// opcode: the flux interval in nanoseconds is v*sckPsPerTick/1000. v=24
// lands on exactly 998ns with the sampler's fixed MCK/SCK/ICK ratios,
// which is the nsPerCell used below so every sample resolves to a
// clean transition with no clock adjustment.
const sampleByte = 0x18
const nsPerSample = 998

func TestCaptureSourceOneByteSampleOpcode(t *testing.T) {
	data := []byte{sampleByte, sampleByte, sampleByte}
	c := stream.NewCaptureSource(data, nsPerSample, stream.Fixed)

	for i := 0; i < 3; i++ {
		if bit := c.NextBit(); bit != 1 {
			t.Fatalf("sample %d: NextBit() = %d, want 1", i, bit)
		}
	}
	if bit := c.NextBit(); bit != stream.EOS {
		t.Fatalf("NextBit() after exhausting data = %d, want EOS", bit)
	}
}

func TestCaptureSourceTwoByteSampleOpcode(t *testing.T) {
	// v<=0x07 introduces a two-byte sample: acc = (v<<8)+next, same 24
	// total as the one-byte case above via v=0, next=0x18.
	data := []byte{0x00, sampleByte}
	c := stream.NewCaptureSource(data, nsPerSample, stream.Fixed)

	if bit := c.NextBit(); bit != 1 {
		t.Fatalf("NextBit() = %d, want 1", bit)
	}
}

func TestCaptureSourceNopOpcodeSkipped(t *testing.T) {
	// 0x08 is a one-byte NOP: it advances the stream index without
	// contributing flux, then the real sample follows.
	data := []byte{0x08, sampleByte}
	c := stream.NewCaptureSource(data, nsPerSample, stream.Fixed)

	if bit := c.NextBit(); bit != 1 {
		t.Fatalf("NextBit() = %d, want 1", bit)
	}
}

func TestCaptureSourceOOBStreamPositionMismatchPanics(t *testing.T) {
	// An OOB StreamRead/StreamEnd record asserts its recorded stream
	// position against the parser's own running streamIdx; a mismatch
	// is capture-file corruption and fatal.
	data := []byte{
		0x0D,       // OOB marker
		0x01,       // oobStreamRead
		0x04, 0x00, // size = 4 (the trailing position field only)
		0xE7, 0x03, 0x00, 0x00, // position = 999, little-endian uint32
	}
	c := stream.NewCaptureSource(data, nsPerSample, stream.Fixed)

	defer func() {
		if recover() == nil {
			t.Fatal("expected NextBit to panic on an out-of-sync OOB record")
		}
	}()
	c.NextBit()
}

// TestDecodeRawFluxOverflowAndIndex feeds two 0x500-tick two-byte
// samples bracketing an overflow-16 opcode, followed by an index OOB
// record scheduling a revolution marker at stream position 0x40: the
// overflow must fold into the interval of the sample that terminates
// it, not stand alone.
func TestDecodeRawFluxOverflowAndIndex(t *testing.T) {
	data := []byte{
		0x05, 0x00, // two-byte sample: 0x500 ticks
		0x0B,       // overflow-16: +0x10000 into the running accumulator
		0x05, 0x00, // two-byte sample: accumulator total 0x10500
		0x0D, 0x02, 0x00, 0x00, // OOB index record, size 0
		0x40, 0x00, 0x00, 0x00, // index at stream position 0x40
	}
	ticks, indexEvents, err := stream.DecodeRawFlux(data)
	if err != nil {
		t.Fatalf("DecodeRawFlux: %v", err)
	}
	want := []uint64{0x500, 0x10500}
	if len(ticks) != len(want) {
		t.Fatalf("got %d flux intervals (%v), want %d", len(ticks), ticks, len(want))
	}
	for i, w := range want {
		if ticks[i] != w {
			t.Errorf("interval %d = %#x ticks, want %#x", i, ticks[i], w)
		}
	}
	if len(indexEvents) != 1 || indexEvents[0].StreamPosition != 0x40 {
		t.Fatalf("indexEvents = %+v, want one event at stream position 0x40", indexEvents)
	}
}

func TestDecodeRawFluxOutOfSyncOOBErrors(t *testing.T) {
	data := []byte{
		0x0D, 0x01, 0x04, 0x00, // OOB stream-read, size 4
		0xE7, 0x03, 0x00, 0x00, // position 999: stream index is actually 0
	}
	if _, _, err := stream.DecodeRawFlux(data); err == nil {
		t.Fatal("expected an error for an out-of-sync stream-read record")
	}
}

func TestCaptureSourceSelectTrackUnsupported(t *testing.T) {
	c := stream.NewCaptureSource(nil, nsPerSample, stream.Fixed)
	if err := c.SelectTrack(0); err == nil {
		t.Fatal("expected SelectTrack to report it is unsupported for a capture source")
	}
}

func TestOpenCaptureProbesBothLayouts(t *testing.T) {
	// Flat layout: <name>00.0.raw beside the basename.
	dir := t.TempDir()
	flat := filepath.Join(dir, "dump")
	if err := os.WriteFile(flat+"00.0.raw", []byte{sampleByte}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.OpenCapture(flat, nsPerSample, stream.Fixed); err != nil {
		t.Fatalf("OpenCapture(flat layout): %v", err)
	}

	// Directory layout: <name>/00.0.raw.
	sub := filepath.Join(dir, "capture")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "00.0.raw"), []byte{sampleByte}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.OpenCapture(sub, nsPerSample, stream.Fixed); err != nil {
		t.Fatalf("OpenCapture(directory layout): %v", err)
	}

	// Neither layout present.
	if _, err := stream.OpenCapture(filepath.Join(dir, "missing"), nsPerSample, stream.Fixed); err == nil {
		t.Fatal("expected OpenCapture to fail when no capture file exists")
	}
}

func TestFileCaptureSourceSelectTrackNaming(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "dump")
	// Track 0 = cylinder 00 head 0; track 3 = cylinder 01 head 1.
	if err := os.WriteFile(base+"00.0.raw", []byte{sampleByte}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(base+"01.1.raw", []byte{sampleByte, sampleByte}, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := stream.OpenCapture(base, nsPerSample, stream.Fixed)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	if err := src.SelectTrack(3); err != nil {
		t.Fatalf("SelectTrack(3): %v", err)
	}
	if bit := src.NextBit(); bit != 1 {
		t.Fatalf("NextBit() on track 3 = %d, want 1", bit)
	}
	if err := src.SelectTrack(5); err == nil {
		t.Fatal("expected SelectTrack(5) to fail: no 02.1.raw capture file")
	}
}

// rawMaterializer is a stream.TrackMaterializer over one fixed raw
// buffer, regardless of which track number is requested.
type rawMaterializer struct {
	raw *trackraw.TrackRaw
	err error
}

func (m rawMaterializer) MaterializeTrack(tracknr int) (*trackraw.TrackRaw, error) {
	return m.raw, m.err
}

func TestImageReplaySourceWrapsAndRecordsWord(t *testing.T) {
	raw := trackraw.New(4)
	raw.SetBit(0, 1)
	raw.SetBit(1, 0)
	raw.SetBit(2, 1)
	raw.SetBit(3, 1)
	for i := range raw.Speed {
		raw.Speed[i] = 1000
	}

	src := stream.NewImageReplaySource(rawMaterializer{raw: raw})
	src.SetDensity(1000)
	if err := src.SelectTrack(0); err != nil {
		t.Fatalf("SelectTrack: %v", err)
	}

	var got []int
	for i := 0; i < 6; i++ {
		got = append(got, src.NextBit())
	}
	want := []int{1, 0, 1, 1, 1, 0} // wraps back to the start of the track
	for i, b := range want {
		if got[i] != b {
			t.Fatalf("bit %d = %d, want %d (full sequence %v)", i, got[i], b, got)
		}
	}

	if src.Word()&0xF != 0b1110 {
		t.Fatalf("Word() low nibble = %04b, want 1110", src.Word()&0xF)
	}
	if src.Latency() == 0 {
		t.Fatal("Latency() should accumulate as bits are read")
	}
}

func TestImageReplaySourceSelectTrackCaches(t *testing.T) {
	raw := trackraw.New(4)
	for i := range raw.Speed {
		raw.Speed[i] = 1000
	}
	calls := 0
	src := stream.NewImageReplaySource(countingMaterializer{raw: raw, calls: &calls})
	src.SetDensity(1000)

	if err := src.SelectTrack(2); err != nil {
		t.Fatalf("SelectTrack: %v", err)
	}
	if err := src.SelectTrack(2); err != nil {
		t.Fatalf("SelectTrack (cached): %v", err)
	}
	if calls != 1 {
		t.Fatalf("MaterializeTrack called %d times, want 1 (second SelectTrack should hit the cache)", calls)
	}

	if err := src.SelectTrack(3); err != nil {
		t.Fatalf("SelectTrack(3): %v", err)
	}
	if calls != 2 {
		t.Fatalf("MaterializeTrack called %d times after switching tracks, want 2", calls)
	}
}

type countingMaterializer struct {
	raw   *trackraw.TrackRaw
	calls *int
}

func (m countingMaterializer) MaterializeTrack(tracknr int) (*trackraw.TrackRaw, error) {
	*m.calls++
	return m.raw, nil
}

func TestImageReplaySourceUnformattedTrackErrors(t *testing.T) {
	src := stream.NewImageReplaySource(rawMaterializer{raw: nil, err: errors.New("boom")})
	src.SetDensity(1000)
	if err := src.SelectTrack(0); err == nil {
		t.Fatal("expected an error selecting a track whose materializer fails")
	}
}

func TestImageReplaySourceNextBitOnEmptySourceIsEOS(t *testing.T) {
	src := stream.NewImageReplaySource(rawMaterializer{raw: nil})
	if bit := src.NextBit(); bit != stream.EOS {
		t.Fatalf("NextBit() on a never-selected source = %d, want EOS", bit)
	}
}
