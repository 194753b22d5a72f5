package stream

import (
	"fmt"

	"github.com/halvarsson/fluxcore/trackraw"
)

// TrackMaterializer lazily produces the raw-bit representation of a
// track; *disk.Disk implements this by invoking the track's handler.
type TrackMaterializer interface {
	MaterializeTrack(tracknr int) (*trackraw.TrackRaw, error)
}

// ImageReplaySource wraps an already-decoded disk image and yields bits
// from each track's synthesized raw buffer, as if a drive were reading
// it. Selecting a track materializes it (via the owning handler's
// ReadRaw) on first use and caches the result.
type ImageReplaySource struct {
	base

	disk TrackMaterializer

	tracknr   int
	raw       *trackraw.TrackRaw
	pos       int
	nsPerCell int
}

// NewImageReplaySource creates a replay source over disk, not yet
// positioned on any track.
func NewImageReplaySource(disk TrackMaterializer) *ImageReplaySource {
	return &ImageReplaySource{disk: disk, tracknr: -1}
}

func (r *ImageReplaySource) SelectTrack(tracknr int) error {
	if r.tracknr == tracknr && r.raw != nil {
		return nil
	}
	return r.materialize(tracknr)
}

func (r *ImageReplaySource) materialize(tracknr int) error {
	raw, err := r.disk.MaterializeTrack(tracknr)
	if err != nil {
		return fmt.Errorf("stream: materialize track %d: %w", tracknr, err)
	}
	if raw == nil || raw.BitLen() == 0 {
		return fmt.Errorf("stream: track %d is unformatted", tracknr)
	}
	r.tracknr = tracknr
	r.raw = raw
	r.pos = 0
	return nil
}

// Reset rewinds to the start of the current track. Weak tracks are
// re-materialized by re-running the handler's ReadRaw. Every Tbuf that
// tbuf.Init creates starts tbuf.Weak from the same fixed seed, so a
// materializer that does not call SeedWeak produces the same weak cells
// on each revolution; the cells do not vary between reads.
func (r *ImageReplaySource) Reset() {
	if r.raw != nil && r.raw.HasWeakBits {
		_ = r.materialize(r.tracknr)
		return
	}
	r.pos = 0
}

func (r *ImageReplaySource) SetDensity(nsPerCell int) {
	r.nsPerCell = nsPerCell
}

func (r *ImageReplaySource) Close() error { return nil }

func (r *ImageReplaySource) NextBit() int {
	if r.raw == nil {
		return EOS
	}
	bitlen := r.raw.BitLen()
	bit := r.raw.GetBit(r.pos)
	speed := r.raw.Speed[r.pos]
	ns := uint64(r.nsPerCell) * uint64(speed) / 1000
	r.latency += ns
	r.pos++
	if r.pos >= bitlen {
		if r.raw.HasWeakBits {
			_ = r.materialize(r.tracknr)
		} else {
			r.pos = 0
		}
		r.indexOffset = 0
	} else {
		r.indexOffset++
	}
	r.recordBit(bit)
	return bit
}

func (r *ImageReplaySource) NextBits(k int) (uint32, error) {
	return nextBitsFrom(r.NextBit, k)
}

func (r *ImageReplaySource) NextBytes(dst []byte) error {
	return nextBytesFrom(r.NextBits, dst)
}
