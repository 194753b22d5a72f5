package stream

import (
	"fmt"

	"github.com/halvarsson/fluxcore/pll"
	"github.com/halvarsson/fluxcore/trackraw"
)

// PulseSource adapts a flat sequence of flux transition intervals
// (nanoseconds between transitions, as a hardware adapter delivers
// them) into a bit Source, recovering the bitcell clock with the
// software PLL. It is how live captures from the hardware clients
// reach the track decoders.
type PulseSource struct {
	base

	intervals []uint64
	idx       int
	pll       pll.State
	nsPerCell int
}

// NewPulseSource builds a PulseSource over intervals with the PLL
// centred on nsPerCell.
func NewPulseSource(intervals []uint64, nsPerCell int) *PulseSource {
	p := &PulseSource{intervals: intervals}
	p.SetDensity(nsPerCell)
	return p
}

func (p *PulseSource) SelectTrack(tracknr int) error {
	return fmt.Errorf("stream: PulseSource holds one track's capture; read the device again for another track")
}

func (p *PulseSource) Reset() {
	p.idx = 0
	p.pll.Flux = 0
	p.pll.ClockedZeros = 0
	p.pll.Clock = p.pll.ClockCentre
}

func (p *PulseSource) SetDensity(nsPerCell int) {
	p.nsPerCell = nsPerCell
	p.pll.Clock = float64(nsPerCell)
	p.pll.ClockCentre = float64(nsPerCell)
}

func (p *PulseSource) Close() error { return nil }

// NextFlux implements pll.FluxSource over the interval slice.
func (p *PulseSource) NextFlux() uint64 {
	if p.idx >= len(p.intervals) {
		return 0
	}
	ns := p.intervals[p.idx]
	p.idx++
	if ns == 0 {
		ns = 1
	}
	return ns
}

func (p *PulseSource) NextBit() int {
	if p.idx >= len(p.intervals) && p.pll.Flux < p.pll.Clock/2 {
		return EOS
	}
	bit := 0
	if pll.NextBit(&p.pll, p) {
		bit = 1
	}
	p.latency += uint64(p.pll.Clock)
	p.indexOffset++
	p.recordBit(bit)
	return bit
}

func (p *PulseSource) NextBits(k int) (uint32, error) {
	return nextBitsFrom(p.NextBit, k)
}

func (p *PulseSource) NextBytes(dst []byte) error {
	return nextBytesFrom(p.NextBits, dst)
}

// FluxFromTrack converts a raw track's bit-cells into flux transition
// intervals (nanoseconds): each 1 cell closes an interval, each 0 cell
// extends it by one cell period scaled by the cell's speed. The
// inverse of what PulseSource's PLL recovers; hardware adapters take
// this straight to the drive.
func FluxFromTrack(raw *trackraw.TrackRaw, nsPerCell int) []uint64 {
	var intervals []uint64
	acc := uint64(0)
	for pos := 0; pos < raw.BitLen(); pos++ {
		acc += uint64(nsPerCell) * uint64(raw.Speed[pos]) / 1000
		if raw.GetBit(pos) != 0 {
			intervals = append(intervals, acc)
			acc = 0
		}
	}
	return intervals
}
