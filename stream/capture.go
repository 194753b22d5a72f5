package stream

import (
	"fmt"
)

// Sampler constants. MCK/SCK/ICK are the KryoFlux master, sample, and
// index clocks; sckPsPerTick converts one sample-clock tick to
// picoseconds.
const (
	mckFreq      = (18_432_000 * 73 / 14) / 2
	sckFreq      = mckFreq / 2
	ickFreq      = mckFreq / 16
	sckPsPerTick = 1_000_000_000 / (sckFreq / 1000)
)

// TicksToNanoseconds converts a flux interval measured in sample-clock
// ticks (as DecodeRawFlux reports them) to nanoseconds.
func TicksToNanoseconds(ticks uint64) uint64 {
	return ticks * uint64(sckPsPerTick) / 1000
}

// oobType enumerates the out-of-band record subtypes understood by the
// capture grammar.
const (
	oobStreamRead = 0x01
	oobIndex      = 0x02
	oobStreamEnd  = 0x03
)

// CaptureSource parses a hardware-sampler flux-transition byte stream
// (the KryoFlux STREAM opcode grammar) and recovers bit-cells from it
// with a software PLL.
type CaptureSource struct {
	base

	data []byte
	pos  int // byte offset into data

	streamIdx int64
	indexPos  int64 // next scheduled index position, or -1 if none pending

	clock        float64 // current PLL clock, nanoseconds
	clockCentre  float64
	flux         float64
	clockedZeros int
}

// NewCaptureSource builds a CaptureSource over an already-read capture
// buffer for one track, with the PLL centred on nsPerCell.
func NewCaptureSource(data []byte, nsPerCell int, mode PLLMode) *CaptureSource {
	c := &CaptureSource{
		data:        data,
		indexPos:    -1,
		clockCentre: float64(nsPerCell),
		clock:       float64(nsPerCell),
	}
	c.mode = mode
	return c
}

func (c *CaptureSource) SelectTrack(tracknr int) error {
	return fmt.Errorf("stream: CaptureSource.SelectTrack requires re-opening a new track's capture file")
}

func (c *CaptureSource) Reset() {
	c.pos = 0
	c.streamIdx = 0
	c.flux = 0
	c.clockedZeros = 0
	c.indexPos = -1
	c.clock = c.clockCentre
}

func (c *CaptureSource) SetDensity(nsPerCell int) {
	c.clockCentre = float64(nsPerCell)
	c.clock = float64(nsPerCell)
}

func (c *CaptureSource) Close() error { return nil }

func (c *CaptureSource) NextBits(k int) (uint32, error) {
	return nextBitsFrom(c.NextBit, k)
}

func (c *CaptureSource) NextBytes(dst []byte) error {
	return nextBytesFrom(c.NextBits, dst)
}

// readU16/readU32 read little-endian values from the OOB payload.
func readU16(b []byte) uint32 { return uint32(b[0]) | uint32(b[1])<<8 }
func readU32(b []byte) uint32 { return readU16(b[0:2]) | readU16(b[2:4])<<16 }

// nextFlux pulls one flux interval (in nanoseconds) from the opcode
// stream, returning ok=false at end of stream. It also services index
// out-of-band records, invoking indexReset when the recorded index
// position is reached. Overflow-16 opcodes accumulate into the same
// interval as the sample that eventually terminates the loop.
func (c *CaptureSource) nextFlux() (ns uint64, ok bool) {
	if c.indexPos >= 0 && c.streamIdx >= c.indexPos {
		c.indexPos = -1
		c.indexReset()
	}

	var acc uint32
	for c.pos < len(c.data) {
		v := c.data[c.pos]
		switch {
		case v <= 0x07:
			if c.pos+1 >= len(c.data) {
				return 0, false
			}
			acc += (uint32(v) << 8) + uint32(c.data[c.pos+1])
			c.pos += 2
			c.streamIdx += 2
			return uint64(acc) * uint64(sckPsPerTick) / 1000, true
		case v == 0x08:
			c.pos++
			c.streamIdx++
		case v == 0x09:
			c.pos += 2
			c.streamIdx += 2
		case v == 0x0A:
			c.pos += 3
			c.streamIdx += 3
		case v == 0x0B:
			acc += 0x10000
			c.pos++
			c.streamIdx++
		case v == 0x0C:
			c.pos++
			c.streamIdx++
			if c.pos+1 >= len(c.data) {
				return 0, false
			}
			acc += (uint32(c.data[c.pos]) << 8) + uint32(c.data[c.pos+1])
			c.pos += 2
			c.streamIdx += 2
			return uint64(acc) * uint64(sckPsPerTick) / 1000, true
		case v == 0x0D:
			if c.pos+4 > len(c.data) {
				return 0, false
			}
			subtype := c.data[c.pos+1]
			size := int(readU16(c.data[c.pos+2 : c.pos+4]))
			payload := c.data[c.pos+4:]
			if len(payload) < 4 {
				return 0, false
			}
			position := int64(readU32(payload[0:4]))
			switch subtype {
			case oobStreamRead, oobStreamEnd:
				if position != c.streamIdx {
					panic(fmt.Sprintf("stream: out-of-sync during track read: oob pos %d != stream idx %d", position, c.streamIdx))
				}
			case oobIndex:
				c.indexPos = position
			}
			// The 4-byte position field is always present even when the
			// record's size field claims less.
			if size < 4 {
				size = 4
			}
			c.pos += 4 + size
		default: // one-byte sample
			acc += uint32(v)
			c.pos++
			c.streamIdx++
			return uint64(acc) * uint64(sckPsPerTick) / 1000, true
		}
	}
	return 0, false
}

// NextBit decodes and returns the next bit-cell using the embedded
// software PLL.
func (c *CaptureSource) NextBit() int {
	for c.flux < c.clock/2 {
		ns, ok := c.nextFlux()
		if !ok {
			return EOS
		}
		c.flux += float64(ns)
	}

	c.latency += uint64(c.clock)
	c.flux -= c.clock

	if c.flux >= c.clock/2 {
		c.clockedZeros++
		c.indexOffset++
		c.recordBit(0)
		return 0
	}

	if c.mode != Fixed {
		if c.clockedZeros >= 1 && c.clockedZeros <= 3 {
			c.clock += (c.flux / float64(c.clockedZeros+1)) / 10
		} else {
			c.clock += (c.clockCentre - c.clock) / 10
		}
		min := c.clockCentre * 0.9
		max := c.clockCentre * 1.1
		if c.clock < min {
			c.clock = min
		}
		if c.clock > max {
			c.clock = max
		}
	} else {
		c.clock = c.clockCentre
	}

	var newFlux float64
	if c.mode == Authentic {
		newFlux = c.flux / 2
	}
	c.latency += uint64(c.flux - newFlux)
	c.flux = newFlux

	c.clockedZeros = 0
	c.indexOffset++
	c.recordBit(1)
	return 1
}
