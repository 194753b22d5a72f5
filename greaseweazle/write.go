package greaseweazle

import (
	"fmt"
	"io"
)

// encodeN28 packs a 28-bit value across 4 bytes, 7 payload bits each,
// bit 0 always set.
func encodeN28(value uint32) []byte {
	return []byte{
		byte(1 | (value&0x7F)<<1),
		byte(1 | (value>>7&0x7F)<<1),
		byte(1 | (value>>14&0x7F)<<1),
		byte(1 | (value>>21&0x7F)<<1),
	}
}

// encodeFluxStream converts flux transition intervals (nanoseconds)
// into the device's byte stream: direct bytes up to 249 ticks, the
// 250-254 extended form up to 1523, and a SPACE opcode beyond that.
// The stream is 0x00-terminated.
func encodeFluxStream(intervals []uint64, tickNs float64) []byte {
	var out []byte
	for _, ns := range intervals {
		ticks := uint32(float64(ns) / tickNs)
		if ticks == 0 {
			ticks = 1
		}
		switch {
		case ticks < 250:
			out = append(out, byte(ticks))
		case ticks < 1524: // base byte stays below the 0xFF escape
			base := byte(0xFA)
			offset := ticks + 1 - 250
			for offset >= 255 {
				base++
				offset -= 255
			}
			out = append(out, base, byte(offset))
		default:
			out = append(out, 0xFF, fluxOpSpace)
			out = append(out, encodeN28(ticks-249)...)
			out = append(out, 249)
		}
	}
	return append(out, 0x00)
}

// writeFluxStream sends WRITE_FLUX (cued on and terminated at the
// index pulse) followed by the encoded stream, and waits for the
// device's completion byte.
func (c *Client) writeFluxStream(fluxData []byte) error {
	if err := c.doCommand([]byte{cmdWriteFlux, 4, 1, 1}); err != nil {
		return fmt.Errorf("failed to send WRITE_FLUX command: %w", err)
	}
	if _, err := c.port.Write(fluxData); err != nil {
		return fmt.Errorf("failed to write flux data: %w", err)
	}

	syncByte := make([]byte, 1)
	if _, err := io.ReadFull(c.port, syncByte); err != nil {
		return fmt.Errorf("failed to read write synchronization byte: %w", err)
	}
	if syncByte[0] != 0 {
		return fmt.Errorf("write operation failed with status byte 0x%02x", syncByte[0])
	}
	return c.getFluxStatus()
}

// WriteTrackFlux writes one revolution of flux transition intervals
// (nanoseconds) to the physical track.
func (c *Client) WriteTrackFlux(tracknr int, intervals []uint64) error {
	if err := c.position(tracknr); err != nil {
		return err
	}
	return c.writeFluxStream(encodeFluxStream(intervals, c.tickNs()))
}
