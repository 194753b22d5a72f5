package greaseweazle

import (
	"encoding/binary"
	"fmt"
	"io"
)

// decodeN28 unpacks a 28-bit value spread over 4 bytes (7 payload bits
// each, bit 0 always set).
func decodeN28(data []byte, offset int) (uint32, int, error) {
	if offset+4 > len(data) {
		return 0, 0, fmt.Errorf("greaseweazle: truncated N28 value at offset %d", offset)
	}
	value := (uint32(data[offset])&0xfe)>>1 |
		(uint32(data[offset+1])&0xfe)<<6 |
		(uint32(data[offset+2])&0xfe)<<13 |
		(uint32(data[offset+3])&0xfe)<<20
	return value, 4, nil
}

// readFluxStream issues READ_FLUX and drains the device's byte stream
// up to its 0x00 terminator.
func (c *Client) readFluxStream(ticks uint32, maxIndex uint16) ([]byte, error) {
	cmd := make([]byte, 8)
	cmd[0] = cmdReadFlux
	cmd[1] = 8
	binary.LittleEndian.PutUint32(cmd[2:6], ticks)
	binary.LittleEndian.PutUint16(cmd[6:8], maxIndex)
	if err := c.doCommand(cmd); err != nil {
		return nil, fmt.Errorf("failed to send READ_FLUX command: %w", err)
	}

	var data []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(c.port, buf); err != nil {
			return nil, fmt.Errorf("failed to read flux data: %w", err)
		}
		if buf[0] == 0 {
			return data, nil
		}
		data = append(data, buf[0])
	}
}

// decodeFluxStream converts the device byte stream into flux
// transition intervals in nanoseconds. Index markers carry no flux and
// are skipped; SPACE opcodes extend the pending interval.
func decodeFluxStream(data []byte, tickNs float64) ([]uint64, error) {
	var intervals []uint64
	pendingTicks := uint64(0)

	i := 0
	for i < len(data) {
		b := data[i]
		switch {
		case b == 0xFF:
			if i+1 >= len(data) {
				return nil, fmt.Errorf("greaseweazle: truncated opcode at offset %d", i)
			}
			op := data[i+1]
			i += 2
			switch op {
			case fluxOpIndex:
				_, consumed, err := decodeN28(data, i)
				if err != nil {
					return nil, err
				}
				i += consumed
			case fluxOpSpace:
				n28, consumed, err := decodeN28(data, i)
				if err != nil {
					return nil, err
				}
				i += consumed
				pendingTicks += uint64(n28)
			default:
				return nil, fmt.Errorf("greaseweazle: unknown opcode 0x%02x at offset %d", op, i-1)
			}
		case b < 250:
			// Direct interval: 1-249 ticks.
			pendingTicks += uint64(b)
			intervals = append(intervals, uint64(float64(pendingTicks)*tickNs))
			pendingTicks = 0
			i++
		default:
			// Extended interval: base byte 250-254 plus offset byte.
			if i+1 >= len(data) {
				return nil, fmt.Errorf("greaseweazle: truncated extended interval at offset %d", i)
			}
			pendingTicks += 250 + uint64(b-250)*255 + uint64(data[i+1]) - 1
			intervals = append(intervals, uint64(float64(pendingTicks)*tickNs))
			pendingTicks = 0
			i += 2
		}
	}
	return intervals, nil
}

// ReadTrackFlux captures revs revolutions from the physical track and
// returns the flux transition intervals in nanoseconds.
func (c *Client) ReadTrackFlux(tracknr, revs int) ([]uint64, error) {
	if err := c.position(tracknr); err != nil {
		return nil, err
	}
	// One extra index pulse bounds the requested revolutions.
	data, err := c.readFluxStream(0, uint16(revs+1))
	if err != nil {
		return nil, err
	}
	if err := c.getFluxStatus(); err != nil {
		return nil, fmt.Errorf("flux status error on track %d: %w", tracknr, err)
	}
	return decodeFluxStream(data, c.tickNs())
}
