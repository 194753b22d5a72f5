package supercardpro

import (
	"encoding/binary"
	"fmt"
	"io"
)

// fluxInfo describes one captured revolution: its duration and sample
// count, both as the device reports them.
type fluxInfo struct {
	indexTime  uint32 // duration of the revolution, 25ns units
	nrBitcells uint32
}

// decodeSCPFlux converts the device's 16-bit big-endian samples into
// flux transition intervals in nanoseconds. A zero sample is a 64K
// overflow folded into the next interval. maxNs bounds how much of the
// capture buffer is meaningful.
func decodeSCPFlux(data []byte, maxNs uint64) []uint64 {
	var intervals []uint64
	pending := uint64(0)
	consumed := uint64(0)
	for off := 0; off+2 <= len(data); off += 2 {
		v := binary.BigEndian.Uint16(data[off : off+2])
		if v == 0 {
			pending += 0x10000 * scpTickNs
			continue
		}
		pending += uint64(v) * scpTickNs
		consumed += pending
		if maxNs > 0 && consumed > maxNs {
			break
		}
		intervals = append(intervals, pending)
		pending = 0
	}
	return intervals
}

// ReadTrackFlux captures revs revolutions from the physical track and
// returns the flux transition intervals in nanoseconds.
func (c *Client) ReadTrackFlux(tracknr, revs int) ([]uint64, error) {
	if err := c.position(tracknr); err != nil {
		return nil, err
	}
	if revs < 1 {
		revs = 1
	}
	if revs > 5 {
		revs = 5 // the device records at most 5 revolutions of info
	}

	// READFLUX captures into device RAM, cued on the index pulse.
	if err := c.scpSend(scpCmdReadFlux, []byte{byte(revs), 1}, nil); err != nil {
		return nil, fmt.Errorf("failed to send READFLUX command: %w", err)
	}

	// GETFLUXINFO reports 5 revolutions' index time and bitcell count.
	if err := c.scpSend(scpCmdGetFluxInfo, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to send GETFLUXINFO command: %w", err)
	}
	infoData := make([]byte, 40)
	if _, err := io.ReadFull(c.port, infoData); err != nil {
		return nil, fmt.Errorf("failed to read flux info: %w", err)
	}
	var info [5]fluxInfo
	for i := range info {
		info[i].indexTime = binary.BigEndian.Uint32(infoData[i*8:])
		info[i].nrBitcells = binary.BigEndian.Uint32(infoData[i*8+4:])
	}

	// Pull the raw capture buffer back over USB.
	ramCmd := make([]byte, 8)
	binary.BigEndian.PutUint32(ramCmd[0:4], 0)
	binary.BigEndian.PutUint32(ramCmd[4:8], ramBufferSize)
	raw := make([]byte, ramBufferSize)
	if err := c.scpSend(scpCmdSendRAMUSB, ramCmd, raw); err != nil {
		return nil, fmt.Errorf("failed to read flux data: %w", err)
	}

	var capturedNs uint64
	for i := 0; i < revs; i++ {
		capturedNs += uint64(info[i].indexTime) * scpTickNs
	}
	intervals := decodeSCPFlux(raw, capturedNs)
	if len(intervals) == 0 {
		return nil, fmt.Errorf("no flux transitions captured on track %d", tracknr)
	}
	return intervals, nil
}
