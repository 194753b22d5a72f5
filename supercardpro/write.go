package supercardpro

import (
	"encoding/binary"
	"fmt"
	"io"
)

// encodeSCPFlux converts flux transition intervals (nanoseconds) into
// the device's 16-bit big-endian sample stream: a zero sample carries
// a 64K overflow into the next value.
func encodeSCPFlux(intervals []uint64) []byte {
	var out []byte
	for _, ns := range intervals {
		ticks := uint32(ns / scpTickNs)
		for ticks >= 0x10000 {
			out = append(out, 0x00, 0x00)
			ticks -= 0x10000
		}
		if ticks == 0 {
			ticks = 1 // zero would read back as an overflow marker
		}
		var sample [2]byte
		binary.BigEndian.PutUint16(sample[:], uint16(ticks))
		out = append(out, sample[:]...)
	}
	return out
}

// loadRAM streams fluxData into the device's capture buffer at offset
// 0: the LOADRAM_USB packet carries offset and length, the payload
// follows immediately.
func (c *Client) loadRAM(fluxData []byte) error {
	ramCmd := make([]byte, 8)
	binary.BigEndian.PutUint32(ramCmd[0:4], 0)
	binary.BigEndian.PutUint32(ramCmd[4:8], uint32(len(fluxData)))

	packet := make([]byte, 0, 3+len(ramCmd))
	packet = append(packet, scpCmdLoadRAMUSB, byte(len(ramCmd)))
	packet = append(packet, ramCmd...)
	checksum := byte(0x4a)
	for _, b := range packet {
		checksum += b
	}
	packet = append(packet, checksum)

	if _, err := c.port.Write(packet); err != nil {
		return fmt.Errorf("failed to write LOADRAM_USB command: %w", err)
	}
	if _, err := c.port.Write(fluxData); err != nil {
		return fmt.Errorf("failed to stream flux data: %w", err)
	}

	response := make([]byte, 2)
	if _, err := io.ReadFull(c.port, response); err != nil {
		return fmt.Errorf("failed to read LOADRAM_USB response: %w", err)
	}
	if response[0] != scpCmdLoadRAMUSB {
		return fmt.Errorf("command echo mismatch: sent 0x%02x, received 0x%02x", scpCmdLoadRAMUSB, response[0])
	}
	if response[1] != scpStatusOK {
		return fmt.Errorf("LOADRAM_USB failed with status 0x%02x", response[1])
	}
	return nil
}

// writeFlux replays nrSamples bitcell samples from the device buffer
// onto the current track over nrRevs revolutions.
func (c *Client) writeFlux(nrSamples uint32, nrRevs uint) error {
	info := make([]byte, 5)
	binary.BigEndian.PutUint32(info[0:4], nrSamples)
	info[4] = byte(nrRevs)
	if err := c.scpSend(scpCmdWriteFlux, info, nil); err != nil {
		return fmt.Errorf("failed to send WRITEFLUX command: %w", err)
	}
	return nil
}

// WriteTrackFlux writes one revolution of flux transition intervals
// (nanoseconds) to the physical track.
func (c *Client) WriteTrackFlux(tracknr int, intervals []uint64) error {
	if err := c.position(tracknr); err != nil {
		return err
	}
	fluxData := encodeSCPFlux(intervals)
	if len(fluxData) > ramBufferSize {
		return fmt.Errorf("track %d flux (%d bytes) exceeds device buffer", tracknr, len(fluxData))
	}
	if err := c.loadRAM(fluxData); err != nil {
		return fmt.Errorf("failed to load flux data for track %d: %w", tracknr, err)
	}
	return c.writeFlux(uint32(len(fluxData)/2), 1)
}

// EraseTrack overwrites the physical track with a featureless carrier:
// uniform 1µs transitions for a full 300 RPM revolution.
func (c *Client) EraseTrack(tracknr int) error {
	if err := c.position(tracknr); err != nil {
		return err
	}

	const intervalNs = 1000
	nrSamples := uint32(200e6 / intervalNs) // one 300 RPM revolution
	flux := make([]byte, nrSamples*2)
	for i := uint32(0); i < nrSamples; i++ {
		binary.BigEndian.PutUint16(flux[i*2:], intervalNs/scpTickNs)
	}
	if err := c.loadRAM(flux); err != nil {
		return fmt.Errorf("failed to load erase pattern: %w", err)
	}
	return c.writeFlux(nrSamples, 1)
}
