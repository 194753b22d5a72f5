package kryoflux

import (
	"fmt"
	"time"

	"github.com/halvarsson/fluxcore/stream"
)

// streamEnded reports whether a captured chunk contains the firmware's
// end-of-stream OOB record (subtype 0x0d).
func streamEnded(data []byte) bool {
	offset := 0
	for offset < len(data) {
		v := data[offset]
		switch {
		case v <= 0x07:
			offset += 2
		case v == 0x08:
			offset++
		case v == 0x09:
			offset += 2
		case v == 0x0a:
			offset += 3
		case v == 0x0b:
			offset++
		case v == 0x0c:
			offset += 3
		case v == 0x0d:
			if offset+4 > len(data) {
				return true // truncated OOB header: stop reading
			}
			if data[offset+1] == 0x0d {
				return true
			}
			size := int(data[offset+2]) | int(data[offset+3])<<8
			offset += 4 + size
		default:
			offset++
		}
	}
	return false
}

// captureStream starts the device stream and drains bulk-in transfers
// until the end-of-stream record (or a timeout) arrives.
func (c *Client) captureStream() ([]byte, error) {
	if err := c.streamOn(); err != nil {
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}
	defer c.controlIn(RequestStream, 0, true)

	var streamData []byte
	buf := make([]byte, ReadBufferSize)
	deadline := time.Now().Add(30 * time.Second)

	for {
		if time.Now().After(deadline) {
			if len(streamData) > 0 {
				return streamData, nil
			}
			return nil, fmt.Errorf("stream read timeout")
		}
		n, err := c.bulkIn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to read stream data: %w", err)
		}
		if n == 0 {
			continue
		}
		streamData = append(streamData, buf[:n]...)
		if streamEnded(buf[:n]) {
			return streamData, nil
		}
	}
}

// ReadTrackFlux captures the physical track and returns the flux
// transition intervals in nanoseconds. The KryoFlux firmware streams
// whole revolutions on its own cadence, so revs is not used; the
// capture covers several revolutions regardless.
func (c *Client) ReadTrackFlux(tracknr, revs int) ([]uint64, error) {
	if err := c.configure(0, 0, 0, 83); err != nil {
		return nil, fmt.Errorf("failed to configure device: %w", err)
	}
	if err := c.motorOn(tracknr%2, tracknr/2); err != nil {
		return nil, fmt.Errorf("failed to position track %d: %w", tracknr, err)
	}
	defer c.motorOff()

	data, err := c.captureStream()
	if err != nil {
		return nil, err
	}

	// The device speaks the same opcode grammar the capture-file
	// parser understands.
	ticks, _, err := stream.DecodeRawFlux(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt capture on track %d: %w", tracknr, err)
	}
	intervals := make([]uint64, len(ticks))
	for i, t := range ticks {
		intervals[i] = stream.TicksToNanoseconds(t)
	}
	if len(intervals) == 0 {
		return nil, fmt.Errorf("no flux transitions captured on track %d", tracknr)
	}
	return intervals, nil
}
