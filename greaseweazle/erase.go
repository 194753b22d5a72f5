package greaseweazle

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EraseTrack wipes the physical track with a DC erase long enough to
// cover a full revolution with margin.
func (c *Client) EraseTrack(tracknr int) error {
	if err := c.position(tracknr); err != nil {
		return err
	}

	// 250ms of erase at the device tick rate covers one 300 RPM
	// revolution with margin.
	ticks := uint32(250e6 / c.tickNs())
	cmd := make([]byte, 6)
	cmd[0] = cmdEraseFlux
	cmd[1] = 6
	binary.LittleEndian.PutUint32(cmd[2:6], ticks)
	if err := c.doCommand(cmd); err != nil {
		return fmt.Errorf("failed to send ERASE_FLUX command: %w", err)
	}

	syncByte := make([]byte, 1)
	if _, err := io.ReadFull(c.port, syncByte); err != nil {
		return fmt.Errorf("failed to read erase synchronization byte: %w", err)
	}
	if syncByte[0] != 0 {
		return fmt.Errorf("erase operation failed with status byte 0x%02x", syncByte[0])
	}
	return c.getFluxStatus()
}
