// Package supercardpro drives a SuperCard Pro flux sampler over its
// serial protocol, exposing it as a flux-level adapter.FloppyAdapter.
package supercardpro

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/halvarsson/fluxcore/adapter"
)

const (
	VendorID  = 0x0403
	ProductID = 0x6015
)

// SCP command codes
const (
	scpCmdSelA        = 0x80 // select drive A
	scpCmdDselA       = 0x82 // deselect drive A
	scpCmdMtrAOn      = 0x84 // turn motor A on
	scpCmdMtrAOff     = 0x86 // turn motor A off
	scpCmdSeek0       = 0x88 // seek track 0
	scpCmdStepTo      = 0x89 // step to cylinder
	scpCmdSide        = 0x8d // select side
	scpCmdReadFlux    = 0xa0 // read flux level
	scpCmdGetFluxInfo = 0xa1 // get info for last flux read
	scpCmdWriteFlux   = 0xa2 // write flux level
	scpCmdSendRAMUSB  = 0xa9 // send data from buffer to USB
	scpCmdLoadRAMUSB  = 0xaa // load data from USB into buffer
	scpCmdSCPInfo     = 0xd0 // get SCP info
)

const scpStatusOK = 0x4f

// scpTickNs is the SCP flux sample resolution: one 25ns tick.
const scpTickNs = 25

// ramBufferSize is the device's on-board capture buffer.
const ramBufferSize = 512 * 1024

// Client wraps a serial connection to a SuperCard Pro device.
type Client struct {
	port         serial.Port
	serialNumber string
	selected     bool
}

// NewClient opens the serial port to the device.
func NewClient(portDetails *enumerator.PortDetails) (adapter.FloppyAdapter, error) {
	port, err := serial.Open(portDetails.Name, &serial.Mode{BaudRate: 38400})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portDetails.Name, err)
	}
	return &Client{port: port, serialNumber: portDetails.SerialNumber}, nil
}

// scpSend frames and sends one command. The packet is
// [cmd][len][data...][checksum] with checksum = 0x4a plus the sum of
// the preceding bytes; the response is [cmd echo][status]. For
// SENDRAM_USB the payload arrives before the response and is read
// into readData.
func (c *Client) scpSend(cmd byte, data []byte, readData []byte) error {
	if len(data) > 255 {
		return fmt.Errorf("data length %d exceeds maximum 255", len(data))
	}

	packet := make([]byte, 0, 3+len(data))
	packet = append(packet, cmd, byte(len(data)))
	packet = append(packet, data...)
	checksum := byte(0x4a)
	for _, b := range packet {
		checksum += b
	}
	packet = append(packet, checksum)

	if _, err := c.port.Write(packet); err != nil {
		return fmt.Errorf("failed to write command packet: %w", err)
	}

	if cmd == scpCmdSendRAMUSB && readData != nil {
		if _, err := io.ReadFull(c.port, readData); err != nil {
			return fmt.Errorf("failed to read RAM data: %w", err)
		}
	}

	response := make([]byte, 2)
	if _, err := io.ReadFull(c.port, response); err != nil {
		return fmt.Errorf("failed to read command response: %w", err)
	}
	if response[0] != cmd {
		return fmt.Errorf("command echo mismatch: sent 0x%02x, received 0x%02x", cmd, response[0])
	}
	if response[1] != scpStatusOK {
		return fmt.Errorf("command failed with status 0x%02x", response[1])
	}
	return nil
}

// position selects the drive (once) and moves the head to the
// physical track.
func (c *Client) position(tracknr int) error {
	if !c.selected {
		if err := c.scpSend(scpCmdSelA, nil, nil); err != nil {
			return fmt.Errorf("failed to select drive: %w", err)
		}
		if err := c.scpSend(scpCmdMtrAOn, nil, nil); err != nil {
			return fmt.Errorf("failed to turn on motor: %w", err)
		}
		c.selected = true
	}

	cyl := tracknr / 2
	if cyl == 0 {
		if err := c.scpSend(scpCmdSeek0, nil, nil); err != nil {
			return fmt.Errorf("failed to seek to track 0: %w", err)
		}
	} else {
		if err := c.scpSend(scpCmdStepTo, []byte{byte(cyl)}, nil); err != nil {
			return fmt.Errorf("failed to step to cylinder %d: %w", cyl, err)
		}
	}
	if err := c.scpSend(scpCmdSide, []byte{byte(tracknr % 2)}, nil); err != nil {
		return fmt.Errorf("failed to select side %d: %w", tracknr%2, err)
	}

	// Seek settle delay.
	time.Sleep(20 * time.Millisecond)
	return nil
}

// Close deselects the drive and releases the port.
func (c *Client) Close() error {
	if c.selected {
		c.scpSend(scpCmdMtrAOff, nil, nil)
		c.scpSend(scpCmdDselA, nil, nil)
		c.selected = false
	}
	if c.port != nil {
		return c.port.Close()
	}
	return nil
}

func init() {
	adapter.RegisterAdapter(VendorID, ProductID, NewClient)
}
