// Package greaseweazle drives a Greaseweazle USB flux sampler over its
// serial protocol, exposing it as a flux-level adapter.FloppyAdapter.
package greaseweazle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/halvarsson/fluxcore/adapter"
)

const (
	VendorID  = 0x1209 // Open source hardware projects
	ProductID = 0x4d69 // Keir Fraser Greaseweazle
)

// Command codes
const (
	cmdGetInfo       = 0
	cmdSeek          = 2
	cmdHead          = 3
	cmdMotor         = 6
	cmdReadFlux      = 7
	cmdWriteFlux     = 8
	cmdGetFluxStatus = 9
	cmdSelect        = 12
	cmdSetBusType    = 14
	cmdReset         = 16
	cmdEraseFlux     = 17
)

const getInfoFirmware = 0

// ACK return codes
const (
	ackOkay          = 0
	ackBadCommand    = 1
	ackNoIndex       = 2
	ackNoTrk0        = 3
	ackFluxOverflow  = 4
	ackFluxUnderflow = 5
	ackWrprot        = 6
	ackNoUnit        = 7
	ackNoBus         = 8
	ackBadUnit       = 9
	ackBadPin        = 10
	ackBadCylinder   = 11
)

// Flux stream opcodes (after the 0xFF escape)
const (
	fluxOpIndex = 1
	fluxOpSpace = 2
)

const busIBMPC = 1

// ErrWriteProtected distinguishes a write-protected medium from other
// device failures.
var ErrWriteProtected = errors.New("greaseweazle: disk is write protected")

// Client wraps a serial connection to a Greaseweazle device.
type Client struct {
	port         serial.Port
	firmwareInfo firmwareInfo
	serialNumber string
	motorOn      bool
}

// firmwareInfo is the GET_INFO firmware block, packed little-endian.
type firmwareInfo struct {
	FwMajor      uint8
	FwMinor      uint8
	MaxCmd       uint8
	SampleFreqHz uint32
	HwModel      uint8
	HwSubmodel   uint8
}

// NewClient opens the serial port, reads the firmware block, and
// configures the device for an IBM PC bus.
func NewClient(portDetails *enumerator.PortDetails) (adapter.FloppyAdapter, error) {
	port, err := serial.Open(portDetails.Name, &serial.Mode{BaudRate: 9600})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portDetails.Name, err)
	}

	c := &Client{port: port, serialNumber: portDetails.SerialNumber}

	c.firmwareInfo, err = c.fetchFirmwareInfo()
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to fetch firmware version: %w", err)
	}

	// Twiddle the baud rate, which tells the Greaseweazle the data
	// stream has been reset.
	if err := port.SetMode(&serial.Mode{BaudRate: 10000}); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set baud rate: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := port.SetMode(&serial.Mode{BaudRate: 9600}); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set baud rate: %w", err)
	}

	if err := c.doCommand([]byte{cmdSetBusType, 3, busIBMPC}); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set bus type: %w", err)
	}

	return c, nil
}

func ackError(code byte) error {
	switch code {
	case ackOkay:
		return nil
	case ackWrprot:
		return ErrWriteProtected
	}
	msg := map[byte]string{
		ackBadCommand:    "bad command",
		ackNoIndex:       "no index",
		ackNoTrk0:        "no track 0",
		ackFluxOverflow:  "overflow",
		ackFluxUnderflow: "underflow",
		ackNoUnit:        "no unit",
		ackNoBus:         "no bus",
		ackBadUnit:       "invalid unit",
		ackBadPin:        "invalid pin",
		ackBadCylinder:   "invalid track",
	}[code]
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("greaseweazle error: %s", msg)
}

// doCommand sends a command packet and checks the two-byte
// echo/status ACK.
func (c *Client) doCommand(cmd []byte) error {
	if _, err := c.port.Write(cmd); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	ack := make([]byte, 2)
	if _, err := io.ReadFull(c.port, ack); err != nil {
		return fmt.Errorf("failed to read ACK: %w", err)
	}
	if ack[0] != cmd[0] {
		return fmt.Errorf("command returned garbage (0x%02x != 0x%02x with status 0x%02x)",
			ack[0], cmd[0], ack[1])
	}
	return ackError(ack[1])
}

func (c *Client) fetchFirmwareInfo() (firmwareInfo, error) {
	var info firmwareInfo
	if err := c.doCommand([]byte{cmdGetInfo, 3, getInfoFirmware}); err != nil {
		return info, err
	}
	response := make([]byte, 32)
	if _, err := io.ReadFull(c.port, response); err != nil {
		return info, fmt.Errorf("failed to read response: %w", err)
	}
	info.FwMajor = response[0]
	info.FwMinor = response[1]
	info.MaxCmd = response[3]
	info.SampleFreqHz = binary.LittleEndian.Uint32(response[4:8])
	info.HwModel = response[8]
	info.HwSubmodel = response[9]
	return info, nil
}

// tickNs is the duration of one device sample tick in nanoseconds.
func (c *Client) tickNs() float64 {
	return 1e9 / float64(c.firmwareInfo.SampleFreqHz)
}

func (c *Client) seek(cylinder byte) error {
	return c.doCommand([]byte{cmdSeek, 3, cylinder})
}

func (c *Client) setHead(head byte) error {
	return c.doCommand([]byte{cmdHead, 3, head})
}

func (c *Client) selectDrive(drive byte) error {
	return c.doCommand([]byte{cmdSelect, 3, drive})
}

func (c *Client) setMotor(drive byte, on bool) error {
	state := byte(0)
	if on {
		state = 1
	}
	return c.doCommand([]byte{cmdMotor, 4, drive, state})
}

func (c *Client) getFluxStatus() error {
	return c.doCommand([]byte{cmdGetFluxStatus, 2})
}

// position spins up drive 0 (once) and moves the head to the physical
// track.
func (c *Client) position(tracknr int) error {
	if !c.motorOn {
		if err := c.selectDrive(0); err != nil {
			return fmt.Errorf("failed to select drive: %w", err)
		}
		if err := c.setMotor(0, true); err != nil {
			return fmt.Errorf("failed to turn on motor: %w", err)
		}
		c.motorOn = true
	}
	if err := c.seek(byte(tracknr / 2)); err != nil {
		return fmt.Errorf("failed to seek to cylinder %d: %w", tracknr/2, err)
	}
	if err := c.setHead(byte(tracknr % 2)); err != nil {
		return fmt.Errorf("failed to set head %d: %w", tracknr%2, err)
	}
	return nil
}

// Close spins the drive down and releases the port.
func (c *Client) Close() error {
	if c.motorOn {
		c.setMotor(0, false)
		c.motorOn = false
	}
	if c.port != nil {
		return c.port.Close()
	}
	return nil
}

func init() {
	adapter.RegisterAdapter(VendorID, ProductID, NewClient)
}
