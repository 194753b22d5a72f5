package kryoflux

import (
	"fmt"

	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"

	"github.com/halvarsson/fluxcore/adapter"
)

const (
	VendorID  = 0x03eb
	ProductID = 0x6124
)

// Vendor control requests understood by the KryoFlux firmware
const (
	RequestStatus   = 0x00
	RequestInfo     = 0x01
	RequestResult   = 0x02
	RequestDevice   = 0x04
	RequestMotor    = 0x05
	RequestDensity  = 0x06
	RequestSide     = 0x08
	RequestTrack    = 0x09
	RequestStream   = 0x0a
	RequestMinTrack = 0x0c
	RequestMaxTrack = 0x0d
)

// ReadBufferSize is the bulk-in transfer size used while streaming
const ReadBufferSize = 64 * 1024

// Client wraps a USB connection to a KryoFlux device
type Client struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	intf   *gousb.Interface
	closer func()
	bulkIn *gousb.InEndpoint
}

// NewClient creates a new KryoFlux client. The KryoFlux is a pure USB
// bulk device, so portDetails (from serial enumeration) is unused and
// may be nil.
func NewClient(portDetails *enumerator.PortDetails) (adapter.FloppyAdapter, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("failed to open KryoFlux device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("KryoFlux device not found")
	}

	intf, closer, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("failed to claim default interface: %w", err)
	}

	bulkIn, err := intf.InEndpoint(1)
	if err != nil {
		closer()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("failed to open bulk-in endpoint: %w", err)
	}

	return &Client{
		ctx:    ctx,
		dev:    dev,
		intf:   intf,
		closer: closer,
		bulkIn: bulkIn,
	}, nil
}

// controlIn issues a vendor control-IN request and returns the device's
// ASCII response. When ignoreResult is set, transfer errors are
// swallowed (used when tearing a stream down on an error path).
func (c *Client) controlIn(request uint8, value uint16, ignoreResult bool) (string, error) {
	buf := make([]byte, 512)
	n, err := c.dev.Control(gousb.ControlVendor|gousb.ControlIn|gousb.ControlInterface, request, value, 0, buf)
	if err != nil {
		if ignoreResult {
			return "", nil
		}
		return "", fmt.Errorf("control request 0x%02x failed: %w", request, err)
	}
	return string(buf[:n]), nil
}

// streamOn starts the flux capture stream
func (c *Client) streamOn() error {
	_, err := c.controlIn(RequestStream, 1, false)
	return err
}

// configure sets device number, density, and the track range the
// firmware will accept seeks into
func (c *Client) configure(device, density, minTrack, maxTrack int) error {
	if _, err := c.controlIn(RequestDevice, uint16(device), false); err != nil {
		return err
	}
	if _, err := c.controlIn(RequestDensity, uint16(density), false); err != nil {
		return err
	}
	if _, err := c.controlIn(RequestMinTrack, uint16(minTrack), false); err != nil {
		return err
	}
	if _, err := c.controlIn(RequestMaxTrack, uint16(maxTrack), false); err != nil {
		return err
	}
	return nil
}

// motorOn spins up the drive and positions the head
func (c *Client) motorOn(side, track int) error {
	if _, err := c.controlIn(RequestMotor, 1, false); err != nil {
		return err
	}
	if _, err := c.controlIn(RequestSide, uint16(side), false); err != nil {
		return err
	}
	if _, err := c.controlIn(RequestTrack, uint16(track), false); err != nil {
		return err
	}
	return nil
}

// motorOff spins the drive down
func (c *Client) motorOff() error {
	_, err := c.controlIn(RequestMotor, 0, false)
	return err
}

// PrintStatus prints KryoFlux status information to stdout
func (c *Client) PrintStatus() {
	fmt.Printf("KryoFlux Adapter\n")
	info, err := c.controlIn(RequestInfo, 0, false)
	if err != nil {
		fmt.Printf("Status: failed to query device info: %v\n", err)
		return
	}
	fmt.Printf("Device Info: %s\n", info)
	fmt.Printf("Status: Connected\n")
}

// Close releases the USB interface and device
func (c *Client) Close() error {
	if c.closer != nil {
		c.closer()
	}
	if c.dev != nil {
		c.dev.Close()
	}
	if c.ctx != nil {
		return c.ctx.Close()
	}
	return nil
}

func init() {
	adapter.RegisterUSBAdapter(NewClient)
}
