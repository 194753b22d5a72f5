// Package adapter is the cobra CLI over the USB floppy adapters: it
// discovers a connected device, captures flux from it into a disk
// image through the container layer, and writes images back out as
// flux.
package adapter

import "go.bug.st/serial/enumerator"

// FloppyAdapter is the flux-level view of a hardware sampler device.
// Track numbers are physical (cylinder*2 + head), matching the
// container layer's track numbering.
type FloppyAdapter interface {
	// PrintStatus prints adapter status information to stdout.
	PrintStatus()
	// ReadTrackFlux seeks to tracknr and captures revs revolutions of
	// raw flux, returned as transition intervals in nanoseconds.
	ReadTrackFlux(tracknr, revs int) ([]uint64, error)
	// WriteTrackFlux writes one revolution of flux transition
	// intervals (nanoseconds) to tracknr.
	WriteTrackFlux(tracknr int, intervals []uint64) error
	// EraseTrack wipes tracknr.
	EraseTrack(tracknr int) error
	// Close releases the device.
	Close() error
}

// AdapterFactory creates an adapter from enumerated port details; nil
// details for USB-only devices.
type AdapterFactory func(portDetails *enumerator.PortDetails) (FloppyAdapter, error)

type adapterInfo struct {
	vendorID  uint16
	productID uint16
	factory   AdapterFactory
}

var registeredAdapters []adapterInfo

// RegisterAdapter registers a serial-port adapter factory under its
// USB VID/PID; device packages call this from init.
func RegisterAdapter(vendorID, productID uint16, factory AdapterFactory) {
	registeredAdapters = append(registeredAdapters, adapterInfo{vendorID, productID, factory})
}

// RegisterUSBAdapter registers an adapter reached over raw USB rather
// than an enumerated serial port.
func RegisterUSBAdapter(factory AdapterFactory) {
	registeredAdapters = append(registeredAdapters, adapterInfo{0, 0, factory})
}
