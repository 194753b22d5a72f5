package kryoflux

import "fmt"

// The KryoFlux is a capture device; its firmware has no flux write or
// erase path this client can drive.

func (c *Client) WriteTrackFlux(tracknr int, intervals []uint64) error {
	return fmt.Errorf("kryoflux: writing is not supported")
}

func (c *Client) EraseTrack(tracknr int) error {
	return fmt.Errorf("kryoflux: erasing is not supported")
}
