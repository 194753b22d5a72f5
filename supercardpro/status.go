package supercardpro

import (
	"fmt"
	"io"
)

// PrintStatus prints hardware and firmware versions.
func (c *Client) PrintStatus() {
	fmt.Printf("SuperCard Pro Adapter\n")
	fmt.Printf("Serial Number: %s\n", c.serialNumber)

	if err := c.scpSend(scpCmdSCPInfo, nil, nil); err != nil {
		fmt.Printf("Status: failed to query device info: %v\n", err)
		return
	}
	// Two version bytes follow: upper nibble major, lower minor.
	response := make([]byte, 2)
	if _, err := io.ReadFull(c.port, response); err != nil {
		fmt.Printf("Status: failed to read version info: %v\n", err)
		return
	}
	fmt.Printf("Hardware Version: %d.%d\n", response[0]>>4, response[0]&0x0f)
	fmt.Printf("Firmware Version: %d.%d\n", response[1]>>4, response[1]&0x0f)
	fmt.Printf("Status: Connected\n")
}
