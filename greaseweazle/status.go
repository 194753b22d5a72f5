package greaseweazle

import (
	"fmt"

	"github.com/halvarsson/fluxcore/config"
)

// PrintStatus prints firmware information and probes for a connected
// drive.
func (c *Client) PrintStatus() {
	fw := c.firmwareInfo

	mcuName := map[uint8]string{1: "STM32F1", 4: "AT32F4", 7: "STM32F7"}[fw.HwModel]
	if mcuName == "" {
		mcuName = fmt.Sprintf("unknown (model %d)", fw.HwModel)
	}

	fmt.Printf("Greaseweazle Firmware Version: %d.%d\n", fw.FwMajor, fw.FwMinor)
	fmt.Printf("Serial Number: %s\n", c.serialNumber)
	fmt.Printf("Max Command: %d\n", fw.MaxCmd)
	fmt.Printf("Sample Frequency: %.1f MHz\n", float64(fw.SampleFreqHz)*1e-6)
	fmt.Printf("Hardware Model: %d.%d (%s)\n", fw.HwModel, fw.HwSubmodel, mcuName)

	// Probe for a drive: reset, then try to reach track 0.
	driveIsConnected := c.doCommand([]byte{cmdReset, 2}) == nil &&
		c.doCommand([]byte{cmdSetBusType, 3, busIBMPC}) == nil &&
		c.selectDrive(0) == nil &&
		c.seek(0) == nil
	if !driveIsConnected {
		fmt.Printf("Floppy Drive: Not detected\n")
		return
	}
	fmt.Printf("Floppy Drive: %s\n", config.DriveName)

	// A successful capture also tells us a disk is inserted and how
	// fast it spins.
	intervals, err := c.ReadTrackFlux(0, 1)
	if c.motorOn {
		c.setMotor(0, false)
		c.motorOn = false
	}
	if err != nil || len(intervals) == 0 {
		fmt.Printf("Floppy Disk: Not inserted\n")
		return
	}
	fmt.Printf("Floppy Disk: Inserted\n")

	var totalNs uint64
	for _, ns := range intervals {
		totalNs += ns
	}
	if totalNs > 0 {
		rpm := 60e9 / float64(totalNs)
		if rpm < 330 {
			fmt.Printf("Rotation Speed: 300 RPM\n")
		} else {
			fmt.Printf("Rotation Speed: 360 RPM\n")
		}
	}
}
