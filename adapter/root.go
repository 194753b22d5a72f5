package adapter

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/halvarsson/fluxcore/config"
	"github.com/halvarsson/fluxcore/trackhandler"
)

var floppyAdapter FloppyAdapter

const supportedImageFormatsText = `Supported image formats:
  *.adf          - Amiga Disk File
  *.eadf         - Amiga extended Disk File
  *.dsk          - raw bitcell track dump
  *.hfe          - HxC Floppy Emulator
  *.img or *.ima - raw binary contents of the entire disk`

var rootCmd = &cobra.Command{
	Use:   "floppy",
	Short: "Tool for reading and writing diskettes via USB floppy adapters",
	Long: `Command-line tool for reading, writing and formatting diskettes via USB floppy adapters.
` + supportedImageFormatsText,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch cmd.Name() {
		case "status", "read", "write", "format", "erase":
			// These commands require the floppy hardware.
		default:
			return
		}

		var err error
		floppyAdapter, err = findAdapter()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("%w", err))
		}

		err = config.Initialize()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to initialize config: %w", err))
		}
	},
}

// findAdapter probes the enumerated serial ports against the
// registered VID/PID factories, then falls back to USB-only adapters.
func findAdapter() (FloppyAdapter, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	for _, port := range ports {
		portVID, err := strconv.ParseUint(port.VID, 16, 16)
		if err != nil {
			continue
		}
		portPID, err := strconv.ParseUint(port.PID, 16, 16)
		if err != nil {
			continue
		}

		for _, info := range registeredAdapters {
			if info.vendorID == 0 && info.productID == 0 {
				continue // USB-only adapters are probed below
			}
			if uint16(portVID) == info.vendorID && uint16(portPID) == info.productID {
				a, err := info.factory(port)
				if err != nil {
					continue // try next port
				}
				return a, nil
			}
		}
	}

	for _, info := range registeredAdapters {
		if info.vendorID == 0 && info.productID == 0 {
			a, err := info.factory(nil)
			if err == nil && a != nil {
				return a, nil
			}
		}
	}

	return nil, fmt.Errorf("no supported USB floppy adapter found")
}

// trackTypeForImage picks the track format a fresh capture is decoded
// as, from the destination suffix and the configured drive speed.
func trackTypeForImage(filename string) (trackhandler.TrackType, error) {
	suffix := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch suffix {
	case "adf", "eadf":
		return trackhandler.AmigaDOS, nil
	case "img", "ima", "dsk", "hfe":
		switch {
		case config.MaxKBps < 375:
			return trackhandler.IBMPCDD, nil
		case config.MaxKBps < 750:
			return trackhandler.IBMPCHD, nil
		default:
			return trackhandler.IBMPCED, nil
		}
	}
	return trackhandler.Unformatted, fmt.Errorf("cannot infer track format for %q", filename)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
