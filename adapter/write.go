package adapter

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halvarsson/fluxcore/config"
	"github.com/halvarsson/fluxcore/container"
	"github.com/halvarsson/fluxcore/disk"
	"github.com/halvarsson/fluxcore/stream"
	"github.com/halvarsson/fluxcore/trackhandler"
)

var writeCmd = &cobra.Command{
	Use:   "write SRC.EXT",
	Short: "Write image to the floppy disk",
	Long: `Write image from SRC.EXT to the floppy disk.
Format of floppy image is defined by extension.
` + supportedImageFormatsText,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if floppyAdapter == nil {
			cobra.CheckErr(fmt.Errorf("adapter not available"))
		}

		filename := args[0]
		d, err := container.Open(filename, true)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read file: %w", err))
		}
		defer d.Close()

		fmt.Print("Insert TARGET diskette in drive\nand press Enter when ready...")
		reader := bufio.NewReader(os.Stdin)
		_, _ = reader.ReadString('\n')
		fmt.Printf("\n")

		if err := writeToFloppy(d); err != nil {
			cobra.CheckErr(err)
		}
		fmt.Printf("\nImage from file '%s' written to diskette.\n", filename)
	},
}

// writeToFloppy materializes every formatted track of d as flux and
// writes it out, clamped to the configured drive geometry (plus the
// customary two spare cylinders).
func writeToFloppy(d *disk.Disk) error {
	nrTracks := len(d.Info.Tracks)
	if limit := (config.Cyls + 2) * config.Heads; nrTracks > limit {
		nrTracks = limit
	}
	fmt.Printf("Writing %d tracks, %d side(s)\n", nrTracks/config.Heads, config.Heads)

	for tracknr := 0; tracknr < nrTracks; tracknr++ {
		ti := &d.Info.Tracks[tracknr]
		if ti.TotalBits <= 0 {
			continue
		}
		fmt.Printf("\rWriting track %d, side %d...", tracknr/2, tracknr%2)

		raw, err := d.MaterializeTrack(tracknr)
		if err != nil {
			return fmt.Errorf("failed to encode track %d: %w", tracknr, err)
		}
		h := trackhandler.Lookup(ti.Type)
		if h == nil {
			return fmt.Errorf("no handler for track %d type %s", tracknr, ti.TypeName)
		}
		intervals := stream.FluxFromTrack(raw, h.Density.NsPerCell())
		if err := floppyAdapter.WriteTrackFlux(tracknr, intervals); err != nil {
			return fmt.Errorf("failed to write track %d: %w", tracknr, err)
		}
	}
	fmt.Printf(" Done\n")
	return nil
}

func init() {
	rootCmd.AddCommand(writeCmd)
}
