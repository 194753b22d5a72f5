package adapter

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halvarsson/fluxcore/config"
	"github.com/halvarsson/fluxcore/container"
	"github.com/halvarsson/fluxcore/stream"
	"github.com/halvarsson/fluxcore/trackhandler"
)

var readCmd = &cobra.Command{
	Use:   "read [DEST.EXT]",
	Short: "Read image of the floppy disk",
	Long: `Read the floppy disk and save image to file DEST.EXT.
Format of floppy image is defined by extension.
By default the floppy image is saved as 'image.img'.
` + supportedImageFormatsText,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if floppyAdapter == nil {
			cobra.CheckErr(fmt.Errorf("adapter not available"))
		}

		filename := "image.img"
		if len(args) > 0 {
			filename = args[0]
		}

		tt, err := trackTypeForImage(filename)
		cobra.CheckErr(err)
		h := trackhandler.Lookup(tt)
		if h == nil {
			cobra.CheckErr(fmt.Errorf("no decoder registered for %s tracks", trackhandler.TypeName(tt)))
		}

		d, err := container.Create(filename)
		cobra.CheckErr(err)

		nrTracks := config.Cyls * config.Heads
		if nrTracks > len(d.Info.Tracks) {
			nrTracks = len(d.Info.Tracks)
		}
		fmt.Printf("Reading %d tracks, %d side(s)\n\n", config.Cyls, config.Heads)

		fmt.Print("Insert SOURCE diskette in drive\nand press Enter when ready...")
		reader := bufio.NewReader(os.Stdin)
		_, _ = reader.ReadString('\n')
		fmt.Printf("\n")

		nsPerCell := h.Density.NsPerCell()
		for tracknr := 0; tracknr < nrTracks; tracknr++ {
			fmt.Printf("\rReading track %d, side %d...", tracknr/2, tracknr%2)

			intervals, err := floppyAdapter.ReadTrackFlux(tracknr, 2)
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to read track %d: %w", tracknr, err))
			}
			src := stream.NewPulseSource(intervals, nsPerCell)
			if err := container.WriteRaw(d, tracknr, tt, src); err != nil {
				// Recoverable per-track: leave it unformatted and go on.
				fmt.Printf("\ntrack %d: %v\n", tracknr, err)
			}
		}
		fmt.Printf("\n")

		if err := d.Close(); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to write image: %w", err))
		}
		fmt.Printf("Image from diskette saved to file '%s'.\n", filename)
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}
