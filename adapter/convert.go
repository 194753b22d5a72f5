package adapter

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halvarsson/fluxcore/container"
)

var convertCmd = &cobra.Command{
	Use:   "convert SRC.EXT DEST.EXT",
	Short: "Convert between image formats",
	Long: `Convert between image formats.
Reads contents of the SRC.EXT file and writes it to DEST.EXT file.
Format of floppy image is defined by extension.
USB adapter is not used.
` + supportedImageFormatsText,
	Args: cobra.ExactArgs(2),
	// Override PersistentPreRun: convert does not need the USB adapter.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		srcFilename := args[0]
		destFilename := args[1]

		src, err := container.Open(srcFilename, true)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read file %s: %w", srcFilename, err))
		}
		defer src.Close()

		dest, err := container.Create(destFilename)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to create file %s: %w", destFilename, err))
		}

		// The decoded track state is the interchange form: hand the
		// source's tracks to the destination driver and let its close
		// path re-serialize (or reject track types it cannot carry).
		dest.Info = src.Info
		if err := dest.Close(); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to write file %s: %w", destFilename, err))
		}

		fmt.Printf("Successfully converted %s to %s\n", srcFilename, destFilename)
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
}
