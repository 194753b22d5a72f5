package adapter

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halvarsson/fluxcore/config"
)

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase the floppy disk",
	Long:  "Erase the floppy disk connected via USB adapter.",
	Run: func(cmd *cobra.Command, args []string) {
		if floppyAdapter == nil {
			cobra.CheckErr(fmt.Errorf("adapter not available"))
		}
		fmt.Printf("Erasing %d tracks, %d side(s)\n\n", config.Cyls+2, config.Heads)

		fmt.Print("Insert TARGET diskette in drive\nand press Enter when ready...")
		reader := bufio.NewReader(os.Stdin)
		_, _ = reader.ReadString('\n')
		fmt.Printf("\n")

		// Erase two extra cylinders past the configured geometry.
		for tracknr := 0; tracknr < (config.Cyls+2)*config.Heads; tracknr++ {
			fmt.Printf("\rErasing track %d, side %d...", tracknr/2, tracknr%2)
			if err := floppyAdapter.EraseTrack(tracknr); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to erase track %d: %w", tracknr, err))
			}
		}
		fmt.Printf(" Done\n")
	},
}

func init() {
	rootCmd.AddCommand(eraseCmd)
}
