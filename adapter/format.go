package adapter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/halvarsson/fluxcore/config"
	"github.com/halvarsson/fluxcore/container"
	"github.com/halvarsson/fluxcore/images"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Format the floppy disk",
	Long:  "Format the floppy disk connected via USB adapter by selecting from pre-defined images.",
	Run: func(cmd *cobra.Command, args []string) {
		if floppyAdapter == nil {
			cobra.CheckErr(fmt.Errorf("adapter not available"))
		}

		imageNames := config.Images
		if len(imageNames) == 0 {
			cobra.CheckErr(fmt.Errorf("no images available for current drive"))
		}

		fmt.Printf("Available formats for floppy drive %s:\n", config.DriveName)
		for i, imgName := range imageNames {
			fmt.Printf("  %s. %s\n", indexToTag(i), imgName)
		}
		fmt.Print("\nSelect format (default 1): ")

		reader := bufio.NewReader(os.Stdin)
		selection, err := reader.ReadString('\n')
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read selection: %w", err))
		}
		selection = strings.TrimSpace(selection)

		selectedIndex := 0
		if selection != "" {
			selectedIndex, err = tagToIndex(selection, len(imageNames))
			if err != nil {
				cobra.CheckErr(fmt.Errorf("invalid selection: %w", err))
			}
		}

		selectedImageName := imageNames[selectedIndex]
		fmt.Printf("\nSelected: %s\n", selectedImageName)

		filename, err := config.GetImageFilename(selectedImageName)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to get filename for image %q: %w", selectedImageName, err))
		}
		imageData, err := images.GetImage(filename)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to get built-in image %q: %w", filename, err))
		}

		// Stage the blank image in a temp file carrying the original
		// suffix so the container layer's dispatch sees it.
		tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("floppy-format-%d%s", os.Getpid(), filepath.Ext(filename)))
		if err := os.WriteFile(tmpPath, imageData, 0o644); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to write temporary file: %w", err))
		}
		defer os.Remove(tmpPath)

		d, err := container.Open(tmpPath, true)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read image file: %w", err))
		}
		defer d.Close()

		fmt.Print("Insert TARGET diskette in drive\nand press Enter when ready...")
		_, _ = reader.ReadString('\n')
		fmt.Printf("\n")

		if err := writeToFloppy(d); err != nil {
			cobra.CheckErr(err)
		}
		fmt.Printf("\nDiskette formatted as '%s'.\n", selectedImageName)
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
}

// indexToTag converts an index (0-based) to a menu tag (1-9, a-z).
func indexToTag(index int) string {
	if index < 9 {
		return fmt.Sprintf("%d", index+1)
	}
	return string(rune('a' + index - 9))
}

// tagToIndex converts a menu tag (1-9, a-z) back to an index.
func tagToIndex(tag string, maxIndex int) (int, error) {
	tag = strings.ToLower(tag)
	if len(tag) != 1 {
		return -1, fmt.Errorf("tag must be a single character")
	}

	c := tag[0]
	var index int
	switch {
	case c >= '1' && c <= '9':
		index = int(c - '1')
	case c >= 'a' && c <= 'z':
		index = 9 + int(c-'a')
	default:
		return -1, fmt.Errorf("invalid tag: %s (must be 1-9 or a-z)", tag)
	}
	if index >= maxIndex {
		return -1, fmt.Errorf("tag %s is out of range", tag)
	}
	return index, nil
}
