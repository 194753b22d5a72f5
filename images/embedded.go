// Package images supplies the built-in blank disk images the format
// command writes to factory-fresh media. Each image is synthesized at
// its canonical geometry rather than carried as an embedded binary:
// a blank FAT or ADF image is fully determined by its size and filler.
package images

import (
	"bytes"
	"fmt"
	"strings"
)

// geometry describes one built-in blank image: total byte size plus the
// filler pattern its file system's formatter leaves in unused sectors.
type geometry struct {
	size   int
	filler []byte
}

// imageMap keys are the base filenames referenced from drive config.
// Every geometry here is one the container layer recognises on open.
var imageMap = map[string]geometry{
	"blank.adf":     {size: 160 * 11 * 512, filler: []byte("NDOS")},
	"fat720.img":    {size: 720 * 1024, filler: []byte{0xF6}},
	"fat1.44.img":   {size: 1440 * 1024, filler: []byte{0xF6}},
	"bsd1.44.img":   {size: 1440 * 1024, filler: []byte{0x00}},
	"linux1.44.img": {size: 1440 * 1024, filler: []byte{0x00}},
}

// GetImage synthesizes the named built-in blank image. The filename
// parameter is the base filename as referenced in config (e.g.
// "fat1.44.img").
func GetImage(filename string) ([]byte, error) {
	g, ok := imageMap[strings.TrimSuffix(filename, ".gz")]
	if !ok {
		return nil, fmt.Errorf("built-in image not found: %s", filename)
	}
	data := bytes.Repeat(g.filler, (g.size+len(g.filler)-1)/len(g.filler))
	return data[:g.size], nil
}
