package stream

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileCaptureSource serves a whole capture directory: one
// <basename><TT>.<H>.raw file per physical track, each decoded by a
// CaptureSource on selection.
type FileCaptureSource struct {
	CaptureSource

	basename  string
	nsPerCell int
	pllMode   PLLMode
	tracknr   int
}

// OpenCapture locates a hardware capture by its basename, probing
// "<name>00.0.raw" and then "<name>/00.0.raw"; it fails if neither
// exists. The PLL is centred on nsPerCell.
func OpenCapture(name string, nsPerCell int, mode PLLMode) (*FileCaptureSource, error) {
	basename := name
	if _, err := os.Stat(captureFileName(basename, 0)); err != nil {
		basename = name + string(filepath.Separator)
		if _, err := os.Stat(captureFileName(basename, 0)); err != nil {
			return nil, fmt.Errorf("stream: no capture found at %q (tried %s and %s)",
				name, captureFileName(name, 0), captureFileName(basename, 0))
		}
	}
	f := &FileCaptureSource{basename: basename, nsPerCell: nsPerCell, pllMode: mode, tracknr: -1}
	if err := f.SelectTrack(0); err != nil {
		return nil, err
	}
	return f, nil
}

// captureFileName forms "<basename><TT>.<H>.raw" with TT the two-digit
// cylinder and H the head.
func captureFileName(basename string, tracknr int) string {
	return fmt.Sprintf("%s%02d.%d.raw", basename, tracknr/2, tracknr%2)
}

// SetDensity recentres the PLL for this and subsequently selected
// tracks.
func (f *FileCaptureSource) SetDensity(nsPerCell int) {
	f.nsPerCell = nsPerCell
	f.CaptureSource.SetDensity(nsPerCell)
}

// SelectTrack loads the capture file for tracknr and resets the decode
// state onto it.
func (f *FileCaptureSource) SelectTrack(tracknr int) error {
	if tracknr == f.tracknr {
		return nil
	}
	path := captureFileName(f.basename, tracknr)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("stream: reading capture track %d: %w", tracknr, err)
	}
	f.CaptureSource = *NewCaptureSource(data, f.nsPerCell, f.pllMode)
	f.tracknr = tracknr
	return nil
}
