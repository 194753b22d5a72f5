// Package container implements the whole-image persistence layer: a
// fixed set of drivers, selected by file suffix, that map an
// on-disk byte layout to and from a disk.Disk. Dispatch is a tagged
// registry keyed by name rather than an open class hierarchy, the same
// shape package trackhandler uses one level down.
package container

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/halvarsson/fluxcore/disk"
	"github.com/halvarsson/fluxcore/stream"
	"github.com/halvarsson/fluxcore/trackhandler"
	"github.com/halvarsson/fluxcore/trackraw"
)

// defaultBitsPerTrack is the nominal DD bit-cell count per revolution;
// HD/ED containers scale it up.
const defaultBitsPerTrack = 100000

// Driver is one container format's dispatch record.
type Driver struct {
	Name string

	// Init materializes an empty image at this driver's canonical
	// geometry, ready to have tracks written into it.
	Init func(d *disk.Disk)

	// Open sniffs f for this driver's signature/size, populates d's
	// tracks, and returns the driver that should own d from here on —
	// ordinarily itself, but a driver may redirect (ADF -> eADF on the
	// UAE-1ADF signature). A wrong size or signature for this driver is
	// reported as an error.
	Open func(d *disk.Disk, f *os.File) (*Driver, error)

	// Close truncates and re-serializes d's current track state back
	// to its backing file.
	Close func(d *disk.Disk) error

	// WriteRaw decodes a flux-capture stream into tracknr of d via the
	// handler registered for tt. Set only by drivers that accept raw
	// captures directly (adf, dsk, hfe); drivers that persist logical
	// sectors (img, appleII_*) leave it nil.
	WriteRaw func(d *disk.Disk, tracknr int, tt trackhandler.TrackType, s stream.Source) error

	// ExtraData holds driver-specific constants (e.g. the Apple II
	// sector translate table); opaque to the registry.
	ExtraData any
}

// Drivers is the fixed registry keyed by recognised file suffix.
var Drivers = map[string]*Driver{}

func register(suffix string, c *Driver) {
	Drivers[suffix] = c
}

func driverForPath(path string) (*Driver, error) {
	suffix := strings.TrimPrefix(filepath.Ext(path), ".")
	drv, ok := Drivers[suffix]
	if !ok {
		return nil, fmt.Errorf("container: unrecognised file suffix %q", suffix)
	}
	return drv, nil
}

// driverCloser adapts a *Driver to disk.Container so Disk.Close can
// call back into it without package disk importing package container.
type driverCloser struct{ driver *Driver }

func (c driverCloser) Close(d *disk.Disk) error {
	return c.driver.Close(d)
}

// Open opens path under the driver its suffix selects: sniffs the
// backing file and populates d's tracks, following any redirect the
// driver reports.
func Open(path string, readOnly bool) (*disk.Disk, error) {
	drv, err := driverForPath(path)
	if err != nil {
		return nil, err
	}

	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("container: opening %s: %w", path, err)
	}

	d := disk.New(nil, f, readOnly)
	resolved, err := drv.Open(d, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("container: opening %s as %s: %w", path, drv.Name, err)
	}
	if resolved == nil {
		f.Close()
		return nil, fmt.Errorf("container: %s does not look like a valid %s image", path, drv.Name)
	}
	d.SetContainer(driverCloser{resolved})
	return d, nil
}

// Create initializes a brand-new empty image of the driver path's
// suffix selects.
func Create(path string) (*disk.Disk, error) {
	drv, err := driverForPath(path)
	if err != nil {
		return nil, err
	}
	if drv.Init == nil {
		return nil, fmt.Errorf("container: %s driver does not support creating new images", drv.Name)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("container: creating %s: %w", path, err)
	}
	d := disk.New(nil, f, false)
	drv.Init(d)
	d.SetContainer(driverCloser{drv})
	return d, nil
}

// WriteRaw routes a raw flux capture into tracknr of d through the
// driver that owns d, for drivers with a format-specific path;
// everything else takes the generic handler route.
func WriteRaw(d *disk.Disk, tracknr int, tt trackhandler.TrackType, s stream.Source) error {
	if dc, ok := d.Container.(driverCloser); ok && dc.driver.WriteRaw != nil {
		return dc.driver.WriteRaw(d, tracknr, tt, s)
	}
	return genericWriteRaw(d, tracknr, tt, s)
}

// genericWriteRaw is the shared raw-capture-to-track path used by
// drivers that accept flux captures directly: it (re)initializes
// tracknr to track type tt, invalidates its sectors, and lets tt's
// registered handler decode s into them.
func genericWriteRaw(d *disk.Disk, tracknr int, tt trackhandler.TrackType, s stream.Source) error {
	ti := &d.Info.Tracks[tracknr]
	if ti.Type != tt {
		disk.InitTrackInfo(ti, tt)
	}
	ti.SetAllSectorsInvalid()

	h := trackhandler.Lookup(tt)
	if h == nil || h.WriteRaw == nil {
		return fmt.Errorf("container: no raw decoder registered for track type %s", trackhandler.TypeName(tt))
	}
	if err := h.WriteRaw(d, tracknr, s); err != nil {
		d.MarkUnformatted(tracknr)
		return err
	}
	if ti.TotalBits <= 0 {
		ti.TotalBits = totalBitsFor(h.Density)
	}
	return nil
}

// totalBitsFor scales the nominal DD revolution length to a handler's
// density.
func totalBitsFor(density trackhandler.Density) int32 {
	switch density {
	case trackhandler.Single:
		return defaultBitsPerTrack / 2
	case trackhandler.High:
		return defaultBitsPerTrack * 2
	case trackhandler.Extra:
		return defaultBitsPerTrack * 4
	default:
		return defaultBitsPerTrack
	}
}

// rawBufferSource wraps one already-materialized trackraw.TrackRaw as a
// stream.TrackMaterializer, letting a standalone raw buffer (e.g. one
// just read out of an eADF file) be decoded through
// stream.NewImageReplaySource without tying it to a whole disk.Disk.
type rawBufferSource struct {
	raw *trackraw.TrackRaw
}

func (r rawBufferSource) MaterializeTrack(tracknr int) (*trackraw.TrackRaw, error) {
	return r.raw, nil
}

// decodeRawTrack runs tt's registered handler over raw's bit-cells,
// committing whatever sectors it recovers into tracknr of d.
func decodeRawTrack(d *disk.Disk, tracknr int, tt trackhandler.TrackType, raw *trackraw.TrackRaw) error {
	disk.InitTrackInfo(&d.Info.Tracks[tracknr], tt)
	d.Info.Tracks[tracknr].SetAllSectorsInvalid()

	h := trackhandler.Lookup(tt)
	if h == nil || h.WriteRaw == nil {
		return fmt.Errorf("container: no raw decoder registered for track type %s", trackhandler.TypeName(tt))
	}

	src := stream.NewImageReplaySource(rawBufferSource{raw})
	src.SetDensity(int(defaultBitsPerTrack * 2000 / raw.BitLen()))
	if err := src.SelectTrack(tracknr); err != nil {
		return err
	}
	return h.WriteRaw(d, tracknr, src)
}
