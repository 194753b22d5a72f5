package container

import (
	"fmt"
	"io"
	"os"

	"github.com/halvarsson/fluxcore/disk"
	"github.com/halvarsson/fluxcore/trackhandler"

	// Registers the Apple II 6-and-2 GCR scanner this container relies
	// on (trackhandler.Register runs from its package init).
	_ "github.com/halvarsson/fluxcore/appleiigcr"
)

// Apple II logical/DO/PO containers: all three share the
// same decoded 16-sector-per-track geometry and differ only in the
// physical-to-output sector permutation applied on close. They are not
// selected by file suffix (Apple II images carry no suffix convention
// distinguishing the three); callers pick one by name via OpenAs/CreateAs.
const (
	appleIINrCylinders     = 35
	appleIINrPhysTracks    = appleIINrCylinders * 2 // half-track addressed; the GCR scanner sees tracknr/2
	appleIISectorsPerTrack = 16
	appleIIBytesPerSector  = 256
)

// AppleIIExtraData holds one driver's 16-entry sector permutation
// table: output position table[i] receives decoded physical sector i's
// data.
type AppleIIExtraData struct {
	SectorTranslate [appleIISectorsPerTrack]int
}

var (
	appleIILogicalTranslate = AppleIIExtraData{SectorTranslate: [appleIISectorsPerTrack]int{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
	}}
	appleIIDOSTranslate = AppleIIExtraData{SectorTranslate: [appleIISectorsPerTrack]int{
		0x00, 0x07, 0x0E, 0x06, 0x0D, 0x05, 0x0C, 0x04,
		0x0B, 0x03, 0x0A, 0x02, 0x09, 0x01, 0x08, 0x0F,
	}}
	appleIIProDOSTranslate = AppleIIExtraData{SectorTranslate: [appleIISectorsPerTrack]int{
		0x00, 0x08, 0x01, 0x09, 0x02, 0x0A, 0x03, 0x0B,
		0x04, 0x0C, 0x05, 0x0D, 0x06, 0x0E, 0x07, 0x0F,
	}}
)

func init() {
	registerAppleII("appleII_logical", &appleIILogicalTranslate)
	registerAppleII("appleII_do", &appleIIDOSTranslate)
	registerAppleII("appleII_po", &appleIIProDOSTranslate)
}

func registerAppleII(name string, extra *AppleIIExtraData) {
	Drivers[name] = &Driver{
		Name:      name,
		Init:      appleIIInit,
		Open:      appleIIOpen,
		Close:     func(d *disk.Disk) error { return appleIIClose(d, extra) },
		ExtraData: extra,
	}
}

func appleIIInit(d *disk.Disk) {
	d.Info = disk.NewDiskInfo(appleIINrPhysTracks)
	for cyl := 0; cyl < appleIINrCylinders; cyl++ {
		disk.InitTrackInfo(&d.Info.Tracks[cyl*2], trackhandler.AppleII16Sector)
		d.Info.Tracks[cyl*2].TotalBits = defaultBitsPerTrack / 2 // single density
	}
}

// appleIIOpen is intentionally unsupported: these drivers only ever
// write a logical-sector dump out of a disk already decoded by the
// appleiigcr scanner.
func appleIIOpen(d *disk.Disk, f *os.File) (*Driver, error) {
	return nil, fmt.Errorf("container: appleII logical-sector containers do not support opening")
}

func appleIIClose(d *disk.Disk, extra *AppleIIExtraData) error {
	if _, err := d.File.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := d.File.Truncate(0); err != nil {
		return err
	}

	translated := make([]byte, appleIISectorsPerTrack*appleIIBytesPerSector)
	for cyl := 0; cyl < appleIINrCylinders; cyl++ {
		ti := &d.Info.Tracks[cyl*2]
		for i := 0; i < appleIISectorsPerTrack; i++ {
			dstSec := extra.SectorTranslate[i]
			src := ti.Dat[i*appleIIBytesPerSector : (i+1)*appleIIBytesPerSector]
			copy(translated[dstSec*appleIIBytesPerSector:(dstSec+1)*appleIIBytesPerSector], src)
		}
		if _, err := d.File.Write(translated); err != nil {
			return fmt.Errorf("writing cylinder %d: %w", cyl, err)
		}
	}
	return nil
}

// OpenAs opens path under the explicitly named driver (bypassing
// suffix dispatch), for containers like appleII_logical/do/po that
// have no suffix convention of their own.
func OpenAs(driverName, path string, readOnly bool) (*disk.Disk, error) {
	drv, ok := Drivers[driverName]
	if !ok {
		return nil, fmt.Errorf("container: unknown driver %q", driverName)
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
		return nil, fmt.Errorf("container: %s does not support opening as %s", path, drv.Name)
	}
	d.SetContainer(driverCloser{resolved})
	return d, nil
}

// CreateAs initializes a brand-new empty image under the explicitly
// named driver.
func CreateAs(driverName, path string) (*disk.Disk, error) {
	drv, ok := Drivers[driverName]
	if !ok {
		return nil, fmt.Errorf("container: unknown driver %q", driverName)
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
