package container

import (
	"fmt"
	"io"
	"os"

	"github.com/halvarsson/fluxcore/disk"
	"github.com/halvarsson/fluxcore/trackhandler"
)

// IMG container: a flat dump of IBM-MFM logical sector contents, one
// of four recognised exact sizes.
const imgNrTracks = 160

func init() {
	drv := &Driver{
		Name:  "img",
		Init:  imgInit,
		Open:  imgOpen,
		Close: imgClose,
	}
	register("img", drv)
	register("ima", drv)
}

func imgInit(d *disk.Disk) {
	d.Info = disk.NewDiskInfo(imgNrTracks)
	for i := range d.Info.Tracks {
		ti := &d.Info.Tracks[i]
		disk.InitTrackInfo(ti, trackhandler.IBMPCDD)
		ti.DataBitOff = 80 * 16
		ti.TotalBits = defaultBitsPerTrack
	}
}

var imgSizeTable = []struct {
	size int64
	tt   trackhandler.TrackType
}{
	{imgNrTracks * 512 * 9, trackhandler.IBMPCDD},
	{imgNrTracks * 512 * 18, trackhandler.IBMPCHD},
	{imgNrTracks * 512 * 36, trackhandler.IBMPCED},
	{imgNrTracks * 256 * 32, trackhandler.IBMPCSiemensISDX},
}

// imgOpen recognises the four exact sizes and maps each to its track
// type; HD and Siemens ISDX double the revolution bit count, ED
// quadruples it.
func imgOpen(d *disk.Disk, f *os.File) (*Driver, error) {
	sz, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}

	var tt trackhandler.TrackType
	found := false
	for _, e := range imgSizeTable {
		if e.size == sz {
			tt, found = e.tt, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("IMG file bad size: %d bytes", sz)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	d.Info = disk.NewDiskInfo(imgNrTracks)
	for i := 0; i < imgNrTracks; i++ {
		ti := &d.Info.Tracks[i]
		disk.InitTrackInfo(ti, tt)
		ti.SetAllSectorsValid()
		ti.DataBitOff = 80 * 16 // IAM offset
		ti.TotalBits = defaultBitsPerTrack
		switch tt {
		case trackhandler.IBMPCHD, trackhandler.IBMPCSiemensISDX:
			ti.TotalBits *= 2
		case trackhandler.IBMPCED:
			ti.TotalBits *= 4
		}
		if _, err := io.ReadFull(f, ti.Dat); err != nil {
			return nil, fmt.Errorf("reading track %d: %w", i, err)
		}
	}

	return Drivers["img"], nil
}

func imgClose(d *disk.Disk) error {
	if len(d.Info.Tracks) != imgNrTracks {
		return fmt.Errorf("incorrect number of tracks to write to IMG file (%d)", len(d.Info.Tracks))
	}
	if _, err := d.File.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := d.File.Truncate(0); err != nil {
		return err
	}
	for i := range d.Info.Tracks {
		if _, err := d.File.Write(d.Info.Tracks[i].Dat); err != nil {
			return fmt.Errorf("writing track %d: %w", i, err)
		}
	}
	return nil
}
