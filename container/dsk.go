package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/halvarsson/fluxcore/disk"
	"github.com/halvarsson/fluxcore/trackhandler"
	"github.com/halvarsson/fluxcore/trackraw"
)

// DSK is the generic internal raw-track container: a
// whole-track-count header followed, per track, by its declared
// on-disk type and its raw bit-cell buffer. Unlike ADF/IMG it stores
// raw bits rather than decoded sectors, so it can hold any track type
// the registry knows about rather than one fixed format.
func init() {
	register("dsk", &Driver{
		Name:     "dsk",
		Init:     dskInit,
		Open:     dskOpen,
		Close:    dskClose,
		WriteRaw: genericWriteRaw,
	})
}

const dskDefaultNrTracks = 168 // 84 cylinders × 2, a generic upper bound

func dskInit(d *disk.Disk) {
	d.Info = disk.NewDiskInfo(dskDefaultNrTracks)
}

func dskOpen(d *disk.Disk, f *os.File) (*Driver, error) {
	var nrTracks uint32
	if err := binary.Read(f, binary.BigEndian, &nrTracks); err != nil {
		return nil, fmt.Errorf("reading track count: %w", err)
	}
	d.Info = disk.NewDiskInfo(int(nrTracks))

	for i := range d.Info.Tracks {
		var tt uint32
		if err := binary.Read(f, binary.BigEndian, &tt); err != nil {
			return nil, fmt.Errorf("reading track %d type: %w", i, err)
		}
		var bitlen uint32
		if err := binary.Read(f, binary.BigEndian, &bitlen); err != nil {
			return nil, fmt.Errorf("reading track %d length: %w", i, err)
		}
		if trackhandler.TrackType(tt) == trackhandler.Unformatted || bitlen == 0 {
			disk.InitTrackInfo(&d.Info.Tracks[i], trackhandler.Unformatted)
			continue
		}

		raw := trackraw.New(int(bitlen))
		if _, err := io.ReadFull(f, raw.Bits); err != nil {
			return nil, fmt.Errorf("reading track %d bits: %w", i, err)
		}
		for j := range raw.Speed {
			raw.Speed[j] = 1000
		}
		if err := decodeRawTrack(d, i, trackhandler.TrackType(tt), raw); err != nil {
			continue // no sectors recovered: track stays unformatted
		}
		d.Info.Tracks[i].TotalBits = int32(bitlen)
	}

	return Drivers["dsk"], nil
}

func dskClose(d *disk.Disk) error {
	if _, err := d.File.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := d.File.Truncate(0); err != nil {
		return err
	}
	if err := binary.Write(d.File, binary.BigEndian, uint32(len(d.Info.Tracks))); err != nil {
		return err
	}
	for i := range d.Info.Tracks {
		ti := &d.Info.Tracks[i]
		if ti.TotalBits <= 0 {
			if err := binary.Write(d.File, binary.BigEndian, uint32(trackhandler.Unformatted)); err != nil {
				return err
			}
			if err := binary.Write(d.File, binary.BigEndian, uint32(0)); err != nil {
				return err
			}
			continue
		}
		raw, err := d.MaterializeTrack(i)
		if err != nil {
			return fmt.Errorf("materializing track %d: %w", i, err)
		}
		if err := binary.Write(d.File, binary.BigEndian, uint32(ti.Type)); err != nil {
			return err
		}
		if err := binary.Write(d.File, binary.BigEndian, uint32(raw.BitLen())); err != nil {
			return err
		}
		if _, err := d.File.Write(raw.Bits); err != nil {
			return fmt.Errorf("writing track %d bits: %w", i, err)
		}
	}
	return nil
}
