// Package disk holds the in-memory disk image: a fixed array of tracks,
// each owning decoded sector payload plus a validity bitmap, and the
// small ordered tag list format handlers use for auxiliary metadata.
package disk

import (
	"fmt"
	"os"

	"github.com/halvarsson/fluxcore/tbuf"
	"github.com/halvarsson/fluxcore/trackhandler"
	"github.com/halvarsson/fluxcore/trackraw"
)

// TrkWeak is the sentinel TotalBits value marking a track unformatted or
// weak: no raw buffer is allocated for it.
const TrkWeak int32 = -1

// validSectorsWidth is the bitmap width in bytes; a handler's sector
// count must fit within it.
const validSectorsWidth = 8

// TrackInfo is the per-physical-track record.
type TrackInfo struct {
	Type           trackhandler.TrackType
	TypeName       string
	Dat            []byte
	Len            int
	NrSectors      int
	BytesPerSector int
	ValidSectors   [validSectorsWidth]byte
	DataBitOff     int
	TotalBits      int32 // <= 0 marks unformatted/weak (see TrkWeak)
}

// IsValidSector reports whether sector was successfully decoded.
func (ti *TrackInfo) IsValidSector(sector int) bool {
	if sector < 0 || sector >= ti.NrSectors {
		panic(fmt.Sprintf("disk: sector %d out of range [0,%d)", sector, ti.NrSectors))
	}
	return (ti.ValidSectors[sector>>3]>>uint(^sector&7))&1 != 0
}

// SetSectorValid marks sector as successfully decoded.
func (ti *TrackInfo) SetSectorValid(sector int) {
	if sector < 0 || sector >= ti.NrSectors {
		panic(fmt.Sprintf("disk: sector %d out of range [0,%d)", sector, ti.NrSectors))
	}
	ti.ValidSectors[sector>>3] |= 0x80 >> uint(sector&7)
}

// SetSectorInvalid clears sector's validity bit.
func (ti *TrackInfo) SetSectorInvalid(sector int) {
	if sector < 0 || sector >= ti.NrSectors {
		panic(fmt.Sprintf("disk: sector %d out of range [0,%d)", sector, ti.NrSectors))
	}
	ti.ValidSectors[sector>>3] &^= 0x80 >> uint(sector&7)
}

// SetAllSectorsValid sets every bit in [0, NrSectors).
func (ti *TrackInfo) SetAllSectorsValid() {
	ti.SetAllSectorsInvalid()
	for s := 0; s < ti.NrSectors; s++ {
		ti.SetSectorValid(s)
	}
}

// SetAllSectorsInvalid clears the whole bitmap.
func (ti *TrackInfo) SetAllSectorsInvalid() {
	for i := range ti.ValidSectors {
		ti.ValidSectors[i] = 0
	}
}

// InitTrackInfo resets ti to the freshly-initialized state for track
// type t: typename, sector geometry, and payload buffer sized to
// bytes_per_sector * nr_sectors, per the handler registered for t.
func InitTrackInfo(ti *TrackInfo, t trackhandler.TrackType) {
	h := trackhandler.Lookup(t)
	*ti = TrackInfo{Type: t, TypeName: trackhandler.TypeName(t)}
	if h == nil {
		return
	}
	if h.NrSectors > validSectorsWidth*8 {
		panic(fmt.Sprintf("disk: track type %s has %d sectors, exceeds bitmap width", trackhandler.TypeName(t), h.NrSectors))
	}
	ti.NrSectors = h.NrSectors
	ti.BytesPerSector = h.BytesPerSector
	ti.Len = h.BytesPerSector * h.NrSectors
	ti.Dat = make([]byte, ti.Len)
}

// DiskInfo is the fixed-count array of tracks comprising one disk image.
type DiskInfo struct {
	Tracks []TrackInfo
}

// NewDiskInfo allocates a DiskInfo of nrTracks tracks, each initialized
// unformatted.
func NewDiskInfo(nrTracks int) *DiskInfo {
	di := &DiskInfo{Tracks: make([]TrackInfo, nrTracks)}
	for i := range di.Tracks {
		InitTrackInfo(&di.Tracks[i], trackhandler.Unformatted)
		di.Tracks[i].TotalBits = TrkWeak
	}
	return di
}

// Tag is one opaque, unique-by-id blob in a Disk's tag list.
type Tag struct {
	ID   uint16
	Data []byte
}

// Container is the minimal callback surface a Disk needs from its
// container driver: closing re-serializes the image to the backing
// file. Disk does not otherwise know about container internals,
// avoiding an import cycle with package container.
type Container interface {
	Close(d *Disk) error
}

// Disk is the top-level aggregate: one DiskInfo, a handle to the
// backing file, and the tag list.
type Disk struct {
	Info      *DiskInfo
	File      *os.File
	ReadOnly  bool
	Container Container

	tags []Tag
}

// New wraps info and file into a Disk. Container may be nil until the
// container driver finishes opening and calls SetContainer.
func New(info *DiskInfo, file *os.File, readOnly bool) *Disk {
	return &Disk{Info: info, File: file, ReadOnly: readOnly}
}

// SetContainer records the container that owns this Disk's on-close
// serialization.
func (d *Disk) SetContainer(c Container) {
	d.Container = c
}

// Close flushes (unless read-only) via the owning container, then
// closes the backing file.
func (d *Disk) Close() error {
	var err error
	if !d.ReadOnly && d.Container != nil {
		err = d.Container.Close(d)
	}
	if d.File != nil {
		if cerr := d.File.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Tag returns the data previously stored under id, if any.
func (d *Disk) Tag(id uint16) ([]byte, bool) {
	for _, t := range d.tags {
		if t.ID == id {
			return t.Data, true
		}
	}
	return nil, false
}

// SetTag inserts or replaces the tag for id, keeping the list ordered
// by id.
func (d *Disk) SetTag(id uint16, data []byte) {
	cp := append([]byte(nil), data...)
	for i, t := range d.tags {
		if t.ID == id {
			d.tags[i].Data = cp
			return
		}
		if t.ID > id {
			d.tags = append(d.tags, Tag{})
			copy(d.tags[i+1:], d.tags[i:])
			d.tags[i] = Tag{ID: id, Data: cp}
			return
		}
	}
	d.tags = append(d.tags, Tag{ID: id, Data: cp})
}

// MarkUnformatted resets tracknr to unformatted with the weak-bits
// sentinel, the state a track falls back to after a failed decode.
func (d *Disk) MarkUnformatted(tracknr int) {
	ti := &d.Info.Tracks[tracknr]
	InitTrackInfo(ti, trackhandler.Unformatted)
	ti.TotalBits = TrkWeak
}

// MaterializeTrack synthesizes the raw-bit representation of tracknr's
// currently decoded sector payload by invoking its handler's ReadRaw,
// satisfying stream.TrackMaterializer for ImageReplaySource.
func (d *Disk) MaterializeTrack(tracknr int) (*trackraw.TrackRaw, error) {
	if tracknr < 0 || tracknr >= len(d.Info.Tracks) {
		return nil, fmt.Errorf("disk: track %d out of range", tracknr)
	}
	ti := &d.Info.Tracks[tracknr]
	if ti.TotalBits <= 0 {
		return nil, fmt.Errorf("disk: track %d is unformatted", tracknr)
	}
	h := trackhandler.Lookup(ti.Type)
	if h == nil || h.ReadRaw == nil {
		return nil, fmt.Errorf("disk: track %d: no raw encoder for type %s", tracknr, trackhandler.TypeName(ti.Type))
	}
	raw := trackraw.New(int(ti.TotalBits))
	tb := tbuf.Init(raw, ti.DataBitOff)
	h.ReadRaw(d, tracknr, tb)
	tb.Finalise()
	return raw, nil
}

// TrackLen, TrackDat, SetTrackDat, SetSectorValid, IsSectorValid and
// SetAllSectorsInvalid satisfy trackhandler.RawDisk.

func (d *Disk) TrackLen(tracknr int) int {
	return d.Info.Tracks[tracknr].Len
}

func (d *Disk) TrackDat(tracknr int) []byte {
	return d.Info.Tracks[tracknr].Dat
}

func (d *Disk) SetTrackDat(tracknr int, dat []byte) {
	ti := &d.Info.Tracks[tracknr]
	ti.Dat = dat
	ti.Len = len(dat)
}

func (d *Disk) SetSectorValid(tracknr, sector int) {
	d.Info.Tracks[tracknr].SetSectorValid(sector)
}

func (d *Disk) IsSectorValid(tracknr, sector int) bool {
	return d.Info.Tracks[tracknr].IsValidSector(sector)
}

func (d *Disk) SetAllSectorsInvalid(tracknr int) {
	d.Info.Tracks[tracknr].SetAllSectorsInvalid()
}
