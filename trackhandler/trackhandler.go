// Package trackhandler is the compile-time, tagged-dispatch registry of
// per-format track handlers: one entry per on-disk track encoding, each
// owning raw read/write and optional sector-level read/write.
package trackhandler

import (
	"github.com/halvarsson/fluxcore/stream"
	"github.com/halvarsson/fluxcore/tbuf"
)

// TrackType discriminates the on-disk encoding of a track.
type TrackType int

const (
	Unformatted TrackType = iota
	AmigaDOS
	IBMPCDD
	IBMPCHD
	IBMPCED
	IBMPCSiemensISDX
	AppleII16Sector
	AppleII13Sector
)

// Density selects the nanosecond-per-cell nominal clock for a track.
type Density int

const (
	Single Density = iota
	Double
	High
	Extra
)

// NsPerCell returns the nominal bit-cell period for a density.
func (d Density) NsPerCell() int {
	switch d {
	case Single:
		return 4000
	case Double:
		return 2000
	case High:
		return 1000
	case Extra:
		return 500
	default:
		return 2000
	}
}

// RawDisk is the minimal view of a disk a handler needs: per-track
// payload storage and metadata. It is satisfied by *disk.Disk.
type RawDisk interface {
	TrackLen(tracknr int) int
	TrackDat(tracknr int) []byte
	SetTrackDat(tracknr int, dat []byte)
	SetSectorValid(tracknr, sector int)
	IsSectorValid(tracknr, sector int) bool
	SetAllSectorsInvalid(tracknr int)
}

// Handler is one entry of the track-handler registry.
type Handler struct {
	Density        Density
	NrSectors      int
	BytesPerSector int

	// WriteRaw decodes a raw bit stream into sectors, writing validated
	// sector payload into d's track tracknr and returning an error if no
	// sector could be recovered.
	WriteRaw func(d RawDisk, tracknr int, s stream.Source) error

	// ReadRaw encodes d's decoded sector payload for tracknr into tb as
	// raw bit-cells; the caller lays down the write splice afterwards
	// with tb.Finalise.
	ReadRaw func(d RawDisk, tracknr int, tb *tbuf.Tbuf)

	// ReadSectors/WriteSectors are optional: present only for handlers
	// whose container persists logical sectors rather than raw bits.
	ReadSectors  func(d RawDisk, tracknr int) ([]byte, int, error)
	WriteSectors func(d RawDisk, tracknr int, dat []byte) error

	// ExtraData holds handler-specific constants (sync marks, GCR
	// tables, postambles); opaque to the registry.
	ExtraData any
}

var (
	registry = map[TrackType]*Handler{}
	typeName = map[TrackType]string{
		Unformatted:      "unformatted",
		AmigaDOS:         "amigados",
		IBMPCDD:          "ibm_pc_dd",
		IBMPCHD:          "ibm_pc_hd",
		IBMPCED:          "ibm_pc_ed",
		IBMPCSiemensISDX: "ibm_pc_siemens_isdx",
		AppleII16Sector:  "appleii_16sector",
		AppleII13Sector:  "appleii_13sector",
	}
)

// Register installs a handler for the given track type. It is intended
// to be called from package init() functions of format packages, never
// at runtime: the registry is a read-only process-wide constant once
// program start-up completes.
func Register(t TrackType, h *Handler) {
	registry[t] = h
}

// Lookup returns the handler for t, or nil if none is registered.
func Lookup(t TrackType) *Handler {
	return registry[t]
}

// TypeName returns the human-readable name for t.
func TypeName(t TrackType) string {
	if name, ok := typeName[t]; ok {
		return name
	}
	return "unknown"
}
