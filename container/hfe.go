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

// HFE v1 (HxC Floppy Emulator): a 512-byte header, a track lookup
// table, then per-cylinder raw MFM bitcell data in 512-byte blocks
// (side 0 in the first 256 bytes of each block, side 1 in the second),
// with every byte stored LSB-first. Tracks decode and re-encode
// through the track-handler registry like every other raw container.
const (
	hfeSignature   = "HXCPICFE"
	hfeBlockSize   = 512
	hfeNrCylinders = 80

	ifmIBMPCDD = 0
	ifmIBMPCHD = 1
	ifmIBMPCED = 8
)

func init() {
	register("hfe", &Driver{
		Name:     "hfe",
		Init:     hfeInit,
		Open:     hfeOpen,
		Close:    hfeClose,
		WriteRaw: genericWriteRaw,
	})
}

// bitReverse flips a byte between the LSB-first order HFE stores and
// the MSB-first order TrackRaw uses.
func bitReverse(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		r = r<<1 | b&1
		b >>= 1
	}
	return r
}

func hfeInit(d *disk.Disk) {
	d.Info = disk.NewDiskInfo(hfeNrCylinders * 2)
	for i := range d.Info.Tracks {
		ti := &d.Info.Tracks[i]
		disk.InitTrackInfo(ti, trackhandler.IBMPCDD)
		ti.DataBitOff = 80 * 16
		ti.TotalBits = defaultBitsPerTrack
	}
}

// hfeTrackType maps the header's bit rate to the IBM PC track type the
// registry decodes it with.
func hfeTrackType(bitRateKbps uint16) trackhandler.TrackType {
	switch {
	case bitRateKbps < 375:
		return trackhandler.IBMPCDD
	case bitRateKbps < 750:
		return trackhandler.IBMPCHD
	default:
		return trackhandler.IBMPCED
	}
}

func hfeOpen(d *disk.Disk, f *os.File) (*Driver, error) {
	hdr := make([]byte, 26)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if string(hdr[0:8]) != hfeSignature || hdr[8] != 0 {
		return nil, fmt.Errorf("not an HFE v1 image")
	}
	nrCylinders := int(hdr[9])
	nrSides := int(hdr[10])
	bitRate := binary.LittleEndian.Uint16(hdr[12:14])
	trackListOffset := int64(binary.LittleEndian.Uint16(hdr[18:20])) * hfeBlockSize
	if nrCylinders == 0 || nrSides == 0 || bitRate == 0 {
		return nil, fmt.Errorf("bad HFE geometry: %d cylinders, %d sides, %d kbps", nrCylinders, nrSides, bitRate)
	}

	if _, err := f.Seek(trackListOffset, io.SeekStart); err != nil {
		return nil, err
	}
	lut := make([]byte, nrCylinders*4)
	if _, err := io.ReadFull(f, lut); err != nil {
		return nil, fmt.Errorf("reading track list: %w", err)
	}

	tt := hfeTrackType(bitRate)
	d.Info = disk.NewDiskInfo(nrCylinders * 2)

	for cyl := 0; cyl < nrCylinders; cyl++ {
		offset := int64(binary.LittleEndian.Uint16(lut[cyl*4:])) * hfeBlockSize
		trackLen := int(binary.LittleEndian.Uint16(lut[cyl*4+2:]))
		if trackLen == 0 {
			continue
		}
		padded := (trackLen + hfeBlockSize - 1) &^ (hfeBlockSize - 1)
		buf := make([]byte, padded)
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("reading cylinder %d: %w", cyl, err)
		}

		for side := 0; side < nrSides; side++ {
			bits := demuxHFESide(buf, side)
			raw := trackraw.New(len(bits) * 8)
			copy(raw.Bits, bits)
			for j := range raw.Speed {
				raw.Speed[j] = 1000
			}
			tracknr := cyl*2 + side
			if err := decodeRawTrack(d, tracknr, tt, raw); err != nil {
				continue // no sectors recovered: track stays unformatted
			}
			d.Info.Tracks[tracknr].TotalBits = int32(raw.BitLen())
		}
	}

	return Drivers["hfe"], nil
}

// demuxHFESide extracts one side's bitcell stream from a cylinder's
// interleaved 512-byte blocks, converting each byte to MSB-first.
func demuxHFESide(buf []byte, side int) []byte {
	bits := make([]byte, 0, len(buf)/2)
	for block := 0; block+hfeBlockSize <= len(buf); block += hfeBlockSize {
		half := buf[block+side*256 : block+side*256+256]
		for _, b := range half {
			bits = append(bits, bitReverse(b))
		}
	}
	return bits
}

// muxHFESides interleaves two sides' MSB-first bitcell streams into
// HFE's 512-byte block layout, LSB-first per byte.
func muxHFESides(side0, side1 []byte) []byte {
	half := len(side0)
	if len(side1) > half {
		half = len(side1)
	}
	half = (half + 255) &^ 255
	out := make([]byte, half*2)
	for i := 0; i < half; i++ {
		block := (i / 256) * hfeBlockSize
		k := i % 256
		if i < len(side0) {
			out[block+k] = bitReverse(side0[i])
		}
		if i < len(side1) {
			out[block+256+k] = bitReverse(side1[i])
		}
	}
	return out
}

func hfeClose(d *disk.Disk) error {
	nrCylinders := (len(d.Info.Tracks) + 1) / 2
	if nrCylinders > 255 {
		return fmt.Errorf("too many cylinders for HFE (%d)", nrCylinders)
	}

	bitRate := uint16(250)
	ifm := byte(ifmIBMPCDD)
	for i := range d.Info.Tracks {
		ti := &d.Info.Tracks[i]
		if ti.TotalBits <= 0 {
			continue
		}
		switch ti.Type {
		case trackhandler.IBMPCHD, trackhandler.IBMPCSiemensISDX:
			bitRate, ifm = 500, ifmIBMPCHD
		case trackhandler.IBMPCED:
			bitRate, ifm = 1000, ifmIBMPCED
		}
		break
	}

	hdr := make([]byte, hfeBlockSize)
	for i := range hdr {
		hdr[i] = 0xFF
	}
	copy(hdr[0:8], hfeSignature)
	hdr[8] = 0 // format revision
	hdr[9] = byte(nrCylinders)
	hdr[10] = 2 // sides
	hdr[11] = 0 // ISOIBM MFM encoding
	binary.LittleEndian.PutUint16(hdr[12:14], bitRate)
	binary.LittleEndian.PutUint16(hdr[14:16], 300)
	hdr[16] = ifm
	hdr[17] = 0xFF // not write protected
	binary.LittleEndian.PutUint16(hdr[18:20], 1)
	hdr[20], hdr[21] = 0xFF, 0xFF
	hdr[22], hdr[23] = 0xFF, 0
	hdr[24], hdr[25] = 0xFF, 0

	lutBlocks := (nrCylinders*4 + hfeBlockSize - 1) / hfeBlockSize
	lut := make([]byte, lutBlocks*hfeBlockSize)
	for i := range lut {
		lut[i] = 0xFF
	}

	var body []byte
	nextBlock := 1 + lutBlocks
	for cyl := 0; cyl < nrCylinders; cyl++ {
		side0 := hfeSideBits(d, cyl*2)
		side1 := hfeSideBits(d, cyl*2+1)
		if side0 == nil && side1 == nil {
			binary.LittleEndian.PutUint16(lut[cyl*4:], 0)
			binary.LittleEndian.PutUint16(lut[cyl*4+2:], 0)
			continue
		}
		muxed := muxHFESides(side0, side1)
		binary.LittleEndian.PutUint16(lut[cyl*4:], uint16(nextBlock))
		binary.LittleEndian.PutUint16(lut[cyl*4+2:], uint16(len(muxed)))
		padded := (len(muxed) + hfeBlockSize - 1) &^ (hfeBlockSize - 1)
		block := make([]byte, padded)
		copy(block, muxed)
		body = append(body, block...)
		nextBlock += padded / hfeBlockSize
	}

	if _, err := d.File.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := d.File.Truncate(0); err != nil {
		return err
	}
	if _, err := d.File.Write(hdr); err != nil {
		return err
	}
	if _, err := d.File.Write(lut); err != nil {
		return err
	}
	if _, err := d.File.Write(body); err != nil {
		return err
	}
	return nil
}

// hfeSideBits materializes one physical track as its packed MSB-first
// bitcell bytes, or nil for an unformatted track.
func hfeSideBits(d *disk.Disk, tracknr int) []byte {
	if tracknr >= len(d.Info.Tracks) || d.Info.Tracks[tracknr].TotalBits <= 0 {
		return nil
	}
	raw, err := d.MaterializeTrack(tracknr)
	if err != nil {
		return nil
	}
	return raw.Bits
}
