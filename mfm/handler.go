package mfm

import (
	"fmt"

	"github.com/halvarsson/fluxcore/bits"
	"github.com/halvarsson/fluxcore/stream"
	"github.com/halvarsson/fluxcore/tbuf"
	"github.com/halvarsson/fluxcore/trackhandler"
)

// ibmSyncWord is the MFM-illegal 0xA1 sync cell (clock bit forced low),
// expressed as its 16 raw bit-cells. AmigaDOS sector headers open with
// the same cell written back-to-back, so the Amiga scanner keys on the
// full 32-bit double pattern.
const (
	ibmSyncWord     = 0x4489
	ibmIDAMTag      = 0xFE
	ibmDAMTag       = 0xFB
	amigaSync       = 0x4489
	amigaDoubleSync = 0x44894489
)

// warn reports recoverable per-sector conditions; callers may redirect
// it.
var warn = func(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

func init() {
	ibm := func(t trackhandler.TrackType, density trackhandler.Density, nrSectors, bytesPerSector int) {
		trackhandler.Register(t, &trackhandler.Handler{
			Density:        density,
			NrSectors:      nrSectors,
			BytesPerSector: bytesPerSector,
			WriteRaw: func(d trackhandler.RawDisk, tracknr int, s stream.Source) error {
				return ibmWriteRaw(d, tracknr, s, nrSectors, bytesPerSector)
			},
			ReadRaw: func(d trackhandler.RawDisk, tracknr int, tb *tbuf.Tbuf) {
				ibmReadRaw(d, tracknr, tb, nrSectors, bytesPerSector)
			},
		})
	}
	ibm(trackhandler.IBMPCDD, trackhandler.Double, 9, 512)
	ibm(trackhandler.IBMPCHD, trackhandler.High, 18, 512)
	ibm(trackhandler.IBMPCED, trackhandler.Extra, 36, 512)
	ibm(trackhandler.IBMPCSiemensISDX, trackhandler.High, 32, 256)

	trackhandler.Register(trackhandler.AmigaDOS, &trackhandler.Handler{
		Density:        trackhandler.Double,
		NrSectors:      11,
		BytesPerSector: 512,
		WriteRaw:       amigaWriteRaw,
		ReadRaw:        amigaReadRaw,
	})
}

// syncScan advances s one raw bit at a time until its 32-bit shift
// register holds sync in its low 16 bits, or the stream runs out. The
// comparison happens on raw bit-cells: the sync pattern is chosen
// precisely because it cannot occur inside ordinarily MFM-encoded data.
func syncScan(s stream.Source, sync uint32) bool {
	for {
		if s.NextBit() == stream.EOS {
			return false
		}
		if s.Word()&0xFFFF == sync {
			return true
		}
	}
}

// nextMarkByte consumes any further whole sync words following the one
// syncScan landed on (real media carries several in a row) and decodes
// the first non-sync 16 raw bit-cells as the mark tag byte.
func nextMarkByte(s stream.Source, sync uint32) (byte, bool) {
	for {
		w, err := s.NextBits(16)
		if err != nil {
			return 0, false
		}
		if w != sync {
			return mfmDecodeByte(w), true
		}
	}
}

// mfmDecodeByte extracts the 8 data half-bits from 16 raw MFM
// bit-cells (clock/data pairs, MSB-first).
func mfmDecodeByte(w uint32) byte {
	var b byte
	for i := 14; i >= 0; i -= 2 {
		b = b<<1 | byte((w>>uint(i))&1)
	}
	return b
}

// dataBit reads one ordinarily-MFM-encoded data bit: the clock half is
// discarded, the data half is returned.
func dataBit(s stream.Source) (int, error) {
	if s.NextBit() == stream.EOS {
		return 0, fmt.Errorf("mfm: end of stream reading clock half-bit")
	}
	d := s.NextBit()
	if d == stream.EOS {
		return 0, fmt.Errorf("mfm: end of stream reading data half-bit")
	}
	return d, nil
}

// dataBits reads n ordinarily-MFM-encoded data bits MSB-first.
func dataBits(s stream.Source, n int) (uint32, error) {
	var w uint32
	for i := 0; i < n; i++ {
		b, err := dataBit(s)
		if err != nil {
			return 0, err
		}
		w = (w << 1) | uint32(b)
	}
	return w, nil
}

func dataBytes(s stream.Source, dst []byte) error {
	for i := range dst {
		w, err := dataBits(s, 8)
		if err != nil {
			return err
		}
		dst[i] = byte(w)
	}
	return nil
}

// ---- IBM PC MFM: the same address-mark/sector state machine as the
// Apple II exemplar, keyed on the 0xA1 sync cell and CRC-16-CCITT
// instead of a nibble sync byte and XOR checksum. ----

// maxSyncAttemptsPerSector bounds how many address marks a write_raw scan
// will examine per sector it still needs, relative to the sectors it
// expects to find. A hardware capture genuinely ends (its source returns
// EOS), but a replayed disk image is one circular revolution with no
// natural end, so the loop below cannot rely on EOS alone: it also stops
// once it has seen several revolutions' worth of marks without needing
// another attempt, rather than scanning the same already-valid sectors
// forever.
const maxSyncAttemptsPerSector = 4

func ibmWriteRaw(d trackhandler.RawDisk, tracknr int, s stream.Source, nrSectors, bytesPerSector int) error {
	committed := 0
	attempts := 0
	maxAttempts := nrSectors * maxSyncAttemptsPerSector
	for committed < nrSectors && attempts < maxAttempts {
		attempts++
		if !syncScan(s, ibmSyncWord) {
			break
		}
		tag, ok := nextMarkByte(s, ibmSyncWord)
		if !ok {
			break
		}
		if tag != ibmIDAMTag {
			continue
		}

		hdr := make([]byte, 4)
		if dataBytes(s, hdr) != nil {
			break
		}
		crcWord, err := dataBits(s, 16)
		if err != nil {
			break
		}
		crc := bits.CRC16CCITTByte(0xB230, hdr[0])
		crc = bits.CRC16CCITTByte(crc, hdr[1])
		crc = bits.CRC16CCITTByte(crc, hdr[2])
		crc = bits.CRC16CCITTByte(crc, hdr[3])
		if crc != uint16(crcWord) {
			warn("T%d: bad IDAM CRC", tracknr)
			continue
		}
		cylinder, head, sector := hdr[0], hdr[1], hdr[2]
		if int(cylinder)*2+int(head) != tracknr {
			warn("T%d: header names cylinder %d head %d", tracknr, cylinder, head)
			continue
		}
		if int(sector) < 1 || int(sector) > nrSectors {
			warn("T%d: sector %d out of range", tracknr, sector)
			continue
		}

		if !syncScan(s, ibmSyncWord) {
			break
		}
		dtag, ok := nextMarkByte(s, ibmSyncWord)
		if !ok {
			break
		}
		if dtag != ibmDAMTag {
			warn("T%d S%d: no data mark", tracknr, sector)
			continue
		}
		data := make([]byte, bytesPerSector)
		if dataBytes(s, data) != nil {
			break
		}
		dcrcWord, err := dataBits(s, 16)
		if err != nil {
			break
		}
		dcrc := bits.CRC16CCITTByte(0xCDB4, ibmDAMTag)
		dcrc = bits.CRC16CCITTBytes(dcrc, data)
		if dcrc != uint16(dcrcWord) {
			warn("T%d S%d: bad data CRC", tracknr, sector)
			continue
		}

		secIdx := int(sector) - 1
		if !d.IsSectorValid(tracknr, secIdx) {
			dat := d.TrackDat(tracknr)
			off := secIdx * bytesPerSector
			copy(dat[off:off+bytesPerSector], data)
			d.SetSectorValid(tracknr, secIdx)
			committed++
		}
	}
	if committed == 0 {
		return fmt.Errorf("mfm: no valid IBM PC sectors recovered on track %d", tracknr)
	}
	return nil
}

func ibmReadRaw(d trackhandler.RawDisk, tracknr int, tb *tbuf.Tbuf, nrSectors, bytesPerSector int) {
	cylinder, head := byte(tracknr/2), byte(tracknr%2)
	dat := d.TrackDat(tracknr)

	sizeCode := byte(2) // IBM sector-size code: 512 bytes
	if bytesPerSector == 256 {
		sizeCode = 1
	}
	for sec := 1; sec <= nrSectors; sec++ {
		tb.Gap(1000, 12*8)
		emitIBMSync3(tb)
		hdr := []byte{cylinder, head, byte(sec), sizeCode}
		tb.EmitBytes(1000, tbuf.MFM, []byte{ibmIDAMTag})
		tb.EmitBytes(1000, tbuf.MFM, hdr)
		crc := bits.CRC16CCITTByte(0xB230, hdr[0])
		crc = bits.CRC16CCITTByte(crc, hdr[1])
		crc = bits.CRC16CCITTByte(crc, hdr[2])
		crc = bits.CRC16CCITTByte(crc, hdr[3])
		tb.EmitBits(1000, tbuf.MFM, 16, uint32(crc))

		tb.Gap(1000, 22*8)
		emitIBMSync3(tb)
		tb.EmitBytes(1000, tbuf.MFM, []byte{ibmDAMTag})
		off := (sec - 1) * bytesPerSector
		data := dat[off : off+bytesPerSector]
		tb.EmitBytes(1000, tbuf.MFM, data)
		dcrc := bits.CRC16CCITTByte(0xCDB4, ibmDAMTag)
		dcrc = bits.CRC16CCITTBytes(dcrc, data)
		tb.EmitBits(1000, tbuf.MFM, 16, uint32(dcrc))
	}
}

// emitIBMSync3 emits the three 0xA1 MFM-illegal sync cells (0x4489)
// that introduce every IBM PC address/data field.
func emitIBMSync3(tb *tbuf.Tbuf) {
	for i := 0; i < 3; i++ {
		tb.EmitBits(1000, tbuf.Raw, 16, ibmSyncWord)
	}
}

// ---- AmigaDOS MFM: 11 sectors/track, each a raw double sync mark, an
// MFM odd/even encoded info+label+checksum header, then odd/even
// encoded data + checksum. ----

// amigaSyncScan advances s one raw bit at a time until the shift
// register holds the full back-to-back double sync that introduces
// every AmigaDOS sector header; the info long follows immediately.
func amigaSyncScan(s stream.Source) bool {
	for {
		if s.NextBit() == stream.EOS {
			return false
		}
		if s.Word() == amigaDoubleSync {
			return true
		}
	}
}

func amigaWriteRaw(d trackhandler.RawDisk, tracknr int, s stream.Source) error {
	const nrSectors = 11
	committed := 0
	attempts := 0
	maxAttempts := nrSectors * maxSyncAttemptsPerSector
	for committed < nrSectors && attempts < maxAttempts {
		attempts++
		if !amigaSyncScan(s) {
			break
		}

		infoRaw, err := readMFMOddEvenLong(s)
		if err != nil {
			break
		}
		var label [16]byte
		if readMFMOddEvenBytes(s, label[:]) != nil {
			break
		}
		hdrChecksumRaw, err := readMFMOddEvenLong(s)
		if err != nil {
			break
		}
		dataChecksumRaw, err := readMFMOddEvenLong(s)
		if err != nil {
			break
		}
		var data [512]byte
		if readMFMOddEvenBytes(s, data[:]) != nil {
			break
		}

		words := append([]uint32{infoRaw}, wordsOf(label[:])...)
		if bits.AmigaChecksum(words) != hdrChecksumRaw {
			warn("T%d: bad header checksum", tracknr)
			continue
		}
		track := byte(infoRaw >> 16)
		sector := byte(infoRaw >> 8)
		if int(track) != tracknr || int(sector) >= 11 {
			warn("T%d: header names track %d sector %d", tracknr, track, sector)
			continue
		}
		if bits.AmigaChecksum(wordsOf(data[:])) != dataChecksumRaw {
			warn("T%d S%d: bad data checksum", tracknr, sector)
			continue
		}

		if !d.IsSectorValid(tracknr, int(sector)) {
			dat := d.TrackDat(tracknr)
			off := int(sector) * 512
			copy(dat[off:off+512], data[:])
			d.SetSectorValid(tracknr, int(sector))
			committed++
		}
	}
	if committed == 0 {
		return fmt.Errorf("mfm: no valid AmigaDOS sectors recovered on track %d", tracknr)
	}
	return nil
}

func amigaReadRaw(d trackhandler.RawDisk, tracknr int, tb *tbuf.Tbuf) {
	dat := d.TrackDat(tracknr)
	for sector := 0; sector < 11; sector++ {
		tb.Gap(1000, 8)
		tb.EmitBits(1000, tbuf.Raw, 16, amigaSync)
		tb.EmitBits(1000, tbuf.Raw, 16, amigaSync)

		info := uint32(0xFF)<<24 | uint32(byte(tracknr))<<16 | uint32(byte(sector))<<8 | uint32(11-sector)
		var label [16]byte
		hdrChecksum := bits.AmigaChecksum(append([]uint32{info}, wordsOf(label[:])...))

		off := sector * 512
		data := dat[off : off+512]
		dataChecksum := bits.AmigaChecksum(wordsOf(data))

		writeMFMOddEvenLong(tb, info)
		writeMFMOddEvenBytes(tb, label[:])
		writeMFMOddEvenLong(tb, hdrChecksum)
		writeMFMOddEvenLong(tb, dataChecksum)
		writeMFMOddEvenBytes(tb, data)
	}
}

func wordsOf(data []byte) []uint32 {
	out := make([]uint32, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		out = append(out, beU32(data[i:i+4]))
	}
	return out
}

func beU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// writeMFMOddEvenLong emits v as the classic AmigaDOS odd/even longword
// pair: first the 16 odd-position bits of v, then the 16 even-position
// bits, each half occupying one 32-cell on-disk longword once the clock
// bits are interposed.
func writeMFMOddEvenLong(tb *tbuf.Tbuf, v uint32) {
	tb.EmitBits(1000, tbuf.MFMEvenOdd, 32, v)
}

func writeMFMOddEvenBytes(tb *tbuf.Tbuf, data []byte) {
	for i := 0; i+4 <= len(data); i += 4 {
		writeMFMOddEvenLong(tb, beU32(data[i:i+4]))
	}
}

// readMFMOddEvenLong is the inverse of writeMFMOddEvenLong: 16 data
// bits of the odd half, 16 of the even half, reinterleaved.
func readMFMOddEvenLong(s stream.Source) (uint32, error) {
	odd, err := dataBits(s, 16)
	if err != nil {
		return 0, err
	}
	even, err := dataBits(s, 16)
	if err != nil {
		return 0, err
	}
	var v uint32
	for i := 0; i < 16; i++ {
		v |= ((odd >> uint(15-i)) & 1) << uint(31-2*i)
		v |= ((even >> uint(15-i)) & 1) << uint(30-2*i)
	}
	return v, nil
}

func readMFMOddEvenBytes(s stream.Source, dst []byte) error {
	for i := 0; i+4 <= len(dst); i += 4 {
		v, err := readMFMOddEvenLong(s)
		if err != nil {
			return err
		}
		dst[i] = byte(v >> 24)
		dst[i+1] = byte(v >> 16)
		dst[i+2] = byte(v >> 8)
		dst[i+3] = byte(v)
	}
	return nil
}
