// Package appleiigcr is the address-mark scanner and sector state
// machine for Apple II 6-and-2 GCR tracks. It registers the 16-sector
// and 13-sector track handlers with package trackhandler.
package appleiigcr

import (
	"fmt"

	"github.com/halvarsson/fluxcore/bits"
	"github.com/halvarsson/fluxcore/stream"
	"github.com/halvarsson/fluxcore/tbuf"
	"github.com/halvarsson/fluxcore/trackhandler"
)

// Canonical sync marks. addressMark13 is the 13-sector address header
// mark; it is named here for completeness but unused until a real
// 5-and-3 decode replaces appleII13SectorNotImplemented.
const (
	addressMark16 = 0xD5AA96
	addressMark13 = 0xD5AAAB
	dataMark      = 0xD5AAAD
	postambleMark = 0xDEAAEB
)

// warn reports recoverable per-sector conditions; callers may redirect
// it.
var warn = func(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// format bundles one Apple II GCR variant's fixed geometry.
type format struct {
	addressMark   uint32
	nrSectors     int
	dataRawLength int
}

var format16 = format{addressMark: addressMark16, nrSectors: 16, dataRawLength: 342}

func init() {
	trackhandler.Register(trackhandler.AppleII16Sector, &trackhandler.Handler{
		Density:        trackhandler.Single,
		NrSectors:      format16.nrSectors,
		BytesPerSector: 256,
		WriteRaw:       format16.writeRaw,
		ReadRaw:        format16.readRaw,
		ExtraData:      &format16,
	})

	// The 13-sector format uses a distinct 5-and-3 group code, not the
	// 6-and-2 scheme decode62/encode62 implement for the 16-sector
	// format; the two are not interchangeable by reusing dataRawLength.
	// Registered as not-yet-implemented, the same posture
	// container/stub.go takes for ipf/scp.
	trackhandler.Register(trackhandler.AppleII13Sector, &trackhandler.Handler{
		Density:        trackhandler.Single,
		NrSectors:      13,
		BytesPerSector: 256,
		WriteRaw:       appleII13SectorNotImplemented,
	})
}

func appleII13SectorNotImplemented(d trackhandler.RawDisk, tracknr int, s stream.Source) error {
	return fmt.Errorf("appleiigcr: 13-sector (5-and-3) decode is not implemented")
}

// addressField is the decoded, not-yet-validated content of one sector
// header.
type addressField struct {
	volume, track, sector, checksum byte
}

// getNibble reads bits from s until a 1 arrives (the high bit of every
// legal disk nibble; the zero tail of a self-sync byte is skipped),
// then consumes the 7 remaining bits and returns the shift register's
// low byte as the nibble. maxScan bounds how many individual bits may
// be pulled before giving up.
func getNibble(s stream.Source, maxScan int) (byte, bool) {
	for maxScan > 0 {
		bit := s.NextBit()
		if bit == stream.EOS {
			return 0, false
		}
		maxScan--
		if bit == 1 {
			for i := 0; i < 7; i++ {
				if maxScan <= 0 || s.NextBit() == stream.EOS {
					return 0, false
				}
				maxScan--
			}
			return byte(s.Word() & 0xFF), true
		}
	}
	return 0, false
}

// scanMark repeatedly reads nibbles, shifting them into a 32-bit
// window, until the low 24 bits of the window equal mark. maxScan
// bounds total bits consumed looking for it.
func scanMark(s stream.Source, mark uint32, maxScan int) bool {
	var lastFour uint32
	for maxScan > 0 {
		nb, ok := getNibble(s, maxScan)
		if !ok {
			return false
		}
		maxScan -= 8
		lastFour = (lastFour << 8) | uint32(nb)
		if lastFour&0x00FFFFFF == mark&0x00FFFFFF {
			return true
		}
	}
	return false
}

// scanAddressField locates addrMark and decodes the 8-nibble address
// field plus its 3-nibble postamble that follows it. postambleOK
// reports whether the postamble nibbles matched the expected mark.
func scanAddressField(s stream.Source, addrMark uint32) (af addressField, postambleOK, ok bool) {
	if !scanMark(s, addrMark, 1<<20) {
		return af, false, false
	}

	nibbles := make([]byte, 8)
	for i := range nibbles {
		nb, got := getNibble(s, 96)
		if !got {
			return af, false, false
		}
		nibbles[i] = nb
	}
	af.volume = bits.GCR4Decode(nibbles[0], nibbles[1])
	af.track = bits.GCR4Decode(nibbles[2], nibbles[3])
	af.sector = bits.GCR4Decode(nibbles[4], nibbles[5])
	af.checksum = bits.GCR4Decode(nibbles[6], nibbles[7])

	var post uint32
	for i := 0; i < 3; i++ {
		nb, got := getNibble(s, 96)
		if !got {
			return af, false, false
		}
		post = (post << 8) | uint32(nb)
	}
	return af, post == postambleMark, true
}

// decode62 unscrambles raw (342 or 410) 6-and-2 encoded bytes into 256
// payload bytes, returning the running XOR checksum.
func decode62(raw []byte) (payload [256]byte, checksum byte) {
	auxLen := len(raw) - 256
	aux := raw[:auxLen]
	main := raw[auxLen:]

	var prev byte
	decodedAux := make([]byte, auxLen)
	for i, b := range aux {
		v := bits.GCR6Table[b] ^ prev
		decodedAux[i] = v
		prev = v
	}
	decodedMain := make([]byte, len(main))
	for i, b := range main {
		v := bits.GCR6Table[b] ^ prev
		decodedMain[i] = v
		prev = v
	}
	checksum = prev

	for i := 0; i < auxLen; i++ {
		a := decodedAux[i]
		payload[i] |= a & 0x03
		if i+86 < 256 {
			payload[i+86] |= (a >> 2) & 0x03
		}
		if i+172 < 256 && i < 84 {
			payload[i+172] |= (a >> 4) & 0x03
		}
	}
	for i, v := range decodedMain {
		payload[i] |= v << 2
	}
	return payload, checksum
}

// encode62 is the inverse of decode62: it scrambles 256 payload bytes
// into rawLen 6-and-2 decoded (pre-table) byte values, returning them
// plus the final running XOR (the value the trailing checksum nibble
// must decode to).
func encode62(payload [256]byte, rawLen int) (decoded []byte, checksum byte) {
	auxLen := rawLen - 256
	decoded = make([]byte, rawLen)
	for i := 0; i < auxLen; i++ {
		var v byte
		v |= payload[i] & 0x03
		if i+86 < 256 {
			v |= (payload[i+86] & 0x03) << 2
		}
		if i+172 < 256 && i < 84 {
			v |= (payload[i+172] & 0x03) << 4
		}
		decoded[i] = v
	}
	for i := 0; i < 256; i++ {
		decoded[auxLen+i] = payload[i] >> 2
	}

	var prev byte
	for i, v := range decoded {
		decoded[i] = v ^ prev
		prev = v
	}
	return decoded, prev
}

// writeRaw is the decode direction: it scans s for every sector on
// tracknr, validates each, and commits first-writer-wins payloads into
// d's track buffer.
// maxScanAttemptsPerSector bounds address-mark scans per still-missing
// sector: a hardware capture ends on its own, but a replayed disk image
// is one circular revolution with no natural end, so the loop must also
// stop after several revolutions' worth of marks.
const maxScanAttemptsPerSector = 4

func (f *format) writeRaw(d trackhandler.RawDisk, tracknr int, s stream.Source) error {
	valid := 0
	for sec := 0; sec < f.nrSectors; sec++ {
		if d.IsSectorValid(tracknr, sec) {
			valid++
		}
	}
	committed := 0
	attempts := 0
	maxAttempts := f.nrSectors * maxScanAttemptsPerSector
	for valid < f.nrSectors && attempts < maxAttempts {
		attempts++
		af, postambleOK, ok := scanAddressField(s, f.addressMark)
		if !ok {
			break
		}
		if int(af.sector) >= f.nrSectors {
			warn("T%d: sector %d out of range", tracknr, af.sector)
			continue
		}
		if int(af.track) != tracknr/2 {
			warn("T%d: header names track %d", tracknr, af.track)
			continue
		}
		if !postambleOK {
			warn("T%d S%d: bad address postamble", tracknr, af.sector)
			continue
		}
		checksum := af.volume ^ af.track ^ af.sector
		if checksum != af.checksum {
			warn("T%d S%d: bad address checksum", tracknr, af.sector)
			continue
		}

		if !scanMark(s, dataMark, 160) {
			warn("T%d S%d: no data mark", tracknr, af.sector)
			continue
		}

		raw := make([]byte, f.dataRawLength)
		ok = true
		for i := range raw {
			nb, got := getNibble(s, 16)
			if !got {
				ok = false
				break
			}
			raw[i] = nb
		}
		if !ok {
			break
		}
		checksumNibble, got := getNibble(s, 16)
		if !got {
			break
		}

		payload, runningXOR := decode62(raw)
		if bits.GCR6Table[checksumNibble] != runningXOR {
			warn("T%d S%d: bad data checksum", tracknr, af.sector)
			continue
		}

		if !scanMark(s, postambleMark, 24) {
			warn("T%d S%d: no data postamble", tracknr, af.sector)
		}

		sector := int(af.sector)
		if !d.IsSectorValid(tracknr, sector) {
			dat := d.TrackDat(tracknr)
			copy(dat[sector*256:sector*256+256], payload[:])
			d.SetSectorValid(tracknr, sector)
			committed++
			valid++
		}
	}

	if committed == 0 {
		return fmt.Errorf("appleiigcr: no valid sectors recovered on track %d", tracknr)
	}
	return nil
}

// readRaw is the encode direction: it lays out tracknr's decoded sector
// payload as GCR6 raw bits, address field first, then data field, for
// every sector in ascending order; tb.Finalise() splices the remainder.
func (f *format) readRaw(d trackhandler.RawDisk, tracknr int, tb *tbuf.Tbuf) {
	dat := d.TrackDat(tracknr)
	track := byte(tracknr / 2)
	const volume = 0xFE

	for sec := 0; sec < f.nrSectors; sec++ {
		sector := byte(sec)
		emitGap(tb, 5)
		emitMark(tb, f.addressMark)
		checksum := volume ^ track ^ sector
		emitGCR4Pair(tb, volume)
		emitGCR4Pair(tb, track)
		emitGCR4Pair(tb, sector)
		emitGCR4Pair(tb, checksum)
		emitMark(tb, postambleMark)

		var payload [256]byte
		copy(payload[:], dat[sec*256:sec*256+256])
		decoded, finalXOR := encode62(payload, f.dataRawLength)

		emitGap(tb, 5)
		emitMark(tb, dataMark)
		for _, v := range decoded {
			emitGCR6Byte(tb, v)
		}
		emitGCR6RawByte(tb, finalXOR)
		emitMark(tb, postambleMark)
	}
}

func emitMark(tb *tbuf.Tbuf, mark uint32) {
	tb.EmitBits(1000, tbuf.Raw, 24, mark)
}

// emitGap emits n 10-bit self-sync bytes: 0xFF followed by two zero
// bits. The zero tail is what lets a reader entering the gap at an
// arbitrary bit offset fall back into nibble alignment.
func emitGap(tb *tbuf.Tbuf, n int) {
	for i := 0; i < n; i++ {
		tb.EmitBits(1000, tbuf.Raw, 10, 0xFF<<2)
	}
}

// emitGCR4Pair emits byte v as a GCR4 (4-and-4) encoded nibble pair:
// e0 carries the odd-numbered bits, e1 the even-numbered bits, both
// OR'd with 0xAA so every encoded byte has bits 7, 5, 3 and 1 forced to
// 1 per the 4-and-4 disk alphabet.
func emitGCR4Pair(tb *tbuf.Tbuf, v byte) {
	e0 := ((v >> 1) & 0x55) | 0xAA
	e1 := (v & 0x55) | 0xAA
	tb.EmitBits(1000, tbuf.Raw, 8, uint32(e0))
	tb.EmitBits(1000, tbuf.Raw, 8, uint32(e1))
}

// emitGCR6Byte maps a decoded 6-and-2 intermediate byte (still needing
// the table lookup, not the already-xored on-disk byte) through the
// gcr6 encode table and emits it raw.
func emitGCR6Byte(tb *tbuf.Tbuf, v byte) {
	tb.EmitBits(1000, tbuf.Raw, 8, uint32(bits.GCR6Encode(v&0x3F)))
}

func emitGCR6RawByte(tb *tbuf.Tbuf, v byte) {
	emitGCR6Byte(tb, v)
}
