package stream

import "fmt"

// IndexEvent records the stream index at which an index pulse opcode
// schedules a revolution-start marker.
type IndexEvent struct {
	StreamPosition int64
}

// DecodeRawFlux parses the capture opcode grammar into raw flux
// intervals measured in sample-clock ticks (not nanoseconds), plus the
// list of scheduled index-pulse stream positions. It exists
// independently of CaptureSource's incremental NextBit path so the
// opcode grammar itself (overflow accumulation, OOB records) can be
// exercised directly.
func DecodeRawFlux(data []byte) (ticks []uint64, indexEvents []IndexEvent, err error) {
	pos := 0
	streamIdx := int64(0)
	var acc uint32

	for pos < len(data) {
		v := data[pos]
		switch {
		case v <= 0x07:
			if pos+1 >= len(data) {
				return ticks, indexEvents, nil
			}
			acc += (uint32(v) << 8) + uint32(data[pos+1])
			pos += 2
			streamIdx += 2
			ticks = append(ticks, uint64(acc))
			acc = 0
		case v == 0x08:
			pos++
			streamIdx++
		case v == 0x09:
			pos += 2
			streamIdx += 2
		case v == 0x0A:
			pos += 3
			streamIdx += 3
		case v == 0x0B:
			acc += 0x10000
			pos++
			streamIdx++
		case v == 0x0C:
			pos++
			streamIdx++
			if pos+1 >= len(data) {
				return ticks, indexEvents, nil
			}
			acc += (uint32(data[pos]) << 8) + uint32(data[pos+1])
			pos += 2
			streamIdx += 2
			ticks = append(ticks, uint64(acc))
			acc = 0
		case v == 0x0D:
			if pos+4 > len(data) {
				return ticks, indexEvents, nil
			}
			subtype := data[pos+1]
			size := int(readU16(data[pos+2 : pos+4]))
			payload := data[pos+4:]
			switch {
			case subtype == oobIndex && len(payload) >= 4:
				indexEvents = append(indexEvents, IndexEvent{StreamPosition: int64(readU32(payload[0:4]))})
			case (subtype == oobStreamRead || subtype == oobStreamEnd) && len(payload) >= 4:
				if p := int64(readU32(payload[0:4])); p != streamIdx {
					return ticks, indexEvents, fmt.Errorf("stream: out-of-sync oob record: position %d != stream idx %d", p, streamIdx)
				}
			}
			// The 4-byte position field is always present even when the
			// record's size field claims less.
			if size < 4 {
				size = 4
			}
			pos += 4 + size
		default:
			acc += uint32(v)
			pos++
			streamIdx++
			ticks = append(ticks, uint64(acc))
			acc = 0
		}
	}
	return ticks, indexEvents, nil
}
