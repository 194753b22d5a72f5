package bits

import "testing"

func TestCRC16CCITTByteMatchesBitAtATime(t *testing.T) {
	data := []byte("123456789")
	var want uint16
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			want = CRC16CCITT(want, int((b>>uint(i))&1))
		}
	}
	got := CRC16CCITTBytes(0, data)
	if got != want {
		t.Fatalf("CRC16CCITTBytes = %#04x, want %#04x", got, want)
	}
}

func TestCRC16CCITTByteVsBytes(t *testing.T) {
	var viaByte uint16 = 0xB230
	for _, b := range []byte{0xA1, 0xA1, 0xA1, 0xFE, 0, 0, 1, 1} {
		viaByte = CRC16CCITTByte(viaByte, b)
	}
	viaBytes := CRC16CCITTBytes(0xB230, []byte{0xA1, 0xA1, 0xA1, 0xFE, 0, 0, 1, 1})
	if viaByte != viaBytes {
		t.Fatalf("byte-at-a-time = %#04x, buffer-at-a-time = %#04x", viaByte, viaBytes)
	}
}

func TestMFMClockBit(t *testing.T) {
	cases := []struct{ p, d, want int }{
		{0, 0, 1},
		{0, 1, 0},
		{1, 0, 0},
		{1, 1, 0},
	}
	for _, c := range cases {
		if got := MFMClockBit(c.p, c.d); got != c.want {
			t.Errorf("MFMClockBit(%d,%d) = %d, want %d", c.p, c.d, got, c.want)
		}
	}
}

func TestGCR6RoundTrip(t *testing.T) {
	for v := byte(0); v < 64; v++ {
		code := GCR6Encode(v)
		if code&0x80 == 0 {
			t.Fatalf("GCR6Encode(%d) = %#02x, expected high bit set", v, code)
		}
		if got := GCR6Table[code]; got != v {
			t.Errorf("GCR6Table[GCR6Encode(%d)=%#02x] = %d, want %d", v, code, got, v)
		}
	}
}

func TestGCR6TableIllegalByteZero(t *testing.T) {
	// 0x00 never appears in gcr6Codes, so it must decode to 0.
	if got := GCR6Table[0x00]; got != 0 {
		t.Errorf("GCR6Table[0x00] = %d, want 0 (illegal code)", got)
	}
}

func TestGCR4Decode(t *testing.T) {
	// A payload byte 0xB5 splits into odd/even-masked bytes e0, e1 such
	// that GCR4Decode reconstructs it.
	payload := byte(0xB5)
	e0 := (payload >> 1) | 0xAA
	e1 := payload | 0xAA
	got := GCR4Decode(e0, e1)
	if got != payload {
		t.Fatalf("GCR4Decode round trip = %#02x, want %#02x", got, payload)
	}
}

func TestAmigaChecksumSelfConsistent(t *testing.T) {
	words := []uint32{0x11112222, 0x33334444, 0xAAAA5555}
	c1 := AmigaChecksum(words)
	c2 := AmigaChecksum(words)
	if c1 != c2 {
		t.Fatalf("AmigaChecksum not deterministic: %#x vs %#x", c1, c2)
	}
	if c1&^uint32(0x55555555) != 0 {
		t.Fatalf("AmigaChecksum %#x has bits outside 0x55555555 mask", c1)
	}
}
