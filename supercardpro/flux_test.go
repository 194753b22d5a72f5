package supercardpro

import "testing"

// TestSCPFluxRoundTrip encodes intervals spanning the direct and
// overflow ranges, then decodes the sample stream back.
func TestSCPFluxRoundTrip(t *testing.T) {
	intervals := []uint64{
		1 * scpTickNs,
		100 * scpTickNs,
		0xFFFF * scpTickNs,
		0x10000 * scpTickNs, // exactly one overflow
		0x25000 * scpTickNs, // two overflows plus remainder
	}

	data := encodeSCPFlux(intervals)
	got := decodeSCPFlux(data, 0)

	if len(got) != len(intervals) {
		t.Fatalf("decoded %d intervals, want %d", len(got), len(intervals))
	}
	for i := range got {
		// An exact multiple of 64K ticks costs one extra tick on the
		// way out (a bare overflow marker cannot end an interval).
		diff := int64(got[i]) - int64(intervals[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > scpTickNs {
			t.Errorf("interval %d = %dns, want %dns (±1 tick)", i, got[i], intervals[i])
		}
	}
}

func TestDecodeSCPFluxStopsAtCaptureLength(t *testing.T) {
	data := encodeSCPFlux([]uint64{1000, 1000, 1000, 1000})
	got := decodeSCPFlux(data, 2500)
	if len(got) != 2 {
		t.Fatalf("decoded %d intervals, want 2 (bounded by capture length)", len(got))
	}
}
