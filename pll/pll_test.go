package pll_test

import (
	"testing"

	"github.com/halvarsson/fluxcore/pll"
)

// constantFlux emits n identical flux intervals then runs dry (0, the
// no-more-transitions sentinel).
type constantFlux struct {
	interval uint64
	n        int
}

func (f *constantFlux) NextFlux() uint64 {
	if f.n <= 0 {
		return 0
	}
	f.n--
	return f.interval
}

func TestInitCentresOnBitRate(t *testing.T) {
	var s pll.State
	pll.Init(&s, 500) // 500 kbps HD MFM -> 1e6/500/2 = 1000ns bitcell
	if s.ClockCentre != 1000 {
		t.Fatalf("ClockCentre = %v, want 1000", s.ClockCentre)
	}
	if s.Clock != s.ClockCentre {
		t.Fatalf("Clock = %v, want ClockCentre %v", s.Clock, s.ClockCentre)
	}
	if s.Flux != 0 || s.ClockedZeros != 0 {
		t.Fatalf("Init should zero Flux and ClockedZeros: %+v", s)
	}
}

// TestNextBitStaysAtCentreOnPerfectFlux feeds flux intervals exactly
// equal to the centre clock; a perfectly on-time stream should never
// need to pull the clock away from centre.
func TestNextBitStaysAtCentreOnPerfectFlux(t *testing.T) {
	var s pll.State
	pll.Init(&s, 500)
	centre := s.ClockCentre

	fi := &constantFlux{interval: uint64(centre), n: 200}
	for i := 0; i < 100; i++ {
		if !pll.NextBit(&s, fi) {
			t.Fatalf("iteration %d: expected a resolved transition bit, got clocked zero", i)
		}
	}
	if s.Clock != centre {
		t.Fatalf("Clock drifted from centre on perfectly-timed flux: got %v, want %v", s.Clock, centre)
	}
}

// TestNextBitClampsToTenPercent drives the PLL with flux consistently
// offset from centre and confirms Clock never leaves the documented
// +/-10% clamp band, however many bits are resolved.
func TestNextBitClampsToTenPercent(t *testing.T) {
	var s pll.State
	pll.Init(&s, 500)
	centre := s.ClockCentre
	min := centre * 0.9
	max := centre * 1.1

	fi := &constantFlux{interval: uint64(centre * 1.3), n: 5000}
	for i := 0; i < 2000; i++ {
		pll.NextBit(&s, fi)
		if s.Clock < min-1e-9 || s.Clock > max+1e-9 {
			t.Fatalf("iteration %d: Clock %v outside clamp band [%v, %v]", i, s.Clock, min, max)
		}
		if fi.n <= 0 {
			break
		}
	}
}

// TestNextBitReportsClockedZero confirms a dried-up flux source (no
// more transitions within the current bitcell) reports a clocked zero
// rather than a transition.
func TestNextBitReportsClockedZero(t *testing.T) {
	var s pll.State
	pll.Init(&s, 500)
	fi := &constantFlux{n: 0}
	if pll.NextBit(&s, fi) {
		t.Fatal("expected a clocked zero from an exhausted flux source")
	}
	if s.ClockedZeros != 1 {
		t.Fatalf("ClockedZeros = %d, want 1", s.ClockedZeros)
	}
}
