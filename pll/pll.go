// Package pll implements the software phase-locked loop that recovers
// a bitcell clock from a sequence of flux
// intervals. stream.PulseSource runs it over the flux-interval slices
// that the hardware capture clients return; stream.CaptureSource runs
// the same algorithm directly against a raw capture-file byte grammar
// instead.
package pll

// FluxSource supplies one flux interval (nanoseconds until the next
// transition) at a time; 0 means no more transitions are available.
type FluxSource interface {
	NextFlux() uint64
}

// clockMaxAdjPct is the clamp range: clock stays within
// centre*(1 +/- clockMaxAdjPct/100).
const clockMaxAdjPct = 10

// State holds one PLL's running clock and accumulated flux residue.
type State struct {
	Clock        float64 // current clock period, nanoseconds
	ClockCentre  float64 // nominal clock period, nanoseconds
	Flux         float64 // accumulated flux time not yet consumed
	ClockedZeros int     // consecutive clocked-zero bitcells
}

// Init centres state on the nominal bitcell period implied by
// bitRateKhz (a 250/300/500/1000 kbps MFM data rate maps to a bitcell
// period of 1e6/bitRateKhz/2 nanoseconds, half for the raw bitcell vs.
// the data-bit period that a kbps figure usually names).
func Init(s *State, bitRateKhz uint16) {
	period := 1e6 / float64(bitRateKhz) / 2
	s.Clock = period
	s.ClockCentre = period
	s.Flux = 0
	s.ClockedZeros = 0
}

// NextBit pulls flux from fi until one bitcell is resolved, adjusting
// the clock in variable/authentic PLL fashion: in-sync
// bursts of 1-3 clocked zeros nudge the clock by a fraction of the
// residual flux; anything else relaxes back toward centre. The clock is
// clamped to +/-10% of centre. Returns false for a clocked zero, true
// when a transition (data one) is detected.
func NextBit(s *State, fi FluxSource) bool {
	for s.Flux < s.Clock/2 {
		ns := fi.NextFlux()
		if ns == 0 {
			s.ClockedZeros++
			return false
		}
		s.Flux += float64(ns)
	}

	s.Flux -= s.Clock

	if s.Flux >= s.Clock/2 {
		s.ClockedZeros++
		return false
	}

	if s.ClockedZeros >= 1 && s.ClockedZeros <= 3 {
		s.Clock += (s.Flux / float64(s.ClockedZeros+1)) / 10
	} else {
		s.Clock += (s.ClockCentre - s.Clock) / 10
	}
	min := s.ClockCentre * (100 - clockMaxAdjPct) / 100
	max := s.ClockCentre * (100 + clockMaxAdjPct) / 100
	if s.Clock < min {
		s.Clock = min
	}
	if s.Clock > max {
		s.Clock = max
	}

	// Authentic-mode carry: keep half the residual flux rather than
	// snapping to zero, matching the stream-file PLL's default.
	s.Flux /= 2

	s.ClockedZeros = 0
	return true
}
