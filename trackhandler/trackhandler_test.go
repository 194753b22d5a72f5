package trackhandler_test

import (
	"testing"

	"github.com/halvarsson/fluxcore/trackhandler"
)

// testTrackType is a value above every TrackType constant registered by
// any real format package, so exercising Register/Lookup here cannot
// collide with the process-wide registry those packages populate from
// their own init functions.
const testTrackType = trackhandler.TrackType(1000)

func TestRegisterLookup(t *testing.T) {
	if got := trackhandler.Lookup(testTrackType); got != nil {
		t.Fatalf("Lookup(unregistered) = %v, want nil", got)
	}

	h := &trackhandler.Handler{Density: trackhandler.Double, NrSectors: 11, BytesPerSector: 512}
	trackhandler.Register(testTrackType, h)

	got := trackhandler.Lookup(testTrackType)
	if got != h {
		t.Fatalf("Lookup returned %v, want the registered handler", got)
	}
	if got.NrSectors != 11 || got.BytesPerSector != 512 {
		t.Fatalf("handler fields not preserved: %+v", got)
	}
}

func TestTypeNameKnownAndUnknown(t *testing.T) {
	cases := []struct {
		tt   trackhandler.TrackType
		want string
	}{
		{trackhandler.Unformatted, "unformatted"},
		{trackhandler.AmigaDOS, "amigados"},
		{trackhandler.IBMPCDD, "ibm_pc_dd"},
		{trackhandler.IBMPCHD, "ibm_pc_hd"},
		{trackhandler.IBMPCED, "ibm_pc_ed"},
		{trackhandler.IBMPCSiemensISDX, "ibm_pc_siemens_isdx"},
		{trackhandler.AppleII16Sector, "appleii_16sector"},
		{trackhandler.AppleII13Sector, "appleii_13sector"},
	}
	for _, c := range cases {
		if got := trackhandler.TypeName(c.tt); got != c.want {
			t.Errorf("TypeName(%v) = %q, want %q", c.tt, got, c.want)
		}
	}

	if got := trackhandler.TypeName(testTrackType); got != "unknown" {
		t.Errorf("TypeName(unregistered) = %q, want %q", got, "unknown")
	}
}

func TestDensityNsPerCell(t *testing.T) {
	cases := []struct {
		d    trackhandler.Density
		want int
	}{
		{trackhandler.Single, 4000},
		{trackhandler.Double, 2000},
		{trackhandler.High, 1000},
		{trackhandler.Extra, 500},
	}
	for _, c := range cases {
		if got := c.d.NsPerCell(); got != c.want {
			t.Errorf("%v.NsPerCell() = %d, want %d", c.d, got, c.want)
		}
	}
}
