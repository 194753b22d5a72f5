package trackraw

import "testing"

func TestNewAllocation(t *testing.T) {
	tr := New(13)
	if got, want := len(tr.Bits), 2; got != want {
		t.Errorf("len(Bits) = %d, want %d (ceil(13/8))", got, want)
	}
	if got, want := len(tr.Speed), 13; got != want {
		t.Errorf("len(Speed) = %d, want %d", got, want)
	}
	if tr.BitLen() != 13 {
		t.Errorf("BitLen() = %d, want 13", tr.BitLen())
	}
}

func TestNewExactByteMultiple(t *testing.T) {
	tr := New(16)
	if len(tr.Bits) != 2 {
		t.Errorf("len(Bits) = %d, want 2", len(tr.Bits))
	}
}

func TestSetGetBitRoundTrip(t *testing.T) {
	tr := New(17)
	pattern := []int{1, 0, 1, 1, 0, 0, 0, 1, 1, 1, 0, 1, 0, 0, 1, 0, 1}
	for i, v := range pattern {
		tr.SetBit(i, v)
	}
	for i, want := range pattern {
		if got := tr.GetBit(i); got != want {
			t.Errorf("GetBit(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestSetBitDoesNotDisturbNeighbours(t *testing.T) {
	tr := New(8)
	for i := 0; i < 8; i++ {
		tr.SetBit(i, 1)
	}
	tr.SetBit(3, 0)
	for i := 0; i < 8; i++ {
		want := 1
		if i == 3 {
			want = 0
		}
		if got := tr.GetBit(i); got != want {
			t.Errorf("GetBit(%d) = %d, want %d", i, got, want)
		}
	}
}
