package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for code := range knownCodes {
		if !IsKnownCode(code) {
			t.Fatalf("registered code %q not known", code)
		}
	}
	if !IsKnownCode("") {
		t.Fatalf("empty code means success and must be accepted")
	}
	for _, code := range []string{"E_NOT_DEFINED", "e_grid_capacity", "GRID_CAPACITY"} {
		if IsKnownCode(code) {
			t.Fatalf("unexpected known code %q", code)
		}
	}
}

func TestClampEventBatchLimit(t *testing.T) {
	cases := map[int]int{
		-5:                     DefaultEventBatchLimit,
		0:                      DefaultEventBatchLimit,
		1:                      1,
		250:                    250,
		MaxEventBatchLimit:     MaxEventBatchLimit,
		MaxEventBatchLimit + 1: MaxEventBatchLimit,
	}
	for in, want := range cases {
		if got := ClampEventBatchLimit(in); got != want {
			t.Fatalf("ClampEventBatchLimit(%d)=%d want %d", in, got, want)
		}
	}
}
