package aserrors

import (
	"errors"
	"testing"
)

// Invariant 7 from spec.md §8: only a "key not found" server error leaves
// the connection reusable; every other server error, and every non-server
// error, must invalidate it.
func TestKeepConnection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"key not found", Server(ResultKeyNotFoundError, "not found"), true},
		{"generation error", Server(ResultGenerationError, "gen mismatch"), false},
		{"bin not found", Server(ResultBinNotFound, "no such bin"), false},
		{"timeout", Timeout, false},
		{"connection error", New(KindConnection, "reset"), false},
		{"wrapped key not found", Wrap(KindServer, "outer", Server(ResultKeyNotFoundError, "inner")), false},
		{"plain stdlib error", errors.New("boom"), false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KeepConnection(tc.err); got != tc.want {
				t.Fatalf("KeepConnection(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(Timeout) {
		t.Fatal("Timeout sentinel should report IsTimeout")
	}
	if IsTimeout(Server(ResultKeyNotFoundError, "not found")) {
		t.Fatal("a server error should not report IsTimeout")
	}
}

func TestErrorIsMatchesKindAndResultCode(t *testing.T) {
	a := Server(ResultKeyNotFoundError, "not found")
	b := Server(ResultKeyNotFoundError, "different message")
	c := Server(ResultGenerationError, "gen mismatch")

	if !errors.Is(a, b) {
		t.Fatal("same kind and result code should match via errors.Is")
	}
	if errors.Is(a, c) {
		t.Fatal("different result codes should not match")
	}
}
