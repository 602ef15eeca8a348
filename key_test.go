package kvstore

import (
	"encoding/hex"
	"testing"

	"github.com/ployz-labs/kvstore-client/types"
)

// Digest values are the literal expected outputs from spec.md §8 scenario 1.
func TestKeyDigestStability(t *testing.T) {
	tests := []struct {
		name    string
		userKey types.Value
		want    string
	}{
		{"integer", types.IntegerValue(1), "82d7213b469812947c109a6d341e3b5b1dedec1f"},
		{"empty string", types.StringValue(""), "2819b1ff6e346a43b4f5f6b77a88bc3eaac22a83"},
		{"empty blob", types.BytesValue{}, "327e2877b8815c7aeede0d5a8620d4ef8df4a4b4"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			k := NewKey("namespace", "set", tc.userKey)
			digest := k.Digest()
			got := hex.EncodeToString(digest[:])
			if got != tc.want {
				t.Fatalf("digest(%s) = %s, want %s", tc.name, got, tc.want)
			}
		})
	}
}

func TestPartitionID(t *testing.T) {
	tests := []struct {
		name   string
		digest [DigestSize]byte
		want   uint32
	}{
		{"partition 0", [DigestSize]byte{0x00, 0x10, 0x00, 0x00}, 0},
		{"partition 1", [DigestSize]byte{0x01, 0x10, 0x00, 0x00}, 1},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := PartitionIDFromDigest(tc.digest)
			if got != tc.want {
				t.Fatalf("PartitionIDFromDigest(%x) = %d, want %d", tc.digest, got, tc.want)
			}
		})
	}
}

func TestKeyEqual(t *testing.T) {
	a := NewKey("ns", "set", types.IntegerValue(42))
	b := NewKey("ns", "set", types.IntegerValue(42))
	c := NewKey("ns", "set", types.IntegerValue(43))

	if !a.Equal(b) {
		t.Fatal("identical namespace/digest keys should be equal")
	}
	if a.Equal(c) {
		t.Fatal("keys with different user keys should not be equal")
	}
}

func TestNewKeyPanicsOnInvalidParticleType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a non-key-eligible particle type")
		}
	}()
	NewKey("ns", "set", types.RawValue{Type: types.ParticleFloat, Bytes: []byte{0, 0, 0, 0, 0, 0, 0, 0}})
}
