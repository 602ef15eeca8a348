package cluster

import (
	"encoding/base64"
	"testing"

	"github.com/ployz-labs/kvstore-client/policy"
)

// testNode builds a Node for partition-table bookkeeping only; its pool
// dialer is nil since these tests never open a connection.
func testNode(t *testing.T, name string) *Node {
	t.Helper()
	return NewNode(policy.DefaultClientPolicy(), name, []Host{{Name: "127.0.0.1", Port: 3000}}, nil, map[string]struct{}{})
}

// allBitsSet returns a base64-encoded 512-byte bitmap with every bit set.
func allBitsSet() string {
	buf := make([]byte, Partitions/8)
	for i := range buf {
		buf[i] = 0xFF
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// singleBitSet returns a base64-encoded 512-byte bitmap with only bit p set.
func singleBitSet(p int) string {
	buf := make([]byte, Partitions/8)
	buf[p>>3] = 0x80 >> uint(p&7)
	return base64.StdEncoding.EncodeToString(buf)
}

func TestPartitionMapModernReplicasAssignsOwner(t *testing.T) {
	pm := NewPartitionMap()
	nodeA := testNode(t, "A")

	info := map[string]string{
		"replicas": "test:1," + "1," + allBitsSet() + ";",
	}
	if err := pm.UpdateFromInfo(nodeA, info); err != nil {
		t.Fatalf("UpdateFromInfo: %v", err)
	}

	if got := pm.GetNode("test", 0, 0); got != nodeA {
		t.Fatalf("partition 0 owner = %v, want %v", got, nodeA)
	}
	if got := pm.GetNode("test", 4095, 0); got != nodeA {
		t.Fatalf("partition 4095 owner = %v, want %v", got, nodeA)
	}
}

// Invariant 2 from spec.md §8: len(slots) == replicas * PARTITIONS at all times.
func TestPartitionMapLengthInvariant(t *testing.T) {
	pm := NewPartitionMap()
	nodeA := testNode(t, "A")

	info := map[string]string{
		"replicas": "test:1,2," + allBitsSet() + "," + allBitsSet() + ";",
	}
	if err := pm.UpdateFromInfo(nodeA, info); err != nil {
		t.Fatalf("UpdateFromInfo: %v", err)
	}
	if got := pm.ReplicaCount("test"); got != 2 {
		t.Fatalf("ReplicaCount = %d, want 2", got)
	}
	// Every (replica, partition) slot must be addressable without panicking.
	for r := 0; r < 2; r++ {
		for p := uint32(0); p < Partitions; p += 997 {
			_ = pm.GetNode("test", p, r)
		}
	}
}

// A stale (lower) regime must not overwrite a slot written by a newer one
// (spec.md §4.5's regime-guard invariant).
func TestPartitionMapRegimeGuardRejectsStaleWrite(t *testing.T) {
	pm := NewPartitionMap()
	nodeA := testNode(t, "A")
	nodeB := testNode(t, "B")

	newInfo := map[string]string{
		"replicas": "test:5,1," + singleBitSet(10) + ";",
	}
	if err := pm.UpdateFromInfo(nodeA, newInfo); err != nil {
		t.Fatalf("UpdateFromInfo (regime 5): %v", err)
	}

	staleInfo := map[string]string{
		"replicas": "test:3,1," + singleBitSet(10) + ";",
	}
	if err := pm.UpdateFromInfo(nodeB, staleInfo); err != nil {
		t.Fatalf("UpdateFromInfo (regime 3): %v", err)
	}

	if got := pm.GetNode("test", 10, 0); got != nodeA {
		t.Fatalf("stale regime overwrote partition 10 owner: got %v, want %v", got, nodeA)
	}
}

func TestPartitionMapLegacyReplicasMaster(t *testing.T) {
	pm := NewPartitionMap()
	nodeA := testNode(t, "A")

	info := map[string]string{
		"replicas-master": "test:" + allBitsSet() + ";",
	}
	if err := pm.UpdateFromInfo(nodeA, info); err != nil {
		t.Fatalf("UpdateFromInfo: %v", err)
	}
	if got := pm.ReplicaCount("test"); got != 1 {
		t.Fatalf("ReplicaCount = %d, want 1", got)
	}
	if got := pm.GetNode("test", 100, 0); got != nodeA {
		t.Fatalf("partition 100 owner = %v, want %v", got, nodeA)
	}
}

func TestPartitionMapRejectsBadBitmapLength(t *testing.T) {
	pm := NewPartitionMap()
	nodeA := testNode(t, "A")

	info := map[string]string{
		"replicas": "test:1,1," + base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) + ";",
	}
	if err := pm.UpdateFromInfo(nodeA, info); err == nil {
		t.Fatal("expected an error for a bitmap of the wrong length")
	}
}
