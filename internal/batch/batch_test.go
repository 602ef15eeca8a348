package batch

import (
	"testing"

	"github.com/ployz-labs/kvstore-client/internal/cluster"
	"github.com/ployz-labs/kvstore-client/internal/command"
)

func syntheticKeys(n int) []command.BatchKey {
	out := make([]command.BatchKey, n)
	for i := range out {
		out[i] = command.BatchKey{Index: i, Key: command.Key{Namespace: "test"}}
	}
	return out
}

// A batch of more than MaxRequestSize keys to the same node must be split
// into ceil(n/MaxRequestSize) sub-batches, per spec.md §8.
func TestChunkGroupsSplitsOversizedGroups(t *testing.T) {
	node := &cluster.Node{}
	groups := []nodeGroup{{node: node, keys: syntheticKeys(MaxRequestSize + 1)}}

	chunks := chunkGroups(groups)

	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if len(chunks[0].keys) != MaxRequestSize {
		t.Fatalf("first chunk size = %d, want %d", len(chunks[0].keys), MaxRequestSize)
	}
	if len(chunks[1].keys) != 1 {
		t.Fatalf("second chunk size = %d, want 1", len(chunks[1].keys))
	}
	for _, ch := range chunks {
		if ch.node != node {
			t.Fatalf("chunk node = %v, want %v", ch.node, node)
		}
	}
}

func TestChunkGroupsLeavesSmallGroupsIntact(t *testing.T) {
	node := &cluster.Node{}
	groups := []nodeGroup{{node: node, keys: syntheticKeys(3)}}

	chunks := chunkGroups(groups)

	if len(chunks) != 1 || len(chunks[0].keys) != 3 {
		t.Fatalf("chunkGroups(3 keys) = %+v, want one chunk of 3", chunks)
	}
}

func TestChunkGroupsPreservesKeyOrderWithinAChunk(t *testing.T) {
	node := &cluster.Node{}
	keys := syntheticKeys(MaxRequestSize + 10)
	chunks := chunkGroups([]nodeGroup{{node: node, keys: keys}})

	wantIdx := 0
	for _, ch := range chunks {
		for _, bk := range ch.keys {
			if bk.Index != wantIdx {
				t.Fatalf("key order broken: got index %d, want %d", bk.Index, wantIdx)
			}
			wantIdx++
		}
	}
}
