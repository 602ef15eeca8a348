package cluster

import (
	"github.com/ployz-labs/kvstore-client/internal/aserrors"
	"github.com/ployz-labs/kvstore-client/types"
)

// PickNode resolves a partition/replica selection to a node (spec.md §4.7
// Routing). avoid, when non-nil, is skipped in favor of another candidate
// if one exists; it is never the sole reason a pick fails.
func (c *Cluster) PickNode(namespace string, partitionID uint32, replica types.ReplicaPolicy, avoid *Node) (*Node, error) {
	switch replica {
	case types.ReplicaMaster:
		if n := c.Partitions.GetNode(namespace, partitionID, 0); n != nil && n.IsActive() {
			return n, nil
		}
	case types.ReplicaRandomNode:
		return c.RandomNode()
	default: // types.ReplicaSequence
		count := c.Partitions.ReplicaCount(namespace)
		if count == 0 {
			count = 1
		}
		var fallback *Node
		for r := 0; r < count; r++ {
			n := c.Partitions.GetNode(namespace, partitionID, r)
			if n == nil || !n.IsActive() {
				continue
			}
			if n == avoid {
				if fallback == nil {
					fallback = n
				}
				continue
			}
			return n, nil
		}
		if fallback != nil {
			return fallback, nil
		}
	}
	return c.RandomNode()
}

// RandomNode implements get_random_node (spec.md §4.7): a round-robin scan
// of at most len(nodes) entries, returning the first active one.
func (c *Cluster) RandomNode() (*Node, error) {
	nodes := c.nodeList()
	if len(nodes) == 0 {
		return nil, aserrors.NoActiveNode
	}
	start := c.rrCounter.Add(1) - 1
	for i := 0; i < len(nodes); i++ {
		n := nodes[(start+uint64(i))%uint64(len(nodes))]
		if n.IsActive() {
			return n, nil
		}
	}
	return nil, aserrors.NoActiveNode
}

// PartitionIDsForNode returns, for the given namespace, every partition id
// this node currently owns as master (replica 0) — used by the stream
// executor to assign partition ranges per node (spec.md §4.9 Launch).
func (c *Cluster) PartitionIDsForNode(namespace string, n *Node) []uint16 {
	return c.Partitions.PartitionIDsForNode(namespace, n)
}
