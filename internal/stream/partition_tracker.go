package stream

import (
	"sync"

	"github.com/ployz-labs/kvstore-client/internal/cluster"
)

// PartitionCursor is one partition's resume state, exported so a caller
// can persist it and pre-seed a later scan/query that skips the partitions
// a previous call finished (spec.md §4.9 Partition tracker). Requests
// carry partition ids only: Digest and BVal are kept but not sent, so a
// partition that was not finished is read again from its start.
type PartitionCursor struct {
	ID        uint16
	Done      bool
	Retry     bool
	Digest    [20]byte
	HasDigest bool
	BVal      uint64
	Node      string
	Sequence  uint32
}

// PartitionFilter is the reusable handle spec.md §4.9 calls out: export one
// from a finished (or cancelled) Recordset via Recordset.Filter, then pass
// it back in on the next Scan/Query call to resume instead of restarting.
type PartitionFilter struct {
	Partitions []PartitionCursor
}

// partitionStatus is the tracker's mutable internal form of a
// PartitionCursor; one per partition per owning node.
type partitionStatus struct {
	id        uint16
	done      bool
	retry     bool
	digest    [20]byte
	hasDigest bool
	bval      uint64
	sequence  uint32
}

// PartitionTracker partitions a namespace's partition space across the
// currently known nodes (or one specific node, for scan_node/query_node)
// and tracks, per partition, whether it has been fully delivered yet —
// surviving across retries within one scan/query, and exportable across
// separate calls via PartitionFilter (spec.md §4.9).
type PartitionTracker struct {
	mu     sync.Mutex
	byNode map[*cluster.Node][]*partitionStatus
	order  []*cluster.Node
}

// NewPartitionTracker assigns every partition id in namespace's master
// replica, across every known node, to its owning node (spec.md §4.9
// Launch).
func NewPartitionTracker(clus *cluster.Cluster, namespace string) *PartitionTracker {
	return newPartitionTracker(clus, namespace, clus.Nodes(), nil)
}

// NewPartitionTrackerForNode scopes the tracker to n's master partitions
// only, for scan_node()/query_node() (spec.md §4.10).
func NewPartitionTrackerForNode(clus *cluster.Cluster, namespace string, n *cluster.Node) *PartitionTracker {
	return newPartitionTracker(clus, namespace, []*cluster.Node{n}, nil)
}

// NewPartitionTrackerFromFilter resumes a previous scan/query: partitions
// the filter already marked Done are skipped entirely; every other
// partition keeps its prior digest/bval/sequence resume state.
func NewPartitionTrackerFromFilter(clus *cluster.Cluster, namespace string, filter PartitionFilter) *PartitionTracker {
	return newPartitionTracker(clus, namespace, clus.Nodes(), &filter)
}

func newPartitionTracker(clus *cluster.Cluster, namespace string, nodes []*cluster.Node, resume *PartitionFilter) *PartitionTracker {
	var byID map[uint16]PartitionCursor
	if resume != nil {
		byID = make(map[uint16]PartitionCursor, len(resume.Partitions))
		for _, c := range resume.Partitions {
			byID[c.ID] = c
		}
	}

	pt := &PartitionTracker{byNode: make(map[*cluster.Node][]*partitionStatus)}
	for _, n := range nodes {
		ids := clus.PartitionIDsForNode(namespace, n)
		if len(ids) == 0 {
			continue
		}
		var statuses []*partitionStatus
		for _, id := range ids {
			cur, seeded := byID[id]
			if seeded && cur.Done {
				continue // already fully delivered on a prior call
			}
			s := &partitionStatus{id: id}
			if seeded {
				s.retry = cur.Retry
				s.digest = cur.Digest
				s.hasDigest = cur.HasDigest
				s.bval = cur.BVal
				s.sequence = cur.Sequence
			}
			statuses = append(statuses, s)
		}
		if len(statuses) == 0 {
			continue
		}
		pt.byNode[n] = statuses
		pt.order = append(pt.order, n)
	}
	return pt
}

// Nodes returns every node this tracker has outstanding work for.
func (pt *PartitionTracker) Nodes() []*cluster.Node {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make([]*cluster.Node, len(pt.order))
	copy(out, pt.order)
	return out
}

// PendingIDs returns the partition ids for node that have not yet been
// marked done, used to build a retry's request (spec.md §4.9 resume).
func (pt *PartitionTracker) PendingIDs(n *cluster.Node) []uint16 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	var out []uint16
	for _, s := range pt.byNode[n] {
		if !s.done {
			out = append(out, s.id)
		}
	}
	return out
}

// MarkDigest records the last record seen for partitionID — its digest
// for a primary-index scan, plus bval for a secondary-index query — into
// the state Export reports. Retry requests do not send it, so a retried
// partition is read again from its start.
func (pt *PartitionTracker) MarkDigest(n *cluster.Node, partitionID uint16, digest [20]byte, bval uint64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for _, s := range pt.byNode[n] {
		if s.id == partitionID {
			s.digest = digest
			s.hasDigest = true
			s.bval = bval
			return
		}
	}
}

// MarkDone marks partitionID fully delivered for node.
func (pt *PartitionTracker) MarkDone(n *cluster.Node, partitionID uint16) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for _, s := range pt.byNode[n] {
		if s.id == partitionID {
			s.done = true
			s.retry = false
			return
		}
	}
}

// MarkUnavailable flags partitionID for retry after a partition-unavailable
// response and bumps its resume sequence, per spec.md §4.9's
// {retry, digest, bval, node, sequence} tracker record.
func (pt *PartitionTracker) MarkUnavailable(n *cluster.Node, partitionID uint16) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for _, s := range pt.byNode[n] {
		if s.id == partitionID {
			s.retry = true
			s.sequence++
			return
		}
	}
}

// AllDone reports whether every partition assigned to n has been marked
// done.
func (pt *PartitionTracker) AllDone(n *cluster.Node) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for _, s := range pt.byNode[n] {
		if !s.done {
			return false
		}
	}
	return true
}

// Export snapshots the tracker's current state into a PartitionFilter the
// caller can persist and pass to NewPartitionTrackerFromFilter on a later
// call to resume (spec.md §4.9's reusable PartitionFilter).
func (pt *PartitionTracker) Export() PartitionFilter {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	var out PartitionFilter
	for _, n := range pt.order {
		for _, s := range pt.byNode[n] {
			out.Partitions = append(out.Partitions, PartitionCursor{
				ID:        s.id,
				Done:      s.done,
				Retry:     s.retry,
				Digest:    s.digest,
				HasDigest: s.hasDigest,
				BVal:      s.bval,
				Node:      n.Name(),
				Sequence:  s.sequence,
			})
		}
	}
	return out
}
