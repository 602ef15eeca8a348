package stream

import (
	"context"
	"encoding/binary"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ployz-labs/kvstore-client/internal/aserrors"
	"github.com/ployz-labs/kvstore-client/internal/cluster"
	"github.com/ployz-labs/kvstore-client/internal/command"
	"github.com/ployz-labs/kvstore-client/internal/telemetry"
	"github.com/ployz-labs/kvstore-client/policy"
	"github.com/ployz-labs/kvstore-client/types"
)

// Run drives scan() (filterExpr nil) and query() (filterExpr set) — the
// two share a partition-tracked, per-node fan-out (spec.md §4.9) and only
// differ in the presence of a server-side filter expression. filter, if
// non-nil, resumes a previous call's PartitionFilter (spec.md §4.9's
// reusable cursor) instead of starting from every partition.
func Run(ctx context.Context, clus *cluster.Cluster, namespace, setName string, pol policy.ScanPolicy, bins types.Bins, filterExpr []byte, filter *PartitionFilter) *Recordset {
	var tracker *PartitionTracker
	if filter != nil {
		tracker = NewPartitionTrackerFromFilter(clus, namespace, *filter)
	} else {
		tracker = NewPartitionTracker(clus, namespace)
	}
	return runTracked(ctx, clus, namespace, setName, pol, bins, filterExpr, tracker)
}

// RunOnNode implements scan_node()/query_node() (spec.md §4.10): the same
// per-task machinery as Run, scoped to a single named node's master
// partitions instead of every node in the cluster.
func RunOnNode(ctx context.Context, clus *cluster.Cluster, namespace, setName string, pol policy.ScanPolicy, bins types.Bins, filterExpr []byte, nodeName string) *Recordset {
	var target *cluster.Node
	for _, n := range clus.Nodes() {
		if n.Name() == nodeName {
			target = n
			break
		}
	}
	if target == nil {
		_, cancel := context.WithCancel(ctx)
		rs := newRecordset(cancel, &PartitionTracker{})
		rs.push(Result{Err: aserrors.New(aserrors.KindInvalidNode, "unknown node: "+nodeName)})
		close(rs.results)
		return rs
	}
	tracker := NewPartitionTrackerForNode(clus, namespace, target)
	return runTracked(ctx, clus, namespace, setName, pol, bins, filterExpr, tracker)
}

func runTracked(ctx context.Context, clus *cluster.Cluster, namespace, setName string, pol policy.ScanPolicy, bins types.Bins, filterExpr []byte, tracker *PartitionTracker) *Recordset {
	nodes := tracker.Nodes()

	runCtx, cancel := context.WithCancel(ctx)
	rs := newRecordset(cancel, tracker)

	if len(nodes) == 0 {
		close(rs.results)
		return rs
	}

	taskID := newTaskID()
	var emitted atomic.Int64

	rs.addProducer(int64(len(nodes)))

	run := func(n *cluster.Node) {
		defer rs.producerDone()
		runNode(runCtx, clus, namespace, setName, pol, bins, filterExpr, taskID, tracker, n, rs, &emitted)
	}

	if pol.ConcurrentNodes {
		for _, n := range nodes {
			go run(n)
		}
	} else {
		go func() {
			for _, n := range nodes {
				if runCtx.Err() != nil {
					rs.producerDone()
					continue
				}
				run(n)
			}
		}()
		// addProducer already credited len(nodes); sequential mode still
		// calls producerDone once per node via run(), so the count drains
		// correctly whether or not every node actually executes.
	}

	return rs
}

func newTaskID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

// runNode owns one node's share of the partition space end to end,
// retrying failed attempts against whatever partitions remain pending
// (spec.md §4.9 resume-on-retry).
func runNode(ctx context.Context, clus *cluster.Cluster, namespace, setName string, pol policy.ScanPolicy, bins types.Bins, filterExpr []byte, taskID uint64, tracker *PartitionTracker, n *cluster.Node, rs *Recordset, emitted *atomic.Int64) {
	var spanErr error
	ctx, span := telemetry.Start(ctx, clus.Tracer, "stream.node_task",
		attribute.String(telemetry.AttrNamespace, namespace),
		attribute.String(telemetry.AttrNode, n.Name()))
	defer func() { span.End(spanErr) }()

	base := pol.BasePolicy

	var deadline time.Time
	hasDeadline := base.Timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(base.Timeout)
	}

	iterations := 0
	for !tracker.AllDone(n) {
		if !rs.isActive() || ctx.Err() != nil {
			return
		}

		iterations++
		if base.HasMaxRetries && iterations > base.MaxRetries+1 {
			spanErr = aserrors.Timeout
			rs.push(Result{Err: aserrors.Timeout})
			return
		}
		if iterations > 1 {
			if base.SleepBetweenRetries > 0 {
				time.Sleep(base.SleepBetweenRetries)
			} else {
				runtime.Gosched()
			}
		}
		if hasDeadline && time.Now().After(deadline) {
			spanErr = aserrors.Timeout
			rs.push(Result{Err: aserrors.Timeout})
			return
		}

		if err := attemptNode(ctx, pol, bins, namespace, setName, filterExpr, taskID, tracker, n, rs, emitted); err != nil {
			slog.Default().Warn("stream: node attempt failed", "node", n.Name(), "error", err)
			continue
		}
		return
	}
}

func attemptNode(ctx context.Context, pol policy.ScanPolicy, bins types.Bins, namespace, setName string, filterExpr []byte, taskID uint64, tracker *PartitionTracker, n *cluster.Node, rs *Recordset, emitted *atomic.Int64) error {
	leased, err := n.GetConnection(ctx)
	if err != nil {
		return err
	}

	req := command.StreamRequest{
		Namespace:    namespace,
		SetName:      setName,
		Bins:         bins,
		TaskID:       taskID,
		PartitionIDs: tracker.PendingIDs(n),
		FilterExpr:   filterExpr,
	}
	if pol.SocketTimeout > 0 {
		_ = leased.Conn.SetDeadline(time.Now().Add(pol.SocketTimeout))
	}

	command.BuildScan(leased.Conn.Buffer, pol, req)
	if err := leased.Conn.Write(leased.Conn.Buffer.Bytes()); err != nil {
		n.DropConnection(leased)
		return err
	}

	stopped := false
	readErr := command.ReadFrames(leased.Conn, func(resp *command.Response) (bool, error) {
		if pol.SocketTimeout > 0 {
			_ = leased.Conn.SetDeadline(time.Now().Add(pol.SocketTimeout))
		}
		if resp.IsPartitionDone() {
			pid := command.PartitionID(resp.Key.Digest)
			tracker.MarkDone(n, uint16(pid))
			return false, nil
		}
		if err := resp.Err(); err != nil {
			if resp.ResultCode == aserrors.ResultPartitionUnavailable {
				pid := command.PartitionID(resp.Key.Digest)
				tracker.MarkUnavailable(n, uint16(pid))
			}
			return false, err
		}

		pid := command.PartitionID(resp.Key.Digest)
		tracker.MarkDigest(n, uint16(pid), resp.Key.Digest, resp.BVal)

		if pol.MaxRecords > 0 && uint64(emitted.Add(1)) > pol.MaxRecords {
			stopped = true
			return true, nil
		}

		ok := rs.push(Result{Record: &Record{
			Key:        resp.Key,
			Bins:       resp.Bins,
			Generation: resp.Generation,
			Expiration: resp.Expiration,
		}})
		if !ok {
			stopped = true
		}
		return !ok, nil
	})
	if readErr != nil {
		leased.Conn.Invalidate()
		n.DropConnection(leased)
		return readErr
	}
	if stopped {
		leased.Conn.Invalidate()
		n.DropConnection(leased)
		return nil
	}

	n.PutConnection(leased)
	return nil
}
