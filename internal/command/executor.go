package command

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ployz-labs/kvstore-client/internal/aserrors"
	"github.com/ployz-labs/kvstore-client/internal/cluster"
	"github.com/ployz-labs/kvstore-client/internal/telemetry"
	"github.com/ployz-labs/kvstore-client/policy"
)

// Partitions mirrors the root package's partition-space size, duplicated
// here the same way internal/cluster duplicates Host: this package cannot
// import the root package, which imports this one.
const Partitions = 4096

// PartitionID computes a digest's partition id (spec.md §3, §8 scenario 2).
func PartitionID(digest [DigestSize]byte) uint32 {
	return binary.LittleEndian.Uint32(digest[:4]) & (Partitions - 1)
}

// Execute runs the single-command retry loop (spec.md §4.7) for cmd,
// routed by namespace/partitionID through clus.
func Execute(ctx context.Context, clus *cluster.Cluster, namespace string, partitionID uint32, cmd Command) (err error) {
	ctx, span := telemetry.Start(ctx, clus.Tracer, "command.execute",
		attribute.String(telemetry.AttrNamespace, namespace),
		attribute.Int64(telemetry.AttrPartitionID, int64(partitionID)))
	defer func() { span.End(err) }()

	base := cmd.Timeout()

	var deadline time.Time
	hasDeadline := base.Timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(base.Timeout)
	}

	var avoid *cluster.Node
	iterations := 0
	for {
		iterations++
		span.RecordRetry(iterations)
		if base.HasMaxRetries && iterations > base.MaxRetries+1 {
			return fmt.Errorf("command: timeout after %d tries: %w", iterations-1, aserrors.Timeout)
		}
		if iterations > 1 {
			if base.SleepBetweenRetries > 0 {
				time.Sleep(base.SleepBetweenRetries)
			} else {
				runtime.Gosched()
			}
		}
		if hasDeadline && time.Now().After(deadline) {
			return aserrors.Timeout
		}

		node, err := clus.PickNode(namespace, partitionID, base.Replica, avoidForIteration(avoid, iterations))
		if err != nil {
			continue
		}

		leased, err := node.GetConnection(ctx)
		if err != nil {
			slog.Default().Warn("command: get connection failed", "node", node.Name(), "error", err)
			continue
		}

		applySocketDeadline(leased.Conn, base, deadline, hasDeadline)

		cmd.Build(leased.Conn)
		if err := leased.Conn.Write(leased.Conn.Buffer.Bytes()); err != nil {
			node.DropConnection(leased)
			avoid = node
			continue
		}

		if err := cmd.ParseResult(leased.Conn); err != nil {
			if aserrors.KeepConnection(err) {
				node.PutConnection(leased)
			} else {
				leased.Conn.Invalidate()
				node.DropConnection(leased)
			}
			return err
		}

		node.PutConnection(leased)
		return nil
	}
}

// avoidForIteration implements the even/odd replica-failover heuristic
// (spec.md §9 Design notes): odd-numbered retries (first retry, third
// retry, …; loop iterations 2, 4, …, since the first attempt is iteration
// 1) fail over to the second-choice replica; even-numbered retries retry
// the primary choice in case the transient failure was local to this client.
func avoidForIteration(avoid *cluster.Node, iteration int) *cluster.Node {
	if iteration%2 == 1 {
		return nil
	}
	return avoid
}

func applySocketDeadline(c interface{ SetDeadline(time.Time) error }, base policy.BasePolicy, deadline time.Time, hasDeadline bool) {
	remaining := base.Timeout
	if hasDeadline {
		if until := time.Until(deadline); remaining == 0 || until < remaining {
			remaining = until
		}
	}
	if remaining > 0 {
		_ = c.SetDeadline(time.Now().Add(remaining))
	}
}
