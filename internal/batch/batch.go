// Package batch implements batch_get() (spec.md §4.8): group keys by the
// node that owns their partition, chunk each group to a wire-safe size, and
// run the sub-batches sequentially or in parallel before reassembling
// results in the caller's original order.
package batch

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ployz-labs/kvstore-client/internal/aserrors"
	"github.com/ployz-labs/kvstore-client/internal/cluster"
	"github.com/ployz-labs/kvstore-client/internal/command"
	"github.com/ployz-labs/kvstore-client/internal/telemetry"
	"github.com/ployz-labs/kvstore-client/policy"
	"github.com/ployz-labs/kvstore-client/types"
)

// MaxRequestSize caps how many keys one wire request packs together, the
// same way a single oversized command is avoided elsewhere (spec.md §4.8).
const MaxRequestSize = 5000

// Result is one key's outcome; Err is nil and Existed reports whether the
// key resolved, exactly like the single-key exists()/get() split (spec.md
// §4.10) but per-entry inside the batch.
type Result struct {
	Index   int
	Key     command.Key
	Existed bool
	Bins    map[string]types.Value
	Err     error
}

// Get runs batch_get(): every key in keys is routed independently but
// requests are grouped by destination node before being sent (spec.md §4.8,
// §8 scenario 4 ordering guarantee).
func Get(ctx context.Context, clus *cluster.Cluster, namespace string, pol policy.BatchPolicy, keys []command.Key, bins types.Bins) ([]Result, error) {
	results := make([]Result, len(keys))

	groups := groupByNode(clus, namespace, pol, keys)
	if len(groups) == 0 {
		return results, nil
	}

	chunks := chunkGroups(groups)

	if pol.Concurrency == types.BatchSequential {
		for _, ch := range chunks {
			runSubBatch(ctx, clus, namespace, pol, bins, ch, results)
		}
		return results, nil
	}

	limit := pol.MaxConcurrentNodes
	if limit <= 0 {
		limit = len(chunks)
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, ch := range chunks {
		ch := ch
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			runSubBatch(ctx, clus, namespace, pol, bins, ch, results)
		}()
	}
	wg.Wait()
	return results, nil
}

type nodeGroup struct {
	node *cluster.Node
	keys []command.BatchKey
}

func groupByNode(clus *cluster.Cluster, namespace string, pol policy.BatchPolicy, keys []command.Key) []nodeGroup {
	byNode := make(map[*cluster.Node]*nodeGroup)
	var order []*cluster.Node

	for i, k := range keys {
		pid := command.PartitionID(k.Digest)
		node, err := clus.PickNode(namespace, pid, pol.Replica, nil)
		if err != nil {
			continue
		}
		g, ok := byNode[node]
		if !ok {
			g = &nodeGroup{node: node}
			byNode[node] = g
			order = append(order, node)
		}
		g.keys = append(g.keys, command.BatchKey{Index: i, Key: k})
	}

	out := make([]nodeGroup, 0, len(order))
	for _, n := range order {
		out = append(out, *byNode[n])
	}
	return out
}

func chunkGroups(groups []nodeGroup) []nodeGroup {
	var out []nodeGroup
	for _, g := range groups {
		for start := 0; start < len(g.keys); start += MaxRequestSize {
			end := start + MaxRequestSize
			if end > len(g.keys) {
				end = len(g.keys)
			}
			out = append(out, nodeGroup{node: g.node, keys: g.keys[start:end]})
		}
	}
	return out
}

// runSubBatch executes one node's chunk, writing every entry's outcome
// directly into results at its original index.
func runSubBatch(ctx context.Context, clus *cluster.Cluster, namespace string, pol policy.BatchPolicy, bins types.Bins, group nodeGroup, results []Result) {
	ctx, span := telemetry.Start(ctx, clus.Tracer, "batch.sub_batch",
		attribute.String(telemetry.AttrNamespace, namespace),
		attribute.Int(telemetry.AttrKeyCount, len(group.keys)))
	err := attemptSubBatch(ctx, clus, namespace, pol, bins, group.keys, results)
	span.End(err)
}

// attemptSubBatch runs the retry loop for one chunk of keys, structured
// after the single-command executor (spec.md §4.7) but driving ReadFrames
// to collect many records from one request. Every entry gets a Result
// written into results before this returns — either a server response, or
// (once retries/deadline are exhausted) an error — so no key is silently
// dropped (RespondAllKeys's contract).
//
// Each retry re-shards whichever keys didn't get a response onto each
// key's own current destination node (spec.md §4.8): different keys in
// the same chunk generally owe their original grouping to sharing one
// master, not one second-choice replica, so a retry must never resend the
// whole chunk to a single arbitrary key's fallback node.
func attemptSubBatch(ctx context.Context, clus *cluster.Cluster, namespace string, pol policy.BatchPolicy, bins types.Bins, keys []command.BatchKey, results []Result) error {
	base := pol.BasePolicy

	var deadline time.Time
	hasDeadline := base.Timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(base.Timeout)
	}

	pending := keys
	avoid := make(map[int]*cluster.Node)
	iterations := 0
	for len(pending) > 0 {
		iterations++
		if (base.HasMaxRetries && iterations > base.MaxRetries+1) || (hasDeadline && time.Now().After(deadline)) {
			for _, bk := range pending {
				results[bk.Index] = Result{Index: bk.Index, Key: bk.Key, Err: aserrors.Timeout}
			}
			return aserrors.Timeout
		}
		if iterations > 1 {
			if base.SleepBetweenRetries > 0 {
				time.Sleep(base.SleepBetweenRetries)
			} else {
				runtime.Gosched()
			}
		}

		byNode, order, unrouted := regroupByCurrentNode(clus, namespace, pol, pending, avoid, iterations)

		retry := append([]command.BatchKey(nil), unrouted...)
		for _, n := range order {
			nodeKeys := byNode[n]
			if err := sendBatchRequest(ctx, n, pol, bins, nodeKeys, results); err != nil {
				for _, bk := range nodeKeys {
					avoid[bk.Index] = n
				}
				retry = append(retry, nodeKeys...)
			}
		}
		pending = retry
	}
	return nil
}

// regroupByCurrentNode re-shards keys by each one's own current
// destination node ahead of a (re)try. unrouted holds any key whose
// partition currently has no reachable node, which is retried again
// (possibly against a different node) on the next iteration.
func regroupByCurrentNode(clus *cluster.Cluster, namespace string, pol policy.BatchPolicy, keys []command.BatchKey, avoid map[int]*cluster.Node, iteration int) (byNode map[*cluster.Node][]command.BatchKey, order []*cluster.Node, unrouted []command.BatchKey) {
	byNode = make(map[*cluster.Node][]command.BatchKey)
	for _, bk := range keys {
		pid := command.PartitionID(bk.Key.Digest)
		n, err := clus.PickNode(namespace, pid, pol.Replica, avoidIteration(avoid[bk.Index], iteration))
		if err != nil {
			unrouted = append(unrouted, bk)
			continue
		}
		if _, ok := byNode[n]; !ok {
			order = append(order, n)
		}
		byNode[n] = append(byNode[n], bk)
	}
	return byNode, order, unrouted
}

// sendBatchRequest issues one wire request for nodeKeys against n and
// writes every response it parses into results. Only a transport/framing
// failure (not a per-key server error) is returned, since per-key server
// errors are themselves terminal results, not cause for a retry.
func sendBatchRequest(ctx context.Context, n *cluster.Node, pol policy.BatchPolicy, bins types.Bins, nodeKeys []command.BatchKey, results []Result) error {
	leased, err := n.GetConnection(ctx)
	if err != nil {
		return err
	}

	command.BuildBatchRead(leased.Conn.Buffer, pol, nodeKeys, bins)
	if err := leased.Conn.Write(leased.Conn.Buffer.Bytes()); err != nil {
		n.DropConnection(leased)
		return err
	}

	parseErr := command.ReadFrames(leased.Conn, func(resp *command.Response) (bool, error) {
		idx := resp.BatchIndex
		if idx < 0 || idx >= len(results) {
			return false, nil
		}
		switch resp.ResultCode {
		case 0:
			results[idx] = Result{Index: idx, Key: resp.Key, Existed: true, Bins: resp.Bins}
		case aserrors.ResultKeyNotFoundError:
			results[idx] = Result{Index: idx, Key: resp.Key, Existed: false}
		default:
			results[idx] = Result{Index: idx, Key: resp.Key, Err: resp.Err()}
		}
		return false, nil
	})
	if parseErr != nil {
		leased.Conn.Invalidate()
		n.DropConnection(leased)
		return parseErr
	}

	n.PutConnection(leased)
	return nil
}

func avoidIteration(avoid *cluster.Node, iteration int) *cluster.Node {
	if iteration%2 == 1 {
		return nil
	}
	return avoid
}
