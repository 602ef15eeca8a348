package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ployz-labs/kvstore-client/internal/admin"
	"github.com/ployz-labs/kvstore-client/internal/conn"
	"github.com/ployz-labs/kvstore-client/internal/info"
	"github.com/ployz-labs/kvstore-client/internal/pool"
	"github.com/ployz-labs/kvstore-client/internal/telemetry"
	"github.com/ployz-labs/kvstore-client/policy"
)

// Cluster owns node membership, the partition map, and the single
// serialized tend task that keeps both current (spec.md §4.6). Tend is
// never run concurrently with itself by construction: one background
// goroutine and a close channel.
type Cluster struct {
	policy policy.ClientPolicy
	seeds  []Host
	logger *slog.Logger

	mu      sync.RWMutex
	nodes   map[string]*Node // by node name
	aliases map[Host]*Node

	rrCounter atomic.Uint64

	Partitions *PartitionMap

	// Tracer spans tend cycles when set (SetTracer); nil means untraced.
	Tracer trace.Tracer

	closeOnce sync.Once
	closeCh   chan struct{}
	doneCh    chan struct{}
}

// SetTracer installs tracer for future tend cycles. Safe to call once
// during setup, before the background tend loop starts reading it.
func (c *Cluster) SetTracer(tracer trace.Tracer) {
	c.Tracer = tracer
}

// New seeds a Cluster, runs the synchronous stabilization loop, and
// starts the background tend task.
func New(ctx context.Context, cp policy.ClientPolicy, seeds []Host) (*Cluster, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("cluster: at least one seed host is required")
	}

	c := &Cluster{
		policy:     cp,
		seeds:      seeds,
		logger:     slog.Default().With("component", "cluster"),
		nodes:      make(map[string]*Node),
		aliases:    make(map[Host]*Node),
		Partitions: NewPartitionMap(),
		closeCh:    make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	if err := c.waitTillStabilized(ctx); err != nil {
		return nil, err
	}
	if cp.FailIfNotConnected && len(c.nodeList()) == 0 {
		return nil, fmt.Errorf("cluster: failed to connect to any seed host")
	}

	go c.tendLoop()
	return c, nil
}

// dialer builds the pool.Dialer for a node: open the TCP session, then
// authenticate if credentials are configured. This is the single
// chokepoint every connection — prewarmed or on-demand — passes through.
func (c *Cluster) dialer(addr string) pool.Dialer {
	return func(ctx context.Context) (*conn.Conn, error) {
		nc, err := conn.Dial(ctx, addr, int(c.policy.IdleTimeout), c.policy.BufferReclaimThreshold)
		if err != nil {
			return nil, err
		}
		if c.policy.RequiresAuthentication() {
			if err := admin.Login(nc, c.policy.User, c.policy.Password); err != nil {
				_ = nc.Close()
				return nil, fmt.Errorf("cluster: authenticate %s: %w", addr, err)
			}
		}
		return nc, nil
	}
}

func (c *Cluster) nodeList() []*Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	return out
}

func (c *Cluster) aliasSnapshot() map[Host]*Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Host]*Node, len(c.aliases))
	for h, n := range c.aliases {
		out[h] = n
	}
	return out
}

// waitTillStabilized runs tend cycles with a 1ms inter-cycle sleep until
// the node count stops changing or StabilizationTimeout elapses
// (spec.md §4.6).
func (c *Cluster) waitTillStabilized(ctx context.Context) error {
	deadline := time.Now().Add(c.policy.StabilizationTimeout)
	lastCount := -1

	for time.Now().Before(deadline) {
		if err := c.tendOnce(ctx); err != nil {
			c.logger.Warn("tend cycle failed during stabilization", "error", err)
		}
		count := len(c.nodeList())
		if count == lastCount {
			return nil
		}
		lastCount = count
		time.Sleep(1 * time.Millisecond)
	}
	return nil
}

func (c *Cluster) tendLoop() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.policy.TendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			if err := c.tendOnce(context.Background()); err != nil {
				c.logger.Warn("tend cycle failed", "error", err)
			}
		}
	}
}

// tendOnce runs one full tend cycle (spec.md §4.6 steps 1-4).
func (c *Cluster) tendOnce(ctx context.Context) (err error) {
	ctx, span := telemetry.Start(ctx, c.Tracer, "cluster.tend")
	defer func() { span.End(err) }()

	nodes := c.nodeList()

	if len(nodes) == 0 {
		err = c.seed(ctx)
		return err
	}

	currentAliases := c.aliasSnapshot()
	var friends []Host
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, n := range nodes {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			prevGen := n.PartitionGeneration()
			newFriends, err := n.Refresh(ctx, currentAliases)
			if err != nil {
				c.logger.Debug("node refresh failed", "node", n.Name(), "error", err)
				return
			}
			mu.Lock()
			friends = append(friends, newFriends...)
			mu.Unlock()

			if n.PartitionGeneration() != prevGen {
				if err := c.refreshPartitions(ctx, n); err != nil {
					c.logger.Warn("partition map refresh failed", "node", n.Name(), "error", err)
				}
			}
		}()
	}
	wg.Wait()

	c.addFriends(ctx, friends)
	c.removeNodes()
	return nil
}

// refreshPartitions asks for all three replicas formats at once — a
// server answers only the ones it understands — and lets
// PartitionMap.UpdateFromInfo pick modern over intermediate over legacy.
func (c *Cluster) refreshPartitions(ctx context.Context, n *Node) error {
	infoMap, err := n.Info(ctx, "replicas", "replicas-all", "replicas-master")
	if err != nil {
		return err
	}
	return c.Partitions.UpdateFromInfo(n, infoMap)
}

// seed implements spec.md §4.6 step 1: open a throwaway connection per
// seed host, run a validation info call, and construct a Node, skipping
// duplicates by name.
func (c *Cluster) seed(ctx context.Context) error {
	for _, host := range c.seeds {
		name, featureStr, err := c.validateHost(ctx, host)
		if err != nil {
			c.logger.Debug("seed host failed validation", "host", host, "error", err)
			continue
		}

		c.mu.Lock()
		if existing, ok := c.nodes[name]; ok {
			c.mu.Unlock()
			existing.AddAlias(host)
			c.mu.Lock()
			c.aliases[host] = existing
			c.mu.Unlock()
			continue
		}
		c.mu.Unlock()

		n := NewNode(c.policy, name, []Host{host}, c.dialer(host.Address()), parseFeatures(featureStr))
		c.mu.Lock()
		c.nodes[name] = n
		c.aliases[host] = n
		c.mu.Unlock()
	}
	return nil
}

// validateHost opens a throwaway connection to host and runs the
// validation info call (node/cluster-name/features).
func (c *Cluster) validateHost(ctx context.Context, host Host) (name string, features string, err error) {
	nc, err := validationDial(ctx, host.Address())
	if err != nil {
		return "", "", fmt.Errorf("cluster: dial %s: %w", host, err)
	}
	defer nc.Close()

	if c.policy.RequiresAuthentication() {
		if err := admin.Login(nc, c.policy.User, c.policy.Password); err != nil {
			return "", "", fmt.Errorf("cluster: authenticate %s: %w", host, err)
		}
	}

	infoMap, err := info.Request(nc, "node", "cluster-name", "features")
	if err != nil {
		return "", "", fmt.Errorf("cluster: info %s: %w", host, err)
	}

	name, ok := infoMap["node"]
	if !ok {
		return "", "", fmt.Errorf("cluster: %s: missing node name", host)
	}
	if c.policy.ClusterName != "" {
		got, ok := infoMap["cluster-name"]
		if !ok || got != c.policy.ClusterName {
			return "", "", fmt.Errorf("cluster: %s: cluster-name mismatch", host)
		}
	}
	return name, infoMap["features"], nil
}

// addFriends implements spec.md §4.6 step 3.
func (c *Cluster) addFriends(ctx context.Context, friends []Host) {
	for _, host := range friends {
		name, featureStr, err := c.validateHost(ctx, host)
		if err != nil {
			c.logger.Debug("friend host failed validation", "host", host, "error", err)
			continue
		}

		c.mu.Lock()
		if existing, ok := c.nodes[name]; ok {
			c.mu.Unlock()
			existing.AddAlias(host)
			c.mu.Lock()
			c.aliases[host] = existing
			c.mu.Unlock()
			continue
		}
		n := NewNode(c.policy, name, []Host{host}, c.dialer(host.Address()), parseFeatures(featureStr))
		c.nodes[name] = n
		c.aliases[host] = n
		c.mu.Unlock()
	}
}

// removeNodes implements spec.md §4.6 step 4. A node is removed
// immediately if inactive; for a cluster of size 1, after 5 consecutive
// info failures; for size 2, after the *other* node completes one
// successful refresh while this one has failures and a zero reference
// count; for size >= 3, only once the zero-reference-count-plus-orphaned
// condition has held for 2 consecutive tend cycles, never on the first
// offending cycle.
func (c *Cluster) removeNodes() {
	nodes := c.nodeList()
	clusterSize := len(nodes)

	for _, n := range nodes {
		remove := false
		switch {
		case !n.IsActive():
			remove = true
		case clusterSize == 1:
			remove = n.Failures() >= 5
		case clusterSize == 2:
			remove = n.Failures() > 0 && n.ReferenceCount() == 0 && otherNodeRefreshed(nodes, n)
		default:
			if n.ReferenceCount() == 0 && (n.Failures() > 0 || !c.inAnyPartitionSlot(n)) {
				remove = n.markOrphanCycle() >= 2
			} else {
				n.resetOrphanCycles()
			}
		}

		if remove {
			c.removeNode(n)
		}
	}
}

// otherNodeRefreshed reports whether some node other than self completed
// a successful refresh on the current tend cycle.
func otherNodeRefreshed(nodes []*Node, self *Node) bool {
	for _, n := range nodes {
		if n == self {
			continue
		}
		if n.Responded() {
			return true
		}
	}
	return false
}

func (c *Cluster) inAnyPartitionSlot(n *Node) bool {
	c.Partitions.mu.RLock()
	defer c.Partitions.mu.RUnlock()
	for _, np := range c.Partitions.namespaces {
		for _, replica := range np.replicas {
			for _, owner := range replica {
				if owner == n {
					return true
				}
			}
		}
	}
	return false
}

func (c *Cluster) removeNode(n *Node) {
	c.mu.Lock()
	delete(c.nodes, n.Name())
	for h, other := range c.aliases {
		if other == n {
			delete(c.aliases, h)
		}
	}
	c.mu.Unlock()
	n.Close()
	c.logger.Info("removed node", "node", n.Name())
}

// Close terminates the tend task and closes every node's pool
// (spec.md §5 cancellation).
func (c *Cluster) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		<-c.doneCh
		for _, n := range c.nodeList() {
			n.Close()
		}
	})
}

// Nodes returns the current active node list, for the router (C7).
func (c *Cluster) Nodes() []*Node {
	nodes := c.nodeList()
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if n.IsActive() {
			out = append(out, n)
		}
	}
	return out
}

// GetNode returns a node by name.
func (c *Cluster) GetNode(name string) (*Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[name]
	return n, ok
}

func parseFeatures(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Split(raw, ";") {
		if f != "" {
			out[f] = struct{}{}
		}
	}
	return out
}
