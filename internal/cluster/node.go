// Package cluster implements the node registry, partition map, and tend
// loop (spec.md §4.4–§4.6): the part of the client that knows which
// server owns which partition and keeps that knowledge current.
package cluster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ployz-labs/kvstore-client/internal/conn"
	"github.com/ployz-labs/kvstore-client/internal/info"
	"github.com/ployz-labs/kvstore-client/internal/pool"
	"github.com/ployz-labs/kvstore-client/policy"
)

const (
	infoPartitionGeneration = "partition-generation"
	infoRebalanceGeneration = "rebalance-generation"
)

// Node is one server's connection pool plus the membership state the
// tend loop maintains about it (spec.md §4.4).
type Node struct {
	clientPolicy policy.ClientPolicy
	name         string
	address      string

	pool *pool.Pool

	aliasesMu sync.Mutex
	aliases   []Host

	rackMu  sync.Mutex
	rackIDs map[string]int

	failures           atomic.Int64
	partitionGen       atomic.Int64
	rebalanceGen       atomic.Int64
	refreshCount       atomic.Int64
	referenceCount     atomic.Int64
	responded          atomic.Bool
	active             atomic.Bool
	orphanCycles       atomic.Int64

	features map[string]struct{}
}

// NewNode builds a Node from a validated seed/friend host. dial opens and
// authenticates a new connection to this node's address (wired by the
// cluster with admin.Login bound in). features is the node's semicolon-
// delimited feature set from the validation info call; it is stored and
// exposed through HasFeature, and the partition refresh does not consult it.
func NewNode(cp policy.ClientPolicy, name string, aliases []Host, dial pool.Dialer, features map[string]struct{}) *Node {
	n := &Node{
		clientPolicy: cp,
		name:         name,
		address:      aliases[0].Address(),
		aliases:      append([]Host(nil), aliases...),
		rackIDs:      make(map[string]int),
		features:     features,
	}
	n.partitionGen.Store(-1)
	if len(cp.RackIDs) > 0 {
		n.rebalanceGen.Store(-1)
	}
	n.active.Store(true)
	n.pool = pool.New(cp.MaxConnsPerNode, cp.ConnPoolsPerNode, dial)
	return n
}

// HasFeature reports whether the node advertised feature at validation
// time (e.g. "replicas-all", "batch-index", "float", "geo").
func (n *Node) HasFeature(feature string) bool {
	_, ok := n.features[feature]
	return ok
}

func (n *Node) Name() string    { return n.name }
func (n *Node) Address() string { return n.address }
func (n *Node) IsActive() bool  { return n.active.Load() }
func (n *Node) Failures() int64 { return n.failures.Load() }
func (n *Node) ReferenceCount() int64 { return n.referenceCount.Load() }
func (n *Node) PartitionGeneration() int64 { return n.partitionGen.Load() }

func (n *Node) Aliases() []Host {
	n.aliasesMu.Lock()
	defer n.aliasesMu.Unlock()
	return append([]Host(nil), n.aliases...)
}

// AddAlias records a newly discovered address for an already-known node
// and credits its reference count (spec.md §4.6 step 3).
func (n *Node) AddAlias(h Host) {
	n.aliasesMu.Lock()
	n.aliases = append(n.aliases, h)
	n.aliasesMu.Unlock()
	n.referenceCount.Add(1)
}

func (n *Node) inactivate() { n.active.Store(false) }

func (n *Node) increaseFailures() int64 { return n.failures.Add(1) }

func (n *Node) resetFailures() { n.failures.Store(0) }

// Responded reports whether this node's most recently completed refresh
// cycle (Refresh) validated successfully. It is cleared at the start of
// every Refresh call and set as soon as that call's info reply validates
// (later steps of the same call can still fail), so reading it between
// tend cycles answers "did the last refresh of this node get a valid
// reply" (spec.md §4.6 step 4's size==2 removal rule).
func (n *Node) Responded() bool { return n.responded.Load() }

// markOrphanCycle records one more consecutive tend cycle during which
// this node met the size>=3 removal criteria (zero reference count, plus
// either failures or absence from the partition map), and returns the new
// streak length. removeNodes removes the node once this reaches 2,
// matching spec.md §4.6 step 4's "two consecutive refresh cycles" rule.
func (n *Node) markOrphanCycle() int64 { return n.orphanCycles.Add(1) }

// resetOrphanCycles clears the streak once the node no longer meets the
// removal criteria on a given tend cycle.
func (n *Node) resetOrphanCycles() { n.orphanCycles.Store(0) }

// GetConnection checks out a connection from this node's pool.
func (n *Node) GetConnection(ctx context.Context) (*pool.Leased, error) {
	return n.pool.Get(ctx)
}

func (n *Node) PutConnection(l *pool.Leased) { n.pool.Put(l) }
func (n *Node) DropConnection(l *pool.Leased) { n.pool.Drop(l) }

// Close inactivates the node and releases its idle connections.
func (n *Node) Close() {
	n.inactivate()
	n.pool.Close()
}

// Info runs an info batch against this node, invalidating the connection
// used on any failure (spec.md §4.4 Info call).
func (n *Node) Info(ctx context.Context, commands ...string) (map[string]string, error) {
	l, err := n.GetConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster: node %s: get connection: %w", n.name, err)
	}
	m, err := info.Request(l.Conn, commands...)
	if err != nil {
		l.Conn.Invalidate()
		n.DropConnection(l)
		return nil, fmt.Errorf("cluster: node %s: info: %w", n.name, err)
	}
	n.PutConnection(l)
	return m, nil
}

func (n *Node) servicesName() string {
	if n.clientPolicy.UseServicesAlternate {
		return "services-alternate"
	}
	return "services"
}

// Refresh runs the node refresh protocol (spec.md §4.4) and returns any
// newly discovered peer hosts ("friends").
func (n *Node) Refresh(ctx context.Context, currentAliases map[Host]*Node) ([]Host, error) {
	n.referenceCount.Store(0)
	n.responded.Store(false)
	n.refreshCount.Add(1)

	commands := []string{"node", "cluster-name", infoPartitionGeneration, n.servicesName()}
	if len(n.clientPolicy.RackIDs) > 0 {
		commands = append(commands, infoRebalanceGeneration)
	}

	infoMap, err := n.Info(ctx, commands...)
	if err != nil {
		n.increaseFailures()
		return nil, fmt.Errorf("cluster: node %s: refresh: %w", n.name, err)
	}

	if err := n.validate(infoMap); err != nil {
		n.increaseFailures()
		return nil, err
	}
	n.responded.Store(true)

	friends, err := n.addFriends(currentAliases, infoMap)
	if err != nil {
		n.increaseFailures()
		return nil, fmt.Errorf("cluster: node %s: parse services: %w", n.name, err)
	}

	if err := n.updatePartitionGeneration(infoMap); err != nil {
		n.increaseFailures()
		return nil, err
	}
	n.updateRebalanceGeneration(infoMap)

	n.resetFailures()
	return friends, nil
}

func (n *Node) validate(infoMap map[string]string) error {
	name, ok := infoMap["node"]
	if !ok {
		return fmt.Errorf("cluster: node %s: missing node name in refresh response", n.name)
	}
	if name != n.name {
		n.inactivate()
		return fmt.Errorf("cluster: node name changed: %q => %q", n.name, name)
	}

	if n.clientPolicy.ClusterName == "" {
		return nil
	}
	got, ok := infoMap["cluster-name"]
	if !ok {
		return fmt.Errorf("cluster: node %s: missing cluster-name in refresh response", n.name)
	}
	if got != n.clientPolicy.ClusterName {
		n.inactivate()
		return fmt.Errorf("cluster: cluster-name mismatch: expected %q, got %q", n.clientPolicy.ClusterName, got)
	}
	return nil
}

func (n *Node) addFriends(currentAliases map[Host]*Node, infoMap map[string]string) ([]Host, error) {
	var friends []Host

	friendString, ok := infoMap[n.servicesName()]
	if !ok {
		return nil, fmt.Errorf("cluster: node %s: missing %s in refresh response", n.name, n.servicesName())
	}
	if friendString == "" {
		return friends, nil
	}

	for _, entry := range strings.Split(friendString, ";") {
		hostStr, portStr, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			continue
		}

		alias := Host{Name: hostStr, Port: uint16(port)}
		if mapped, ok := n.clientPolicy.IPMap[hostStr]; ok {
			alias.Name = mapped
		}

		if _, known := currentAliases[alias]; known {
			n.referenceCount.Add(1)
			continue
		}
		if !containsHost(friends, alias) {
			friends = append(friends, alias)
		}
	}
	return friends, nil
}

func containsHost(hosts []Host, h Host) bool {
	for _, x := range hosts {
		if x == h {
			return true
		}
	}
	return false
}

func (n *Node) updatePartitionGeneration(infoMap map[string]string) error {
	genStr, ok := infoMap[infoPartitionGeneration]
	if !ok {
		return fmt.Errorf("cluster: node %s: missing partition-generation", n.name)
	}
	gen, err := strconv.ParseInt(genStr, 10, 64)
	if err != nil {
		return fmt.Errorf("cluster: node %s: bad partition-generation %q: %w", n.name, genStr, err)
	}
	n.partitionGen.Store(gen)
	return nil
}

func (n *Node) updateRebalanceGeneration(infoMap map[string]string) {
	genStr, ok := infoMap[infoRebalanceGeneration]
	if !ok {
		return
	}
	if gen, err := strconv.ParseInt(genStr, 10, 64); err == nil {
		n.rebalanceGen.Store(gen)
	}
}

// IsInRack reports whether this node's rack id for namespace is among
// rackIDs.
func (n *Node) IsInRack(namespace string, rackIDs map[int]struct{}) bool {
	n.rackMu.Lock()
	defer n.rackMu.Unlock()
	id, ok := n.rackIDs[namespace]
	if !ok {
		return false
	}
	_, in := rackIDs[id]
	return in
}

// ParseRack updates the node's per-namespace rack map from a
// semicolon-separated "ns:rack_id" list.
func (n *Node) ParseRack(buf string) error {
	table := make(map[string]int)
	for _, entry := range strings.Split(buf, ";") {
		if entry == "" {
			continue
		}
		ns, idStr, ok := strings.Cut(entry, ":")
		if !ok {
			return fmt.Errorf("cluster: invalid rack entry %q", entry)
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return fmt.Errorf("cluster: invalid rack id in %q: %w", entry, err)
		}
		table[ns] = id
	}
	n.rackMu.Lock()
	n.rackIDs = table
	n.rackMu.Unlock()
	return nil
}

// validationDial opens a throwaway connection used only to seed/validate
// a host before a Node exists for it (spec.md §4.6 step 1).
func validationDial(ctx context.Context, addr string) (*conn.Conn, error) {
	return conn.Dial(ctx, addr, 0, 0)
}
