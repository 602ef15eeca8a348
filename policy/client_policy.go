// Package policy holds the tunables passed into the cluster, router, batch
// and stream executors. It mirrors the Rust core's policy module
// (original_source/src/policy/*.rs, aerospike-core/src/policy/*.rs) field for
// field, supplemented per SPEC_FULL.md §3.8.
package policy

import "time"

// ClientPolicy configures the Cluster: tend behavior, connection pooling,
// authentication and rack awareness (SPEC_FULL.md §3.8).
type ClientPolicy struct {
	// User/Password, when both set, enable the LOGIN handshake (§4.12).
	User     string
	Password string

	// Timeout bounds the initial connection to a seed/new host.
	Timeout time.Duration
	// IdleTimeout is how long a pooled connection may sit idle before a
	// later Get() discards it (§4.2).
	IdleTimeout time.Duration

	// MaxConnsPerNode caps the sum of idle+in-use connections per node.
	MaxConnsPerNode int
	// MinConnsPerNode is not read by the cluster or the pool: node refresh
	// does not pre-warm connections.
	MinConnsPerNode int
	// ConnPoolsPerNode shards each node's pool into this many sub-pools (§4.3).
	ConnPoolsPerNode int

	// FailIfNotConnected makes cluster construction fail when seeding
	// produces zero reachable nodes (§4.6 wait_till_stabilized).
	FailIfNotConnected bool

	// BufferReclaimThreshold is the size above which a wire buffer shrinks
	// its backing array on reset rather than just resetting its cursor (§4.1).
	BufferReclaimThreshold int

	// TendInterval is the sleep between tend cycles (§4.6). Minimum 10ms.
	TendInterval time.Duration
	// Timeout for the synchronous stabilization loop at cluster creation.
	StabilizationTimeout time.Duration

	// IPMap translates server-reported hostnames to externally reachable
	// addresses (SPEC_FULL.md §3.7).
	IPMap map[string]string
	// UseServicesAlternate selects "services-alternate" over "services" in
	// the node refresh info call (§4.4).
	UseServicesAlternate bool

	// ClusterName, when set, must match every node's reported cluster-name.
	ClusterName string

	// RackAware enables the rebalance-generation info round and rack
	// filtering in routing decisions.
	RackAware bool
	RackIDs   []int
}

// DefaultClientPolicy matches the Rust core's Default impl.
func DefaultClientPolicy() ClientPolicy {
	return ClientPolicy{
		Timeout:                30 * time.Second,
		IdleTimeout:            5 * time.Second,
		MaxConnsPerNode:        256,
		ConnPoolsPerNode:       1,
		FailIfNotConnected:     true,
		BufferReclaimThreshold: 65536,
		TendInterval:           1 * time.Second,
		StabilizationTimeout:   3 * time.Second,
	}
}

// RequiresAuthentication reports whether a LOGIN handshake should run on
// newly opened connections.
func (p ClientPolicy) RequiresAuthentication() bool {
	return p.User != ""
}
