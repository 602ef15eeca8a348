package policy

import (
	"time"

	"github.com/ployz-labs/kvstore-client/types"
)

// BasePolicy holds the fields common to every per-command policy: the
// retry/deadline loop in §4.7 reads these directly off whichever concrete
// policy it was given.
type BasePolicy struct {
	// Timeout is the total deadline for the command including all retries.
	// Zero means no deadline.
	Timeout time.Duration
	// MaxRetries caps retry iterations when HasMaxRetries is set; without
	// it retries are unbounded (subject to Timeout). A value of N allows N
	// retries (N+1 attempts total).
	MaxRetries int
	// HasMaxRetries distinguishes "0 retries allowed" from "unbounded".
	HasMaxRetries bool
	// SleepBetweenRetries is slept before each retry after the first
	// attempt; zero means yield instead of sleeping.
	SleepBetweenRetries time.Duration

	Replica          types.ReplicaPolicy
	ConsistencyLevel types.ConsistencyLevel
	Priority         types.Priority
	SendKey          bool
}

func defaultBasePolicy() BasePolicy {
	return BasePolicy{
		Timeout:       1 * time.Second,
		MaxRetries:    2,
		HasMaxRetries: true,
		Replica:       types.ReplicaSequence,
	}
}

// ReadPolicy configures get/exists/batch reads.
type ReadPolicy struct {
	BasePolicy
}

func DefaultReadPolicy() ReadPolicy {
	return ReadPolicy{BasePolicy: defaultBasePolicy()}
}

// WritePolicy configures put/add/append/prepend/delete/touch/operate writes.
type WritePolicy struct {
	BasePolicy
	GenerationPolicy types.GenerationPolicy
	Generation       uint32
	CommitLevel      types.CommitLevel
	DurableDelete    bool
	// Expiration is the encoded TTL (spec.md §6): 0 = namespace default,
	// 0xFFFFFFFF = never, 0xFFFFFFFE = don't touch on update, else seconds.
	Expiration uint32
	CreateOnly bool
}

func DefaultWritePolicy() WritePolicy {
	return WritePolicy{BasePolicy: defaultBasePolicy()}
}

// ScanPolicy configures scan().
type ScanPolicy struct {
	BasePolicy
	// ConcurrentNodes, when true, runs one stream task per owning node
	// concurrently; when false, nodes are drained one at a time.
	ConcurrentNodes bool
	MaxRecords      uint64
	// RecordsPerSecond is not sent by BuildScan, so scans are not throttled
	// whatever its value.
	RecordsPerSecond uint32
	// SocketTimeout bounds each read on the per-node stream connection.
	SocketTimeout time.Duration
	IncludeBinData bool
}

func DefaultScanPolicy() ScanPolicy {
	return ScanPolicy{
		BasePolicy:      defaultBasePolicy(),
		ConcurrentNodes: true,
		IncludeBinData:  true,
		SocketTimeout:   30 * time.Second,
	}
}

// QueryPolicy configures query() (scan plus a server-side filter).
type QueryPolicy struct {
	ScanPolicy
}

func DefaultQueryPolicy() QueryPolicy {
	return QueryPolicy{ScanPolicy: DefaultScanPolicy()}
}

// BatchPolicy configures batch_get().
type BatchPolicy struct {
	BasePolicy
	Concurrency    types.BatchConcurrency
	AllowInline     bool
	RespondAllKeys  bool
	// MaxConcurrentNodes caps how many sub-batches run in parallel when
	// Concurrency == BatchParallel; 0 means unbounded.
	MaxConcurrentNodes int
}

func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{
		BasePolicy:     defaultBasePolicy(),
		Concurrency:    types.BatchParallel,
		RespondAllKeys: true,
	}
}

// InfoPolicy configures info-protocol calls (node refresh, truncate,
// index/UDF management).
type InfoPolicy struct {
	Timeout time.Duration
}

func DefaultInfoPolicy() InfoPolicy {
	return InfoPolicy{Timeout: 1 * time.Second}
}
