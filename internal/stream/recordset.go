// Package stream implements the scan()/query() streaming executor
// (spec.md §4.9): per-node partition assignment, a bounded result queue
// with backpressure and cancellation, and partition-level resume tracking.
package stream

import (
	"sync/atomic"

	"github.com/ployz-labs/kvstore-client/internal/command"
	"github.com/ployz-labs/kvstore-client/types"
)

// Record is one decoded scan/query result.
type Record struct {
	Key        command.Key
	Bins       map[string]types.Value
	Generation uint32
	Expiration uint32
}

// Result is one entry of a Recordset: exactly one of Record or Err is set.
type Result struct {
	Record *Record
	Err    error
}

// Recordset is the consumer-facing handle for one scan/query: a bounded
// queue fed by one or more per-node producer goroutines (spec.md §4.9
// Recordset, §5 backpressure/cancellation).
type Recordset struct {
	results    chan Result
	active     atomic.Bool
	producers  atomic.Int64
	cancelFunc func()
	tracker    *PartitionTracker
}

// queueDepth is the Recordset channel capacity: large enough to smooth
// over scheduling jitter between producers and the consumer without
// unbounded memory growth (spec.md §5 bounded queue).
const queueDepth = 256

func newRecordset(cancel func(), tracker *PartitionTracker) *Recordset {
	rs := &Recordset{
		results:    make(chan Result, queueDepth),
		cancelFunc: cancel,
		tracker:    tracker,
	}
	rs.active.Store(true)
	return rs
}

// Filter exports the current resume cursor for every tracked partition, so
// the caller can persist it and pre-seed a later Scan/Query/ScanNode/
// QueryNode call to continue from here (spec.md §4.9's reusable
// PartitionFilter). Safe to call at any point, including before the set
// has finished draining.
func (rs *Recordset) Filter() PartitionFilter { return rs.tracker.Export() }

// Results returns the channel of incoming records/errors. It is closed once
// every producer has finished; after Close, each producer finishes at its
// next push or loop check.
func (rs *Recordset) Results() <-chan Result { return rs.results }

// Close cancels every in-flight producer and marks the set inactive; any
// producer blocked pushing a result unblocks and exits (spec.md §5
// cancellation invalidates the in-flight connection rather than waiting
// for it to drain).
func (rs *Recordset) Close() {
	rs.active.Store(false)
	rs.cancelFunc()
	go func() {
		for range rs.results {
		}
	}()
}

// active reports whether producers should keep pushing.
func (rs *Recordset) isActive() bool { return rs.active.Load() }

func (rs *Recordset) addProducer(n int64) { rs.producers.Add(n) }

// push attempts to enqueue res, returning false if the set was closed
// before the value could be delivered.
func (rs *Recordset) push(res Result) bool {
	if !rs.isActive() {
		return false
	}
	select {
	case rs.results <- res:
		return true
	default:
	}
	// Queue full: block, but re-check active state once unblocked so a
	// Close() racing with a full queue does not wedge the producer.
	rs.results <- res
	return rs.isActive()
}

func (rs *Recordset) producerDone() {
	if rs.producers.Add(-1) == 0 {
		close(rs.results)
	}
}
