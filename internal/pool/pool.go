// Package pool implements the per-node connection pool (spec.md §4.3):
// a fixed number of sub-pools, each a mutex-guarded deque of idle
// connections gated by a counting semaphore. The mutex never crosses an
// await/I-O boundary (spec.md §5); the semaphore is taken without waiting,
// and the only waits are the open-rate limiter and the dial on the
// connect-new-conn path.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ployz-labs/kvstore-client/internal/conn"
)

const openDeadline = 5 * time.Second

// Dialer opens a new connection to the node this pool serves.
type Dialer func(ctx context.Context) (*conn.Conn, error)

// subPool is one shard: a synchronous deque of idle connections behind a
// plain mutex, plus a counting semaphore bounding total outstanding
// (idle+checked-out) connections for this shard.
type subPool struct {
	mu   sync.Mutex
	idle []*conn.Conn

	permits chan struct{}
}

func newSubPool(capacity int) *subPool {
	return &subPool{permits: make(chan struct{}, capacity)}
}

// Pool is a node's full connection pool: ConnPoolsPerNode sub-pools,
// round-robined across by Get. opener dials a fresh connection when a
// sub-pool's idle deque is empty; openLimiter throttles how fast new
// connections may be dialed, independent of how many already exist.
type Pool struct {
	opener      Dialer
	subPools    []*subPool
	next        atomicCounter
	openLimiter *rate.Limiter
}

// New builds a Pool with maxConns spread across numSubPools shards — the
// remainder of an uneven division goes to the first shards (spec.md §4.3).
func New(maxConns, numSubPools int, opener Dialer) *Pool {
	if numSubPools < 1 {
		numSubPools = 1
	}
	base := maxConns / numSubPools
	remainder := maxConns % numSubPools

	subPools := make([]*subPool, numSubPools)
	for i := range subPools {
		cap := base
		if i < remainder {
			cap++
		}
		subPools[i] = newSubPool(cap)
	}

	return &Pool{
		opener:      opener,
		subPools:    subPools,
		openLimiter: rate.NewLimiter(rate.Limit(numSubPools*10), numSubPools*10),
	}
}

// Leased is a connection checked out of a Pool, remembering which
// sub-pool it must be returned to so Put/Drop release the right permit.
type Leased struct {
	Conn *conn.Conn
	sp   *subPool
}

// Get returns an idle connection or dials a new one. It never blocks
// waiting for capacity: if the chosen sub-pool's semaphore has no spare
// permit, it reports pool exhaustion immediately (spec.md §4.3).
func (p *Pool) Get(ctx context.Context) (*Leased, error) {
	sp := p.subPools[p.next.next()%uint64(len(p.subPools))]

	select {
	case sp.permits <- struct{}{}:
	default:
		return nil, fmt.Errorf("pool: too many connections")
	}

	c, err := sp.acquireIdleOrDial(ctx, p.opener, p.openLimiter)
	if err != nil {
		<-sp.permits
		return nil, err
	}
	return &Leased{Conn: c, sp: sp}, nil
}

// acquireIdleOrDial drains idle entries from the head of the deque,
// dropping any that have gone idle-timeout or invalid, and dials a new
// connection if none remain live.
func (sp *subPool) acquireIdleOrDial(ctx context.Context, opener Dialer, limiter *rate.Limiter) (*conn.Conn, error) {
	for {
		sp.mu.Lock()
		if len(sp.idle) == 0 {
			sp.mu.Unlock()
			break
		}
		c := sp.idle[0]
		sp.idle = sp.idle[1:]
		sp.mu.Unlock()

		if c.Invalid() || c.IsIdle() {
			_ = c.Close()
			continue
		}
		return c, nil
	}

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pool: open rate limit: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, openDeadline)
	defer cancel()
	c, err := opener(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("pool: open new connection: %w", err)
	}
	return c, nil
}

// Put returns l's connection to its originating sub-pool, or discards it
// (releasing the permit without re-queuing) if it has been invalidated.
func (p *Pool) Put(l *Leased) {
	if l.Conn.Invalid() {
		p.Drop(l)
		return
	}
	l.sp.mu.Lock()
	l.sp.idle = append(l.sp.idle, l.Conn)
	l.sp.mu.Unlock()
	<-l.sp.permits
}

// Drop closes l's connection asynchronously and releases its permit
// without re-queuing it, per the pool's drop_conn semantics.
func (p *Pool) Drop(l *Leased) {
	go l.Conn.Close()
	<-l.sp.permits
}

// NumSubPools reports the shard count.
func (p *Pool) NumSubPools() int { return len(p.subPools) }

// PreWarm opens up to minConns connections spread evenly across sub-pools
// and immediately idles them, so the first requests after a node joins
// don't pay a dial cost. Nothing in this module calls it, and
// ClientPolicy.MinConnsPerNode is not passed to it.
func (p *Pool) PreWarm(ctx context.Context, minConns int) error {
	var leased []*Leased
	defer func() {
		for _, l := range leased {
			p.Put(l)
		}
	}()
	for i := 0; i < minConns; i++ {
		l, err := p.Get(ctx)
		if err != nil {
			return fmt.Errorf("pool: prewarm: %w", err)
		}
		leased = append(leased, l)
	}
	return nil
}

// Close drains and closes every idle connection in every sub-pool. In-use
// connections are closed by their holder's eventual Drop.
func (p *Pool) Close() {
	for _, sp := range p.subPools {
		sp.mu.Lock()
		idle := sp.idle
		sp.idle = nil
		sp.mu.Unlock()
		for _, c := range idle {
			_ = c.Close()
		}
	}
}
