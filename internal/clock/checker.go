// Package clock runs a background NTP check against an external time
// source, surfacing how far the local clock has drifted. Record expiration
// (spec.md §3, record.go's clockSkewFloor) is computed against the local
// wall clock, so persistent client/server clock skew silently skews every
// TimeToLive() result; this package gives callers a way to monitor that.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"github.com/ployz-labs/kvstore-client/internal/check"
)

const (
	defaultPool      = "pool.ntp.org"
	defaultInterval  = 60 * time.Second
	defaultThreshold = 500 * time.Millisecond
)

// Phase is the checker's coarse health classification.
type Phase uint8

const (
	PhaseUnchecked Phase = iota + 1
	PhaseHealthy
	PhaseUnhealthyOffset
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseUnchecked:
		return "unchecked"
	case PhaseHealthy:
		return "healthy"
	case PhaseUnhealthyOffset:
		return "unhealthy_offset"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the result of the most recent check.
type Status struct {
	Offset    time.Duration
	Phase     Phase
	Error     string
	CheckedAt time.Time
}

// Checker periodically queries an NTP pool and records the observed clock
// offset, flagging anything past threshold as unhealthy.
type Checker struct {
	mu        sync.RWMutex
	status    Status
	pool      string
	interval  time.Duration
	threshold time.Duration

	// QueryFunc overrides the real NTP query, for tests.
	QueryFunc func(pool string) (time.Duration, error)
}

// NewChecker builds a Checker against pool (defaultPool if empty), checking
// every interval (defaultInterval if zero) and flagging offsets beyond
// threshold (defaultThreshold if zero).
func NewChecker(pool string, interval, threshold time.Duration) *Checker {
	if pool == "" {
		pool = defaultPool
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	check.Assert(interval > 0, "clock.NewChecker: interval must be positive")
	return &Checker{
		pool:      pool,
		interval:  interval,
		threshold: threshold,
		status:    Status{Phase: PhaseUnchecked},
	}
}

// Run checks immediately, then every interval, until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.check()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.check()
		}
	}
}

func (c *Checker) check() {
	query := c.QueryFunc
	if query == nil {
		query = queryOffset
	}

	offset, err := query(c.pool)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if err != nil {
		c.status = Status{Error: err.Error(), Phase: PhaseError, CheckedAt: now}
		return
	}

	phase := PhaseUnhealthyOffset
	if abs(offset) < c.threshold {
		phase = PhaseHealthy
	}
	c.status = Status{Offset: offset, Phase: phase, CheckedAt: now}
}

// Status returns the most recently observed status.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func queryOffset(pool string) (time.Duration, error) {
	resp, err := ntp.Query(pool)
	if err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
