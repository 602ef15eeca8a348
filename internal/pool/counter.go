package pool

import "sync/atomic"

// atomicCounter round-robins Get across sub-pools without a lock.
type atomicCounter struct {
	n atomic.Uint64
}

func (c *atomicCounter) next() uint64 {
	return c.n.Add(1) - 1
}
