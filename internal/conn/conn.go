// Package conn implements a single TCP session to a server node (spec.md
// §4.2): framed I/O and idle deadlines. The authentication handshake is
// not done here; it lives in internal/admin and runs from the cluster's
// dialer.
package conn

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ployz-labs/kvstore-client/internal/buffer"
)

// openTimeout is the hard deadline for the initial TCP connect (spec.md §4.2).
const openTimeout = 10 * time.Second

// Conn is one TCP session plus the wire buffer commands build requests in.
// It owns no retry logic — that lives in the command executor (§4.7) — and
// is not safe for concurrent use: the pool (§4.3) guarantees at most one
// in-flight exchange per Conn at a time.
type Conn struct {
	addr        string
	nc          net.Conn
	Buffer      *buffer.Buffer
	idleTimeout time.Duration
	idleDeadline atomic.Int64 // unix nanos; 0 means "no deadline"
	invalid     atomic.Bool
}

// Dial opens a TCP connection to addr with a hard 10s connect deadline and
// idleTimeout applied afterward. It tunes TCP_NODELAY the way a latency
// sensitive request/response protocol needs, via a raw syscall control
// (golang.org/x/sys/unix) rather than relying on platform defaults.
func Dial(ctx context.Context, addr string, idleTimeout, reclaimThreshold int) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	var d net.Dialer
	nc, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("conn: dial %s: %w", addr, err)
	}

	if tc, ok := nc.(interface {
		SyscallConn() (syscall.RawConn, error)
	}); ok {
		if raw, err := tc.SyscallConn(); err == nil {
			_ = raw.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			})
		}
	}

	c := &Conn{
		addr:        addr,
		nc:          nc,
		Buffer:      buffer.New(reclaimThreshold),
		idleTimeout: time.Duration(idleTimeout),
	}
	c.refresh()
	return c, nil
}

// Addr returns the remote address this connection was dialed to.
func (c *Conn) Addr() string { return c.addr }

func (c *Conn) refresh() {
	if c.idleTimeout <= 0 {
		c.idleDeadline.Store(0)
		return
	}
	c.idleDeadline.Store(time.Now().Add(c.idleTimeout).UnixNano())
}

// IsIdle reports whether the connection has sat unused past its idle
// deadline (spec.md §4.2); such connections are dropped rather than reused.
func (c *Conn) IsIdle() bool {
	dl := c.idleDeadline.Load()
	return dl != 0 && time.Now().UnixNano() >= dl
}

// Invalidate marks the connection unusable so the pool's put-back discards
// it instead of recycling it (spec.md §4.2, §4.7 keep_connection).
func (c *Conn) Invalidate() { c.invalid.Store(true) }

// Invalid reports whether Invalidate was called.
func (c *Conn) Invalid() bool { return c.invalid.Load() }

// Close shuts down both halves of the TCP session.
func (c *Conn) Close() error { return c.nc.Close() }

// Write writes p in full, advancing the idle deadline on success.
func (c *Conn) Write(p []byte) error {
	if _, err := c.nc.Write(p); err != nil {
		c.Invalidate()
		return fmt.Errorf("conn: write to %s: %w", c.addr, err)
	}
	c.refresh()
	return nil
}

// ReadFull reads exactly len(p) bytes, advancing the idle deadline on success.
func (c *Conn) ReadFull(p []byte) error {
	n := 0
	for n < len(p) {
		m, err := c.nc.Read(p[n:])
		if err != nil {
			c.Invalidate()
			return fmt.Errorf("conn: read from %s: %w", c.addr, err)
		}
		n += m
	}
	c.refresh()
	return nil
}

// SetDeadline forwards to the underlying net.Conn, used to enforce a
// per-command or per-retry socket timeout (spec.md §5 Timeouts).
func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }
