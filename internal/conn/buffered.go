package conn

// BufferedConn wraps a Conn with a small read-ahead cache so stream parsing
// (§4.9) can serve many small reads from one syscall instead of one syscall
// per field. byteLimit bounds how much of the current message it will ever
// buffer ahead of the caller, so a malformed length can't make it allocate
// without bound.
type BufferedConn struct {
	*Conn
	cache     []byte
	cachePos  int
	byteLimit int
}

const defaultCacheSize = 8192

// NewBuffered wraps c. byteLimit caps how many bytes of the in-flight
// message may be cached ahead; 0 means no cap.
func NewBuffered(c *Conn, byteLimit int) *BufferedConn {
	return &BufferedConn{Conn: c, byteLimit: byteLimit}
}

// ReadN returns exactly n bytes, served from the local cache when possible
// and refilled from the socket otherwise.
func (b *BufferedConn) ReadN(n int) ([]byte, error) {
	if n <= len(b.cache)-b.cachePos {
		p := b.cache[b.cachePos : b.cachePos+n]
		b.cachePos += n
		return p, nil
	}

	// Drain whatever is left in the cache first.
	out := make([]byte, n)
	copied := copy(out, b.cache[b.cachePos:])
	b.cache = nil
	b.cachePos = 0

	remaining := n - copied
	if remaining <= 0 {
		return out, nil
	}

	// Refill: read a cache-sized chunk (or just what's needed if smaller
	// than the cache, bounded by byteLimit) directly past what's required.
	fillSize := defaultCacheSize
	if b.byteLimit > 0 && fillSize > b.byteLimit {
		fillSize = b.byteLimit
	}
	if fillSize < remaining {
		fillSize = remaining
	}

	buf := make([]byte, fillSize)
	if err := b.Conn.ReadFull(buf); err != nil {
		return nil, err
	}
	copy(out[copied:], buf[:remaining])
	b.cache = buf[remaining:]
	b.cachePos = 0
	return out, nil
}

// Discard drops the read-ahead cache, e.g. between messages.
func (b *BufferedConn) Discard() {
	b.cache = nil
	b.cachePos = 0
}
