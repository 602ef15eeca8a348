package kvstore

import (
	"fmt"
	"time"

	"github.com/ployz-labs/kvstore-client/types"
)

// CitrusleafEpoch is the fixed epoch (Jan 1 2010 UTC) record expirations are
// counted from (spec.md §3, §9 "no global mutable state": this is the one
// compile-time constant the core needs).
var CitrusleafEpoch = time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

// Expiration sentinel values (spec.md §6).
const (
	ExpirationNamespaceDefault uint32 = 0
	ExpirationNever            uint32 = 0xFFFFFFFF
	ExpirationDontUpdate       uint32 = 0xFFFFFFFE
)

// clockSkewFloor is the minimum non-zero TTL time_to_live() reports, per
// spec.md §3/§8: a record whose expiration has technically just passed is
// reported as expiring in 1s rather than 0s or negative, tolerating modest
// clock skew between client and server.
const clockSkewFloor = 1 * time.Second

// Record is a single server record (spec.md §3): its key, its bins, the
// server's modification counter, and its raw expiration.
type Record struct {
	Key        *Key
	Bins       map[string]types.Value
	Generation uint32
	Expiration uint32
}

// TTL classifies Expiration into a tri-state outcome.
type TTL struct {
	Never   bool
	Expired bool
	// Duration is meaningful only when !Never && !Expired.
	Duration time.Duration
}

// TimeToLive decodes Expiration into a duration or "never expires" (spec.md
// §3, §8 scenario 3), measured against time.Now(). An expiration at or
// before now reports the one-second clockSkewFloor; Expired is never set.
func (r Record) TimeToLive() TTL {
	return timeToLive(r.Expiration, time.Now())
}

func timeToLive(expiration uint32, now time.Time) TTL {
	if expiration == ExpirationNamespaceDefault {
		return TTL{Never: true}
	}
	if expiration == ExpirationNever {
		return TTL{Never: true}
	}

	deadline := CitrusleafEpoch.Add(time.Duration(expiration) * time.Second)
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return TTL{Duration: clockSkewFloor}
	}
	if remaining < clockSkewFloor {
		return TTL{Duration: clockSkewFloor}
	}
	return TTL{Duration: remaining}
}

func (r Record) String() string {
	return fmt.Sprintf("<Record: bins=%d, gen=%d, exp=%d>", len(r.Bins), r.Generation, r.Expiration)
}
