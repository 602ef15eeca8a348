package kvstore

import (
	"testing"
	"time"
)

// Scenarios from spec.md §8 scenario 3.
func TestTimeToLive(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	t.Run("never expires", func(t *testing.T) {
		ttl := timeToLive(ExpirationNamespaceDefault, now)
		if !ttl.Never {
			t.Fatalf("expiration=0 should never expire, got %+v", ttl)
		}
	})

	t.Run("never sentinel", func(t *testing.T) {
		ttl := timeToLive(ExpirationNever, now)
		if !ttl.Never {
			t.Fatalf("0xFFFFFFFF should never expire, got %+v", ttl)
		}
	})

	t.Run("far future", func(t *testing.T) {
		secondsSinceEpoch := uint32(now.Sub(CitrusleafEpoch).Seconds()) + 1000
		ttl := timeToLive(secondsSinceEpoch, now)
		if ttl.Never {
			t.Fatalf("expected a live TTL, got %+v", ttl)
		}
		if ttl.Duration <= 999*time.Second || ttl.Duration >= 1001*time.Second {
			t.Fatalf("duration = %v, want in (999s, 1001s)", ttl.Duration)
		}
	})

	t.Run("far past floors at one second", func(t *testing.T) {
		ttl := timeToLive(1, now)
		if ttl.Never {
			t.Fatalf("expiration=1 in the far past should not be 'never', got %+v", ttl)
		}
		if ttl.Duration != clockSkewFloor {
			t.Fatalf("duration = %v, want the %v clock-skew floor", ttl.Duration, clockSkewFloor)
		}
	})
}
