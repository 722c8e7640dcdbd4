package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// WriteThrottle debounces per-subject writes: once a subject is marked, it
// stays suppressed until the interval elapses. Used to keep low-value
// aggregate updates (dashboard statistics refreshes) from running more often
// than the configured interval per subject.
type WriteThrottle struct {
	cache    *ttlcache.Cache[string, time.Time]
	interval time.Duration
}

// NewWriteThrottle creates a throttle with the given per-subject interval.
func NewWriteThrottle(interval time.Duration) *WriteThrottle {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, time.Time](interval),
		ttlcache.WithDisableTouchOnHit[string, time.Time](),
	)
	go cache.Start()

	return &WriteThrottle{cache: cache, interval: interval}
}

// Allow reports whether a write for the subject may proceed now. The first
// call for a subject wins; subsequent calls are suppressed until the
// interval elapses.
func (t *WriteThrottle) Allow(subject string) bool {
	if t.cache.Has(subject) {
		return false
	}
	t.cache.Set(subject, time.Now().UTC(), t.interval)
	return true
}

// Reset clears the subject's suppression window.
func (t *WriteThrottle) Reset(subject string) {
	t.cache.Delete(subject)
}
