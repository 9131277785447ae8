package security

import (
	"sort"
	"sync"
	"time"
)

// windowBucket is one identifier's counter for one window. ResetAt is the
// end of the fixed window containing the first request that created or
// refreshed the bucket.
type windowBucket struct {
	Count   int
	ResetAt time.Time
}

// FixedWindowLimiter counts requests per identifier across fixed-duration
// windows. Buckets reset lazily on the next request after the window ends;
// there is no background sweeper on the hot path.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	limits  map[time.Duration]int
	windows []time.Duration
	buckets map[string]map[time.Duration]*windowBucket

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewFixedWindowLimiter creates a limiter with the given per-window limits.
func NewFixedWindowLimiter(limits map[time.Duration]int) *FixedWindowLimiter {
	windows := make([]time.Duration, 0, len(limits))
	for w := range limits {
		windows = append(windows, w)
	}
	// check the shortest window first so the error names the tightest limit
	sort.Slice(windows, func(i, j int) bool { return windows[i] < windows[j] })

	return &FixedWindowLimiter{
		limits:  limits,
		windows: windows,
		buckets: make(map[string]map[time.Duration]*windowBucket),
		now:     time.Now,
	}
}

// Allow records one request for identifier. It returns ("", true) when all
// windows have room, or the name of the first exhausted window and false.
// A rejected request still counts against the windows that had room, so a
// caller hammering a short window also burns through the longer ones.
func (l *FixedWindowLimiter) Allow(identifier string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	perID, ok := l.buckets[identifier]
	if !ok {
		perID = make(map[time.Duration]*windowBucket, len(l.windows))
		l.buckets[identifier] = perID
	}

	for _, w := range l.windows {
		b, ok := perID[w]
		if !ok || !now.Before(b.ResetAt) {
			b = &windowBucket{ResetAt: windowEnd(now, w)}
			perID[w] = b
		}
		if b.Count >= l.limits[w] {
			return windowName(w), false
		}
		b.Count++
	}
	return "", true
}

// Remaining reports how many requests identifier has left in each window
// without consuming any.
func (l *FixedWindowLimiter) Remaining(identifier string) map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make(map[string]int, len(l.windows))
	perID := l.buckets[identifier]
	for _, w := range l.windows {
		remaining := l.limits[w]
		if perID != nil {
			if b, ok := perID[w]; ok && now.Before(b.ResetAt) {
				remaining = l.limits[w] - b.Count
				if remaining < 0 {
					remaining = 0
				}
			}
		}
		out[windowName(w)] = remaining
	}
	return out
}

// Sweep drops identifiers whose buckets have all expired. Called
// periodically so idle identifiers do not accumulate forever.
func (l *FixedWindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, perID := range l.buckets {
		live := false
		for _, b := range perID {
			if now.Before(b.ResetAt) {
				live = true
				break
			}
		}
		if !live {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// windowEnd returns the end of the fixed window of duration w containing t.
func windowEnd(t time.Time, w time.Duration) time.Time {
	return t.Truncate(w).Add(w)
}

func windowName(w time.Duration) string {
	switch w {
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	case 24 * time.Hour:
		return "day"
	default:
		return w.String()
	}
}
