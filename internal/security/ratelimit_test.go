package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(limits map[time.Duration]int) (*FixedWindowLimiter, *time.Time) {
	l := NewFixedWindowLimiter(limits)
	// pin the clock to a window boundary so tests control resets exactly
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestFixedWindowLimiterAllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(map[time.Duration]int{time.Minute: 3})

	for i := 0; i < 3; i++ {
		window, ok := l.Allow("caller")
		require.True(t, ok, "request %d should be allowed", i+1)
		assert.Empty(t, window)
	}

	window, ok := l.Allow("caller")
	assert.False(t, ok)
	assert.Equal(t, "minute", window)
}

func TestFixedWindowLimiterLazyReset(t *testing.T) {
	l, now := newTestLimiter(map[time.Duration]int{time.Minute: 1})

	_, ok := l.Allow("caller")
	require.True(t, ok)
	_, ok = l.Allow("caller")
	require.False(t, ok)

	// move past the end of the fixed window
	*now = now.Add(61 * time.Second)
	_, ok = l.Allow("caller")
	assert.True(t, ok)
}

func TestFixedWindowLimiterNamesTightestWindow(t *testing.T) {
	l, _ := newTestLimiter(map[time.Duration]int{
		time.Minute:    10,
		time.Hour:      2,
		24 * time.Hour: 100,
	})

	for i := 0; i < 2; i++ {
		_, ok := l.Allow("caller")
		require.True(t, ok)
	}
	window, ok := l.Allow("caller")
	assert.False(t, ok)
	assert.Equal(t, "hour", window)
}

func TestFixedWindowLimiterIsolatesIdentifiers(t *testing.T) {
	l, _ := newTestLimiter(map[time.Duration]int{time.Minute: 1})

	_, ok := l.Allow("a")
	require.True(t, ok)
	_, ok = l.Allow("b")
	assert.True(t, ok)
	_, ok = l.Allow("a")
	assert.False(t, ok)
}

func TestFixedWindowLimiterRemaining(t *testing.T) {
	l, _ := newTestLimiter(map[time.Duration]int{time.Minute: 3, time.Hour: 10})

	_, _ = l.Allow("caller")
	_, _ = l.Allow("caller")

	remaining := l.Remaining("caller")
	assert.Equal(t, 1, remaining["minute"])
	assert.Equal(t, 8, remaining["hour"])

	// an identifier never seen has its full allowance
	fresh := l.Remaining("unseen")
	assert.Equal(t, 3, fresh["minute"])
}

func TestFixedWindowLimiterSweep(t *testing.T) {
	l, now := newTestLimiter(map[time.Duration]int{time.Minute: 5})

	_, _ = l.Allow("stale")
	assert.Equal(t, 0, l.Sweep())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
}
