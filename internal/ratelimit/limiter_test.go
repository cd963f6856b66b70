package ratelimit

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(window time.Duration, max int) (*Limiter, *time.Time) {
	l := New(window, max, logrus.New())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowWithinWindow(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("1.2.3.4"), "request over the limit should be denied")
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 1)

	require.True(t, l.Allow("1.2.3.4"))
	require.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "other keys keep their own budget")
}

func TestWindowResetsLazily(t *testing.T) {
	l, now := newTestLimiter(time.Minute, 2)

	require.True(t, l.Allow("1.2.3.4"))
	require.True(t, l.Allow("1.2.3.4"))
	require.False(t, l.Allow("1.2.3.4"))

	// Still inside the window: denied.
	*now = now.Add(59 * time.Second)
	assert.False(t, l.Allow("1.2.3.4"))

	// First request past the window clears the count.
	*now = now.Add(2 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestDeniedRequestDoesNotExtendWindow(t *testing.T) {
	l, now := newTestLimiter(time.Minute, 1)

	require.True(t, l.Allow("1.2.3.4"))

	// Hammering while denied must not push the reset point out.
	for i := 0; i < 10; i++ {
		*now = now.Add(5 * time.Second)
		l.Allow("1.2.3.4")
	}

	// 50s elapsed plus 11 more puts us past the original window.
	*now = now.Add(11 * time.Second)
	assert.True(t, l.Allow("1.2.3.4"))
}

func TestSweepEvictsLongExpiredBuckets(t *testing.T) {
	l, now := newTestLimiter(time.Minute, 5)

	require.True(t, l.Allow("old"))
	*now = now.Add(30 * time.Second)
	require.True(t, l.Allow("fresh"))
	require.Equal(t, 2, l.Size())

	// "old" expired 65s ago (more than one window); "fresh" only 35s ago.
	*now = now.Add(95 * time.Second)
	evicted := l.sweep()

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, l.Size())

	// Eviction must not grant extra budget on return.
	assert.True(t, l.Allow("old"))
}
