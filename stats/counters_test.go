package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestTxCountersRecord(t *testing.T) {
	clock := &testClock{now: time.Unix(1000, 0)}
	c := NewTxCounters(clock, time.Minute, 6)

	c.RecordCommit()
	c.RecordCommit()
	c.RecordAbort()
	c.RecordConflict()
	c.RecordAbort()

	assert.Equal(t, int64(2), c.Commits())
	assert.Equal(t, int64(2), c.Aborts())
	assert.Equal(t, int64(1), c.Conflicts())
}

func TestTxCountersWindowExpiry(t *testing.T) {
	clock := &testClock{now: time.Unix(1000, 0)}
	c := NewTxCounters(clock, time.Minute, 6)

	c.RecordCommit()
	clock.advance(30 * time.Second)
	c.RecordCommit()
	require.Equal(t, int64(2), c.Commits())

	// The first commit falls out of the window, the second stays.
	clock.advance(45 * time.Second)
	assert.Equal(t, int64(1), c.Commits())

	clock.advance(time.Minute)
	assert.Equal(t, int64(0), c.Commits())
}

func TestTxCountersManyBuckets(t *testing.T) {
	clock := &testClock{now: time.Unix(1000, 0)}
	c := NewTxCounters(clock, time.Minute, 6)

	// Spread events across more intervals than there are buckets.
	for i := 0; i < 20; i++ {
		c.RecordCommit()
		clock.advance(10 * time.Second)
	}
	// Only events within the last minute remain.
	assert.Equal(t, int64(5), c.Commits())
}

func TestTxCountersDefaultClock(t *testing.T) {
	c := NewTxCounters(nil, time.Minute, 6)
	c.RecordCommit()
	assert.Equal(t, int64(1), c.Commits())
}
