// Package stats provides moving-window counters for transaction outcomes.
// TxCounters plugs into stm.Transaction via its Stats hook and answers "how
// many commits/aborts/conflicts in the last window" without unbounded
// history: counts are kept in a ring of time buckets and expire as the
// window slides.
package stats

import (
	"sync"
	"time"

	"github.com/mitake/sto/stm"
)

type Clock interface {
	Now() time.Time
}

type defaultClock struct{}

func (defaultClock) Now() time.Time {
	return time.Now()
}

type bucket struct {
	startTime time.Time
	count     int64
}

// window is a ring of time buckets summing int64 counts over a sliding
// period. Callers synchronise access.
type window struct {
	clock         Clock
	period        time.Duration
	bucketPeriod  time.Duration
	buckets       []bucket
	first, active int
	total         int64
}

func newWindow(clock Clock, period time.Duration, numBuckets int) *window {
	return &window{
		clock:        clock,
		period:       period,
		bucketPeriod: period / time.Duration(numBuckets),
		buckets:      make([]bucket, numBuckets),
	}
}

func (w *window) expireOld(now time.Time) {
	firstTime := now.Add(-w.period)
	for w.active > 0 {
		b := &w.buckets[w.first]
		if b.startTime.After(firstTime) {
			break
		}
		w.total -= b.count
		b.count = 0
		b.startTime = time.Time{}
		w.active--
		w.first = (w.first + 1) % len(w.buckets)
	}
	if w.active == 0 {
		w.first = 0
	}
}

func (w *window) currBucket(now time.Time) *bucket {
	if w.active > 0 {
		b := &w.buckets[(w.first+w.active-1)%len(w.buckets)]
		if now.Before(b.startTime) {
			// Going backwards in time; count against the newest bucket
			// rather than losing the event.
			return b
		}
		if now.Before(b.startTime.Add(w.bucketPeriod)) {
			return b
		}
	}

	w.expireOld(now)
	w.active++
	b := &w.buckets[(w.first+w.active-1)%len(w.buckets)]
	ut := now.UnixNano()
	b.startTime = time.Unix(0, ut-ut%w.bucketPeriod.Nanoseconds())
	b.count = 0
	return b
}

func (w *window) add(n int64) {
	w.currBucket(w.clock.Now()).count += n
	w.total += n
}

func (w *window) sum() int64 {
	w.expireOld(w.clock.Now())
	return w.total
}

// TxCounters counts transaction outcomes over a sliding window. It is safe
// for concurrent use and plugs into stm.Transaction through its Stats field.
type TxCounters struct {
	lock      sync.Mutex
	commits   *window
	aborts    *window
	conflicts *window
}

// NewTxCounters creates counters covering the given period, split into
// numBuckets expiry granules. A nil clock uses the wall clock.
func NewTxCounters(clock Clock, period time.Duration, numBuckets int) *TxCounters {
	if clock == nil {
		clock = defaultClock{}
	}
	return &TxCounters{
		commits:   newWindow(clock, period, numBuckets),
		aborts:    newWindow(clock, period, numBuckets),
		conflicts: newWindow(clock, period, numBuckets),
	}
}

func (c *TxCounters) RecordCommit() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.commits.add(1)
}

func (c *TxCounters) RecordAbort() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.aborts.add(1)
}

func (c *TxCounters) RecordConflict() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.conflicts.add(1)
}

// Commits returns the commit count within the window.
func (c *TxCounters) Commits() int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.commits.sum()
}

// Aborts returns the abort count within the window. Conflicted commits
// count as both a conflict and an abort.
func (c *TxCounters) Aborts() int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.aborts.sum()
}

// Conflicts returns the failed-validation count within the window.
func (c *TxCounters) Conflicts() int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conflicts.sum()
}

// Ensure TxCounters satisfies the transaction hook.
var _ = (stm.Stats)((*TxCounters)(nil))
