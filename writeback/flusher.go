// Package writeback persists committed tree operations asynchronously. A
// Flusher accumulates put/remove records in a double buffer; a single
// background goroutine drains full buffers into a Sink, coalescing repeated
// writes of the same key. Appending never blocks on the sink unless both
// buffers are full, so the caller's commit path stays fast.
package writeback

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize   = 256
	DefaultMaxInflight = 4
)

// Sink receives the drained operations. badgerkv.Store satisfies this.
type Sink interface {
	PutUint64(key uint64, value []byte) error
	DeleteUint64(key uint64) error
}

// Encoder turns values into the byte slices handed to the sink.
type Encoder[V any] interface {
	Encode(v V) ([]byte, error)
}

type Options struct {
	// BatchSize is the number of operations buffered before a flush is
	// started. If zero, DefaultBatchSize is used.
	BatchSize int

	// RateLimit caps sink operations per second. Zero means unlimited.
	RateLimit rate.Limit

	// Burst is the limiter burst. If zero, BatchSize is used.
	Burst int

	// MaxInflight bounds concurrent sink calls while draining a batch. If
	// zero, DefaultMaxInflight is used.
	MaxInflight int64
}

type opKind uint8

const (
	opPut opKind = iota + 1
	opRemove
)

type op[V any] struct {
	kind  opKind
	key   uint64
	value V
}

type Flusher[V any] struct {
	sink Sink
	enc  Encoder[V]

	limiter     *rate.Limiter
	sem         *semaphore.Weighted
	maxInflight int64

	writeBuf, flushBuf int
	flushActive        bool
	flushErr           error
	bufs               [2][]op[V]

	lock sync.Mutex
	cond *sync.Cond
}

func NewFlusher[V any](sink Sink, enc Encoder[V], opts *Options) *Flusher[V] {
	if opts == nil {
		opts = &Options{}
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	inflight := opts.MaxInflight
	if inflight <= 0 {
		inflight = DefaultMaxInflight
	}

	f := &Flusher[V]{
		sink:        sink,
		enc:         enc,
		sem:         semaphore.NewWeighted(inflight),
		maxInflight: inflight,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = batch
		}
		f.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	f.cond = sync.NewCond(&f.lock)
	for i := range f.bufs {
		f.bufs[i] = make([]op[V], 0, batch)
	}
	return f
}

// Put records a committed write of key. The first sink or encoder error is
// sticky: it is returned here and from Flush until the Flusher is discarded.
func (f *Flusher[V]) Put(key uint64, value V) error {
	return f.append(op[V]{kind: opPut, key: key, value: value})
}

// Remove records a committed removal of key.
func (f *Flusher[V]) Remove(key uint64) error {
	return f.append(op[V]{kind: opRemove, key: key})
}

func (f *Flusher[V]) append(o op[V]) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	for f.flushErr == nil {
		if f.writeBuf > f.flushBuf+1 {
			// Both buffers full; wait for the drain to free one.
			f.cond.Wait()
			continue
		}

		b := append(f.bufs[f.writeBuf%2], o)
		f.bufs[f.writeBuf%2] = b
		if len(b) == cap(b) {
			f.startFlush(false)
		}
		return nil
	}
	return f.flushErr
}

// Flush drains everything appended so far and waits for completion.
func (f *Flusher[V]) Flush() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.flushErr != nil {
		return f.flushErr
	}
	f.startFlush(true)
	return f.flushErr
}

func (f *Flusher[V]) startFlush(wait bool) {
	if f.writeBuf < f.flushBuf+2 && len(f.bufs[f.writeBuf%2]) > 0 {
		f.writeBuf++
	}

	target := f.writeBuf
	if !f.flushActive {
		f.flushActive = true
		go f.doFlush()
	}
	for wait && f.flushErr == nil && f.flushBuf < target {
		f.cond.Wait()
	}
}

func (f *Flusher[V]) doFlush() {
	f.lock.Lock()
	defer func() {
		f.flushActive = false
		f.lock.Unlock()
	}()

	for f.flushErr == nil && f.writeBuf > f.flushBuf {
		b := f.bufs[f.flushBuf%2]

		f.lock.Unlock()
		err := f.apply(b)
		f.lock.Lock()

		f.bufs[f.flushBuf%2] = b[:0]
		f.flushErr = err
		f.flushBuf++
		f.cond.Broadcast()
	}
}

// apply drains one batch. Only the last operation per key reaches the sink;
// distinct keys are applied concurrently, bounded by the semaphore and paced
// by the limiter.
func (f *Flusher[V]) apply(batch []op[V]) error {
	latest := make(map[uint64]int, len(batch))
	order := make([]uint64, 0, len(batch))
	for i, o := range batch {
		if _, ok := latest[o.key]; !ok {
			order = append(order, o.key)
		}
		latest[o.key] = i
	}

	ctx := context.Background()
	var errLock sync.Mutex
	var applyErr error

	for _, key := range order {
		o := batch[latest[key]]
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				errLock.Lock()
				applyErr = err
				errLock.Unlock()
				break
			}
		}
		if err := f.sem.Acquire(ctx, 1); err != nil {
			errLock.Lock()
			applyErr = err
			errLock.Unlock()
			break
		}
		go func(o op[V]) {
			defer f.sem.Release(1)
			err := f.applyOne(o)
			if err != nil {
				errLock.Lock()
				if applyErr == nil {
					applyErr = err
				}
				errLock.Unlock()
			}
		}(o)
	}

	// Wait for every in-flight sink call.
	if err := f.sem.Acquire(ctx, f.maxInflight); err == nil {
		f.sem.Release(f.maxInflight)
	}

	errLock.Lock()
	defer errLock.Unlock()
	return applyErr
}

func (f *Flusher[V]) applyOne(o op[V]) error {
	switch o.kind {
	case opRemove:
		return f.sink.DeleteUint64(o.key)
	default:
		buf, err := f.enc.Encode(o.value)
		if err != nil {
			return err
		}
		return f.sink.PutUint64(o.key, buf)
	}
}
