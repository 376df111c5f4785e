// Package ringqueue implements the bounded single-producer/single-consumer
// queue used to move event and status items from the threads that produce
// them to the writer thread that drains them.
//
// The ring is grounded on hayabusa-cloud-lfq's SPSC: a Lamport ring with
// cached producer/consumer indices and padding to keep the hot counters on
// separate cache lines. Unlike lfq's non-blocking Enqueue/Dequeue, this
// queue's producer side blocks (sleeping in configurable micro-intervals)
// when full, per the design's §4.1 contract — the C original (ice-buf.c)
// has the same blocking getmem()/commit() shape.
package ringqueue

import (
	"sync"
	"sync/atomic"
	"time"
)

// cacheLinePad keeps hot counters that are written by different goroutines
// on separate cache lines, avoiding false sharing between producer and
// consumer.
type cacheLinePad [64 - 8]byte

// DefaultStallInterval is the sleep granularity used by GetWriteSlot while
// the queue is full, matching the C original's usleep(500).
const DefaultStallInterval = 500 * time.Microsecond

// Queue is a fixed-capacity single-producer/single-consumer ring buffer of
// T. Capacity is fixed at construction; slots are reused in place.
type Queue[T any] struct {
	_        cacheLinePad
	produced atomic.Uint64
	_        cacheLinePad
	consumed atomic.Uint64
	_        cacheLinePad

	slots []T
	mask  uint64

	stallInterval time.Duration
	warnOnce      sync.Once
	onStall       func()

	name string
}

// Option configures a Queue at construction.
type Option func(*queueOpts)

type queueOpts struct {
	stallInterval time.Duration
	onStall       func()
	name          string
}

// WithStallInterval overrides the producer's full-queue sleep granularity.
func WithStallInterval(d time.Duration) Option {
	return func(o *queueOpts) { o.stallInterval = d }
}

// WithStallWarning installs a callback invoked exactly once per contiguous
// stall, the first time a GetWriteSlot call observes the queue full.
func WithStallWarning(fn func()) Option {
	return func(o *queueOpts) { o.onStall = fn }
}

// WithName attaches a diagnostic name to the queue (used in log messages).
func WithName(name string) Option {
	return func(o *queueOpts) { o.name = name }
}

// New creates a queue with room for at least capacity items. Capacity is
// rounded up to the next power of two so slot indices can be masked rather
// than computed with a modulo.
func New[T any](capacity int, opts ...Option) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	n := nextPow2(capacity)

	o := queueOpts{stallInterval: DefaultStallInterval}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Queue[T]{
		slots:         make([]T, n),
		mask:          uint64(n - 1),
		stallInterval: o.stallInterval,
		onStall:       o.onStall,
		name:          o.name,
	}
	return q
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the queue's rounded capacity.
func (q *Queue[T]) Cap() int { return int(q.mask) + 1 }

// Occupancy returns produced-consumed, the number of items not yet popped.
func (q *Queue[T]) Occupancy() int {
	return int(q.produced.Load() - q.consumed.Load())
}

// GetWriteSlot returns a pointer into the next slot the producer should
// fill. It blocks, sleeping in stallInterval increments, while the queue
// is full, emitting the stall warning once per contiguous stall.
//
// Must be followed by exactly one Commit call for the same slot; this is
// the producer-only half of the ice-buf.c getmem()/commit() pair.
func (q *Queue[T]) GetWriteSlot() *T {
	warned := false
	for q.Occupancy() >= q.Cap() {
		if !warned {
			if q.onStall != nil {
				q.onStall()
			}
			warned = true
		}
		time.Sleep(q.stallInterval)
	}
	idx := q.produced.Load() & q.mask
	return &q.slots[idx]
}

// Commit publishes the slot most recently returned by GetWriteSlot,
// incrementing the produced counter after a release-ordered store so the
// consumer observes a fully written slot.
func (q *Queue[T]) Commit() {
	q.produced.Add(1)
}

// Peek returns the next unconsumed slot without advancing the consumed
// counter. ok is false when the queue is empty.
func (q *Queue[T]) Peek() (item *T, ok bool) {
	if q.produced.Load() <= q.consumed.Load() {
		return nil, false
	}
	idx := q.consumed.Load() & q.mask
	return &q.slots[idx], true
}

// Pop copies the next item into dest (if non-nil) and advances the
// consumed counter. If verify is non-nil, Pop asserts that *verify equals
// the address returned by the most recent Peek, warns on mismatch via
// onMismatch, and nils out *verify on success — mirroring ice-buf.c's
// pop(dest, verify) contract.
func (q *Queue[T]) Pop(dest *T, verify **T, onMismatch func()) bool {
	item, ok := q.Peek()
	if !ok {
		return false
	}
	if verify != nil && *verify != item {
		if onMismatch != nil {
			onMismatch()
		}
	}
	if dest != nil {
		*dest = *item
	}
	var zero T
	*item = zero
	q.consumed.Add(1)
	if verify != nil {
		*verify = nil
	}
	return true
}

// Destroy reports the residual occupancy for diagnostics at shutdown.
func (q *Queue[T]) Destroy() int {
	return q.Occupancy()
}

// Name returns the queue's diagnostic name.
func (q *Queue[T]) Name() string { return q.name }
