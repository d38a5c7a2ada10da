package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element of the linked list
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// MPSC is a lock-free multi-producer single-consumer queue. Values are moved
// by pointer: once pushed, the producer must not touch the value again.
type MPSC[T any] struct {
	head atomic.Pointer[node[T]] // sentinel, owned by the delivery goroutine
	tail atomic.Pointer[node[T]]

	out    chan *T
	stop   chan struct{}
	closed atomic.Bool
	once   sync.Once

	// wakeup for the delivery goroutine
	mu   sync.Mutex
	cond *sync.Cond
}

// NewMPSC creates a new queue and starts its delivery goroutine.
func NewMPSC[T any]() *MPSC[T] {
	sentinel := &node[T]{}

	q := &MPSC[T]{
		out:  make(chan *T),
		stop: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.deliver()

	return q
}

// Push appends value to the queue. It returns false if value is nil or the
// queue is closed. Push never blocks on the consumer.
func (q *MPSC[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	n := &node[T]{value: value}
	var backoff uint8

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// another producer may already have advanced the tail
				q.tail.CompareAndSwap(tail, n)

				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// spin briefly under low contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Recv returns the channel values are delivered on. It is closed after Close
// once every queued value has been delivered, or right away after Discard.
func (q *MPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close prevents further pushes. Queued values are still delivered.
func (q *MPSC[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// Discard closes the queue and drops every value that was not delivered yet.
func (q *MPSC[T]) Discard() {
	q.once.Do(func() { close(q.stop) })
	q.Close()
}

// IsClosed reports whether Close or Discard was called.
func (q *MPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len counts the queued values. It walks the list and is meant for debugging.
func (q *MPSC[T]) Len() int {
	count := 0
	for cur := q.head.Load().next.Load(); cur != nil; cur = cur.next.Load() {
		count++
	}
	return count
}

// deliver moves values from the list to the out channel until the queue is
// closed and empty, or discarded.
func (q *MPSC[T]) deliver() {
	defer close(q.out)

	for {
		head := q.head.Load()
		next := head.next.Load()

		if next == nil {
			q.mu.Lock()
			for head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()

			if head.next.Load() == nil {
				return // closed and drained
			}
			continue
		}

		select {
		case q.out <- next.value:
		case <-q.stop:
			return
		}

		// the delivered node becomes the new sentinel
		next.value = nil
		q.head.Store(next)
	}
}
