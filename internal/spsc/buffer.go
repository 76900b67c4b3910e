package spsc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/eventstream/internal/relay"
	"github.com/banshee-data/eventstream/internal/timeutil"
)

// BufferOptions configures a Buffer.
type BufferOptions struct {
	// Size is the number of queue slots. Defaults to 1 << 12.
	Size int
	// Sleep is how long the consumer pauses when the queue is empty.
	// Defaults to 20µs.
	Sleep time.Duration
	// Clock paces the consumer. Defaults to timeutil.RealClock.
	Clock timeutil.Clock
}

const (
	defaultBufferSize  = 1 << 12
	defaultBufferSleep = 20 * time.Microsecond
)

// Buffer decouples a producer from a slow handler: Push stores values in a
// Queue and one consumer goroutine hands them to the handler in order.
// A handler error or panic stops the consumer and is captured by the relay.
type Buffer[T any] struct {
	queue    *Queue[T]
	handle   func(T) error
	failures *relay.Relay
	clock    timeutil.Clock
	sleep    time.Duration

	running   atomic.Bool
	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

// NewBuffer starts the consumer goroutine.
func NewBuffer[T any](handle func(T) error, failures *relay.Relay, opts BufferOptions) *Buffer[T] {
	if opts.Size <= 0 {
		opts.Size = defaultBufferSize
	}
	if opts.Sleep <= 0 {
		opts.Sleep = defaultBufferSleep
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	b := &Buffer[T]{
		queue:    New[T](opts.Size),
		handle:   handle,
		failures: failures,
		clock:    opts.Clock,
		sleep:    opts.Sleep,
		done:     make(chan struct{}),
	}
	b.running.Store(true)
	go b.consume()
	return b
}

// Push queues v for the consumer. It never blocks; when the queue is full v
// is dropped, counted, and false is returned.
func (b *Buffer[T]) Push(v T) bool {
	if b.queue.Push(v) {
		return true
	}
	b.dropped.Add(1)
	return false
}

// Dropped returns the number of values rejected by a full queue.
func (b *Buffer[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// Done returns a channel closed when the consumer goroutine exits.
func (b *Buffer[T]) Done() <-chan struct{} {
	return b.done
}

// Close drains the values already queued, stops the consumer and waits for
// it to exit. It is safe to call more than once.
func (b *Buffer[T]) Close() {
	b.closeOnce.Do(func() {
		b.running.Store(false)
	})
	<-b.done
}

func (b *Buffer[T]) consume() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			b.failures.Capture(fmt.Errorf("buffer handler panic: %v", r))
		}
	}()
	for {
		v, ok := b.queue.Pull()
		if !ok {
			if !b.running.Load() {
				// The producer may have pushed between the pull and the check.
				if v, ok = b.queue.Pull(); !ok {
					return
				}
			} else {
				b.clock.Sleep(b.sleep)
				continue
			}
		}
		if err := b.handle(v); err != nil {
			b.failures.Capture(err)
			return
		}
	}
}
