// Package relay carries the first error raised on a worker goroutine to
// whoever waits on it.
package relay

import (
	"context"
	"errors"
	"sync"
)

// Relay is a one-shot error container. The first captured error wins and
// later captures are ignored. A Relay is safe for concurrent use. Create
// one with New; the zero value never completes.
type Relay struct {
	once sync.Once
	done chan struct{}
	err  error
}

// New returns an empty relay.
func New() *Relay {
	return &Relay{done: make(chan struct{})}
}

// Capture stores err if nothing has been captured yet and wakes every
// waiter. It reports whether err was stored. A nil err is ignored.
func (r *Relay) Capture(err error) bool {
	if err == nil {
		return false
	}
	stored := false
	r.once.Do(func() {
		r.err = err
		stored = true
		close(r.done)
	})
	return stored
}

// Done returns a channel closed once an error has been captured.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Err returns the captured error, or nil if there is none yet.
func (r *Relay) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until an error is captured and returns it.
func (r *Relay) Wait() error {
	<-r.done
	return r.err
}

// WaitContext is Wait with cancellation. It returns ctx.Err() if ctx ends
// first.
func (r *Relay) WaitContext(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RethrowUnless waits for the captured error and returns nil when it
// matches one of allowed under errors.Is. Any other error is returned.
func (r *Relay) RethrowUnless(allowed ...error) error {
	err := r.Wait()
	for _, a := range allowed {
		if errors.Is(err, a) {
			return nil
		}
	}
	return err
}
