// Package dispatch decodes an Event Stream on a background goroutine and
// delivers its events to a handler, optionally paced to their timestamps.
//
// A session reads the header on the caller's goroutine, then hands the
// reader to exactly one worker goroutine:
//
//	New ──► ReadHeader ──► worker: ReadFull(chunk) ──► Decode ──► pace ──► handle
//	                                   │ end of input
//	                                   ├── MustRestart() ──► Seek(0) + ReadHeader
//	                                   └── relay.Capture(ErrEndOfFile)
//
// Every way the worker stops, other than Close, ends in exactly one error
// captured by the session's relay.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/monitoring"
	"github.com/banshee-data/eventstream/internal/relay"
	"github.com/banshee-data/eventstream/internal/timeutil"
)

// DefaultChunkSize is the number of bytes read per worker iteration.
const DefaultChunkSize = 1 << 10

var (
	// ErrNotSeekable is captured when a restart is requested on a reader
	// that cannot rewind.
	ErrNotSeekable = errors.New("dispatch: restart requires a seekable reader")

	// ErrHandlerPanic wraps a panic recovered from the event handler.
	ErrHandlerPanic = errors.New("dispatch: event handler panicked")
)

var logf = monitoring.Tagged("dispatch")

// HandleEvent receives decoded events in stream order. A non-nil error ends
// the session and is captured by its relay.
type HandleEvent func(eventstream.Event) error

// Options configures a session. The zero value replays in real time from
// the first event, reading 1 KiB chunks.
type Options struct {
	Mode Mode
	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int
	// MustRestart is called at the end of input. Returning true rewinds
	// the stream instead of ending the session.
	MustRestart func() bool
	// ExpectedKind, when set, makes New reject streams of another kind.
	ExpectedKind *eventstream.Kind
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
	// SpeedMultiplier scales waits: 2 replays twice as fast. Defaults to 1.
	SpeedMultiplier float64
	// SpinThreshold is the tail of each wait spent spinning on the clock
	// instead of sleeping. Zero disables spinning.
	SpinThreshold time.Duration
}

func (o *Options) normalize() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.SpeedMultiplier <= 0 {
		o.SpeedMultiplier = 1
	}
}

// Observable is a running dispatch session.
type Observable struct {
	id       string
	header   eventstream.Header
	r        io.Reader
	handle   HandleEvent
	failures *relay.Relay
	opts     Options
	decoder  *eventstream.Decoder

	running   atomic.Bool
	events    atomic.Uint64
	restarts  atomic.Uint64
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// errStopped ends the worker after Close interrupted a wait.
var errStopped = errors.New("dispatch: session closed")

// New reads the stream header from r and, on success, starts the worker
// goroutine that owns r from then on. Header errors are returned directly
// and start nothing; every later error is captured by failures.
func New(r io.Reader, handle HandleEvent, failures *relay.Relay, opts Options) (*Observable, error) {
	opts.normalize()
	header, err := eventstream.ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if opts.ExpectedKind != nil && header.Kind != *opts.ExpectedKind {
		return nil, fmt.Errorf("%w: expected %s, stream is %s", eventstream.ErrUnsupportedEventType, *opts.ExpectedKind, header.Kind)
	}
	decoder, err := eventstream.NewDecoder(header)
	if err != nil {
		return nil, err
	}
	o := &Observable{
		id:       uuid.NewString(),
		header:   header,
		r:        r,
		handle:   handle,
		failures: failures,
		opts:     opts,
		decoder:  decoder,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	o.running.Store(true)
	logf("session %s: %s stream %dx%d (version %s), mode %s, speed %.2fx",
		o.id, header.Kind, header.Width, header.Height, header.Version, opts.Mode, opts.SpeedMultiplier)
	go o.run()
	return o, nil
}

// ID returns the session identifier used in log lines.
func (o *Observable) ID() string { return o.id }

// Header returns the stream header read by New.
func (o *Observable) Header() eventstream.Header { return o.header }

// Events returns the number of events delivered so far.
func (o *Observable) Events() uint64 { return o.events.Load() }

// Restarts returns the number of times the stream was rewound.
func (o *Observable) Restarts() uint64 { return o.restarts.Load() }

// Done returns a channel closed when the worker goroutine exits.
func (o *Observable) Done() <-chan struct{} { return o.done }

// Close asks the worker to stop and waits for it. A pending wait between
// events ends at once; otherwise the worker notices the request between
// chunks. A read blocked on r is not interrupted: close r first to end it.
// Close is idempotent and captures nothing.
func (o *Observable) Close() error {
	o.signalStop()
	<-o.done
	return nil
}

// signalStop asks the worker to stop without waiting for it.
func (o *Observable) signalStop() {
	o.closeOnce.Do(func() {
		o.running.Store(false)
		close(o.stop)
	})
}

func (o *Observable) run() {
	start := time.Now()
	defer close(o.done)
	defer func() {
		if r := recover(); r != nil {
			o.failures.Capture(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
		}
		logf("session %s: stopped after %d events, %d restarts in %v",
			o.id, o.events.Load(), o.restarts.Load(), time.Since(start))
	}()

	p := &pacer{
		mode:  o.opts.Mode,
		clock: o.opts.Clock,
		speed: o.opts.SpeedMultiplier,
		spin:  o.opts.SpinThreshold,
		stop:  o.stop,
	}
	emit := func(ev eventstream.Event) error {
		if !p.wait(ev.Timestamp()) {
			return errStopped
		}
		if err := o.handle(ev); err != nil {
			return err
		}
		o.events.Add(1)
		return nil
	}

	chunk := make([]byte, o.opts.ChunkSize)
	for o.running.Load() {
		n, readErr := io.ReadFull(o.r, chunk)
		if err := o.decoder.Decode(chunk[:n], emit); err != nil {
			if !errors.Is(err, errStopped) {
				o.failures.Capture(err)
			}
			return
		}
		if readErr == nil {
			continue
		}
		if !o.running.Load() {
			return
		}
		if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
			o.failures.Capture(fmt.Errorf("read stream: %w", readErr))
			return
		}
		if o.opts.MustRestart == nil || !o.opts.MustRestart() {
			o.failures.Capture(eventstream.ErrEndOfFile)
			return
		}
		if err := o.rewind(); err != nil {
			o.failures.Capture(err)
			return
		}
		p.restart()
	}
}

// rewind seeks back to the start and re-reads the header.
func (o *Observable) rewind() error {
	seeker, ok := o.r.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind stream: %w", err)
	}
	header, err := eventstream.ReadHeader(o.r)
	if err != nil {
		return fmt.Errorf("rewind stream: %w", err)
	}
	if header.Kind != o.header.Kind || header.Width != o.header.Width || header.Height != o.header.Height {
		return fmt.Errorf("%w: stream header changed on rewind", eventstream.ErrUnsupportedEventType)
	}
	o.decoder.Reset()
	o.restarts.Add(1)
	return nil
}

// Join decodes r as fast as possible on a worker goroutine and blocks until
// the input ends. Reaching the end of the input is not an error.
func Join(r io.Reader, handle HandleEvent, chunkSize int) error {
	failures := relay.New()
	o, err := New(r, handle, failures, Options{Mode: AsFastAsPossible, ChunkSize: chunkSize})
	if err != nil {
		return err
	}
	defer o.Close()
	return failures.RethrowUnless(eventstream.ErrEndOfFile)
}

// Run starts a session with opts and blocks until it ends or ctx is done.
// It returns nil at the end of the input and ctx.Err() on cancellation.
// On cancellation r is closed first when it is an io.Closer, so that a
// read blocked on a live source returns.
func Run(ctx context.Context, r io.Reader, handle HandleEvent, opts Options) error {
	failures := relay.New()
	o, err := New(r, handle, failures, opts)
	if err != nil {
		return err
	}
	return Wait(ctx, o, failures)
}

// Wait blocks until the session captures an error in failures or ctx is
// done, then closes the session. Reaching the end of the input is not an
// error. On cancellation the session's reader is closed first when it is
// an io.Closer, and ctx.Err() is returned.
func Wait(ctx context.Context, o *Observable, failures *relay.Relay) error {
	err := failures.WaitContext(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && err == ctxErr {
		o.signalStop()
		if c, ok := o.r.(io.Closer); ok {
			if closeErr := c.Close(); closeErr != nil {
				logf("session %s: close source: %v", o.id, closeErr)
			}
		}
		o.Close()
		return ctxErr
	}
	o.Close()
	if errors.Is(err, eventstream.ErrEndOfFile) {
		return nil
	}
	return err
}
