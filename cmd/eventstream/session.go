package main

import (
	"fmt"
	"io"

	"github.com/banshee-data/eventstream/internal/dispatch"
	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/relay"
)

// startSession starts a dispatch session whose handler is built from the
// stream header. Events wait for build to return.
func startSession(r io.Reader, opts dispatch.Options, failures *relay.Relay, build func(eventstream.Header) (dispatch.HandleEvent, error)) (*dispatch.Observable, error) {
	ready := make(chan struct{})
	var handle dispatch.HandleEvent
	o, err := dispatch.New(r, func(ev eventstream.Event) error {
		<-ready
		return handle(ev)
	}, failures, opts)
	if err != nil {
		return nil, err
	}

	built, err := build(o.Header())
	if err != nil {
		handle = func(eventstream.Event) error { return err }
		close(ready)
		o.Close()
		return nil, err
	}
	handle = built
	close(ready)
	return o, nil
}

// formatEvent renders one event on a single line.
func formatEvent(ev eventstream.Event) string {
	switch ev := ev.(type) {
	case eventstream.DvsEvent:
		return fmt.Sprintf("t=%d x=%d y=%d increase=%t", ev.T, ev.X, ev.Y, ev.IsIncrease)
	case eventstream.AtisEvent:
		return fmt.Sprintf("t=%d x=%d y=%d threshold_crossing=%t polarity=%t", ev.T, ev.X, ev.Y, ev.IsThresholdCrossing, ev.Polarity)
	case eventstream.ColorEvent:
		return fmt.Sprintf("t=%d x=%d y=%d rgb=#%02x%02x%02x", ev.T, ev.X, ev.Y, ev.R, ev.G, ev.B)
	case eventstream.GenericEvent:
		return fmt.Sprintf("t=%d bytes=%x", ev.T, ev.Bytes)
	}
	return fmt.Sprintf("t=%d", ev.Timestamp())
}
