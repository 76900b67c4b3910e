// Package analysis computes statistics, packets and charts over decoded
// event streams.
package analysis

import (
	"context"
	"io"

	"github.com/banshee-data/eventstream/internal/dispatch"
	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/relay"
)

// drain decodes r as fast as possible, calling handle for every event, and
// returns the stream header. A nil kind accepts every stream. When ctx
// ends first, r is closed if it is an io.Closer and ctx.Err() is returned.
func drain(ctx context.Context, r io.Reader, kind *eventstream.Kind, handle dispatch.HandleEvent) (eventstream.Header, error) {
	failures := relay.New()
	o, err := dispatch.New(r, handle, failures, dispatch.Options{
		Mode:         dispatch.AsFastAsPossible,
		ExpectedKind: kind,
	})
	if err != nil {
		return eventstream.Header{}, err
	}
	return o.Header(), dispatch.Wait(ctx, o, failures)
}
