package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/eventstream/internal/config"
	"github.com/banshee-data/eventstream/internal/dispatch"
	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/relay"
)

var errMissingOutput = errors.New("missing output argument")

func handleConvert(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("convert", stdout)
	kind := fs.String("kind", "", "Reject sources whose kind differs (generic, dvs, atis or color)")
	udpPort := fs.Int("port", 0, "UDP destination port for pcap sources (0 for any)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errMissingOutput
	}

	opts := dispatch.Options{Mode: dispatch.AsFastAsPossible}
	if *kind != "" {
		k, err := eventstream.ParseKind(*kind)
		if err != nil {
			return err
		}
		opts.ExpectedKind = &k
	}

	cfg := config.DefaultReplayConfig()
	cfg.UDPPort = udpPort
	r, _, err := openSource(ctx, fs, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	var out io.WriteCloser
	defer func() {
		if out != nil {
			out.Close()
		}
	}()
	var enc *eventstream.Encoder
	failures := relay.New()
	o, err := startSession(r, opts, failures, func(h eventstream.Header) (dispatch.HandleEvent, error) {
		f, err := eventstream.CreateFile(fs.Arg(1))
		if err != nil {
			return nil, err
		}
		out = f
		if enc, err = eventstream.NewEncoder(f, h); err != nil {
			return nil, err
		}
		return enc.Write, nil
	})
	if err != nil {
		return err
	}
	if err := dispatch.Wait(ctx, o, failures); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", fs.Arg(1), err)
	}
	out = nil
	fmt.Fprintf(stdout, "wrote %d %s events to %s\n", o.Events(), o.Header().Kind, fs.Arg(1))
	return nil
}
