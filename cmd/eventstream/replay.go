package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/banshee-data/eventstream/internal/config"
	"github.com/banshee-data/eventstream/internal/dispatch"
	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/relay"
	"github.com/banshee-data/eventstream/internal/spsc"
)

var (
	errLoopWithOutput = errors.New("-out cannot be combined with looping: restarted timestamps are not monotonic")
	errSplitKind      = errors.New("-split needs a dvs or atis stream")
)

// replayFlags are the command-line overrides of a ReplayConfig.
type replayFlags struct {
	configPath string
	mode       string
	loop       bool
	speed      float64
	chunkSize  int
	port       int
	out        string
	buffer     bool
	print      bool
	split      bool
}

func (f *replayFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to a JSON replay configuration")
	fs.StringVar(&f.mode, "mode", "", "Dispatch mode: skip-offset, synchronous or fast")
	fs.BoolVar(&f.loop, "loop", false, "Restart the stream when it ends (files only)")
	fs.Float64Var(&f.speed, "speed", 0, "Replay speed multiplier")
	fs.IntVar(&f.chunkSize, "chunk", 0, "Bytes read per iteration")
	fs.IntVar(&f.port, "port", 0, "UDP destination port for pcap sources (0 for any)")
	fs.StringVar(&f.out, "out", "", "Re-encode the replayed events to this .es file")
	fs.BoolVar(&f.buffer, "buffer", false, "Hand events to the sinks through a lock-free FIFO")
	fs.BoolVar(&f.print, "print", false, "Print every event")
	fs.BoolVar(&f.split, "split", false, "Count dvs events by polarity or atis events by type")
}

// resolve loads the configuration file, if any, and applies the flags that
// were set explicitly on top of it.
func (f *replayFlags) resolve(fs *flag.FlagSet) (*config.ReplayConfig, error) {
	cfg := config.DefaultReplayConfig()
	if f.configPath != "" {
		loaded, err := config.LoadReplayConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "mode":
			cfg.DispatchMode = &f.mode
		case "loop":
			cfg.Loop = &f.loop
		case "speed":
			cfg.SpeedMultiplier = &f.speed
		case "chunk":
			cfg.ChunkSize = &f.chunkSize
		case "port":
			cfg.UDPPort = &f.port
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if f.out != "" && cfg.GetLoop() {
		return nil, errLoopWithOutput
	}
	return cfg, nil
}

func handleReplay(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("replay", stdout)
	var flags replayFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.resolve(fs)
	if err != nil {
		return err
	}

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

	var written atomic.Uint64
	var counts *splitCounts
	sink := func(h eventstream.Header) (dispatch.HandleEvent, error) {
		var route func(eventstream.Event)
		if flags.split {
			counts = &splitCounts{kind: h.Kind}
			if route = counts.router(); route == nil {
				return nil, errSplitKind
			}
		}
		var enc *eventstream.Encoder
		if flags.out != "" {
			f, err := eventstream.CreateFile(flags.out)
			if err != nil {
				return nil, err
			}
			out = f
			if enc, err = eventstream.NewEncoder(f, h); err != nil {
				return nil, err
			}
		}
		return func(ev eventstream.Event) error {
			if flags.print {
				fmt.Fprintln(stdout, formatEvent(ev))
			}
			if route != nil {
				route(ev)
			}
			if enc != nil {
				if err := enc.Write(ev); err != nil {
					return err
				}
			}
			written.Add(1)
			return nil
		}, nil
	}

	failures := relay.New()
	var buffer *spsc.Buffer[eventstream.Event]
	bufferFailures := relay.New()
	build := sink
	if flags.buffer {
		build = func(h eventstream.Header) (dispatch.HandleEvent, error) {
			handle, err := sink(h)
			if err != nil {
				return nil, err
			}
			buffer = spsc.NewBuffer(func(ev eventstream.Event) error { return handle(ev) }, bufferFailures, spsc.BufferOptions{
				Size:  cfg.GetFIFOSize(),
				Sleep: cfg.GetConsumerSleep(),
			})
			return func(ev eventstream.Event) error {
				if err := bufferFailures.Err(); err != nil {
					return err
				}
				buffer.Push(ev)
				return nil
			}, nil
		}
	}

	o, err := startSession(r, cfg.DispatchOptions(), failures, build)
	if err != nil {
		return err
	}
	sessionErr := dispatch.Wait(ctx, o, failures)

	var dropped uint64
	if buffer != nil {
		buffer.Close()
		dropped = buffer.Dropped()
		if sessionErr == nil {
			sessionErr = bufferFailures.Err()
		}
	}

	fmt.Fprintf(stdout, "replayed %d events (%d delivered, %d dropped, %d restarts)\n",
		o.Events(), written.Load(), dropped, o.Restarts())
	if counts != nil {
		counts.print(stdout)
	}
	if errors.Is(sessionErr, context.Canceled) {
		return nil
	}
	return sessionErr
}

// splitCounts tallies the events of one stream by category.
type splitCounts struct {
	kind  eventstream.Kind
	first uint64
	other uint64
}

// router returns the counting handler for the stream kind, or nil when the
// kind has no split.
func (c *splitCounts) router() func(eventstream.Event) {
	switch c.kind {
	case eventstream.KindDvs:
		split := eventstream.SplitDvs(
			func(eventstream.SimpleEvent) { c.first++ },
			func(eventstream.SimpleEvent) { c.other++ },
		)
		return func(ev eventstream.Event) {
			if dvs, ok := ev.(eventstream.DvsEvent); ok {
				split(dvs)
			}
		}
	case eventstream.KindAtis:
		split := eventstream.SplitAtis(
			func(eventstream.DvsEvent) { c.first++ },
			func(eventstream.ThresholdCrossing) { c.other++ },
		)
		return func(ev eventstream.Event) {
			if atis, ok := ev.(eventstream.AtisEvent); ok {
				split(atis)
			}
		}
	}
	return nil
}

func (c *splitCounts) print(w io.Writer) {
	if c.kind == eventstream.KindAtis {
		fmt.Fprintf(w, "split: %d change detections, %d threshold crossings\n", c.first, c.other)
		return
	}
	fmt.Fprintf(w, "split: %d increases, %d decreases\n", c.first, c.other)
}
