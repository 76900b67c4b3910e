package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/banshee-data/eventstream/internal/analysis"
	"github.com/banshee-data/eventstream/internal/catalog"
	"github.com/banshee-data/eventstream/internal/config"
	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/source"
)

var errMissingSource = errors.New("missing source argument")

// newFlagSet returns a flag set whose parse errors are returned instead of
// exiting, so that run stays testable.
func newFlagSet(name string, stdout io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stdout)
	return fs
}

// openSource opens the single positional argument of fs.
func openSource(ctx context.Context, fs *flag.FlagSet, cfg *config.ReplayConfig) (io.ReadCloser, string, error) {
	if fs.NArg() < 1 {
		return nil, "", errMissingSource
	}
	uri := fs.Arg(0)
	r, err := source.Open(ctx, uri, cfg)
	if err != nil {
		return nil, "", err
	}
	return r, uri, nil
}

func handleInfo(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("info", stdout)
	catalogPath := fs.String("catalog", "", "Store the summary in this SQLite catalog")
	asJSON := fs.Bool("json", false, "Print the summary as JSON")
	udpPort := fs.Int("port", 0, "UDP destination port for pcap sources (0 for any)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.DefaultReplayConfig()
	cfg.UDPPort = udpPort
	r, uri, err := openSource(ctx, fs, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	summary, _, err := analysis.Summarize(ctx, r)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		printSummary(stdout, uri, summary)
	}

	if *catalogPath == "" {
		return nil
	}
	c, err := catalog.Open(*catalogPath)
	if err != nil {
		return err
	}
	defer c.Close()
	id, err := c.Record(ctx, recordingFromSummary(uri, summary))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "catalogued as %s\n", id)
	return nil
}

func recordingFromSummary(uri string, s analysis.Summary) catalog.Recording {
	return catalog.Recording{
		Source:           uri,
		Kind:             s.Header.Kind.String(),
		Version:          s.Header.Version.String(),
		Width:            int(s.Header.Width),
		Height:           int(s.Header.Height),
		Events:           int64(s.Events),
		FirstT:           s.FirstT,
		LastT:            s.LastT,
		EventRate:        s.EventRate,
		MeanIntervalUs:   s.MeanIntervalUs,
		StdDevIntervalUs: s.StdDevIntervalUs,
	}
}

func printSummary(w io.Writer, uri string, s analysis.Summary) {
	fmt.Fprintf(w, "source:    %s\n", uri)
	fmt.Fprintf(w, "version:   %s\n", s.Header.Version)
	fmt.Fprintf(w, "kind:      %s\n", s.Header.Kind)
	if s.Header.Kind.Spatial() {
		fmt.Fprintf(w, "size:      %dx%d\n", s.Header.Width, s.Header.Height)
	}
	fmt.Fprintf(w, "events:    %d\n", s.Events)
	if s.Events == 0 {
		return
	}
	fmt.Fprintf(w, "span:      %d us to %d us (%v)\n", s.FirstT, s.LastT, s.Duration())
	fmt.Fprintf(w, "rate:      %.1f ev/s\n", s.EventRate)
	fmt.Fprintf(w, "interval:  mean %.2f us, stddev %.2f us, max %d us\n", s.MeanIntervalUs, s.StdDevIntervalUs, s.MaxIntervalUs)
	switch s.Header.Kind {
	case eventstream.KindDvs:
		fmt.Fprintf(w, "polarity:  %d increases, %d decreases\n", s.Increases, s.Decreases)
	case eventstream.KindAtis:
		fmt.Fprintf(w, "types:     %d change detections, %d threshold crossings\n", s.ChangeDetections, s.ThresholdCrossings)
	case eventstream.KindGeneric:
		fmt.Fprintf(w, "payload:   %d bytes\n", s.PayloadBytes)
	}
}
