package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/eventstream/internal/analysis"
	"github.com/banshee-data/eventstream/internal/config"
)

var errNoChartOutput = errors.New("at least one of -html or -png is required")

func handleChart(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("chart", stdout)
	htmlPath := fs.String("html", "", "Write the event rate chart to this HTML file")
	pngPath := fs.String("png", "", "Write the interval histogram to this image (png, svg or pdf)")
	binWidth := fs.Duration("bin", 10*time.Millisecond, "Width of each event rate bin")
	histBins := fs.Int("bins", 64, "Number of histogram bins")
	udpPort := fs.Int("port", 0, "UDP destination port for pcap sources (0 for any)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *htmlPath == "" && *pngPath == "" {
		return errNoChartOutput
	}

	cfg := config.DefaultReplayConfig()
	cfg.UDPPort = udpPort
	r, uri, err := openSource(ctx, fs, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	summary, s, err := analysis.Summarize(ctx, r)
	if err != nil {
		return err
	}

	if *htmlPath != "" {
		f, err := os.Create(*htmlPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", *htmlPath, err)
		}
		title := fmt.Sprintf("%s (%s, %d events)", uri, summary.Header.Kind, summary.Events)
		if err := analysis.RenderRateChart(f, title, analysis.Rate(s.Timestamps(), *binWidth)); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", *htmlPath, err)
		}
		fmt.Fprintf(stdout, "wrote %s\n", *htmlPath)
	}
	if *pngPath != "" {
		if err := analysis.PlotIntervals(*pngPath, s.Intervals(), *histBins); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", *pngPath)
	}
	return nil
}
