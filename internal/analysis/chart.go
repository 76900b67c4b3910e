package analysis

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// RenderRateChart writes an HTML line chart of events per bin.
func RenderRateChart(w io.Writer, title string, bins []RateBin) error {
	if len(bins) == 0 {
		return errors.New("no events to chart")
	}
	x := make([]string, len(bins))
	y := make([]opts.LineData, len(bins))
	for i, bin := range bins {
		x[i] = fmt.Sprintf("%.3f", bin.Start.Seconds())
		y[i] = opts.LineData{Value: bin.Events}
	}
	width := bins[0].Start
	if len(bins) > 1 {
		width = bins[1].Start - bins[0].Start
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("bins=%d width=%v", len(bins), width)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "events", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).AddSeries("events", y)
	return line.Render(w)
}

// PlotIntervals saves a histogram of inter-event intervals (microseconds)
// as an image. The format follows the extension of path.
func PlotIntervals(path string, intervals []float64, bins int) error {
	if len(intervals) == 0 {
		return errors.New("no intervals to plot")
	}
	if bins <= 0 {
		bins = 64
	}
	p := plot.New()
	p.Title.Text = "Inter-event intervals"
	p.X.Label.Text = "interval (us)"
	p.Y.Label.Text = "count"

	hist, err := plotter.NewHist(plotter.Values(intervals), bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	hist.LineStyle.Width = vg.Points(0.5)
	p.Add(hist)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
