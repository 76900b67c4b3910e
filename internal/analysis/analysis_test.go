package analysis

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func encode(t *testing.T, h eventstream.Header, events ...eventstream.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := eventstream.NewEncoder(&buf, h)
	require.NoError(t, err)
	for _, ev := range events {
		require.NoError(t, enc.Write(ev))
	}
	return buf.Bytes()
}

func TestSummarizeDvs(t *testing.T) {
	stream := encode(t, eventstream.Header{Kind: eventstream.KindDvs, Width: 4, Height: 4},
		eventstream.DvsEvent{T: 1000, X: 1, Y: 1, IsIncrease: true},
		eventstream.DvsEvent{T: 1100, X: 1, Y: 2},
		eventstream.DvsEvent{T: 1300, X: 2, Y: 2, IsIncrease: true},
		eventstream.DvsEvent{T: 501_000, X: 3, Y: 3},
	)
	sum, s, err := Summarize(context.Background(), bytes.NewReader(stream))
	require.NoError(t, err)

	assert.Equal(t, eventstream.KindDvs, sum.Header.Kind)
	assert.Equal(t, uint64(4), sum.Events)
	assert.Equal(t, uint64(1000), sum.FirstT)
	assert.Equal(t, uint64(501_000), sum.LastT)
	assert.Equal(t, 500*time.Millisecond, sum.Duration())
	assert.InDelta(t, 8.0, sum.EventRate, 1e-9)
	assert.Equal(t, uint64(2), sum.Increases)
	assert.Equal(t, uint64(2), sum.Decreases)
	assert.Equal(t, []float64{100, 200, 499_700}, s.Intervals())
	assert.InDelta(t, 500_000.0/3, sum.MeanIntervalUs, 1e-6)
	assert.Greater(t, sum.StdDevIntervalUs, 0.0)
	assert.Equal(t, uint64(499_700), sum.MaxIntervalUs)
}

func TestSummarizeAtisAndGeneric(t *testing.T) {
	atis := encode(t, eventstream.Header{Kind: eventstream.KindAtis, Width: 2, Height: 2},
		eventstream.AtisEvent{T: 1, IsThresholdCrossing: true},
		eventstream.AtisEvent{T: 2},
		eventstream.AtisEvent{T: 3, IsThresholdCrossing: true, Polarity: true},
	)
	sum, _, err := Summarize(context.Background(), bytes.NewReader(atis))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sum.ThresholdCrossings)
	assert.Equal(t, uint64(1), sum.ChangeDetections)

	generic := encode(t, eventstream.Header{Kind: eventstream.KindGeneric},
		eventstream.GenericEvent{T: 5, Bytes: []byte("abc")},
		eventstream.GenericEvent{T: 5},
	)
	sum, _, err = Summarize(context.Background(), bytes.NewReader(generic))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum.PayloadBytes)
	assert.Zero(t, sum.EventRate)
	assert.Zero(t, sum.MeanIntervalUs)
}

func TestSummarizeEmptyAndBroken(t *testing.T) {
	empty := encode(t, eventstream.Header{Kind: eventstream.KindColor, Width: 1, Height: 1})
	sum, s, err := Summarize(context.Background(), bytes.NewReader(empty))
	require.NoError(t, err)
	assert.Zero(t, sum.Events)
	assert.Nil(t, s.Intervals())

	_, _, err = Summarize(context.Background(), strings.NewReader("garbage"))
	assert.ErrorIs(t, err, eventstream.ErrWrongSignature)
}

func TestRate(t *testing.T) {
	bins := Rate([]uint64{100, 150, 1099, 1100, 3100}, time.Millisecond)
	assert.Equal(t, []RateBin{
		{Start: 0, Events: 3},
		{Start: time.Millisecond, Events: 1},
		{Start: 2 * time.Millisecond, Events: 0},
		{Start: 3 * time.Millisecond, Events: 1},
	}, bins)
	assert.Nil(t, Rate(nil, time.Millisecond))
	assert.Nil(t, Rate([]uint64{1}, 0))
}

func TestRateWidensBinsForLongSpans(t *testing.T) {
	// A run of overflow markers can push one timestamp days past the rest.
	timestamps := []uint64{0, 10, 1 << 40}
	bins := Rate(timestamps, time.Millisecond)

	require.LessOrEqual(t, len(bins), MaxRateBins)
	require.Greater(t, len(bins), 1)
	width := bins[1].Start - bins[0].Start
	assert.Greater(t, width, time.Millisecond)
	assert.Equal(t, 2, bins[0].Events)
	assert.Equal(t, 1, bins[len(bins)-1].Events)
	total := 0
	for _, b := range bins {
		total += b.Events
	}
	assert.Equal(t, len(timestamps), total)
}

func TestPacketizer(t *testing.T) {
	var p Packetizer
	p.Add(eventstream.DvsEvent{T: 0, IsIncrease: true})
	p.Add(eventstream.DvsEvent{T: 9999})
	p.Add(eventstream.DvsEvent{T: 10_000, IsIncrease: true})
	p.Add(eventstream.DvsEvent{T: 10_001})

	assert.Equal(t, []Packet{
		{FirstT: 0, LastT: 9999, Events: 2, Increases: 1},
		{FirstT: 10_000, LastT: 10_001, Events: 2, Increases: 1},
	}, p.Packets())
	assert.Equal(t, []uint64{9999, 10_001}, p.Ends())
}

func TestPacketizerEventLimit(t *testing.T) {
	var p Packetizer
	for i := 0; i < 2*MaxPacketEvents+1; i++ {
		p.Add(eventstream.DvsEvent{T: 42})
	}
	packets := p.Packets()
	require.Len(t, packets, 3)
	assert.Equal(t, MaxPacketEvents, packets[0].Events)
	assert.Equal(t, MaxPacketEvents, packets[1].Events)
	assert.Equal(t, 1, packets[2].Events)
}

func TestPacketize(t *testing.T) {
	stream := encode(t, eventstream.Header{Kind: eventstream.KindDvs, Width: 4, Height: 4},
		eventstream.DvsEvent{T: 10},
		eventstream.DvsEvent{T: 20_000},
		eventstream.DvsEvent{T: 20_005},
	)
	packets, err := Packetize(context.Background(), bytes.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Equal(t, uint64(10), packets[0].LastT)
	assert.Equal(t, uint64(20_005), packets[1].LastT)

	color := encode(t, eventstream.Header{Kind: eventstream.KindColor, Width: 1, Height: 1})
	_, err = Packetize(context.Background(), bytes.NewReader(color))
	assert.ErrorIs(t, err, eventstream.ErrUnsupportedEventType)
}

func TestRenderRateChart(t *testing.T) {
	var buf bytes.Buffer
	err := RenderRateChart(&buf, "rec.es", []RateBin{
		{Start: 0, Events: 3},
		{Start: time.Millisecond, Events: 1},
	})
	require.NoError(t, err)
	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "rec.es")

	assert.Error(t, RenderRateChart(&buf, "empty", nil))
}

func TestPlotIntervals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intervals.png")
	require.NoError(t, PlotIntervals(path, []float64{1, 2, 2, 3, 10, 12}, 4))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, PlotIntervals(path, nil, 4))
}
