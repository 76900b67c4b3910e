package analysis

import (
	"context"
	"io"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/eventstream/internal/eventstream"
)

// Summary describes the content of one stream.
type Summary struct {
	Header eventstream.Header
	Events uint64
	// FirstT and LastT are in microseconds.
	FirstT uint64
	LastT  uint64
	// EventRate is in events per second of stream time, zero for streams
	// spanning no time.
	EventRate float64

	Increases          uint64 // dvs
	Decreases          uint64 // dvs
	ChangeDetections   uint64 // atis
	ThresholdCrossings uint64 // atis
	PayloadBytes       uint64 // generic

	MeanIntervalUs   float64
	StdDevIntervalUs float64
	MaxIntervalUs    uint64
}

// Duration returns the time spanned by the stream.
func (s Summary) Duration() time.Duration {
	return time.Duration(s.LastT-s.FirstT) * time.Microsecond
}

// Summarizer accumulates a Summary from events. Its Add method can be used
// directly as a dispatch handler.
type Summarizer struct {
	summary    Summary
	timestamps []uint64
}

// NewSummarizer returns an empty summarizer for a stream with header h.
func NewSummarizer(h eventstream.Header) *Summarizer {
	return &Summarizer{summary: Summary{Header: h}}
}

// Add records one event.
func (s *Summarizer) Add(ev eventstream.Event) error {
	t := ev.Timestamp()
	if s.summary.Events == 0 {
		s.summary.FirstT = t
	}
	s.summary.LastT = t
	s.summary.Events++
	s.timestamps = append(s.timestamps, t)

	switch ev := ev.(type) {
	case eventstream.DvsEvent:
		if ev.IsIncrease {
			s.summary.Increases++
		} else {
			s.summary.Decreases++
		}
	case eventstream.AtisEvent:
		if ev.IsThresholdCrossing {
			s.summary.ThresholdCrossings++
		} else {
			s.summary.ChangeDetections++
		}
	case eventstream.GenericEvent:
		s.summary.PayloadBytes += uint64(len(ev.Bytes))
	}
	return nil
}

// Timestamps returns the timestamps recorded so far.
func (s *Summarizer) Timestamps() []uint64 {
	return s.timestamps
}

// Intervals returns the gaps between consecutive events in microseconds.
func (s *Summarizer) Intervals() []float64 {
	if len(s.timestamps) < 2 {
		return nil
	}
	intervals := make([]float64, len(s.timestamps)-1)
	for i := 1; i < len(s.timestamps); i++ {
		intervals[i-1] = float64(s.timestamps[i] - s.timestamps[i-1])
	}
	return intervals
}

// Summary computes the statistics of the events added so far.
func (s *Summarizer) Summary() Summary {
	sum := s.summary
	if span := sum.LastT - sum.FirstT; span > 0 {
		sum.EventRate = float64(sum.Events) / (float64(span) / 1e6)
	}
	intervals := s.Intervals()
	switch len(intervals) {
	case 0:
	case 1:
		sum.MeanIntervalUs = intervals[0]
	default:
		sum.MeanIntervalUs, sum.StdDevIntervalUs = stat.MeanStdDev(intervals, nil)
	}
	for _, d := range intervals {
		if uint64(d) > sum.MaxIntervalUs {
			sum.MaxIntervalUs = uint64(d)
		}
	}
	return sum
}

// Summarize decodes every event of r.
func Summarize(ctx context.Context, r io.Reader) (Summary, *Summarizer, error) {
	s := &Summarizer{}
	h, err := drain(ctx, r, nil, s.Add)
	s.summary.Header = h
	if err != nil {
		return Summary{}, nil, err
	}
	return s.Summary(), s, nil
}

// RateBin counts the events falling in one bin of stream time.
type RateBin struct {
	// Start is measured from the first event.
	Start  time.Duration
	Events int
}

// MaxRateBins bounds the number of bins returned by Rate.
const MaxRateBins = 1 << 16

// Rate bins timestamps by width, starting at the first timestamp. Empty
// bins between events are included. When the span would need more than
// MaxRateBins bins, width is widened to fit.
func Rate(timestamps []uint64, width time.Duration) []RateBin {
	if len(timestamps) == 0 || width <= 0 {
		return nil
	}
	widthUs := uint64(width / time.Microsecond)
	if widthUs == 0 {
		widthUs = 1
	}
	first := timestamps[0]
	span := timestamps[len(timestamps)-1] - first
	if span/widthUs >= MaxRateBins {
		widthUs = span/(MaxRateBins-1) + 1
	}
	n := span/widthUs + 1
	bins := make([]RateBin, n)
	for i := range bins {
		bins[i].Start = time.Duration(uint64(i)*widthUs) * time.Microsecond
	}
	for _, t := range timestamps {
		bins[(t-first)/widthUs].Events++
	}
	return bins
}
