package dispatch

import (
	"time"

	"github.com/banshee-data/eventstream/internal/timeutil"
)

// pacer holds the timing reference of one pass over a stream.
type pacer struct {
	mode  Mode
	clock timeutil.Clock
	speed float64
	spin  time.Duration
	// stop interrupts a pending wait when closed.
	stop <-chan struct{}

	started   bool
	reference time.Time
	firstT    uint64
	previousT uint64
}

// wait blocks until the event at timestamp t is due and returns false if
// stop closed first. The first event is always due immediately and becomes
// the reference.
func (p *pacer) wait(t uint64) bool {
	if p.mode == AsFastAsPossible {
		return true
	}
	if !p.started {
		p.started = true
		p.reference = p.clock.Now()
		p.firstT = t
		p.previousT = t
		return true
	}
	if t <= p.previousT {
		return true
	}
	p.previousT = t
	offset := t
	if p.mode == SynchronouslySkipOffset {
		offset = t - p.firstT
	}
	return timeutil.SleepUntil(p.clock, p.reference.Add(p.scale(offset)), p.spin, p.stop)
}

func (p *pacer) scale(us uint64) time.Duration {
	d := time.Duration(us) * time.Microsecond
	if p.speed == 1 {
		return d
	}
	return time.Duration(float64(d) / p.speed)
}

// restart forgets the reference so the next event is due immediately.
func (p *pacer) restart() {
	p.started = false
}
