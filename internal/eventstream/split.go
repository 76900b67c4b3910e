package eventstream

// SimpleEvent is a polarity-less change detection produced by SplitDvs.
type SimpleEvent struct {
	T uint64
	X uint16
	Y uint16
}

// ThresholdCrossing is one half of an ATIS exposure measurement.
type ThresholdCrossing struct {
	T        uint64
	X        uint16
	Y        uint16
	IsSecond bool
}

// SplitDvs returns a handler routing increasing changes to onIncrease and
// decreasing changes to onDecrease.
func SplitDvs(onIncrease, onDecrease func(SimpleEvent)) func(DvsEvent) {
	return func(ev DvsEvent) {
		simple := SimpleEvent{T: ev.T, X: ev.X, Y: ev.Y}
		if ev.IsIncrease {
			onIncrease(simple)
		} else {
			onDecrease(simple)
		}
	}
}

// SplitAtis returns a handler routing change detections to onChange and
// exposure measurements to onCrossing.
func SplitAtis(onChange func(DvsEvent), onCrossing func(ThresholdCrossing)) func(AtisEvent) {
	return func(ev AtisEvent) {
		if ev.IsThresholdCrossing {
			onCrossing(ThresholdCrossing{T: ev.T, X: ev.X, Y: ev.Y, IsSecond: ev.Polarity})
			return
		}
		onChange(DvsEvent{T: ev.T, X: ev.X, Y: ev.Y, IsIncrease: ev.Polarity})
	}
}
