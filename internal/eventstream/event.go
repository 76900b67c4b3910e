package eventstream

// Event is one decoded event. The set of implementations is closed:
// GenericEvent, DvsEvent, AtisEvent and ColorEvent.
type Event interface {
	// Timestamp returns the absolute timestamp in microseconds.
	Timestamp() uint64
	// Kind returns the stream kind this event belongs to.
	Kind() Kind

	event()
}

// GenericEvent carries an opaque payload.
type GenericEvent struct {
	T     uint64
	Bytes []byte
}

// DvsEvent is a change detection.
// X is 0 on the left and Y is 0 on the bottom of the sensor.
type DvsEvent struct {
	T          uint64
	X          uint16
	Y          uint16
	IsIncrease bool
}

// AtisEvent is either a change detection or an exposure measurement.
type AtisEvent struct {
	T uint64
	X uint16
	Y uint16
	// IsThresholdCrossing is false for a change detection.
	IsThresholdCrossing bool
	// Polarity is false for a decreasing change detection, or for the
	// first threshold crossing of an exposure measurement.
	Polarity bool
}

// ColorEvent is an RGB pixel update.
type ColorEvent struct {
	T uint64
	X uint16
	Y uint16
	R uint8
	G uint8
	B uint8
}

func (e GenericEvent) Timestamp() uint64 { return e.T }
func (e DvsEvent) Timestamp() uint64     { return e.T }
func (e AtisEvent) Timestamp() uint64    { return e.T }
func (e ColorEvent) Timestamp() uint64   { return e.T }

func (GenericEvent) Kind() Kind { return KindGeneric }
func (DvsEvent) Kind() Kind     { return KindDvs }
func (AtisEvent) Kind() Kind    { return KindAtis }
func (ColorEvent) Kind() Kind   { return KindColor }

func (GenericEvent) event() {}
func (DvsEvent) event()     {}
func (AtisEvent) event()    {}
func (ColorEvent) event()   {}

// position returns the coordinates of spatial events.
func position(ev Event) (x, y uint16, ok bool) {
	switch e := ev.(type) {
	case DvsEvent:
		return e.X, e.Y, true
	case AtisEvent:
		return e.X, e.Y, true
	case ColorEvent:
		return e.X, e.Y, true
	}
	return 0, 0, false
}
