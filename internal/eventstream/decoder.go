package eventstream

import "fmt"

/*
EVENT LAYOUTS

Every event starts with a leading byte carrying the timestamp delta since
the previous event, in microseconds. Deltas that do not fit are preceded by
overflow markers, each worth a fixed number of ticks. One more leading-byte
pattern per kind is reserved: encoders never emit it and decoders skip it.

	Kind     Leading byte                   Capacity  Overflow     Reserved  Trailing fields
	dvs      ttttttti (i: is_increase)       127       0xFF         0xFE      x u16, y u16
	atis     ttttttpc (p: polarity,          63        111111cc     0xFC      x u16, y u16
	                   c: threshold crossing)          (cc x 63)
	color    tttttttt                        254       0xFF         0xFE      x u16, y u16, r, g, b
	generic  tttttttt                        254       0xFF         0xFE      size (7-bit groups, LSB
	                                                                          continuation), payload

Coordinates are little-endian and validated against the header as soon as
their high byte is read.
*/

const (
	dvsCapacity     = 0b1111111
	atisCapacity    = 0b111111
	colorCapacity   = 0b11111110
	genericCapacity = 0b11111110

	overflowMarker = 0b11111111
	reservedByte   = 0b11111110

	atisOverflowMask     = 0b11111100
	atisOverflowUnitMask = 0b11
	// atisUnitsPerMarker is the number of capacity units a full 0xFF marker carries.
	atisUnitsPerMarker = 0b11
)

// byteHandler is the per-kind strategy driving a Decoder. handle consumes
// one byte and returns an event when that byte completes one.
type byteHandler interface {
	handle(b byte) (Event, bool, error)
	reset()
}

// Decoder is a byte-level state machine turning event bytes into events.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	header  Header
	handler byteHandler
}

// NewDecoder creates a decoder for the events following the given header.
func NewDecoder(h Header) (*Decoder, error) {
	var handler byteHandler
	switch h.Kind {
	case KindGeneric:
		handler = &genericHandler{}
	case KindDvs:
		handler = &dvsHandler{coordinates: coordinates{width: h.Width, height: h.Height}}
	case KindAtis:
		handler = &atisHandler{coordinates: coordinates{width: h.Width, height: h.Height}}
	case KindColor:
		handler = &colorHandler{coordinates: coordinates{width: h.Width, height: h.Height}}
	default:
		return nil, fmt.Errorf("%w: code %d", ErrUnsupportedEventType, uint8(h.Kind))
	}
	return &Decoder{header: h, handler: handler}, nil
}

// Header returns the header the decoder was created with.
func (d *Decoder) Header() Header {
	return d.header
}

// Feed consumes one byte. It returns true when the byte completes an event.
// An error returns the decoder to its initial state.
func (d *Decoder) Feed(b byte) (Event, bool, error) {
	ev, ok, err := d.handler.handle(b)
	if err != nil {
		d.handler.reset()
	}
	return ev, ok, err
}

// Decode feeds every byte of chunk and calls emit for each completed event,
// stopping at the first error.
func (d *Decoder) Decode(chunk []byte, emit func(Event) error) error {
	for _, b := range chunk {
		ev, ok, err := d.Feed(b)
		if err != nil {
			return err
		}
		if ok {
			if err := emit(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reset returns the state machine to idle and clears the running timestamp.
// It is used when a stream is rewound to just past its header.
func (d *Decoder) Reset() {
	d.handler.reset()
}

// coordinates assembles the x and y fields shared by spatial kinds.
type coordinates struct {
	width  uint16
	height uint16
	x      uint16
	y      uint16
}

// consume handles byte index (0..3) of the coordinates block.
func (c *coordinates) consume(index int, b byte) error {
	switch index {
	case 0:
		c.x = uint16(b)
	case 1:
		c.x |= uint16(b) << 8
		if c.x >= c.width {
			return fmt.Errorf("%w: x=%d width=%d", ErrCoordinatesOverflow, c.x, c.width)
		}
	case 2:
		c.y = uint16(b)
	case 3:
		c.y |= uint16(b) << 8
		if c.y >= c.height {
			return fmt.Errorf("%w: y=%d height=%d", ErrCoordinatesOverflow, c.y, c.height)
		}
	}
	return nil
}

// state 0 is idle; state n > 0 expects trailing byte n-1.
const stateIdle = 0

type dvsHandler struct {
	coordinates
	state      int
	t          uint64
	isIncrease bool
}

func (h *dvsHandler) handle(b byte) (Event, bool, error) {
	if h.state == stateIdle {
		switch b {
		case overflowMarker:
			h.t += dvsCapacity
		case reservedByte:
		default:
			h.t += uint64(b >> 1)
			h.isIncrease = b&1 == 1
			h.state = 1
		}
		return nil, false, nil
	}
	if err := h.consume(h.state-1, b); err != nil {
		return nil, false, err
	}
	if h.state == 4 {
		h.state = stateIdle
		return DvsEvent{T: h.t, X: h.x, Y: h.y, IsIncrease: h.isIncrease}, true, nil
	}
	h.state++
	return nil, false, nil
}

func (h *dvsHandler) reset() {
	h.state = stateIdle
	h.t = 0
}

type atisHandler struct {
	coordinates
	state               int
	t                   uint64
	isThresholdCrossing bool
	polarity            bool
}

func (h *atisHandler) handle(b byte) (Event, bool, error) {
	if h.state == stateIdle {
		if b&atisOverflowMask == atisOverflowMask {
			// 0xFC carries zero units and is therefore a no-op.
			h.t += atisCapacity * uint64(b&atisOverflowUnitMask)
		} else {
			h.t += uint64(b >> 2)
			h.isThresholdCrossing = b&1 == 1
			h.polarity = b&0b10 == 0b10
			h.state = 1
		}
		return nil, false, nil
	}
	if err := h.consume(h.state-1, b); err != nil {
		return nil, false, err
	}
	if h.state == 4 {
		h.state = stateIdle
		return AtisEvent{
			T:                   h.t,
			X:                   h.x,
			Y:                   h.y,
			IsThresholdCrossing: h.isThresholdCrossing,
			Polarity:            h.polarity,
		}, true, nil
	}
	h.state++
	return nil, false, nil
}

func (h *atisHandler) reset() {
	h.state = stateIdle
	h.t = 0
}

type colorHandler struct {
	coordinates
	state   int
	t       uint64
	r, g, b uint8
}

func (h *colorHandler) handle(b byte) (Event, bool, error) {
	switch h.state {
	case stateIdle:
		switch b {
		case overflowMarker:
			h.t += colorCapacity
		case reservedByte:
		default:
			h.t += uint64(b)
			h.state = 1
		}
		return nil, false, nil
	case 1, 2, 3, 4:
		if err := h.consume(h.state-1, b); err != nil {
			return nil, false, err
		}
	case 5:
		h.r = b
	case 6:
		h.g = b
	case 7:
		h.b = b
		h.state = stateIdle
		return ColorEvent{T: h.t, X: h.x, Y: h.y, R: h.r, G: h.g, B: h.b}, true, nil
	}
	h.state++
	return nil, false, nil
}

func (h *colorHandler) reset() {
	h.state = stateIdle
	h.t = 0
}

type genericState int

const (
	genericIdle genericState = iota
	genericSize
	genericPayload
)

type genericHandler struct {
	state   genericState
	t       uint64
	index   uint
	size    uint64
	payload []byte
}

func (h *genericHandler) handle(b byte) (Event, bool, error) {
	switch h.state {
	case genericIdle:
		switch b {
		case overflowMarker:
			h.t += genericCapacity
		case reservedByte:
		default:
			h.t += uint64(b)
			h.state = genericSize
		}
	case genericSize:
		h.size |= uint64(b>>1) << (7 * h.index)
		if b&1 == 1 {
			h.index++
			return nil, false, nil
		}
		h.index = 0
		if h.size == 0 {
			h.state = genericIdle
			return GenericEvent{T: h.t}, true, nil
		}
		// Corrupt streams may declare absurd sizes; grow as bytes arrive.
		h.payload = make([]byte, 0, min(h.size, 1<<16))
		h.state = genericPayload
	case genericPayload:
		h.payload = append(h.payload, b)
		if uint64(len(h.payload)) == h.size {
			ev := GenericEvent{T: h.t, Bytes: h.payload}
			h.payload = nil
			h.size = 0
			h.state = genericIdle
			return ev, true, nil
		}
	}
	return nil, false, nil
}

func (h *genericHandler) reset() {
	h.state = genericIdle
	h.t = 0
	h.index = 0
	h.size = 0
	h.payload = nil
}
