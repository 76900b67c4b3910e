package eventstream

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder writes a header and then events to a byte stream.
// An Encoder is not safe for concurrent use.
type Encoder struct {
	w         io.Writer
	header    Header
	previousT uint64
	buf       []byte
}

// NewEncoder writes the header for h to w and returns an encoder for its
// events. Width and height are ignored for generic streams.
func NewEncoder(w io.Writer, h Header) (*Encoder, error) {
	h.Version = CurrentVersion
	if !h.Kind.Spatial() {
		h.Width, h.Height = 0, 0
	}
	if err := WriteHeader(w, h); err != nil {
		return nil, err
	}
	return &Encoder{w: w, header: h, buf: make([]byte, 0, 64)}, nil
}

// Header returns the header written by NewEncoder.
func (e *Encoder) Header() Header {
	return e.header
}

// Write encodes one event. Events must match the header kind, lie within
// its bounds and have non-decreasing timestamps. A rejected event writes
// no bytes and leaves the encoder usable.
func (e *Encoder) Write(ev Event) error {
	if ev.Kind() != e.header.Kind {
		return fmt.Errorf("%w: %s event in a %s stream", ErrUnsupportedEventType, ev.Kind(), e.header.Kind)
	}
	if x, y, ok := position(ev); ok && (x >= e.header.Width || y >= e.header.Height) {
		return fmt.Errorf("%w: (%d, %d) outside %dx%d", ErrCoordinatesOverflow, x, y, e.header.Width, e.header.Height)
	}
	t := ev.Timestamp()
	if t < e.previousT {
		return fmt.Errorf("%w: t=%d after t=%d", ErrMonotonicityViolation, t, e.previousT)
	}
	delta := t - e.previousT

	buf := e.buf[:0]
	switch ev := ev.(type) {
	case DvsEvent:
		buf, delta = appendOverflows(buf, delta, dvsCapacity)
		lead := byte(delta << 1)
		if ev.IsIncrease {
			lead |= 1
		}
		buf = append(buf, lead)
		buf = appendCoordinates(buf, ev.X, ev.Y)
	case AtisEvent:
		buf, delta = appendAtisOverflows(buf, delta)
		lead := byte(delta << 2)
		if ev.Polarity {
			lead |= 0b10
		}
		if ev.IsThresholdCrossing {
			lead |= 1
		}
		buf = append(buf, lead)
		buf = appendCoordinates(buf, ev.X, ev.Y)
	case ColorEvent:
		buf, delta = appendOverflows(buf, delta, colorCapacity)
		buf = append(buf, byte(delta))
		buf = appendCoordinates(buf, ev.X, ev.Y)
		buf = append(buf, ev.R, ev.G, ev.B)
	case GenericEvent:
		buf, delta = appendOverflows(buf, delta, genericCapacity)
		buf = append(buf, byte(delta))
		buf = appendSize(buf, uint64(len(ev.Bytes)))
		buf = append(buf, ev.Bytes...)
	}
	e.buf = buf

	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	e.previousT = t
	return nil
}

// appendOverflows emits one 0xFF marker per full capacity in delta and
// returns the remainder.
func appendOverflows(buf []byte, delta, capacity uint64) ([]byte, uint64) {
	if delta < capacity {
		return buf, delta
	}
	n := delta / capacity
	for i := uint64(0); i < n; i++ {
		buf = append(buf, overflowMarker)
	}
	return buf, delta - n*capacity
}

// appendAtisOverflows packs up to three capacity units per marker byte.
func appendAtisOverflows(buf []byte, delta uint64) ([]byte, uint64) {
	if delta < atisCapacity {
		return buf, delta
	}
	n := delta / atisCapacity
	for i := uint64(0); i < n/atisUnitsPerMarker; i++ {
		buf = append(buf, overflowMarker)
	}
	if left := n % atisUnitsPerMarker; left > 0 {
		buf = append(buf, atisOverflowMask|byte(left))
	}
	return buf, delta - n*atisCapacity
}

func appendCoordinates(buf []byte, x, y uint16) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, x)
	return binary.LittleEndian.AppendUint16(buf, y)
}

// appendSize writes a payload size as 7-bit groups, least significant group
// first, with the continuation flag in bit 0. An empty payload still gets a
// single zero byte so that decoders stay aligned.
func appendSize(buf []byte, size uint64) []byte {
	if size == 0 {
		return append(buf, 0)
	}
	for ; size > 0; size >>= 7 {
		group := byte(size&0b1111111) << 1
		if size>>7 > 0 {
			group |= 1
		}
		buf = append(buf, group)
	}
	return buf
}
