// Package eventstream implements the Event Stream binary format: a fixed
// header followed by delta-timestamp encoded events of one kind.
//
// STREAM LAYOUT:
//
//	├── Signature  12 bytes  "Event Stream"
//	├── Version     3 bytes  major, minor, patch (currently 2.0.0)
//	├── Kind        1 byte   0 generic, 1 dvs, 2 atis, 4 color
//	├── Size        4 bytes  width, height as little-endian uint16 (absent for generic)
//	└── Events      variable, see the per-kind layouts in decoder.go
//
// A reader accepts any stream whose major version equals the implemented
// major and whose minor version is at least the implemented minor.
package eventstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Signature opens every Event Stream.
const Signature = "Event Stream"

// CurrentVersion is the implemented Event Stream version.
var CurrentVersion = Version{Major: 2, Minor: 0, Patch: 0}

// Version holds the major, minor and patch numbers of a stream.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// String renders the version as major.minor.patch.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compatible reports whether a stream written with v can be read by this
// implementation.
func (v Version) Compatible() bool {
	return v.Major == CurrentVersion.Major && v.Minor >= CurrentVersion.Minor
}

// Kind identifies the event type carried by a stream.
type Kind uint8

const (
	KindGeneric Kind = 0
	KindDvs     Kind = 1
	KindAtis    Kind = 2
	KindColor   Kind = 4
)

// Valid reports whether k is one of the four known kind codes.
func (k Kind) Valid() bool {
	switch k {
	case KindGeneric, KindDvs, KindAtis, KindColor:
		return true
	}
	return false
}

// Spatial reports whether events of this kind carry x and y coordinates.
func (k Kind) Spatial() bool {
	return k != KindGeneric
}

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindDvs:
		return "dvs"
	case KindAtis:
		return "atis"
	case KindColor:
		return "color"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind converts a kind name as printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindGeneric, KindDvs, KindAtis, KindColor} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedEventType, s)
}

// Header bundles a stream's meta-information.
type Header struct {
	Version Version
	Kind    Kind
	// Width is at least one more than the largest x coordinate in the stream.
	Width uint16
	// Height is at least one more than the largest y coordinate in the stream.
	Height uint16
}

const (
	versionSize = 3
	kindSize    = 1
	sizeFields  = 4
)

// Size returns the number of bytes the header occupies on the wire.
func (h Header) Size() int {
	n := len(Signature) + versionSize + kindSize
	if h.Kind.Spatial() {
		n += sizeFields
	}
	return n
}

// ReadHeader checks the header at the start of r and returns its fields.
// Exactly Size() bytes are consumed on success.
func ReadHeader(r io.Reader) (Header, error) {
	signature := make([]byte, len(Signature))
	if _, err := io.ReadFull(r, signature); err != nil {
		if isShortRead(err) {
			return Header{}, ErrWrongSignature
		}
		return Header{}, fmt.Errorf("read signature: %w", err)
	}
	if string(signature) != Signature {
		return Header{}, ErrWrongSignature
	}

	var fixed [versionSize + kindSize]byte
	if _, err := io.ReadFull(r, fixed[:versionSize]); err != nil {
		return Header{}, headerReadError(err)
	}
	header := Header{Version: Version{Major: fixed[0], Minor: fixed[1], Patch: fixed[2]}}
	if !header.Version.Compatible() {
		return Header{}, fmt.Errorf("%w: %s (implemented %s)", ErrUnsupportedVersion, header.Version, CurrentVersion)
	}

	if _, err := io.ReadFull(r, fixed[versionSize:]); err != nil {
		return Header{}, headerReadError(err)
	}
	header.Kind = Kind(fixed[versionSize])
	if !header.Kind.Valid() {
		return Header{}, fmt.Errorf("%w: code %d", ErrUnsupportedEventType, fixed[versionSize])
	}

	if header.Kind.Spatial() {
		var size [sizeFields]byte
		if _, err := io.ReadFull(r, size[:]); err != nil {
			return Header{}, headerReadError(err)
		}
		header.Width = binary.LittleEndian.Uint16(size[0:2])
		header.Height = binary.LittleEndian.Uint16(size[2:4])
	}
	return header, nil
}

// WriteHeader writes the header for h to w. The implemented version is
// always written regardless of h.Version. Width and height are omitted for
// generic streams.
func WriteHeader(w io.Writer, h Header) error {
	if !h.Kind.Valid() {
		return fmt.Errorf("%w: code %d", ErrUnsupportedEventType, uint8(h.Kind))
	}
	buf := make([]byte, 0, h.Size())
	buf = append(buf, Signature...)
	buf = append(buf, CurrentVersion.Major, CurrentVersion.Minor, CurrentVersion.Patch, byte(h.Kind))
	if h.Kind.Spatial() {
		buf = binary.LittleEndian.AppendUint16(buf, h.Width)
		buf = binary.LittleEndian.AppendUint16(buf, h.Height)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func headerReadError(err error) error {
	if isShortRead(err) {
		return ErrIncompleteHeader
	}
	return fmt.Errorf("read header: %w", err)
}
