package eventstream

import "errors"

var (
	// ErrUnreadableFile is returned when an input file cannot be opened for reading.
	ErrUnreadableFile = errors.New("file could not be opened for reading")

	// ErrUnwritableFile is returned when an output file cannot be opened for writing.
	ErrUnwritableFile = errors.New("file could not be opened for writing")

	// ErrWrongSignature is returned when a stream does not start with the Event Stream signature.
	ErrWrongSignature = errors.New("the stream does not have the expected signature")

	// ErrUnsupportedVersion is returned when the header declares an incompatible version.
	ErrUnsupportedVersion = errors.New("the stream uses an unsupported version")

	// ErrIncompleteHeader is returned when the input ends while the header is being read.
	ErrIncompleteHeader = errors.New("the stream has an incomplete header")

	// ErrUnsupportedEventType is returned for unknown kind codes and for
	// events whose kind does not match the stream header.
	ErrUnsupportedEventType = errors.New("the stream uses an unsupported event type")

	// ErrCoordinatesOverflow is returned when an event lies outside the header-provided bounds.
	ErrCoordinatesOverflow = errors.New("an event has coordinates outside the header-provided range")

	// ErrMonotonicityViolation is returned by the encoder when an event's
	// timestamp is smaller than the previous one's.
	ErrMonotonicityViolation = errors.New("the event's timestamp is smaller than the previous one's")

	// ErrEndOfFile marks the end of an input stream. It is the expected
	// terminal condition of a finite replay.
	ErrEndOfFile = errors.New("end of file reached")
)
