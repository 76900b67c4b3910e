package dispatch

import "fmt"

// Mode selects how a session paces event delivery.
type Mode int

const (
	// SynchronouslySkipOffset replays in real time, measured from the
	// first event's timestamp.
	SynchronouslySkipOffset Mode = iota
	// Synchronously replays in real time, measured from timestamp zero.
	Synchronously
	// AsFastAsPossible delivers events without waiting.
	AsFastAsPossible
)

var modeNames = map[Mode]string{
	SynchronouslySkipOffset: "skip-offset",
	Synchronously:           "synchronous",
	AsFastAsPossible:        "fast",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a name printed by Mode.String. The empty string
// selects SynchronouslySkipOffset.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return SynchronouslySkipOffset, nil
	}
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown dispatch mode %q (want skip-offset, synchronous or fast)", s)
}
