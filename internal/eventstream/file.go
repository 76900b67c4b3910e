package eventstream

import (
	"fmt"
	"os"
)

// OpenFile opens an Event Stream file for reading. The header is not read.
func OpenFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableFile, path, err)
	}
	return f, nil
}

// CreateFile creates or truncates an Event Stream file for writing.
func CreateFile(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnwritableFile, path, err)
	}
	return f, nil
}
