package source

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// PortOptions describes the serial line of a sensor that streams Event
// Stream bytes. Events are binary, so every frame carries 8 data bits.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

const (
	// DefaultBaudRate is used when PortOptions.BaudRate is zero.
	DefaultBaudRate = 115200
	// MinBaudRate is the slowest line accepted. Below it a sensor cannot
	// keep up with a few hundred DVS events per second.
	MinBaudRate = 9600
)

var parityModes = map[string]serial.Parity{
	"none": serial.NoParity,
	"even": serial.EvenParity,
	"odd":  serial.OddParity,
}

var parityAliases = map[string]string{"": "none", "n": "none", "e": "even", "o": "odd"}

// Normalize fills in the default baud rate and stop bits and rewrites the
// parity as "none", "even" or "odd".
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate == 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.BaudRate < MinBaudRate {
		return o, fmt.Errorf("baud rate %d is too slow for an event sensor (minimum %d)", o.BaudRate, MinBaudRate)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("sensor line needs 1 or 2 stop bits, got %d", o.StopBits)
	}

	parity := strings.ToLower(strings.TrimSpace(o.Parity))
	if alias, ok := parityAliases[parity]; ok {
		parity = alias
	}
	if _, ok := parityModes[parity]; !ok {
		return o, fmt.Errorf("sensor line parity %q is not one of none, even or odd", o.Parity)
	}
	o.Parity = parity
	return o, nil
}

// SerialMode converts the options into the mode go.bug.st/serial expects.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   parityModes[opts.Parity],
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode, nil
}

// openPort is replaced in tests to avoid real hardware.
var openPort = func(path string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(path, mode)
}

// OpenSerial opens the serial port at path for reading.
func OpenSerial(path string, opts PortOptions) (io.ReadCloser, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := openPort(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	logf("serial port %s open at %d baud", path, mode.BaudRate)
	return port, nil
}
