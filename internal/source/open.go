// Package source opens the byte channels an Event Stream can arrive on:
// files, TCP connections, serial ports and packet captures.
package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/banshee-data/eventstream/internal/config"
	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/monitoring"
)

var logf = monitoring.Tagged("source")

// pcapFile closes the capture file behind a PCAPReader.
type pcapFile struct {
	*PCAPReader
	f *os.File
}

func (p *pcapFile) Close() error { return p.f.Close() }

// Open returns a reader for uri. Supported forms:
//
//	path/to/file.es, file:///path/to/file.es
//	tcp://host:port
//	serial:///dev/ttyUSB0?baud=921600
//	pcap:///path/to/capture.pcap?port=2368
//
// File and PCAP sources are seekable and can be replayed in a loop. cfg
// supplies the baud rate and UDP port when the URI does not; nil uses
// the defaults.
func Open(ctx context.Context, uri string, cfg *config.ReplayConfig) (io.ReadCloser, error) {
	if cfg == nil {
		cfg = config.EmptyReplayConfig()
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid source %q: %w", uri, err)
	}
	query := u.Query()

	switch u.Scheme {
	case "":
		return openFile(uri)
	case "file":
		return openFile(u.Path)
	case "tcp":
		return DialTCP(ctx, u.Host)
	case "serial":
		baud, err := intParam(query, "baud", cfg.GetBaudRate())
		if err != nil {
			return nil, err
		}
		return OpenSerial(u.Path, PortOptions{BaudRate: baud, Parity: query.Get("parity")})
	case "pcap":
		port, err := intParam(query, "port", cfg.GetUDPPort())
		if err != nil {
			return nil, err
		}
		return OpenPCAP(u.Path, port)
	}
	return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
}

// OpenPCAP opens a capture file and returns a seekable reader over the UDP
// payloads sent to udpPort.
func OpenPCAP(path string, udpPort int) (io.ReadCloser, error) {
	f, err := eventstream.OpenFile(path)
	if err != nil {
		return nil, err
	}
	reader, err := NewPCAPReader(f, udpPort)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &pcapFile{PCAPReader: reader, f: f}, nil
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := eventstream.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func intParam(query url.Values, name string, fallback int) (int, error) {
	raw := query.Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}
