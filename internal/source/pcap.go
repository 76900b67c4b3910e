package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PCAPReader exposes the UDP payloads of a packet capture as one byte
// stream, so that an Event Stream recorded off the network can be decoded
// like a file.
type PCAPReader struct {
	src     io.Reader
	reader  *pcapgo.Reader
	udpPort int
	pending []byte

	packets uint64
	bytes   uint64
}

// NewPCAPReader reads the capture header from r. Only UDP packets whose
// destination port is udpPort are kept; 0 keeps every UDP packet.
func NewPCAPReader(r io.Reader, udpPort int) (*PCAPReader, error) {
	p := &PCAPReader{src: r, udpPort: udpPort}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PCAPReader) open() error {
	reader, err := pcapgo.NewReader(p.src)
	if err != nil {
		return fmt.Errorf("failed to read PCAP header: %w", err)
	}
	p.reader = reader
	p.pending = nil
	return nil
}

// Read implements io.Reader over the concatenated payloads.
func (p *PCAPReader) Read(b []byte) (int, error) {
	for len(p.pending) == 0 {
		payload, err := p.nextPayload()
		if err != nil {
			return 0, err
		}
		p.pending = payload
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *PCAPReader) nextPayload() ([]byte, error) {
	for {
		data, _, err := p.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read PCAP packet: %w", err)
		}
		packet := gopacket.NewPacket(data, p.reader.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if p.udpPort != 0 && int(udp.DstPort) != p.udpPort {
			continue
		}
		p.packets++
		p.bytes += uint64(len(udp.Payload))
		return udp.Payload, nil
	}
}

// Seek rewinds to the first packet. Only Seek(0, io.SeekStart) on a
// seekable capture is supported.
func (p *PCAPReader) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || whence != io.SeekStart {
		return 0, errors.New("pcap: only rewinding to the start is supported")
	}
	seeker, ok := p.src.(io.Seeker)
	if !ok {
		return 0, errors.New("pcap: capture is not seekable")
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return 0, p.open()
}

// Packets returns the number of matching packets read so far.
func (p *PCAPReader) Packets() uint64 { return p.packets }

// Bytes returns the number of payload bytes read so far.
func (p *PCAPReader) Bytes() uint64 { return p.bytes }
