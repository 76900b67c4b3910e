package analysis

import (
	"context"
	"io"

	"github.com/banshee-data/eventstream/internal/eventstream"
)

const (
	// MaxPacketEvents is the largest number of events in one packet.
	MaxPacketEvents = 5000
	// MaxPacketSpanUs bounds the time between a packet's first event and
	// any later event in it.
	MaxPacketSpanUs = 10000
)

// Packet is a group of consecutive DVS events.
type Packet struct {
	FirstT    uint64
	LastT     uint64
	Events    int
	Increases int
}

// Packetizer groups DVS events into packets of at most MaxPacketEvents
// events spanning less than MaxPacketSpanUs.
type Packetizer struct {
	packets []Packet
}

// Add appends ev to the current packet or opens a new one.
func (p *Packetizer) Add(ev eventstream.DvsEvent) {
	n := len(p.packets)
	if n == 0 || p.packets[n-1].Events >= MaxPacketEvents || ev.T >= p.packets[n-1].FirstT+MaxPacketSpanUs {
		p.packets = append(p.packets, Packet{FirstT: ev.T})
		n++
	}
	current := &p.packets[n-1]
	current.LastT = ev.T
	current.Events++
	if ev.IsIncrease {
		current.Increases++
	}
}

// Packets returns the packets formed so far.
func (p *Packetizer) Packets() []Packet {
	return p.packets
}

// Ends returns the last timestamp of every packet.
func (p *Packetizer) Ends() []uint64 {
	ends := make([]uint64, len(p.packets))
	for i, packet := range p.packets {
		ends[i] = packet.LastT
	}
	return ends
}

// Packetize decodes a DVS stream and returns its packets.
func Packetize(ctx context.Context, r io.Reader) ([]Packet, error) {
	var p Packetizer
	dvs := eventstream.KindDvs
	_, err := drain(ctx, r, &dvs, func(ev eventstream.Event) error {
		p.Add(ev.(eventstream.DvsEvent))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Packets(), nil
}
