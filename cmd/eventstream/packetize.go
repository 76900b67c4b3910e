package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/banshee-data/eventstream/internal/analysis"
	"github.com/banshee-data/eventstream/internal/config"
)

func handlePacketize(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("packetize", stdout)
	detailed := fs.Bool("packets", false, "Print every packet instead of only its last timestamp")
	udpPort := fs.Int("port", 0, "UDP destination port for pcap sources (0 for any)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.DefaultReplayConfig()
	cfg.UDPPort = udpPort
	r, _, err := openSource(ctx, fs, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	packets, err := analysis.Packetize(ctx, r)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if *detailed {
		enc.SetIndent("", "  ")
		if packets == nil {
			packets = []analysis.Packet{}
		}
		return enc.Encode(packets)
	}
	ends := make([]uint64, len(packets))
	for i, packet := range packets {
		ends[i] = packet.LastT
	}
	return enc.Encode(ends)
}
