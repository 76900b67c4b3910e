package source

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/eventstream/internal/config"
	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func testStream(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := eventstream.NewEncoder(&buf, eventstream.Header{Kind: eventstream.KindDvs, Width: 8, Height: 8})
	require.NoError(t, err)
	for i := uint64(0); i < 20; i++ {
		require.NoError(t, enc.Write(eventstream.DvsEvent{T: i * 1000, X: uint16(i % 8), Y: 3, IsIncrease: i%3 == 0}))
	}
	return buf.Bytes()
}

func countEvents(t *testing.T, r io.Reader) int {
	t.Helper()
	h, err := eventstream.ReadHeader(r)
	require.NoError(t, err)
	dec, err := eventstream.NewDecoder(h)
	require.NoError(t, err)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	n := 0
	require.NoError(t, dec.Decode(rest, func(eventstream.Event) error {
		n++
		return nil
	}))
	return n
}

// udpFrame serializes payload as an Ethernet/IPv4/UDP frame.
func udpFrame(t *testing.T, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 201),
		DstIP:    net.IPv4(192, 168, 1, 10),
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

// writeCapture splits stream into packets sent to port, interleaved with
// noise sent to another port.
func writeCapture(t *testing.T, w io.Writer, stream []byte, port uint16) {
	t.Helper()
	pw := pcapgo.NewWriter(w)
	require.NoError(t, pw.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	write := func(frame []byte) {
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(frame), Length: len(frame)}
		require.NoError(t, pw.WritePacket(ci, frame))
		ts = ts.Add(time.Millisecond)
	}
	for len(stream) > 0 {
		n := min(len(stream), 17)
		write(udpFrame(t, port, stream[:n]))
		write(udpFrame(t, port+1, []byte("noise")))
		stream = stream[n:]
	}
}

func TestPCAPReaderFiltersPort(t *testing.T) {
	stream := testStream(t)
	var capture bytes.Buffer
	writeCapture(t, &capture, stream, 2368)

	r, err := NewPCAPReader(bytes.NewReader(capture.Bytes()), 2368)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, stream, got)
	assert.Equal(t, uint64(len(stream)), r.Bytes())
	assert.Equal(t, uint64((len(stream)+16)/17), r.Packets())

	// Port 0 keeps the noise packets too.
	all, err := NewPCAPReader(bytes.NewReader(capture.Bytes()), 0)
	require.NoError(t, err)
	got, err = io.ReadAll(all)
	require.NoError(t, err)
	assert.Greater(t, len(got), len(stream))
}

func TestPCAPReaderSeek(t *testing.T) {
	stream := testStream(t)
	var capture bytes.Buffer
	writeCapture(t, &capture, stream, 2368)

	r, err := NewPCAPReader(bytes.NewReader(capture.Bytes()), 2368)
	require.NoError(t, err)
	assert.Equal(t, 20, countEvents(t, r))

	_, err = r.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, 20, countEvents(t, r))

	_, err = r.Seek(5, io.SeekStart)
	assert.Error(t, err)

	unseekable, err := NewPCAPReader(struct{ io.Reader }{bytes.NewReader(capture.Bytes())}, 2368)
	require.NoError(t, err)
	_, err = unseekable.Seek(0, io.SeekStart)
	assert.Error(t, err)
}

func TestNewPCAPReaderRejectsGarbage(t *testing.T) {
	_, err := NewPCAPReader(bytes.NewReader([]byte("definitely not a capture file")), 0)
	assert.Error(t, err)
}

func TestDialTCP(t *testing.T) {
	stream := testStream(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write(stream)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Open(ctx, "tcp://"+ln.Addr().String(), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, 20, countEvents(t, conn))
}

func TestDialTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = DialTCP(context.Background(), addr)
	assert.Error(t, err)
}

func TestOpenFileSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.es")
	require.NoError(t, os.WriteFile(path, testStream(t), 0o644))

	for _, uri := range []string{path, "file://" + path} {
		r, err := Open(context.Background(), uri, nil)
		require.NoError(t, err, uri)
		assert.Equal(t, 20, countEvents(t, r), uri)
		_, seekable := r.(io.Seeker)
		assert.True(t, seekable, uri)
		r.Close()
	}

	_, err := Open(context.Background(), filepath.Join(dir, "missing.es"), nil)
	assert.ErrorIs(t, err, eventstream.ErrUnreadableFile)
}

func TestOpenPCAPSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	writeCapture(t, f, testStream(t), 2368)
	require.NoError(t, f.Close())

	r, err := Open(context.Background(), "pcap://"+path+"?port=2368", nil)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 20, countEvents(t, r))

	// The port can come from configuration instead.
	port := 2368
	r2, err := Open(context.Background(), "pcap://"+path, &config.ReplayConfig{UDPPort: &port})
	require.NoError(t, err)
	defer r2.Close()
	assert.Equal(t, 20, countEvents(t, r2))

	_, err = Open(context.Background(), "pcap://"+path+"?port=abc", nil)
	assert.Error(t, err)
}

func TestOpenSerialSource(t *testing.T) {
	stream := testStream(t)
	var gotPath string
	var gotMode *serial.Mode
	orig := openPort
	defer func() { openPort = orig }()
	openPort = func(path string, mode *serial.Mode) (io.ReadCloser, error) {
		gotPath, gotMode = path, mode
		return io.NopCloser(bytes.NewReader(stream)), nil
	}

	r, err := Open(context.Background(), "serial:///dev/ttyUSB0?baud=921600&parity=even", nil)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 20, countEvents(t, r))
	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, 921600, gotMode.BaudRate)
	assert.Equal(t, serial.EvenParity, gotMode.Parity)

	_, err = Open(context.Background(), "serial:///dev/ttyUSB0", nil)
	require.NoError(t, err)
	assert.Equal(t, 115200, gotMode.BaudRate)
}

func TestOpenUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "ftp://example.com/rec.es", nil)
	assert.Error(t, err)
}

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"defaults", PortOptions{}, PortOptions{BaudRate: 115200, StopBits: 1, Parity: "none"}, false},
		{"odd", PortOptions{BaudRate: 9600, StopBits: 2, Parity: " ODD "}, PortOptions{BaudRate: 9600, StopBits: 2, Parity: "odd"}, false},
		{"short alias", PortOptions{BaudRate: 921600, Parity: "e"}, PortOptions{BaudRate: 921600, StopBits: 1, Parity: "even"}, false},
		{"too slow", PortOptions{BaudRate: 300}, PortOptions{}, true},
		{"negative baud", PortOptions{BaudRate: -1}, PortOptions{}, true},
		{"stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 57600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)

	_, err = PortOptions{BaudRate: 1200}.SerialMode()
	assert.Error(t, err)
}
