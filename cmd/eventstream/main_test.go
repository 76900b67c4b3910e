package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eventstream/internal/eventstream"
	"github.com/banshee-data/eventstream/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

var testEvents = []eventstream.DvsEvent{
	{T: 0, X: 1, Y: 1, IsIncrease: true},
	{T: 100, X: 2, Y: 3, IsIncrease: false},
	{T: 200, X: 4, Y: 5, IsIncrease: true},
	{T: 20000, X: 0, Y: 0, IsIncrease: true},
}

// writeRecording encodes testEvents into a 16x16 DVS file and returns its path.
func writeRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.es")
	f, err := eventstream.CreateFile(path)
	require.NoError(t, err)
	defer f.Close()
	enc, err := eventstream.NewEncoder(f, eventstream.Header{Kind: eventstream.KindDvs, Width: 16, Height: 16})
	require.NoError(t, err)
	for _, ev := range testEvents {
		require.NoError(t, enc.Write(ev))
	}
	return path
}

// readRecording decodes every event of the file at path.
func readRecording(t *testing.T, path string) (eventstream.Header, []eventstream.Event) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	r := bytes.NewReader(data)
	h, err := eventstream.ReadHeader(r)
	require.NoError(t, err)
	dec, err := eventstream.NewDecoder(h)
	require.NoError(t, err)
	rest := data[h.Size():]
	var events []eventstream.Event
	require.NoError(t, dec.Decode(rest, func(ev eventstream.Event) error {
		events = append(events, ev)
		return nil
	}))
	return h, events
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestInfo(t *testing.T) {
	path := writeRecording(t)

	out, err := runCommand(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "kind:      dvs")
	assert.Contains(t, out, "size:      16x16")
	assert.Contains(t, out, "events:    4")
	assert.Contains(t, out, "polarity:  3 increases, 1 decreases")
}

func TestInfoJSON(t *testing.T) {
	path := writeRecording(t)

	out, err := runCommand(t, "info", "-json", path)
	require.NoError(t, err)
	var summary struct {
		Events uint64
		FirstT uint64
		LastT  uint64
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, uint64(4), summary.Events)
	assert.Equal(t, uint64(0), summary.FirstT)
	assert.Equal(t, uint64(20000), summary.LastT)
}

func TestInfoCatalog(t *testing.T) {
	path := writeRecording(t)
	db := filepath.Join(t.TempDir(), "catalog.db")

	out, err := runCommand(t, "info", "-catalog", db, path)
	require.NoError(t, err)
	require.Contains(t, out, "catalogued as ")
	id := strings.TrimSpace(out[strings.LastIndex(out, "catalogued as ")+len("catalogued as "):])

	out, err = runCommand(t, "catalog", "-db", db, "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, path)

	out, err = runCommand(t, "catalog", "-db", db, "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "events:    4")
	assert.Contains(t, out, "size:      16x16")

	out, err = runCommand(t, "catalog", "-db", db, "schema")
	require.NoError(t, err)
	assert.Equal(t, "schema version 2 (dirty=false)\n", out)

	_, err = runCommand(t, "catalog", "-db", db, "frobnicate")
	assert.ErrorIs(t, err, errCatalogUsage)
}

func TestCatalogServeStopsWithContext(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catalog.db")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := run(ctx, []string{"catalog", "-db", db, "-listen", "127.0.0.1:0", "serve"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "serving catalog on http://127.0.0.1:0/api/recordings")
}

func TestConvert(t *testing.T) {
	path := writeRecording(t)
	outPath := filepath.Join(t.TempDir(), "copy.es")

	out, err := runCommand(t, "convert", "-kind", "dvs", path, outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 4 dvs events")

	h, events := readRecording(t, outPath)
	assert.Equal(t, eventstream.Header{Version: eventstream.CurrentVersion, Kind: eventstream.KindDvs, Width: 16, Height: 16}, h)
	want := make([]eventstream.Event, len(testEvents))
	for i, ev := range testEvents {
		want[i] = ev
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("converted events mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertRejectsOtherKind(t *testing.T) {
	path := writeRecording(t)
	_, err := runCommand(t, "convert", "-kind", "atis", path, filepath.Join(t.TempDir(), "x.es"))
	assert.ErrorIs(t, err, eventstream.ErrUnsupportedEventType)
}

func TestReplay(t *testing.T) {
	path := writeRecording(t)
	outPath := filepath.Join(t.TempDir(), "replayed.es")

	out, err := runCommand(t, "replay", "-mode", "fast", "-print", "-out", outPath, path)
	require.NoError(t, err)
	assert.Contains(t, out, "t=100 x=2 y=3 increase=false")
	assert.Contains(t, out, "replayed 4 events (4 delivered, 0 dropped, 0 restarts)")

	_, events := readRecording(t, outPath)
	assert.Len(t, events, 4)
}

func TestReplayBuffered(t *testing.T) {
	path := writeRecording(t)

	out, err := runCommand(t, "replay", "-mode", "fast", "-buffer", "-print", path)
	require.NoError(t, err)
	assert.Contains(t, out, "t=20000 x=0 y=0 increase=true")
	assert.Contains(t, out, "replayed 4 events (4 delivered, 0 dropped, 0 restarts)")
}

func TestReplaySplit(t *testing.T) {
	path := writeRecording(t)

	out, err := runCommand(t, "replay", "-mode", "fast", "-split", path)
	require.NoError(t, err)
	assert.Contains(t, out, "split: 3 increases, 1 decreases")
}

func TestReplaySplitAtis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atis.es")
	f, err := eventstream.CreateFile(path)
	require.NoError(t, err)
	enc, err := eventstream.NewEncoder(f, eventstream.Header{Kind: eventstream.KindAtis, Width: 16, Height: 16})
	require.NoError(t, err)
	for _, ev := range []eventstream.AtisEvent{
		{T: 0, X: 1, Y: 1, Polarity: true},
		{T: 10, X: 1, Y: 1, IsThresholdCrossing: true},
		{T: 20, X: 1, Y: 1, IsThresholdCrossing: true, Polarity: true},
	} {
		require.NoError(t, enc.Write(ev))
	}
	require.NoError(t, f.Close())

	out, err := runCommand(t, "replay", "-mode", "fast", "-buffer", "-split", path)
	require.NoError(t, err)
	assert.Contains(t, out, "split: 1 change detections, 2 threshold crossings")
}

func TestReplaySplitRejectsGeneric(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generic.es")
	f, err := eventstream.CreateFile(path)
	require.NoError(t, err)
	enc, err := eventstream.NewEncoder(f, eventstream.Header{Kind: eventstream.KindGeneric})
	require.NoError(t, err)
	require.NoError(t, enc.Write(eventstream.GenericEvent{T: 5, Bytes: []byte{1, 2}}))
	require.NoError(t, f.Close())

	_, err = runCommand(t, "replay", "-mode", "fast", "-split", path)
	assert.ErrorIs(t, err, errSplitKind)
}

func TestReplayConfigFile(t *testing.T) {
	path := writeRecording(t)
	cfgPath := filepath.Join(t.TempDir(), "replay.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"dispatch_mode": "fast", "chunk_size": 3}`), 0o644))

	out, err := runCommand(t, "replay", "-config", cfgPath, path)
	require.NoError(t, err)
	assert.Contains(t, out, "replayed 4 events")
}

func TestReplayLoopWithOutput(t *testing.T) {
	path := writeRecording(t)
	_, err := runCommand(t, "replay", "-loop", "-out", filepath.Join(t.TempDir(), "x.es"), path)
	assert.ErrorIs(t, err, errLoopWithOutput)
}

func TestReplayCancelled(t *testing.T) {
	path := writeRecording(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := run(ctx, []string{"replay", "-mode", "fast", "-loop", path}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "replayed ")
}

// idleSensor serves the header and first event of testEvents to one TCP
// client, then keeps the connection open without sending anything more.
func idleSensor(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	enc, err := eventstream.NewEncoder(&buf, eventstream.Header{Kind: eventstream.KindDvs, Width: 16, Height: 16})
	require.NoError(t, err)
	require.NoError(t, enc.Write(testEvents[0]))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write(buf.Bytes())
		io.Copy(io.Discard, conn)
	}()
	return "tcp://" + ln.Addr().String()
}

func TestCancelWhileLiveSourceIsIdle(t *testing.T) {
	for _, command := range []string{"replay", "info", "packetize"} {
		t.Run(command, func(t *testing.T) {
			uri := idleSensor(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			time.AfterFunc(200*time.Millisecond, cancel)

			done := make(chan error, 1)
			go func() {
				var out bytes.Buffer
				done <- run(ctx, []string{command, uri}, &out)
			}()
			select {
			case err := <-done:
				if command == "replay" {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, context.Canceled)
				}
			case <-time.After(3 * time.Second):
				t.Fatalf("%s still blocked after the context was cancelled", command)
			}
		})
	}
}

func TestPacketize(t *testing.T) {
	path := writeRecording(t)

	out, err := runCommand(t, "packetize", path)
	require.NoError(t, err)
	var ends []uint64
	require.NoError(t, json.Unmarshal([]byte(out), &ends))
	assert.Equal(t, []uint64{200, 20000}, ends)
}

func TestChart(t *testing.T) {
	path := writeRecording(t)
	dir := t.TempDir()
	html := filepath.Join(dir, "rate.html")
	png := filepath.Join(dir, "intervals.png")

	_, err := runCommand(t, "chart", "-html", html, "-png", png, "-bin", "1ms", path)
	require.NoError(t, err)
	for _, p := range []string{html, png} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.NotZero(t, info.Size(), p)
	}

	_, err = runCommand(t, "chart", path)
	assert.ErrorIs(t, err, errNoChartOutput)
}

func TestCommandErrors(t *testing.T) {
	_, err := runCommand(t, "frobnicate")
	assert.EqualError(t, err, "unknown command: frobnicate")

	_, err = runCommand(t, "info")
	assert.ErrorIs(t, err, errMissingSource)

	_, err = runCommand(t, "info", filepath.Join(t.TempDir(), "missing.es"))
	assert.ErrorIs(t, err, eventstream.ErrUnreadableFile)

	_, err = runCommand(t, "convert", "only-one-arg")
	assert.ErrorIs(t, err, errMissingOutput)
}

func TestVersionAndHelp(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "eventstream "))

	out, err = runCommand(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "Commands:")
}
