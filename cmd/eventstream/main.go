// Command eventstream inspects, converts and replays Event Stream recordings.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/eventstream/internal/version"
)

func main() {
	flag.Usage = func() { printUsage(os.Stdout) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args(), os.Stdout); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

// errUnknownCommand is returned for an unrecognised subcommand.
type errUnknownCommand string

func (e errUnknownCommand) Error() string { return fmt.Sprintf("unknown command: %s", string(e)) }

func run(ctx context.Context, args []string, stdout io.Writer) error {
	command, rest := args[0], args[1:]
	switch command {
	case "info":
		return handleInfo(ctx, rest, stdout)
	case "replay":
		return handleReplay(ctx, rest, stdout)
	case "convert":
		return handleConvert(ctx, rest, stdout)
	case "packetize":
		return handlePacketize(ctx, rest, stdout)
	case "chart":
		return handleChart(ctx, rest, stdout)
	case "catalog":
		return handleCatalog(ctx, rest, stdout)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help":
		printUsage(stdout)
		return nil
	}
	printUsage(stdout)
	return errUnknownCommand(command)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `eventstream - Event Stream inspection and replay

Usage: eventstream <command> [options] <source>

Commands:
  info       Print the header and statistics of a recording
  replay     Replay a recording at its original pace
  convert    Decode a source and write it to an .es file
  packetize  Print the last timestamp of each 5000-event/10ms packet (DVS)
  chart      Render the event rate (HTML) and interval histogram (PNG)
  catalog    List, show or serve recordings stored by "info -catalog"
  version    Show build information
  help       Show this help message

Sources:
  path/to/file.es, file:///path/to/file.es
  tcp://host:port
  serial:///dev/ttyUSB0?baud=921600
  pcap:///path/to/capture.pcap?port=2368

Examples:
  eventstream info -catalog recordings.db recordings/driving.es
  eventstream replay -mode synchronous -speed 2 -print recordings/driving.es
  eventstream replay -mode fast -split recordings/driving.es
  eventstream replay -config config/replay.defaults.json -loop tcp://camera:7000
  eventstream convert pcap:///tmp/capture.pcap?port=2368 recovered.es
  eventstream chart -html rate.html -png intervals.png recordings/driving.es
`)
}
