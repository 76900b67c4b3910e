package source

import (
	"context"
	"fmt"
	"net"
	"time"
)

// dialTimeout bounds connection establishment when ctx has no deadline.
const dialTimeout = 10 * time.Second

// DialTCP connects to a sensor or relay serving Event Stream bytes over TCP.
func DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	logf("connected to %s", conn.RemoteAddr())
	return conn, nil
}
