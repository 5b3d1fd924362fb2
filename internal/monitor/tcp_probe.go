package monitor

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Compile-time interface guard.
var _ HostProber = (*TCPProber)(nil)

// TCPProber tests TCP connectivity and measures the connect time.
type TCPProber struct{}

// Probe connects to target. Bare targets must be host:port; URLs use their
// explicit port or the scheme default.
func (TCPProber) Probe(ctx context.Context, target string, timeout time.Duration) (Outcome, error) {
	address, err := tcpAddress(target)
	if err != nil {
		return Outcome{}, err
	}
	elapsed, err := tcpConnect(ctx, address, timeout)
	if err != nil {
		return offline(fmt.Sprintf("tcp %s: %v", address, err)), nil
	}
	return online(elapsed), nil
}

func tcpAddress(target string) (string, error) {
	if strings.Contains(target, "://") {
		host, err := ExtractHost(target)
		if err != nil {
			return "", err
		}
		return net.JoinHostPort(host, DefaultPort(target)), nil
	}
	if _, _, err := net.SplitHostPort(target); err != nil {
		return "", fmt.Errorf("invalid target %q: %w", target, err)
	}
	return target, nil
}

func tcpConnect(ctx context.Context, address string, timeout time.Duration) (time.Duration, error) {
	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", address)
	elapsed := time.Since(start)
	if err != nil {
		return 0, err
	}
	conn.Close()
	return elapsed, nil
}
