package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/pkg/models"
)

// Compile-time interface guard.
var _ HostProber = (*PingProber)(nil)

type ipFamily string

const (
	familyV4 ipFamily = "ip4"
	familyV6 ipFamily = "ip6"
)

// echoFunc sends one ICMP echo and returns its round-trip time.
type echoFunc func(ctx context.Context, host string, family ipFamily, timeout time.Duration) (time.Duration, error)

// connectFunc opens and closes a TCP connection, returning the connect time.
type connectFunc func(ctx context.Context, address string, timeout time.Duration) (time.Duration, error)

// PingProber decides host reachability with a fixed cascade: system ping
// over IPv4 then IPv6, in-process ICMP over IPv4 then IPv6, and finally a
// TCP connect to the target's port. The first success wins.
type PingProber struct {
	system  echoFunc
	library echoFunc
	connect connectFunc
	logger  *zap.Logger
}

// NewPingProber creates a ping prober backed by the system ping binary,
// pro-bing and net.Dialer.
func NewPingProber(logger *zap.Logger) *PingProber {
	return &PingProber{
		system:  systemPing,
		library: libraryPing,
		connect: tcpConnect,
		logger:  logger,
	}
}

// Probe runs the reachability cascade against target, which may be a URL,
// host:port or a bare host.
func (p *PingProber) Probe(ctx context.Context, target string, timeout time.Duration) (Outcome, error) {
	host, err := ExtractHost(target)
	if err != nil {
		return Outcome{}, fmt.Errorf("ping target: %w", err)
	}

	steps := []struct {
		name   string
		echo   echoFunc
		family ipFamily
	}{
		{"system", p.system, familyV4},
		{"system", p.system, familyV6},
		{"icmp", p.library, familyV4},
		{"icmp", p.library, familyV6},
	}

	perAttempt := echoTimeout(timeout)
	failures := make([]string, 0, len(steps))
	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}
		rtt, err := step.echo(ctx, host, step.family, perAttempt)
		if err == nil {
			return online(rtt), nil
		}
		failures = append(failures, fmt.Sprintf("%s %s: %v", step.name, step.family, err))
		p.logger.Debug("ping attempt failed",
			zap.String("host", host),
			zap.String("method", step.name),
			zap.String("family", string(step.family)),
			zap.Error(err),
		)
	}

	address := net.JoinHostPort(host, DefaultPort(target))
	fallbacksTotal.WithLabelValues("tcp_connect").Inc()
	elapsed, err := p.connect(ctx, address, timeout)
	if err == nil {
		return online(elapsed), nil
	}

	return Outcome{
		Status: models.CheckStatusOffline,
		Error: fmt.Sprintf("host %s unreachable: %s; tcp %s: %v",
			host, strings.Join(failures, "; "), address, err),
	}, nil
}

// echoTimeout derives the per-attempt ICMP wait from the monitor timeout.
func echoTimeout(timeout time.Duration) time.Duration {
	d := timeout / 2
	return min(max(d, time.Second), 10*time.Second)
}

var (
	rttPattern     = regexp.MustCompile(`time[=<]\s*([0-9.]+)\s*ms`)
	summaryPattern = regexp.MustCompile(`rtt [^=]*= ([0-9.]+)/([0-9.]+)/`)
)

// systemPing shells out to the platform ping binary for a single echo.
func systemPing(ctx context.Context, host string, family ipFamily, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	start := time.Now()
	out, err := exec.CommandContext(ctx, "ping", pingArgs(runtime.GOOS, host, family, timeout)...).CombinedOutput()
	elapsed := time.Since(start)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, fmt.Errorf("ping exited with code %d", exitErr.ExitCode())
		}
		return 0, fmt.Errorf("run ping: %w", err)
	}

	if rtt, ok := parseRTT(string(out)); ok {
		return rtt, nil
	}
	return elapsed, nil
}

func pingArgs(goos, host string, family ipFamily, timeout time.Duration) []string {
	flag := "-4"
	if family == familyV6 {
		flag = "-6"
	}
	switch goos {
	case "windows":
		return []string{flag, "-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), host}
	case "darwin":
		// macOS ping takes -W in milliseconds and has no -4/-6 on older releases;
		// -t bounds the whole run in seconds.
		secs := strconv.Itoa(max(int(timeout.Seconds()), 1))
		return []string{"-c", "1", "-t", secs, host}
	default:
		secs := strconv.Itoa(max(int(timeout.Seconds()), 1))
		return []string{flag, "-n", "-c", "1", "-W", secs, host}
	}
}

// parseRTT extracts the round-trip time from ping output.
func parseRTT(output string) (time.Duration, bool) {
	var raw string
	if m := rttPattern.FindStringSubmatch(output); m != nil {
		raw = m[1]
	} else if m := summaryPattern.FindStringSubmatch(output); m != nil {
		raw = m[2]
	} else {
		return 0, false
	}
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

// libraryPing sends one echo with pro-bing, restricted to the given family.
func libraryPing(ctx context.Context, host string, family ipFamily, timeout time.Duration) (time.Duration, error) {
	pinger := probing.New(host)
	pinger.SetNetwork(string(family))
	if err := pinger.Resolve(); err != nil {
		return 0, fmt.Errorf("resolve %s: %w", host, err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case err := <-done:
		if err != nil {
			return 0, fmt.Errorf("icmp echo: %w", err)
		}
	case <-ctx.Done():
		pinger.Stop()
		return 0, ctx.Err()
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("no reply within %s", timeout)
	}
	return stats.AvgRtt, nil
}
