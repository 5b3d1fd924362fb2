package monitor

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ExtractHost returns the bare hostname or IP of a URL or host[:port] target.
func ExtractHost(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty target")
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("invalid url %q: %w", target, err)
		}
		if u.Hostname() == "" {
			return "", fmt.Errorf("url %q has no host", target)
		}
		return u.Hostname(), nil
	}

	if i := strings.IndexAny(target, "/?#"); i >= 0 {
		target = target[:i]
	}
	if host, _, err := net.SplitHostPort(target); err == nil {
		target = host
	}
	target = strings.TrimSuffix(strings.TrimPrefix(target, "["), "]")
	if target == "" {
		return "", fmt.Errorf("target has no host")
	}
	return target, nil
}

// DefaultPort returns the TCP port used when ICMP is unavailable: an explicit
// port in the target wins, then 80 for http: URLs and 443 for everything else.
func DefaultPort(target string) string {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "://") {
		if u, err := url.Parse(target); err == nil && u.Port() != "" {
			return u.Port()
		}
	} else {
		hostPort := target
		if i := strings.IndexAny(hostPort, "/?#"); i >= 0 {
			hostPort = hostPort[:i]
		}
		if _, port, err := net.SplitHostPort(hostPort); err == nil && port != "" {
			return port
		}
	}
	if strings.HasPrefix(strings.ToLower(target), "http:") {
		return "80"
	}
	return "443"
}

// normalizeURL prefixes scheme-less targets with http://.
func normalizeURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", target)
	}
	return u.String(), nil
}
