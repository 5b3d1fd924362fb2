package monitor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/internal/version"
	"github.com/HerbHall/uptimed/pkg/models"
)

// Compile-time interface guard.
var _ HTTPStrategy = (*HTTPProber)(nil)

// browserUserAgent is sent on GET so WAFs and CDNs treat the probe like a
// regular page view.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// setHeadHeaders sets the minimal header set used for HEAD.
func setHeadHeaders(h http.Header) {
	h.Set("User-Agent", "uptimed/"+version.Short())
	h.Set("Accept", "*/*")
}

// setGetHeaders sets the browser-like header set used for GET.
// Accept-Encoding identity keeps body lengths comparable to the configured
// minimums and disables transparent gzip in net/http.
func setGetHeaders(h http.Header) {
	h.Set("User-Agent", browserUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "identity")
	h.Set("Cache-Control", "no-cache")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Upgrade-Insecure-Requests", "1")
}

// HTTPTarget is everything one HTTP probe needs to know about a monitor.
type HTTPTarget struct {
	URL           string
	Timeout       time.Duration
	IgnoreHTTP403 bool
	Validation    models.ContentValidationConfig
}

// HTTPProber checks a URL with a HEAD request, falls back to GET, and
// revalidates suspected outages with a host-level ping.
type HTTPProber struct {
	client *http.Client
	pinger HostProber
	logger *zap.Logger
}

// NewHTTPProber creates an HTTP prober. Self-signed TLS certificates are
// accepted and redirects are followed up to the net/http default of ten.
// pinger may be nil, in which case suspected outages are reported offline
// without revalidation.
func NewHTTPProber(pinger HostProber, logger *zap.Logger) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true}, //nolint:gosec // G402: monitoring must work with self-signed certs
				DisableKeepAlives: true,
			},
		},
		pinger: pinger,
		logger: logger,
	}
}

type httpResponse struct {
	code    int
	body    []byte
	elapsed time.Duration
}

// Probe runs the HEAD/GET cascade against target. The returned error is only
// non-nil when the URL itself is unusable.
func (p *HTTPProber) Probe(ctx context.Context, target HTTPTarget) (Outcome, error) {
	rawURL, err := normalizeURL(target.URL)
	if err != nil {
		return Outcome{}, err
	}

	if !target.Validation.Enabled {
		resp, err := p.do(ctx, http.MethodHead, rawURL, target.Timeout, false)
		if err == nil && headHandled(resp.code) {
			return p.classify(ctx, target, rawURL, resp), nil
		}
		reason := "head_status"
		if err != nil {
			reason = "head_error"
		}
		fallbacksTotal.WithLabelValues(reason).Inc()
		p.logger.Debug("HEAD inconclusive, retrying with GET",
			zap.String("url", rawURL),
			zap.Int("status_code", resp.code),
			zap.Error(err),
		)
	}

	resp, err := p.do(ctx, http.MethodGet, rawURL, target.Timeout, target.Validation.Enabled)
	if err != nil {
		return p.transportFailure(ctx, target, rawURL, err), nil
	}
	return p.classify(ctx, target, rawURL, resp), nil
}

// headHandled reports whether a HEAD response is conclusive on its own.
func headHandled(code int) bool {
	return code < 500 && code != http.StatusMethodNotAllowed && code != http.StatusNotImplemented
}

func (p *HTTPProber) do(ctx context.Context, method, rawURL string, timeout time.Duration, readBody bool) (httpResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		return httpResponse{}, fmt.Errorf("build %s request: %w", method, err)
	}
	if method == http.MethodGet {
		setGetHeaders(req.Header)
	} else {
		setHeadHeaders(req.Header)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return httpResponse{elapsed: time.Since(start)}, err
	}
	defer resp.Body.Close()

	out := httpResponse{code: resp.StatusCode}
	if readBody {
		out.body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			out.elapsed = time.Since(start)
			return out, fmt.Errorf("read body: %w", err)
		}
	}
	out.elapsed = time.Since(start)
	return out, nil
}

func (p *HTTPProber) classify(ctx context.Context, target HTTPTarget, rawURL string, resp httpResponse) Outcome {
	out := online(resp.elapsed)
	out.StatusCode = resp.code

	switch code := resp.code; {
	case code >= 200 && code < 400:
		if target.Validation.Enabled {
			if msg := validateContent(resp.body, target.Validation); msg != "" {
				out.Status = models.CheckStatusWarning
				out.Error = msg
			}
		}
	case code == http.StatusForbidden && target.IgnoreHTTP403:
	case code >= 500:
		return p.serverError(ctx, target, rawURL, resp)
	default:
		out.Status = models.CheckStatusWarning
		out.Error = statusText(code)
	}
	return out
}

// serverError decides whether a 5xx means the host is down or only the
// application is failing.
func (p *HTTPProber) serverError(ctx context.Context, target HTTPTarget, rawURL string, resp httpResponse) Outcome {
	msg := statusText(resp.code)
	fallbacksTotal.WithLabelValues("server_error").Inc()

	ping, ok := p.revalidate(ctx, target, rawURL)
	if ok {
		out := online(resp.elapsed)
		out.StatusCode = resp.code
		out.Error = msg + " (host reachable)"
		return out
	}
	out := offline(joinErrors(msg, ping.Error))
	out.StatusCode = resp.code
	return out
}

func (p *HTTPProber) transportFailure(ctx context.Context, target HTTPTarget, rawURL string, err error) Outcome {
	// The caller gave up; this says nothing about the target.
	if cause := ctx.Err(); cause != nil {
		return offline(fmt.Sprintf("probe canceled: %v", cause))
	}
	kind := classifyError(err)
	msg := describeError(kind, err, target.Timeout)
	if kind == errKindOther {
		return offline(msg)
	}
	fallbacksTotal.WithLabelValues(string(kind)).Inc()

	ping, ok := p.revalidate(ctx, target, rawURL)
	if ok {
		out := ping
		out.Error = msg + " (host reachable)"
		return out
	}
	return offline(joinErrors(msg, ping.Error))
}

func (p *HTTPProber) revalidate(ctx context.Context, target HTTPTarget, rawURL string) (Outcome, bool) {
	if p.pinger == nil {
		return Outcome{}, false
	}
	out, err := p.pinger.Probe(ctx, rawURL, target.Timeout)
	if err != nil {
		return offline(err.Error()), false
	}
	p.logger.Debug("ping revalidation",
		zap.String("url", rawURL),
		zap.String("status", string(out.Status)),
	)
	return out, out.Status == models.CheckStatusOnline
}

type errKind string

const (
	errKindTimeout errKind = "timeout"
	errKindDNS     errKind = "dns"
	errKindRefused errKind = "refused"
	errKindReset   errKind = "reset"
	errKindOther   errKind = "other"
)

// classifyError buckets transport errors. Everything except errKindOther
// is worth a second opinion from ping.
func classifyError(err error) errKind {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return errKindDNS
	case errors.Is(err, context.DeadlineExceeded):
		return errKindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return errKindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return errKindRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return errKindReset
	}
	return errKindOther
}

func describeError(kind errKind, err error, timeout time.Duration) string {
	switch kind {
	case errKindTimeout:
		return fmt.Sprintf("request timed out after %s", timeout)
	case errKindDNS:
		return fmt.Sprintf("DNS lookup failed: %v", err)
	case errKindRefused:
		return "connection refused"
	case errKindReset:
		return "connection reset by peer"
	}
	return err.Error()
}

func statusText(code int) string {
	return fmt.Sprintf("HTTP %d %s", code, http.StatusText(code))
}

func joinErrors(primary, secondary string) string {
	if secondary == "" {
		return primary
	}
	return primary + "; " + secondary
}
