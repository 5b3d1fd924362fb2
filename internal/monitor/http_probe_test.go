package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/internal/version"
	"github.com/HerbHall/uptimed/pkg/models"
)

type fakePinger struct {
	out   Outcome
	err   error
	calls atomic.Int32
}

func (f *fakePinger) Probe(_ context.Context, _ string, _ time.Duration) (Outcome, error) {
	f.calls.Add(1)
	return f.out, f.err
}

func reachable(ms int64) *fakePinger {
	return &fakePinger{out: Outcome{Status: models.CheckStatusOnline, ResponseTime: &ms}}
}

func unreachable() *fakePinger {
	return &fakePinger{out: Outcome{Status: models.CheckStatusOffline, Error: "host unreachable"}}
}

func target(url string) HTTPTarget {
	return HTTPTarget{URL: url, Timeout: 5 * time.Second}
}

func statusServer(t *testing.T, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProber_StatusBands(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		ignore403  bool
		wantStatus models.CheckStatus
		wantErr    string
	}{
		{"ok", http.StatusOK, false, models.CheckStatusOnline, ""},
		{"no content", http.StatusNoContent, false, models.CheckStatusOnline, ""},
		{"not found", http.StatusNotFound, false, models.CheckStatusWarning, "HTTP 404 Not Found"},
		{"forbidden", http.StatusForbidden, false, models.CheckStatusWarning, "HTTP 403 Forbidden"},
		{"forbidden ignored", http.StatusForbidden, true, models.CheckStatusOnline, ""},
		{"unauthorized", http.StatusUnauthorized, true, models.CheckStatusWarning, "HTTP 401 Unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := statusServer(t, tt.code)
			pinger := reachable(5)
			p := NewHTTPProber(pinger, zap.NewNop())

			tgt := target(srv.URL)
			tgt.IgnoreHTTP403 = tt.ignore403
			out, err := p.Probe(context.Background(), tgt)
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if out.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", out.Status, tt.wantStatus)
			}
			if out.Error != tt.wantErr {
				t.Errorf("Error = %q, want %q", out.Error, tt.wantErr)
			}
			if out.StatusCode != tt.code {
				t.Errorf("StatusCode = %d, want %d", out.StatusCode, tt.code)
			}
			if out.ResponseTime == nil {
				t.Error("ResponseTime is nil")
			}
			if pinger.calls.Load() != 0 {
				t.Errorf("ping called %d times for a %d response", pinger.calls.Load(), tt.code)
			}
		})
	}
}

func TestHTTPProber_HeadRejectedFallsBackToGet(t *testing.T) {
	var (
		heads, gets atomic.Int32
		mu          sync.Mutex
		headers     = map[string]http.Header{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers[r.Method] = r.Header.Clone()
		mu.Unlock()
		if r.Method == http.MethodHead {
			heads.Add(1)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gets.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProber(nil, zap.NewNop())
	out, err := p.Probe(context.Background(), target(srv.URL))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if out.Status != models.CheckStatusOnline || out.StatusCode != http.StatusOK {
		t.Errorf("outcome = %+v, want online 200", out)
	}
	if heads.Load() != 1 || gets.Load() != 1 {
		t.Errorf("HEAD=%d GET=%d, want 1 and 1", heads.Load(), gets.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	head := headers[http.MethodHead]
	if got, want := head.Get("User-Agent"), "uptimed/"+version.Short(); got != want {
		t.Errorf("HEAD User-Agent = %q, want %q", got, want)
	}
	if got := head.Get("Accept"); got != "*/*" {
		t.Errorf("HEAD Accept = %q, want */*", got)
	}
	if got := head.Get("Sec-Fetch-Mode"); got != "" {
		t.Errorf("HEAD Sec-Fetch-Mode = %q, want unset", got)
	}

	get := headers[http.MethodGet]
	wantGet := map[string]string{
		"User-Agent":                browserUserAgent,
		"Accept-Encoding":           "identity",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
	}
	for name, want := range wantGet {
		if got := get.Get(name); got != want {
			t.Errorf("GET %s = %q, want %q", name, got, want)
		}
	}
	if !strings.HasPrefix(get.Get("Accept"), "text/html") {
		t.Errorf("GET Accept = %q, want text/html first", get.Get("Accept"))
	}
	if get.Get("Accept-Language") == "" {
		t.Error("GET sent without Accept-Language")
	}
}

func TestHTTPProber_CallerCancelIsNotATimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pinger := reachable(5)
	p := NewHTTPProber(pinger, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out, err := p.Probe(ctx, target(srv.URL))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if strings.Contains(out.Error, "timed out after") {
		t.Errorf("Error = %q, want no per-request timeout message", out.Error)
	}
	if !strings.Contains(out.Error, "canceled") {
		t.Errorf("Error = %q, want cancellation noted", out.Error)
	}
	if pinger.calls.Load() != 0 {
		t.Errorf("ping calls = %d, want 0 after the caller gave up", pinger.calls.Load())
	}
}

func TestHTTPProber_ContentValidationOnlyDemotes(t *testing.T) {
	richPage := "<html><body><h1>Welcome</h1><p>" + strings.Repeat("Plenty of visible words here. ", 10) + "</p></body></html>"
	scriptPage := "<html><head><script>" + strings.Repeat("var app = {};", 20) + "</script></head><body><div id=\"root\">Hi</div></body></html>"
	validation := models.ContentValidationConfig{Enabled: true, MinContentLength: 100, MinTextLength: 20}

	tests := []struct {
		name      string
		code      int
		body      string
		ignore403 bool
		pinger    *fakePinger
		wantOff   models.CheckStatus
		wantOn    models.CheckStatus
		wantOnErr string
	}{
		{"rich page", http.StatusOK, richPage, false, nil, models.CheckStatusOnline, models.CheckStatusOnline, ""},
		{"short body", http.StatusOK, strings.Repeat("x", 40), false, nil, models.CheckStatusOnline, models.CheckStatusWarning, "insufficient content"},
		{"script shell", http.StatusOK, scriptPage, false, nil, models.CheckStatusOnline, models.CheckStatusWarning, "insufficient text content: 2 visible characters"},
		{"not found", http.StatusNotFound, richPage, false, nil, models.CheckStatusWarning, models.CheckStatusWarning, "HTTP 404"},
		{"forbidden ignored", http.StatusForbidden, "", true, nil, models.CheckStatusOnline, models.CheckStatusOnline, ""},
		{"server error host up", http.StatusBadGateway, "", false, reachable(4), models.CheckStatusOnline, models.CheckStatusOnline, "HTTP 502"},
		{"server error host down", http.StatusBadGateway, "", false, unreachable(), models.CheckStatusOffline, models.CheckStatusOffline, "HTTP 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				if r.Method == http.MethodGet {
					_, _ = io.WriteString(w, tt.body)
				}
			}))
			defer srv.Close()

			var pinger HostProber
			if tt.pinger != nil {
				pinger = tt.pinger
			}
			p := NewHTTPProber(pinger, zap.NewNop())

			tgt := target(srv.URL)
			tgt.IgnoreHTTP403 = tt.ignore403
			off, err := p.Probe(context.Background(), tgt)
			if err != nil {
				t.Fatalf("Probe() without validation error = %v", err)
			}
			tgt.Validation = validation
			on, err := p.Probe(context.Background(), tgt)
			if err != nil {
				t.Fatalf("Probe() with validation error = %v", err)
			}

			if off.Status != tt.wantOff {
				t.Errorf("without validation Status = %q, want %q", off.Status, tt.wantOff)
			}
			if on.Status != tt.wantOn {
				t.Errorf("with validation Status = %q, want %q", on.Status, tt.wantOn)
			}
			if on.Status != off.Status && (off.Status != models.CheckStatusOnline || on.Status != models.CheckStatusWarning) {
				t.Errorf("validation moved %q to %q; only online to warning is allowed", off.Status, on.Status)
			}
			if !strings.Contains(on.Error, tt.wantOnErr) {
				t.Errorf("with validation Error = %q, want it to contain %q", on.Error, tt.wantOnErr)
			}
			if on.StatusCode != tt.code {
				t.Errorf("StatusCode = %d, want %d", on.StatusCode, tt.code)
			}
		})
	}
}

func TestHTTPProber_ContentValidationSkipsHead(t *testing.T) {
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		}
		_, _ = w.Write([]byte(strings.Repeat("x", 40)))
	}))
	defer srv.Close()

	p := NewHTTPProber(nil, zap.NewNop())
	tgt := target(srv.URL)
	tgt.Validation = models.ContentValidationConfig{Enabled: true, MinContentLength: 100, MinTextLength: 20}

	out, err := p.Probe(context.Background(), tgt)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if heads.Load() != 0 {
		t.Errorf("HEAD sent %d times with content validation enabled", heads.Load())
	}
	if out.Status != models.CheckStatusWarning {
		t.Errorf("Status = %q, want warning", out.Status)
	}
	if out.Error != "insufficient content: received 40 bytes, minimum 100" {
		t.Errorf("Error = %q", out.Error)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", out.StatusCode)
	}
}

func TestHTTPProber_ServerErrorRevalidates(t *testing.T) {
	t.Run("host reachable", func(t *testing.T) {
		srv := statusServer(t, http.StatusServiceUnavailable)
		pinger := reachable(3)
		p := NewHTTPProber(pinger, zap.NewNop())

		out, err := p.Probe(context.Background(), target(srv.URL))
		if err != nil {
			t.Fatalf("Probe() error = %v", err)
		}
		if out.Status != models.CheckStatusOnline {
			t.Errorf("Status = %q, want online", out.Status)
		}
		if out.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("StatusCode = %d, want 503", out.StatusCode)
		}
		if !strings.Contains(out.Error, "HTTP 503") {
			t.Errorf("Error = %q, want it to mention HTTP 503", out.Error)
		}
		if pinger.calls.Load() != 1 {
			t.Errorf("ping calls = %d, want 1", pinger.calls.Load())
		}
	})

	t.Run("host unreachable", func(t *testing.T) {
		srv := statusServer(t, http.StatusInternalServerError)
		p := NewHTTPProber(unreachable(), zap.NewNop())

		out, err := p.Probe(context.Background(), target(srv.URL))
		if err != nil {
			t.Fatalf("Probe() error = %v", err)
		}
		if out.Status != models.CheckStatusOffline {
			t.Errorf("Status = %q, want offline", out.Status)
		}
		if out.StatusCode != http.StatusInternalServerError {
			t.Errorf("StatusCode = %d, want 500", out.StatusCode)
		}
		if !strings.Contains(out.Error, "host unreachable") {
			t.Errorf("Error = %q, want ping failure included", out.Error)
		}
	})

	t.Run("no pinger", func(t *testing.T) {
		srv := statusServer(t, http.StatusBadGateway)
		p := NewHTTPProber(nil, zap.NewNop())

		out, _ := p.Probe(context.Background(), target(srv.URL))
		if out.Status != models.CheckStatusOffline {
			t.Errorf("Status = %q, want offline", out.Status)
		}
	})
}

func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestHTTPProber_ConnectionRefused(t *testing.T) {
	t.Run("ping rescues", func(t *testing.T) {
		pinger := reachable(12)
		p := NewHTTPProber(pinger, zap.NewNop())

		out, err := p.Probe(context.Background(), target(closedURL(t)))
		if err != nil {
			t.Fatalf("Probe() error = %v", err)
		}
		if out.Status != models.CheckStatusOnline {
			t.Fatalf("Status = %q, want online", out.Status)
		}
		if out.ResponseTime == nil || *out.ResponseTime != 12 {
			t.Errorf("ResponseTime = %v, want ping latency 12", out.ResponseTime)
		}
		if out.StatusCode != 0 {
			t.Errorf("StatusCode = %d, want 0 with no response", out.StatusCode)
		}
		if !strings.Contains(out.Error, "connection refused") {
			t.Errorf("Error = %q, want refusal noted", out.Error)
		}
	})

	t.Run("ping fails", func(t *testing.T) {
		p := NewHTTPProber(unreachable(), zap.NewNop())

		out, _ := p.Probe(context.Background(), target(closedURL(t)))
		if out.Status != models.CheckStatusOffline {
			t.Errorf("Status = %q, want offline", out.Status)
		}
		if out.ResponseTime != nil {
			t.Errorf("ResponseTime = %v, want nil", *out.ResponseTime)
		}
	})
}

func TestHTTPProber_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	pinger := unreachable()
	p := NewHTTPProber(pinger, zap.NewNop())
	tgt := target(srv.URL)
	tgt.Timeout = 100 * time.Millisecond

	out, err := p.Probe(context.Background(), tgt)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if out.Status != models.CheckStatusOffline {
		t.Errorf("Status = %q, want offline", out.Status)
	}
	if !strings.Contains(out.Error, "timed out") {
		t.Errorf("Error = %q, want timeout message", out.Error)
	}
	if pinger.calls.Load() != 1 {
		t.Errorf("ping calls = %d, want 1", pinger.calls.Load())
	}
}

func TestHTTPProber_FollowsRedirects(t *testing.T) {
	final := statusServer(t, http.StatusOK)
	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusMovedPermanently)
	}))
	defer redirect.Close()

	p := NewHTTPProber(nil, zap.NewNop())
	out, err := p.Probe(context.Background(), target(redirect.URL))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if out.Status != models.CheckStatusOnline || out.StatusCode != http.StatusOK {
		t.Errorf("outcome = %+v, want online 200 after redirect", out)
	}
}

func TestHTTPProber_InvalidURL(t *testing.T) {
	p := NewHTTPProber(nil, zap.NewNop())
	if _, err := p.Probe(context.Background(), target("ftp://example.com")); err == nil {
		t.Error("Probe() error = nil, want error for unsupported scheme")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errKind
	}{
		{"deadline", context.DeadlineExceeded, errKindTimeout},
		{"wrapped deadline", fmt.Errorf("head: %w", context.DeadlineExceeded), errKindTimeout},
		{"eof", fmt.Errorf("read response: %w", io.EOF), errKindReset},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), errKindRefused},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, errKindDNS},
		{"other", errors.New("tls: handshake failure"), errKindOther},
	}

	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("%s: classifyError() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
