package monitor

import (
	"context"
	"time"

	"github.com/HerbHall/uptimed/pkg/models"
)

// Outcome is the normalized result every probe strategy returns.
// StatusCode is zero when no HTTP response was received.
type Outcome struct {
	Status       models.CheckStatus
	ResponseTime *int64 // milliseconds
	Error        string
	StatusCode   int
}

// HostProber tests reachability of a bare host or URL. Expected network
// failures are reported through Outcome; the error is reserved for targets
// that cannot be interpreted at all.
type HostProber interface {
	Probe(ctx context.Context, target string, timeout time.Duration) (Outcome, error)
}

// HTTPStrategy probes a URL with the HEAD/GET cascade.
type HTTPStrategy interface {
	Probe(ctx context.Context, target HTTPTarget) (Outcome, error)
}

func millis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}

func online(latency time.Duration) Outcome {
	return Outcome{Status: models.CheckStatusOnline, ResponseTime: millis(latency)}
}

func offline(msg string) Outcome {
	return Outcome{Status: models.CheckStatusOffline, Error: msg}
}
