package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/internal/monitor"
	"github.com/HerbHall/uptimed/pkg/models"
)

// probeResult is what `uptimed probe` prints for tcp-connect, which has no Check.
type probeResult struct {
	Target       string             `json:"target"`
	Status       models.CheckStatus `json:"status"`
	ResponseTime *int64             `json:"response_time"`
	Error        string             `json:"error,omitempty"`
}

// runProbe executes one probe and prints it as JSON. Exit status is 0 when
// the target is online, 2 otherwise.
func runProbe(args []string) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	typ := fs.String("type", "http", "probe type: http, ping, tcp or tcp-connect")
	timeout := fs.Duration("timeout", 30*time.Second, "probe timeout")
	validate := fs.Bool("validate-content", false, "fail pages with too little content")
	ignore403 := fs.Bool("ignore-403", false, "treat HTTP 403 as online")
	verbose := fs.Bool("v", false, "log probe steps to stderr")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: uptimed probe [flags] <target>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	target := fs.Arg(0)

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+15*time.Second)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *typ == "tcp-connect" {
		out, err := monitor.TCPProber{}.Probe(ctx, target, *timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "probe: %v\n", err)
			return 1
		}
		_ = enc.Encode(probeResult{Target: target, Status: out.Status, ResponseTime: out.ResponseTime, Error: out.Error})
		return exitCode(out.Status)
	}

	cv := monitor.DefaultConfig().ContentValidation
	cv.Enabled = *validate
	pinger := monitor.NewPingProber(logger.Named("ping"))
	orch := monitor.NewOrchestrator(monitor.NewHTTPProber(pinger, logger.Named("http")), pinger, cv, logger)

	m := models.Monitor{
		ID:            "cli",
		Name:          target,
		URL:           target,
		Type:          models.MonitorType(*typ),
		Interval:      models.MinInterval,
		Timeout:       timeout.Milliseconds(),
		Active:        true,
		IgnoreHTTP403: *ignore403,
	}
	if err := m.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "probe: %v\n", err)
		return 1
	}

	check := orch.Run(ctx, m)
	_ = enc.Encode(check)
	return exitCode(check.Status)
}

func exitCode(s models.CheckStatus) int {
	if s == models.CheckStatusOnline {
		return 0
	}
	return 2
}
