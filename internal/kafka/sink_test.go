package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/HerbHall/uptimed/internal/config"
	"github.com/HerbHall/uptimed/internal/event"
	"github.com/HerbHall/uptimed/internal/monitor"
	"github.com/HerbHall/uptimed/internal/testutil"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func checkEvent() *monitor.CheckEvent {
	m := testutil.NewMonitor(testutil.WithName("shop"))
	return &monitor.CheckEvent{Monitor: m, Check: testutil.NewCheck(m.ID, testutil.WithStatusCode(200))}
}

func TestSink_PublishKeysByMonitor(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, time.Second, zap.NewNop())
	ce := checkEvent()

	if err := s.Publish(context.Background(), ce); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != ce.Monitor.ID {
		t.Errorf("Key = %q, want monitor ID %q", msg.Key, ce.Monitor.ID)
	}
	if !msg.Time.Equal(ce.Check.CheckedAt) {
		t.Errorf("Time = %v, want %v", msg.Time, ce.Check.CheckedAt)
	}

	var decoded monitor.CheckEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if decoded.Check.ID != ce.Check.ID || decoded.Monitor.Name != "shop" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestSink_AttachForwardsBusEvents(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, time.Second, zap.NewNop())
	bus := event.NewBus(zap.NewNop())
	s.Attach(bus)

	ce := checkEvent()
	_ = bus.Publish(context.Background(), event.Event{Topic: monitor.TopicCheckCompleted, Payload: ce})
	_ = bus.Publish(context.Background(), event.Event{Topic: monitor.TopicCheckCompleted, Payload: "ignored"})

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
	_ = bus.Publish(context.Background(), event.Event{Topic: monitor.TopicCheckCompleted, Payload: ce})
	if len(w.msgs) != 1 {
		t.Errorf("messages after Close = %d, want 1", len(w.msgs))
	}
}

func TestSink_WriteFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	w := &fakeWriter{err: errors.New("broker unavailable")}
	s := newSink(w, time.Second, zap.New(core))

	s.handle(context.Background(), event.Event{Topic: monitor.TopicCheckCompleted, Payload: checkEvent()})

	entries := logs.FilterMessage("failed to publish check to kafka").All()
	if len(entries) != 1 {
		t.Fatalf("warn entries = %d, want 1", len(entries))
	}
	if _, ok := entries[0].ContextMap()["monitor_id"]; !ok {
		t.Error("log entry missing monitor_id")
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		wantErr bool
	}{
		{"disabled needs nothing", map[string]any{"enabled": false, "brokers": []string{}}, false},
		{"enabled with brokers", map[string]any{"enabled": true, "brokers": []string{"k1:9092"}, "topic": "t"}, false},
		{"enabled without brokers", map[string]any{"enabled": true, "topic": "t"}, true},
		{"enabled without topic", map[string]any{"enabled": true, "brokers": []string{"k1:9092"}, "topic": ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			cfg, err := LoadConfig(config.New(v))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.WriteTimeout <= 0 {
				t.Errorf("WriteTimeout = %v, want positive default", cfg.WriteTimeout)
			}
		})
	}
}

func TestLoadConfig_Nil(t *testing.T) {
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig(nil): %v", err)
	}
	if cfg.Enabled || cfg.Topic != "uptimed.checks" {
		t.Errorf("LoadConfig(nil) = %+v", cfg)
	}
}
