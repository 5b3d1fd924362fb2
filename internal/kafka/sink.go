// Package kafka streams completed checks to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/HerbHall/uptimed/internal/config"
	"github.com/HerbHall/uptimed/internal/event"
	"github.com/HerbHall/uptimed/internal/monitor"
)

var sinkMessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "uptimed_kafka_messages_total",
		Help: "Check events written to Kafka, by result.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(sinkMessagesTotal)
}

// Config holds the sink configuration ("kafka" subtree).
type Config struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoadConfig reads the sink configuration. Brokers and topic are required
// only when the sink is enabled.
func LoadConfig(cfg config.Config) (Config, error) {
	out := Config{Topic: "uptimed.checks", WriteTimeout: 10 * time.Second}
	if cfg != nil {
		if err := cfg.Unmarshal(&out); err != nil {
			return Config{}, fmt.Errorf("unmarshal kafka config: %w", err)
		}
	}
	if !out.Enabled {
		return out, nil
	}
	if len(out.Brokers) == 0 {
		return Config{}, errors.New("kafka.brokers must not be empty when kafka is enabled")
	}
	if out.Topic == "" {
		return Config{}, errors.New("kafka.topic must not be empty when kafka is enabled")
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	return out, nil
}

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Compile-time interface guard.
var _ messageWriter = (*kafka.Writer)(nil)

// Sink writes each CheckEvent as JSON keyed by monitor ID, so all checks of
// one monitor land on the same partition in order.
type Sink struct {
	writer      messageWriter
	timeout     time.Duration
	logger      *zap.Logger
	unsubscribe func()
}

// NewSink creates a sink writing to cfg.Topic on cfg.Brokers.
func NewSink(cfg Config, logger *zap.Logger) *Sink {
	return newSink(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}, cfg.WriteTimeout, logger)
}

func newSink(w messageWriter, timeout time.Duration, logger *zap.Logger) *Sink {
	return &Sink{writer: w, timeout: timeout, logger: logger}
}

// Attach subscribes the sink to completed-check events on bus.
func (s *Sink) Attach(bus event.Subscriber) {
	s.unsubscribe = bus.Subscribe(monitor.TopicCheckCompleted, s.handle)
}

func (s *Sink) handle(ctx context.Context, e event.Event) {
	ce, ok := e.Payload.(*monitor.CheckEvent)
	if !ok {
		return
	}
	if err := s.Publish(ctx, ce); err != nil {
		s.logger.Warn("failed to publish check to kafka",
			zap.String("monitor_id", ce.Monitor.ID),
			zap.String("check_id", ce.Check.ID),
			zap.Error(err),
		)
	}
}

// Publish writes one event, bounded by the configured write timeout.
func (s *Sink) Publish(ctx context.Context, ce *monitor.CheckEvent) error {
	payload, err := json.Marshal(ce)
	if err != nil {
		sinkMessagesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal check event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ce.Monitor.ID),
		Value: payload,
		Time:  ce.Check.CheckedAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "status", Value: []byte(ce.Check.Status)},
		},
	})
	if err != nil {
		sinkMessagesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("write kafka message: %w", err)
	}
	sinkMessagesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close detaches from the bus and flushes the writer.
func (s *Sink) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	return s.writer.Close()
}
