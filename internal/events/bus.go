// Package events implements the notification/delivery sink boundary:
// a write-only channel the engine publishes structured retention events
// to. Delivery mechanics (email, in-app) belong to downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/retainly/pkg/models"
)

// Event topics
const (
	TopicHealthScores     = "retention.health.scores"
	TopicChurnPredictions = "retention.churn.predictions"
	TopicExpansionSignals = "retention.expansion.signals"
	TopicPlaybookActions  = "retention.playbook.actions"
	TopicAlerts           = "retention.alerts"
)

// Sink is the publish-only event bus the engine writes to
type Sink interface {
	Publish(ctx context.Context, topic string, event models.RetentionEvent) error
	Ping(ctx context.Context) error
	Close() error
}

// KafkaSink implements Sink using Kafka
type KafkaSink struct {
	brokers  []string
	producer *kafka.Writer
}

// KafkaSinkConfig represents Kafka sink configuration
type KafkaSinkConfig struct {
	Brokers      []string      `json:"brokers"`
	ClientID     string        `json:"client_id"`
	BatchSize    int           `json:"batch_size"`
	BatchTimeout time.Duration `json:"batch_timeout"`
}

// DefaultKafkaSinkConfig returns default Kafka sink configuration
func DefaultKafkaSinkConfig() KafkaSinkConfig {
	return KafkaSinkConfig{
		Brokers:      []string{"localhost:9092"},
		ClientID:     "retainly-events",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaSink creates a new Kafka-backed sink
func NewKafkaSink(config KafkaSinkConfig) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	producer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		Compression:  kafka.Gzip,
	}

	return &KafkaSink{
		brokers:  config.Brokers,
		producer: producer,
	}, nil
}

// Publish publishes a single retention event. Messages are keyed by
// tenant so per-tenant ordering is preserved within a topic.
func (s *KafkaSink) Publish(ctx context.Context, topic string, event models.RetentionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(event.TenantID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(string(event.Type))},
			{Key: "severity", Value: []byte(string(event.Severity))},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
		Time: time.Now(),
	}

	return s.producer.WriteMessages(ctx, message)
}

// Ping checks Kafka connectivity
func (s *KafkaSink) Ping(ctx context.Context) error {
	conn, err := kafka.Dial("tcp", s.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	_, err = conn.Controller()
	return err
}

// Close closes the sink
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// LogSink is a Sink that writes events to the process log. It backs
// development mode and tests where no broker is available.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Publish(ctx context.Context, topic string, event models.RetentionEvent) error {
	log.Printf("event %s on %s for tenant %s: %s", event.Type, topic, event.TenantID, event.Description)
	return nil
}

func (s *LogSink) Ping(ctx context.Context) error { return nil }

func (s *LogSink) Close() error { return nil }
