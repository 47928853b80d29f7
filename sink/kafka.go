package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vespa-engine/metrics-emitter/metrics"
)

// kafkaWriter is the subset of kafka.Writer used by the sink.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each batch as a single message on a topic. The message
// value is the JSON array of points, the key is the namespace.
type KafkaSink struct {
	writer kafkaWriter
}

// NewKafkaSink creates a Kafka sink writing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("Kafka topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaSink{writer: writer}, nil
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

// PublishBatch writes the batch as one message and waits for the broker ack.
func (s *KafkaSink) PublishBatch(ctx context.Context, batch []metrics.Point, namespace string) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal metric batch: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(namespace),
		Value: payload,
		Time:  time.Now(),
	}

	if err := s.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write metric batch: %w", err)
	}

	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

var _ Sink = (*KafkaSink)(nil)
