package sink

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/shovelmq/shovel/transfer"
)

const (
	DefaultKafkaBatchSize  = 100
	DefaultKafkaBatchBytes = 1 << 20 // 1MB
)

// KafkaConfig holds configuration for the Kafka fan-out destination
type KafkaConfig struct {
	Brokers          []string
	Topic            string
	BatchSize        int
	BatchBytes       int64
	RequiredAcks     kafka.RequiredAcks
	AutoCreateTopics bool
}

// DefaultKafkaConfig returns a KafkaConfig with sensible defaults
func DefaultKafkaConfig(brokers []string, topic string) KafkaConfig {
	return KafkaConfig{
		Brokers:          brokers,
		Topic:            topic,
		BatchSize:        DefaultKafkaBatchSize,
		BatchBytes:       DefaultKafkaBatchBytes,
		RequiredAcks:     kafka.RequireAll,
		AutoCreateTopics: true,
	}
}

// Kafka delivers records to a Kafka topic, typically as the secondary leg
// of a fan-out run.
type Kafka struct {
	writer *kafka.Writer
	topic  string
}

// NewKafka creates a Kafka destination with the given configuration
func NewKafka(config KafkaConfig) (*Kafka, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka destination requires at least one broker address")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka destination requires a topic")
	}

	if config.BatchSize == 0 {
		config.BatchSize = DefaultKafkaBatchSize
	}
	if config.BatchBytes == 0 {
		config.BatchBytes = DefaultKafkaBatchBytes
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{}, // Partition by key for consistent routing
		BatchSize:              config.BatchSize,
		BatchBytes:             config.BatchBytes,
		RequiredAcks:           config.RequiredAcks,
		Async:                  false, // Sync writes so the engine sees real outcomes
		AllowAutoTopicCreation: config.AutoCreateTopics,
	}

	return &Kafka{writer: writer, topic: config.Topic}, nil
}

func (k *Kafka) Name() string {
	return "kafka:" + k.topic
}

func (k *Kafka) Deliver(ctx context.Context, rec *transfer.Record) error {
	key := rec.Key
	if rec.CorrelationID != nil {
		key = *rec.CorrelationID
	}

	msg := kafka.Message{
		Topic: k.topic,
		Key:   []byte(key),
		Value: rec.Payload,
	}

	return k.writer.WriteMessages(ctx, msg)
}

// Close releases resources held by the writer
func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
