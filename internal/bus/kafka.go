package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// KafkaBus implements the publish side of EventBus using a Kafka
// SyncProducer. Verdict and alert events are fanned out to downstream
// consumers (case management, SIEM); Kestrel itself never consumes, so
// Subscribe is not supported on this variant.
type KafkaBus struct {
	producer sarama.SyncProducer
	brokers  []string
}

// NewKafkaBus creates a publish-only Kafka event bus.
func NewKafkaBus(cfg domain.EventBusConfig) (*KafkaBus, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaBus{producer: producer, brokers: cfg.KafkaBrokers}, nil
}

// Publish sends a message to a Kafka topic.
func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: kafkaTopic(topic),
		Key:   sarama.StringEncoder(msg.ID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to kafka: %w", err)
	}
	return nil
}

// Subscribe is not supported on the publish-only Kafka bus.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nil, fmt.Errorf("kafka bus is publish-only")
}

// Ping checks producer liveness by refreshing broker metadata.
func (b *KafkaBus) Ping(ctx context.Context) error {
	client, err := sarama.NewClient(b.brokers, sarama.NewConfig())
	if err != nil {
		return fmt.Errorf("kafka not reachable: %w", err)
	}
	defer client.Close()
	return client.RefreshMetadata()
}

// Close closes the Kafka producer.
func (b *KafkaBus) Close() error {
	return b.producer.Close()
}

// kafkaTopic converts subject-style names to Kafka topic names.
func kafkaTopic(topic string) string {
	out := make([]byte, len(topic))
	for i := 0; i < len(topic); i++ {
		if topic[i] == '.' {
			out[i] = '-'
		} else {
			out[i] = topic[i]
		}
	}
	return string(out)
}
