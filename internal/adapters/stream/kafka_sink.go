package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink is the broker-backed alternative to the Redis stream sink for
// deployments that already run the mesh event bus on Kafka. Event types map
// to topics; unmapped types publish to the default topic.
type KafkaSink struct {
	writer       *kafka.Writer
	defaultTopic string
	topicByEvent map[string]string
}

func NewKafkaSink(brokers []string, defaultTopic string, topicByEvent map[string]string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if defaultTopic == "" {
		return nil, fmt.Errorf("kafka sink requires a default topic")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		defaultTopic: defaultTopic,
		topicByEvent: topicByEvent,
	}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	topic := s.defaultTopic
	if mapped, ok := s.topicByEvent[eventType]; ok && mapped != "" {
		topic = mapped
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
