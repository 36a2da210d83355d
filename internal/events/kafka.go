package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/workloadinsights/backend/internal/observability"
)

// KafkaPublisher writes events as JSON, keyed by activity id so that all
// changes of one activity land on the same partition. Writes are async so a
// slow broker never holds up an API request.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			Async:                  true,
			Completion: func(messages []kafka.Message, err error) {
				if err == nil {
					return
				}
				observability.EventPublishFailures.WithLabelValues("kafka").Add(float64(len(messages)))
				logger.Warn("kafka delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			},
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	msg, err := kafkaMessage(evt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// kafkaMessage falls back to the event id as key for events that are not
// about a single activity.
func kafkaMessage(evt Event) (kafka.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, err
	}
	key := evt.ActivityID
	if key == "" {
		key = evt.ID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}, nil
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
