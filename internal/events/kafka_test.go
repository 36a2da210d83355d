package events

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKafkaMessageKeyedByActivity(t *testing.T) {
	evt := Event{
		ID:         "evt-1",
		Type:       ActivityAssigned,
		ActivityID: "act-9",
		ActorID:    "user-2",
		At:         time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	msg, err := kafkaMessage(evt)
	require.NoError(t, err)

	assert.Equal(t, "act-9", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, ActivityAssigned, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, evt.ActivityID, decoded.ActivityID)
	assert.Equal(t, evt.ActorID, decoded.ActorID)
	assert.True(t, evt.At.Equal(decoded.At))
}

func TestKafkaMessageFallsBackToEventID(t *testing.T) {
	msg, err := kafkaMessage(New(UserChanged, "", "user-2"))
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.NotEmpty(t, decoded.ID)
	assert.Equal(t, decoded.ID, string(msg.Key))
	assert.Equal(t, UserChanged, string(msg.Headers[0].Value))
	assert.NotContains(t, string(msg.Value), "activity_id")
}

func TestNewKafkaPublisherWriter(t *testing.T) {
	p := NewKafkaPublisher([]string{"kafka-1:9092", "kafka-2:9092"}, "workload.activity-changes", zap.NewNop())
	assert.Equal(t, "kafka", p.Name())
	assert.Equal(t, "workload.activity-changes", p.writer.Topic)
	assert.Equal(t, "kafka-1:9092,kafka-2:9092", p.writer.Addr.String())
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
	assert.True(t, p.writer.Async)
	require.NoError(t, p.Close())

	err := p.Publish(context.Background(), New(ActivityCreated, "act-1", "user-1"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
