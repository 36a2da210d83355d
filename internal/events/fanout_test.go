package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingPublisher struct {
	name string
	err  error
	got  []Event
}

func (r *recordingPublisher) Publish(_ context.Context, evt Event) error {
	r.got = append(r.got, evt)
	return r.err
}

func (r *recordingPublisher) Name() string { return r.name }

func TestFanoutContinuesAfterFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	failing := &recordingPublisher{name: "broken", err: errors.New("broker down")}
	ok := &recordingPublisher{name: "ok"}
	f := NewFanout(zap.New(core), failing, ok)

	evt := New(ActivityCreated, "act-1", "user-1")
	require.NoError(t, f.Publish(context.Background(), evt))

	assert.Len(t, failing.got, 1)
	require.Len(t, ok.got, 1)
	assert.Equal(t, evt, ok.got[0])
	assert.Equal(t, 1, logs.FilterMessage("event publish failed").Len())
}

func TestNewEvent(t *testing.T) {
	evt := New(ActivityDeleted, "act-9", "")
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, ActivityDeleted, evt.Type)
	assert.Equal(t, "act-9", evt.ActivityID)
	assert.False(t, evt.At.IsZero())
}
