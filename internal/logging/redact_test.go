package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactString(t *testing.T) {
	assert.Equal(t, "auth Bearer [REDACTED]", RedactString("auth Bearer eyJhbGciOi.abc.def"))
	assert.Equal(t, "sent to *********5678", RedactString("sent to +6281212345678"))
	assert.Equal(t, "room 12", RedactString("room 12"))
	assert.Equal(t, "to *********7890.", RedactString("to 6281234567890."))
}

func TestRedactStringKeepsIdentifiers(t *testing.T) {
	ids := []string{
		"activity 12345678-1234-4234-8234-123456789012 updated",
		"key wid_12345678_abc",
		"path /api/activities/123456789",
		"order 1234567890123456789",
		"ref a12345678",
	}
	for _, s := range ids {
		assert.Equal(t, s, RedactString(s))
	}
}

func TestRedactingCoreKeepsSampling(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sampled := zapcore.NewSamplerWithOptions(core, time.Minute, 1, 0)
	logger := zap.New(NewRedactingCore(sampled))

	for i := 0; i < 5; i++ {
		logger.Info("notified 6281234567890")
	}
	logger.Debug("below level")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "notified *********7890", logs.All()[0].Message)
}

func TestRedactingCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(NewRedactingCore(core)).With(zap.String("api_key", "wid_abc_123"))

	logger.Info("login attempt",
		zap.String("email", "staff@school.test"),
		zap.String("password", "hunter2"),
		zap.String("refresh_token", "xyz"),
		zap.String("to", "6281234567890"),
		zap.Error(errors.New("upstream said Bearer abc.def")),
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "[REDACTED]", fields["password"])
	assert.Equal(t, "[REDACTED]", fields["refresh_token"])
	assert.Equal(t, "staff@school.test", fields["email"])
	assert.Equal(t, "*********7890", fields["to"])
	assert.Equal(t, "upstream said Bearer [REDACTED]", fields["error"])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("production", "loud")
	require.Error(t, err)

	logger, err := New("development", "debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
