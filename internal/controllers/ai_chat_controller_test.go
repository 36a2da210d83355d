package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/workloadinsights/backend/internal/ai"
	"github.com/workloadinsights/backend/internal/models"
)

type scriptedProvider struct {
	deltas []string
	err    error
	got    ai.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, req ai.Request, onDelta func(string) error) error {
	p.got = req
	for _, d := range p.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return p.err
}

func (e *testEnv) mountChat(p *scriptedProvider, apiKey string, maxChunks int) {
	svc := &ai.Service{
		DB:     e.db,
		Logger: zap.NewNop(),
		Defaults: ai.Defaults{
			Settings:     ai.Settings{Provider: models.ProviderOpenAI, Model: "test-model", APIKey: apiKey, MaxTokens: 256},
			MaxContext:   50,
			PerStaff:     5,
			LookbackDays: 30,
			ChunkWindow:  16,
			MaxChunks:    maxChunks,
		},
		Factory: func(_ context.Context, s ai.Settings) (ai.Provider, error) {
			if s.APIKey == "" {
				return nil, ai.ErrNoAPIKey
			}
			return p, nil
		},
	}
	chat := &AIChatController{Service: svc, Logger: zap.NewNop()}
	e.r.POST("/api/ai/chat", e.authed(), chat.Chat)
}

// sseEvents splits a recorded stream into event names in order.
func sseEvents(body string) []string {
	var names []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func TestAIChatStreamsChunks(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")
	env.createActivity(&env.admin, gin.H{
		"category_id": cat.ID, "notes": "Leaking tap", "assignee_ids": []string{env.staff.ID},
		"timestamp": time.Now().UTC().Add(-time.Hour),
	})
	p := &scriptedProvider{deltas: []string{"Sari has ", "one open task. ", "It is the leaking tap."}}
	env.mountChat(p, "sk-test", 0)

	w := env.do(http.MethodPost, "/api/ai/chat", &env.staff, gin.H{
		"message": "Who is busiest?",
		"history": []gin.H{{"role": "user", "content": "hi"}, {"role": "assistant", "content": "Hello"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	names := sseEvents(w.Body.String())
	require.NotEmpty(t, names)
	assert.Equal(t, "meta", names[0])
	assert.Equal(t, "done", names[len(names)-1])
	assert.Contains(t, names, "chunk")
	assert.NotContains(t, names, "continuation")
	assert.Contains(t, w.Body.String(), `"provider":"scripted"`)
	assert.Contains(t, w.Body.String(), `"truncated":false`)

	assert.Contains(t, p.got.System, "Leaking tap")
	require.Len(t, p.got.Messages, 3)
	assert.Equal(t, "Who is busiest?", p.got.Messages[2].Content)
}

func TestAIChatTruncatesWithContinuation(t *testing.T) {
	env := newTestEnv(t)
	p := &scriptedProvider{deltas: []string{strings.Repeat("word ", 40)}}
	env.mountChat(p, "sk-test", 2)

	w := env.do(http.MethodPost, "/api/ai/chat", &env.staff, gin.H{"message": "Summarise"})
	require.Equal(t, http.StatusOK, w.Code)
	names := sseEvents(w.Body.String())
	assert.Equal(t, []string{"meta", "chunk", "chunk", "continuation", "done"}, names)
	assert.Contains(t, w.Body.String(), `"reason":"max_chunks"`)
	assert.Contains(t, w.Body.String(), `"truncated":true`)
}

func TestAIChatProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	p := &scriptedProvider{deltas: []string{"Partial "}, err: errors.New("upstream exploded")}
	env.mountChat(p, "sk-test", 0)

	w := env.do(http.MethodPost, "/api/ai/chat", &env.staff, gin.H{"message": "Hello"})
	require.Equal(t, http.StatusOK, w.Code)
	names := sseEvents(w.Body.String())
	assert.Equal(t, "error", names[len(names)-1])
	assert.NotContains(t, names, "done")
	assert.NotContains(t, w.Body.String(), "upstream exploded")
}

func TestAIChatNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.mountChat(&scriptedProvider{}, "", 0)

	w := env.do(http.MethodPost, "/api/ai/chat", &env.staff, gin.H{"message": "Hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(http.MethodPost, "/api/ai/chat", &env.staff, gin.H{"message": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
