package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workloadinsights/backend/internal/middleware"
	"github.com/workloadinsights/backend/internal/models"
)

func TestLLMConfigActivationIsExclusive(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/llm-configs", &env.admin, gin.H{
		"name":     "Claude",
		"provider": models.ProviderAnthropic,
		"model":    "claude-sonnet-4-5",
		"api_key":  "sk-ant-abcdefghijkl7890",
		"active":   true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "abcdefghijkl")
	first := decode[llmConfigView](t, w)
	assert.True(t, first.Active)
	assert.True(t, first.HasAPIKey)
	assert.Equal(t, "sk-...7890", first.APIKeyMasked)
	assert.Equal(t, 1024, first.MaxTokens)

	w = env.do(http.MethodPost, "/api/llm-configs", &env.admin, gin.H{
		"name":       "Gemini",
		"provider":   models.ProviderGemini,
		"model":      "gemini-2.5-flash",
		"max_tokens": 2048,
		"active":     true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decode[llmConfigView](t, w)
	assert.False(t, second.HasAPIKey)

	w = env.do(http.MethodGet, "/api/llm-configs/"+first.ID, &env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[llmConfigView](t, w).Active)

	w = env.do(http.MethodPost, "/api/llm-configs/"+first.ID+"/activate", &env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[llmConfigView](t, w).Active)

	var active []models.LlmConfiguration
	require.NoError(t, env.db.Where("active = ?", true).Find(&active).Error)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	w = env.do(http.MethodGet, "/api/llm-configs?provider=gemini", &env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[listResponse[llmConfigView]](t, w)
	require.Len(t, list.Data, 1)
	assert.Equal(t, second.ID, list.Data[0].ID)
}

func TestLLMConfigUpdate(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/llm-configs", &env.admin, gin.H{
		"name":     "OpenAI",
		"provider": models.ProviderOpenAI,
		"model":    "gpt-4o-mini",
		"api_key":  "sk-proj-0000000011112222",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cfg := decode[llmConfigView](t, w)
	assert.False(t, cfg.Active)

	// omitting api_key keeps the stored key
	w = env.do(http.MethodPut, "/api/llm-configs/"+cfg.ID, &env.admin, gin.H{"model": "gpt-4.1-mini", "active": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[llmConfigView](t, w)
	assert.Equal(t, "gpt-4.1-mini", got.Model)
	assert.True(t, got.HasAPIKey)
	assert.True(t, got.Active)

	w = env.do(http.MethodPut, "/api/llm-configs/"+cfg.ID, &env.admin, gin.H{"api_key": "", "active": false})
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[llmConfigView](t, w)
	assert.False(t, got.HasAPIKey)
	assert.False(t, got.Active)

	w = env.do(http.MethodPut, "/api/llm-configs/"+cfg.ID, &env.admin, gin.H{"provider": "mistral"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/api/llm-configs/"+cfg.ID, &env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodDelete, "/api/llm-configs/"+cfg.ID, &env.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLLMConfigValidationAndAccess(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/llm-configs", &env.admin, gin.H{"provider": models.ProviderOpenAI})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"name"`)
	assert.Contains(t, body, `"model"`)

	w = env.do(http.MethodPost, "/api/llm-configs", &env.admin, gin.H{
		"name": "Big", "provider": models.ProviderOpenAI, "model": "gpt", "max_tokens": 64000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/llm-configs", &env.staff, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type apiKeyCreated struct {
	Key    string        `json:"key"`
	APIKey models.ApiKey `json:"api_key"`
}

func (e *testEnv) withAPIKey(method, path, key string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(middleware.APIKeyHeader, key)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/api-keys", &env.admin, gin.H{
		"name":            "Kiosk",
		"expires_in_days": 30,
		"user_id":         env.staff.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[apiKeyCreated](t, w)
	assert.True(t, strings.HasPrefix(created.Key, "wid_"+created.APIKey.Prefix+"_"))
	assert.Equal(t, env.staff.ID, created.APIKey.UserIDRef)
	require.NotNil(t, created.APIKey.ExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), *created.APIKey.ExpiresAt, time.Minute)

	w = env.withAPIKey(http.MethodGet, "/api/auth/me", created.Key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, env.staff.ID, decode[models.User](t, w).ID)

	// the hash is stored, never the key
	var stored models.ApiKey
	require.NoError(t, env.db.First(&stored, "id = ?", created.APIKey.ID).Error)
	assert.NotEqual(t, created.Key, stored.KeyHash)
	assert.NotNil(t, stored.LastUsedAt)

	w = env.do(http.MethodDelete, "/api/api-keys/"+created.APIKey.ID, &env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	revoked := decode[models.ApiKey](t, w)
	require.NotNil(t, revoked.RevokedAt)

	w = env.do(http.MethodDelete, "/api/api-keys/"+created.APIKey.ID, &env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[models.ApiKey](t, w)
	require.NotNil(t, again.RevokedAt)
	assert.True(t, revoked.RevokedAt.Equal(*again.RevokedAt))

	w = env.withAPIKey(http.MethodGet, "/api/auth/me", created.Key)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/api-keys?revoked=true", &env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[listResponse[models.ApiKey]](t, w).Data, 1)
	w = env.do(http.MethodGet, "/api/api-keys?revoked=false", &env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[listResponse[models.ApiKey]](t, w).Data)
}

func TestAPIKeyOwner(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/api-keys", &env.admin, gin.H{"name": "Mine"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, env.admin.ID, decode[apiKeyCreated](t, w).APIKey.UserIDRef)

	w = env.do(http.MethodPost, "/api/api-keys", &env.admin, gin.H{"name": "Also mine", "user_id": env.admin.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, env.admin.ID, decode[apiKeyCreated](t, w).APIKey.UserIDRef)

	w = env.do(http.MethodPost, "/api/api-keys", &env.admin, gin.H{"name": "Staff", "user_id": env.staff.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issued := decode[apiKeyCreated](t, w)
	assert.Equal(t, env.staff.ID, issued.APIKey.UserIDRef)
	w = env.withAPIKey(http.MethodGet, "/api/auth/me", issued.Key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, env.staff.ID, decode[models.User](t, w).ID)

	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", env.staff.ID).Update("active", false).Error)
	w = env.do(http.MethodPost, "/api/api-keys", &env.admin, gin.H{"name": "Gone", "user_id": env.staff.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIKeyCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/api-keys", &env.admin, gin.H{"name": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/api-keys", &env.admin, gin.H{"name": "x", "expires_in_days": 5000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/api-keys", &env.admin, gin.H{"name": "x", "user_id": "0d6f3c2a-0000-4000-8000-000000000000"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.withAPIKey(http.MethodGet, "/api/auth/me", "wid_nothing_here")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type summaryResponse struct {
	Days       int              `json:"days"`
	Total      int64            `json:"total"`
	OpenOld    int64            `json:"open_older_than_7d"`
	ByStatus   map[string]int64 `json:"by_status"`
	ByPriority map[string]int64 `json:"by_priority"`
	ByCategory []categoryCount  `json:"by_category"`
	PerStaff   []staffLoad      `json:"per_staff"`
	PerDay     []dayCount       `json:"per_day"`
}

func TestAnalyticsSummary(t *testing.T) {
	env := newTestEnv(t)
	plumbing := env.createCategory("Plumbing")
	cleaning := env.createCategory("Cleaning")
	now := time.Now().UTC()

	env.createActivity(&env.admin, gin.H{
		"category_id": plumbing.ID, "priority": models.PriorityHigh,
		"assignee_ids": []string{env.staff.ID}, "timestamp": now.Add(-time.Hour),
	})
	env.createActivity(&env.admin, gin.H{
		"category_id": plumbing.ID, "status": models.StatusResolved,
		"assignee_ids": []string{env.staff.ID}, "timestamp": now.Add(-48 * time.Hour),
	})
	env.createActivity(&env.staff, gin.H{"category_id": cleaning.ID, "timestamp": now.Add(-72 * time.Hour)})
	env.createActivity(&env.staff, gin.H{"category_id": cleaning.ID, "timestamp": now.Add(-10 * 24 * time.Hour)})

	w := env.do(http.MethodGet, "/api/analytics/summary?days=7", &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[summaryResponse](t, w)

	assert.Equal(t, 7, got.Days)
	assert.EqualValues(t, 3, got.Total)
	assert.EqualValues(t, 1, got.OpenOld)
	assert.Equal(t, map[string]int64{models.StatusOpen: 2, models.StatusInProgress: 0, models.StatusResolved: 1}, got.ByStatus)
	assert.Equal(t, map[string]int64{models.PriorityLow: 0, models.PriorityMedium: 2, models.PriorityHigh: 1}, got.ByPriority)

	require.Len(t, got.ByCategory, 2)
	assert.Equal(t, "Plumbing", got.ByCategory[0].Name)
	assert.EqualValues(t, 2, got.ByCategory[0].Count)

	require.Len(t, got.PerStaff, 1)
	assert.Equal(t, env.staff.ID, got.PerStaff[0].UserID)
	assert.EqualValues(t, 2, got.PerStaff[0].Total)
	assert.EqualValues(t, 1, got.PerStaff[0].Open)

	require.Len(t, got.PerDay, 8)
	var sum int64
	for _, d := range got.PerDay {
		sum += d.Count
	}
	assert.EqualValues(t, 3, sum)
	assert.Equal(t, now.Format("2006-01-02"), got.PerDay[len(got.PerDay)-1].Day)
}

func TestAnalyticsSummaryRejectsBadWindow(t *testing.T) {
	env := newTestEnv(t)

	for _, days := range []string{"0", "366", "abc"} {
		w := env.do(http.MethodGet, "/api/analytics/summary?days="+days, &env.admin, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, days)
	}

	w := env.do(http.MethodGet, "/api/analytics/summary", &env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[summaryResponse](t, w)
	assert.Equal(t, 30, got.Days)
	assert.Zero(t, got.Total)
	assert.NotNil(t, got.PerStaff)
	assert.Len(t, got.PerDay, 31)
}
