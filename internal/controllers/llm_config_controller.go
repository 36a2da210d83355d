package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/models"
)

// LLMConfigController manages the stored assistant configurations. At most
// one is active; activating one deactivates the rest.
type LLMConfigController struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

type llmConfigView struct {
	models.LlmConfiguration
	APIKeyMasked string `json:"api_key_masked"`
	HasAPIKey    bool   `json:"has_api_key"`
}

func viewLLMConfig(m models.LlmConfiguration) llmConfigView {
	return llmConfigView{LlmConfiguration: m, APIKeyMasked: m.MaskedAPIKey(), HasAPIKey: m.APIKey != ""}
}

type llmConfigRequest struct {
	Name         *string `json:"name"`
	Provider     *string `json:"provider"`
	Model        *string `json:"model"`
	APIKey       *string `json:"api_key"`
	BaseURL      *string `json:"base_url"`
	SystemPrompt *string `json:"system_prompt"`
	MaxTokens    *int    `json:"max_tokens"`
	Active       *bool   `json:"active"`
}

func (r llmConfigRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.RuneLength(1, 120)),
		validation.Field(&r.Provider, validation.NilOrNotEmpty, validation.In(toAny(models.LLMProviders)...)),
		validation.Field(&r.Model, validation.NilOrNotEmpty, validation.RuneLength(1, 120)),
		validation.Field(&r.BaseURL, validation.RuneLength(0, 300)),
		validation.Field(&r.MaxTokens, validation.Min(1), validation.Max(32000)),
	)
}

var llmConfigSorts = map[string]string{
	"updated_at": "updated_at",
	"created_at": "created_at",
	"name":       "name",
	"provider":   "provider",
}

func (lc *LLMConfigController) List(c *gin.Context) {
	p := parseListParams(c, llmConfigSorts, "updated_at")
	base := lc.DB.Model(&models.LlmConfiguration{})
	if v := strings.ToLower(strings.TrimSpace(c.Query("provider"))); v != "" {
		base = base.Where("provider = ?", v)
	}
	if p.Q != "" {
		base = base.Where("LOWER(name) LIKE ? OR LOWER(model) LIKE ?", likePattern(p.Q), likePattern(p.Q))
	}
	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		respondInternal(c, lc.Logger, err)
		return
	}
	var rows []models.LlmConfiguration
	if err := p.apply(base.Session(&gorm.Session{})).Find(&rows).Error; err != nil {
		respondInternal(c, lc.Logger, err)
		return
	}
	out := make([]llmConfigView, 0, len(rows))
	for _, r := range rows {
		out = append(out, viewLLMConfig(r))
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": p.meta(total)})
}

func (lc *LLMConfigController) Get(c *gin.Context) {
	var m models.LlmConfiguration
	if err := lc.DB.Where("id = ?", strings.TrimSpace(c.Param("id"))).First(&m).Error; err != nil {
		respondDBError(c, lc.Logger, err, "configuration not found")
		return
	}
	c.JSON(http.StatusOK, viewLLMConfig(m))
}

func (lc *LLMConfigController) Create(c *gin.Context) {
	var req llmConfigRequest
	if !bindAndValidate(c, &req) {
		return
	}
	missing := validation.Errors{}
	if req.Name == nil {
		missing["name"] = validation.ErrRequired
	}
	if req.Provider == nil {
		missing["provider"] = validation.ErrRequired
	}
	if req.Model == nil {
		missing["model"] = validation.ErrRequired
	}
	if len(missing) > 0 {
		respondValidation(c, missing)
		return
	}

	m := models.LlmConfiguration{
		Name:         strings.TrimSpace(*req.Name),
		Provider:     *req.Provider,
		Model:        strings.TrimSpace(*req.Model),
		APIKey:       strings.TrimSpace(derefString(req.APIKey)),
		BaseURL:      strings.TrimSpace(derefString(req.BaseURL)),
		SystemPrompt: derefString(req.SystemPrompt),
		MaxTokens:    1024,
	}
	if req.MaxTokens != nil {
		m.MaxTokens = *req.MaxTokens
	}
	activate := req.Active != nil && *req.Active
	err := lc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		if activate {
			return activateLLMConfig(tx, m.ID)
		}
		return nil
	})
	if err != nil {
		respondDBError(c, lc.Logger, err, "configuration not found")
		return
	}
	m.Active = activate
	c.JSON(http.StatusCreated, viewLLMConfig(m))
}

// Update applies the given fields. An empty api_key clears the stored key;
// omitting it keeps the current one.
func (lc *LLMConfigController) Update(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req llmConfigRequest
	if !bindAndValidate(c, &req) {
		return
	}
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Provider != nil {
		updates["provider"] = *req.Provider
	}
	if req.Model != nil {
		updates["model"] = strings.TrimSpace(*req.Model)
	}
	if req.APIKey != nil {
		updates["api_key"] = strings.TrimSpace(*req.APIKey)
	}
	if req.BaseURL != nil {
		updates["base_url"] = strings.TrimSpace(*req.BaseURL)
	}
	if req.SystemPrompt != nil {
		updates["system_prompt"] = *req.SystemPrompt
	}
	if req.MaxTokens != nil {
		updates["max_tokens"] = *req.MaxTokens
	}

	var m models.LlmConfiguration
	err := lc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(&m).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Active != nil {
			if *req.Active {
				if err := activateLLMConfig(tx, id); err != nil {
					return err
				}
			} else if err := tx.Model(&models.LlmConfiguration{}).Where("id = ?", id).Update("active", false).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).First(&m).Error
	})
	if err != nil {
		respondDBError(c, lc.Logger, err, "configuration not found")
		return
	}
	c.JSON(http.StatusOK, viewLLMConfig(m))
}

func (lc *LLMConfigController) Activate(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var m models.LlmConfiguration
	err := lc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			return err
		}
		if err := activateLLMConfig(tx, id); err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&m).Error
	})
	if err != nil {
		respondDBError(c, lc.Logger, err, "configuration not found")
		return
	}
	c.JSON(http.StatusOK, viewLLMConfig(m))
}

func (lc *LLMConfigController) Delete(c *gin.Context) {
	res := lc.DB.Where("id = ?", strings.TrimSpace(c.Param("id"))).Delete(&models.LlmConfiguration{})
	if res.Error != nil {
		respondInternal(c, lc.Logger, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "configuration not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func activateLLMConfig(tx *gorm.DB, id string) error {
	if err := tx.Model(&models.LlmConfiguration{}).Where("id <> ? AND active = ?", id, true).Update("active", false).Error; err != nil {
		return err
	}
	return tx.Model(&models.LlmConfiguration{}).Where("id = ?", id).Update("active", true).Error
}
