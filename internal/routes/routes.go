package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/ai"
	"github.com/workloadinsights/backend/internal/config"
	"github.com/workloadinsights/backend/internal/controllers"
	"github.com/workloadinsights/backend/internal/events"
	"github.com/workloadinsights/backend/internal/middleware"
	"github.com/workloadinsights/backend/internal/models"
	"github.com/workloadinsights/backend/internal/realtime"
	"github.com/workloadinsights/backend/internal/whatsapp"
)

// Deps carries the long-lived services the handlers share.
type Deps struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Logger *zap.Logger
	Hub    *realtime.Hub
	Events events.Publisher
	// Notifier is nil when WhatsApp is not configured.
	Notifier  controllers.AssignmentNotifier
	Processor *whatsapp.Processor
	AI        *ai.Service
}

func Register(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestLogger(d.Logger), middleware.Recovery(d.Logger))

	healthCtrl := &controllers.HealthController{DB: d.DB, Logger: d.Logger}
	r.GET("/health", healthCtrl.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authCtrl := &controllers.AuthController{
		DB:            d.DB,
		Logger:        d.Logger,
		AccessSecret:  d.Cfg.JWTSecret,
		RefreshSecret: d.Cfg.RefreshJWTSecret,
		AccessTTL:     d.Cfg.AccessTTL(),
		RefreshTTL:    d.Cfg.RefreshTTL(),
	}
	userCtrl := &controllers.UserController{DB: d.DB, Logger: d.Logger, Events: d.Events, CountryCode: d.Cfg.PhoneCountryCode}
	categoryCtrl := &controllers.CategoryController{DB: d.DB, Logger: d.Logger, Events: d.Events}
	activityCtrl := &controllers.ActivityController{DB: d.DB, Logger: d.Logger, Events: d.Events, Notifier: d.Notifier}
	analyticsCtrl := &controllers.AnalyticsController{DB: d.DB, Logger: d.Logger}
	chatCtrl := &controllers.AIChatController{Service: d.AI, Logger: d.Logger}
	llmCtrl := &controllers.LLMConfigController{DB: d.DB, Logger: d.Logger}
	apiKeyCtrl := &controllers.APIKeyController{DB: d.DB, Logger: d.Logger}
	waCtrl := &controllers.WhatsAppController{
		DB:          d.DB,
		Logger:      d.Logger,
		Processor:   d.Processor,
		VerifyToken: d.Cfg.WhatsAppVerifyToken,
		AppSecret:   d.Cfg.WhatsAppAppSecret,
	}
	streamCtrl := &realtime.Handler{Hub: d.Hub, Logger: d.Logger}

	// Public
	public := r.Group("/api")
	{
		public.POST("/auth/login", authCtrl.Login)
		public.POST("/auth/refresh", authCtrl.Refresh)
		public.GET("/whatsapp-webhook", waCtrl.VerifyWebhook)
		public.POST("/whatsapp-webhook", waCtrl.ReceiveWebhook)
	}

	// Protected
	authMW := middleware.AuthMiddleware(d.DB, middleware.AuthConfig{JWTSecret: d.Cfg.JWTSecret})
	api := r.Group("/api", authMW)
	{
		api.GET("/auth/me", authCtrl.Me)
		api.POST("/auth/logout", authCtrl.Logout)

		api.GET("/users", userCtrl.ListUsers)
		api.GET("/users/:id", userCtrl.GetUser)

		api.GET("/categories", categoryCtrl.ListCategories)
		api.GET("/categories/:id", categoryCtrl.GetCategory)

		api.GET("/activities", activityCtrl.ListActivities)
		api.POST("/activities", activityCtrl.CreateActivity)
		api.GET("/activities/:id", activityCtrl.GetActivity)
		api.PUT("/activities/:id", activityCtrl.UpdateActivity)
		api.DELETE("/activities/:id", activityCtrl.DeleteActivity)
		api.GET("/activities/:id/updates", activityCtrl.ListUpdates)
		api.POST("/activities/:id/updates", activityCtrl.AddUpdate)
		api.GET("/activities/:id/assignments", activityCtrl.ListAssignments)
		api.PUT("/activities/:id/assignments", activityCtrl.ReplaceAssignments)

		api.GET("/analytics/summary", analyticsCtrl.Summary)
		api.POST("/ai/chat", chatCtrl.Chat)
	}

	// Realtime; EventSource cannot set headers, so the token may come in the query.
	stream := r.Group("/api", middleware.AuthMiddleware(d.DB, middleware.AuthConfig{JWTSecret: d.Cfg.JWTSecret, AllowQueryToken: true}))
	{
		stream.GET("/events", streamCtrl.Stream)
		stream.GET("/ws", streamCtrl.WebSocket)
	}

	// Admin-only
	admin := api.Group("", middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/users", userCtrl.CreateUser)
		admin.POST("/users/import", userCtrl.ImportUsers)
		admin.PUT("/users/:id", userCtrl.UpdateUser)
		admin.DELETE("/users/:id", userCtrl.DeleteUser)

		admin.POST("/categories", categoryCtrl.CreateCategory)
		admin.PUT("/categories/:id", categoryCtrl.UpdateCategory)
		admin.DELETE("/categories/:id", categoryCtrl.DeleteCategory)

		admin.GET("/llm-configs", llmCtrl.List)
		admin.POST("/llm-configs", llmCtrl.Create)
		admin.GET("/llm-configs/:id", llmCtrl.Get)
		admin.PUT("/llm-configs/:id", llmCtrl.Update)
		admin.DELETE("/llm-configs/:id", llmCtrl.Delete)
		admin.POST("/llm-configs/:id/activate", llmCtrl.Activate)

		admin.GET("/api-keys", apiKeyCtrl.List)
		admin.POST("/api-keys", apiKeyCtrl.Create)
		admin.DELETE("/api-keys/:id", apiKeyCtrl.Revoke)

		admin.GET("/whatsapp-messages", waCtrl.ListMessages)
	}
}
