package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/workloadinsights/backend/internal/ai"
	"github.com/workloadinsights/backend/internal/ai/providers"
	"github.com/workloadinsights/backend/internal/config"
	"github.com/workloadinsights/backend/internal/database"
	"github.com/workloadinsights/backend/internal/events"
	"github.com/workloadinsights/backend/internal/logging"
	"github.com/workloadinsights/backend/internal/realtime"
	"github.com/workloadinsights/backend/internal/routes"
	"github.com/workloadinsights/backend/internal/whatsapp"
)

const defaultMaxTokens = 1024

func main() {
	// Load .env (non-fatal if missing in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cfg.DBAutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}
	if err := database.SeedAdmin(db, cfg, logger); err != nil {
		return err
	}
	if err := database.SeedCategories(db, logger); err != nil {
		return err
	}

	hub := realtime.NewHub(realtime.Config{
		Heartbeat:  cfg.SSEHeartbeat(),
		StaleAfter: cfg.SSEStale(),
	}, logger)

	publishers := []events.Publisher{hub}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		kafka := events.NewKafkaPublisher(brokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("kafka writer close failed", zap.Error(err))
			}
		}()
		publishers = append(publishers, kafka)
		logger.Info("kafka fan-out enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	}
	publisher := events.NewFanout(logger, publishers...)

	deps := routes.Deps{
		DB:     db,
		Cfg:    cfg,
		Logger: logger,
		Hub:    hub,
		Events: publisher,
		Processor: &whatsapp.Processor{
			DB:          db,
			Logger:      logger,
			Events:      publisher,
			CountryCode: cfg.PhoneCountryCode,
		},
		AI: &ai.Service{
			DB:     db,
			Logger: logger,
			Defaults: ai.Defaults{
				Settings: ai.Settings{
					Provider:  cfg.AIProvider,
					Model:     cfg.AIModel,
					APIKey:    cfg.AIAPIKey,
					BaseURL:   cfg.AIBaseURL,
					MaxTokens: defaultMaxTokens,
				},
				MaxContext:   cfg.AIMaxContextActivities,
				PerStaff:     cfg.AIPerStaffQuota,
				LookbackDays: cfg.AILookbackDays,
				ChunkWindow:  cfg.AIChunkWindow,
				MaxChunks:    cfg.AIMaxChunks,
				MaxChars:     cfg.AIMaxResponseChars,
			},
			Factory: providers.New,
		},
	}
	if cfg.WhatsAppEnabled() {
		client := whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAPIVersion, cfg.WhatsAppBaseURL)
		deps.Notifier = whatsapp.NewNotifier(db, client, logger)
	} else {
		logger.Info("whatsapp notifications disabled; WHATSAPP_TOKEN or WHATSAPP_PHONE_NUMBER_ID missing")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	routes.Register(r, deps)

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOriginList(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// SSE and AI chat responses stay open; a write deadline would cut them.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	if sqlDB, dbErr := db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	return err
}
