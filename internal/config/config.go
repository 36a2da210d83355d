package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// DatabaseURL wins over the discrete DB_* settings when set.
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	DBHost           string `mapstructure:"DB_HOST"`
	DBPort           string `mapstructure:"DB_PORT"`
	DBUser           string `mapstructure:"DB_USER"`
	DBPassword       string `mapstructure:"DB_PASSWORD"`
	DBName           string `mapstructure:"DB_NAME"`
	DBSSLMode        string `mapstructure:"DB_SSLMODE"`
	DBAutoMigrate    bool   `mapstructure:"DB_AUTO_MIGRATE"`
	DBRetryMaxElapse string `mapstructure:"DB_RETRY_MAX_ELAPSED"`

	JWTSecret        string `mapstructure:"JWT_SECRET"`
	RefreshJWTSecret string `mapstructure:"REFRESH_JWT_SECRET"`
	AccessTokenTTL   string `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL  string `mapstructure:"REFRESH_TOKEN_TTL"`

	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
	AdminFullName string `mapstructure:"ADMIN_FULL_NAME"`

	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	// Realtime
	SSEHeartbeatInterval string `mapstructure:"SSE_HEARTBEAT_INTERVAL"`
	SSEStaleAfter        string `mapstructure:"SSE_STALE_AFTER"`

	// WhatsApp Cloud API
	WhatsAppToken         string `mapstructure:"WHATSAPP_TOKEN"`
	WhatsAppPhoneNumberID string `mapstructure:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppAPIVersion    string `mapstructure:"WHATSAPP_API_VERSION"`
	WhatsAppBaseURL       string `mapstructure:"WHATSAPP_BASE_URL"`
	WhatsAppVerifyToken   string `mapstructure:"WHATSAPP_VERIFY_TOKEN"`
	WhatsAppAppSecret     string `mapstructure:"WHATSAPP_APP_SECRET"`
	// PhoneCountryCode replaces a leading 0 in locally written numbers.
	PhoneCountryCode string `mapstructure:"PHONE_COUNTRY_CODE"`

	// AI assistant; the active LlmConfiguration row overrides these.
	AIProvider             string `mapstructure:"AI_PROVIDER"`
	AIModel                string `mapstructure:"AI_MODEL"`
	AIAPIKey               string `mapstructure:"AI_API_KEY"`
	AIBaseURL              string `mapstructure:"AI_BASE_URL"`
	AIMaxContextActivities int    `mapstructure:"AI_MAX_CONTEXT_ACTIVITIES"`
	AIPerStaffQuota        int    `mapstructure:"AI_PER_STAFF_QUOTA"`
	AILookbackDays         int    `mapstructure:"AI_LOOKBACK_DAYS"`
	AIChunkWindow          int    `mapstructure:"AI_CHUNK_WINDOW"`
	AIMaxChunks            int    `mapstructure:"AI_MAX_CHUNKS"`
	AIMaxResponseChars     int    `mapstructure:"AI_MAX_RESPONSE_CHARS"`

	// Optional Kafka fan-out of activity change events.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`
}

// Load builds Config from the environment. Callers load .env beforehand.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "workload_insights")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_RETRY_MAX_ELAPSED", "30s")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("REFRESH_JWT_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h")
	v.SetDefault("ADMIN_EMAIL", "admin@example.com")
	v.SetDefault("ADMIN_PASSWORD", "admin123")
	v.SetDefault("ADMIN_FULL_NAME", "Administrator")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SSE_HEARTBEAT_INTERVAL", "30s")
	v.SetDefault("SSE_STALE_AFTER", "2m")
	v.SetDefault("WHATSAPP_TOKEN", "")
	v.SetDefault("WHATSAPP_PHONE_NUMBER_ID", "")
	v.SetDefault("WHATSAPP_API_VERSION", "v21.0")
	v.SetDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com")
	v.SetDefault("WHATSAPP_VERIFY_TOKEN", "")
	v.SetDefault("WHATSAPP_APP_SECRET", "")
	v.SetDefault("PHONE_COUNTRY_CODE", "62")
	v.SetDefault("AI_PROVIDER", "anthropic")
	v.SetDefault("AI_MODEL", "claude-haiku-4-5")
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_BASE_URL", "")
	v.SetDefault("AI_MAX_CONTEXT_ACTIVITIES", 150)
	v.SetDefault("AI_PER_STAFF_QUOTA", 5)
	v.SetDefault("AI_LOOKBACK_DAYS", 90)
	v.SetDefault("AI_CHUNK_WINDOW", 400)
	v.SetDefault("AI_MAX_CHUNKS", 60)
	v.SetDefault("AI_MAX_RESPONSE_CHARS", 16000)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "workload.activity-events")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port == "" {
		return errors.New("config: PORT must be set")
	}
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return errors.New("config: JWT_SECRET must be set when APP_ENV=production")
		}
		c.JWTSecret = "dev_secret_change_me"
	}
	if c.RefreshJWTSecret == "" {
		c.RefreshJWTSecret = c.JWTSecret
	}
	if c.AIMaxContextActivities < 0 || c.AIPerStaffQuota < 0 {
		return errors.New("config: AI_MAX_CONTEXT_ACTIVITIES and AI_PER_STAFF_QUOTA must not be negative")
	}
	if c.AIChunkWindow <= 0 {
		return errors.New("config: AI_CHUNK_WINDOW must be positive")
	}
	switch c.AIProvider {
	case "anthropic", "gemini", "openai":
	default:
		return fmt.Errorf("config: unknown AI_PROVIDER %q", c.AIProvider)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// DSN returns DATABASE_URL or a key/value DSN assembled from DB_*.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

// MigrateURL returns a postgres:// URL suitable for golang-migrate.
func (c *Config) MigrateURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.AccessTokenTTL, 15*time.Minute)
}

func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.RefreshTokenTTL, 720*time.Hour)
}

func (c *Config) DBRetryMaxElapsed() time.Duration {
	return parseDuration(c.DBRetryMaxElapse, 30*time.Second)
}

func (c *Config) SSEHeartbeat() time.Duration {
	return parseDuration(c.SSEHeartbeatInterval, 30*time.Second)
}

// SSEStale is the idle period after which a realtime client is swept.
// It never drops below two heartbeats.
func (c *Config) SSEStale() time.Duration {
	d := parseDuration(c.SSEStaleAfter, 2*time.Minute)
	if min := 2 * c.SSEHeartbeat(); d < min {
		return min
	}
	return d
}

func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

func (c *Config) CORSOriginList() []string {
	return splitList(c.CORSOrigins)
}

func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsAppToken != "" && c.WhatsAppPhoneNumberID != ""
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
