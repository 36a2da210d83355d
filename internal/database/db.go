package database

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/workloadinsights/backend/internal/config"
	"github.com/workloadinsights/backend/internal/models"
)

// Connect opens the Postgres pool, retrying while the server is unreachable.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	var db *gorm.DB
	r := Retrier{MaxElapsed: cfg.DBRetryMaxElapsed(), Logger: logger}
	err := r.Do(ctx, "connect", func() error {
		var err error
		db, err = gorm.Open(postgres.Open(cfg.DSN()), GormConfig(logger))
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		return sqlDB.PingContext(ctx)
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// GormConfig routes gorm's own logging through zap and turns driver errors
// into gorm.ErrDuplicatedKey / gorm.ErrForeignKeyViolated.
func GormConfig(logger *zap.Logger) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Activity{},
		&models.ActivityUpdate{},
		&models.ActivityAssignment{},
		&models.WhatsAppMessage{},
		&models.LlmConfiguration{},
		&models.ApiKey{},
		&models.RefreshToken{},
	)
}

// Ping is used by the health endpoint.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
