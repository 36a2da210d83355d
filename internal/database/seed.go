package database

import (
	_ "embed"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/config"
	"github.com/workloadinsights/backend/internal/models"
	"github.com/workloadinsights/backend/internal/utils"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Categories []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"categories"`
}

func SeedAdmin(db *gorm.DB, cfg *config.Config, logger *zap.Logger) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	admin := models.User{
		FullName: cfg.AdminFullName,
		Email:    cfg.AdminEmail,
		Password: hashed,
		Role:     models.RoleAdmin,
		Active:   true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	logger.Info("seeded initial admin", zap.String("email", admin.Email))
	return nil
}

// SeedCategories inserts the default categories that do not exist yet.
func SeedCategories(db *gorm.DB, logger *zap.Logger) error {
	var sf seedFile
	if err := yaml.Unmarshal(seedYAML, &sf); err != nil {
		return fmt.Errorf("parse seed.yaml: %w", err)
	}
	created := 0
	for _, c := range sf.Categories {
		cat := models.Category{Name: c.Name, Description: c.Description}
		res := db.Where("name = ?", c.Name).FirstOrCreate(&cat)
		if res.Error != nil {
			return res.Error
		}
		created += int(res.RowsAffected)
	}
	if created > 0 {
		logger.Info("seeded categories", zap.Int("created", created))
	}
	return nil
}
