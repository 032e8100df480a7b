package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"billing-service/internal/config"
	"billing-service/internal/models"
)

// Open connects to postgres and verifies the connection
func Open(cfg config.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	gormLogLevel := gormlogger.Warn
	if logLevel == "debug" {
		gormLogLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormLogLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

type defaultSetting struct {
	key         string
	value       interface{}
	public      bool
	description string
}

var defaultSettings = []defaultSetting{
	{"site_name", "Billing Panel", true, "Display name of the panel"},
	{"support_email", "support@example.com", true, "Contact address shown to tenants"},
	{"default_currency", "USD", true, "Currency used when a price has none"},
	{"grace_period_days", 7, false, "Days a subscription stays past due before expiring"},
	{"maintenance_mode", false, false, "Reject tenant facing writes when true"},
}

// SeedSettings inserts default settings that are not present yet
func SeedSettings(db *gorm.DB, logger *logrus.Logger) error {
	for _, d := range defaultSettings {
		raw, err := json.Marshal(d.value)
		if err != nil {
			return fmt.Errorf("failed to encode default setting %s: %w", d.key, err)
		}

		setting := models.Setting{
			Key:         d.key,
			Value:       datatypes.JSON(raw),
			Type:        models.InferSettingType(d.value),
			IsPublic:    d.public,
			Description: d.description,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&setting)
		if result.Error != nil {
			return fmt.Errorf("failed to seed setting %s: %w", d.key, result.Error)
		}
		if result.RowsAffected > 0 {
			logger.WithField("key", d.key).Info("Seeded default setting")
		}
	}
	return nil
}
