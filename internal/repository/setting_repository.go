package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"billing-service/internal/models"
)

// SettingRepository persists global settings
type SettingRepository interface {
	WithTx(tx *gorm.DB) SettingRepository

	All(ctx context.Context) ([]models.Setting, error)
	GetByKey(ctx context.Context, key string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
}

type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new settings repository
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) WithTx(tx *gorm.DB) SettingRepository {
	return &settingRepository{db: tx}
}

func (r *settingRepository) All(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

func (r *settingRepository) GetByKey(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	if err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return &setting, nil
}

// Upsert writes the value and type of a setting, creating it when missing.
// Visibility and description of an existing key are left untouched.
func (r *settingRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "type", "updated_at"}),
	}).Create(setting).Error
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", setting.Key, err)
	}
	return nil
}
