package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"billing-service/internal/models"
)

// PlanRepository persists plans, prices and the features they grant
type PlanRepository interface {
	CreatePlan(ctx context.Context, plan *models.Plan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	UpdatePlan(ctx context.Context, plan *models.Plan) error
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)

	CreatePrice(ctx context.Context, price *models.PlanPrice) error
	GetPrice(ctx context.Context, id uuid.UUID) (*models.PlanPrice, error)

	CreateFeature(ctx context.Context, feature *models.Feature) error
	GetFeature(ctx context.Context, id uuid.UUID) (*models.Feature, error)
	ListFeatures(ctx context.Context) ([]models.Feature, error)

	SetPlanFeature(ctx context.Context, value *models.PlanFeature) error
	GetPlanFeature(ctx context.Context, planID, featureID uuid.UUID) (*models.PlanFeature, error)
}

type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if err := r.db.WithContext(ctx).Omit("Prices", "Features").Create(plan).Error; err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (r *planRepository) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).
		Preload("Prices", func(db *gorm.DB) *gorm.DB { return db.Order("amount ASC") }).
		Preload("Features.Feature").
		First(&plan, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

func (r *planRepository) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	if err := r.db.WithContext(ctx).Omit("Prices", "Features").Save(plan).Error; err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return nil
}

func (r *planRepository) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	var plans []models.Plan
	query := r.db.WithContext(ctx).Preload("Prices")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("name ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func (r *planRepository) CreatePrice(ctx context.Context, price *models.PlanPrice) error {
	if err := r.db.WithContext(ctx).Omit("Plan").Create(price).Error; err != nil {
		return fmt.Errorf("failed to create plan price: %w", err)
	}
	return nil
}

func (r *planRepository) GetPrice(ctx context.Context, id uuid.UUID) (*models.PlanPrice, error) {
	var price models.PlanPrice
	if err := r.db.WithContext(ctx).Preload("Plan").First(&price, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get plan price: %w", err)
	}
	return &price, nil
}

func (r *planRepository) CreateFeature(ctx context.Context, feature *models.Feature) error {
	if err := r.db.WithContext(ctx).Create(feature).Error; err != nil {
		return fmt.Errorf("failed to create feature: %w", err)
	}
	return nil
}

func (r *planRepository) GetFeature(ctx context.Context, id uuid.UUID) (*models.Feature, error) {
	var feature models.Feature
	if err := r.db.WithContext(ctx).First(&feature, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feature: %w", err)
	}
	return &feature, nil
}

func (r *planRepository) ListFeatures(ctx context.Context) ([]models.Feature, error) {
	var features []models.Feature
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&features).Error; err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	return features, nil
}

// SetPlanFeature inserts or replaces the value a plan grants for a feature
func (r *planRepository) SetPlanFeature(ctx context.Context, value *models.PlanFeature) error {
	err := r.db.WithContext(ctx).Omit("Feature").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plan_id"}, {Name: "feature_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(value).Error
	if err != nil {
		return fmt.Errorf("failed to set plan feature: %w", err)
	}
	return nil
}

func (r *planRepository) GetPlanFeature(ctx context.Context, planID, featureID uuid.UUID) (*models.PlanFeature, error) {
	var value models.PlanFeature
	err := r.db.WithContext(ctx).Where("plan_id = ? AND feature_id = ?", planID, featureID).First(&value).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get plan feature: %w", err)
	}
	return &value, nil
}
