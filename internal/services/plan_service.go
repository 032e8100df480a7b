package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"billing-service/internal/models"
	"billing-service/internal/repository"
)

// PlanRequest creates or updates a plan
type PlanRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Slug        string `json:"slug" validate:"required,max=100,slug"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// PriceRequest adds a price to a plan
type PriceRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3,uppercase"`
	Interval      string          `json:"interval" validate:"required,oneof=day week month year"`
	IntervalCount int             `json:"interval_count" validate:"omitempty,gte=1"`
	TrialDays     int             `json:"trial_days" validate:"gte=0,lte=365"`
	IsActive      bool            `json:"is_active"`
}

// FeatureRequest creates a gated feature
type FeatureRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Slug        string `json:"slug" validate:"required,max=100,slug"`
	Description string `json:"description"`
}

// PlanService manages plans, their prices and feature values
type PlanService struct {
	plans  repository.PlanRepository
	logger *logrus.Entry
}

// NewPlanService creates a new plan service
func NewPlanService(plans repository.PlanRepository, logger *logrus.Logger) *PlanService {
	return &PlanService{
		plans:  plans,
		logger: logger.WithField("service", "plan"),
	}
}

// CreatePlan adds a plan
func (s *PlanService) CreatePlan(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	plan := &models.Plan{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		IsActive:    req.IsActive,
	}
	if err := s.plans.CreatePlan(ctx, plan); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewConflictError("plan", "a plan with this slug already exists")
		}
		return nil, err
	}
	s.logger.WithField("plan_id", plan.ID).Info("Plan created")
	return plan, nil
}

// UpdatePlan replaces the plan fields
func (s *PlanService) UpdatePlan(ctx context.Context, id uuid.UUID, req PlanRequest) (*models.Plan, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	plan, err := s.requirePlan(ctx, id)
	if err != nil {
		return nil, err
	}
	plan.Name = req.Name
	plan.Slug = req.Slug
	plan.Description = req.Description
	plan.IsActive = req.IsActive
	if err := s.plans.UpdatePlan(ctx, plan); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewConflictError("plan", "a plan with this slug already exists")
		}
		return nil, err
	}
	return plan, nil
}

// GetPlan returns a plan with prices and features, or nil when missing
func (s *PlanService) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	return s.plans.GetPlan(ctx, id)
}

// ListPlans lists plans with their prices
func (s *PlanService) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	return s.plans.ListPlans(ctx, activeOnly)
}

// AddPrice adds a price point to a plan
func (s *PlanService) AddPrice(ctx context.Context, planID uuid.UUID, req PriceRequest) (*models.PlanPrice, error) {
	err := mergeValidation(validateStruct(req), appendIf(nil, isNegative(req.Amount), "amount", "must not be negative"))
	if err != nil {
		return nil, err
	}
	if _, err := s.requirePlan(ctx, planID); err != nil {
		return nil, err
	}

	count := req.IntervalCount
	if count < 1 {
		count = 1
	}
	price := &models.PlanPrice{
		PlanID:        planID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Interval:      req.Interval,
		IntervalCount: count,
		TrialDays:     req.TrialDays,
		IsActive:      req.IsActive,
	}
	if err := s.plans.CreatePrice(ctx, price); err != nil {
		return nil, err
	}
	return price, nil
}

// CreateFeature adds a gated feature
func (s *PlanService) CreateFeature(ctx context.Context, req FeatureRequest) (*models.Feature, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	feature := &models.Feature{Name: req.Name, Slug: req.Slug, Description: req.Description}
	if err := s.plans.CreateFeature(ctx, feature); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewConflictError("feature", "a feature with this slug already exists")
		}
		return nil, err
	}
	return feature, nil
}

// ListFeatures lists every feature
func (s *PlanService) ListFeatures(ctx context.Context) ([]models.Feature, error) {
	return s.plans.ListFeatures(ctx)
}

// SetPlanFeature sets the base value a plan grants for a feature
func (s *PlanService) SetPlanFeature(ctx context.Context, planID, featureID uuid.UUID, value int64) (*models.PlanFeature, error) {
	if value < 0 {
		return nil, NewValidationError("value", "must not be negative")
	}
	if _, err := s.requirePlan(ctx, planID); err != nil {
		return nil, err
	}
	feature, err := s.plans.GetFeature(ctx, featureID)
	if err != nil {
		return nil, err
	}
	if feature == nil {
		return nil, NewNotFoundError("feature", featureID)
	}

	if err := s.plans.SetPlanFeature(ctx, &models.PlanFeature{
		PlanID:    planID,
		FeatureID: featureID,
		Value:     value,
	}); err != nil {
		return nil, err
	}
	return s.plans.GetPlanFeature(ctx, planID, featureID)
}

func (s *PlanService) requirePlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, NewNotFoundError("plan", id)
	}
	return plan, nil
}
