package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"billing-service/internal/models"
)

// SubscriptionRepository persists subscriptions. Status is never stored and
// is filtered with the same ordered rules as models.ClassifySubscription.
type SubscriptionRepository interface {
	WithTx(tx *gorm.DB) SubscriptionRepository

	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Save(ctx context.Context, sub *models.Subscription) error
	List(ctx context.Context, filters SubscriptionFilters, now time.Time) ([]models.Subscription, int64, error)
	ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Subscription, error)
	DueForPlanChange(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
}

// SubscriptionFilters narrows subscription listings
type SubscriptionFilters struct {
	TenantID *uuid.UUID
	Status   *models.SubscriptionStatus
	Pagination
}

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) WithTx(tx *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: tx}
}

const (
	notTrialingSQL = "(subscriptions.trial_ends_at IS NULL OR subscriptions.trial_ends_at <= @now)"
	endsOpenSQL    = "(subscriptions.ends_at IS NULL OR subscriptions.ends_at > @now)"
	endedSQL       = "subscriptions.ends_at IS NOT NULL AND subscriptions.ends_at <= @now"
)

// statusCondition renders one classification branch as SQL. Every branch
// after the first repeats the negation of the earlier ones so the branches
// stay mutually exclusive like the in-memory switch.
func statusCondition(status models.SubscriptionStatus) (string, bool) {
	switch status {
	case models.SubscriptionTrialing:
		return "subscriptions.trial_ends_at IS NOT NULL AND subscriptions.trial_ends_at > @now", true
	case models.SubscriptionActive:
		return notTrialingSQL + " AND subscriptions.canceled_at IS NULL AND " + endsOpenSQL, true
	case models.SubscriptionCanceled:
		return notTrialingSQL + " AND subscriptions.canceled_at IS NOT NULL AND " + endsOpenSQL, true
	case models.SubscriptionPastDue:
		return notTrialingSQL + " AND " + endedSQL +
			" AND subscriptions.grace_period_ends_at IS NOT NULL AND subscriptions.grace_period_ends_at > @now", true
	case models.SubscriptionExpired:
		return notTrialingSQL + " AND " + endedSQL +
			" AND (subscriptions.grace_period_ends_at IS NULL OR subscriptions.grace_period_ends_at <= @now)", true
	}
	return "", false
}

// WithStatus scopes subscriptions to those classified as status at now
func WithStatus(status models.SubscriptionStatus, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		condition, ok := statusCondition(status)
		if !ok {
			return db.Where("1 = 0")
		}
		return db.Where(condition, map[string]interface{}{"now": now})
	}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Omit("Tenant", "PlanPrice", "NextPlanPrice").Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Preload("PlanPrice.Plan").
		Preload("NextPlanPrice.Plan").
		First(&sub, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (r *subscriptionRepository) Save(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Omit("Tenant", "PlanPrice", "NextPlanPrice").Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) List(ctx context.Context, filters SubscriptionFilters, now time.Time) ([]models.Subscription, int64, error) {
	var subs []models.Subscription
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Subscription{})
	if filters.TenantID != nil {
		query = query.Where("subscriptions.tenant_id = ?", *filters.TenantID)
	}
	if filters.Status != nil {
		query = query.Scopes(WithStatus(*filters.Status, now))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	err := query.Preload("PlanPrice.Plan").
		Scopes(paginate(filters.Pagination)).
		Order("subscriptions.created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, total, nil
}

func (r *subscriptionRepository) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Preload("PlanPrice").
		Where("tenant_id = ?", tenantID).
		Order("starts_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant subscriptions: %w", err)
	}
	return subs, nil
}

// DueForPlanChange returns subscriptions whose period has ended with a
// scheduled price change pending
func (r *subscriptionRepository) DueForPlanChange(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("next_plan_price_id IS NOT NULL AND ends_at IS NOT NULL AND ends_at <= ?", now).
		Order("ends_at ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due plan changes: %w", err)
	}
	return subs, nil
}
