package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"billing-service/internal/billing"
	"billing-service/internal/models"
	"billing-service/internal/repository"
)

const (
	gracePeriodSetting     = "grace_period_days"
	defaultGracePeriodDays = 7
	planChangeBatchSize    = 100
)

// PlanChangeResult describes how a plan change was applied
type PlanChangeResult struct {
	Subscription *models.Subscription      `json:"subscription"`
	Direction    billing.ChangeDirection   `json:"direction"`
	Behavior     billing.ProrationBehavior `json:"behavior"`
	Scheduled    bool                      `json:"scheduled"`
	EffectiveAt  time.Time                 `json:"effective_at"`
	Credit       decimal.Decimal           `json:"credit"`
	AmountDue    decimal.Decimal           `json:"amount_due"`
}

// SubscriptionService manages tenant subscriptions
type SubscriptionService struct {
	db            *gorm.DB
	subscriptions repository.SubscriptionRepository
	plans         repository.PlanRepository
	tenants       repository.TenantRepository
	settings      SettingsReader
	policy        billing.ProrationPolicy
	events        eventEmitter
	logger        *logrus.Entry
	now           func() time.Time
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(
	db *gorm.DB,
	subscriptions repository.SubscriptionRepository,
	plans repository.PlanRepository,
	tenants repository.TenantRepository,
	settings SettingsReader,
	policy billing.ProrationPolicy,
	publisher EventPublisher,
	logger *logrus.Logger,
) *SubscriptionService {
	entry := logger.WithField("service", "subscription")
	return &SubscriptionService{
		db:            db,
		subscriptions: subscriptions,
		plans:         plans,
		tenants:       tenants,
		settings:      settings,
		policy:        policy,
		events:        newEventEmitter(publisher, entry, utcNow),
		logger:        entry,
		now:           utcNow,
	}
}

// Subscribe starts a subscription of tenantID on a plan price. The first
// period starts after the trial when the price has one. The live
// subscription check and the insert run under a lock on the tenant row.
func (s *SubscriptionService) Subscribe(ctx context.Context, tenantID, planPriceID uuid.UUID, actor Actor) (*models.Subscription, error) {
	price, err := s.activePrice(ctx, planPriceID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub := &models.Subscription{
		TenantID:    tenantID,
		PlanPriceID: price.ID,
		StartsAt:    now,
	}
	periodStart := now
	if price.TrialDays > 0 {
		trialEnds := now.AddDate(0, 0, price.TrialDays)
		sub.TrialEndsAt = &trialEnds
		periodStart = trialEnds
	}
	endsAt := billing.AddInterval(periodStart, price.Interval, price.IntervalCount)
	sub.EndsAt = &endsAt
	sub.GracePeriodEndsAt = s.graceAfter(ctx, endsAt)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscriptions := s.subscriptions.WithTx(tx)

		tenant, err := s.tenants.WithTx(tx).LockByID(ctx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return NewNotFoundError("tenant", tenantID)
		}

		existing, err := subscriptions.ListForTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		for i := range existing {
			if existing[i].Status(now) != models.SubscriptionExpired {
				return NewConflictError("subscription", "tenant already has a live subscription")
			}
		}
		return subscriptions.Create(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	sub.PlanPrice = price

	s.logger.WithFields(logrus.Fields{
		"tenant_id":       tenantID,
		"subscription_id": sub.ID,
		"plan_price_id":   price.ID,
	}).Info("Subscription created")

	s.events.emit(ctx, EventSubscriptionCreated, actor, s.payload(sub, now))
	return sub, nil
}

// Get returns a subscription with its prices, or nil when missing
func (s *SubscriptionService) Get(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	return s.subscriptions.GetByID(ctx, id)
}

// List filters subscriptions by tenant and derived status
func (s *SubscriptionService) List(ctx context.Context, filters repository.SubscriptionFilters) ([]models.Subscription, int64, error) {
	return s.subscriptions.List(ctx, filters, s.now())
}

// Now is the instant statuses are classified against
func (s *SubscriptionService) Now() time.Time {
	return s.now()
}

// Cancel stops renewal. The subscription stays usable until its period ends
// unless immediately is set, which ends it now.
func (s *SubscriptionService) Cancel(ctx context.Context, id uuid.UUID, immediately bool, actor Actor) (*models.Subscription, error) {
	sub, err := s.require(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	status := sub.Status(now)
	switch {
	case status == models.SubscriptionExpired:
		return nil, NewValidationError("subscription", "has already expired")
	case status == models.SubscriptionCanceled && !immediately:
		return nil, NewValidationError("subscription", "has already been canceled")
	}

	if sub.CanceledAt == nil {
		sub.CanceledAt = &now
	}
	sub.GracePeriodEndsAt = nil
	sub.NextPlanPriceID = nil
	sub.NextPlanPrice = nil
	switch {
	case immediately:
		sub.EndsAt = &now
		if sub.TrialEndsAt != nil && sub.TrialEndsAt.After(now) {
			sub.TrialEndsAt = &now
		}
	case status == models.SubscriptionTrialing:
		trialEnds := *sub.TrialEndsAt
		sub.EndsAt = &trialEnds
	}

	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.events.emit(ctx, EventSubscriptionCanceled, actor, map[string]interface{}{
		"subscription": s.payload(sub, now),
		"immediately":  immediately,
	})
	return sub, nil
}

// Resume reverts a cancellation while the period is still running
func (s *SubscriptionService) Resume(ctx context.Context, id uuid.UUID, actor Actor) (*models.Subscription, error) {
	sub, err := s.require(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sub.Status(now) != models.SubscriptionCanceled {
		return nil, NewValidationError("subscription", "only canceled subscriptions within their period can be resumed")
	}

	sub.CanceledAt = nil
	if sub.EndsAt != nil {
		sub.GracePeriodEndsAt = s.graceAfter(ctx, *sub.EndsAt)
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.events.emit(ctx, EventSubscriptionResumed, actor, s.payload(sub, now))
	return sub, nil
}

// ChangePlan moves a subscription to another price following the
// configured proration behavior for the direction of the change
func (s *SubscriptionService) ChangePlan(ctx context.Context, id, planPriceID uuid.UUID, actor Actor) (*PlanChangeResult, error) {
	sub, err := s.require(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	status := sub.Status(now)
	if status != models.SubscriptionActive && status != models.SubscriptionTrialing {
		return nil, NewValidationError("subscription", "only active or trialing subscriptions can change plan")
	}
	if sub.PlanPriceID == planPriceID {
		return nil, NewValidationError("plan_price_id", "subscription is already on this price")
	}

	next, err := s.activePrice(ctx, planPriceID)
	if err != nil {
		return nil, err
	}
	current := sub.PlanPrice
	if current == nil {
		if current, err = s.plans.GetPrice(ctx, sub.PlanPriceID); err != nil {
			return nil, err
		}
		if current == nil {
			return nil, NewNotFoundError("plan_price", sub.PlanPriceID)
		}
	}

	direction := billing.DirectionBetween(current.Amount, next.Amount)
	result := &PlanChangeResult{
		Subscription: sub,
		Direction:    direction,
		Behavior:     s.policy.For(direction),
		EffectiveAt:  now,
		Credit:       decimal.Zero,
		AmountDue:    decimal.Zero,
	}

	switch {
	case result.Behavior == billing.EndOfPeriod && sub.EndsAt != nil:
		sub.NextPlanPriceID = &next.ID
		sub.NextPlanPrice = next
		result.Scheduled = true
		result.EffectiveAt = *sub.EndsAt
	case status == models.SubscriptionTrialing:
		// nothing has been paid yet, so the first period of the new price
		// still starts when the trial ends
		s.swapPrice(ctx, sub, next, *sub.TrialEndsAt)
	default:
		// an open ended subscription has no period end to wait for
		if result.Behavior == billing.ProrateImmediately && sub.EndsAt != nil {
			result.Credit = billing.UnusedCredit(current.Amount, sub.StartsAt, *sub.EndsAt, now)
		}
		result.AmountDue = decimal.Max(next.Amount.Sub(result.Credit), decimal.Zero)
		sub.StartsAt = now
		s.swapPrice(ctx, sub, next, now)
	}

	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"from_price":      current.ID,
		"to_price":        next.ID,
		"behavior":        result.Behavior,
	}).Info("Subscription plan changed")

	s.events.emit(ctx, EventSubscriptionPlanChanged, actor, map[string]interface{}{
		"subscription_id": sub.ID,
		"tenant_id":       sub.TenantID,
		"from_price_id":   current.ID,
		"to_price_id":     next.ID,
		"direction":       result.Direction,
		"behavior":        result.Behavior,
		"scheduled":       result.Scheduled,
		"effective_at":    result.EffectiveAt,
		"credit":          result.Credit,
		"amount_due":      result.AmountDue,
	})
	return result, nil
}

// ApplyScheduledChanges swaps in the scheduled price of every subscription
// whose period has ended. The period itself is left for renewal to extend.
func (s *SubscriptionService) ApplyScheduledChanges(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.subscriptions.DueForPlanChange(ctx, now, planChangeBatchSize)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range due {
		sub := &due[i]
		from := sub.PlanPriceID
		to := *sub.NextPlanPriceID

		sub.PlanPriceID = to
		sub.NextPlanPriceID = nil
		if err := s.subscriptions.Save(ctx, sub); err != nil {
			s.logger.WithError(err).WithField("subscription_id", sub.ID).Error("Failed to apply scheduled plan change")
			continue
		}
		applied++

		s.events.emit(ctx, EventSubscriptionPlanChangeApplied, SystemActor(), map[string]interface{}{
			"subscription_id": sub.ID,
			"tenant_id":       sub.TenantID,
			"from_price_id":   from,
			"to_price_id":     to,
		})
	}

	if applied > 0 {
		s.logger.WithField("count", applied).Info("Applied scheduled plan changes")
	}
	return applied, nil
}

// swapPrice moves sub onto price and restarts the billing period at periodStart
func (s *SubscriptionService) swapPrice(ctx context.Context, sub *models.Subscription, price *models.PlanPrice, periodStart time.Time) {
	sub.PlanPriceID = price.ID
	sub.PlanPrice = price
	sub.NextPlanPriceID = nil
	sub.NextPlanPrice = nil
	endsAt := billing.AddInterval(periodStart, price.Interval, price.IntervalCount)
	sub.EndsAt = &endsAt
	sub.GracePeriodEndsAt = s.graceAfter(ctx, endsAt)
}

func (s *SubscriptionService) require(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.subscriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, NewNotFoundError("subscription", id)
	}
	return sub, nil
}

func (s *SubscriptionService) activePrice(ctx context.Context, id uuid.UUID) (*models.PlanPrice, error) {
	price, err := s.plans.GetPrice(ctx, id)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, NewNotFoundError("plan_price", id)
	}
	if !price.IsActive || (price.Plan != nil && !price.Plan.IsActive) {
		return nil, NewValidationError("plan_price_id", "plan price is not available")
	}
	return price, nil
}

// graceAfter returns the end of the past due window following endsAt
func (s *SubscriptionService) graceAfter(ctx context.Context, endsAt time.Time) *time.Time {
	days := int64(defaultGracePeriodDays)
	if s.settings != nil {
		v, err := s.settings.GetInt(ctx, gracePeriodSetting, defaultGracePeriodDays)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read grace period, using default")
		} else {
			days = v
		}
	}
	if days <= 0 {
		return nil
	}
	t := endsAt.AddDate(0, 0, int(days))
	return &t
}

func (s *SubscriptionService) payload(sub *models.Subscription, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"subscription_id": sub.ID,
		"tenant_id":       sub.TenantID,
		"plan_price_id":   sub.PlanPriceID,
		"status":          sub.Status(now),
		"ends_at":         sub.EndsAt,
	}
}
