package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"billing-service/internal/models"
	"billing-service/internal/repository"
)

// FeatureLimit is the effective limit of one feature for a tenant
type FeatureLimit struct {
	FeatureID      uuid.UUID  `json:"feature_id"`
	PlanValue      int64      `json:"plan_value"`
	AddonIncrement int64      `json:"addon_increment"`
	Override       *int64     `json:"override,omitempty"`
	Limit          int64      `json:"limit"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
}

// EntitlementService answers feature gating questions
type EntitlementService struct {
	subscriptions repository.SubscriptionRepository
	plans         repository.PlanRepository
	assignments   repository.TenantAddonRepository
	logger        *logrus.Entry
	now           func() time.Time
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(
	subscriptions repository.SubscriptionRepository,
	plans repository.PlanRepository,
	assignments repository.TenantAddonRepository,
	logger *logrus.Logger,
) *EntitlementService {
	return &EntitlementService{
		subscriptions: subscriptions,
		plans:         plans,
		assignments:   assignments,
		logger:        logger.WithField("service", "entitlement"),
		now:           utcNow,
	}
}

// FeatureLimit combines the plan value of the tenant's current subscription
// with its active addons. Increment addons add value x quantity; the largest
// active override replaces the whole limit.
func (s *EntitlementService) FeatureLimit(ctx context.Context, tenantID, featureID uuid.UUID) (*FeatureLimit, error) {
	now := s.now()
	limit := &FeatureLimit{FeatureID: featureID}

	sub, err := s.currentSubscription(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.PlanPrice != nil {
		id := sub.ID
		limit.SubscriptionID = &id
		planFeature, err := s.plans.GetPlanFeature(ctx, sub.PlanPrice.PlanID, featureID)
		if err != nil {
			return nil, err
		}
		if planFeature != nil {
			limit.PlanValue = planFeature.Value
		}
	}

	assignments, err := s.assignments.ActiveForFeature(ctx, tenantID, featureID, now)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if a.Addon == nil {
			continue
		}
		switch a.Addon.AddonType {
		case models.AddonTypeOverride:
			if limit.Override == nil || a.Addon.Value > *limit.Override {
				v := a.Addon.Value
				limit.Override = &v
			}
		default:
			limit.AddonIncrement += a.Addon.Value * int64(a.Quantity)
		}
	}

	if limit.Override != nil {
		limit.Limit = *limit.Override
	} else {
		limit.Limit = limit.PlanValue + limit.AddonIncrement
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"feature_id": featureID,
		"limit":      limit.Limit,
	}).Debug("Resolved feature limit")
	return limit, nil
}

// currentSubscription picks the most recent subscription that has not expired
func (s *EntitlementService) currentSubscription(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Subscription, error) {
	subs, err := s.subscriptions.ListForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].Status(now) != models.SubscriptionExpired {
			return &subs[i], nil
		}
	}
	return nil, nil
}
