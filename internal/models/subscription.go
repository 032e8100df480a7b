package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionStatus is derived from the subscription date window, never stored
type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

// SubscriptionStatuses lists every status in classification order
var SubscriptionStatuses = []SubscriptionStatus{
	SubscriptionTrialing,
	SubscriptionActive,
	SubscriptionCanceled,
	SubscriptionPastDue,
	SubscriptionExpired,
}

// ParseSubscriptionStatus maps a filter value to a status
func ParseSubscriptionStatus(value string) (SubscriptionStatus, bool) {
	for _, s := range SubscriptionStatuses {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

// Subscription ties a tenant to a plan price for a billing period
type Subscription struct {
	ID                uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	PlanPriceID       uuid.UUID  `json:"plan_price_id" gorm:"type:uuid;not null;index"`
	NextPlanPriceID   *uuid.UUID `json:"next_plan_price_id,omitempty" gorm:"type:uuid"`
	StartsAt          time.Time  `json:"starts_at" gorm:"not null"`
	TrialEndsAt       *time.Time `json:"trial_ends_at,omitempty"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
	EndsAt            *time.Time `json:"ends_at,omitempty" gorm:"index"`
	GracePeriodEndsAt *time.Time `json:"grace_period_ends_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Tenant        *Tenant    `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	PlanPrice     *PlanPrice `json:"plan_price,omitempty" gorm:"foreignKey:PlanPriceID"`
	NextPlanPrice *PlanPrice `json:"next_plan_price,omitempty" gorm:"foreignKey:NextPlanPriceID"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Status classifies the subscription at now
func (s *Subscription) Status(now time.Time) SubscriptionStatus {
	return ClassifySubscription(s, now)
}

// ClassifySubscription derives the lifecycle status from the date window.
// Rules are evaluated in order and the first match wins. A timestamp equal
// to now counts as already passed.
func ClassifySubscription(s *Subscription, now time.Time) SubscriptionStatus {
	trialing := isFuture(s.TrialEndsAt, now)
	endsOpen := s.EndsAt == nil || s.EndsAt.After(now)

	switch {
	case trialing:
		return SubscriptionTrialing
	case s.CanceledAt == nil && endsOpen:
		return SubscriptionActive
	case s.CanceledAt != nil && endsOpen:
		return SubscriptionCanceled
	case isFuture(s.GracePeriodEndsAt, now):
		return SubscriptionPastDue
	default:
		return SubscriptionExpired
	}
}

func isFuture(t *time.Time, now time.Time) bool {
	return t != nil && t.After(now)
}
