package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AddonType constrains how an addon changes a feature limit
type AddonType string

const (
	// AddonTypeIncrement adds value x quantity to the plan limit
	AddonTypeIncrement AddonType = "increment"
	// AddonTypeOverride replaces the plan limit with value
	AddonTypeOverride AddonType = "override"
)

// IsValid reports whether t is a known addon type
func (t AddonType) IsValid() bool {
	return t == AddonTypeIncrement || t == AddonTypeOverride
}

// Addon is a purchasable extension of a feature limit
type Addon struct {
	ID            uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	FeatureID     uuid.UUID       `json:"feature_id" gorm:"type:uuid;not null;index"`
	Name          string          `json:"name" gorm:"size:255;not null"`
	Slug          string          `json:"slug" gorm:"size:100;uniqueIndex;not null"`
	Description   string          `json:"description" gorm:"type:text"`
	AddonType     AddonType       `json:"addon_type" gorm:"size:20;not null"`
	Value         int64           `json:"value" gorm:"not null"`
	Price         decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Currency      string          `json:"currency" gorm:"size:3;not null"`
	IsRecurring   bool            `json:"is_recurring" gorm:"not null"`
	Interval      *string         `json:"interval,omitempty" gorm:"size:10"`
	IntervalCount *int            `json:"interval_count,omitempty"`
	IsActive      bool            `json:"is_active" gorm:"not null;index"`
	IsPublic      bool            `json:"is_public" gorm:"not null"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	Feature *Feature `json:"feature,omitempty" gorm:"foreignKey:FeatureID"`
}

func (Addon) TableName() string {
	return "addons"
}

func (a *Addon) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IntervalUnit returns the recurring interval, or "" when unset
func (a *Addon) IntervalUnit() string {
	if a.Interval == nil {
		return ""
	}
	return *a.Interval
}

// IntervalCountOrOne returns the recurring interval count, defaulting to one
func (a *Addon) IntervalCountOrOne() int {
	if a.IntervalCount == nil || *a.IntervalCount < 1 {
		return 1
	}
	return *a.IntervalCount
}

// TenantAddon assigns an addon to a tenant. One row per tenant and addon.
type TenantAddon struct {
	ID             uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID        `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_tenant_addon"`
	AddonID        uuid.UUID        `json:"addon_id" gorm:"type:uuid;not null;uniqueIndex:idx_tenant_addon;index"`
	Quantity       int              `json:"quantity" gorm:"not null"`
	StartedAt      time.Time        `json:"started_at" gorm:"not null"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty" gorm:"index"`
	IsActive       bool             `json:"is_active" gorm:"not null;index"`
	CustomPrice    *decimal.Decimal `json:"custom_price,omitempty" gorm:"type:decimal(12,2)"`
	CustomCurrency *string          `json:"custom_currency,omitempty" gorm:"size:3"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`

	Addon *Addon `json:"addon,omitempty" gorm:"foreignKey:AddonID"`
}

func (TenantAddon) TableName() string {
	return "tenant_addons"
}

func (t *TenantAddon) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsActiveAt reports whether the assignment counts at now, for billing and
// feature gating alike. A nil expiry never lapses.
func (t *TenantAddon) IsActiveAt(now time.Time) bool {
	return t.IsActive && (t.ExpiresAt == nil || t.ExpiresAt.After(now))
}

// EffectivePrice returns the custom price when set, else addon price x quantity
func (t *TenantAddon) EffectivePrice() (decimal.Decimal, string) {
	var currency string
	if t.Addon != nil {
		currency = t.Addon.Currency
	}
	if t.CustomCurrency != nil && *t.CustomCurrency != "" {
		currency = *t.CustomCurrency
	}
	if t.CustomPrice != nil {
		return *t.CustomPrice, currency
	}
	if t.Addon == nil {
		return decimal.Zero, currency
	}
	return t.Addon.Price.Mul(decimal.NewFromInt(int64(t.Quantity))), currency
}
