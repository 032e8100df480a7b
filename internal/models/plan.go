package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Feature is a gated capability whose limit comes from plans and addons
type Feature struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Slug        string    `json:"slug" gorm:"size:100;uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Feature) TableName() string {
	return "features"
}

func (f *Feature) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// Plan groups prices and the feature values it grants
type Plan struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Slug        string    `json:"slug" gorm:"size:100;uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:text"`
	IsActive    bool      `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Prices   []PlanPrice   `json:"prices,omitempty" gorm:"foreignKey:PlanID"`
	Features []PlanFeature `json:"features,omitempty" gorm:"foreignKey:PlanID"`
}

func (Plan) TableName() string {
	return "plans"
}

func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PlanPrice is a billable price point of a plan
type PlanPrice struct {
	ID            uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	PlanID        uuid.UUID       `json:"plan_id" gorm:"type:uuid;not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency      string          `json:"currency" gorm:"size:3;not null"`
	Interval      string          `json:"interval" gorm:"size:10;not null"`
	IntervalCount int             `json:"interval_count" gorm:"not null;default:1"`
	TrialDays     int             `json:"trial_days" gorm:"not null;default:0"`
	IsActive      bool            `json:"is_active" gorm:"not null"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	Plan *Plan `json:"plan,omitempty" gorm:"foreignKey:PlanID"`
}

func (PlanPrice) TableName() string {
	return "plan_prices"
}

func (p *PlanPrice) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.IntervalCount < 1 {
		p.IntervalCount = 1
	}
	return nil
}

// PlanFeature is the base value a plan grants for a feature
type PlanFeature struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	PlanID    uuid.UUID `json:"plan_id" gorm:"type:uuid;not null;uniqueIndex:idx_plan_feature"`
	FeatureID uuid.UUID `json:"feature_id" gorm:"type:uuid;not null;uniqueIndex:idx_plan_feature"`
	Value     int64     `json:"value" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Feature *Feature `json:"feature,omitempty" gorm:"foreignKey:FeatureID"`
}

func (PlanFeature) TableName() string {
	return "plan_features"
}

func (p *PlanFeature) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
