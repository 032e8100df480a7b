package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus is the settlement state of a payment
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCanceled  PaymentStatus = "canceled"
)

// IsValid reports whether s is a known payment status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded, PaymentCanceled:
		return true
	}
	return false
}

// Payment records a charge against a tenant subscription. Payments are never deleted.
type Payment struct {
	ID               uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID       `json:"tenant_id" gorm:"type:uuid;not null;index"`
	SubscriptionID   *uuid.UUID      `json:"subscription_id,omitempty" gorm:"type:uuid;index"`
	Status           PaymentStatus   `json:"status" gorm:"size:20;not null;index"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency         string          `json:"currency" gorm:"size:3;not null"`
	GatewayReference string          `json:"gateway_reference,omitempty" gorm:"size:255;index"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	Invoiced         bool            `json:"invoiced" gorm:"not null"`
	InvoicedAt       *time.Time      `json:"invoiced_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PaymentPending
	}
	return nil
}
