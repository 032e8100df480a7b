package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"billing-service/internal/models"
	"billing-service/internal/repository"
)

// RecordPaymentRequest records a charge reported by the payment gateway
type RecordPaymentRequest struct {
	TenantID         uuid.UUID            `json:"tenant_id" validate:"required"`
	SubscriptionID   *uuid.UUID           `json:"subscription_id"`
	Amount           decimal.Decimal      `json:"amount"`
	Currency         string               `json:"currency" validate:"required,len=3,uppercase"`
	Status           models.PaymentStatus `json:"status" validate:"omitempty,oneof=pending completed failed refunded canceled"`
	GatewayReference string               `json:"gateway_reference" validate:"max=255"`
}

// PaymentService exposes the payment lifecycle to administrators.
// Payments are never deleted.
type PaymentService struct {
	payments repository.PaymentRepository
	tenants  repository.TenantRepository
	currency string
	events   eventEmitter
	logger   *logrus.Entry
	now      func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	payments repository.PaymentRepository,
	tenants repository.TenantRepository,
	defaultCurrency string,
	publisher EventPublisher,
	logger *logrus.Logger,
) *PaymentService {
	entry := logger.WithField("service", "payment")
	return &PaymentService{
		payments: payments,
		tenants:  tenants,
		currency: defaultCurrency,
		events:   newEventEmitter(publisher, entry, utcNow),
		logger:   entry,
		now:      utcNow,
	}
}

// Record stores a payment. A missing currency falls back to the default.
func (s *PaymentService) Record(ctx context.Context, req RecordPaymentRequest) (*models.Payment, error) {
	if req.Currency == "" {
		req.Currency = s.currency
	}
	err := mergeValidation(validateStruct(req), appendIf(nil, !req.Amount.IsPositive(), "amount", "must be greater than 0"))
	if err != nil {
		return nil, err
	}
	tenant, err := s.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, NewNotFoundError("tenant", req.TenantID)
	}

	payment := &models.Payment{
		TenantID:         req.TenantID,
		SubscriptionID:   req.SubscriptionID,
		Status:           req.Status,
		Amount:           req.Amount,
		Currency:         req.Currency,
		GatewayReference: req.GatewayReference,
	}
	if payment.Status == models.PaymentCompleted {
		now := s.now()
		payment.PaidAt = &now
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"tenant_id":  payment.TenantID,
		"status":     payment.Status,
	}).Info("Payment recorded")
	return payment, nil
}

// Get returns a payment, or nil when missing
func (s *PaymentService) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// List returns a page of payments
func (s *PaymentService) List(ctx context.Context, filters repository.PaymentFilters) ([]models.Payment, int64, error) {
	return s.payments.List(ctx, filters)
}

// UpdateStatus moves a payment to status. Only completed payments can be
// refunded. Completing stamps paid_at once.
func (s *PaymentService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, actor Actor) (*models.Payment, error) {
	if !status.IsValid() {
		return nil, NewValidationError("status", "must be one of: pending, completed, failed, refunded, canceled")
	}

	payment, err := s.require(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == models.PaymentRefunded && payment.Status != models.PaymentCompleted {
		return nil, NewValidationError("status", "only completed payments can be refunded")
	}

	fields := map[string]interface{}{"status": status}
	if status == models.PaymentCompleted && payment.PaidAt == nil {
		now := s.now()
		fields["paid_at"] = now
		payment.PaidAt = &now
	}
	if err := s.payments.Update(ctx, id, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("payment", id)
		}
		return nil, err
	}
	previous := payment.Status
	payment.Status = status

	s.events.emit(ctx, EventPaymentStatusUpdated, actor, map[string]interface{}{
		"payment_id":      payment.ID,
		"tenant_id":       payment.TenantID,
		"previous_status": previous,
		"status":          status,
	})
	return payment, nil
}

// MarkInvoiced flags the payment as invoiced. Repeating it is a no-op.
func (s *PaymentService) MarkInvoiced(ctx context.Context, id uuid.UUID, actor Actor) (*models.Payment, error) {
	payment, err := s.require(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Invoiced {
		return payment, nil
	}

	now := s.now()
	if err := s.payments.Update(ctx, id, map[string]interface{}{
		"invoiced":    true,
		"invoiced_at": now,
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("payment", id)
		}
		return nil, err
	}
	payment.Invoiced = true
	payment.InvoicedAt = &now

	s.events.emit(ctx, EventPaymentInvoiced, actor, map[string]interface{}{
		"payment_id":  payment.ID,
		"tenant_id":   payment.TenantID,
		"invoiced_at": now,
	})
	return payment, nil
}

func (s *PaymentService) require(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, NewNotFoundError("payment", id)
	}
	return payment, nil
}
