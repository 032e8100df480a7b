package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"billing-service/internal/middleware"
	"billing-service/internal/models"
	"billing-service/internal/repository"
	"billing-service/internal/services"
)

// PaymentHandler exposes payment administration. Payments cannot be deleted.
type PaymentHandler struct {
	payments *services.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// ListPayments GET /api/v1/payments?tenant_id=&subscription_id=&status=&invoiced=
// The tenant may also come from X-Tenant-ID.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	tenantID, ok := tenantScope(c)
	if !ok {
		return
	}
	subscriptionID, ok := parseUUIDQuery(c, "subscription_id")
	if !ok {
		return
	}

	filters := repository.PaymentFilters{
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		Pagination:     pagination(c),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.PaymentStatus(raw)
		if !status.IsValid() {
			ValidationErrorResponse(c, map[string]string{"status": "must be one of pending completed failed refunded canceled"})
			return
		}
		filters.Status = &status
	}
	switch c.Query("invoiced") {
	case "true":
		invoiced := true
		filters.Invoiced = &invoiced
	case "false":
		invoiced := false
		filters.Invoiced = &invoiced
	}

	payments, total, err := h.payments.List(c.Request.Context(), filters)
	if err != nil {
		handleServiceError(c, "Failed to list payments", err)
		return
	}

	ListResponse(c, "Payments retrieved successfully", payments, total, filters.Pagination)
}

// GetPayment GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, "Failed to get payment", err)
		return
	}
	if payment == nil {
		ErrorResponse(c, http.StatusNotFound, "Payment not found", nil)
		return
	}

	SuccessResponse(c, http.StatusOK, "Payment retrieved successfully", payment)
}

// RecordPayment POST /api/v1/payments
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	var req services.RecordPaymentRequest
	if !bindJSON(c, &req) || !requireTenant(c, &req.TenantID) {
		return
	}

	payment, err := h.payments.Record(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, "Failed to record payment", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "Payment recorded successfully", payment)
}

type paymentStatusRequest struct {
	Status models.PaymentStatus `json:"status" binding:"required"`
}

// UpdateStatus PUT /api/v1/payments/:id/status
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req paymentStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := h.payments.UpdateStatus(c.Request.Context(), id, req.Status, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to update payment status", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Payment status updated successfully", payment)
}

// MarkInvoiced POST /api/v1/payments/:id/invoice
func (h *PaymentHandler) MarkInvoiced(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.MarkInvoiced(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to mark payment invoiced", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Payment marked invoiced", payment)
}
