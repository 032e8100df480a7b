package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"billing-service/internal/health"
	"billing-service/internal/middleware"
	"billing-service/internal/models"
	"billing-service/internal/repository"
	"billing-service/internal/services"
)

// statusDisplay is the presentation metadata of a subscription status
type statusDisplay struct {
	Label string `json:"label"`
	Badge string `json:"badge"`
}

func subscriptionStatusDisplay(status models.SubscriptionStatus) statusDisplay {
	switch status {
	case models.SubscriptionTrialing:
		return statusDisplay{Label: "Trial", Badge: "info"}
	case models.SubscriptionActive:
		return statusDisplay{Label: "Active", Badge: "success"}
	case models.SubscriptionCanceled:
		return statusDisplay{Label: "Canceled", Badge: "warning"}
	case models.SubscriptionPastDue:
		return statusDisplay{Label: "Past Due", Badge: "danger"}
	case models.SubscriptionExpired:
		return statusDisplay{Label: "Expired", Badge: "secondary"}
	}
	return statusDisplay{Label: string(status), Badge: "secondary"}
}

// subscriptionView adds the status derived at response time
type subscriptionView struct {
	*models.Subscription
	Status        models.SubscriptionStatus `json:"status"`
	StatusDisplay statusDisplay             `json:"status_display"`
}

func newSubscriptionView(s *models.Subscription, now time.Time) subscriptionView {
	status := s.Status(now)
	return subscriptionView{
		Subscription:  s,
		Status:        status,
		StatusDisplay: subscriptionStatusDisplay(status),
	}
}

// SubscriptionHandler handles subscription administration
type SubscriptionHandler struct {
	subscriptions *services.SubscriptionService
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptions *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// ListSubscriptions lists subscriptions filtered by tenant and derived status
// GET /api/v1/subscriptions?tenant_id=&status= (or X-Tenant-ID)
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	tenantID, ok := tenantScope(c)
	if !ok {
		return
	}

	filters := repository.SubscriptionFilters{TenantID: tenantID, Pagination: pagination(c)}
	if raw := c.Query("status"); raw != "" {
		status, valid := models.ParseSubscriptionStatus(raw)
		if !valid {
			ValidationErrorResponse(c, map[string]string{"status": "must be one of trialing active canceled past_due expired"})
			return
		}
		filters.Status = &status
	}

	items, total, err := h.subscriptions.List(c.Request.Context(), filters)
	if err != nil {
		handleServiceError(c, "Failed to list subscriptions", err)
		return
	}

	now := h.subscriptions.Now()
	views := make([]subscriptionView, len(items))
	for i := range items {
		views[i] = newSubscriptionView(&items[i], now)
	}

	ListResponse(c, "Subscriptions retrieved successfully", views, total, filters.Pagination)
}

// GetSubscription GET /api/v1/subscriptions/:id
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptions.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, "Failed to get subscription", err)
		return
	}
	if sub == nil {
		ErrorResponse(c, http.StatusNotFound, "Subscription not found", nil)
		return
	}

	SuccessResponse(c, http.StatusOK, "Subscription retrieved successfully", newSubscriptionView(sub, h.subscriptions.Now()))
}

type subscribeRequest struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	PlanPriceID uuid.UUID `json:"plan_price_id" binding:"required"`
}

// Subscribe POST /api/v1/subscriptions
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if !bindJSON(c, &req) || !requireTenant(c, &req.TenantID) {
		return
	}

	sub, err := h.subscriptions.Subscribe(c.Request.Context(), req.TenantID, req.PlanPriceID, middleware.Actor(c))
	health.RecordOperation("subscribe", err)
	if err != nil {
		handleServiceError(c, "Failed to create subscription", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "Subscription created successfully", newSubscriptionView(sub, h.subscriptions.Now()))
}

type cancelSubscriptionRequest struct {
	Immediately bool `json:"immediately"`
}

// CancelSubscription POST /api/v1/subscriptions/:id/cancel
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req cancelSubscriptionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	sub, err := h.subscriptions.Cancel(c.Request.Context(), id, req.Immediately, middleware.Actor(c))
	health.RecordOperation("cancel_subscription", err)
	if err != nil {
		handleServiceError(c, "Failed to cancel subscription", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Subscription canceled successfully", newSubscriptionView(sub, h.subscriptions.Now()))
}

// ResumeSubscription POST /api/v1/subscriptions/:id/resume
func (h *SubscriptionHandler) ResumeSubscription(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptions.Resume(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to resume subscription", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Subscription resumed successfully", newSubscriptionView(sub, h.subscriptions.Now()))
}

type changePlanRequest struct {
	PlanPriceID uuid.UUID `json:"plan_price_id" binding:"required"`
}

// ChangePlan POST /api/v1/subscriptions/:id/change-plan
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req changePlanRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.subscriptions.ChangePlan(c.Request.Context(), id, req.PlanPriceID, middleware.Actor(c))
	health.RecordOperation("change_plan", err)
	if err != nil {
		handleServiceError(c, "Failed to change plan", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Plan change applied successfully", gin.H{
		"subscription": newSubscriptionView(result.Subscription, h.subscriptions.Now()),
		"direction":    result.Direction,
		"behavior":     result.Behavior,
		"scheduled":    result.Scheduled,
		"effective_at": result.EffectiveAt,
		"credit":       result.Credit,
		"amount_due":   result.AmountDue,
	})
}
