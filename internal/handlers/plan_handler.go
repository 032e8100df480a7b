package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"billing-service/internal/services"
)

// PlanHandler handles plans, prices and features
type PlanHandler struct {
	plans *services.PlanService
}

// NewPlanHandler creates a new plan handler
func NewPlanHandler(plans *services.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// ListPlans GET /api/v1/plans?active=true
func (h *PlanHandler) ListPlans(c *gin.Context) {
	plans, err := h.plans.ListPlans(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		handleServiceError(c, "Failed to list plans", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Plans retrieved successfully", plans)
}

// GetPlan GET /api/v1/plans/:id
func (h *PlanHandler) GetPlan(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	plan, err := h.plans.GetPlan(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, "Failed to get plan", err)
		return
	}
	if plan == nil {
		ErrorResponse(c, http.StatusNotFound, "Plan not found", nil)
		return
	}
	SuccessResponse(c, http.StatusOK, "Plan retrieved successfully", plan)
}

// CreatePlan POST /api/v1/plans
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var req services.PlanRequest
	if !bindJSON(c, &req) {
		return
	}
	plan, err := h.plans.CreatePlan(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, "Failed to create plan", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "Plan created successfully", plan)
}

// UpdatePlan PUT /api/v1/plans/:id
func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req services.PlanRequest
	if !bindJSON(c, &req) {
		return
	}
	plan, err := h.plans.UpdatePlan(c.Request.Context(), id, req)
	if err != nil {
		handleServiceError(c, "Failed to update plan", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Plan updated successfully", plan)
}

// AddPrice POST /api/v1/plans/:id/prices
func (h *PlanHandler) AddPrice(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req services.PriceRequest
	if !bindJSON(c, &req) {
		return
	}
	price, err := h.plans.AddPrice(c.Request.Context(), id, req)
	if err != nil {
		handleServiceError(c, "Failed to add price", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "Price added successfully", price)
}

type planFeatureRequest struct {
	Value int64 `json:"value"`
}

// SetPlanFeature PUT /api/v1/plans/:id/features/:featureId
func (h *PlanHandler) SetPlanFeature(c *gin.Context) {
	planID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	featureID, ok := parseUUIDParam(c, "featureId")
	if !ok {
		return
	}
	var req planFeatureRequest
	if !bindJSON(c, &req) {
		return
	}
	value, err := h.plans.SetPlanFeature(c.Request.Context(), planID, featureID, req.Value)
	if err != nil {
		handleServiceError(c, "Failed to set plan feature", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Plan feature updated successfully", value)
}

// ListFeatures GET /api/v1/features
func (h *PlanHandler) ListFeatures(c *gin.Context) {
	features, err := h.plans.ListFeatures(c.Request.Context())
	if err != nil {
		handleServiceError(c, "Failed to list features", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Features retrieved successfully", features)
}

// CreateFeature POST /api/v1/features
func (h *PlanHandler) CreateFeature(c *gin.Context) {
	var req services.FeatureRequest
	if !bindJSON(c, &req) {
		return
	}
	feature, err := h.plans.CreateFeature(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, "Failed to create feature", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "Feature created successfully", feature)
}
