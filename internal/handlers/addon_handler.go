package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"billing-service/internal/health"
	"billing-service/internal/middleware"
	"billing-service/internal/repository"
	"billing-service/internal/services"
)

// AddonHandler handles the addon catalogue, tenant assignments and feature gating
type AddonHandler struct {
	addons       *services.AddonService
	entitlements *services.EntitlementService
}

// NewAddonHandler creates a new addon handler
func NewAddonHandler(addons *services.AddonService, entitlements *services.EntitlementService) *AddonHandler {
	return &AddonHandler{addons: addons, entitlements: entitlements}
}

// ListAddons lists catalogue addons
// GET /api/v1/addons?feature_id=&active=&public=
func (h *AddonHandler) ListAddons(c *gin.Context) {
	featureID, ok := parseUUIDQuery(c, "feature_id")
	if !ok {
		return
	}

	filters := repository.AddonFilters{
		FeatureID:  featureID,
		ActiveOnly: c.Query("active") == "true",
		PublicOnly: c.Query("public") == "true",
		Pagination: pagination(c),
	}

	addons, total, err := h.addons.ListAddons(c.Request.Context(), filters)
	if err != nil {
		handleServiceError(c, "Failed to list addons", err)
		return
	}

	ListResponse(c, "Addons retrieved successfully", addons, total, filters.Pagination)
}

// GetAddon returns a catalogue addon
// GET /api/v1/addons/:id
func (h *AddonHandler) GetAddon(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	addon, err := h.addons.GetAddon(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, "Failed to get addon", err)
		return
	}
	if addon == nil {
		ErrorResponse(c, http.StatusNotFound, "Addon not found", nil)
		return
	}

	SuccessResponse(c, http.StatusOK, "Addon retrieved successfully", addon)
}

// CreateAddon adds an addon to the catalogue
// POST /api/v1/addons
func (h *AddonHandler) CreateAddon(c *gin.Context) {
	var req services.AddonRequest
	if !bindJSON(c, &req) {
		return
	}

	addon, err := h.addons.CreateAddon(c.Request.Context(), req, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to create addon", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "Addon created successfully", addon)
}

// UpdateAddon replaces a catalogue addon
// PUT /api/v1/addons/:id
func (h *AddonHandler) UpdateAddon(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.AddonRequest
	if !bindJSON(c, &req) {
		return
	}

	addon, err := h.addons.UpdateAddon(c.Request.Context(), id, req, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to update addon", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Addon updated successfully", addon)
}

// DeleteAddon removes an addon from the catalogue
// DELETE /api/v1/addons/:id
func (h *AddonHandler) DeleteAddon(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.addons.DeleteAddon(c.Request.Context(), id, middleware.Actor(c)); err != nil {
		handleServiceError(c, "Failed to delete addon", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Addon deleted successfully", nil)
}

// ListTenantAddons lists a tenant's addons. all=true includes inactive and expired rows.
// GET /api/v1/tenants/:id/addons
func (h *AddonHandler) ListTenantAddons(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	list := h.addons.ActiveAddons
	if c.Query("all") == "true" {
		list = h.addons.TenantAddons
	}

	addons, err := list(c.Request.Context(), tenantID)
	if err != nil {
		handleServiceError(c, "Failed to list tenant addons", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant addons retrieved successfully", addons)
}

type assignAddonRequest struct {
	AddonID  uuid.UUID               `json:"addon_id" binding:"required"`
	Quantity int                     `json:"quantity"`
	Pricing  *services.CustomPricing `json:"pricing"`
}

// AssignAddon gives a tenant an addon, replacing an existing assignment
// POST /api/v1/tenants/:id/addons
func (h *AddonHandler) AssignAddon(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req assignAddonRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	assignment, err := h.addons.Assign(c.Request.Context(), tenantID, req.AddonID, req.Quantity, req.Pricing, middleware.Actor(c))
	health.RecordOperation("assign_addon", err)
	if err != nil {
		handleServiceError(c, "Failed to assign addon", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Addon assigned successfully", assignment)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateQuantity changes the quantity of an assignment
// PUT /api/v1/tenant-addons/:id/quantity
func (h *AddonHandler) UpdateQuantity(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req quantityRequest
	if !bindJSON(c, &req) {
		return
	}

	assignment, err := h.addons.UpdateQuantity(c.Request.Context(), id, req.Quantity, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to update quantity", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Quantity updated successfully", assignment)
}

type extendRequest struct {
	Days int `json:"days"`
}

// ExtendAddon pushes an assignment's expiry forward
// POST /api/v1/tenant-addons/:id/extend
func (h *AddonHandler) ExtendAddon(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req extendRequest
	if !bindJSON(c, &req) {
		return
	}

	assignment, err := h.addons.Extend(c.Request.Context(), id, req.Days, middleware.Actor(c))
	health.RecordOperation("extend_addon", err)
	if err != nil {
		handleServiceError(c, "Failed to extend addon", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Addon extended successfully", assignment)
}

// CancelAddon deactivates an active assignment
// POST /api/v1/tenants/:id/addons/:addonId/cancel
func (h *AddonHandler) CancelAddon(c *gin.Context) {
	h.endAssignment(c, h.addons.Cancel, "cancel_addon", "Addon canceled successfully")
}

// RemoveAddon deletes an assignment
// DELETE /api/v1/tenants/:id/addons/:addonId
func (h *AddonHandler) RemoveAddon(c *gin.Context) {
	h.endAssignment(c, h.addons.Remove, "remove_addon", "Addon removed successfully")
}

type assignmentEnder func(ctx context.Context, tenantID, addonID uuid.UUID, actor services.Actor) (bool, error)

func (h *AddonHandler) endAssignment(c *gin.Context, end assignmentEnder, operation, message string) {
	tenantID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	addonID, ok := parseUUIDParam(c, "addonId")
	if !ok {
		return
	}

	done, err := end(c.Request.Context(), tenantID, addonID, middleware.Actor(c))
	health.RecordOperation(operation, err)
	if err != nil {
		handleServiceError(c, "Failed to update tenant addon", err)
		return
	}
	if !done {
		ErrorResponse(c, http.StatusNotFound, "Tenant addon not found", nil)
		return
	}

	SuccessResponse(c, http.StatusOK, message, nil)
}

// FeatureLimit returns the effective limit of a feature for a tenant
// GET /api/v1/tenants/:id/features/:featureId/limit
func (h *AddonHandler) FeatureLimit(c *gin.Context) {
	tenantID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	featureID, ok := parseUUIDParam(c, "featureId")
	if !ok {
		return
	}

	limit, err := h.entitlements.FeatureLimit(c.Request.Context(), tenantID, featureID)
	if err != nil {
		handleServiceError(c, "Failed to compute feature limit", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Feature limit computed successfully", limit)
}
