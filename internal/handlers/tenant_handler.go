package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"billing-service/internal/middleware"
	"billing-service/internal/models"
	"billing-service/internal/repository"
	"billing-service/internal/services"
)

// TenantHandler handles tenant provisioning and membership requests
type TenantHandler struct {
	tenants     *services.TenantService
	invitations *services.InvitationService
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenants *services.TenantService, invitations *services.InvitationService) *TenantHandler {
	return &TenantHandler{tenants: tenants, invitations: invitations}
}

// CanCreate reports whether the current user may register a tenant
// GET /api/v1/tenants/can-create
func (h *TenantHandler) CanCreate(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	allowed, err := h.tenants.CanCreate(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, "Failed to evaluate tenant policy", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant policy evaluated", gin.H{"can_create": allowed})
}

// CreateTenant registers a tenant owned by the current user
// POST /api/v1/tenants
func (h *TenantHandler) CreateTenant(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req services.CreateTenantRequest
	if !bindJSON(c, &req) {
		return
	}

	tenant, err := h.tenants.Create(c.Request.Context(), userID, req, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to create tenant", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "Tenant created successfully", tenant)
}

// GetTenant returns a tenant by id
// GET /api/v1/tenants/:id
func (h *TenantHandler) GetTenant(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	tenant, err := h.tenants.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, "Failed to get tenant", err)
		return
	}
	if tenant == nil {
		ErrorResponse(c, http.StatusNotFound, "Tenant not found", nil)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant retrieved successfully", tenant)
}

// GetTenantByCode returns a tenant by its public code
// GET /api/v1/tenants/code/:code
func (h *TenantHandler) GetTenantByCode(c *gin.Context) {
	tenant, err := h.tenants.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		handleServiceError(c, "Failed to get tenant", err)
		return
	}
	if tenant == nil {
		ErrorResponse(c, http.StatusNotFound, "Tenant not found", nil)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant retrieved successfully", tenant)
}

// ListTenants lists tenants for administrators
// GET /api/v1/tenants?status=&search=&user_id=
func (h *TenantHandler) ListTenants(c *gin.Context) {
	userID, ok := parseUUIDQuery(c, "user_id")
	if !ok {
		return
	}

	filters := repository.TenantFilters{
		Search:     c.Query("search"),
		UserID:     userID,
		Pagination: pagination(c),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.TenantStatus(raw)
		if !status.IsValid() {
			ValidationErrorResponse(c, map[string]string{"status": "must be one of active expired suspended"})
			return
		}
		filters.Status = &status
	}

	tenants, total, err := h.tenants.List(c.Request.Context(), filters)
	if err != nil {
		handleServiceError(c, "Failed to list tenants", err)
		return
	}

	ListResponse(c, "Tenants retrieved successfully", tenants, total, filters.Pagination)
}

// ListMembers returns the users attached to a tenant
// GET /api/v1/tenants/:id/members
func (h *TenantHandler) ListMembers(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	members, err := h.tenants.Members(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, "Failed to list members", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Members retrieved successfully", members)
}

type updateTenantStatusRequest struct {
	Status models.TenantStatus `json:"status" binding:"required"`
}

// UpdateStatus changes a tenant's lifecycle status
// PUT /api/v1/tenants/:id/status
func (h *TenantHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req updateTenantStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.tenants.UpdateStatus(c.Request.Context(), id, req.Status, middleware.Actor(c)); err != nil {
		handleServiceError(c, "Failed to update tenant status", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Tenant status updated successfully", gin.H{"id": id, "status": req.Status})
}

// Invite invites an email address into the tenant
// POST /api/v1/tenants/:id/invitations
func (h *TenantHandler) Invite(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.InviteRequest
	if !bindJSON(c, &req) {
		return
	}

	invitation, err := h.invitations.Invite(c.Request.Context(), id, req, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to create invitation", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "Invitation created successfully", invitation)
}

type acceptInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// AcceptInvitation joins the current user to the inviting tenant
// POST /api/v1/invitations/accept
func (h *TenantHandler) AcceptInvitation(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req acceptInvitationRequest
	if !bindJSON(c, &req) {
		return
	}

	member, err := h.invitations.AcceptByToken(c.Request.Context(), req.Token, userID, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to accept invitation", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Invitation accepted successfully", member)
}
