package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"billing-service/internal/middleware"
	"billing-service/internal/models"
	"billing-service/internal/repository"
	"billing-service/internal/services"
)

// UserHandler handles panel user administration
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// ListUsers GET /api/v1/users?status=&user_type=&search=
func (h *UserHandler) ListUsers(c *gin.Context) {
	filters := repository.UserFilters{
		Search:     c.Query("search"),
		Pagination: pagination(c),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.UserStatus(raw)
		filters.Status = &status
	}
	if raw := c.Query("user_type"); raw != "" {
		userType := models.UserType(raw)
		filters.UserType = &userType
	}

	users, total, err := h.users.List(c.Request.Context(), filters)
	if err != nil {
		handleServiceError(c, "Failed to list users", err)
		return
	}

	ListResponse(c, "Users retrieved successfully", users, total, filters.Pagination)
}

// GetUser GET /api/v1/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, "Failed to get user", err)
		return
	}
	if user == nil {
		ErrorResponse(c, http.StatusNotFound, "User not found", nil)
		return
	}

	SuccessResponse(c, http.StatusOK, "User retrieved successfully", user)
}

// RegisterUser POST /api/v1/users
func (h *UserHandler) RegisterUser(c *gin.Context) {
	var req services.RegisterUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.Register(c.Request.Context(), req, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to register user", err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "User registered successfully", user)
}

// UpdateProfile PUT /api/v1/users/:id
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), id, req, middleware.Actor(c))
	if err != nil {
		handleServiceError(c, "Failed to update profile", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Profile updated successfully", user)
}

// ChangePassword PUT /api/v1/users/:id/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), id, req, middleware.Actor(c)); err != nil {
		handleServiceError(c, "Failed to change password", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Password changed successfully", nil)
}

type userStatusRequest struct {
	Status models.UserStatus `json:"status" binding:"required"`
}

// UpdateStatus PUT /api/v1/users/:id/status
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req userStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.users.UpdateStatus(c.Request.Context(), id, req.Status, middleware.Actor(c)); err != nil {
		handleServiceError(c, "Failed to update user status", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "User status updated successfully", gin.H{"id": id, "status": req.Status})
}
