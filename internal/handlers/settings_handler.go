package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"billing-service/internal/health"
	"billing-service/internal/middleware"
	"billing-service/internal/services"
)

// SettingsHandler handles application settings
type SettingsHandler struct {
	settings *services.SettingsService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetAll GET /api/v1/settings
func (h *SettingsHandler) GetAll(c *gin.Context) {
	values, err := h.settings.All(c.Request.Context())
	if err != nil {
		handleServiceError(c, "Failed to load settings", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Settings retrieved successfully", values)
}

// GetPublic GET /api/v1/settings/public
func (h *SettingsHandler) GetPublic(c *gin.Context) {
	values, err := h.settings.GetAllPublic(c.Request.Context())
	if err != nil {
		handleServiceError(c, "Failed to load settings", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Public settings retrieved successfully", values)
}

// GetKey GET /api/v1/settings/:key
func (h *SettingsHandler) GetKey(c *gin.Context) {
	key := c.Param("key")
	values, err := h.settings.All(c.Request.Context())
	if err != nil {
		handleServiceError(c, "Failed to load settings", err)
		return
	}

	value, ok := values[key]
	if !ok {
		ErrorResponse(c, http.StatusNotFound, "Setting not found", nil)
		return
	}

	SuccessResponse(c, http.StatusOK, "Setting retrieved successfully", gin.H{"key": key, "value": value})
}

// UpdateMany PUT /api/v1/settings with a JSON object of key/value pairs
func (h *SettingsHandler) UpdateMany(c *gin.Context) {
	var values map[string]interface{}
	if !bindJSON(c, &values) {
		return
	}

	err := h.settings.UpdateMany(c.Request.Context(), values, middleware.Actor(c))
	health.RecordOperation("update_settings", err)
	if err != nil {
		handleServiceError(c, "Failed to update settings", err)
		return
	}

	SuccessResponse(c, http.StatusOK, "Settings updated successfully", nil)
}

// ClearCache DELETE /api/v1/settings/cache
func (h *SettingsHandler) ClearCache(c *gin.Context) {
	if err := h.settings.ClearCache(c.Request.Context()); err != nil {
		handleServiceError(c, "Failed to clear settings cache", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Settings cache cleared", nil)
}
