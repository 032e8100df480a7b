package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"billing-service/internal/middleware"
	"billing-service/internal/repository"
	"billing-service/internal/services"
)

// ErrorResponse sends a standardized error response.
// Internal errors are logged but not exposed to clients.
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	requestID := getRequestID(c)

	if err != nil {
		entry := logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"status":     statusCode,
		}).WithError(err)
		if statusCode >= http.StatusInternalServerError {
			entry.Error(message)
		} else {
			entry.Debug(message)
		}
	}

	response := gin.H{
		"success":    false,
		"message":    message,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	if gin.Mode() == gin.DebugMode && err != nil {
		response["error_details"] = err.Error()
	}

	c.JSON(statusCode, response)
}

// SuccessResponse sends a standardized success response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := gin.H{
		"success":    true,
		"message":    message,
		"request_id": getRequestID(c),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	if data != nil {
		response["data"] = data
	}

	c.JSON(statusCode, response)
}

// ListResponse sends a page of results with its pagination block
func ListResponse(c *gin.Context, message string, data interface{}, total int64, page repository.Pagination) {
	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    message,
		"request_id": getRequestID(c),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"data":       data,
		"pagination": gin.H{
			"page":  page.Page,
			"limit": page.Limit,
			"total": total,
		},
	})
}

// ValidationErrorResponse sends the per-field failures
func ValidationErrorResponse(c *gin.Context, errs map[string]string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"success":    false,
		"message":    "Validation failed",
		"errors":     errs,
		"request_id": getRequestID(c),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// handleServiceError maps the service error kinds onto HTTP statuses
func handleServiceError(c *gin.Context, message string, err error) {
	if verrs, ok := services.AsValidationErrors(err); ok {
		ValidationErrorResponse(c, verrs.Fields())
		return
	}
	if denied, ok := services.IsPermissionDenied(err); ok {
		ErrorResponse(c, http.StatusForbidden, denied.Error(), err)
		return
	}
	if notFound, ok := services.IsNotFound(err); ok {
		ErrorResponse(c, http.StatusNotFound, notFound.Error(), err)
		return
	}
	if conflict, ok := services.IsConflictError(err); ok {
		ErrorResponse(c, http.StatusConflict, conflict.Error(), err)
		return
	}
	if errors.Is(err, services.ErrTenantCodeExhausted) {
		ErrorResponse(c, http.StatusServiceUnavailable, "Could not allocate a tenant code, please retry", err)
		return
	}
	ErrorResponse(c, http.StatusInternalServerError, message, err)
}

func getRequestID(c *gin.Context) string {
	if requestID := c.GetString(middleware.RequestIDKey); requestID != "" {
		return requestID
	}
	return c.GetHeader("X-Request-ID")
}

// parseUUIDParam reads a path parameter as a UUID, answering 400 on failure
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

// parseUUIDQuery reads an optional UUID query parameter
func parseUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid "+name, err)
		return nil, false
	}
	return &id, true
}

// tenantScope returns the tenant set by middleware.TenantExtraction, nil
// when the request is not scoped to one
func tenantScope(c *gin.Context) (*uuid.UUID, bool) {
	raw := middleware.GetTenantID(c)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid tenant_id", err)
		return nil, false
	}
	return &id, true
}

// requireTenant fills an unset tenant id from the request scope, answering
// 422 when there is none
func requireTenant(c *gin.Context, tenantID *uuid.UUID) bool {
	if *tenantID != uuid.Nil {
		return true
	}
	scope, ok := tenantScope(c)
	if !ok {
		return false
	}
	if scope == nil {
		ValidationErrorResponse(c, map[string]string{"tenant_id": "is required"})
		return false
	}
	*tenantID = *scope
	return true
}

func pagination(c *gin.Context) repository.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return repository.Pagination{Page: page, Limit: limit}
}

// requireUser returns the authenticated user or answers 401
func requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
		return false
	}
	return true
}
