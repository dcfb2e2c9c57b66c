package errors

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/coursevault/internal/logger"
)

// AppError represents a structured error with HTTP context
type AppError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ToGinResponse sends the error as a standardized JSON response
func (e *AppError) ToGinResponse(c *gin.Context) {
	statusCode := e.HTTPStatus
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	response := gin.H{
		"error": e.Message,
		"code":  e.Code,
	}

	if len(e.Context) > 0 {
		response["details"] = e.Context
	}

	if statusCode >= http.StatusInternalServerError {
		logger.Error("HTTP error response",
			"status", statusCode,
			"code", e.Code,
			"message", e.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method)
	}

	c.AbortWithStatusJSON(statusCode, response)
}

// Common error constructors
func NewValidationError(message string, field string) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]interface{}{"field": field},
	}
}

func NewNotFoundError(resource string, id string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]interface{}{"resource": resource, "id": id},
	}
}

func NewConflictError(message string, cause error) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Cause:      cause,
	}
}

func NewUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Code:       "UNAVAILABLE",
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewDatabaseError(operation string, cause error) *AppError {
	return &AppError{
		Code:       "DATABASE_ERROR",
		Message:    "Database operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Context:    map[string]interface{}{"operation": operation},
		Cause:      cause,
	}
}

// HTTP helpers to eliminate duplicate error handling

// HandleValidationError sends a validation error response
func HandleValidationError(c *gin.Context, message string, field string) {
	NewValidationError(message, field).ToGinResponse(c)
}

// HandleNotFound sends a not found error response
func HandleNotFound(c *gin.Context, resource string, id string) {
	NewNotFoundError(resource, id).ToGinResponse(c)
}

// HandleConflict sends a conflict error response
func HandleConflict(c *gin.Context, message string, err error) {
	NewConflictError(message, err).ToGinResponse(c)
}

// HandleInternalError sends an internal server error response
func HandleInternalError(c *gin.Context, message string, err error) {
	NewInternalError(message, err).ToGinResponse(c)
}

// HandleDatabaseError sends a database error response
func HandleDatabaseError(c *gin.Context, operation string, err error) {
	NewDatabaseError(operation, err).ToGinResponse(c)
}

// ParseIDParam reads a positive numeric path parameter
func ParseIDParam(c *gin.Context, paramName string) (uint, bool) {
	raw := c.Param(paramName)
	if raw == "" {
		HandleValidationError(c, "Missing "+paramName, paramName)
		return 0, false
	}

	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		HandleValidationError(c, "Invalid "+paramName+" format", paramName)
		return 0, false
	}

	return uint(id), true
}
