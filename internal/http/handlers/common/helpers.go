package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tailorlink/tailorlink-backend/internal/http/middleware"
	"github.com/tailorlink/tailorlink-backend/internal/logger"
	"github.com/tailorlink/tailorlink-backend/internal/pkg/apperror"
)

var (
	ErrUserNotFound = errors.New("user not found in request context")
	ErrInvalidUUID  = errors.New("invalid UUID format")
)

// ErrorBody is the error half of the API envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope every failed request returns.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// CurrentUserID extracts the authenticated user ID set by AuthMiddleware.
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, ErrUserNotFound
	}
	userID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}
	return userID, nil
}

// CurrentUserRole extracts the authenticated user's role.
func CurrentUserRole(c *gin.Context) (string, error) {
	raw, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return "", ErrUserNotFound
	}
	role, ok := raw.(string)
	if !ok {
		return "", ErrUserNotFound
	}
	return role, nil
}

// ParseUUIDParam parses a UUID URL parameter.
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, error) {
	param := c.Param(paramName)
	if param == "" {
		return uuid.Nil, fmt.Errorf("missing %s parameter", paramName)
	}
	parsed, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}
	return parsed, nil
}

// RespondError sends the standard error envelope.
func RespondError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// RespondValidation sends a 400 VALIDATION_ERROR.
func RespondValidation(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, string(apperror.ErrCodeValidation), message)
}

// RespondUnauthorized sends a 401.
func RespondUnauthorized(c *gin.Context) {
	RespondError(c, http.StatusUnauthorized, string(apperror.ErrCodeUnauthorized), "authorization required")
}

// RespondAppError maps a service error onto the envelope. Unknown errors are
// masked as INTERNAL_ERROR and logged with the request path.
func RespondAppError(c *gin.Context, err error) {
	appErr := apperror.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logRequestError(c, err)
	}
	RespondError(c, appErr.HTTPStatus, string(appErr.Code), appErr.Message)
}

func logRequestError(c *gin.Context, err error) {
	if logger.Log == nil {
		return
	}
	logger.Log.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}).WithError(err).Error("request failed")
}
