// Package handler holds the HTTP handlers for the hub's management API and
// the public webhook intake.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omnihub/backend/internal/domain/integration"
	"github.com/omnihub/backend/internal/domain/security"
	"github.com/omnihub/backend/internal/interfaces/http/dto"
	"github.com/omnihub/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// Success sends a 200 response.
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a 200 response with pagination meta.
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, limit, offset int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, limit, offset))
}

// Created sends a 201 response.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response, deriving the status from the error code.
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code),
		dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 response.
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 response.
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeNotFound, message)
}

// DomainError maps a dispatch or security domain error onto the wire.
func (h *BaseHandler) DomainError(c *gin.Context, err error) {
	code := dto.ErrCodeInternal
	switch {
	case errors.Is(err, integration.ErrUnknownPlatform),
		errors.Is(err, integration.ErrMissingCredentials):
		code = dto.ErrCodeValidation
	case errors.Is(err, integration.ErrAuthenticationFailed):
		code = dto.ErrCodeUpstreamAuth
	case errors.Is(err, integration.ErrConnectThrottled):
		code = dto.ErrCodeConnectThrottled
	case errors.Is(err, integration.ErrRateLimited),
		errors.Is(err, integration.ErrAdmissionTimeout):
		code = dto.ErrCodeRateLimited
	case errors.Is(err, integration.ErrInvalidSignature),
		errors.Is(err, security.ErrSignatureMismatch),
		errors.Is(err, security.ErrSignatureMissing):
		code = dto.ErrCodeInvalidSignature
	case errors.Is(err, integration.ErrNoAdapters):
		code = dto.ErrCodeNoAdapters
	case errors.Is(err, integration.ErrAdapterNotFound),
		errors.Is(err, security.ErrCredentialNotFound):
		code = dto.ErrCodeNotFound
	case errors.Is(err, integration.ErrTransientNetwork),
		errors.Is(err, integration.ErrFatalClient):
		code = dto.ErrCodeUpstreamFailed
	}
	h.Error(c, code, err.Error())
}

// userID returns the authenticated user, aborting with 401 when missing.
func userID(c *gin.Context) (string, bool) {
	id := middleware.GetJWTUserID(c)
	if id == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized,
				"Authentication required", middleware.GetRequestID(c)))
		return "", false
	}
	return id, true
}
