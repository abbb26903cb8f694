package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/omnihub/backend/internal/infrastructure/auth"
	"github.com/omnihub/backend/internal/interfaces/http/dto"
)

// AuthHandler issues development tokens. Real deployments authenticate
// against an external identity provider sharing the JWT secret; this
// endpoint exists only outside production and is not registered there.
type AuthHandler struct {
	BaseHandler
	jwt *auth.JWTService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(jwt *auth.JWTService) *AuthHandler {
	return &AuthHandler{jwt: jwt}
}

type tokenRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// DevToken mints a token for the given user ID.
// POST /api/v1/auth/token
func (h *AuthHandler) DevToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	token, expiresAt, err := h.jwt.GenerateToken(req.UserID)
	if err != nil {
		h.Error(c, dto.ErrCodeInternal, "Token generation failed")
		return
	}
	h.Success(c, gin.H{"token": token, "expires_at": expiresAt})
}
