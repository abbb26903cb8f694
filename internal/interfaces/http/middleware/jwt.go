package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/omnihub/backend/internal/infrastructure/auth"
	"github.com/omnihub/backend/internal/interfaces/http/dto"
)

// JWT context keys.
const (
	JWTClaimsKey = "jwt_claims"
	JWTUserIDKey = "jwt_user_id"

	authHeaderKey = "Authorization"
	bearerPrefix  = "Bearer "
)

// JWTAuth validates the bearer token on every request and stores the
// claims in the gin context.
func JWTAuth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(authHeaderKey)
		if header == "" {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}
		token := strings.TrimPrefix(header, bearerPrefix)

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			code := dto.ErrCodeUnauthorized
			if errors.Is(err, auth.ErrExpiredToken) {
				code = dto.ErrCodeTokenExpired
			}
			abortUnauthorized(c, code, "Token validation failed")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Next()
	}
}

// GetJWTUserID returns the authenticated user ID, empty when the request
// did not pass JWTAuth.
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
