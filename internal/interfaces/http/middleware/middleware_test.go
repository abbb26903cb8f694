package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnihub/backend/internal/infrastructure/auth"
	"github.com/omnihub/backend/internal/infrastructure/config"
	"github.com/omnihub/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(""))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetRequestID(c))
	})

	t.Run("generates when absent", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/", nil)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), w.Body.String())
	})

	t.Run("propagates inbound id", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/", map[string]string{middleware.RequestIDHeader: "req-42"})
		assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))
	})
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(middleware.BodyLimit(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is definitely longer than eight bytes"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"https://app.example.com"},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       time.Hour,
	}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("allowed origin gets headers", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/", map[string]string{"Origin": "https://app.example.com"})
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin gets nothing", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/", map[string]string{"Origin": "https://evil.example.com"})
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		w := perform(r, http.MethodOptions, "/", map[string]string{"Origin": "https://app.example.com"})
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestJWTAuth(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{
		Secret:          "0123456789abcdef0123456789abcdef",
		TokenExpiration: time.Hour,
		Issuer:          "omnihub",
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.JWTAuth(svc))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetJWTUserID(c))
	})

	t.Run("valid token", func(t *testing.T) {
		token, _, err := svc.GenerateToken("user-7")
		require.NoError(t, err)

		w := perform(r, http.MethodGet, "/whoami", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-7", w.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/whoami", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/whoami", map[string]string{"Authorization": "Basic abc"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/whoami", map[string]string{"Authorization": "Bearer not.a.token"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestIntakeLimiter(t *testing.T) {
	limiter := middleware.NewIntakeLimiter(2, time.Minute)

	assert.True(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	// Keys are independent.
	assert.True(t, limiter.Allow("b"))

	r := gin.New()
	r.Use(middleware.RateLimitByClientIP(middleware.NewIntakeLimiter(1, time.Minute)))
	r.POST("/hook", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodPost, "/hook", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = perform(r, http.MethodPost, "/hook", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
