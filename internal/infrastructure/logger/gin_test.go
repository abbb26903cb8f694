package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func findAccessLog(t *testing.T, recorded *observer.ObservedLogs) *observer.LoggedEntry {
	t.Helper()
	logs := recorded.FilterMessage("Request completed").All()
	require.NotEmpty(t, logs, "access log entry should exist")
	return &logs[0]
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(zapcore.InfoLevel)
	zapLogger := zap.New(core)

	router := gin.New()
	router.Use(GinMiddleware(zapLogger))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	entry := findAccessLog(t, recorded)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)

	fieldMap := make(map[string]any)
	for _, field := range entry.Context {
		fieldMap[field.Key] = field
	}
	assert.Contains(t, fieldMap, "status")
	assert.Contains(t, fieldMap, "latency")
	assert.Contains(t, fieldMap, "client_ip")
	assert.Contains(t, fieldMap, "method")
	assert.Contains(t, fieldMap, "path")
}

func TestGinMiddleware_WithRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(zapcore.InfoLevel)
	zapLogger := zap.New(core)

	router := gin.New()
	// RequestID middleware runs first in the hub's chain.
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "test-req-123")
		c.Next()
	})
	router.Use(GinMiddleware(zapLogger))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	entry := findAccessLog(t, recorded)
	hasRequestID := false
	for _, field := range entry.Context {
		if field.Key == "request_id" {
			hasRequestID = true
			assert.Equal(t, "test-req-123", field.String)
		}
	}
	assert.True(t, hasRequestID, "request_id should be in log fields")
}

func TestGinMiddleware_PlatformParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(zapcore.InfoLevel)
	zapLogger := zap.New(core)

	router := gin.New()
	router.Use(GinMiddleware(zapLogger))
	router.POST("/webhooks/:platform/:userID", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"verified": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/webhooks/telegram/u1", nil)
	router.ServeHTTP(w, req)

	entry := findAccessLog(t, recorded)
	hasPlatform := false
	for _, field := range entry.Context {
		if field.Key == "platform" {
			hasPlatform = true
			assert.Equal(t, "telegram", field.String)
		}
	}
	assert.True(t, hasPlatform, "webhook intake logs carry the platform")
}

func TestGinMiddleware_AuthenticatedUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(zapcore.InfoLevel)
	zapLogger := zap.New(core)

	router := gin.New()
	router.Use(GinMiddleware(zapLogger))
	// Simulates JWTAuth having resolved the caller.
	router.Use(func(c *gin.Context) {
		c.Set("jwt_user_id", "u42")
		c.Next()
	})
	router.GET("/api/v1/integrations", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/integrations", nil)
	router.ServeHTTP(w, req)

	entry := findAccessLog(t, recorded)
	hasUserID := false
	for _, field := range entry.Context {
		if field.Key == "user_id" {
			hasUserID = true
			assert.Equal(t, "u42", field.String)
		}
	}
	assert.True(t, hasUserID, "management API logs carry the authenticated user")
}

func TestGinMiddleware_ErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(zapcore.WarnLevel)
	zapLogger := zap.New(core)

	router := gin.New()
	router.Use(GinMiddleware(zapLogger))
	router.GET("/error", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/error", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 4xx responses are logged as warnings.
	entry := findAccessLog(t, recorded)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
}

func TestGinMiddleware_ServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(zapcore.ErrorLevel)
	zapLogger := zap.New(core)

	router := gin.New()
	router.Use(GinMiddleware(zapLogger))
	router.GET("/error", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/error", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// 5xx responses are logged as errors.
	entry := findAccessLog(t, recorded)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
}

func TestGinMiddleware_WithQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(zapcore.InfoLevel)
	zapLogger := zap.New(core)

	router := gin.New()
	router.Use(GinMiddleware(zapLogger))
	router.GET("/api/v1/audit", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/audit?action=integration.connect&limit=10", nil)
	router.ServeHTTP(w, req)

	entry := findAccessLog(t, recorded)
	hasQuery := false
	for _, field := range entry.Context {
		if field.Key == "query" {
			hasQuery = true
			assert.Contains(t, field.String, "action=integration.connect")
		}
	}
	assert.True(t, hasQuery, "query should be in log fields")
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(zapcore.ErrorLevel)
	zapLogger := zap.New(core)

	router := gin.New()
	router.Use(Recovery(zapLogger))
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/panic", nil)

	assert.NotPanics(t, func() {
		router.ServeHTTP(w, req)
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	logs := recorded.All()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[0].Message, "Panic recovered")
}

func TestGetGinLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, _ := observer.New(zapcore.InfoLevel)
	zapLogger := zap.New(core)

	var retrievedLogger *zap.Logger

	router := gin.New()
	router.Use(GinMiddleware(zapLogger))
	router.GET("/health", func(c *gin.Context) {
		retrievedLogger = GetGinLogger(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.NotNil(t, retrievedLogger)
}

func TestGetGinLogger_NotSet(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var retrievedLogger *zap.Logger

	router := gin.New()
	router.GET("/health", func(c *gin.Context) {
		retrievedLogger = GetGinLogger(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	// A request outside the middleware still gets a usable no-op logger.
	require.NotNil(t, retrievedLogger)
	assert.NotPanics(t, func() {
		retrievedLogger.Info("test")
	})
}
