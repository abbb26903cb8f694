// Package router assembles the gin engine: middleware chain, public
// webhook intake and the authenticated management API.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/omnihub/backend/internal/infrastructure/auth"
	"github.com/omnihub/backend/internal/infrastructure/config"
	"github.com/omnihub/backend/internal/infrastructure/logger"
	"github.com/omnihub/backend/internal/interfaces/http/handler"
	"github.com/omnihub/backend/internal/interfaces/http/middleware"
)

// Handlers collects everything the router mounts.
type Handlers struct {
	Health      *handler.HealthHandler
	Webhook     *handler.WebhookHandler
	Integration *handler.IntegrationHandler
	Audit       *handler.AuditHandler
	Auth        *handler.AuthHandler // mounted only outside production
}

// Options tunes the middleware chain.
type Options struct {
	Env             string
	ServiceName     string
	MaxBodySize     int64
	TrustedProxies  []string
	CORSOrigins     []string
	TracingEnabled  bool
	WebhookRate     int           // webhook intake requests per IP per window
	WebhookRateSpan time.Duration // webhook intake window
}

func (o Options) withDefaults() Options {
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = 1 << 20
	}
	if o.WebhookRate <= 0 {
		o.WebhookRate = 300
	}
	if o.WebhookRateSpan <= 0 {
		o.WebhookRateSpan = time.Minute
	}
	return o
}

// New builds the gin engine.
func New(h Handlers, jwtService *auth.JWTService, log *zap.Logger, opts Options) (*gin.Engine, error) {
	opts = opts.withDefaults()

	if opts.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := handler.RegisterValidations(); err != nil {
		return nil, err
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.BodyLimit(opts.MaxBodySize),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: opts.ServiceName,
			Enabled:     opts.TracingEnabled,
		}),
		middleware.TraceAttributes(),
	)
	if len(opts.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowOrigins = opts.CORSOrigins
		engine.Use(middleware.CORSWithConfig(cors))
	}

	// Probes.
	engine.GET("/health", h.Health.Health)
	engine.GET("/ready", h.Health.Ready)

	// Public webhook intake, shielded by a per-IP flood cutoff. Payload
	// trust comes from signature verification, not from this limiter.
	intake := middleware.NewIntakeLimiter(opts.WebhookRate, opts.WebhookRateSpan)
	engine.POST("/webhooks/:platform/:userID",
		middleware.RateLimitByClientIP(intake), h.Webhook.Receive)

	// Management API.
	api := engine.Group("/api/v1")
	if h.Auth != nil && opts.Env != config.EnvProduction {
		api.POST("/auth/token", h.Auth.DevToken)
	}

	authed := api.Group("", middleware.JWTAuth(jwtService))
	{
		authed.POST("/integrations", h.Integration.Connect)
		authed.GET("/integrations", h.Integration.List)
		authed.GET("/integrations/status", h.Integration.StatusAll)
		authed.GET("/integrations/stats", h.Integration.Stats)
		authed.POST("/integrations/dispatch", h.Integration.Dispatch)
		authed.DELETE("/integrations/:platformID", h.Integration.Disconnect)
		authed.GET("/integrations/:platformID/status", h.Integration.Status)

		authed.GET("/audit", h.Audit.Query)
	}

	return engine, nil
}
