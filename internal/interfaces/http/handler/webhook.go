package handler

import (
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	app "github.com/omnihub/backend/internal/application/integration"
	"github.com/omnihub/backend/internal/domain/integration"
	"github.com/omnihub/backend/internal/domain/security"
)

// WebhookHandler is the public webhook intake. It is unauthenticated by
// design; payload trust comes from per-connection signature verification
// inside the orchestrator.
type WebhookHandler struct {
	BaseHandler
	orch   *app.Orchestrator
	logger *zap.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(orch *app.Orchestrator, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{orch: orch, logger: logger}
}

// Receive accepts one platform callback.
// POST /webhooks/:platform/:userID
func (h *WebhookHandler) Receive(c *gin.Context) {
	platform := integration.Platform(c.Param("platform"))
	if !platform.IsValid() {
		h.NotFound(c, "Unknown platform")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Unreadable request body")
		return
	}

	// The signature travels in a platform-specific header.
	var signature string
	if scheme, err := security.SchemeFor(platform.String()); err == nil {
		signature = c.GetHeader(scheme.Header)
	}

	result, err := h.orch.HandleWebhook(c.Request.Context(), app.WebhookInput{
		Platform:  platform,
		UserID:    c.Param("userID"),
		Body:      body,
		Signature: signature,
		SourceIP:  c.ClientIP(),
	})
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, result)
}
