package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	app "github.com/omnihub/backend/internal/application/integration"
	"github.com/omnihub/backend/internal/domain/integration"
)

// IntegrationHandler serves the connection management and dispatch API.
type IntegrationHandler struct {
	BaseHandler
	orch   *app.Orchestrator
	logger *zap.Logger
}

// NewIntegrationHandler creates an IntegrationHandler.
func NewIntegrationHandler(orch *app.Orchestrator, logger *zap.Logger) *IntegrationHandler {
	return &IntegrationHandler{orch: orch, logger: logger}
}

type connectRequest struct {
	Platform   string            `json:"platform" binding:"required,platform"`
	PlatformID string            `json:"platform_id"`
	Name       string            `json:"name"`
	Secrets    map[string]string `json:"secrets" binding:"required"`
	ExpiresAt  *time.Time        `json:"expires_at"`
}

// Connect establishes a platform connection.
// POST /api/v1/integrations
func (h *IntegrationHandler) Connect(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.orch.Connect(c.Request.Context(), app.ConnectInput{
		UserID:     uid,
		Platform:   integration.Platform(req.Platform),
		PlatformID: req.PlatformID,
		Name:       req.Name,
		Secrets:    req.Secrets,
		ExpiresAt:  req.ExpiresAt,
		SourceIP:   c.ClientIP(),
	})
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Created(c, result)
}

// Disconnect tears a connection down. ?purge=true deletes the stored
// credential instead of deactivating it.
// DELETE /api/v1/integrations/:platformID
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	purge := c.Query("purge") == "true"
	found, err := h.orch.Disconnect(c.Request.Context(), uid, c.Param("platformID"), purge, c.ClientIP())
	if err != nil {
		h.DomainError(c, err)
		return
	}
	if !found {
		h.NotFound(c, "No such connection")
		return
	}
	h.NoContent(c)
}

// List returns the user's stored connections.
// GET /api/v1/integrations
func (h *IntegrationHandler) List(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	views, err := h.orch.Connections(c.Request.Context(), uid)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, views)
}

// Status probes one connection.
// GET /api/v1/integrations/:platformID/status
func (h *IntegrationHandler) Status(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	status, err := h.orch.PlatformStatus(c.Request.Context(), uid, c.Param("platformID"))
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, status)
}

// StatusAll probes every connection the user has registered.
// GET /api/v1/integrations/status
func (h *IntegrationHandler) StatusAll(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	h.Success(c, h.orch.AllStatuses(c.Request.Context(), uid))
}

type dispatchRequest struct {
	Operation string     `json:"operation" binding:"required,operation"`
	Since     *time.Time `json:"since"`
}

// Dispatch fans a sync operation out across the user's adapters.
// POST /api/v1/integrations/dispatch
func (h *IntegrationHandler) Dispatch(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	op := integration.Operation(req.Operation)
	if !op.IsValid() {
		h.BadRequest(c, "Unknown operation: "+req.Operation)
		return
	}

	result, err := h.orch.DispatchAll(c.Request.Context(), uid, op, req.Since)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.Success(c, result)
}

// Stats returns dispatch counters since process start.
// GET /api/v1/integrations/stats
func (h *IntegrationHandler) Stats(c *gin.Context) {
	if _, ok := userID(c); !ok {
		return
	}
	h.Success(c, h.orch.Stats())
}
