package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/omnihub/backend/internal/domain/security"
)

// AuditHandler serves the audit trail query API.
type AuditHandler struct {
	BaseHandler
	audits security.AuditRepository
	logger *zap.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audits security.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audits: audits, logger: logger}
}

// Query lists audit entries for the authenticated user, newest first.
// GET /api/v1/audit?platform=&action=&since=&until=&limit=&offset=
func (h *AuditHandler) Query(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	filter := security.AuditFilter{
		UserID:   uid,
		Platform: c.Query("platform"),
		Action:   security.Action(c.Query("action")),
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.BadRequest(c, "since must be RFC3339")
			return
		}
		filter.Since = t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.BadRequest(c, "until must be RFC3339")
			return
		}
		filter.Until = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.BadRequest(c, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	entries, total, err := h.audits.Query(c.Request.Context(), filter)
	if err != nil {
		h.DomainError(c, err)
		return
	}
	h.SuccessWithMeta(c, entries, total, filter.Limit, filter.Offset)
}
