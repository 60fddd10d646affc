package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/npcsense/audit"
	"go.uber.org/zap"
)

// JournalHandler serves the persisted transition journal.
type JournalHandler struct {
	audit  *audit.Service
	logger *zap.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(auditSvc *audit.Service, logger *zap.Logger) *JournalHandler {
	return &JournalHandler{audit: auditSvc, logger: logger}
}

// Transitions handles GET /api/journal/transitions.
// Query: zone, agent, rule, since (RFC 3339), limit.
func (h *JournalHandler) Transitions(c *gin.Context) {
	var q audit.Query
	if s := c.Query("zone"); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zone"})
			return
		}
		q.ZoneID = id
	}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		q.Since = t
	}
	q.Agent = c.Query("agent")
	q.Rule = c.Query("rule")
	q.Limit, _ = strconv.Atoi(c.Query("limit"))

	rows, err := h.audit.Transitions(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("journal query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitions": rows, "count": len(rows)})
}
