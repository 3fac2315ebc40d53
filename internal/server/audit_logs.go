package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	entity := strings.TrimSpace(c.Query("entity"))
	entityID := strings.TrimSpace(c.Query("entity_id"))
	if entity == "" || entityID == "" {
		AbortWithError(c, newValidationError("entity", "invalid_request", "entity and entity_id are required"))
		return
	}

	entries, err := s.auditSvc.List(c.Request.Context(), entity, entityID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}
