package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	agingdomain "github.com/counselops/lexbill/internal/aging/domain"
)

func (s *Server) Aging(c *gin.Context) {
	req, ok := s.parseAgingRequest(c)
	if !ok {
		return
	}

	report, err := s.agingSvc.Aging(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) AgingByClient(c *gin.Context) {
	req, ok := s.parseAgingRequest(c)
	if !ok {
		return
	}

	reports, err := s.agingSvc.AgingByClient(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reports})
}

func (s *Server) parseAgingRequest(c *gin.Context) (agingdomain.Request, bool) {
	req := agingdomain.Request{}

	var err error
	if req.ClientID, err = parseOptionalSnowflakeID(c.Query("client_id")); err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client_id"))
		return req, false
	}
	if req.AsOf, err = parseOptionalTime(c.Query("as_of"), true); err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_time", "invalid as_of"))
		return req, false
	}
	if req.ClearedOnly, err = parseOptionalBool(c.Query("cleared_only")); err != nil {
		AbortWithError(c, newValidationError("cleared_only", "invalid_bool", "invalid cleared_only"))
		return req, false
	}
	return req, true
}
