package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	kpidomain "github.com/counselops/lexbill/internal/kpi/domain"
)

func (s *Server) KpiSummary(c *gin.Context) {
	req := kpidomain.SummaryRequest{Scope: kpidomain.Scope(c.Query("scope"))}

	var err error
	if req.ScopeID, err = parseOptionalSnowflakeID(c.Query("scope_id")); err != nil {
		AbortWithError(c, newValidationError("scope_id", "invalid_id", "invalid scope_id"))
		return
	}
	if req.From, err = parseOptionalTime(c.Query("from"), false); err != nil {
		AbortWithError(c, newValidationError("from", "invalid_time", "invalid from"))
		return
	}
	if req.To, err = parseOptionalTime(c.Query("to"), true); err != nil {
		AbortWithError(c, newValidationError("to", "invalid_time", "invalid to"))
		return
	}
	req.Month = optionalString(c.Query("month"))

	summary, err := s.kpiSvc.Summary(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) KpiTrend(c *gin.Context) {
	req := kpidomain.TrendRequest{
		Scope:     kpidomain.Scope(c.Query("scope")),
		FromMonth: c.Query("from_month"),
		ToMonth:   c.Query("to_month"),
	}

	var err error
	if req.ScopeID, err = parseOptionalSnowflakeID(c.Query("scope_id")); err != nil {
		AbortWithError(c, newValidationError("scope_id", "invalid_id", "invalid scope_id"))
		return
	}

	points, err := s.kpiSvc.Trend(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": points})
}

func (s *Server) ListKpiSnapshots(c *gin.Context) {
	req := kpidomain.ListSnapshotsRequest{}

	if v := optionalString(c.Query("scope")); v != nil {
		scope := kpidomain.Scope(*v)
		req.Scope = &scope
	}
	var err error
	if req.ScopeID, err = parseOptionalSnowflakeID(c.Query("scope_id")); err != nil {
		AbortWithError(c, newValidationError("scope_id", "invalid_id", "invalid scope_id"))
		return
	}
	req.Month = optionalString(c.Query("month"))

	snapshots, err := s.kpiSvc.ListSnapshots(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshots})
}

type computeSnapshotRequest struct {
	Scope   string `json:"scope" binding:"required"`
	ScopeID string `json:"scope_id"`
	Month   string `json:"month" binding:"required"`
}

// ComputeKpiSnapshot materializes a single (scope, scope_id, month) snapshot.
func (s *Server) ComputeKpiSnapshot(c *gin.Context) {
	var body computeSnapshotRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	var scopeID snowflake.ID
	if body.ScopeID != "" {
		parsed, err := snowflake.ParseString(body.ScopeID)
		if err != nil {
			AbortWithError(c, newValidationError("scope_id", "invalid_id", "invalid scope_id"))
			return
		}
		scopeID = parsed
	}

	snap, err := s.kpiSvc.ComputeAndUpsert(c.Request.Context(), kpidomain.Scope(body.Scope), scopeID, body.Month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snap})
}

type generateSnapshotsRequest struct {
	Month string `json:"month" binding:"required"`
}

func (s *Server) GenerateKpiSnapshots(c *gin.Context) {
	var body generateSnapshotsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	count, err := s.kpiSvc.GenerateSnapshots(c.Request.Context(), body.Month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"month": body.Month, "count": count}})
}
