package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	ratecarddomain "github.com/counselops/lexbill/internal/ratecard/domain"
)

type createRateCardRequest struct {
	UserID        string  `json:"user_id" binding:"required"`
	CaseID        *string `json:"case_id"`
	ActivityCode  *string `json:"activity_code"`
	RatePerHour   float64 `json:"rate_per_hour" binding:"required"`
	EffectiveFrom string  `json:"effective_from" binding:"required"`
	EffectiveTo   *string `json:"effective_to"`
}

func (s *Server) CreateRateCard(c *gin.Context) {
	var body createRateCardRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	userID, err := snowflake.ParseString(body.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_id", "invalid user_id"))
		return
	}

	var caseID *snowflake.ID
	if body.CaseID != nil {
		if caseID, err = parseOptionalSnowflakeID(*body.CaseID); err != nil {
			AbortWithError(c, newValidationError("case_id", "invalid_id", "invalid case_id"))
			return
		}
	}

	from, err := parseOptionalTime(body.EffectiveFrom, false)
	if err != nil || from == nil {
		AbortWithError(c, newValidationError("effective_from", "invalid_time", "invalid effective_from"))
		return
	}
	var to *time.Time
	if body.EffectiveTo != nil {
		if to, err = parseOptionalTime(*body.EffectiveTo, true); err != nil {
			AbortWithError(c, newValidationError("effective_to", "invalid_time", "invalid effective_to"))
			return
		}
	}

	card, err := s.rateCardSvc.Create(c.Request.Context(), ratecarddomain.RateCard{
		UserID:        userID,
		CaseID:        caseID,
		ActivityCode:  body.ActivityCode,
		RatePerHour:   body.RatePerHour,
		EffectiveFrom: *from,
		EffectiveTo:   to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": card})
}

type updateRateCardRequest struct {
	RatePerHour   *float64 `json:"rate_per_hour"`
	EffectiveFrom *string  `json:"effective_from"`
	EffectiveTo   *string  `json:"effective_to"`
}

func (s *Server) UpdateRateCard(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var body updateRateCardRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	req := ratecarddomain.UpdateRequest{RatePerHour: body.RatePerHour}
	if body.EffectiveFrom != nil {
		parsed, err := parseOptionalTime(*body.EffectiveFrom, false)
		if err != nil {
			AbortWithError(c, newValidationError("effective_from", "invalid_time", "invalid effective_from"))
			return
		}
		req.EffectiveFrom = parsed
	}
	if body.EffectiveTo != nil {
		parsed, err := parseOptionalTime(*body.EffectiveTo, true)
		if err != nil {
			AbortWithError(c, newValidationError("effective_to", "invalid_time", "invalid effective_to"))
			return
		}
		req.EffectiveTo = parsed
	}

	card, err := s.rateCardSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": card})
}

func (s *Server) DeleteRateCard(c *gin.Context) {
	if err := s.rateCardSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListRateCards(c *gin.Context) {
	req := ratecarddomain.ListRequest{}

	var err error
	if req.UserID, err = parseOptionalSnowflakeID(c.Query("user_id")); err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_id", "invalid user_id"))
		return
	}
	if req.CaseID, err = parseOptionalSnowflakeID(c.Query("case_id")); err != nil {
		AbortWithError(c, newValidationError("case_id", "invalid_id", "invalid case_id"))
		return
	}
	req.ActivityCode = optionalString(c.Query("activity_code"))
	if req.ActiveOn, err = parseOptionalTime(c.Query("active_on"), false); err != nil {
		AbortWithError(c, newValidationError("active_on", "invalid_time", "invalid active_on"))
		return
	}

	cards, err := s.rateCardSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cards})
}

// ResolveRate answers the precedence-cascade lookup. A null source in the
// response means no rate applies; callers must not read that as a zero rate.
func (s *Server) ResolveRate(c *gin.Context) {
	userID, err := parseOptionalSnowflakeID(c.Query("user_id"))
	if err != nil || userID == nil {
		AbortWithError(c, newValidationError("user_id", "invalid_id", "user_id is required"))
		return
	}

	req := ratecarddomain.ResolveRequest{UserID: *userID}
	if req.CaseID, err = parseOptionalSnowflakeID(c.Query("case_id")); err != nil {
		AbortWithError(c, newValidationError("case_id", "invalid_id", "invalid case_id"))
		return
	}
	req.ActivityCode = optionalString(c.Query("activity_code"))
	if req.At, err = parseOptionalTime(c.Query("at"), false); err != nil {
		AbortWithError(c, newValidationError("at", "invalid_time", "invalid at"))
		return
	}

	resolution, err := s.rateCardSvc.Resolve(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resolution})
}
