package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
)

type createTimeEntryRequest struct {
	CaseID             string   `json:"case_id" binding:"required"`
	ClientID           string   `json:"client_id" binding:"required"`
	UserID             string   `json:"user_id" binding:"required"`
	ActivityCode       *string  `json:"activity_code"`
	Narrative          string   `json:"narrative" binding:"required"`
	BillableMinutes    int      `json:"billable_minutes"`
	NonbillableMinutes int      `json:"nonbillable_minutes"`
	RateApplied        *float64 `json:"rate_applied"`
	Amount             *float64 `json:"amount"`
	Date               *string  `json:"date"`
}

func (s *Server) CreateTimeEntry(c *gin.Context) {
	var body createTimeEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	caseID, err := snowflake.ParseString(body.CaseID)
	if err != nil {
		AbortWithError(c, newValidationError("case_id", "invalid_id", "invalid case_id"))
		return
	}
	clientID, err := snowflake.ParseString(body.ClientID)
	if err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client_id"))
		return
	}
	userID, err := snowflake.ParseString(body.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_id", "invalid user_id"))
		return
	}

	var date *time.Time
	if body.Date != nil {
		date, err = parseOptionalTime(*body.Date, false)
		if err != nil {
			AbortWithError(c, newValidationError("date", "invalid_time", "invalid date"))
			return
		}
	}

	entry, err := s.timeEntrySvc.Create(c.Request.Context(), timedomain.CreateRequest{
		CaseID:             caseID,
		ClientID:           clientID,
		UserID:             userID,
		ActivityCode:       body.ActivityCode,
		Narrative:          body.Narrative,
		BillableMinutes:    body.BillableMinutes,
		NonbillableMinutes: body.NonbillableMinutes,
		RateApplied:        body.RateApplied,
		Amount:             body.Amount,
		Date:               date,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

type updateTimeEntryRequest struct {
	ActivityCode       *string  `json:"activity_code"`
	Narrative          *string  `json:"narrative"`
	BillableMinutes    *int     `json:"billable_minutes"`
	NonbillableMinutes *int     `json:"nonbillable_minutes"`
	RateApplied        *float64 `json:"rate_applied"`
	Amount             *float64 `json:"amount"`
	Date               *string  `json:"date"`
}

func (s *Server) UpdateTimeEntry(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var body updateTimeEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	var date *time.Time
	if body.Date != nil {
		parsed, err := parseOptionalTime(*body.Date, false)
		if err != nil {
			AbortWithError(c, newValidationError("date", "invalid_time", "invalid date"))
			return
		}
		date = parsed
	}

	entry, err := s.timeEntrySvc.Update(c.Request.Context(), id, timedomain.UpdateRequest{
		ActivityCode:       body.ActivityCode,
		Narrative:          body.Narrative,
		BillableMinutes:    body.BillableMinutes,
		NonbillableMinutes: body.NonbillableMinutes,
		RateApplied:        body.RateApplied,
		Amount:             body.Amount,
		Date:               date,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) GetTimeEntry(c *gin.Context) {
	entry, err := s.timeEntrySvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) ListTimeEntries(c *gin.Context) {
	req := timedomain.ListRequest{}

	var err error
	if req.UserID, err = parseOptionalSnowflakeID(c.Query("user_id")); err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_id", "invalid user_id"))
		return
	}
	if req.ClientID, err = parseOptionalSnowflakeID(c.Query("client_id")); err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client_id"))
		return
	}
	if req.CaseID, err = parseOptionalSnowflakeID(c.Query("case_id")); err != nil {
		AbortWithError(c, newValidationError("case_id", "invalid_id", "invalid case_id"))
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
	if v := optionalString(c.Query("status")); v != nil {
		status := timedomain.Status(*v)
		req.Status = &status
	}
	req.Query = optionalString(c.Query("q"))

	entries, err := s.timeEntrySvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) SubmitTimeEntry(c *gin.Context) {
	s.transitionTimeEntry(c, s.timeEntrySvc.Submit)
}

func (s *Server) ApproveTimeEntry(c *gin.Context) {
	s.transitionTimeEntry(c, s.timeEntrySvc.Approve)
}

func (s *Server) RejectTimeEntry(c *gin.Context) {
	s.transitionTimeEntry(c, s.timeEntrySvc.Reject)
}

func (s *Server) transitionTimeEntry(c *gin.Context, fn func(ctx context.Context, id string) (timedomain.TimeEntry, error)) {
	entry, err := fn(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entry})
}
