package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
)

type generateInvoiceRequest struct {
	ClientID     string   `json:"client_id" binding:"required"`
	CaseID       *string  `json:"case_id"`
	TimeEntryIDs []string `json:"time_entry_ids" binding:"required"`
	Currency     string   `json:"currency"`
	DueDate      *string  `json:"due_date"`
	PeriodStart  *string  `json:"period_start"`
	PeriodEnd    *string  `json:"period_end"`
	CreatedBy    *string  `json:"created_by"`
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	var body generateInvoiceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	clientID, err := snowflake.ParseString(body.ClientID)
	if err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client_id"))
		return
	}

	var caseID *snowflake.ID
	if body.CaseID != nil {
		if caseID, err = parseOptionalSnowflakeID(*body.CaseID); err != nil {
			AbortWithError(c, newValidationError("case_id", "invalid_id", "invalid case_id"))
			return
		}
	}

	entryIDs := make([]snowflake.ID, 0, len(body.TimeEntryIDs))
	for _, raw := range body.TimeEntryIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil {
			AbortWithError(c, newValidationError("time_entry_ids", "invalid_id", "invalid time entry id"))
			return
		}
		entryIDs = append(entryIDs, id)
	}

	dueDate, err := parseBodyTime(body.DueDate, true)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_time", "invalid due_date"))
		return
	}
	periodStart, err := parseBodyTime(body.PeriodStart, false)
	if err != nil {
		AbortWithError(c, newValidationError("period_start", "invalid_time", "invalid period_start"))
		return
	}
	periodEnd, err := parseBodyTime(body.PeriodEnd, true)
	if err != nil {
		AbortWithError(c, newValidationError("period_end", "invalid_time", "invalid period_end"))
		return
	}

	var createdBy *snowflake.ID
	if body.CreatedBy != nil {
		if createdBy, err = parseOptionalSnowflakeID(*body.CreatedBy); err != nil {
			AbortWithError(c, newValidationError("created_by", "invalid_id", "invalid created_by"))
			return
		}
	}

	inv, err := s.invoiceSvc.GenerateFromApprovedTime(c.Request.Context(), invoicedomain.GenerateRequest{
		ClientID:     clientID,
		CaseID:       caseID,
		TimeEntryIDs: entryIDs,
		Currency:     strings.ToUpper(strings.TrimSpace(body.Currency)),
		DueDate:      dueDate,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		CreatedBy:    createdBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) GetInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) ListInvoices(c *gin.Context) {
	req := invoicedomain.ListRequest{}

	var err error
	if req.ClientID, err = parseOptionalSnowflakeID(c.Query("client_id")); err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client_id"))
		return
	}
	if req.CaseID, err = parseOptionalSnowflakeID(c.Query("case_id")); err != nil {
		AbortWithError(c, newValidationError("case_id", "invalid_id", "invalid case_id"))
		return
	}
	if v := optionalString(c.Query("status")); v != nil {
		status := invoicedomain.Status(*v)
		req.Status = &status
	}
	if req.IssuedFrom, err = parseOptionalTime(c.Query("issued_from"), false); err != nil {
		AbortWithError(c, newValidationError("issued_from", "invalid_time", "invalid issued_from"))
		return
	}
	if req.IssuedTo, err = parseOptionalTime(c.Query("issued_to"), true); err != nil {
		AbortWithError(c, newValidationError("issued_to", "invalid_time", "invalid issued_to"))
		return
	}

	invoices, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

type sendInvoiceRequest struct {
	DueDate *string `json:"due_date"`
	PdfURL  *string `json:"pdf_url"`
}

func (s *Server) SendInvoice(c *gin.Context) {
	var body sendInvoiceRequest
	if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	dueDate, err := parseBodyTime(body.DueDate, true)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_time", "invalid due_date"))
		return
	}

	inv, err := s.invoiceSvc.Send(c.Request.Context(), strings.TrimSpace(c.Param("id")), invoicedomain.SendRequest{
		DueDate: dueDate,
		PdfURL:  body.PdfURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) VoidInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Void(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) ListInvoiceLines(c *gin.Context) {
	lines, err := s.invoiceSvc.ListLines(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": lines})
}

type addLineRequest struct {
	TimeEntryID *string  `json:"time_entry_id"`
	Description string   `json:"description" binding:"required"`
	QtyHours    float64  `json:"qty_hours"`
	Rate        float64  `json:"rate"`
	Amount      *float64 `json:"amount"`
}

func (s *Server) AddInvoiceLine(c *gin.Context) {
	var body addLineRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	var entryID *snowflake.ID
	if body.TimeEntryID != nil {
		parsed, err := parseOptionalSnowflakeID(*body.TimeEntryID)
		if err != nil {
			AbortWithError(c, newValidationError("time_entry_id", "invalid_id", "invalid time_entry_id"))
			return
		}
		entryID = parsed
	}

	line, totals, err := s.invoiceSvc.AddLine(c.Request.Context(), strings.TrimSpace(c.Param("id")), invoicedomain.AddLineRequest{
		TimeEntryID: entryID,
		Description: body.Description,
		QtyHours:    body.QtyHours,
		Rate:        body.Rate,
		Amount:      body.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": line, "totals": totals})
}

type updateLineRequest struct {
	Description *string  `json:"description"`
	QtyHours    *float64 `json:"qty_hours"`
	Rate        *float64 `json:"rate"`
	Amount      *float64 `json:"amount"`
}

func (s *Server) UpdateInvoiceLine(c *gin.Context) {
	var body updateLineRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	line, totals, err := s.invoiceSvc.UpdateLine(
		c.Request.Context(),
		strings.TrimSpace(c.Param("id")),
		strings.TrimSpace(c.Param("lineId")),
		invoicedomain.UpdateLineRequest{
			Description: body.Description,
			QtyHours:    body.QtyHours,
			Rate:        body.Rate,
			Amount:      body.Amount,
		},
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": line, "totals": totals})
}

func (s *Server) DeleteInvoiceLine(c *gin.Context) {
	totals, err := s.invoiceSvc.DeleteLine(
		c.Request.Context(),
		strings.TrimSpace(c.Param("id")),
		strings.TrimSpace(c.Param("lineId")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"totals": totals})
}

func parseBodyTime(value *string, endOfDay bool) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	return parseOptionalTime(*value, endOfDay)
}
