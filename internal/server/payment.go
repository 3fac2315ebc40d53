package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	paymentdomain "github.com/counselops/lexbill/internal/payment/domain"
)

type createPaymentRequest struct {
	InvoiceID string  `json:"invoice_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	Currency  string  `json:"currency"`
	Method    string  `json:"method" binding:"required"`
	Reference string  `json:"reference"`
	Status    string  `json:"status"`
	PaidAt    *string `json:"paid_at"`
	Notes     *string `json:"notes"`
	CreatedBy *string `json:"created_by"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	var body createPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	invoiceID, err := snowflake.ParseString(body.InvoiceID)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_id", "invalid invoice_id"))
		return
	}

	paidAt, err := parseBodyTime(body.PaidAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("paid_at", "invalid_time", "invalid paid_at"))
		return
	}

	var createdBy *snowflake.ID
	if body.CreatedBy != nil {
		if createdBy, err = parseOptionalSnowflakeID(*body.CreatedBy); err != nil {
			AbortWithError(c, newValidationError("created_by", "invalid_id", "invalid created_by"))
			return
		}
	}

	res, err := s.paymentSvc.Create(c.Request.Context(), paymentdomain.CreateRequest{
		InvoiceID: invoiceID,
		Amount:    body.Amount,
		Currency:  strings.ToUpper(strings.TrimSpace(body.Currency)),
		Method:    paymentdomain.Method(body.Method),
		Reference: strings.TrimSpace(body.Reference),
		Status:    paymentdomain.Status(body.Status),
		PaidAt:    paidAt,
		Notes:     body.Notes,
		CreatedBy: createdBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": res})
}

func (s *Server) GetPayment(c *gin.Context) {
	pay, err := s.paymentSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pay})
}

func (s *Server) ListPayments(c *gin.Context) {
	req := paymentdomain.ListRequest{}

	var err error
	if req.InvoiceID, err = parseOptionalSnowflakeID(c.Query("invoice_id")); err != nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_id", "invalid invoice_id"))
		return
	}
	if req.ClientID, err = parseOptionalSnowflakeID(c.Query("client_id")); err != nil {
		AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid client_id"))
		return
	}
	if v := optionalString(c.Query("status")); v != nil {
		status := paymentdomain.Status(*v)
		req.Status = &status
	}
	if req.PaidFrom, err = parseOptionalTime(c.Query("paid_from"), false); err != nil {
		AbortWithError(c, newValidationError("paid_from", "invalid_time", "invalid paid_from"))
		return
	}
	if req.PaidTo, err = parseOptionalTime(c.Query("paid_to"), true); err != nil {
		AbortWithError(c, newValidationError("paid_to", "invalid_time", "invalid paid_to"))
		return
	}

	payments, err := s.paymentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

type reconcilePaymentRequest struct {
	Status string  `json:"status" binding:"required"`
	PaidAt *string `json:"paid_at"`
	Notes  *string `json:"notes"`
}

func (s *Server) ReconcilePayment(c *gin.Context) {
	var body reconcilePaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", err.Error()))
		return
	}

	paidAt, err := parseBodyTime(body.PaidAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("paid_at", "invalid_time", "invalid paid_at"))
		return
	}

	res, err := s.paymentSvc.Reconcile(c.Request.Context(), strings.TrimSpace(c.Param("id")), paymentdomain.ReconcileRequest{
		Status: paymentdomain.Status(body.Status),
		PaidAt: paidAt,
		Notes:  body.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) DeletePayment(c *gin.Context) {
	res, err := s.paymentSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}
