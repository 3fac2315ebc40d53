package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
	kpidomain "github.com/counselops/lexbill/internal/kpi/domain"
	paymentdomain "github.com/counselops/lexbill/internal/payment/domain"
	ratecarddomain "github.com/counselops/lexbill/internal/ratecard/domain"
	"github.com/counselops/lexbill/internal/state"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var overErr *paymentdomain.OverpaymentError
	if errors.As(err, &overErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "overpayment",
			Message: overErr.Error(),
		}
	}

	var stateErr *state.Error
	if errors.As(err, &stateErr) {
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: stateErr.Error(),
		}
	}

	switch {
	case isValidationError(err):
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: code,
				},
			},
		}
	case errors.Is(err, paymentdomain.ErrVoidInvoice):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, timedomain.ErrMissingCase),
		errors.Is(err, timedomain.ErrMissingClient),
		errors.Is(err, timedomain.ErrMissingUser),
		errors.Is(err, timedomain.ErrMissingNarrative),
		errors.Is(err, timedomain.ErrNegativeMinutes),
		errors.Is(err, timedomain.ErrNegativeAmount),
		errors.Is(err, invoicedomain.ErrMissingClient),
		errors.Is(err, invoicedomain.ErrNoTimeEntries),
		errors.Is(err, invoicedomain.ErrEntryMismatch),
		errors.Is(err, invoicedomain.ErrNegativeLine),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidStatus),
		errors.Is(err, ratecarddomain.ErrInvalidUser),
		errors.Is(err, ratecarddomain.ErrInvalidRate),
		errors.Is(err, ratecarddomain.ErrInvalidWindow),
		errors.Is(err, kpidomain.ErrInvalidScope),
		errors.Is(err, kpidomain.ErrScopeIDRequired),
		errors.Is(err, kpidomain.ErrInvalidMonth):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, timedomain.ErrTimeEntryNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, invoicedomain.ErrLineNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, ratecarddomain.ErrRateCardNotFound),
		errors.Is(err, kpidomain.ErrSnapshotNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if idx := strings.IndexByte(code, ' '); idx > 0 {
		return code[:idx]
	}
	return ""
}
