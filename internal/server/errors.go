package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/rentledger/internal/reconciliation/domain"
	referencedomain "github.com/smallbiznis/rentledger/internal/reference/domain"
	taxdomain "github.com/smallbiznis/rentledger/internal/tax/domain"
	"gorm.io/gorm"
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
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
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

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, reconciliationdomain.ErrPaymentConflict),
		errors.Is(err, reconciliationdomain.ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "the document was modified concurrently, retry the request",
		}
	case errors.Is(err, referencedomain.ErrReferenceNumberExhausted):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "reference number space exhausted, retry later",
		}
	}

	if code, ok := stateErrorCode(err); ok {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    code,
			Message: stateErrorMessage(code),
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog returns the error type and code logged with a request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	reconciliationdomain.ErrInvalidRequest,
	reconciliationdomain.ErrInvalidDocumentID,
	ledgerdomain.ErrInvalidDocumentID,
	paymentdomain.ErrInvalidPaymentAmount,
	referencedomain.ErrUnknownKind,
	taxdomain.ErrInvalidReadingRange,
	taxdomain.ErrInvalidAmount,
	taxdomain.ErrInvalidTaxMode,
	taxdomain.ErrInvalidTaxRate,
	taxdomain.ErrInvalidServiceCharge,
}

func isValidationError(err error) bool {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, reconciliationdomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// stateErrorCode reports errors caused by the document's current state
// rather than by the request itself.
func stateErrorCode(err error) (string, bool) {
	for _, sentinel := range []error{
		paymentdomain.ErrDocumentNotPayable,
		reconciliationdomain.ErrAlreadySettled,
		reconciliationdomain.ErrNotABill,
		reconciliationdomain.ErrBillHasInvoices,
		reconciliationdomain.ErrNotCancellable,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func stateErrorMessage(code string) string {
	switch code {
	case paymentdomain.ErrDocumentNotPayable.Error():
		return "document does not accept payments"
	case reconciliationdomain.ErrAlreadySettled.Error():
		return "bill has no outstanding balance"
	case reconciliationdomain.ErrNotABill.Error():
		return "document is not a bill"
	case reconciliationdomain.ErrBillHasInvoices.Error():
		return "bill has invoices issued against it"
	case reconciliationdomain.ErrNotCancellable.Error():
		return "document cannot be cancelled"
	default:
		return "request conflicts with document state"
	}
}

func validationErrorCode(err error) string {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "invalid_request"
}

func validationErrorField(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidPaymentAmount):
		return "amount"
	case errors.Is(err, reconciliationdomain.ErrInvalidDocumentID),
		errors.Is(err, ledgerdomain.ErrInvalidDocumentID):
		return "id"
	case errors.Is(err, referencedomain.ErrUnknownKind):
		return "kind"
	}

	code := validationErrorCode(err)
	if code == "invalid_request" {
		return "request"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case paymentdomain.ErrInvalidPaymentAmount.Error():
		return "amount must be positive with at most two decimal places"
	case taxdomain.ErrInvalidReadingRange.Error():
		return "current reading must not be below previous reading"
	default:
		return "invalid value"
	}
}
