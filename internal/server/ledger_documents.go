package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	reconciliationdomain "github.com/smallbiznis/rentledger/internal/reconciliation/domain"
)

type recordPaymentRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	PaymentDate string           `json:"payment_date"`
	Notes       *string          `json:"notes"`
}

func (s *Server) GetLedgerDocument(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	detail, err := s.reconciler.GetLedgerDocument(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toDocumentDetailResponse(detail)})
}

func (s *Server) RecordPayment(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount == nil {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}
	paymentDate, err := parseDate("payment_date", req.PaymentDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.reconciler.RecordPayment(c.Request.Context(), reconciliationdomain.RecordPaymentRequest{
		DocumentID:  id,
		Amount:      *req.Amount,
		PaymentDate: paymentDate,
		Notes:       trimmedPtr(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toRecordPaymentResponse(res)})
}

func (s *Server) CancelLedgerDocument(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.reconciler.CancelLedgerDocument(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toDocumentResponse(doc)})
}

func (s *Server) DeleteLedgerDocument(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.reconciler.DeleteLedgerDocument(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
