package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPaymentAmount = errors.New("invalid_payment_amount")
	ErrDocumentNotPayable   = errors.New("document_not_payable")
)

// ValidAmount reports whether amount can be tendered: positive and no finer
// than a cent, since ledger columns hold two decimal places.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}
