package domain

import (
	"time"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
)

// Result is the state a ledger document moves to after a payment.
type Result struct {
	FinalPaid  decimal.Decimal
	NewBalance decimal.Decimal
	NewStatus  ledgerdomain.Status
	PaidAt     *time.Time
	// Changed is false when the payment cannot move the document, e.g. it
	// is already settled.
	Changed bool
	// Split is the unsaved remainder invoice, without ID or reference number.
	Split *ledgerdomain.LedgerDocument
}

func (r Result) SplitRequired() bool {
	return r.Split != nil
}

// Engine decides how a payment changes a ledger document.
type Engine interface {
	ApplyPayment(doc ledgerdomain.LedgerDocument, amount decimal.Decimal, now time.Time) (Result, error)
}
