package service

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	taxservice "github.com/smallbiznis/rentledger/internal/tax/service"
	"gorm.io/datatypes"
)

type engine struct{}

func NewEngine() paymentdomain.Engine {
	return engine{}
}

func (engine) ApplyPayment(doc ledgerdomain.LedgerDocument, amount decimal.Decimal, now time.Time) (paymentdomain.Result, error) {
	return ApplyPayment(doc, amount, now)
}

// ApplyPayment credits amount to doc. Amounts below a cent of precision are
// rejected; credit beyond the grand total is dropped, never rejected. A settled document is returned unchanged.
func ApplyPayment(doc ledgerdomain.LedgerDocument, amount decimal.Decimal, now time.Time) (paymentdomain.Result, error) {
	if !paymentdomain.ValidAmount(amount) {
		return paymentdomain.Result{}, paymentdomain.ErrInvalidPaymentAmount
	}
	if doc.Status == ledgerdomain.StatusCancelled {
		return paymentdomain.Result{}, paymentdomain.ErrDocumentNotPayable
	}

	if doc.Status == ledgerdomain.StatusPaid {
		return paymentdomain.Result{
			FinalPaid:  doc.AmountPaid,
			NewBalance: balance(doc.GrandTotal, doc.AmountPaid),
			NewStatus:  ledgerdomain.StatusPaid,
			PaidAt:     doc.PaidAt,
		}, nil
	}

	finalPaid := decimal.Min(doc.AmountPaid.Add(amount), doc.GrandTotal)
	newBalance := balance(doc.GrandTotal, finalPaid)
	newStatus := DeriveStatus(finalPaid, doc.GrandTotal, doc.DueDate, now)

	paidAt := doc.PaidAt
	if newStatus == ledgerdomain.StatusPaid {
		t := now
		paidAt = &t
	}

	result := paymentdomain.Result{
		FinalPaid:  finalPaid,
		NewBalance: newBalance,
		NewStatus:  newStatus,
		PaidAt:     paidAt,
		Changed:    !finalPaid.Equal(doc.AmountPaid) || newStatus != doc.Status,
	}

	if newStatus == ledgerdomain.StatusPartial && doc.IsChildInvoice() && newBalance.IsPositive() {
		result.Split = remainderInvoice(doc, newBalance, now)
	}
	return result, nil
}

// DeriveStatus maps paid against total to a status. A past due date wins
// over everything but PAID.
func DeriveStatus(paid, total decimal.Decimal, due, now time.Time) ledgerdomain.Status {
	if paid.GreaterThanOrEqual(total) {
		return ledgerdomain.StatusPaid
	}
	if due.Before(now) {
		return ledgerdomain.StatusOverdue
	}
	if paid.IsPositive() {
		return ledgerdomain.StatusPartial
	}
	return ledgerdomain.StatusUnpaid
}

func balance(total, paid decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, total.Sub(paid))
}

// remainderInvoice builds the sibling invoice that carries the unpaid
// remainder of doc. The remainder is tax inclusive at doc's rate.
func remainderInvoice(doc ledgerdomain.LedgerDocument, remainder decimal.Decimal, now time.Time) *ledgerdomain.LedgerDocument {
	subtotal, tax := taxservice.SplitGross(remainder, doc.TaxRate)

	splitFrom := doc.ID
	split := &ledgerdomain.LedgerDocument{
		Kind:         ledgerdomain.DocumentKindBillInvoice,
		TenantID:     doc.TenantID,
		PropertyID:   doc.PropertyID,
		BillType:     doc.BillType,
		ParentBillID: doc.ParentBillID,
		SplitFromID:  &splitFrom,
		Subtotal:     subtotal,
		TaxMode:      doc.TaxMode,
		TaxAmount:    tax,
		GrandTotal:   remainder,
		AmountPaid:   decimal.Zero,
		Balance:      remainder,
		Status:       ledgerdomain.StatusUnpaid,
		IssueDate:    now,
		DueDate:      doc.DueDate,
		Notes:        doc.Notes,
	}
	if doc.TaxRate != nil {
		r := *doc.TaxRate
		split.TaxRate = &r
	}
	if doc.MeterReading != nil {
		split.MeterReading = datatypes.JSONMap(maps.Clone(map[string]any(doc.MeterReading)))
	}
	return split
}
