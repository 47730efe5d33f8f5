package server

import (
	"time"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	reconciliationdomain "github.com/smallbiznis/rentledger/internal/reconciliation/domain"
	taxdomain "github.com/smallbiznis/rentledger/internal/tax/domain"
)

type documentResponse struct {
	ID              string           `json:"id"`
	Kind            string           `json:"kind"`
	ReferenceNumber string           `json:"reference_number"`
	TenantID        string           `json:"tenant_id"`
	PropertyID      *string          `json:"property_id,omitempty"`
	BillType        string           `json:"bill_type"`
	ParentBillID    *string          `json:"parent_bill_id,omitempty"`
	SplitFromID     *string          `json:"split_from_id,omitempty"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
	TaxMode         string           `json:"tax_mode"`
	TaxAmount       decimal.Decimal  `json:"tax_amount"`
	GrandTotal      decimal.Decimal  `json:"grand_total"`
	AmountPaid      decimal.Decimal  `json:"amount_paid"`
	Balance         decimal.Decimal  `json:"balance"`
	Status          string           `json:"status"`
	IssueDate       time.Time        `json:"issue_date"`
	DueDate         time.Time        `json:"due_date"`
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
	MeterReading    map[string]any   `json:"meter_reading,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func toDocumentResponse(doc ledgerdomain.LedgerDocument) documentResponse {
	resp := documentResponse{
		ID:              doc.ID.String(),
		Kind:            string(doc.Kind),
		ReferenceNumber: doc.ReferenceNumber,
		TenantID:        doc.TenantID.String(),
		BillType:        doc.BillType,
		Subtotal:        doc.Subtotal,
		TaxRate:         doc.TaxRate,
		TaxMode:         string(doc.TaxMode),
		TaxAmount:       doc.TaxAmount,
		GrandTotal:      doc.GrandTotal,
		AmountPaid:      doc.AmountPaid,
		Balance:         doc.Balance,
		Status:          string(doc.Status),
		IssueDate:       doc.IssueDate,
		DueDate:         doc.DueDate,
		PaidAt:          doc.PaidAt,
		MeterReading:    doc.MeterReading,
		Notes:           doc.Notes,
		Version:         doc.Version,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	if doc.PropertyID != nil {
		id := doc.PropertyID.String()
		resp.PropertyID = &id
	}
	if doc.ParentBillID != nil {
		id := doc.ParentBillID.String()
		resp.ParentBillID = &id
	}
	if doc.SplitFromID != nil {
		id := doc.SplitFromID.String()
		resp.SplitFromID = &id
	}
	return resp
}

func toDocumentResponsePtr(doc *ledgerdomain.LedgerDocument) *documentResponse {
	if doc == nil {
		return nil
	}
	resp := toDocumentResponse(*doc)
	return &resp
}

type paymentResponse struct {
	ID             string          `json:"id"`
	DocumentID     string          `json:"document_id"`
	BillID         *string         `json:"bill_id,omitempty"`
	TenderedAmount decimal.Decimal `json:"tendered_amount"`
	AppliedAmount  decimal.Decimal `json:"applied_amount"`
	PaymentDate    time.Time       `json:"payment_date"`
	Notes          *string         `json:"notes,omitempty"`
}

func toPaymentResponse(p *ledgerdomain.Payment) *paymentResponse {
	if p == nil {
		return nil
	}
	resp := &paymentResponse{
		ID:             p.ID.String(),
		DocumentID:     p.DocumentID.String(),
		TenderedAmount: p.TenderedAmount,
		AppliedAmount:  p.AppliedAmount,
		PaymentDate:    p.PaymentDate,
		Notes:          p.Notes,
	}
	if p.BillID != nil {
		id := p.BillID.String()
		resp.BillID = &id
	}
	return resp
}

type documentDetailResponse struct {
	Document documentResponse   `json:"document"`
	Payments []*paymentResponse `json:"payments"`
}

func toDocumentDetailResponse(detail reconciliationdomain.LedgerDocumentDetail) documentDetailResponse {
	payments := make([]*paymentResponse, 0, len(detail.Payments))
	for _, p := range detail.Payments {
		payments = append(payments, toPaymentResponse(p))
	}
	return documentDetailResponse{
		Document: toDocumentResponse(detail.Document),
		Payments: payments,
	}
}

type recordPaymentResponse struct {
	Document      documentResponse               `json:"document"`
	ParentBill    *documentResponse              `json:"parent_bill,omitempty"`
	SplitDocument *documentResponse              `json:"split_document,omitempty"`
	Payment       *paymentResponse               `json:"payment,omitempty"`
	Warnings      []reconciliationdomain.Warning `json:"warnings,omitempty"`
}

func toRecordPaymentResponse(res reconciliationdomain.RecordPaymentResult) recordPaymentResponse {
	return recordPaymentResponse{
		Document:      toDocumentResponse(res.Document),
		ParentBill:    toDocumentResponsePtr(res.ParentBill),
		SplitDocument: toDocumentResponsePtr(res.SplitDocument),
		Payment:       toPaymentResponse(res.Payment),
		Warnings:      res.Warnings,
	}
}

type chargeResponse struct {
	Units         *decimal.Decimal `json:"units,omitempty"`
	ServiceCharge *decimal.Decimal `json:"service_charge,omitempty"`
	Subtotal      decimal.Decimal  `json:"subtotal"`
	TaxRate       *decimal.Decimal `json:"tax_rate,omitempty"`
	TaxMode       string           `json:"tax_mode"`
	TaxAmount     decimal.Decimal  `json:"tax_amount"`
	GrandTotal    decimal.Decimal  `json:"grand_total"`
}

func toChargeResponse(charge taxdomain.Charge) chargeResponse {
	return chargeResponse{
		Subtotal:   charge.Subtotal,
		TaxRate:    charge.TaxRate,
		TaxMode:    string(charge.TaxMode),
		TaxAmount:  charge.TaxAmount,
		GrandTotal: charge.GrandTotal,
	}
}
