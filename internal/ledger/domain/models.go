// Package domain contains persistence models for bills and their invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/rentledger/internal/tax/domain"
	"gorm.io/datatypes"
)

// DocumentKind distinguishes a root bill from an invoice issued against one.
type DocumentKind string

const (
	DocumentKindBill        DocumentKind = "BILL"
	DocumentKindBillInvoice DocumentKind = "BILL_INVOICE"
)

// Status represents the payment state of a ledger document.
type Status string

const (
	StatusUnpaid    Status = "UNPAID"
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// LedgerDocument is one billable obligation: a bill, or an invoice
// subdividing the remaining balance of a bill.
type LedgerDocument struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	Kind            DocumentKind  `gorm:"type:text;not null;index"`
	ReferenceNumber string        `gorm:"type:text;not null;uniqueIndex:ux_ledger_documents_reference"`
	TenantID        snowflake.ID  `gorm:"not null;index"`
	PropertyID      *snowflake.ID `gorm:"index"`
	BillType        string        `gorm:"type:text;not null"`
	ParentBillID    *snowflake.ID `gorm:"index"`
	SplitFromID     *snowflake.ID `gorm:"index"`

	Subtotal   decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	TaxRate    *decimal.Decimal  `gorm:"type:numeric(5,2)"`
	TaxMode    taxdomain.TaxMode `gorm:"type:text;not null"`
	TaxAmount  decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	GrandTotal decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	AmountPaid decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`
	Balance    decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0"`

	Status    Status     `gorm:"type:text;not null;default:'UNPAID';index"`
	IssueDate time.Time  `gorm:"not null"`
	DueDate   time.Time  `gorm:"not null;index"`
	PaidAt    *time.Time `gorm:""`

	MeterReading datatypes.JSONMap `gorm:""`
	Notes        *string           `gorm:"type:text"`

	Version   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerDocument) TableName() string { return "ledger_documents" }

// IsChildInvoice reports whether the document was issued against a parent bill.
func (d LedgerDocument) IsChildInvoice() bool {
	return d.ParentBillID != nil && *d.ParentBillID != 0
}

// Payment records one tendered payment against a ledger document.
type Payment struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	DocumentID     snowflake.ID    `gorm:"not null;index"`
	BillID         *snowflake.ID   `gorm:"index"`
	TenderedAmount decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	AppliedAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	PaymentDate    time.Time       `gorm:"not null"`
	Notes          *string         `gorm:"type:text"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "ledger_payments" }
