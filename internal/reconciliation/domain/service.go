package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	taxdomain "github.com/smallbiznis/rentledger/internal/tax/domain"
)

type Service interface {
	GetLedgerDocument(ctx context.Context, id snowflake.ID) (LedgerDocumentDetail, error)
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (RecordPaymentResult, error)
	GenerateLedgerDocument(ctx context.Context, req GenerateRequest) (ledgerdomain.LedgerDocument, error)
	CreateBill(ctx context.Context, req CreateBillRequest) (ledgerdomain.LedgerDocument, error)
	DeleteLedgerDocument(ctx context.Context, id snowflake.ID) error
	CancelLedgerDocument(ctx context.Context, id snowflake.ID) (ledgerdomain.LedgerDocument, error)
	SweepOverdue(ctx context.Context) (int, error)
}

type RecordPaymentRequest struct {
	DocumentID snowflake.ID
	Amount     decimal.Decimal
	// PaymentDate defaults to now.
	PaymentDate time.Time
	Notes       *string
}

const WarningSplitFailed = "split_failed"

// Warning reports a soft failure attached to an otherwise successful result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RecordPaymentResult struct {
	Document      ledgerdomain.LedgerDocument
	ParentBill    *ledgerdomain.LedgerDocument
	SplitDocument *ledgerdomain.LedgerDocument
	// Payment is nil when the document was already settled and nothing
	// was written.
	Payment  *ledgerdomain.Payment
	Warnings []Warning
}

// LedgerDocumentDetail is a document with the payments recorded against it,
// oldest first.
type LedgerDocumentDetail struct {
	Document ledgerdomain.LedgerDocument
	Payments []*ledgerdomain.Payment
}

type GenerateRequest struct {
	ParentBillID snowflake.ID
	// DueDate defaults to the parent bill's due date.
	DueDate time.Time
	Notes   *string
}

// CreateBillRequest carries exactly one of Metered or Rent.
type CreateBillRequest struct {
	TenantID   snowflake.ID
	PropertyID *snowflake.ID
	BillType   string
	IssueDate  time.Time
	DueDate    time.Time
	Notes      *string

	Metered *taxdomain.MeteredChargeInput
	Rent    *taxdomain.RentChargeInput
}
