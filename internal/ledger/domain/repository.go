package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists ledger documents. Every method runs on the handle it
// is given so callers control the transaction.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LedgerDocument, error)
	// FindByIDForUpdate row-locks the document until the transaction ends.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LedgerDocument, error)
	Insert(ctx context.Context, db *gorm.DB, doc *LedgerDocument) error
	// UpdatePaymentState writes amountPaid, balance, status and paidAt
	// together and bumps the version. ErrVersionConflict means the row
	// changed since it was read.
	UpdatePaymentState(ctx context.Context, db *gorm.DB, doc *LedgerDocument) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, now time.Time) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountChildren(ctx context.Context, db *gorm.DB, billID snowflake.ID) (int64, error)
	ListOverdueCandidates(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)

	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListPayments(ctx context.Context, db *gorm.DB, documentID snowflake.ID) ([]*Payment, error)
}
