package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	"github.com/smallbiznis/rentledger/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func documents(db *gorm.DB) repository.Store[ledgerdomain.LedgerDocument] {
	return repository.On[ledgerdomain.LedgerDocument](db)
}

func payments(db *gorm.DB) repository.Store[ledgerdomain.Payment] {
	return repository.On[ledgerdomain.Payment](db)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.LedgerDocument, error) {
	if id == 0 {
		return nil, ledgerdomain.ErrInvalidDocumentID
	}
	return documents(db).Get(ctx, &ledgerdomain.LedgerDocument{ID: id})
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.LedgerDocument, error) {
	if id == 0 {
		return nil, ledgerdomain.ErrInvalidDocumentID
	}
	return documents(db).Get(ctx, &ledgerdomain.LedgerDocument{ID: id}, repository.ForUpdate())
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, doc *ledgerdomain.LedgerDocument) error {
	return documents(db).Insert(ctx, doc)
}

func (r *repo) UpdatePaymentState(ctx context.Context, db *gorm.DB, doc *ledgerdomain.LedgerDocument) error {
	changed, err := documents(db).UpdateWhere(ctx, map[string]any{
		"amount_paid": doc.AmountPaid,
		"balance":     doc.Balance,
		"status":      doc.Status,
		"paid_at":     doc.PaidAt,
		"version":     gorm.Expr("version + 1"),
		"updated_at":  doc.UpdatedAt,
	}, repository.Where("id = ? AND version = ?", doc.ID, doc.Version))
	if err != nil {
		return err
	}
	if changed == 0 {
		return ledgerdomain.ErrVersionConflict
	}
	doc.Version++
	return nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status ledgerdomain.Status, now time.Time) error {
	changed, err := documents(db).UpdateWhere(ctx, map[string]any{
		"status":     status,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}, repository.Where("id = ?", id))
	if err != nil {
		return err
	}
	if changed == 0 {
		return ledgerdomain.ErrNotFound
	}
	return nil
}

// Delete removes the document and its recorded payments.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if _, err := payments(db).DeleteWhere(ctx, repository.Where("document_id = ?", id)); err != nil {
		return err
	}
	removed, err := documents(db).DeleteWhere(ctx, repository.Where("id = ?", id))
	if err != nil {
		return err
	}
	if removed == 0 {
		return ledgerdomain.ErrNotFound
	}
	return nil
}

func (r *repo) CountChildren(ctx context.Context, db *gorm.DB, billID snowflake.ID) (int64, error) {
	return documents(db).Count(ctx, &ledgerdomain.LedgerDocument{ParentBillID: &billID})
}

func (r *repo) ListOverdueCandidates(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []snowflake.ID
	err := documents(db).Pluck(ctx, "id", &ids,
		repository.Where("status IN ? AND due_date < ?", []ledgerdomain.Status{ledgerdomain.StatusUnpaid, ledgerdomain.StatusPartial}, now),
		repository.WithOrder("due_date ASC, id ASC"),
		repository.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *ledgerdomain.Payment) error {
	return payments(db).Insert(ctx, payment)
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, documentID snowflake.ID) ([]*ledgerdomain.Payment, error) {
	return payments(db).List(ctx,
		&ledgerdomain.Payment{DocumentID: documentID},
		repository.WithOrder("payment_date ASC, id ASC"),
	)
}
