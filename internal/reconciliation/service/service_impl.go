package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/rentledger/internal/audit/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	paymentservice "github.com/smallbiznis/rentledger/internal/payment/service"
	"github.com/smallbiznis/rentledger/internal/providers/pdf"
	reconciliationdomain "github.com/smallbiznis/rentledger/internal/reconciliation/domain"
	referencedomain "github.com/smallbiznis/rentledger/internal/reference/domain"
	taxdomain "github.com/smallbiznis/rentledger/internal/tax/domain"
	taxservice "github.com/smallbiznis/rentledger/internal/tax/service"
	"github.com/smallbiznis/rentledger/pkg/db"
	"github.com/smallbiznis/rentledger/pkg/log/ctxlogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const overdueBatchSize = 200

var tracer = otel.Tracer("rentledger/reconciliation")

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Ledger     ledgerdomain.Repository
	Engine     paymentdomain.Engine
	Calculator taxdomain.Calculator
	References referencedomain.Generator
	Renders    pdf.Queue                     `optional:"true"`
	Audit      auditdomain.Service           `optional:"true"`
	Clock      clock.Clock                   `optional:"true"`
	Config     *config.ReconcileConfigHolder `optional:"true"`
	Metrics    *obsmetrics.ReconcileMetrics  `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	ledger     ledgerdomain.Repository
	engine     paymentdomain.Engine
	calculator taxdomain.Calculator
	references referencedomain.Generator
	renders    pdf.Queue
	auditor    auditdomain.Service
	clock      clock.Clock
	config     *config.ReconcileConfigHolder
	metrics    *obsmetrics.ReconcileMetrics
}

func NewService(p ServiceParam) reconciliationdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("reconciliation.service"),

		genID:      p.GenID,
		ledger:     p.Ledger,
		engine:     p.Engine,
		calculator: p.Calculator,
		references: p.References,
		renders:    p.Renders,
		auditor:    p.Audit,
		clock:      c,
		config:     p.Config,
		metrics:    p.Metrics,
	}
}

// GetLedgerDocument reads a document and its payment history outside any
// transaction.
func (s *Service) GetLedgerDocument(ctx context.Context, id snowflake.ID) (reconciliationdomain.LedgerDocumentDetail, error) {
	if id == 0 {
		return reconciliationdomain.LedgerDocumentDetail{}, reconciliationdomain.ErrInvalidDocumentID
	}

	conn := s.db.WithContext(ctx)
	doc, err := s.ledger.FindByID(ctx, conn, id)
	if err != nil {
		return reconciliationdomain.LedgerDocumentDetail{}, err
	}
	if doc == nil {
		return reconciliationdomain.LedgerDocumentDetail{}, reconciliationdomain.ErrNotFound
	}
	payments, err := s.ledger.ListPayments(ctx, conn, id)
	if err != nil {
		return reconciliationdomain.LedgerDocumentDetail{}, err
	}
	return reconciliationdomain.LedgerDocumentDetail{Document: *doc, Payments: payments}, nil
}

// RecordPayment applies a payment to a document and its parent bill in one
// transaction. A remainder invoice is created when the payment leaves a
// child invoice partially paid. Failing to create it does not fail the
// payment; it is reported as a warning instead.
func (s *Service) RecordPayment(ctx context.Context, req reconciliationdomain.RecordPaymentRequest) (reconciliationdomain.RecordPaymentResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObservePaymentDuration(time.Since(start)) }()

	ctx, span := tracer.Start(ctx, "reconciliation.record_payment")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", req.DocumentID.String()))

	if req.DocumentID == 0 {
		s.metrics.IncPayment(obsmetrics.PaymentOutcomeRejected)
		return reconciliationdomain.RecordPaymentResult{}, reconciliationdomain.ErrInvalidDocumentID
	}
	if !paymentdomain.ValidAmount(req.Amount) {
		s.metrics.IncPayment(obsmetrics.PaymentOutcomeRejected)
		return reconciliationdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidPaymentAmount
	}

	ctx = ctxlogger.ContextWithDocumentID(ctx, req.DocumentID.String())
	log := ctxlogger.WithContext(ctx, s.log).With(zap.String("amount", req.Amount.String()))

	var result reconciliationdomain.RecordPaymentResult
	var changed bool
	err := s.withTxRetry(ctx, obsmetrics.OperationRecordPayment, reconciliationdomain.ErrPaymentConflict, func(tx *gorm.DB) error {
		result = reconciliationdomain.RecordPaymentResult{}
		changed = false

		now := s.clock.Now()
		doc, parent, err := s.lockDocumentAndParent(ctx, tx, req.DocumentID)
		if err != nil {
			return err
		}

		decision, err := s.engine.ApplyPayment(*doc, req.Amount, now)
		if err != nil {
			return err
		}
		if !decision.Changed {
			result.Document = *doc
			result.ParentBill = parent
			return nil
		}
		changed = true

		applied := decision.FinalPaid.Sub(doc.AmountPaid)
		doc.AmountPaid = decision.FinalPaid
		doc.Balance = decision.NewBalance
		doc.Status = decision.NewStatus
		doc.PaidAt = decision.PaidAt
		doc.UpdatedAt = now
		if err := s.ledger.UpdatePaymentState(ctx, tx, doc); err != nil {
			return err
		}

		if parent != nil && applyToParent(parent, req.Amount, now) {
			if err := s.ledger.UpdatePaymentState(ctx, tx, parent); err != nil {
				return err
			}
		}

		paymentDate := req.PaymentDate
		if paymentDate.IsZero() {
			paymentDate = now
		}
		payment := &ledgerdomain.Payment{
			ID:             s.genID.Generate(),
			DocumentID:     doc.ID,
			BillID:         doc.ParentBillID,
			TenderedAmount: req.Amount,
			AppliedAmount:  applied,
			PaymentDate:    paymentDate,
			Notes:          req.Notes,
			CreatedAt:      now,
		}
		if err := s.ledger.InsertPayment(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, tx, auditdomain.ActionPaymentRecorded, doc.ID, map[string]any{
			"payment_id":      payment.ID.String(),
			"tendered_amount": req.Amount.String(),
			"applied_amount":  applied.String(),
			"status":          string(doc.Status),
		}); err != nil {
			return err
		}

		result.Document = *doc
		result.ParentBill = parent
		result.Payment = payment

		if decision.Split == nil {
			return nil
		}
		split, err := s.createSplit(ctx, tx, decision.Split, now)
		if err != nil {
			if db.IsRetryableTxErr(err) {
				return err
			}
			s.metrics.IncSplitFailure()
			span.RecordError(err)
			log.Error("remainder invoice not created", zap.Error(err))
			result.Warnings = append(result.Warnings, reconciliationdomain.Warning{
				Code:    reconciliationdomain.WarningSplitFailed,
				Message: err.Error(),
			})
			return nil
		}
		s.metrics.IncSplitCreated()
		result.SplitDocument = split
		return nil
	})
	if err != nil {
		s.metrics.IncPayment(paymentOutcome(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "record payment failed")
		return reconciliationdomain.RecordPaymentResult{}, err
	}

	if !changed {
		s.metrics.IncPayment(obsmetrics.PaymentOutcomeNoop)
		log.Info("document already settled, payment not applied")
		return result, nil
	}

	s.metrics.IncPayment(obsmetrics.PaymentOutcomeApplied)
	fields := []zap.Field{
		zap.String("reference_number", result.Document.ReferenceNumber),
		zap.String("status", string(result.Document.Status)),
		zap.String("balance", result.Document.Balance.String()),
	}
	if result.SplitDocument != nil {
		fields = append(fields, zap.String("split_reference_number", result.SplitDocument.ReferenceNumber))
	}
	log.Info("payment recorded", fields...)

	s.enqueueRender(result.Document)
	if result.ParentBill != nil {
		s.enqueueRender(*result.ParentBill)
	}
	if result.SplitDocument != nil {
		s.enqueueRender(*result.SplitDocument)
	}
	return result, nil
}

// GenerateLedgerDocument issues a child invoice for whatever the parent
// bill still owes.
func (s *Service) GenerateLedgerDocument(ctx context.Context, req reconciliationdomain.GenerateRequest) (ledgerdomain.LedgerDocument, error) {
	ctx, span := tracer.Start(ctx, "reconciliation.generate_invoice")
	defer span.End()

	if req.ParentBillID == 0 {
		return ledgerdomain.LedgerDocument{}, reconciliationdomain.ErrInvalidDocumentID
	}

	var created ledgerdomain.LedgerDocument
	err := s.withTxRetry(ctx, obsmetrics.OperationGenerateInvoice, reconciliationdomain.ErrConflict, func(tx *gorm.DB) error {
		now := s.clock.Now()
		parent, err := s.ledger.FindByIDForUpdate(ctx, tx, req.ParentBillID)
		if err != nil {
			return err
		}
		if parent == nil {
			return reconciliationdomain.ErrNotFound
		}
		if parent.Kind != ledgerdomain.DocumentKindBill {
			return reconciliationdomain.ErrNotABill
		}
		if parent.Status == ledgerdomain.StatusCancelled {
			return paymentdomain.ErrDocumentNotPayable
		}

		remaining := parent.GrandTotal.Sub(parent.AmountPaid)
		if !remaining.IsPositive() {
			return reconciliationdomain.ErrAlreadySettled
		}

		dueDate := req.DueDate
		if dueDate.IsZero() {
			dueDate = parent.DueDate
		}
		notes := req.Notes
		if notes == nil {
			notes = parent.Notes
		}

		subtotal, tax := splitRounded(remaining, parent.TaxRate)
		parentID := parent.ID
		invoice := &ledgerdomain.LedgerDocument{
			Kind:         ledgerdomain.DocumentKindBillInvoice,
			TenantID:     parent.TenantID,
			PropertyID:   parent.PropertyID,
			BillType:     parent.BillType,
			ParentBillID: &parentID,
			Subtotal:     subtotal,
			TaxRate:      parent.TaxRate,
			TaxMode:      parent.TaxMode,
			TaxAmount:    tax,
			GrandTotal:   remaining,
			AmountPaid:   decimal.Zero,
			Balance:      remaining,
			Status:       paymentservice.DeriveStatus(decimal.Zero, remaining, dueDate, now),
			IssueDate:    now,
			DueDate:      dueDate,
			MeterReading: cloneSnapshot(parent.MeterReading),
			Notes:        notes,
		}
		if err := s.insertWithReference(ctx, tx, invoice, referencedomain.KindBillInvoice, now); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, tx, auditdomain.ActionInvoiceGenerated, invoice.ID, map[string]any{
			"parent_bill_id":   parent.ID.String(),
			"reference_number": invoice.ReferenceNumber,
			"grand_total":      invoice.GrandTotal.String(),
		}); err != nil {
			return err
		}
		created = *invoice
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return ledgerdomain.LedgerDocument{}, err
	}

	ctxlogger.WithContext(ctx, s.log).Info("invoice generated",
		zap.String("document_id", created.ID.String()),
		zap.String("parent_bill_id", req.ParentBillID.String()),
		zap.String("reference_number", created.ReferenceNumber),
		zap.String("grand_total", created.GrandTotal.String()),
	)
	s.enqueueRender(created)
	return created, nil
}

// CreateBill prices a metered or rent charge and stores it as a root bill.
func (s *Service) CreateBill(ctx context.Context, req reconciliationdomain.CreateBillRequest) (ledgerdomain.LedgerDocument, error) {
	ctx, span := tracer.Start(ctx, "reconciliation.create_bill")
	defer span.End()

	billType := strings.TrimSpace(req.BillType)
	if req.TenantID == 0 || billType == "" || req.DueDate.IsZero() {
		return ledgerdomain.LedgerDocument{}, reconciliationdomain.ErrInvalidRequest
	}
	if (req.Metered == nil) == (req.Rent == nil) {
		return ledgerdomain.LedgerDocument{}, reconciliationdomain.ErrInvalidRequest
	}

	var (
		charge   taxdomain.Charge
		snapshot datatypes.JSONMap
		err      error
	)
	if req.Metered != nil {
		charge, err = s.calculator.ComputeCharge(*req.Metered)
		snapshot = datatypes.JSONMap{
			"previous_reading": req.Metered.PreviousReading.String(),
			"current_reading":  req.Metered.CurrentReading.String(),
			"units":            charge.Units.String(),
			"charge_per_unit":  req.Metered.ChargePerUnit.String(),
		}
	} else {
		charge, err = s.calculator.ComputeRentCharge(*req.Rent)
	}
	if err != nil {
		return ledgerdomain.LedgerDocument{}, err
	}
	charge = charge.Rounded()

	var created ledgerdomain.LedgerDocument
	err = s.withTxRetry(ctx, obsmetrics.OperationCreateBill, reconciliationdomain.ErrConflict, func(tx *gorm.DB) error {
		now := s.clock.Now()
		issueDate := req.IssueDate
		if issueDate.IsZero() {
			issueDate = now
		}

		status := paymentservice.DeriveStatus(decimal.Zero, charge.GrandTotal, req.DueDate, now)
		var paidAt *time.Time
		if status == ledgerdomain.StatusPaid {
			paidAt = &now
		}
		bill := &ledgerdomain.LedgerDocument{
			Kind:         ledgerdomain.DocumentKindBill,
			TenantID:     req.TenantID,
			PropertyID:   req.PropertyID,
			BillType:     billType,
			Subtotal:     charge.Subtotal,
			TaxRate:      charge.TaxRate,
			TaxMode:      charge.TaxMode,
			TaxAmount:    charge.TaxAmount,
			GrandTotal:   charge.GrandTotal,
			AmountPaid:   decimal.Zero,
			Balance:      charge.GrandTotal,
			Status:       status,
			IssueDate:    issueDate,
			DueDate:      req.DueDate,
			PaidAt:       paidAt,
			MeterReading: snapshot,
			Notes:        req.Notes,
		}
		if err := s.insertWithReference(ctx, tx, bill, referencedomain.KindBill, now); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, tx, auditdomain.ActionBillCreated, bill.ID, map[string]any{
			"reference_number": bill.ReferenceNumber,
			"bill_type":        bill.BillType,
			"grand_total":      bill.GrandTotal.String(),
		}); err != nil {
			return err
		}
		created = *bill
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return ledgerdomain.LedgerDocument{}, err
	}

	ctxlogger.WithContext(ctx, s.log).Info("bill created",
		zap.String("document_id", created.ID.String()),
		zap.String("reference_number", created.ReferenceNumber),
		zap.String("grand_total", created.GrandTotal.String()),
	)
	s.enqueueRender(created)
	return created, nil
}

// DeleteLedgerDocument removes a document. Deleting a child invoice takes
// what was paid on it back off the parent bill. A bill can only be deleted
// once it has no invoices.
func (s *Service) DeleteLedgerDocument(ctx context.Context, id snowflake.ID) error {
	ctx, span := tracer.Start(ctx, "reconciliation.delete_document")
	defer span.End()

	if id == 0 {
		return reconciliationdomain.ErrInvalidDocumentID
	}
	ctx = ctxlogger.ContextWithDocumentID(ctx, id.String())

	var parentAfter *ledgerdomain.LedgerDocument
	var deleted ledgerdomain.LedgerDocument
	err := s.withTxRetry(ctx, obsmetrics.OperationDeleteDocument, reconciliationdomain.ErrConflict, func(tx *gorm.DB) error {
		parentAfter = nil
		now := s.clock.Now()

		doc, parent, err := s.lockDocumentAndParent(ctx, tx, id)
		if err != nil {
			return err
		}

		if doc.Kind == ledgerdomain.DocumentKindBill {
			children, err := s.ledger.CountChildren(ctx, tx, doc.ID)
			if err != nil {
				return err
			}
			if children > 0 {
				return reconciliationdomain.ErrBillHasInvoices
			}
		}

		if parent != nil && doc.AmountPaid.IsPositive() && reverseFromParent(parent, doc.AmountPaid, now) {
			if err := s.ledger.UpdatePaymentState(ctx, tx, parent); err != nil {
				return err
			}
			parentAfter = parent
		}

		if err := s.ledger.Delete(ctx, tx, doc.ID); err != nil {
			if errors.Is(err, ledgerdomain.ErrNotFound) {
				return reconciliationdomain.ErrNotFound
			}
			return err
		}
		if err := s.recordAudit(ctx, tx, auditdomain.ActionDocumentDeleted, doc.ID, map[string]any{
			"reference_number": doc.ReferenceNumber,
			"kind":             string(doc.Kind),
			"amount_reversed":  doc.AmountPaid.String(),
		}); err != nil {
			return err
		}
		deleted = *doc
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	ctxlogger.WithContext(ctx, s.log).Info("ledger document deleted",
		zap.String("reference_number", deleted.ReferenceNumber),
		zap.String("amount_reversed", deleted.AmountPaid.String()),
	)
	if parentAfter != nil {
		s.enqueueRender(*parentAfter)
	}
	return nil
}

func (s *Service) CancelLedgerDocument(ctx context.Context, id snowflake.ID) (ledgerdomain.LedgerDocument, error) {
	ctx, span := tracer.Start(ctx, "reconciliation.cancel_document")
	defer span.End()

	if id == 0 {
		return ledgerdomain.LedgerDocument{}, reconciliationdomain.ErrInvalidDocumentID
	}
	ctx = ctxlogger.ContextWithDocumentID(ctx, id.String())

	var cancelled ledgerdomain.LedgerDocument
	var changed bool
	err := s.withTxRetry(ctx, obsmetrics.OperationCancelDocument, reconciliationdomain.ErrConflict, func(tx *gorm.DB) error {
		changed = false
		now := s.clock.Now()

		doc, err := s.ledger.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return reconciliationdomain.ErrNotFound
		}
		switch doc.Status {
		case ledgerdomain.StatusCancelled:
			cancelled = *doc
			return nil
		case ledgerdomain.StatusPaid:
			return reconciliationdomain.ErrNotCancellable
		}

		if err := s.ledger.UpdateStatus(ctx, tx, doc.ID, ledgerdomain.StatusCancelled, now); err != nil {
			return err
		}
		if err := s.recordAudit(ctx, tx, auditdomain.ActionDocumentCancelled, doc.ID, map[string]any{
			"reference_number": doc.ReferenceNumber,
			"previous_status":  string(doc.Status),
		}); err != nil {
			return err
		}
		doc.Status = ledgerdomain.StatusCancelled
		doc.Version++
		doc.UpdatedAt = now
		cancelled = *doc
		changed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return ledgerdomain.LedgerDocument{}, err
	}

	if changed {
		ctxlogger.WithContext(ctx, s.log).Info("ledger document cancelled",
			zap.String("reference_number", cancelled.ReferenceNumber),
		)
		s.enqueueRender(cancelled)
	}
	return cancelled, nil
}

// SweepOverdue moves UNPAID and PARTIAL documents past their due date to
// OVERDUE. Each document is re-checked under its row lock.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "reconciliation.sweep_overdue")
	defer span.End()

	log := ctxlogger.WithContext(ctx, s.log)
	marked := 0
	for {
		now := s.clock.Now()
		ids, err := s.ledger.ListOverdueCandidates(ctx, s.db.WithContext(ctx), now, overdueBatchSize)
		if err != nil {
			span.RecordError(err)
			return marked, err
		}

		for _, id := range ids {
			var flipped bool
			err := s.withTxRetry(ctx, obsmetrics.OperationSweepOverdue, reconciliationdomain.ErrConflict, func(tx *gorm.DB) error {
				flipped = false
				doc, err := s.ledger.FindByIDForUpdate(ctx, tx, id)
				if err != nil || doc == nil {
					return err
				}
				if doc.Status != ledgerdomain.StatusUnpaid && doc.Status != ledgerdomain.StatusPartial {
					return nil
				}
				if !doc.DueDate.Before(now) {
					return nil
				}
				if err := s.ledger.UpdateStatus(ctx, tx, doc.ID, ledgerdomain.StatusOverdue, now); err != nil {
					return err
				}
				flipped = true
				return nil
			})
			if err != nil {
				span.RecordError(err)
				s.metrics.AddOverdueMarked(marked)
				return marked, err
			}
			if flipped {
				marked++
			}
		}

		if len(ids) < overdueBatchSize {
			break
		}
	}

	s.metrics.AddOverdueMarked(marked)
	span.SetAttributes(attribute.Int("overdue.marked", marked))
	if marked > 0 {
		log.Info("overdue documents marked", zap.Int("count", marked))
	}
	return marked, nil
}

// lockDocumentAndParent locks the document and then its parent bill, in
// that order.
func (s *Service) lockDocumentAndParent(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*ledgerdomain.LedgerDocument, *ledgerdomain.LedgerDocument, error) {
	doc, err := s.ledger.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, reconciliationdomain.ErrNotFound
	}
	if !doc.IsChildInvoice() {
		return doc, nil, nil
	}

	parent, err := s.ledger.FindByIDForUpdate(ctx, tx, *doc.ParentBillID)
	if err != nil {
		return nil, nil, err
	}
	if parent == nil {
		return nil, nil, fmt.Errorf("parent bill %s: %w", doc.ParentBillID.String(), reconciliationdomain.ErrNotFound)
	}
	return doc, parent, nil
}

// createSplit stores the remainder invoice inside a savepoint so a failure
// leaves the payment writes intact.
func (s *Service) createSplit(ctx context.Context, tx *gorm.DB, split *ledgerdomain.LedgerDocument, now time.Time) (*ledgerdomain.LedgerDocument, error) {
	split.Subtotal, split.TaxAmount = splitRounded(split.GrandTotal, split.TaxRate)
	err := tx.Transaction(func(sp *gorm.DB) error {
		if err := s.insertWithReference(ctx, sp, split, referencedomain.KindBillInvoice, now); err != nil {
			return err
		}
		return s.recordAudit(ctx, sp, auditdomain.ActionRemainderIssued, split.ID, map[string]any{
			"split_from_id":    split.SplitFromID.String(),
			"reference_number": split.ReferenceNumber,
			"grand_total":      split.GrandTotal.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return split, nil
}

func (s *Service) insertWithReference(ctx context.Context, tx *gorm.DB, doc *ledgerdomain.LedgerDocument, kind referencedomain.Kind, now time.Time) error {
	reference, err := s.references.Next(ctx, tx, kind, now)
	if err != nil {
		return err
	}
	doc.ID = s.genID.Generate()
	doc.ReferenceNumber = reference
	doc.Version = 0
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return s.ledger.Insert(ctx, tx, doc)
}

func (s *Service) recordAudit(ctx context.Context, tx *gorm.DB, action string, id snowflake.ID, metadata map[string]any) error {
	if s.auditor == nil {
		return nil
	}
	target := id.String()
	return s.auditor.AuditLog(ctx, tx, action, auditdomain.TargetLedgerDocument, &target, metadata)
}

func (s *Service) enqueueRender(doc ledgerdomain.LedgerDocument) {
	if s.renders == nil {
		return
	}
	s.renders.Enqueue(doc)
}

// withTxRetry runs fn in a fresh transaction per attempt. Transient storage
// conflicts are retried with linear backoff; once attempts run out the
// conflict is reported as conflictErr.
func (s *Service) withTxRetry(ctx context.Context, operation string, conflictErr error, fn func(tx *gorm.DB) error) error {
	cfg := s.config.Get()
	log := ctxlogger.WithContext(ctx, s.log)

	var err error
	for attempt := 1; attempt <= cfg.MaxTxAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}

		s.metrics.IncTxRetry(operation, err)
		log.Warn(retryMessage(err),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < cfg.MaxTxAttempts {
			if err := sleep(ctx, cfg.TxBackoff*time.Duration(attempt)); err != nil {
				return err
			}
		}
	}

	s.metrics.IncTxConflict(operation)
	return fmt.Errorf("%w: %v", conflictErr, err)
}

func isTransient(err error) bool {
	return db.IsRetryableTxErr(err) || errors.Is(err, ledgerdomain.ErrVersionConflict)
}

func retryMessage(err error) string {
	if db.IsLockTimeoutErr(err) {
		return "lock wait timeout"
	}
	return "transaction conflict"
}

// applyToParent credits the tendered amount to the bill, clamped to its
// own total. It reports whether the bill changed.
func applyToParent(parent *ledgerdomain.LedgerDocument, amount decimal.Decimal, now time.Time) bool {
	if parent.Status == ledgerdomain.StatusPaid || parent.Status == ledgerdomain.StatusCancelled {
		return false
	}
	paid := decimal.Min(parent.AmountPaid.Add(amount), parent.GrandTotal)
	status := paymentservice.DeriveStatus(paid, parent.GrandTotal, parent.DueDate, now)
	if paid.Equal(parent.AmountPaid) && status == parent.Status {
		return false
	}
	parent.AmountPaid = paid
	parent.Balance = decimal.Max(decimal.Zero, parent.GrandTotal.Sub(paid))
	parent.Status = status
	if status == ledgerdomain.StatusPaid {
		parent.PaidAt = &now
	}
	parent.UpdatedAt = now
	return true
}

// reverseFromParent takes amount back off the bill, never below zero.
func reverseFromParent(parent *ledgerdomain.LedgerDocument, amount decimal.Decimal, now time.Time) bool {
	if parent.Status == ledgerdomain.StatusCancelled {
		return false
	}
	paid := decimal.Max(decimal.Zero, parent.AmountPaid.Sub(amount))
	if paid.Equal(parent.AmountPaid) {
		return false
	}
	parent.AmountPaid = paid
	parent.Balance = decimal.Max(decimal.Zero, parent.GrandTotal.Sub(paid))
	parent.Status = paymentservice.DeriveStatus(paid, parent.GrandTotal, parent.DueDate, now)
	if parent.Status != ledgerdomain.StatusPaid {
		parent.PaidAt = nil
	}
	parent.UpdatedAt = now
	return true
}

// splitRounded decomposes a tax inclusive amount at 2 decimal places with
// subtotal + tax equal to gross.
func splitRounded(gross decimal.Decimal, rate *decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	subtotal, _ := taxservice.SplitGross(gross, rate)
	subtotal = subtotal.Round(2)
	return subtotal, gross.Sub(subtotal)
}

func cloneSnapshot(src datatypes.JSONMap) datatypes.JSONMap {
	if src == nil {
		return nil
	}
	out := make(datatypes.JSONMap, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func paymentOutcome(err error) string {
	switch {
	case errors.Is(err, reconciliationdomain.ErrPaymentConflict):
		return obsmetrics.PaymentOutcomeConflict
	case errors.Is(err, paymentdomain.ErrInvalidPaymentAmount),
		errors.Is(err, paymentdomain.ErrDocumentNotPayable),
		errors.Is(err, reconciliationdomain.ErrNotFound):
		return obsmetrics.PaymentOutcomeRejected
	default:
		return obsmetrics.PaymentOutcomeError
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
