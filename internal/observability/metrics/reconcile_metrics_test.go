package metrics

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReconcileMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewReconcileMetrics(registry, Config{ServiceName: "rentledger", Environment: "test"})

	m.IncPayment(PaymentOutcomeApplied)
	m.IncPayment(PaymentOutcomeApplied)
	m.IncTxRetry(OperationRecordPayment, &pgconn.PgError{Code: "40001"})
	m.IncTxConflict(OperationRecordPayment)
	m.IncReferenceFallback("BILL_INVOICE")
	m.IncRender(RenderResultDropped)
	m.AddOverdueMarked(4)

	if got := testutil.ToFloat64(m.payments.WithLabelValues(PaymentOutcomeApplied)); got != 2 {
		t.Fatalf("expected 2 applied payments, got %v", got)
	}
	if got := testutil.ToFloat64(m.txRetries.WithLabelValues(OperationRecordPayment, SchedulerJobReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 serialization retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.txConflicts.WithLabelValues(OperationRecordPayment)); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := testutil.ToFloat64(m.referenceFallbacks.WithLabelValues("BILL_INVOICE")); got != 1 {
		t.Fatalf("expected 1 fallback, got %v", got)
	}
	if got := testutil.ToFloat64(m.renderResults.WithLabelValues(RenderResultDropped)); got != 1 {
		t.Fatalf("expected 1 dropped render, got %v", got)
	}
	if got := testutil.ToFloat64(m.overdueMarked); got != 4 {
		t.Fatalf("expected 4 overdue, got %v", got)
	}
}

func TestReconcileMetrics_NilSafe(t *testing.T) {
	var m *ReconcileMetrics
	m.IncPayment(PaymentOutcomeApplied)
	m.IncSplitFailure()
	m.IncReferenceCollision("BILL")
	m.AddOverdueMarked(1)
}
