package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PaymentOutcomeApplied  = "applied"
	PaymentOutcomeNoop     = "noop"
	PaymentOutcomeRejected = "rejected"
	PaymentOutcomeConflict = "conflict"
	PaymentOutcomeError    = "error"
)

const (
	RenderResultRendered = "rendered"
	RenderResultFailed   = "failed"
	RenderResultDropped  = "dropped"
)

const (
	OperationRecordPayment   = "record_payment"
	OperationGenerateInvoice = "generate_invoice"
	OperationCreateBill      = "create_bill"
	OperationDeleteDocument  = "delete_document"
	OperationCancelDocument  = "cancel_document"
	OperationSweepOverdue    = "sweep_overdue"
)

// ReconcileMetrics tracks payment reconciliation, reference numbering and
// post-commit rendering.
type ReconcileMetrics struct {
	payments            *prometheus.CounterVec
	paymentDuration     prometheus.Observer
	txRetries           *prometheus.CounterVec
	txConflicts         *prometheus.CounterVec
	splitFailures       prometheus.Counter
	splitsCreated       prometheus.Counter
	referenceCollisions *prometheus.CounterVec
	referenceFallbacks  *prometheus.CounterVec
	renderResults       *prometheus.CounterVec
	overdueMarked       prometheus.Counter
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the singleton reconciliation metrics registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

// ReconcileWithConfig returns the singleton registry using config labels.
func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = NewReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// NewReconcileMetrics registers a fresh set of collectors on registerer.
func NewReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_payments_total",
		Help:        "Payments recorded against ledger documents by outcome.",
		ConstLabels: labels,
	}, []string{"outcome"})
	paymentDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "rentledger_payment_duration_seconds",
		Help:        "End to end latency of recording a payment, retries included.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: labels,
	})
	txRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_tx_retries_total",
		Help:        "Transactions retried after a transient storage conflict.",
		ConstLabels: labels,
	}, []string{"operation", "reason"})
	txConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_tx_conflicts_total",
		Help:        "Transactions abandoned after exhausting conflict retries.",
		ConstLabels: labels,
	}, []string{"operation"})
	splitFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "rentledger_split_failures_total",
		Help:        "Remainder invoices that could not be created after a partial payment.",
		ConstLabels: labels,
	})
	splitsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "rentledger_splits_created_total",
		Help:        "Remainder invoices created after a partial payment.",
		ConstLabels: labels,
	})
	referenceCollisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_reference_collisions_total",
		Help:        "Reference number claims that hit the uniqueness constraint.",
		ConstLabels: labels,
	}, []string{"kind"})
	referenceFallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_reference_fallbacks_total",
		Help:        "Reference numbers issued through the timestamp-suffixed fallback.",
		ConstLabels: labels,
	}, []string{"kind"})
	renderResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentledger_render_total",
		Help:        "Post-commit document renders by result.",
		ConstLabels: labels,
	}, []string{"result"})
	overdueMarked := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "rentledger_overdue_marked_total",
		Help:        "Ledger documents moved to OVERDUE by the sweep.",
		ConstLabels: labels,
	})

	registerer.MustRegister(
		payments,
		paymentDuration,
		txRetries,
		txConflicts,
		splitFailures,
		splitsCreated,
		referenceCollisions,
		referenceFallbacks,
		renderResults,
		overdueMarked,
	)

	return &ReconcileMetrics{
		payments:            payments,
		paymentDuration:     paymentDuration,
		txRetries:           txRetries,
		txConflicts:         txConflicts,
		splitFailures:       splitFailures,
		splitsCreated:       splitsCreated,
		referenceCollisions: referenceCollisions,
		referenceFallbacks:  referenceFallbacks,
		renderResults:       renderResults,
		overdueMarked:       overdueMarked,
	}
}

func (m *ReconcileMetrics) IncPayment(outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(outcome).Inc()
}

func (m *ReconcileMetrics) ObservePaymentDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.paymentDuration.Observe(d.Seconds())
}

// IncTxRetry counts a retried transaction, labelled by the job reason of err.
func (m *ReconcileMetrics) IncTxRetry(operation string, err error) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(operation, ClassifySchedulerJobReason(err)).Inc()
}

func (m *ReconcileMetrics) IncTxConflict(operation string) {
	if m == nil {
		return
	}
	m.txConflicts.WithLabelValues(operation).Inc()
}

func (m *ReconcileMetrics) IncSplitFailure() {
	if m == nil {
		return
	}
	m.splitFailures.Inc()
}

func (m *ReconcileMetrics) IncSplitCreated() {
	if m == nil {
		return
	}
	m.splitsCreated.Inc()
}

func (m *ReconcileMetrics) IncReferenceCollision(kind string) {
	if m == nil {
		return
	}
	m.referenceCollisions.WithLabelValues(kind).Inc()
}

func (m *ReconcileMetrics) IncReferenceFallback(kind string) {
	if m == nil {
		return
	}
	m.referenceFallbacks.WithLabelValues(kind).Inc()
}

func (m *ReconcileMetrics) IncRender(result string) {
	if m == nil {
		return
	}
	m.renderResults.WithLabelValues(result).Inc()
}

func (m *ReconcileMetrics) AddOverdueMarked(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.overdueMarked.Add(float64(count))
}
