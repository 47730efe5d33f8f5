package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  fmt.Errorf("record payment: %w", &pgconn.PgError{Code: "40001"}),
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "deadlock",
			err:  &pgconn.PgError{Code: "40P01"},
			want: SchedulerJobReasonDeadlock,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSchedulerMetrics(registry, Config{
		ServiceName: "rentledger",
		Environment: "test",
	})

	metrics.AddBatchProcessed("overdue_sweep", "ledger_documents", 3)
	metrics.AddBatchProcessed("overdue_sweep", "ledger_documents", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("overdue_sweep", "ledger_documents"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestObserveRunLoopLag_ClampsNegative(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSchedulerMetrics(registry, Config{})

	metrics.ObserveRunLoopLag(-time.Second)

	if got := testutil.CollectAndCount(registry, "rentledger_scheduler_runloop_lag_seconds"); got != 1 {
		t.Fatalf("expected one lag series, got %d", got)
	}
}

func TestSchedulerMetrics_NilSafe(t *testing.T) {
	var metrics *SchedulerMetrics
	metrics.IncJobRun("overdue_sweep")
	metrics.IncJobError("overdue_sweep", errors.New("boom"))
	metrics.IncJobSkipped("overdue_sweep", SchedulerJobReasonLockHeld)
	metrics.ObserveJobDuration("overdue_sweep", time.Second)
}
