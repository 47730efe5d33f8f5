package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/rentledger/internal/audit/domain"
	"github.com/smallbiznis/rentledger/internal/audit/repository"
	"github.com/smallbiznis/rentledger/internal/clock"
	dbtest "github.com/smallbiznis/rentledger/internal/testutil"
	"github.com/smallbiznis/rentledger/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2025, time.May, 14, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T) (auditdomain.Service, auditdomain.Repository) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()
	return NewService(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repo,
		Clock: clock.NewFakeClock(now),
	}), repo
}

func TestAuditLog_RecordsActorAndCorrelation(t *testing.T) {
	db := dbtest.OpenDB(t)
	svc, repo := newService(t)

	ctx := auditdomain.ContextWithActor(context.Background(), "user", " clerk-9 ")
	ctx = correlation.ContextWithCorrelationID(ctx, "req-1")
	target := "42"

	err := svc.AuditLog(ctx, db, auditdomain.ActionDocumentCancelled, auditdomain.TargetLedgerDocument, &target, map[string]any{
		"status": "UNPAID",
		"":       "dropped",
	})
	require.NoError(t, err)

	logs, err := repo.ListByTarget(context.Background(), db, auditdomain.TargetLedgerDocument, "42")
	require.NoError(t, err)
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, auditdomain.ActionDocumentCancelled, entry.Action)
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "clerk-9", *entry.ActorID)
	assert.Equal(t, "UNPAID", entry.Metadata["status"])
	assert.Equal(t, "req-1", entry.Metadata["correlation_id"])
	assert.NotContains(t, entry.Metadata, "")
	assert.True(t, entry.CreatedAt.Equal(now))
}

func TestAuditLog_DefaultsToSystemActor(t *testing.T) {
	db := dbtest.OpenDB(t)
	svc, repo := newService(t)
	target := "7"

	require.NoError(t, svc.AuditLog(context.Background(), db, auditdomain.ActionBillCreated, "", &target, nil))

	logs, err := repo.ListByTarget(context.Background(), db, "unknown", "7")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), logs[0].ActorType)
	assert.Nil(t, logs[0].ActorID)
}

func TestAuditLog_RollsBackWithTransaction(t *testing.T) {
	db := dbtest.OpenDB(t)
	svc, repo := newService(t)
	target := "9"
	rollback := errors.New("rollback")

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.AuditLog(context.Background(), tx, auditdomain.ActionDocumentDeleted, auditdomain.TargetLedgerDocument, &target, nil))
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	logs, err := repo.ListByTarget(context.Background(), db, auditdomain.TargetLedgerDocument, "9")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestAuditLog_RequiresAction(t *testing.T) {
	svc, _ := newService(t)
	err := svc.AuditLog(context.Background(), nil, " ", auditdomain.TargetLedgerDocument, nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}
