package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/rentledger/pkg/log/ctxlogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

var errDuplicate = errors.New("UNIQUE constraint failed: reference_numbers.value")

func newObservedLogger(level gormlogger.LogLevel) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := DefaultGormLoggerConfig()
	cfg.Level = level
	cfg.Expected = func(err error) bool { return errors.Is(err, errDuplicate) }
	return NewGormLogger(zap.New(core), cfg), logs
}

func insertReference() (string, int64) {
	return `INSERT INTO "reference_numbers" ("value") VALUES ($1)`, 0
}

func TestGormLogger_Trace(t *testing.T) {
	cases := []struct {
		name    string
		level   gormlogger.LogLevel
		begin   time.Time
		err     error
		entries int
		want    zapcore.Level
	}{
		{name: "failure is error", level: gormlogger.Warn, begin: time.Now(), err: errors.New("boom"), entries: 1, want: zapcore.ErrorLevel},
		{name: "expected failure is debug", level: gormlogger.Warn, begin: time.Now(), err: errDuplicate, entries: 1, want: zapcore.DebugLevel},
		{name: "not found is quiet at warn", level: gormlogger.Warn, begin: time.Now(), err: gormlogger.ErrRecordNotFound},
		{name: "slow query is warn", level: gormlogger.Warn, begin: time.Now().Add(-time.Second), entries: 1, want: zapcore.WarnLevel},
		{name: "fast query is quiet at warn", level: gormlogger.Warn, begin: time.Now()},
		{name: "fast query is debug at info", level: gormlogger.Info, begin: time.Now(), entries: 1, want: zapcore.DebugLevel},
		{name: "silent", level: gormlogger.Silent, begin: time.Now(), err: errors.New("boom")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, logs := newObservedLogger(tc.level)
			l.Trace(context.Background(), tc.begin, insertReference, tc.err)

			entries := logs.All()
			require.Len(t, entries, tc.entries)
			if tc.entries == 0 {
				return
			}
			assert.Equal(t, tc.want, entries[0].Level)
			fields := entries[0].ContextMap()
			assert.Equal(t, "INSERT", fields["operation"])
			assert.Equal(t, "reference_numbers", fields["table"])
		})
	}
}

func TestGormLogger_CarriesDocumentID(t *testing.T) {
	l, logs := newObservedLogger(gormlogger.Warn)
	ctx := ctxlogger.ContextWithDocumentID(context.Background(), "1234")

	l.Trace(ctx, time.Now(), insertReference, errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "1234", logs.All()[0].ContextMap()["document_id"])
}

func TestGormLogger_LogModeDoesNotMutate(t *testing.T) {
	l, _ := newObservedLogger(gormlogger.Warn)
	verbose := l.LogMode(gormlogger.Info).(*GormLogger)

	assert.Equal(t, gormlogger.Info, verbose.level)
	assert.Equal(t, gormlogger.Warn, l.level)
}

func TestGormLogger_ParamsFilterDropsValues(t *testing.T) {
	l, _ := newObservedLogger(gormlogger.Info)
	sql, params := l.ParamsFilter(context.Background(), "SELECT 1 WHERE tenant_id = ?", int64(42))
	assert.Equal(t, "SELECT 1 WHERE tenant_id = ?", sql)
	assert.Nil(t, params)
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "ledger_documents", tableFromSQL(`SELECT * FROM "ledger_documents" WHERE id = $1 FOR UPDATE`))
	assert.Equal(t, "ledger_documents", tableFromSQL("UPDATE `ledger_documents` SET status = ?"))
	assert.Equal(t, "", tableFromSQL("SAVEPOINT sp1"))
	assert.Equal(t, "SAVEPOINT", operationFromSQL("SAVEPOINT sp1"))
}
