package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/rentledger/pkg/log/ctxlogger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration

	// Expected reports errors the caller handles itself, such as the
	// duplicate key raised when two reference numbers race for the same
	// value. They are logged at debug instead of error.
	Expected func(err error) bool
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// GormLogger routes gorm output through zap with the request context
// fields attached.
type GormLogger struct {
	log           *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	expected      func(err error) bool
}

func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if base == nil {
		base = zap.L()
	}
	return &GormLogger{
		log:           base.Named("gorm"),
		level:         cfg.Level,
		slowThreshold: cfg.SlowThreshold,
		expected:      cfg.Expected,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.message(ctx, zapcore.InfoLevel, msg, data)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.message(ctx, zapcore.WarnLevel, msg, data)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.message(ctx, zapcore.ErrorLevel, msg, data)
	}
}

// Trace logs failed statements at error, slow ones at warn and the rest at
// debug when the level is Info. Record-not-found is never an error here:
// the repositories turn it into a nil document.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.level >= gormlogger.Info {
			l.query(ctx, zapcore.DebugLevel, fc, elapsed, nil)
		}
	case err != nil && l.expected != nil && l.expected(err):
		l.query(ctx, zapcore.DebugLevel, fc, elapsed, err)
	case err != nil && l.level >= gormlogger.Error:
		l.query(ctx, zapcore.ErrorLevel, fc, elapsed, err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.query(ctx, zapcore.WarnLevel, fc, elapsed, nil, zap.Bool("slow", true))
	case l.level >= gormlogger.Info:
		l.query(ctx, zapcore.DebugLevel, fc, elapsed, nil)
	}
}

// ParamsFilter drops bound values; tenant and amount data stays out of the
// query log.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) message(ctx context.Context, level zapcore.Level, msg string, data []interface{}) {
	fields := make([]zap.Field, 0, 1)
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	ctxlogger.WithContext(ctx, l.log).Log(level, msg, fields...)
}

func (l *GormLogger) query(ctx context.Context, level zapcore.Level, fc func() (string, int64), elapsed time.Duration, err error, extra ...zap.Field) {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	fields = append(fields, extra...)
	ctxlogger.WithContext(ctx, l.log).Log(level, "gorm.query", fields...)
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "SAVEPOINT", "RELEASE", "ROLLBACK":
			return token
		}
	}
	return "UNKNOWN"
}

// tableFromSQL finds the table after FROM, INTO or UPDATE.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE":
			return strings.Trim(tokens[i+1], "`\"();")
		}
	}
	return ""
}

var _ gormlogger.Interface = (*GormLogger)(nil)
