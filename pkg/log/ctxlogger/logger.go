package ctxlogger

import (
	"context"
	"sync/atomic"

	"github.com/smallbiznis/rentledger/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type documentKey struct{}

var serviceName atomic.Pointer[string]

// SetServiceName configures the service name added to every log entry.
func SetServiceName(name string) {
	serviceName.Store(&name)
}

// ContextWithDocumentID tags every entry logged with ctx with the ledger
// document being worked on.
func ContextWithDocumentID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, documentKey{}, id)
}

func DocumentIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(documentKey{}).(string)
	return id
}

// FromContext is WithContext over the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds service, correlation, trace and document fields found in
// ctx to base.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.L()
	}
	if ctx == nil {
		return base
	}

	name := "rentledger"
	if namePtr := serviceName.Load(); namePtr != nil && *namePtr != "" {
		name = *namePtr
	}

	fields := make([]zap.Field, 0, 5)
	fields = append(fields, zap.String("service", name))
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	fields = append(fields, traceFields(ctx)...)
	if id := DocumentIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("document_id", id))
	}
	return base.With(fields...)
}

func traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
