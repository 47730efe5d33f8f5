package pdf

import (
	"context"

	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	"github.com/smallbiznis/rentledger/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// Renderer turns a ledger document into a printable statement.
type Renderer interface {
	Render(ctx context.Context, doc ledgerdomain.LedgerDocument) ([]byte, error)
}

// Sink receives rendered statements.
type Sink interface {
	Store(ctx context.Context, doc ledgerdomain.LedgerDocument, content []byte) error
}

// Queue accepts documents for rendering after their transaction commits.
// Enqueue must not block.
type Queue interface {
	Enqueue(doc ledgerdomain.LedgerDocument) bool
}

type logSink struct {
	log *zap.Logger
}

// NewLogSink returns a Sink that only records what was rendered.
func NewLogSink(log *zap.Logger) Sink {
	return &logSink{log: log.Named("pdf.sink")}
}

func (s *logSink) Store(ctx context.Context, doc ledgerdomain.LedgerDocument, content []byte) error {
	ctxlogger.WithContext(ctx, s.log).Info("statement rendered",
		zap.String("document_id", doc.ID.String()),
		zap.String("reference_number", doc.ReferenceNumber),
		zap.String("status", string(doc.Status)),
		zap.Int("bytes", len(content)),
	)
	return nil
}
