package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	referencedomain "github.com/smallbiznis/rentledger/internal/reference/domain"
	"github.com/smallbiznis/rentledger/pkg/db"
	"github.com/smallbiznis/rentledger/pkg/log/ctxlogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("rentledger/reference")

type Params struct {
	fx.In

	Repo    referencedomain.Repository
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock                   `optional:"true"`
	Config  *config.ReconcileConfigHolder `optional:"true"`
	Metrics *obsmetrics.ReconcileMetrics  `optional:"true"`
}

type Generator struct {
	repo    referencedomain.Repository
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	config  *config.ReconcileConfigHolder
	metrics *obsmetrics.ReconcileMetrics
}

func NewGenerator(p Params) referencedomain.Generator {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Generator{
		repo:    p.Repo,
		log:     p.Log.Named("reference.generator"),
		genID:   p.GenID,
		clock:   c,
		config:  p.Config,
		metrics: p.Metrics,
	}
}

// Next reads the highest issued value, claims the one after it and retries
// with a fresh read when a concurrent caller claimed it first. Once the
// attempts run out it claims a timestamp-suffixed value instead.
func (g *Generator) Next(ctx context.Context, conn *gorm.DB, kind referencedomain.Kind, at time.Time) (string, error) {
	scheme, err := kind.Scheme()
	if err != nil {
		return "", err
	}
	periodKey := scheme.PeriodKey(at)

	ctx, span := tracer.Start(ctx, "reference.next")
	defer span.End()
	span.SetAttributes(
		attribute.String("reference.kind", string(kind)),
		attribute.String("reference.period", periodKey),
	)

	cfg := g.config.Get()
	log := ctxlogger.WithContext(ctx, g.log).With(
		zap.String("kind", string(kind)),
		zap.String("period_key", periodKey),
	)

	var sequence int64
	for attempt := 1; attempt <= cfg.MaxReferenceAttempts; attempt++ {
		sequence, err = g.nextSequence(ctx, conn, scheme.Prefix, periodKey)
		if err != nil {
			span.RecordError(err)
			return "", err
		}

		value := referencedomain.Format(scheme.Prefix, periodKey, sequence)
		err = g.repo.Claim(ctx, conn, &referencedomain.ReferenceNumber{
			ID:        g.genID.Generate(),
			Value:     value,
			Kind:      kind,
			PeriodKey: periodKey,
			Sequence:  sequence,
			CreatedAt: g.clock.Now(),
		})
		if err == nil {
			span.SetAttributes(attribute.Int("reference.attempts", attempt))
			return value, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			span.RecordError(err)
			return "", fmt.Errorf("claim reference number: %w", err)
		}

		g.metrics.IncReferenceCollision(string(kind))
		log.Debug("reference number taken, retrying",
			zap.String("value", value),
			zap.Int("attempt", attempt),
		)
		if attempt < cfg.MaxReferenceAttempts {
			if err := sleep(ctx, cfg.ReferenceBackoff*time.Duration(attempt)); err != nil {
				return "", err
			}
		}
	}

	fallback := fmt.Sprintf("%s-%d", referencedomain.Format(scheme.Prefix, periodKey, sequence+1), g.clock.Now().UnixNano())
	err = g.repo.Claim(ctx, conn, &referencedomain.ReferenceNumber{
		ID:        g.genID.Generate(),
		Value:     fallback,
		Kind:      kind,
		PeriodKey: periodKey,
		Sequence:  sequence + 1,
		Fallback:  true,
		CreatedAt: g.clock.Now(),
	})
	if err != nil {
		span.SetStatus(codes.Error, "reference number exhausted")
		if db.IsDuplicateKeyErr(err) {
			log.Error("fallback reference number collided", zap.String("value", fallback))
			return "", referencedomain.ErrReferenceNumberExhausted
		}
		return "", fmt.Errorf("claim fallback reference number: %w", err)
	}

	g.metrics.IncReferenceFallback(string(kind))
	log.Warn("issued fallback reference number",
		zap.String("value", fallback),
		zap.Int("attempts", cfg.MaxReferenceAttempts),
	)
	span.SetAttributes(attribute.Bool("reference.fallback", true))
	return fallback, nil
}

func (g *Generator) nextSequence(ctx context.Context, conn *gorm.DB, prefix, periodKey string) (int64, error) {
	highest, err := g.repo.Highest(ctx, conn, prefix, periodKey)
	if err != nil {
		return 0, fmt.Errorf("read highest reference number: %w", err)
	}
	if highest == "" {
		return 1, nil
	}
	seq, ok := referencedomain.ParseSequence(highest, prefix, periodKey)
	if !ok {
		return 0, fmt.Errorf("malformed reference number %q", highest)
	}
	return seq + 1, nil
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
