package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	obslogger "github.com/smallbiznis/rentledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/rentledger/internal/observability/tracing"
	reconciliationdomain "github.com/smallbiznis/rentledger/internal/reconciliation/domain"
	referencedomain "github.com/smallbiznis/rentledger/internal/reference/domain"
	taxdomain "github.com/smallbiznis/rentledger/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	Config      config.Config
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if !isDebug(p.Config) {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           isDebug(p.Config),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ActorContext())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func isDebug(cfg config.Config) bool {
	if strings.EqualFold(strings.TrimSpace(cfg.Logger.Level), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type ServerParams struct {
	fx.In

	Engine     *gin.Engine
	DB         *gorm.DB
	Reconciler reconciliationdomain.Service
	Calculator taxdomain.Calculator
	References referencedomain.Generator
	Clock      clock.Clock `optional:"true"`
}

// Server adapts the ledger core to HTTP. Callers are authenticated and
// authorized before requests reach it.
type Server struct {
	engine     *gin.Engine
	db         *gorm.DB
	reconciler reconciliationdomain.Service
	calculator taxdomain.Calculator
	references referencedomain.Generator
	clock      clock.Clock
}

func NewServer(p ServerParams) *Server {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	s := &Server{
		engine:     p.Engine,
		db:         p.DB,
		reconciler: p.Reconciler,
		calculator: p.Calculator,
		references: p.References,
		clock:      c,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	documents := v1.Group("/ledger-documents")
	documents.GET("/:id", s.GetLedgerDocument)
	documents.POST("/:id/payments", s.RecordPayment)
	documents.POST("/:id/cancel", s.CancelLedgerDocument)
	documents.DELETE("/:id", s.DeleteLedgerDocument)

	bills := v1.Group("/bills")
	bills.POST("", s.CreateBill)
	bills.POST("/:id/invoices", s.GenerateLedgerDocument)

	charges := v1.Group("/charges")
	charges.POST("/metered", s.ComputeMeteredCharge)
	charges.POST("/rent", s.ComputeRentCharge)

	v1.POST("/reference-numbers", s.IssueReferenceNumber)
}
