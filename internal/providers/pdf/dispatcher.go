package pdf

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/rentledger/internal/config"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultQueueSize     = 256
	defaultRenderTimeout = 30 * time.Second
)

type DispatcherParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Renderer  Renderer
	Sink      Sink
	Metrics   *obsmetrics.ReconcileMetrics `optional:"true"`
}

// Dispatcher renders committed documents on a single background worker.
// When the queue is full new documents are dropped and counted.
type Dispatcher struct {
	log      *zap.Logger
	renderer Renderer
	sink     Sink
	metrics  *obsmetrics.ReconcileMetrics
	timeout  time.Duration

	queue    chan ledgerdomain.LedgerDocument
	quit     chan struct{}
	done     chan struct{}
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	d := newDispatcher(p.Log, p.Renderer, p.Sink, p.Metrics, p.Config.Render.QueueSize)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			d.Start()
			return nil
		},
		OnStop: d.Stop,
	})
	return d
}

func newDispatcher(log *zap.Logger, renderer Renderer, sink Sink, metrics *obsmetrics.ReconcileMetrics, size int) *Dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Dispatcher{
		log:      log.Named("pdf.dispatcher"),
		renderer: renderer,
		sink:     sink,
		metrics:  metrics,
		timeout:  defaultRenderTimeout,
		queue:    make(chan ledgerdomain.LedgerDocument, size),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Enqueue(doc ledgerdomain.LedgerDocument) bool {
	select {
	case d.queue <- doc:
		return true
	default:
		d.metrics.IncRender(obsmetrics.RenderResultDropped)
		d.log.Warn("render queue full, dropping document",
			zap.String("document_id", doc.ID.String()),
			zap.String("reference_number", doc.ReferenceNumber),
		)
		return false
	}
}

func (d *Dispatcher) Start() {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	if d.started {
		return
	}
	d.started = true
	go d.run()
}

// Stop renders whatever is already queued, then returns. It gives up when
// ctx ends first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.startMu.Lock()
	started := d.started
	d.startMu.Unlock()
	if !started {
		return nil
	}

	d.stopOnce.Do(func() { close(d.quit) })
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case doc := <-d.queue:
			d.render(doc)
		case <-d.quit:
			for {
				select {
				case doc := <-d.queue:
					d.render(doc)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) render(doc ledgerdomain.LedgerDocument) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	log := d.log.With(
		zap.String("document_id", doc.ID.String()),
		zap.String("reference_number", doc.ReferenceNumber),
	)

	content, err := d.renderer.Render(ctx, doc)
	if err != nil {
		d.metrics.IncRender(obsmetrics.RenderResultFailed)
		log.Error("render statement failed", zap.Error(err))
		return
	}
	if err := d.sink.Store(ctx, doc, content); err != nil {
		d.metrics.IncRender(obsmetrics.RenderResultFailed)
		log.Error("store statement failed", zap.Error(err))
		return
	}
	d.metrics.IncRender(obsmetrics.RenderResultRendered)
}
