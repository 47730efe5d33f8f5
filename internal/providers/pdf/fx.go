package pdf

import (
	"github.com/smallbiznis/rentledger/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("pdf",
	fx.Provide(NewRenderer),
	fx.Provide(NewLogSink),
	fx.Provide(NewDispatcher),
	fx.Provide(ProvideQueue),
)

// ProvideQueue hands the dispatcher to the ledger services, or nothing when
// rendering is switched off.
func ProvideQueue(cfg config.Config, d *Dispatcher) Queue {
	if !cfg.Render.Enabled {
		return nil
	}
	return d
}
