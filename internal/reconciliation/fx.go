package reconciliation

import (
	"github.com/smallbiznis/rentledger/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(service.NewService),
)
