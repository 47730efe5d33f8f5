package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/audit"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	"github.com/smallbiznis/rentledger/internal/ledger"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	"github.com/smallbiznis/rentledger/internal/payment"
	"github.com/smallbiznis/rentledger/internal/reconciliation"
	"github.com/smallbiznis/rentledger/internal/reference"
	"github.com/smallbiznis/rentledger/internal/scheduler"
	"github.com/smallbiznis/rentledger/internal/tax"
	"github.com/smallbiznis/rentledger/pkg/db"
	"github.com/smallbiznis/rentledger/pkg/log"
	"github.com/smallbiznis/rentledger/pkg/telemetry"
	"go.uber.org/fx"
)

// The scheduler binary runs the overdue sweep without an HTTP listener. Run
// more than one replica only with REDIS_ADDR set so the sweep lock is shared.
func main() {
	app := fx.New(
		config.Module,
		log.Module,
		telemetry.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		ledger.Module,
		audit.Module,
		tax.Module,
		reference.Module,
		payment.Module,
		reconciliation.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}
