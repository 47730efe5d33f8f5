package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/audit"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	"github.com/smallbiznis/rentledger/internal/ledger"
	"github.com/smallbiznis/rentledger/internal/migration"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	"github.com/smallbiznis/rentledger/internal/payment"
	"github.com/smallbiznis/rentledger/internal/providers/pdf"
	"github.com/smallbiznis/rentledger/internal/reconciliation"
	"github.com/smallbiznis/rentledger/internal/reference"
	"github.com/smallbiznis/rentledger/internal/server"
	"github.com/smallbiznis/rentledger/internal/tax"
	"github.com/smallbiznis/rentledger/pkg/db"
	"github.com/smallbiznis/rentledger/pkg/log"
	"github.com/smallbiznis/rentledger/pkg/telemetry"
	"go.uber.org/fx"
)

// The API binary serves HTTP only. Overdue sweeps run in apps/scheduler.
func main() {
	app := fx.New(
		config.Module,
		log.Module,
		telemetry.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		ledger.Module,
		audit.Module,
		tax.Module,
		reference.Module,
		payment.Module,
		pdf.Module,
		reconciliation.Module,

		server.Module,
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
