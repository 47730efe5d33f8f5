package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/rentledger/internal/config"
	"go.uber.org/fx"
)

// Config carries the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

var Module = fx.Module("observability.metrics",
	fx.Provide(ConfigFrom),
	fx.Provide(ReconcileWithConfig),
	fx.Provide(SchedulerWithConfig),
	fx.Provide(HTTPWithConfig),
)

func ConfigFrom(cfg config.Config) Config {
	return Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	}
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "rentledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
