package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	MinAttempts = 3
	MaxAttempts = 5
)

// ReconcileConfig bounds the retry behaviour of payment reconciliation and
// reference number generation.
type ReconcileConfig struct {
	MaxTxAttempts        int           `mapstructure:"maxTxAttempts"`
	TxBackoff            time.Duration `mapstructure:"txBackoff"`
	MaxReferenceAttempts int           `mapstructure:"maxReferenceAttempts"`
	ReferenceBackoff     time.Duration `mapstructure:"referenceBackoff"`
	OverdueSweepInterval time.Duration `mapstructure:"overdueSweepInterval"`
	OverdueSweepLockTTL  time.Duration `mapstructure:"overdueSweepLockTTL"`
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		MaxTxAttempts:        4,
		TxBackoff:            25 * time.Millisecond,
		MaxReferenceAttempts: 5,
		ReferenceBackoff:     5 * time.Millisecond,
		OverdueSweepInterval: 15 * time.Minute,
		OverdueSweepLockTTL:  5 * time.Minute,
	}
}

type ReconcileConfigHolder struct {
	current atomic.Value // holds ReconcileConfig
}

// NewReconcileConfigHolder reads reconcile.yml from the standard locations
// and watches it for changes. A missing file yields defaults.
func NewReconcileConfigHolder(log *zap.Logger) (*ReconcileConfigHolder, error) {
	return LoadReconcileConfig(log, "/var/lib/rentledger/config", "/etc/rentledger", ".")
}

func LoadReconcileConfig(log *zap.Logger, paths ...string) (*ReconcileConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("reconcile.config")

	v := viper.New()
	v.SetConfigName("reconcile")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("RENTLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReconcileConfig()
	v.SetDefault("reconcile.maxTxAttempts", defaults.MaxTxAttempts)
	v.SetDefault("reconcile.txBackoff", defaults.TxBackoff)
	v.SetDefault("reconcile.maxReferenceAttempts", defaults.MaxReferenceAttempts)
	v.SetDefault("reconcile.referenceBackoff", defaults.ReferenceBackoff)
	v.SetDefault("reconcile.overdueSweepInterval", defaults.OverdueSweepInterval)
	v.SetDefault("reconcile.overdueSweepLockTTL", defaults.OverdueSweepLockTTL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeReconcile(v)
	if err != nil {
		return nil, err
	}
	if err := ValidateReconcileConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReconcileConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeReconcile(v)
		if err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := ValidateReconcileConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeReconcile goes through AllSettings so defaults fill keys the file omits.
func decodeReconcile(v *viper.Viper) (ReconcileConfig, error) {
	var wrapper struct {
		Reconcile ReconcileConfig `mapstructure:"reconcile"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return ReconcileConfig{}, err
	}
	return wrapper.Reconcile, nil
}

// NewStaticReconcileConfigHolder wraps a fixed config without file watching.
func NewStaticReconcileConfigHolder(cfg ReconcileConfig) *ReconcileConfigHolder {
	holder := &ReconcileConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ReconcileConfigHolder) Get() ReconcileConfig {
	if h == nil {
		return DefaultReconcileConfig()
	}
	return h.current.Load().(ReconcileConfig)
}

func ValidateReconcileConfig(cfg ReconcileConfig) error {
	if cfg.MaxTxAttempts < MinAttempts || cfg.MaxTxAttempts > MaxAttempts {
		return fmt.Errorf("reconcile.maxTxAttempts must be between %d and %d", MinAttempts, MaxAttempts)
	}
	if cfg.MaxReferenceAttempts < MinAttempts || cfg.MaxReferenceAttempts > MaxAttempts {
		return fmt.Errorf("reconcile.maxReferenceAttempts must be between %d and %d", MinAttempts, MaxAttempts)
	}
	if cfg.TxBackoff <= 0 || cfg.ReferenceBackoff < 0 {
		return errors.New("reconcile backoff must be positive")
	}
	if cfg.OverdueSweepInterval <= 0 {
		return errors.New("reconcile.overdueSweepInterval must be positive")
	}
	if cfg.OverdueSweepLockTTL <= 0 {
		return errors.New("reconcile.overdueSweepLockTTL must be positive")
	}
	return nil
}
