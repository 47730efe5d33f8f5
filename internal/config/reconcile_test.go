package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReconcileConfig_DefaultsWhenFileMissing(t *testing.T) {
	holder, err := LoadReconcileConfig(nil, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultReconcileConfig(), holder.Get())
}

func TestLoadReconcileConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`reconcile:
  maxTxAttempts: 3
  txBackoff: 10ms
  maxReferenceAttempts: 5
  referenceBackoff: 1ms
  overdueSweepInterval: 1m
  overdueSweepLockTTL: 30s
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reconcile.yml"), content, 0o600))

	holder, err := LoadReconcileConfig(nil, dir)
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 3, cfg.MaxTxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.TxBackoff)
	assert.Equal(t, 5, cfg.MaxReferenceAttempts)
	assert.Equal(t, time.Minute, cfg.OverdueSweepInterval)
}

func TestLoadReconcileConfig_RejectsUnboundedAttempts(t *testing.T) {
	dir := t.TempDir()
	content := []byte("reconcile:\n  maxTxAttempts: 12\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reconcile.yml"), content, 0o600))

	_, err := LoadReconcileConfig(nil, dir)
	assert.Error(t, err)
}

func TestValidateReconcileConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ReconcileConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*ReconcileConfig) {}},
		{name: "too few tx attempts", mutate: func(c *ReconcileConfig) { c.MaxTxAttempts = 2 }, wantErr: true},
		{name: "too many reference attempts", mutate: func(c *ReconcileConfig) { c.MaxReferenceAttempts = 6 }, wantErr: true},
		{name: "zero backoff", mutate: func(c *ReconcileConfig) { c.TxBackoff = 0 }, wantErr: true},
		{name: "zero sweep interval", mutate: func(c *ReconcileConfig) { c.OverdueSweepInterval = 0 }, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultReconcileConfig()
			tc.mutate(&cfg)
			err := ValidateReconcileConfig(cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
