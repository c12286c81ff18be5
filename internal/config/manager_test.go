package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
  "scheduler": {"enabled": true, "timezone": "America/New_York", "reconcile_interval": "30s"},
  "storage": {"driver": "sqlite", "path": "./data/missionctl.db"},
  "http": {"enabled": true, "addr": "127.0.0.1:3001", "rate_per_sec": 5, "burst": 10}
}`

const sampleYAML = `
logging:
  level: info
scheduler:
  enabled: true
  history_size: 10
http:
  enabled: false
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.json", sampleJSON))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "30s", cfg.Scheduler.ReconcileInterval)
	assert.Equal(t, "sqlite", cfg.StorageOrDefault().Driver)
	assert.Equal(t, DefaultJobsCollection, cfg.StorageOrDefault().JobsCollection)
	assert.Equal(t, 10, cfg.HTTP.Burst)
	assert.Same(t, cfg, m.Get())
	require.NoError(t, Validate(cfg))
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Scheduler.HistorySize)
	assert.Nil(t, cfg.Storage)
	assert.Equal(t, DefaultStorageDriver, cfg.StorageOrDefault().Driver)
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `{"scheduler": {"workers": 2}}`},
		{"trailing data", `{} {}`},
		{"bad yaml", "scheduler: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := "c.json"
			if tt.name == "bad yaml" {
				name = "c.yml"
			}
			_, err := Decode(name, []byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"bad tz", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"bad interval", func(c *Config) { c.Scheduler.ReconcileInterval = "soon" }, "scheduler.reconcile_interval"},
		{"negative delay", func(c *Config) { c.Scheduler.SimulateDelay = "-1s" }, "scheduler.simulate_delay"},
		{"bad driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis"} }, "storage.driver"},
		{"bad http timeout", func(c *Config) { c.HTTP.IdleTimeout = "x" }, "http.idle_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Scheduler: SchedulerConfig{Enabled: true}}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Scheduler: SchedulerConfig{Enabled: true, Timezone: "America/New_York"}}
	newCfg := &Config{
		Logging:   LoggingConfig{Level: "debug"},
		Scheduler: SchedulerConfig{Enabled: true, Timezone: "UTC"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"logging", "scheduler"}, changed)
	assert.NotEmpty(t, attrs)

	changed, _ = SummarizeConfigChange(oldCfg, oldCfg)
	assert.Empty(t, changed)

	assert.True(t, SchedulerRestartNeeded(oldCfg.Scheduler, newCfg.Scheduler))
	assert.False(t, SchedulerRestartNeeded(oldCfg.Scheduler, SchedulerConfig{Enabled: true, Timezone: " America/New_York ", HistorySize: 9}))
}

func TestWatchPublishesValidatedChanges(t *testing.T) {
	path := writeFile(t, "config.json", sampleJSON)
	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return Validate(cfg) })

	sub := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Invalid config is rejected, valid one is published.
	require.NoError(t, os.WriteFile(path, []byte(`{"scheduler": {"timezone": "Nowhere/Land"}}`), 0o644))
	time.Sleep(2 * reloadDebounce)
	require.NoError(t, os.WriteFile(path, []byte(`{"scheduler": {"enabled": true, "timezone": "UTC"}}`), 0o644))

	select {
	case cfg := <-sub:
		assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
		assert.Equal(t, "UTC", m.Get().Scheduler.Timezone)
	case <-time.After(3 * time.Second):
		t.Fatal("config not published")
	}

	cancel()
	<-done
	m.Unsubscribe(sub)
}
