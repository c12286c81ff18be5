package app

import (
	"strings"
	"time"

	"missionctl/internal/config"
	"missionctl/internal/server"
	"missionctl/internal/storage"
	"missionctl/internal/task/scheduler"
	logx "missionctl/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig returns the storage driver config and the jobs collection.
func mapStorageConfig(cfg *config.Config) (storage.Config, string, error) {
	sc := cfg.StorageOrDefault()
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, "", err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
	}, sc.JobsCollection, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	interval, err := config.ParseDurationOrDefault("scheduler.reconcile_interval",
		cfg.Scheduler.ReconcileInterval, 60*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	history := cfg.Scheduler.HistorySize
	if history == 0 {
		history = config.DefaultHistorySize
	}
	return scheduler.Config{
		Enabled:           cfg.Scheduler.Enabled,
		Timezone:          strings.TrimSpace(cfg.Scheduler.Timezone),
		ZoneLabel:         strings.TrimSpace(cfg.Scheduler.ZoneLabel),
		ReconcileInterval: interval,
		HistorySize:       history,
	}, nil
}

func simulateDelay(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("scheduler.simulate_delay", cfg.Scheduler.SimulateDelay, time.Second)
}

func mapHTTPConfig(cfg *config.Config) (server.Config, error) {
	h := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 30*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 60*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	addr := strings.TrimSpace(h.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return server.Config{
		Enabled:      h.Enabled,
		Addr:         addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		RatePerSec:   h.RatePerSec,
		Burst:        h.Burst,
		Pprof:        h.Pprof,
	}, nil
}
