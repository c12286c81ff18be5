package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Validate checks a parsed config for values that would fail at runtime.
// It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return errors.Wrapf(err, "scheduler.timezone: unknown zone %q", tz)
		}
	}
	if _, err := ParseDurationField("scheduler.reconcile_interval", cfg.Scheduler.ReconcileInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.simulate_delay", cfg.Scheduler.SimulateDelay); err != nil {
		return err
	}
	if cfg.Scheduler.HistorySize < 0 {
		return errors.New("scheduler.history_size must be >= 0")
	}

	sc := cfg.StorageOrDefault()
	switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
	case "file", "sqlite", "sqlite3":
	default:
		return errors.Newf("storage.driver: unsupported driver %q", sc.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", sc.BusyTimeout); err != nil {
		return err
	}

	for path, raw := range map[string]string{
		"http.read_timeout":  cfg.HTTP.ReadTimeout,
		"http.write_timeout": cfg.HTTP.WriteTimeout,
		"http.idle_timeout":  cfg.HTTP.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if cfg.HTTP.RatePerSec < 0 || cfg.HTTP.Burst < 0 {
		return errors.New("http.rate_per_sec and http.burst must be >= 0")
	}
	return nil
}
