package config

import (
	"sort"
	"strings"

	logx "missionctl/pkg/logx"
)

// SummarizeConfigChange returns a compact sorted list of changed sections and
// structured attrs describing their new values, for a single reload log line.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Scheduler
	if SchedulerRestartNeeded(oldCfg.Scheduler, newCfg.Scheduler) ||
		oldCfg.Scheduler.HistorySize != newCfg.Scheduler.HistorySize ||
		strings.TrimSpace(oldCfg.Scheduler.SimulateDelay) != strings.TrimSpace(newCfg.Scheduler.SimulateDelay) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.reconcile_interval", strings.TrimSpace(newCfg.Scheduler.ReconcileInterval)),
			logx.Int("scheduler.history_size", newCfg.Scheduler.HistorySize),
		)
	}

	// Storage (never reopened live)
	if oldCfg.StorageOrDefault() != newCfg.StorageOrDefault() {
		sc := newCfg.StorageOrDefault()
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", sc.Driver),
			logx.String("storage.jobs_collection", sc.JobsCollection),
			logx.Bool("storage.restart_required", true),
		)
	}

	// HTTP
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
			logx.Any("http.rate_per_sec", newCfg.HTTP.RatePerSec),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// SchedulerRestartNeeded reports whether the live timer set must be rebuilt
// for the new scheduler settings.
func SchedulerRestartNeeded(oldS, newS SchedulerConfig) bool {
	return oldS.Enabled != newS.Enabled ||
		strings.TrimSpace(oldS.Timezone) != strings.TrimSpace(newS.Timezone) ||
		strings.TrimSpace(oldS.ZoneLabel) != strings.TrimSpace(newS.ZoneLabel) ||
		strings.TrimSpace(oldS.ReconcileInterval) != strings.TrimSpace(newS.ReconcileInterval)
}
