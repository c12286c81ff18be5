package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	HTTP      HTTPConfig      `json:"http"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the cron reconciliation loop.
//
// Defaults (when fields are omitted/zero):
//   - timezone: "America/New_York"
//   - zone_label: standard-time abbreviation of timezone (e.g. "EST")
//   - reconcile_interval: "60s"
//   - history_size: 50
//   - simulate_delay: "1s"
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is an IANA zone name used to evaluate cron expressions.
	Timezone  string `json:"timezone,omitempty"`
	ZoneLabel string `json:"zone_label,omitempty"`

	// ReconcileInterval is a Go duration string (e.g. "30s", "1m").
	ReconcileInterval string `json:"reconcile_interval,omitempty"`
	HistorySize       int    `json:"history_size,omitempty"`

	// SimulateDelay is how long the default (simulated) job body takes.
	SimulateDelay string `json:"simulate_delay,omitempty"`
}

// StorageConfig controls the job persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data" }
type StorageConfig struct {
	Driver         string `json:"driver"`
	Path           string `json:"path"`
	BusyTimeout    string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	JobsCollection string `json:"jobs_collection,omitempty"`
}

// HTTPConfig controls the operator API.
//
// Security note: there is no authentication; keep addr on loopback.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:3001"

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// RatePerSec/Burst throttle mutating routes. 0 disables throttling.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`

	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}

const (
	DefaultTimezone          = "America/New_York"
	DefaultReconcileInterval = "60s"
	DefaultHistorySize       = 50
	DefaultSimulateDelay     = "1s"
	DefaultHTTPAddr          = "127.0.0.1:3001"
	DefaultJobsCollection    = "cron_jobs"
	DefaultStorageDriver     = "file"
	DefaultStoragePath       = "./data"
)

// StorageOrDefault returns the storage section, filling omitted fields.
func (c *Config) StorageOrDefault() StorageConfig {
	var sc StorageConfig
	if c != nil && c.Storage != nil {
		sc = *c.Storage
	}
	if sc.Driver == "" {
		sc.Driver = DefaultStorageDriver
	}
	if sc.Path == "" {
		sc.Path = DefaultStoragePath
	}
	if sc.JobsCollection == "" {
		sc.JobsCollection = DefaultJobsCollection
	}
	return sc
}
