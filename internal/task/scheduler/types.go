package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"missionctl/internal/eventbus"
	"missionctl/internal/task/executor"
	"missionctl/internal/task/jobs"
	logx "missionctl/pkg/logx"
)

// Config controls the reconciliation loop.
type Config struct {
	Enabled bool

	// Timezone is an IANA zone used to evaluate expressions (default America/New_York).
	Timezone string
	// ZoneLabel is the label used in schedule descriptions (default: the zone's
	// standard-time abbreviation, e.g. "EST").
	ZoneLabel string

	ReconcileInterval time.Duration
	HistorySize       int
}

const (
	defaultTimezone          = "America/New_York"
	defaultReconcileInterval = 60 * time.Second
	defaultHistorySize       = 50
)

func (c Config) withDefaults() Config {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = defaultReconcileInterval
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	return c
}

// Store is the part of the job store the scheduler consumes.
type Store interface {
	ListJobs(ctx context.Context) ([]jobs.Record, error)
	GetJob(ctx context.Context, id string) (jobs.Record, bool, error)
	PatchJob(ctx context.Context, id string, p jobs.Patch) (jobs.Record, bool, error)
}

// entry is a live timer for one job. Never exposed outside the package.
type entry struct {
	jobID    string
	schedule string
	entryID  cron.EntryID
	next     time.Time
}

// EntryInfo describes one live timer.
type EntryInfo struct {
	ID       string    `json:"id"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"nextRun"`
}

// HistoryItem is one finished execution.
type HistoryItem struct {
	JobID    string        `json:"jobId"`
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Result   jobs.Result   `json:"result"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is the scheduler status.
type Snapshot struct {
	Running       bool          `json:"running"`
	ActiveCount   int           `json:"activeCount"`
	Timezone      string        `json:"timezone"`
	ZoneLabel     string        `json:"zoneLabel"`
	Interval      string        `json:"reconcileInterval"`
	LastReconcile time.Time     `json:"lastReconcile,omitempty"`
	Entries       []EntryInfo   `json:"entries"`
	History       []HistoryItem `json:"history,omitempty"`
}

// Event payloads published on the bus.
type (
	EntryEvent struct {
		JobID    string
		Schedule string
		NextRun  time.Time
		Reason   string
	}
	ReconcileEvent struct {
		Jobs      int
		Active    int
		Added     int
		Removed   int
		Invalid   int
		Unchanged int
	}
	RunEvent struct {
		JobID    string
		Name     string
		Result   jobs.Result
		Duration time.Duration
		Error    string
	}
)

const (
	EventScheduled   = "cron.scheduled"
	EventUnscheduled = "cron.unscheduled"
	EventReconciled  = "cron.reconciled"
	EventRunStarted  = "cron.run.started"
	EventRunFinished = "cron.run.finished"
)

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	loc   *time.Location
	label string
	bus   eventbus.Bus

	store Store
	exec  executor.Executor

	parser cron.Parser
	c      *cron.Cron

	running       bool
	entries       map[string]*entry
	lastReconcile time.Time

	// baseCtx is the Start context; runCtx outlives Stop so in-flight runs
	// can finish their bookkeeping.
	baseCtx    context.Context
	runCtx     context.Context
	stopTicker context.CancelFunc

	// reconMu serializes reconciliation passes.
	reconMu sync.Mutex

	histMu  sync.Mutex
	history []HistoryItem

	// Store error throttling: key is job id + op.
	errMu       sync.Mutex
	lastErrWarn map[string]time.Time

	now func() time.Time
}
