package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"missionctl/internal/eventbus"
	"missionctl/internal/task/executor"
	logx "missionctl/pkg/logx"
)

func New(cfg Config, store Store, exec executor.Executor, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		cfg:         cfg.withDefaults(),
		log:         log,
		bus:         bus,
		store:       store,
		exec:        exec,
		parser:      parser,
		entries:     map[string]*entry{},
		lastErrWarn: map[string]time.Time{},
		now:         time.Now,
	}
	s.loc, s.label = s.loadLocation(s.cfg)
	return s
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Location returns the zone expressions are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Service) loadLocation(cfg Config) (*time.Location, string) {
	loc, label, err := LoadZone(cfg.Timezone, cfg.ZoneLabel)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to UTC", logx.String("tz", cfg.Timezone), logx.Err(err))
		loc = time.UTC
		label = strings.TrimSpace(cfg.ZoneLabel)
		if label == "" {
			label = "UTC"
		}
	}
	return loc, label
}

// Apply swaps the config. A running scheduler is restarted when the zone or
// the reconcile interval changed; disabling stops it.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	running := s.running
	base := s.baseCtx
	if !running {
		s.loc, s.label = s.loadLocation(cfg)
	}
	s.mu.Unlock()

	if cfg.HistorySize != old.HistorySize {
		s.histMu.Lock()
		s.history = trimHistory(s.history, cfg.HistorySize)
		s.histMu.Unlock()
	}

	if !running {
		return
	}
	switch {
	case !cfg.Enabled:
		s.log.Info("scheduler disabled by config")
		s.Stop()
	case strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone) ||
		strings.TrimSpace(old.ZoneLabel) != strings.TrimSpace(cfg.ZoneLabel) ||
		old.ReconcileInterval != cfg.ReconcileInterval:
		s.log.Info("scheduler config changed; restarting",
			logx.String("tz", cfg.Timezone),
			logx.Duration("interval", cfg.ReconcileInterval),
		)
		s.Stop()
		s.Start(base)
	}
}

// Start runs an immediate reconciliation pass and then one every
// ReconcileInterval. Calling Start on a running scheduler only logs.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info("start ignored: already running")
		return
	}
	cfg := s.cfg
	s.loc, s.label = s.loadLocation(cfg)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	s.entries = map[string]*entry{}
	s.running = true
	s.baseCtx = ctx
	s.runCtx = context.WithoutCancel(ctx)
	tickCtx, cancel := context.WithCancel(ctx)
	s.stopTicker = cancel
	s.c.Start()
	loc := s.loc
	s.mu.Unlock()

	s.log.Info("scheduler started",
		logx.String("tz", loc.String()),
		logx.Duration("interval", cfg.ReconcileInterval),
	)

	_ = s.Reconcile(ctx)
	go s.tickLoop(tickCtx, cfg.ReconcileInterval)
}

func (s *Service) tickLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// Errors are logged inside Reconcile; the next tick retries.
			_ = s.Reconcile(ctx)
		}
	}
}

// Stop cancels every live timer and the periodic pass. Executions already in
// flight are not awaited; they finish and write their own bookkeeping.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.c
	cancel := s.stopTicker
	n := len(s.entries)
	s.c = nil
	s.entries = map[string]*entry{}
	s.running = false
	s.stopTicker = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		// Stop halts the run loop before returning. Its context tracks
		// running jobs and is not awaited.
		_ = c.Stop()
	}
	s.log.Info("scheduler stopped", logx.Int("entries", n))
}

// Status is a read-only view of the live timers.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Running:       s.running,
		Timezone:      s.loc.String(),
		ZoneLabel:     s.label,
		Interval:      s.cfg.ReconcileInterval.String(),
		LastReconcile: s.lastReconcile,
		Entries:       make([]EntryInfo, 0, len(s.entries)),
	}
	for _, e := range s.entries {
		snap.Entries = append(snap.Entries, EntryInfo{ID: e.jobID, Schedule: e.schedule, NextRun: e.next})
	}
	s.mu.Unlock()

	snap.ActiveCount = len(snap.Entries)
	sortEntries(snap.Entries)
	snap.History = s.History()
	return snap
}
