package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"missionctl/internal/eventbus"
	"missionctl/internal/task/jobs"
	logx "missionctl/pkg/logx"
)

// Reconcile makes the live timers match the job store: active jobs with a
// valid expression get exactly one timer, everything else gets none.
//
// A store read failure aborts the pass (nothing is changed) and is returned;
// the periodic tick retries from scratch. On a stopped scheduler it is a no-op.
func (s *Service) Reconcile(ctx context.Context) error {
	s.reconMu.Lock()
	defer s.reconMu.Unlock()

	if !s.Running() {
		s.log.Debug("reconcile skipped: scheduler not running")
		return nil
	}

	list, err := s.store.ListJobs(ctx)
	if err != nil {
		s.log.Warn("reconcile aborted: job store unavailable", logx.Err(err))
		return err
	}

	var (
		stats   ReconcileEvent
		events  []eventbus.Event
		pending []EntryEvent // next_run values to persist
	)
	stats.Jobs = len(list)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	now := s.now()
	seen := make(map[string]struct{}, len(list))
	for _, job := range list {
		seen[job.ID] = struct{}{}
		if !job.Active() {
			if e := s.unscheduleLocked(job.ID); e != nil {
				stats.Removed++
				events = append(events, unscheduledEvent(e, "disabled"))
			}
			continue
		}
		stats.Active++

		ev, outcome := s.scheduleLocked(job, now)
		switch outcome {
		case outcomeUnchanged:
			stats.Unchanged++
		case outcomeInvalid:
			stats.Invalid++
			if ev != nil {
				stats.Removed++
				events = append(events, eventbus.Event{Type: EventUnscheduled, Data: *ev})
			}
		case outcomeAdded:
			stats.Added++
			pending = append(pending, *ev)
			events = append(events, eventbus.Event{Type: EventScheduled, Data: *ev})
		}
	}
	// Jobs deleted out of band.
	for id := range s.entries {
		if _, ok := seen[id]; ok {
			continue
		}
		if e := s.unscheduleLocked(id); e != nil {
			stats.Removed++
			events = append(events, unscheduledEvent(e, "deleted"))
		}
	}
	s.lastReconcile = now
	s.mu.Unlock()

	for _, p := range pending {
		if _, _, err := s.store.PatchJob(ctx, p.JobID, jobs.Patch{NextRun: &p.NextRun}); err != nil {
			s.reportStoreError(p.JobID, "persist next_run", err)
		}
	}
	for _, e := range events {
		s.bus.Publish(e)
	}
	s.bus.Publish(eventbus.Event{Type: EventReconciled, Data: stats})

	if stats.Added > 0 || stats.Removed > 0 || stats.Invalid > 0 {
		s.log.Info("reconciled",
			logx.Int("jobs", stats.Jobs),
			logx.Int("active", stats.Active),
			logx.Int("added", stats.Added),
			logx.Int("removed", stats.Removed),
			logx.Int("invalid", stats.Invalid),
		)
	} else {
		s.log.Debug("reconciled", logx.Int("jobs", stats.Jobs), logx.Int("unchanged", stats.Unchanged))
	}
	return nil
}

type scheduleOutcome int

const (
	outcomeUnchanged scheduleOutcome = iota
	outcomeAdded
	outcomeInvalid
)

// scheduleLocked (re)registers the timer for an active job. Call with s.mu held.
//
// For outcomeAdded the returned event carries the new next_run. For
// outcomeInvalid a non-nil event means a previous timer was removed.
func (s *Service) scheduleLocked(job jobs.Record, now time.Time) (*EntryEvent, scheduleOutcome) {
	var removed *EntryEvent
	if cur, ok := s.entries[job.ID]; ok {
		if cur.schedule == job.Schedule {
			return nil, outcomeUnchanged
		}
		s.unscheduleLocked(job.ID)
		ev := entryEvent(cur, "schedule changed")
		removed = &ev
		s.log.Debug("schedule changed", logx.String("job_id", job.ID),
			logx.String("old", cur.schedule), logx.String("new", job.Schedule))
	}

	sched, err := parseExpr(job.Schedule)
	if err != nil {
		s.log.Warn("invalid schedule; job skipped",
			logx.String("job_id", job.ID),
			logx.String("schedule", job.Schedule),
			logx.Err(err),
		)
		return removed, outcomeInvalid
	}

	next := sched.Next(now.In(s.loc))
	if next.IsZero() {
		next = now.Add(fallbackNext)
	}
	e := &entry{jobID: job.ID, schedule: job.Schedule, next: next}
	id := job.ID
	e.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.fire(id, e) }))
	s.entries[job.ID] = e

	s.log.Debug("job scheduled",
		logx.String("job_id", job.ID),
		logx.String("schedule", job.Schedule),
		logx.Time("next_run", next),
	)
	return &EntryEvent{JobID: job.ID, Schedule: job.Schedule, NextRun: next, Reason: "scheduled"}, outcomeAdded
}

// unscheduleLocked cancels and forgets the timer for id. Call with s.mu held.
func (s *Service) unscheduleLocked(id string) *entry {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if s.c != nil {
		s.c.Remove(e.entryID)
	}
	delete(s.entries, id)
	s.log.Debug("job unscheduled", logx.String("job_id", id))
	return e
}

func entryEvent(e *entry, reason string) EntryEvent {
	return EntryEvent{JobID: e.jobID, Schedule: e.schedule, NextRun: e.next, Reason: reason}
}

func unscheduledEvent(e *entry, reason string) eventbus.Event {
	return eventbus.Event{Type: EventUnscheduled, Data: entryEvent(e, reason)}
}
