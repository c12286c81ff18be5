package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"

	"missionctl/internal/eventbus"
	"missionctl/internal/task/jobs"
	logx "missionctl/pkg/logx"
)

// fire is the timer callback. It runs on its own goroutine (robfig/cron starts
// one per firing), so firings of the same job may overlap.
func (s *Service) fire(id string, e *entry) {
	s.mu.Lock()
	// A timer that was replaced or removed after the run loop picked it up
	// must not execute.
	if !s.running || s.entries[id] != e {
		s.mu.Unlock()
		return
	}
	ctx := s.runCtx
	loc := s.loc
	s.mu.Unlock()

	s.execute(ctx, id, e.schedule, loc)
}

// execute runs one firing: mark running, run the body, record the outcome.
// The body gets no deadline; a hung body leaves last_result at "running".
func (s *Service) execute(ctx context.Context, id, expr string, loc *time.Location) {
	job, ok, err := s.store.GetJob(ctx, id)
	if err != nil {
		s.reportStoreError(id, "load job", err)
		job = jobs.Record{ID: id, Schedule: expr, Status: jobs.StatusActive}
	} else if !ok {
		s.log.Debug("job vanished before run; skipping", logx.String("job_id", id))
		return
	}

	now := s.now()
	next := NextRun(expr, now, loc)
	if _, _, err := s.store.PatchJob(ctx, id, jobs.Patch{
		LastRun:    &now,
		NextRun:    &next,
		LastResult: jobs.Ptr(jobs.ResultRunning),
	}); err != nil {
		s.reportStoreError(id, "mark running", err)
	}
	s.noteNext(id, expr, next)

	s.log.Info("job started", logx.String("job_id", id), logx.String("name", job.Name))
	s.bus.Publish(eventbus.Event{Type: EventRunStarted, Data: RunEvent{JobID: id, Name: job.Name, Result: jobs.ResultRunning}})

	started := time.Now()
	runErr := s.runBody(ctx, job)
	took := time.Since(started)

	patch := jobs.Patch{}
	ev := RunEvent{JobID: id, Name: job.Name, Duration: took}
	if runErr == nil {
		patch.LastResult = jobs.Ptr(jobs.ResultSuccess)
		patch.LastDuration = &took
		patch.ClearLastError = true
		ev.Result = jobs.ResultSuccess
		s.log.Info("job finished", logx.String("job_id", id), logx.Duration("took", took))
	} else {
		msg := runErr.Error()
		patch.LastResult = jobs.Ptr(jobs.ResultError)
		patch.LastError = &msg
		patch.ClearLastDuration = true
		ev.Result = jobs.ResultError
		ev.Error = msg
		s.log.Warn("job failed", logx.String("job_id", id), logx.Duration("took", took), logx.Err(runErr))
	}
	if _, _, err := s.store.PatchJob(ctx, id, patch); err != nil {
		s.reportStoreError(id, "record result", err)
	}

	s.record(HistoryItem{
		JobID:    id,
		Name:     job.Name,
		Started:  now,
		Duration: took,
		Result:   ev.Result,
		Error:    ev.Error,
	})
	s.bus.Publish(eventbus.Event{Type: EventRunFinished, Data: ev})
}

// runBody calls the executor, turning a panic into an error.
func (s *Service) runBody(ctx context.Context, job jobs.Record) (err error) {
	if s.exec == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job body panicked", logx.String("job_id", job.ID), logx.String("stack", string(debug.Stack())))
			err = errors.Newf("panic: %s", fmt.Sprint(r))
		}
	}()
	return s.exec.Execute(ctx, job)
}

// noteNext updates the live entry's next run if it is still registered
// with the same expression.
func (s *Service) noteNext(id, expr string, next time.Time) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok && e.schedule == expr {
		e.next = next
	}
	s.mu.Unlock()
}
