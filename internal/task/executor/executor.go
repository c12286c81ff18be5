// Package executor provides the job bodies the scheduler runs on each firing.
package executor

import (
	"context"
	"strings"
	"sync"
	"time"

	"missionctl/internal/task/jobs"
	logx "missionctl/pkg/logx"
)

// Executor runs one job body. A non-nil error marks the run as failed.
type Executor interface {
	Execute(ctx context.Context, job jobs.Record) error
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, job jobs.Record) error

func (f Func) Execute(ctx context.Context, job jobs.Record) error { return f(ctx, job) }

// Registry dispatches by job name (case-insensitive) and falls back to a
// default body for unknown names.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Executor
	fallback Executor
}

func NewRegistry(fallback Executor) *Registry {
	return &Registry{byName: map[string]Executor{}, fallback: fallback}
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Register binds name to ex, replacing any previous binding. A nil ex unregisters.
func (r *Registry) Register(name string, ex Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ex == nil {
		delete(r.byName, key(name))
		return
	}
	r.byName[key(name)] = ex
}

func (r *Registry) SetFallback(ex Executor) {
	r.mu.Lock()
	r.fallback = ex
	r.mu.Unlock()
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	return out
}

func (r *Registry) Execute(ctx context.Context, job jobs.Record) error {
	r.mu.RLock()
	ex, ok := r.byName[key(job.Name)]
	if !ok {
		ex = r.fallback
	}
	r.mu.RUnlock()
	if ex == nil {
		return nil
	}
	return ex.Execute(ctx, job)
}

// Simulate is the placeholder body: it logs and waits delay.
func Simulate(delay time.Duration, log logx.Logger) Executor {
	return Func(func(ctx context.Context, job jobs.Record) error {
		log.Info("executing job", logx.String("job_id", job.ID), logx.String("name", job.Name))
		if delay <= 0 {
			return nil
		}
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	})
}
