package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"missionctl/internal/task/jobs"
	"missionctl/internal/task/scheduler"
	logx "missionctl/pkg/logx"
)

// JobStore is the job CRUD surface the API needs.
type JobStore interface {
	ListJobs(ctx context.Context) ([]jobs.Record, error)
	GetJob(ctx context.Context, id string) (jobs.Record, bool, error)
	CreateJob(ctx context.Context, in jobs.NewJob) (jobs.Record, error)
	UpdateJob(ctx context.Context, id string, u jobs.Update) (jobs.Record, bool, error)
	DeleteJob(ctx context.Context, id string) (bool, error)
}

// Scheduler is the read/trigger surface of the scheduler core.
type Scheduler interface {
	Status() scheduler.Snapshot
	Reconcile(ctx context.Context) error
	DescribeSchedule(expr string) string
	Location() *time.Location
}

type Deps struct {
	Jobs      JobStore
	Scheduler Scheduler
}

// API holds the route handlers. It is independent of the listener lifecycle.
type API struct {
	jobs  JobStore
	sched Scheduler
	log   logx.Logger

	limiter atomic.Pointer[rate.Limiter]
}

func NewAPI(deps Deps, log logx.Logger) *API {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &API{jobs: deps.Jobs, sched: deps.Scheduler, log: log}
}

// SetRate replaces the mutation throttle. perSec <= 0 disables it.
func (a *API) SetRate(perSec float64, burst int) {
	if perSec <= 0 {
		a.limiter.Store(nil)
		return
	}
	if burst <= 0 {
		burst = 1
	}
	if cur := a.limiter.Load(); cur != nil {
		cur.SetLimit(rate.Limit(perSec))
		cur.SetBurst(burst)
		return
	}
	a.limiter.Store(rate.NewLimiter(rate.Limit(perSec), burst))
}

// throttle rejects requests with 429 once the limiter is exhausted.
func (a *API) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l := a.limiter.Load(); l != nil && !l.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type jobDTO struct {
	jobs.Record
	Description string `json:"description"`
}

func (a *API) toDTO(r jobs.Record) jobDTO {
	return jobDTO{Record: r, Description: a.sched.DescribeSchedule(r.Schedule)}
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sched.Status())
}

func (a *API) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := a.jobs.ListJobs(r.Context())
	if err != nil {
		a.storeFailed(w, "list jobs", err)
		return
	}
	out := make([]jobDTO, 0, len(list))
	for _, j := range list {
		out = append(out, a.toDTO(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok, err := a.jobs.GetJob(r.Context(), id)
	if err != nil {
		a.storeFailed(w, "get job", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, a.toDTO(job))
}

func (a *API) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobs.NewJob
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := a.jobs.CreateJob(r.Context(), req)
	if errors.Is(err, jobs.ErrInvalidJob) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.storeFailed(w, "create job", err)
		return
	}
	a.log.Info("job created", logx.String("job_id", job.ID), logx.String("schedule", job.Schedule))
	a.reconcile(r.Context())
	writeJSON(w, http.StatusCreated, a.toDTO(job))
}

func (a *API) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req jobs.Update
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Empty() {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	job, ok, err := a.jobs.UpdateJob(r.Context(), id, req)
	if errors.Is(err, jobs.ErrInvalidJob) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.storeFailed(w, "update job", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	a.log.Info("job updated", logx.String("job_id", id))
	a.reconcile(r.Context())
	writeJSON(w, http.StatusOK, a.toDTO(job))
}

func (a *API) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := a.jobs.DeleteJob(r.Context(), id)
	if err != nil {
		a.storeFailed(w, "delete job", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	a.log.Info("job deleted", logx.String("job_id", id))
	a.reconcile(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := a.sched.Reconcile(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "reconcile failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.sched.Status())
}

type describeDTO struct {
	Expr        string     `json:"expr"`
	Description string     `json:"description"`
	Valid       bool       `json:"valid"`
	Error       string     `json:"error,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
}

func (a *API) Describe(w http.ResponseWriter, r *http.Request) {
	expr := strings.TrimSpace(r.URL.Query().Get("expr"))
	if expr == "" {
		writeError(w, http.StatusBadRequest, "expr is required")
		return
	}
	out := describeDTO{Expr: expr, Description: a.sched.DescribeSchedule(expr)}
	if err := scheduler.ValidateExpr(expr); err != nil {
		out.Error = err.Error()
	} else {
		out.Valid = true
		next := scheduler.NextRun(expr, time.Now(), a.sched.Location())
		out.NextRun = &next
	}
	writeJSON(w, http.StatusOK, out)
}

// reconcile applies an edit immediately. Failures are logged; the periodic
// pass retries.
func (a *API) reconcile(ctx context.Context) {
	if err := a.sched.Reconcile(ctx); err != nil {
		a.log.Warn("reconcile after edit failed", logx.Err(err))
	}
}

func (a *API) storeFailed(w http.ResponseWriter, op string, err error) {
	a.log.Warn("job store error", logx.String("op", op), logx.Err(err))
	writeError(w, http.StatusInternalServerError, "server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "bad json")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
