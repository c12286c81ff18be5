package jobs

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var ErrInvalidJob = errors.New("invalid job")

type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

type Result string

const (
	ResultRunning Result = "running"
	ResultSuccess Result = "success"
	ResultError   Result = "error"
)

// TimeLayout is how timestamps are persisted: ISO-8601 UTC, millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is a persisted cron job definition plus its run bookkeeping.
//
// LastDuration is present only after a successful run, LastError only after a
// failed one.
type Record struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Status   Status `json:"status"`

	NextRun      *time.Time `json:"next_run,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastResult   Result     `json:"last_result,omitempty"`
	LastDuration *int64     `json:"last_duration,omitempty"` // milliseconds
	LastError    string     `json:"last_error,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (r Record) Active() bool { return r.Status == StatusActive }

// Patch is a partial update of run bookkeeping. Nil pointers leave fields
// untouched; the Clear flags remove a field.
type Patch struct {
	NextRun      *time.Time
	LastRun      *time.Time
	LastResult   *Result
	LastDuration *time.Duration
	LastError    *string

	ClearLastDuration bool
	ClearLastError    bool
}

// Fields renders the patch as a storage field map (nil value = delete).
func (p Patch) Fields() map[string]any {
	m := map[string]any{}
	if p.NextRun != nil {
		m["next_run"] = FormatTime(*p.NextRun)
	}
	if p.LastRun != nil {
		m["last_run"] = FormatTime(*p.LastRun)
	}
	if p.LastResult != nil {
		m["last_result"] = string(*p.LastResult)
	}
	if p.LastDuration != nil {
		m["last_duration"] = p.LastDuration.Milliseconds()
	}
	if p.LastError != nil {
		m["last_error"] = *p.LastError
	}
	if p.ClearLastDuration {
		m["last_duration"] = nil
	}
	if p.ClearLastError {
		m["last_error"] = nil
	}
	return m
}

// Update is an operator edit of the job definition.
type Update struct {
	Name     *string `json:"name,omitempty"`
	Schedule *string `json:"schedule,omitempty"`
	Status   *Status `json:"status,omitempty"`
}

func (u Update) Empty() bool { return u.Name == nil && u.Schedule == nil && u.Status == nil }

// NewJob is the input for creating a job. ID is generated when empty.
type NewJob struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Status   Status `json:"status,omitempty"`
}

func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusDisabled:
		return StatusDisabled, nil
	default:
		return "", errors.Wrapf(ErrInvalidJob, "unknown status %q", s)
	}
}

func Ptr[T any](v T) *T { return &v }
