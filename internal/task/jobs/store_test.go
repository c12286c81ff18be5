package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionctl/internal/storage"
	logx "missionctl/pkg/logx"
)

func newTestStore(t *testing.T) (*Store, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	s := NewStore(st, "cron_jobs", logx.Nop())
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, st
}

func TestCreateAndList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateJob(ctx, NewJob{Name: "Backup", Schedule: " */5 * * * * "})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, StatusActive, a.Status)
	assert.Equal(t, "*/5 * * * *", a.Schedule)

	_, err = s.CreateJob(ctx, NewJob{ID: "report", Name: "Report", Schedule: "0 9 * * 1", Status: "disabled"})
	require.NoError(t, err)

	_, err = s.CreateJob(ctx, NewJob{ID: "report", Name: "Dup", Schedule: "0 9 * * 1"})
	assert.True(t, errors.Is(err, ErrInvalidJob))

	list, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, "report", list[1].ID)
	assert.False(t, list[1].Active())
	require.NotNil(t, list[1].CreatedAt)
	assert.True(t, list[1].CreatedAt.Equal(s.now()))
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetScheduleValidator(func(expr string) error {
		if expr == "not a cron" {
			return errors.New("bad expression")
		}
		return nil
	})
	ctx := context.Background()

	tests := []struct {
		name string
		in   NewJob
	}{
		{"missing name", NewJob{Schedule: "* * * * *"}},
		{"missing schedule", NewJob{Name: "x"}},
		{"rejected schedule", NewJob{Name: "x", Schedule: "not a cron"}},
		{"bad status", NewJob{Name: "x", Schedule: "* * * * *", Status: "paused"}},
	}
	for _, tt := range tests {
		_, err := s.CreateJob(ctx, tt.in)
		assert.True(t, errors.Is(err, ErrInvalidJob), tt.name)
	}
}

func TestPatchJobBookkeeping(t *testing.T) {
	s, st := newTestStore(t)
	ctx := context.Background()
	r, err := s.CreateJob(ctx, NewJob{ID: "j1", Name: "J", Schedule: "* * * * *"})
	require.NoError(t, err)

	run := time.Date(2025, 3, 1, 14, 30, 0, 123456789, time.FixedZone("EST", -5*3600))
	got, ok, err := s.PatchJob(ctx, r.ID, Patch{
		LastRun:    &run,
		LastResult: Ptr(ResultError),
		LastError:  Ptr("boom"),
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ResultError, got.LastResult)
	assert.Equal(t, "boom", got.LastError)
	assert.Nil(t, got.LastDuration)

	// Persisted as UTC with millisecond precision.
	doc, err := st.Get(ctx, "cron_jobs", "j1")
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(doc.Body, &raw))
	assert.Equal(t, "2025-03-01T19:30:00.123Z", raw["last_run"])

	got, ok, err = s.PatchJob(ctx, r.ID, Patch{
		LastResult:     Ptr(ResultSuccess),
		LastDuration:   Ptr(150 * time.Millisecond),
		ClearLastError: true,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ResultSuccess, got.LastResult)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.LastDuration)
	assert.Equal(t, int64(150), *got.LastDuration)

	_, ok, err = s.PatchJob(ctx, "missing", Patch{LastResult: Ptr(ResultRunning)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateAndDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateJob(ctx, NewJob{ID: "j1", Name: "J", Schedule: "* * * * *"})
	require.NoError(t, err)

	got, ok, err := s.UpdateJob(ctx, "j1", Update{Schedule: Ptr("*/10 * * * *"), Status: Ptr(StatusDisabled)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "*/10 * * * *", got.Schedule)
	assert.Equal(t, StatusDisabled, got.Status)

	_, ok, err = s.UpdateJob(ctx, "nope", Update{Name: Ptr("x")})
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.UpdateJob(ctx, "j1", Update{Name: Ptr("  ")})
	assert.True(t, errors.Is(err, ErrInvalidJob))

	removed, err := s.DeleteJob(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.DeleteJob(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestListSkipsMalformed(t *testing.T) {
	s, st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "cron_jobs", storage.Document{ID: "bad", Body: json.RawMessage(`{"next_run":"yesterday"}`)}))
	require.NoError(t, st.Put(ctx, "cron_jobs", storage.Document{ID: "good", Body: json.RawMessage(`{"name":"ok","schedule":"* * * * *","status":"active"}`)}))

	list, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ID)
}

func TestPatchFields(t *testing.T) {
	t.Parallel()
	f := Patch{ClearLastDuration: true, LastError: Ptr("x")}.Fields()
	v, ok := f["last_duration"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, "x", f["last_error"])
	assert.Empty(t, Patch{}.Fields())
}
