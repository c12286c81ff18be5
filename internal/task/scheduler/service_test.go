package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionctl/internal/eventbus"
	"missionctl/internal/task/executor"
	"missionctl/internal/task/jobs"
	logx "missionctl/pkg/logx"
)

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	order   []string
	byID    map[string]jobs.Record
	listErr error
	patches int
}

func newMemStore(recs ...jobs.Record) *memStore {
	m := &memStore{byID: map[string]jobs.Record{}}
	for _, r := range recs {
		m.put(r)
	}
	return m
}

func (m *memStore) put(r jobs.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[r.ID]; !ok {
		m.order = append(m.order, r.ID)
	}
	m.byID[r.ID] = r
}

func (m *memStore) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *memStore) get(id string) jobs.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memStore) ListJobs(ctx context.Context) ([]jobs.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]jobs.Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out, nil
}

func (m *memStore) GetJob(ctx context.Context, id string) (jobs.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	return r, ok, nil
}

func (m *memStore) PatchJob(ctx context.Context, id string, p jobs.Patch) (jobs.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return jobs.Record{}, false, nil
	}
	m.patches++
	if p.NextRun != nil {
		t := *p.NextRun
		r.NextRun = &t
	}
	if p.LastRun != nil {
		t := *p.LastRun
		r.LastRun = &t
	}
	if p.LastResult != nil {
		r.LastResult = *p.LastResult
	}
	if p.LastDuration != nil {
		ms := p.LastDuration.Milliseconds()
		r.LastDuration = &ms
	}
	if p.LastError != nil {
		r.LastError = *p.LastError
	}
	if p.ClearLastDuration {
		r.LastDuration = nil
	}
	if p.ClearLastError {
		r.LastError = ""
	}
	m.byID[id] = r
	return r, true, nil
}

func job(id, sched string, st jobs.Status) jobs.Record {
	return jobs.Record{ID: id, Name: "job " + id, Schedule: sched, Status: st}
}

func newTestService(t *testing.T, store Store, ex executor.Executor) *Service {
	t.Helper()
	s := New(Config{Enabled: true, ReconcileInterval: time.Hour}, store, ex, logx.Nop(), nil)
	t.Cleanup(s.Stop)
	return s
}

func entryIDs(s *Service) map[string]*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

func TestStartStopIdempotent(t *testing.T) {
	store := newMemStore(job("a", "*/5 * * * *", jobs.StatusActive), job("b", "0 9 * * 1", jobs.StatusActive))
	s := newTestService(t, store, nil)
	ctx := context.Background()

	s.Start(ctx)
	first := entryIDs(s)
	s.Start(ctx)
	second := entryIDs(s)

	require.Len(t, second, 2)
	assert.Same(t, first["a"], second["a"])
	assert.Same(t, first["b"], second["b"])

	st := s.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.ActiveCount)

	s.Stop()
	s.Stop()
	st = s.Status()
	assert.False(t, st.Running)
	assert.Zero(t, st.ActiveCount)
	assert.Empty(t, st.Entries)
}

func TestReconcileConvergence(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive), job("B", "*/5 * * * *", jobs.StatusDisabled))
	s := newTestService(t, store, nil)
	s.Start(context.Background())

	st := s.Status()
	require.Equal(t, 1, st.ActiveCount)
	assert.Equal(t, "A", st.Entries[0].ID)
	assert.Equal(t, "*/5 * * * *", st.Entries[0].Schedule)

	// next_run is persisted as soon as the job is scheduled.
	a := store.get("A")
	require.NotNil(t, a.NextRun)
	assert.True(t, a.NextRun.Equal(st.Entries[0].NextRun))
	assert.True(t, a.NextRun.After(time.Now()))
	assert.Nil(t, store.get("B").NextRun)
}

func TestScheduleChangeDetection(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	s := newTestService(t, store, nil)
	ctx := context.Background()
	s.Start(ctx)

	before := entryIDs(s)["A"]
	require.NoError(t, s.Reconcile(ctx))
	assert.Same(t, before, entryIDs(s)["A"], "unchanged schedule keeps the timer")

	store.put(job("A", "0 * * * *", jobs.StatusActive))
	require.NoError(t, s.Reconcile(ctx))
	after := entryIDs(s)["A"]
	require.NotNil(t, after)
	assert.NotSame(t, before, after)
	assert.NotEqual(t, before.entryID, after.entryID)
	assert.Equal(t, "0 * * * *", after.schedule)
	assert.Len(t, entryIDs(s), 1)

	// The old timer is gone from the cron runner too.
	s.mu.Lock()
	assert.Len(t, s.c.Entries(), 1)
	s.mu.Unlock()
}

func TestDisableAndReenable(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	s := newTestService(t, store, nil)
	ctx := context.Background()
	s.Start(ctx)
	require.Len(t, entryIDs(s), 1)

	store.put(job("A", "*/5 * * * *", jobs.StatusDisabled))
	require.NoError(t, s.Reconcile(ctx))
	assert.Empty(t, entryIDs(s))

	fixed := time.Date(2030, 1, 2, 3, 4, 0, 0, time.UTC)
	s.mu.Lock()
	s.now = func() time.Time { return fixed }
	s.mu.Unlock()

	store.put(job("A", "*/5 * * * *", jobs.StatusActive))
	require.NoError(t, s.Reconcile(ctx))
	require.Len(t, entryIDs(s), 1)
	next := store.get("A").NextRun
	require.NotNil(t, next)
	assert.True(t, next.Equal(time.Date(2030, 1, 2, 3, 5, 0, 0, time.UTC)), next.String())
}

func TestDeletionRemovesEntry(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive), job("B", "*/5 * * * *", jobs.StatusActive))
	s := newTestService(t, store, nil)
	ctx := context.Background()
	s.Start(ctx)
	require.Len(t, entryIDs(s), 2)

	store.remove("A")
	require.NoError(t, s.Reconcile(ctx))
	got := entryIDs(s)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "B")
}

func TestInvalidExpressionSkipped(t *testing.T) {
	store := newMemStore(
		job("bad", "not a cron", jobs.StatusActive),
		job("range", "75 * * * *", jobs.StatusActive),
		job("ok", "0 * * * *", jobs.StatusActive),
	)
	s := newTestService(t, store, nil)
	s.Start(context.Background())

	got := entryIDs(s)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "ok")
	assert.Nil(t, store.get("bad").NextRun)

	// A valid job edited into an invalid one loses its timer.
	store.put(job("ok", "61 * * * *", jobs.StatusActive))
	require.NoError(t, s.Reconcile(context.Background()))
	assert.Empty(t, entryIDs(s))
}

func TestStoreUnavailableAbortsPass(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	s := newTestService(t, store, nil)
	ctx := context.Background()
	s.Start(ctx)

	store.mu.Lock()
	store.listErr = errors.New("disk on fire")
	store.mu.Unlock()

	err := s.Reconcile(ctx)
	require.Error(t, err)
	assert.Len(t, entryIDs(s), 1, "failed pass leaves timers untouched")

	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()
	require.NoError(t, s.Reconcile(ctx))
}

func TestStartWithStoreDownDoesNotPanic(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("unavailable")
	s := newTestService(t, store, nil)
	s.Start(context.Background())
	assert.True(t, s.Running())
	assert.Zero(t, s.Status().ActiveCount)
}

func TestReconcileWhenStoppedIsNoop(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	s := newTestService(t, store, nil)
	require.NoError(t, s.Reconcile(context.Background()))
	assert.Empty(t, entryIDs(s))
	assert.Zero(t, store.patches)
}

func TestExecutionSuccessBookkeeping(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	r := store.get("A")
	r.LastError = "stale"
	store.put(r)

	var sawRunning jobs.Result
	ex := executor.Func(func(ctx context.Context, j jobs.Record) error {
		sawRunning = store.get(j.ID).LastResult
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	s := newTestService(t, store, ex)
	s.execute(context.Background(), "A", "*/5 * * * *", s.Location())

	got := store.get("A")
	assert.Equal(t, jobs.ResultRunning, sawRunning)
	assert.Equal(t, jobs.ResultSuccess, got.LastResult)
	require.NotNil(t, got.LastDuration)
	assert.GreaterOrEqual(t, *got.LastDuration, int64(100))
	assert.Less(t, *got.LastDuration, int64(1000))
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.LastRun)
	require.NotNil(t, got.NextRun)
	assert.True(t, got.NextRun.After(*got.LastRun))

	h := s.History()
	require.Len(t, h, 1)
	assert.Equal(t, jobs.ResultSuccess, h[0].Result)
}

func TestExecutionErrorBookkeeping(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	d := int64(42)
	r := store.get("A")
	r.LastDuration = &d
	store.put(r)

	ex := executor.Func(func(context.Context, jobs.Record) error { return errors.New("boom") })
	s := newTestService(t, store, ex)
	s.execute(context.Background(), "A", "*/5 * * * *", s.Location())

	got := store.get("A")
	assert.Equal(t, jobs.ResultError, got.LastResult)
	assert.Equal(t, "boom", got.LastError)
	assert.Nil(t, got.LastDuration)
}

func TestExecutionPanicIsContained(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	ex := executor.Func(func(context.Context, jobs.Record) error { panic("kaput") })
	s := newTestService(t, store, ex)
	s.execute(context.Background(), "A", "*/5 * * * *", s.Location())

	got := store.get("A")
	assert.Equal(t, jobs.ResultError, got.LastResult)
	assert.Contains(t, got.LastError, "kaput")
}

func TestExecutionSkipsVanishedJob(t *testing.T) {
	store := newMemStore()
	called := false
	ex := executor.Func(func(context.Context, jobs.Record) error { called = true; return nil })
	s := newTestService(t, store, ex)
	s.execute(context.Background(), "ghost", "* * * * *", s.Location())
	assert.False(t, called)
	assert.Zero(t, store.patches)
}

func TestNoFiringAfterStop(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	called := false
	ex := executor.Func(func(context.Context, jobs.Record) error { called = true; return nil })
	s := newTestService(t, store, ex)
	s.Start(context.Background())
	e := entryIDs(s)["A"]
	require.NotNil(t, e)

	s.Stop()
	s.fire("A", e)
	assert.False(t, called)
}

func TestStaleTimerDoesNotFire(t *testing.T) {
	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	called := 0
	ex := executor.Func(func(context.Context, jobs.Record) error { called++; return nil })
	s := newTestService(t, store, ex)
	ctx := context.Background()
	s.Start(ctx)
	old := entryIDs(s)["A"]

	store.put(job("A", "0 * * * *", jobs.StatusActive))
	require.NoError(t, s.Reconcile(ctx))

	s.fire("A", old)
	assert.Zero(t, called)
	s.fire("A", entryIDs(s)["A"])
	assert.Equal(t, 1, called)
}

func TestEventsPublished(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()

	store := newMemStore(job("A", "*/5 * * * *", jobs.StatusActive))
	s := New(Config{ReconcileInterval: time.Hour}, store, nil, logx.Nop(), bus)
	defer s.Stop()
	s.Start(context.Background())
	store.remove("A")
	require.NoError(t, s.Reconcile(context.Background()))

	var types []string
	timeout := time.After(time.Second)
	for len(types) < 4 {
		select {
		case e := <-ch:
			types = append(types, e.Type)
		case <-timeout:
			t.Fatalf("events so far: %v", types)
		}
	}
	assert.Equal(t, []string{EventScheduled, EventReconciled, EventUnscheduled, EventReconciled}, types)
}

func TestApplyRestartsOnZoneChange(t *testing.T) {
	store := newMemStore(job("A", "30 9 * * *", jobs.StatusActive))
	s := newTestService(t, store, nil)
	s.Start(context.Background())
	assert.Equal(t, "America/New_York", s.Status().Timezone)
	assert.Equal(t, "Every day at 9:30 AM EST", s.DescribeSchedule("30 9 * * *"))

	s.Apply(Config{Enabled: true, Timezone: "UTC", ReconcileInterval: time.Hour})
	st := s.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "UTC", st.Timezone)
	require.Len(t, st.Entries, 1)
	assert.Equal(t, 9, st.Entries[0].NextRun.In(time.UTC).Hour())

	s.Apply(Config{Enabled: false, Timezone: "UTC", ReconcileInterval: time.Hour})
	assert.False(t, s.Running())
}

func TestHistoryBounded(t *testing.T) {
	s := New(Config{HistorySize: 2}, newMemStore(), nil, logx.Nop(), nil)
	for i := 0; i < 5; i++ {
		s.record(HistoryItem{JobID: string(rune('a' + i))})
	}
	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, "d", h[0].JobID)
	assert.Equal(t, "e", h[1].JobID)
}
