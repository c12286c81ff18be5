package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionctl/internal/task/jobs"
	"missionctl/internal/task/scheduler"
)

func TestExprArg(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "30 9 * * *", exprArg([]string{"30 9 * * *"}))
	assert.Equal(t, "30 9 * * *", exprArg([]string{"30", "9", "*", "*", "*"}))
	assert.Equal(t, "*/5 * * * *", exprArg([]string{"  */5  * *", "* *  "}))
}

func TestLastResult(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "-", lastResult(jobs.Record{}))
	assert.Contains(t, lastResult(jobs.Record{LastResult: jobs.ResultError, LastError: "boom"}), "boom")
	ms := int64(1500)
	assert.Contains(t, lastResult(jobs.Record{LastResult: jobs.ResultSuccess, LastDuration: &ms}), "1.5s")
	assert.Equal(t, "-", relTime(nil))
}

func TestFetchStatus(t *testing.T) {
	t.Parallel()
	want := scheduler.Snapshot{
		Running:     true,
		ActiveCount: 1,
		Timezone:    "America/New_York",
		ZoneLabel:   "EST",
		Entries:     []scheduler.EntryInfo{{ID: "a", Schedule: "0 9 * * *", NextRun: time.Now().Add(time.Hour).UTC()}},
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cron/status" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer ts.Close()

	got, err := fetchStatus(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.True(t, got.Running)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "a", got.Entries[0].ID)

	// host:port form.
	got, err = fetchStatus(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	assert.Equal(t, 1, got.ActiveCount)

	_, err = fetchStatus(context.Background(), ts.URL+"/nope")
	assert.Error(t, err)
}
