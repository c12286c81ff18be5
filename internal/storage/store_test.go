package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "missionctl/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{}
	for _, driver := range []string{"file", "sqlite"} {
		path := filepath.Join(t.TempDir(), "store")
		if driver == "sqlite" {
			path += ".db"
		}
		st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
		require.NoError(t, err, driver)
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func decode(t *testing.T, doc Document) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(doc.Body, &m))
	return m
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			require.NoError(t, st.Put(ctx, "cron_jobs", Document{ID: "a", Body: json.RawMessage(`{"name":"first","status":"active"}`)}))
			require.NoError(t, st.Put(ctx, "cron_jobs", Document{ID: "b", Body: json.RawMessage(`{"name":"second"}`)}))

			docs, err := st.List(ctx, "cron_jobs")
			require.NoError(t, err)
			require.Len(t, docs, 2)
			assert.Equal(t, "a", docs[0].ID)
			assert.Equal(t, "b", docs[1].ID)
			assert.Equal(t, "a", decode(t, docs[0])["id"])

			// Replace keeps position.
			require.NoError(t, st.Put(ctx, "cron_jobs", Document{ID: "a", Body: json.RawMessage(`{"name":"renamed"}`)}))
			docs, err = st.List(ctx, "cron_jobs")
			require.NoError(t, err)
			assert.Equal(t, "a", docs[0].ID)
			assert.Equal(t, "renamed", decode(t, docs[0])["name"])
			assert.NotContains(t, decode(t, docs[0]), "status")

			patched, err := st.Patch(ctx, "cron_jobs", "a", map[string]any{"status": "disabled", "name": nil, "id": "hijack"})
			require.NoError(t, err)
			m := decode(t, patched)
			assert.Equal(t, "disabled", m["status"])
			assert.NotContains(t, m, "name")
			assert.Equal(t, "a", m["id"])

			got, err := st.Get(ctx, "cron_jobs", "a")
			require.NoError(t, err)
			assert.JSONEq(t, string(patched.Body), string(got.Body))

			require.NoError(t, st.Delete(ctx, "cron_jobs", "a"))
			_, err = st.Get(ctx, "cron_jobs", "a")
			assert.True(t, errors.Is(err, ErrNotFound))
			assert.True(t, errors.Is(st.Delete(ctx, "cron_jobs", "a"), ErrNotFound))
			_, err = st.Patch(ctx, "cron_jobs", "missing", map[string]any{"x": 1})
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			assert.ErrorIs(t, st.Put(ctx, "cron_jobs", Document{ID: " "}), ErrInvalidID)
			assert.Error(t, st.Put(ctx, "cron_jobs", Document{ID: "x", Body: json.RawMessage(`[1,2]`)}))
			_, err := st.List(ctx, "../etc")
			assert.Error(t, err)

			docs, err := st.List(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, docs)
		})
	}
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			require.NoError(t, st.Close())
			_, err := st.List(ctx, "cron_jobs")
			assert.True(t, errors.Is(err, ErrClosed))
		})
	}
}

func TestFileStoreSeesExternalEdits(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	body := `[{"id":"ext","name":"from editor"},{"name":"no id"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cron_jobs.json"), []byte(body), 0o644))

	docs, err := st.List(context.Background(), "cron_jobs")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ext", docs[0].ID)
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "none"}, logx.Nop())
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = Open(Config{Driver: "redis", Path: t.TempDir()}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)

	assert.Equal(t, filepath.Join("data", defaultSQLiteFile), sqlitePath("data"))
	assert.Equal(t, "data/jobs.sqlite", sqlitePath("data/jobs.sqlite"))
}
