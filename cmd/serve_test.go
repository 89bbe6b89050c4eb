package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/panel-cli/internal/model"
	"github.com/sells-group/panel-cli/internal/store"
)

func newServeStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestServeHealth(t *testing.T) {
	mux := newMux(newServeStore(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServeListRuns(t *testing.T) {
	st := newServeStore(t)
	mux := newMux(st)

	// Empty store returns an empty array, not null.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	run, err := st.CreateRun(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(context.Background(), run.ID, model.RunStatusComplete))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?status=complete", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	// No failed runs.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?status=failed", nil))
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestServeListRunsBadLimit(t *testing.T) {
	mux := newMux(newServeStore(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeGetRun(t *testing.T) {
	st := newServeStore(t)
	mux := newMux(st)

	run, err := st.CreateRun(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunStatusQueued, got.Status)
}

func TestServeMetrics(t *testing.T) {
	st := newServeStore(t)
	mux := newMux(st)

	run, err := st.CreateRun(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(context.Background(), run.ID, model.RunStatusFailed))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.EqualValues(t, 1, snap["runs_total"])
	assert.EqualValues(t, 1, snap["runs_failed"])
	assert.EqualValues(t, 24, snap["lookback_hours"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics?lookback=bad", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeGetRunNotFound(t *testing.T) {
	mux := newMux(newServeStore(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
