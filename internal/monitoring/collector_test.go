package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/panel-cli/internal/feature"
	"github.com/sells-group/panel-cli/internal/model"
	"github.com/sells-group/panel-cli/internal/panel"
	"github.com/sells-group/panel-cli/internal/store"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	runs    []model.Run
	listErr error
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

// Unused store methods, present to satisfy the interface.
func (m *mockStore) CreateRun(context.Context) (*model.Run, error)                      { return nil, nil }
func (m *mockStore) UpdateRunStatus(context.Context, string, model.RunStatus) error    { return nil }
func (m *mockStore) CompleteRun(context.Context, string, *model.QualityReport) error   { return nil }
func (m *mockStore) GetRun(context.Context, string) (*model.Run, error)                { return nil, nil }
func (m *mockStore) SavePanel(context.Context, string, *panel.Table) (int64, error)    { return 0, nil }
func (m *mockStore) LoadPanel(context.Context, string) (*panel.Table, error)           { return nil, nil }
func (m *mockStore) SaveFeatureCatalog(context.Context, []feature.Spec) (int64, error) { return 0, nil }
func (m *mockStore) Migrate(context.Context) error                                     { return nil }
func (m *mockStore) Close() error                                                      { return nil }

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockStore{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0, snap.RunsFailed)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 0.0, snap.DropRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{
		runs: []model.Run{
			{
				ID: "1", Status: model.RunStatusComplete,
				CreatedAt: now.Add(-1 * time.Hour),
				UpdatedAt: now.Add(-1 * time.Hour).Add(30 * time.Second),
				Report:    &model.QualityReport{RowsEmitted: 900, RowsDropped: 100, LabelsInvalid: 80},
			},
			{
				ID: "2", Status: model.RunStatusComplete,
				CreatedAt: now.Add(-2 * time.Hour),
				UpdatedAt: now.Add(-2 * time.Hour).Add(90 * time.Second),
				Report:    &model.QualityReport{RowsEmitted: 1100, RowsDropped: 100, LabelsInvalid: 90},
			},
			{ID: "3", Status: model.RunStatusFailed, CreatedAt: now.Add(-3 * time.Hour)},
			{ID: "4", Status: model.RunStatusQueued, CreatedAt: now.Add(-30 * time.Minute)},
			// Outside the lookback window.
			{ID: "5", Status: model.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour)},
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsActive)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 0.001) // 1 failed / 3 finished
	assert.Equal(t, int64(2000), snap.RowsEmitted)
	assert.Equal(t, int64(200), snap.RowsDropped)
	assert.Equal(t, int64(170), snap.LabelsInvalid)
	assert.InDelta(t, 200.0/2200.0, snap.DropRate, 0.001)
	assert.InDelta(t, 60.0, snap.AvgBuildSecs, 0.001)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{
		runs: []model.Run{
			{ID: "1", Status: model.RunStatusQueued, CreatedAt: now.Add(-1 * time.Hour)},
			{ID: "2", Status: model.RunStatusJoining, CreatedAt: now.Add(-2 * time.Hour)},
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	// No finished runs, so failure rate stays 0.
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 2, snap.RunsActive)
}
