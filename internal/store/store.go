// Package store persists runs, quality reports, and assembled panels.
// SQLite backs local single-machine builds; Postgres backs shared
// deployments where downstream training jobs read the panel directly.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/feature"
	"github.com/sells-group/panel-cli/internal/model"
	"github.com/sells-group/panel-cli/internal/panel"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for panel builds.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, report *model.QualityReport) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Panel output
	SavePanel(ctx context.Context, runID string, table *panel.Table) (int64, error)
	LoadPanel(ctx context.Context, runID string) (*panel.Table, error)
	SaveFeatureCatalog(ctx context.Context, specs []feature.Spec) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// encodeFeatures serializes one row's feature cells as a JSON object keyed
// by column name. Invalid cells become JSON null so missingness survives
// the round trip.
func encodeFeatures(columns []string, values []model.Value) ([]byte, error) {
	obj := make(map[string]*float64, len(columns))
	for i, name := range columns {
		if values[i].Valid {
			f := values[i].Float
			obj[name] = &f
		} else {
			obj[name] = nil
		}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal features")
	}
	return b, nil
}

// decodeFeatures is the inverse of encodeFeatures: JSON null maps back to
// an invalid cell, missing keys too.
func decodeFeatures(columns []string, raw []byte) ([]model.Value, error) {
	var obj map[string]*float64
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal features")
	}
	values := make([]model.Value, len(columns))
	for i, name := range columns {
		if f, ok := obj[name]; ok && f != nil {
			values[i] = model.Valid(*f)
		} else {
			values[i] = model.Invalid()
		}
	}
	return values, nil
}
