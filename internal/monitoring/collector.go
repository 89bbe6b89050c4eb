// Package monitoring watches panel build health: it aggregates recent run
// outcomes into a snapshot, evaluates the snapshot against configured
// thresholds, and delivers alerts over a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/model"
	"github.com/sells-group/panel-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of build health.
type MetricsSnapshot struct {
	// Run outcomes within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsFailed    int     `json:"runs_failed"`
	RunsCancelled int     `json:"runs_cancelled"`
	RunsActive    int     `json:"runs_active"`
	FailRate      float64 `json:"fail_rate"`

	// Row quality aggregated from completed run reports.
	RowsEmitted   int64   `json:"rows_emitted"`
	RowsDropped   int64   `json:"rows_dropped"`
	LabelsInvalid int64   `json:"labels_invalid"`
	DropRate      float64 `json:"drop_rate"`

	// Timing.
	AvgBuildSecs float64 `json:"avg_build_secs"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers run metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector backed by the given store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of build health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusCancelled:
			snap.RunsCancelled++
		default:
			snap.RunsActive++
		}
		if r.Report != nil {
			snap.RowsEmitted += r.Report.RowsEmitted
			snap.RowsDropped += r.Report.RowsDropped
			snap.LabelsInvalid += r.Report.LabelsInvalid
		}
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if total := snap.RowsEmitted + snap.RowsDropped; total > 0 {
		snap.DropRate = float64(snap.RowsDropped) / float64(total)
	}
	if durCount > 0 {
		snap.AvgBuildSecs = totalDur.Seconds() / float64(durCount)
	}

	return snap, nil
}
