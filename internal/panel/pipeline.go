// Package panel orchestrates the four pipeline phases and assembles the
// final training-ready table. The unit of parallelism is the security;
// winsorization is the single cross-sectional phase and runs behind its
// own barrier, parallel per date instead.
package panel

import (
	"context"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/panel-cli/internal/asof"
	"github.com/sells-group/panel-cli/internal/calendar"
	"github.com/sells-group/panel-cli/internal/feature"
	"github.com/sells-group/panel-cli/internal/label"
	"github.com/sells-group/panel-cli/internal/model"
	"github.com/sells-group/panel-cli/internal/winsorize"
)

// Imputation modes for invalid feature entries. Invalid labels always
// drop the row; these modes only govern features.
const (
	ImputationDropRow  = "drop-row"
	ImputationFlagOnly = "flag-only"
	ImputationNeutral  = "neutral-impute"
)

// Config is the full pipeline configuration surface.
type Config struct {
	Horizon          int              `yaml:"horizon" mapstructure:"horizon"`
	MaxReportAgeDays int              `yaml:"max_report_age_days" mapstructure:"max_report_age_days"`
	Imputation       string           `yaml:"imputation" mapstructure:"imputation"`
	NeutralValue     float64          `yaml:"neutral_value" mapstructure:"neutral_value"`
	Workers          int              `yaml:"workers" mapstructure:"workers"`
	Winsorize        winsorize.Config `yaml:"winsorize" mapstructure:"winsorize"`
	Features         feature.Config   `yaml:"features" mapstructure:"features"`
}

// DefaultConfig returns the documented defaults: 63-day horizon, 1/99
// winsorization with a 20-security floor, flag-only imputation.
func DefaultConfig() Config {
	return Config{
		Horizon:          63,
		MaxReportAgeDays: 400,
		Imputation:       ImputationFlagOnly,
		Winsorize:        winsorize.Config{LowerPct: 1, UpperPct: 99, MinSample: 20},
		Features:         feature.DefaultConfig(),
	}
}

// Validate checks the configuration before a run starts.
func (c Config) Validate() error {
	if c.Horizon <= 0 {
		return eris.Errorf("panel: horizon must be positive, got %d", c.Horizon)
	}
	switch c.Imputation {
	case ImputationDropRow, ImputationFlagOnly, ImputationNeutral:
	default:
		return eris.Errorf("panel: unknown imputation mode %q", c.Imputation)
	}
	if err := c.Winsorize.Validate(); err != nil {
		return err
	}
	return c.Features.Validate()
}

// Row is one output record: identifying keys, ordered feature values, and
// the label with the benchmark return it was computed against.
type Row struct {
	SecurityID      string        `json:"security_id"`
	AsOfDate        time.Time     `json:"as_of_date"`
	Features        []model.Value `json:"features"` // ordered as Table.Columns
	Label           float64       `json:"label"`
	LabelUp         bool          `json:"label_up"`
	BenchmarkReturn float64       `json:"benchmark_return"`
}

// Table is the final panel: one row per valid (security, as-of date),
// sorted by (as-of date, security) with a stable column order.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Result bundles the table with the run's data-quality report.
type Result struct {
	Table  *Table
	Report model.QualityReport
}

// Inputs is the materialized data the builder consumes. Everything is in
// memory before Phase 1 starts; no I/O happens inside the phases.
type Inputs struct {
	Reports         []model.FundamentalReport
	Prices          []model.PriceBar
	Benchmark       []model.PriceBar
	ReportsRejected int64 // carried into the quality report by ingest
}

// Builder runs the pipeline.
type Builder struct {
	cal *calendar.Calendar
	uni *calendar.Universe
	reg *feature.Registry
	cfg Config

	// OnStatus, when set, receives run-status transitions between phases.
	OnStatus func(model.RunStatus)
}

// NewBuilder validates config and constructs the feature registry.
func NewBuilder(cal *calendar.Calendar, uni *calendar.Universe, cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg, err := feature.NewRegistry(cfg.Features)
	if err != nil {
		return nil, err
	}
	return &Builder{cal: cal, uni: uni, reg: reg, cfg: cfg}, nil
}

// Registry exposes the feature registry (column order) to exporters.
func (b *Builder) Registry() *feature.Registry { return b.reg }

// Build runs all four phases. A cancelled context aborts between phases
// and returns no partial table.
func (b *Builder) Build(ctx context.Context, in Inputs) (*Result, error) {
	log := zap.L().With(zap.String("component", "panel.builder"))

	workers := b.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	securities := b.uni.Securities()
	report := model.QualityReport{
		Securities:      len(securities),
		TradingDays:     b.cal.Len(),
		ReportsAccepted: int64(len(in.Reports)),
		ReportsRejected: in.ReportsRejected,
	}

	labelEng, err := label.NewEngine(b.cal, in.Benchmark, b.cfg.Horizon)
	if err != nil {
		return nil, err
	}

	reportsBySec := groupReports(in.Reports)
	pricesBySec := groupPrices(in.Prices)

	// ===== Phase 1: as-of join, parallel per security =====
	b.setStatus(model.RunStatusJoining)
	joined := make([][]model.PanelRow, len(securities))

	err = b.trackPhase(&report, log, "1_asof_join", func() error {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, sec := range securities {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				rows, joinErr := asof.JoinSecurity(b.cal, sec,
					reportsBySec[sec.ID], pricesBySec[sec.ID], b.cfg.MaxReportAgeDays)
				if joinErr != nil {
					return joinErr
				}
				joined[i] = rows
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	if err := b.checkpoint(ctx); err != nil {
		return nil, err
	}

	for _, rows := range joined {
		report.RowsJoined += int64(len(rows))
	}

	// ===== Phase 2: winsorize, parallel per date =====
	b.setStatus(model.RunStatusWinsorizing)
	winsored := make([][]model.PanelRow, len(securities))
	for i, rows := range joined {
		winsored[i] = make([]model.PanelRow, len(rows))
	}

	err = b.trackPhase(&report, log, "2_winsorize", func() error {
		groups := groupByDate(joined)
		var skipped atomic.Int64

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, grp := range groups {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				cross := make([]model.PanelRow, len(grp.locs))
				for k, l := range grp.locs {
					cross[k] = joined[l.sec][l.row]
				}
				clipped, n := winsorize.Day(cross, model.FundamentalFields, b.cfg.Winsorize)
				skipped.Add(n)
				for k, l := range grp.locs {
					winsored[l.sec][l.row] = clipped[k]
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		report.WinsorizeSkipped = skipped.Load()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := b.checkpoint(ctx); err != nil {
		return nil, err
	}

	// ===== Phase 3: features + labels, parallel per security =====
	b.setStatus(model.RunStatusComputing)
	gen := feature.NewGenerator(b.reg)
	vectors := make([][]model.FeatureVector, len(securities))
	labels := make([][]model.Label, len(securities))

	err = b.trackPhase(&report, log, "3_features_labels", func() error {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := range securities {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				vectors[i] = gen.Compute(winsored[i])
				// Labels read raw future prices, not winsorized features.
				labels[i] = labelEng.Compute(joined[i])
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	if err := b.checkpoint(ctx); err != nil {
		return nil, err
	}

	// ===== Phase 4: deterministic assemble + sort =====
	b.setStatus(model.RunStatusAssembling)
	var table *Table
	err = b.trackPhase(&report, log, "4_assemble", func() error {
		table = b.assemble(vectors, labels, &report)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("panel build complete",
		zap.Int64("rows_joined", report.RowsJoined),
		zap.Int64("rows_emitted", report.RowsEmitted),
		zap.Int64("rows_dropped", report.RowsDropped),
	)
	return &Result{Table: table, Report: report}, nil
}

// checkpoint is the between-phase cancellation point: a cancelled run
// produces no partial table.
func (b *Builder) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		b.setStatus(model.RunStatusCancelled)
		return eris.Wrap(err, "panel: run cancelled")
	}
	return nil
}

func (b *Builder) setStatus(s model.RunStatus) {
	if b.OnStatus != nil {
		b.OnStatus(s)
	}
}

// trackPhase times a phase and records its outcome on the report.
func (b *Builder) trackPhase(report *model.QualityReport, log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	pr := model.PhaseResult{
		Name:     name,
		Status:   model.PhaseStatusComplete,
		Duration: time.Since(start).Milliseconds(),
	}
	if err != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = err.Error()
		log.Error("phase failed", zap.String("phase", name), zap.Error(err))
	} else {
		log.Info("phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", pr.Duration),
		)
	}
	report.Phases = append(report.Phases, pr)
	return err
}

type loc struct{ sec, row int }

type dateGroup struct {
	date time.Time
	locs []loc
}

// groupByDate collects row coordinates per trading day so each day's
// cross-section can be winsorized independently.
func groupByDate(joined [][]model.PanelRow) []dateGroup {
	byDate := make(map[time.Time][]loc)
	for i, rows := range joined {
		for j, r := range rows {
			byDate[r.AsOfDate] = append(byDate[r.AsOfDate], loc{sec: i, row: j})
		}
	}
	groups := make([]dateGroup, 0, len(byDate))
	for d, locs := range byDate {
		groups = append(groups, dateGroup{date: d, locs: locs})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].date.Before(groups[j].date) })
	return groups
}

func groupReports(reports []model.FundamentalReport) map[string][]model.FundamentalReport {
	out := make(map[string][]model.FundamentalReport)
	for _, r := range reports {
		out[r.SecurityID] = append(out[r.SecurityID], r)
	}
	return out
}

func groupPrices(prices []model.PriceBar) map[string][]model.PriceBar {
	out := make(map[string][]model.PriceBar)
	for _, p := range prices {
		out[p.SecurityID] = append(out[p.SecurityID], p)
	}
	return out
}
