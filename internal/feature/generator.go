package feature

import (
	"sort"
	"time"

	"github.com/sells-group/panel-cli/internal/model"
)

// Generator computes every registered feature for one security's ordered
// panel-row history. It holds no per-security state, so one instance is
// safely shared across the parallel per-security phase.
type Generator struct {
	reg *Registry
}

// NewGenerator wraps a registry.
func NewGenerator(reg *Registry) *Generator {
	return &Generator{reg: reg}
}

// Compute derives one FeatureVector per panel row. rows must belong to a
// single security and be ordered by as-of date. Every output at index i
// reads only rows[0..i]; appending future rows never changes earlier
// vectors.
func (g *Generator) Compute(rows []model.PanelRow) []model.FeatureVector {
	n := len(rows)
	if n == 0 {
		return nil
	}

	bases := buildBases(rows)

	series := make(map[string][]model.Value, g.reg.Len())
	for _, s := range g.reg.Specs() {
		switch s.Family {
		case FamilyLevel, FamilyRatio:
			series[s.Name] = bases[s.Base]
		case FamilyRollMean:
			series[s.Name] = rollMeanSeries(bases[s.Base], s.Window, s.MinPeriods)
		case FamilyRollZ:
			series[s.Name] = rollZSeries(bases[s.Base], s.Window, s.MinPeriods)
		case FamilyMomentum:
			series[s.Name] = momentumSeries(bases[basePrice], s.Window)
		case FamilyVolatility:
			series[s.Name] = rollStdSeries(bases[baseReturn], s.Window, s.MinPeriods)
		case FamilyGrowth:
			series[s.Name] = growthSeries(rows, trimFieldPrefix(s.Base), s.Window)
		}
	}

	vectors := make([]model.FeatureVector, n)
	for i, r := range rows {
		values := make(map[string]model.Value, g.reg.Len())
		for _, name := range g.reg.Columns() {
			values[name] = series[name][i]
		}
		vectors[i] = model.FeatureVector{
			SecurityID: r.SecurityID,
			AsOfDate:   r.AsOfDate,
			Values:     values,
		}
	}
	return vectors
}

// growthSeries computes report-period growth of one field: the current
// report's value against the report lag periods earlier, among reports
// visible at each row's date. Values are frozen when a report first
// becomes visible; a restatement overwrites its period from its own
// visibility date forward.
func growthSeries(rows []model.PanelRow, field string, lag int) []model.Value {
	out := make([]model.Value, len(rows))

	var periodEnds []time.Time // sorted distinct period ends seen so far
	values := make(map[time.Time]model.Value)
	var lastPeriod, lastFiled time.Time

	for i, r := range rows {
		if !r.HasReport {
			out[i] = model.Invalid()
			continue
		}

		if !r.ReportPeriodEnd.Equal(lastPeriod) || !r.ReportFiledAt.Equal(lastFiled) {
			lastPeriod, lastFiled = r.ReportPeriodEnd, r.ReportFiledAt
			if _, seen := values[r.ReportPeriodEnd]; !seen {
				periodEnds = insertSorted(periodEnds, r.ReportPeriodEnd)
			}
			values[r.ReportPeriodEnd] = r.Field(field)
		}

		idx := sort.Search(len(periodEnds), func(j int) bool {
			return !periodEnds[j].Before(r.ReportPeriodEnd)
		})
		if idx-lag < 0 {
			out[i] = model.Invalid()
			continue
		}

		cur, prev := values[r.ReportPeriodEnd], values[periodEnds[idx-lag]]
		out[i] = growthOf(cur, prev)
	}
	return out
}

func growthOf(cur, prev model.Value) model.Value {
	if !cur.Valid || !prev.Valid || prev.Float == 0 {
		return model.Invalid()
	}
	return model.Valid(cur.Float/prev.Float - 1)
}

func insertSorted(dates []time.Time, d time.Time) []time.Time {
	i := sort.Search(len(dates), func(j int) bool { return !dates[j].Before(d) })
	dates = append(dates, time.Time{})
	copy(dates[i+1:], dates[i:])
	dates[i] = d
	return dates
}
