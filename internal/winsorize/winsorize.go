// Package winsorize clips cross-sectional outliers per trading day. It is
// the single cross-security step in the pipeline and must never look
// across time.
package winsorize

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/model"
)

// Config holds the percentile bounds and the minimum cross-sectional
// sample size below which a field/day is passed through unchanged.
type Config struct {
	LowerPct  float64 `yaml:"lower_pct" mapstructure:"lower_pct"`
	UpperPct  float64 `yaml:"upper_pct" mapstructure:"upper_pct"`
	MinSample int     `yaml:"min_sample" mapstructure:"min_sample"`
}

// Validate rejects degenerate bounds.
func (c Config) Validate() error {
	if c.LowerPct < 0 || c.UpperPct > 100 || c.LowerPct >= c.UpperPct {
		return eris.Errorf("winsorize: bad percentile bounds [%g, %g]", c.LowerPct, c.UpperPct)
	}
	if c.MinSample < 2 {
		return eris.Errorf("winsorize: min sample %d too small", c.MinSample)
	}
	return nil
}

// Day winsorizes one trading day's cross-section. rows must all share the
// same as-of date; fields lists the fundamental fields to clip. Returns a
// new slice with fresh Fields maps (inputs are never mutated) and the
// number of field cross-sections skipped for insufficient sample.
//
// Bounds are taken at actual data points (ceil rank for the lower bound,
// floor rank for the upper), which makes the operation idempotent: values
// already inside the bounds are fixed points of a second application.
func Day(rows []model.PanelRow, fields []string, cfg Config) ([]model.PanelRow, int64) {
	out := make([]model.PanelRow, len(rows))
	for i, r := range rows {
		if r.Fields != nil {
			cp := make(map[string]float64, len(r.Fields))
			for k, v := range r.Fields {
				cp[k] = v
			}
			r.Fields = cp
		}
		out[i] = r
	}

	var skipped int64
	for _, field := range fields {
		values := make([]float64, 0, len(out))
		for _, r := range out {
			if v, ok := present(r, field); ok {
				values = append(values, v)
			}
		}
		if len(values) < cfg.MinSample {
			if len(values) > 0 {
				skipped++
			}
			continue
		}

		sort.Float64s(values)
		iLo := int(math.Ceil(cfg.LowerPct / 100 * float64(len(values)-1)))
		iHi := int(math.Floor(cfg.UpperPct / 100 * float64(len(values)-1)))
		if iLo > iHi {
			// Degenerate bounds on a tiny sample; clipping here would
			// invert the interval.
			skipped++
			continue
		}
		lo, hi := values[iLo], values[iHi]

		for _, r := range out {
			if v, ok := present(r, field); ok {
				r.Fields[field] = clamp(v, lo, hi)
			}
		}
	}

	return out, skipped
}

func present(r model.PanelRow, field string) (float64, bool) {
	if !r.HasReport {
		return 0, false
	}
	v, ok := r.Fields[field]
	return v, ok
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
