// Package feature computes derived ratios and rolling statistics per
// security. Every feature at date T is a pure function of that security's
// panel-row history up to and including T, so lookahead is ruled out by
// construction.
package feature

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/model"
)

// Family groups features that share window/min-period configuration.
type Family string

const (
	FamilyLevel      Family = "level"      // winsorized raw field
	FamilyRatio      Family = "ratio"      // point-in-time derived ratio
	FamilyRollMean   Family = "roll_mean"  // trailing mean of a base series
	FamilyRollZ      Family = "roll_z"     // trailing z-score of a base series
	FamilyMomentum   Family = "momentum"   // price return over k sessions
	FamilyVolatility Family = "volatility" // trailing std of daily returns
	FamilyGrowth     Family = "growth"     // report-period growth (QoQ/YoY)
)

// Spec describes one feature column.
type Spec struct {
	Name       string
	Family     Family
	Base       string // base series the feature derives from
	Window     int    // trading days (rolling) or report periods (growth)
	MinPeriods int    // minimum valid observations in the window
}

// Config holds the per-family window lengths and minimum periods.
type Config struct {
	RollWindows     []int `yaml:"roll_windows" mapstructure:"roll_windows"`
	RollMinPeriods  int   `yaml:"roll_min_periods" mapstructure:"roll_min_periods"`
	MomentumWindows []int `yaml:"momentum_windows" mapstructure:"momentum_windows"`
	VolWindows      []int `yaml:"vol_windows" mapstructure:"vol_windows"`
	VolMinPeriods   int   `yaml:"vol_min_periods" mapstructure:"vol_min_periods"`
}

// DefaultConfig returns the stock window families.
func DefaultConfig() Config {
	return Config{
		RollWindows:     []int{21, 63, 126, 252},
		RollMinPeriods:  10,
		MomentumWindows: []int{5, 21, 63, 126, 252},
		VolWindows:      []int{21, 63, 126, 252},
		VolMinPeriods:   10,
	}
}

// Validate rejects unusable window configuration.
func (c Config) Validate() error {
	if len(c.RollWindows) == 0 || len(c.MomentumWindows) == 0 || len(c.VolWindows) == 0 {
		return eris.New("feature: empty window family")
	}
	for _, w := range append(append(append([]int{}, c.RollWindows...), c.MomentumWindows...), c.VolWindows...) {
		if w < 2 {
			return eris.Errorf("feature: window %d too short", w)
		}
	}
	if c.RollMinPeriods < 2 || c.VolMinPeriods < 2 {
		return eris.New("feature: min periods must be at least 2")
	}
	return nil
}

// Registry is the ordered set of feature specs. Column order is fixed at
// construction and identical across runs (reproducibility contract).
type Registry struct {
	specs   []Spec
	columns []string
}

// NewRegistry generates the full feature set from the window config:
// point-in-time levels and ratios, rolling means and z-scores over fields,
// ratios and price, price momentum and volatility, and report-period
// growth.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var specs []Spec
	add := func(s Spec) { specs = append(specs, s) }

	// Point-in-time levels: every canonical fundamental field.
	for _, f := range model.FundamentalFields {
		add(Spec{Name: f, Family: FamilyLevel, Base: baseField(f)})
	}

	// Point-in-time derived ratios (incl. per-share, valuation, size).
	for _, rb := range ratioBases() {
		add(Spec{Name: rb.name, Family: FamilyRatio, Base: rb.name})
	}

	// Rolling mean and z-score of fields, ratios and price.
	rollBases := make([]string, 0, len(model.FundamentalFields)+len(ratioBases())+1)
	for _, f := range model.FundamentalFields {
		rollBases = append(rollBases, baseField(f))
	}
	for _, rb := range ratioBases() {
		rollBases = append(rollBases, rb.name)
	}
	rollBases = append(rollBases, basePrice)

	for _, base := range rollBases {
		for _, w := range cfg.RollWindows {
			add(Spec{
				Name:       fmt.Sprintf("%s_roll_mean_%d", trimFieldPrefix(base), w),
				Family:     FamilyRollMean,
				Base:       base,
				Window:     w,
				MinPeriods: cfg.RollMinPeriods,
			})
			add(Spec{
				Name:       fmt.Sprintf("%s_roll_z_%d", trimFieldPrefix(base), w),
				Family:     FamilyRollZ,
				Base:       base,
				Window:     w,
				MinPeriods: cfg.RollMinPeriods,
			})
		}
	}

	// Price momentum.
	for _, w := range cfg.MomentumWindows {
		add(Spec{
			Name:       fmt.Sprintf("price_mom_%d", w),
			Family:     FamilyMomentum,
			Base:       basePrice,
			Window:     w,
			MinPeriods: w + 1,
		})
	}

	// Return volatility.
	for _, w := range cfg.VolWindows {
		add(Spec{
			Name:       fmt.Sprintf("price_vol_%d", w),
			Family:     FamilyVolatility,
			Base:       baseReturn,
			Window:     w,
			MinPeriods: cfg.VolMinPeriods,
		})
	}

	// Report-period growth: quarter-over-quarter and year-over-year.
	for _, f := range model.FundamentalFields {
		add(Spec{Name: f + "_qoq", Family: FamilyGrowth, Base: baseField(f), Window: 1, MinPeriods: 2})
		add(Spec{Name: f + "_yoy", Family: FamilyGrowth, Base: baseField(f), Window: 4, MinPeriods: 5})
	}

	columns := make([]string, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		if seen[s.Name] {
			return nil, eris.Errorf("feature: duplicate feature name %s", s.Name)
		}
		seen[s.Name] = true
		columns[i] = s.Name
	}

	return &Registry{specs: specs, columns: columns}, nil
}

// Specs returns the ordered feature specs. Callers must not mutate.
func (r *Registry) Specs() []Spec { return r.specs }

// Columns returns the stable feature column order.
func (r *Registry) Columns() []string { return r.columns }

// Len returns the number of features.
func (r *Registry) Len() int { return len(r.specs) }
