package model

import "time"

// Value is a tagged float: either a valid number or an explicit invalid
// marker. Invalid values never carry a usable Float, so they cannot be
// mistaken for a legitimate zero or summed into aggregates.
type Value struct {
	Float float64 `json:"float"`
	Valid bool    `json:"valid"`
}

// Valid wraps f as a valid value.
func Valid(f float64) Value { return Value{Float: f, Valid: true} }

// Invalid returns the explicit invalid marker.
func Invalid() Value { return Value{} }

// PanelRow is the as-of snapshot for one (security, trading day): the
// contemporaneous price bar plus the most recent fundamentals visible on
// that date, if any. Produced by the temporal join; write-once.
type PanelRow struct {
	SecurityID string    `json:"security_id"`
	AsOfDate   time.Time `json:"as_of_date"`
	Price      PriceBar  `json:"price"`

	// Fundamentals snapshot. HasReport is false when no report had been
	// filed (and not gone stale) as of AsOfDate; Fields is nil in that case.
	HasReport       bool               `json:"has_report"`
	ReportPeriodEnd time.Time          `json:"report_period_end,omitempty"`
	ReportFiledAt   time.Time          `json:"report_filed_at,omitempty"`
	Fields          map[string]float64 `json:"fields,omitempty"`
}

// Field returns the named fundamental field as a tagged value. Missing
// fields and rows without a report are invalid.
func (r PanelRow) Field(name string) Value {
	if !r.HasReport {
		return Invalid()
	}
	f, ok := r.Fields[name]
	if !ok {
		return Invalid()
	}
	return Valid(f)
}

// FeatureVector holds every computed feature for one panel row, keyed by
// feature name. Invalid entries mark insufficient history or missing
// operands.
type FeatureVector struct {
	SecurityID string           `json:"security_id"`
	AsOfDate   time.Time        `json:"as_of_date"`
	Values     map[string]Value `json:"values"`
}

// Label is the forward excess return for one panel row. Invalid when the
// security or the benchmark lacks a bar exactly horizon trading days out.
type Label struct {
	SecurityID      string    `json:"security_id"`
	AsOfDate        time.Time `json:"as_of_date"`
	Excess          float64   `json:"excess"`
	BenchmarkReturn float64   `json:"benchmark_return"` // gross bench[t+h]/bench[t]
	Up              bool      `json:"up"`               // excess > 0
	Valid           bool      `json:"valid"`
}
