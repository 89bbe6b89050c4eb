package feature

import (
	"math"
	"strings"

	"github.com/sells-group/panel-cli/internal/model"
)

// Base series names. Fundamental fields are prefixed so a ratio named
// like a field can never shadow it.
const (
	basePrice  = "price"
	baseReturn = "return"
)

func baseField(field string) string { return "field:" + field }

func trimFieldPrefix(base string) string { return strings.TrimPrefix(base, "field:") }

// ratioBase is a named point-in-time derivation from one panel row.
type ratioBase struct {
	name string
	fn   func(model.PanelRow) model.Value
}

// div computes a/b with explicit invalid propagation: missing operand or
// zero denominator yields invalid, never Inf/NaN.
func div(a, b model.Value) model.Value {
	if !a.Valid || !b.Valid || b.Float == 0 {
		return model.Invalid()
	}
	return model.Valid(a.Float / b.Float)
}

func sub(a, b model.Value) model.Value {
	if !a.Valid || !b.Valid {
		return model.Invalid()
	}
	return model.Valid(a.Float - b.Float)
}

// marketCap returns adjusted_close x shares_outstanding.
func marketCap(r model.PanelRow) model.Value {
	shares := r.Field(model.FieldSharesOut)
	if !shares.Valid || shares.Float <= 0 || r.Price.AdjClose <= 0 {
		return model.Invalid()
	}
	return model.Valid(r.Price.AdjClose * shares.Float)
}

// ratioBases lists every point-in-time derived series in stable order.
func ratioBases() []ratioBase {
	return []ratioBase{
		// Balance-sheet and income-statement ratios.
		{"debt_equity", func(r model.PanelRow) model.Value {
			return div(r.Field(model.FieldLiabilities), r.Field(model.FieldEquity))
		}},
		{"gross_margin", func(r model.PanelRow) model.Value {
			rev := r.Field(model.FieldRevenue)
			return div(sub(rev, r.Field(model.FieldCOGS)), rev)
		}},
		{"net_margin", func(r model.PanelRow) model.Value {
			return div(r.Field(model.FieldNetIncome), r.Field(model.FieldRevenue))
		}},
		{"roe", func(r model.PanelRow) model.Value {
			return div(r.Field(model.FieldNetIncome), r.Field(model.FieldEquity))
		}},
		{"roa", func(r model.PanelRow) model.Value {
			return div(r.Field(model.FieldNetIncome), r.Field(model.FieldAssets))
		}},
		{"opcf_assets", func(r model.PanelRow) model.Value {
			return div(r.Field(model.FieldOperatingCF), r.Field(model.FieldAssets))
		}},
		{"capex_revenue", func(r model.PanelRow) model.Value {
			return div(r.Field(model.FieldCapex), r.Field(model.FieldRevenue))
		}},
		{"accrual_quality", func(r model.PanelRow) model.Value {
			return div(r.Field(model.FieldOperatingCF), r.Field(model.FieldNetIncome))
		}},
		{"liabilities_assets", func(r model.PanelRow) model.Value {
			return div(r.Field(model.FieldLiabilities), r.Field(model.FieldAssets))
		}},
		{"equity_assets", func(r model.PanelRow) model.Value {
			return div(r.Field(model.FieldEquity), r.Field(model.FieldAssets))
		}},

		// Per-share values.
		{"revenue_ps", perShare(model.FieldRevenue)},
		{"net_income_ps", perShare(model.FieldNetIncome)},
		{"equity_ps", perShare(model.FieldEquity)},
		{"operating_cf_ps", perShare(model.FieldOperatingCF)},

		// Valuation (price against fundamentals).
		{"pb", func(r model.PanelRow) model.Value {
			return div(marketCap(r), r.Field(model.FieldEquity))
		}},
		{"pe", func(r model.PanelRow) model.Value {
			return div(model.Valid(r.Price.AdjClose), r.Field(model.FieldEPSDiluted))
		}},
		{"psales", func(r model.PanelRow) model.Value {
			return div(marketCap(r), r.Field(model.FieldRevenue))
		}},
		{"pcf", func(r model.PanelRow) model.Value {
			return div(marketCap(r), r.Field(model.FieldOperatingCF))
		}},

		// Size.
		{"mcap", marketCap},
		{"mcap_log", func(r model.PanelRow) model.Value {
			mc := marketCap(r)
			if !mc.Valid {
				return model.Invalid()
			}
			return model.Valid(math.Log1p(mc.Float))
		}},
	}
}

func perShare(field string) func(model.PanelRow) model.Value {
	return func(r model.PanelRow) model.Value {
		shares := r.Field(model.FieldSharesOut)
		if shares.Valid && shares.Float <= 0 {
			return model.Invalid()
		}
		return div(r.Field(field), shares)
	}
}

// buildBases materializes every base series for one security's ordered
// row history. Index i of every series corresponds to rows[i].
func buildBases(rows []model.PanelRow) map[string][]model.Value {
	n := len(rows)
	bases := make(map[string][]model.Value, len(model.FundamentalFields)+len(ratioBases())+2)

	for _, f := range model.FundamentalFields {
		series := make([]model.Value, n)
		for i, r := range rows {
			series[i] = r.Field(f)
		}
		bases[baseField(f)] = series
	}

	for _, rb := range ratioBases() {
		series := make([]model.Value, n)
		for i, r := range rows {
			series[i] = rb.fn(r)
		}
		bases[rb.name] = series
	}

	price := make([]model.Value, n)
	rets := make([]model.Value, n)
	for i, r := range rows {
		if r.Price.AdjClose > 0 {
			price[i] = model.Valid(r.Price.AdjClose)
		} else {
			price[i] = model.Invalid()
		}
		if i > 0 && price[i].Valid && price[i-1].Valid {
			rets[i] = model.Valid(price[i].Float/price[i-1].Float - 1)
		} else {
			rets[i] = model.Invalid()
		}
	}
	bases[basePrice] = price
	bases[baseReturn] = rets

	return bases
}
