package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Canonical fundamental field names. Raw source tags are mapped onto these
// by the ingestion collaborator; everything downstream only sees this set.
const (
	FieldAssets      = "assets"
	FieldLiabilities = "liabilities"
	FieldEquity      = "equity"
	FieldRevenue     = "revenue"
	FieldCOGS        = "cogs"
	FieldNetIncome   = "net_income"
	FieldOperatingCF = "operating_cf"
	FieldCapex       = "capex"
	FieldEPSDiluted  = "eps_diluted"
	FieldSharesOut   = "shares_outstanding"
)

// FundamentalFields lists the canonical fields in stable order.
var FundamentalFields = []string{
	FieldAssets,
	FieldLiabilities,
	FieldEquity,
	FieldRevenue,
	FieldCOGS,
	FieldNetIncome,
	FieldOperatingCF,
	FieldCapex,
	FieldEPSDiluted,
	FieldSharesOut,
}

// FundamentalReport is one filed statement for a security. Write-once:
// restatements arrive as new reports with the same PeriodEnd and a later
// FiledAt, never as mutations.
type FundamentalReport struct {
	SecurityID string             `json:"security_id"`
	PeriodEnd  time.Time          `json:"period_end"`
	FiledAt    time.Time          `json:"filed_at"` // date the report becomes knowable
	Values     map[string]float64 `json:"values"`   // canonical field -> value; absent = missing
}

// Validate enforces the producer invariant. A report filed before its
// period end would let the join peek into the future, so it is rejected
// outright rather than corrected.
func (r FundamentalReport) Validate() error {
	if r.SecurityID == "" {
		return eris.New("report: empty security id")
	}
	if r.PeriodEnd.IsZero() || r.FiledAt.IsZero() {
		return eris.New("report: missing period_end or filed_at")
	}
	if r.FiledAt.Before(r.PeriodEnd) {
		return eris.Wrapf(ErrInvalidReport, "report: %s filed %s before period end %s",
			r.SecurityID, r.FiledAt.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"))
	}
	return nil
}
