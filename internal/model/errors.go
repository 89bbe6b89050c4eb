package model

import "github.com/rotisserie/eris"

// Sentinel errors for the two structural failure classes. Everything else
// (short windows, unreachable label horizons) is encoded as validity flags,
// never as an error.
var (
	// ErrOutOfRange is returned for calendar/date queries outside the known
	// trading-day range. Fatal to the run.
	ErrOutOfRange = eris.New("date out of calendar range")

	// ErrInvalidReport marks a fundamental report that violates the
	// public_filing_date >= period_end_date invariant. The report is
	// rejected and counted; the run continues.
	ErrInvalidReport = eris.New("report filed before period end")
)
