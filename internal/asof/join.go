// Package asof implements the backward (as-of) temporal join of
// fundamentals onto the trading-day grid. Attaching a report before its
// public filing date is the principal lookahead bug this package exists to
// prevent.
package asof

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/calendar"
	"github.com/sells-group/panel-cli/internal/model"
)

// accumulator is the explicit fold state for one security's merge-walk:
// the index of the next unfiled report and the current visible snapshot.
// It is local to one JoinSecurity call, so parallel per-security joins
// cannot interfere.
type accumulator struct {
	next    int
	current *model.FundamentalReport
}

// JoinSecurity builds one PanelRow per trading day the security is active
// and has a price bar, attaching the most recent report whose filing date
// is on or before that day. Reports must already be validated by ingest.
//
// maxReportAgeDays caps how long a snapshot stays usable after its filing
// date; beyond it the fundamentals side becomes absent again (stale data
// is worse than missing data). Zero or negative disables the cap.
func JoinSecurity(
	cal *calendar.Calendar,
	sec model.Security,
	reports []model.FundamentalReport,
	prices []model.PriceBar,
	maxReportAgeDays int,
) ([]model.PanelRow, error) {
	grid, err := activeGrid(cal, sec)
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, nil
	}

	bars, err := indexPrices(sec.ID, prices)
	if err != nil {
		return nil, err
	}

	sorted := sortReports(sec.ID, reports)

	var acc accumulator
	rows := make([]model.PanelRow, 0, len(grid))

	for _, day := range grid {
		bar, ok := bars[day]
		if !ok {
			// Data gap from the price producer; no contemporaneous bar
			// means no row for this day.
			continue
		}

		// Advance the fold: every report filed on or before this day
		// becomes visible, later filings overriding earlier ones.
		for acc.next < len(sorted) && !sorted[acc.next].FiledAt.After(day) {
			acc.current = &sorted[acc.next]
			acc.next++
		}

		row := model.PanelRow{
			SecurityID: sec.ID,
			AsOfDate:   day,
			Price:      bar,
		}

		if snap := acc.current; snap != nil && !stale(day, snap.FiledAt, maxReportAgeDays) {
			row.HasReport = true
			row.ReportPeriodEnd = snap.PeriodEnd
			row.ReportFiledAt = snap.FiledAt
			row.Fields = make(map[string]float64, len(snap.Values))
			for k, v := range snap.Values {
				row.Fields[k] = v
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// activeGrid returns the trading days on which the security is active,
// clamped to the calendar range.
func activeGrid(cal *calendar.Calendar, sec model.Security) ([]time.Time, error) {
	start := model.Midnight(sec.Listed)
	if start.Before(cal.Start()) {
		start = cal.Start()
	}
	end := cal.End()
	if !sec.Delisted.IsZero() && model.Midnight(sec.Delisted).Before(end) {
		end = model.Midnight(sec.Delisted)
	}
	if end.Before(start) {
		return nil, nil
	}
	return cal.TradingDays(start, end)
}

// sortReports orders reports by filing date then period end, so a simple
// forward walk keeps the restatement rule: at any date where two reports
// are both visible, the later-filed one wins.
func sortReports(securityID string, reports []model.FundamentalReport) []model.FundamentalReport {
	sorted := make([]model.FundamentalReport, 0, len(reports))
	for _, r := range reports {
		if r.SecurityID != securityID {
			continue
		}
		r.PeriodEnd = model.Midnight(r.PeriodEnd)
		r.FiledAt = model.Midnight(r.FiledAt)
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].FiledAt.Equal(sorted[j].FiledAt) {
			return sorted[i].FiledAt.Before(sorted[j].FiledAt)
		}
		return sorted[i].PeriodEnd.Before(sorted[j].PeriodEnd)
	})
	return sorted
}

// indexPrices maps trade date -> bar, rejecting duplicates: one bar per
// (security, trading day) is a producer contract, not something to paper
// over.
func indexPrices(securityID string, prices []model.PriceBar) (map[time.Time]model.PriceBar, error) {
	bars := make(map[time.Time]model.PriceBar, len(prices))
	for _, p := range prices {
		if p.SecurityID != securityID {
			continue
		}
		d := model.Midnight(p.TradeDate)
		if _, dup := bars[d]; dup {
			return nil, eris.Errorf("asof: duplicate price bar for %s on %s",
				securityID, d.Format("2006-01-02"))
		}
		p.TradeDate = d
		bars[d] = p
	}
	return bars, nil
}

func stale(asOf, filedAt time.Time, maxAgeDays int) bool {
	if maxAgeDays <= 0 {
		return false
	}
	return asOf.Sub(filedAt) > time.Duration(maxAgeDays)*24*time.Hour
}
