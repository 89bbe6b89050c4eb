// Package label computes forward excess returns. This is the only
// component allowed to read data after the as-of date: the label is never
// joined back into anything computed at or before it.
package label

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/calendar"
	"github.com/sells-group/panel-cli/internal/model"
)

// Engine labels panel rows against a benchmark series over a fixed
// trading-day horizon.
type Engine struct {
	cal     *calendar.Calendar
	bench   map[time.Time]float64 // trade date -> benchmark adjusted close
	horizon int
}

// NewEngine indexes the benchmark series. Bars with non-positive adjusted
// closes are rejected: a zero benchmark level makes every return built on
// it meaningless.
func NewEngine(cal *calendar.Calendar, benchmark []model.PriceBar, horizon int) (*Engine, error) {
	if horizon <= 0 {
		return nil, eris.Errorf("label: horizon must be positive, got %d", horizon)
	}
	if len(benchmark) == 0 {
		return nil, eris.New("label: empty benchmark series")
	}

	bench := make(map[time.Time]float64, len(benchmark))
	for _, b := range benchmark {
		if b.AdjClose <= 0 {
			return nil, eris.Errorf("label: benchmark bar on %s has non-positive adjusted close",
				model.Midnight(b.TradeDate).Format("2006-01-02"))
		}
		bench[model.Midnight(b.TradeDate)] = b.AdjClose
	}
	return &Engine{cal: cal, bench: bench, horizon: horizon}, nil
}

// Horizon returns the configured trading-day horizon.
func (e *Engine) Horizon() int { return e.horizon }

// Compute labels one security's ordered rows:
//
//	excess = price[t+h]/price[t] - bench[t+h]/bench[t]
//
// using adjusted closes over trading-day offsets. A row whose security or
// benchmark lacks a bar exactly h sessions out gets an invalid label,
// never an imputed one.
func (e *Engine) Compute(rows []model.PanelRow) []model.Label {
	byDate := make(map[time.Time]int, len(rows))
	for i, r := range rows {
		byDate[r.AsOfDate] = i
	}

	labels := make([]model.Label, len(rows))
	for i, r := range rows {
		labels[i] = model.Label{SecurityID: r.SecurityID, AsOfDate: r.AsOfDate}

		target, ok := e.cal.Shift(r.AsOfDate, e.horizon)
		if !ok {
			continue // end of history
		}
		j, ok := byDate[target]
		if !ok {
			continue // delisted or price gap at the horizon
		}

		p0, p1 := r.Price.AdjClose, rows[j].Price.AdjClose
		if p0 <= 0 || p1 <= 0 {
			continue
		}

		b0, ok0 := e.bench[r.AsOfDate]
		b1, ok1 := e.bench[target]
		if !ok0 || !ok1 {
			continue
		}

		benchGross := b1 / b0
		excess := p1/p0 - benchGross

		labels[i].Excess = excess
		labels[i].BenchmarkReturn = benchGross
		labels[i].Up = excess > 0
		labels[i].Valid = true
	}
	return labels
}
