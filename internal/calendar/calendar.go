// Package calendar provides the canonical trading-day calendar and the
// active-universe registry. Both are pure functions of static reference
// data loaded before the run starts.
package calendar

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/model"
)

// Calendar is an ordered trading-day grid with O(log n) date lookup and
// O(1) session-offset arithmetic.
type Calendar struct {
	days  []time.Time
	index map[time.Time]int
}

// New builds a calendar from trading days. Input may be unsorted and
// contain duplicates; dates are normalized to UTC midnight.
func New(days []time.Time) (*Calendar, error) {
	if len(days) == 0 {
		return nil, eris.New("calendar: no trading days")
	}

	seen := make(map[time.Time]bool, len(days))
	norm := make([]time.Time, 0, len(days))
	for _, d := range days {
		nd := model.Midnight(d)
		if !seen[nd] {
			seen[nd] = true
			norm = append(norm, nd)
		}
	}
	sort.Slice(norm, func(i, j int) bool { return norm[i].Before(norm[j]) })

	index := make(map[time.Time]int, len(norm))
	for i, d := range norm {
		index[d] = i
	}
	return &Calendar{days: norm, index: index}, nil
}

// Start returns the first known trading day.
func (c *Calendar) Start() time.Time { return c.days[0] }

// End returns the last known trading day.
func (c *Calendar) End() time.Time { return c.days[len(c.days)-1] }

// Len returns the number of known trading days.
func (c *Calendar) Len() int { return len(c.days) }

// All returns the full grid. Callers must not mutate the slice.
func (c *Calendar) All() []time.Time { return c.days }

// TradingDays returns the ordered trading days in [start, end]. Endpoints
// need not be trading days themselves, but both must fall inside the known
// calendar range.
func (c *Calendar) TradingDays(start, end time.Time) ([]time.Time, error) {
	start, end = model.Midnight(start), model.Midnight(end)
	if start.Before(c.Start()) || end.After(c.End()) {
		return nil, eris.Wrapf(model.ErrOutOfRange,
			"calendar: [%s, %s] outside known range [%s, %s]",
			start.Format("2006-01-02"), end.Format("2006-01-02"),
			c.Start().Format("2006-01-02"), c.End().Format("2006-01-02"))
	}
	if end.Before(start) {
		return nil, eris.Errorf("calendar: end %s before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	lo := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(start) })
	hi := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(end) })
	return c.days[lo:hi], nil
}

// Index returns the position of date on the grid. The date must be an
// actual trading day inside the known range.
func (c *Calendar) Index(date time.Time) (int, error) {
	date = model.Midnight(date)
	if date.Before(c.Start()) || date.After(c.End()) {
		return 0, eris.Wrapf(model.ErrOutOfRange, "calendar: %s", date.Format("2006-01-02"))
	}
	i, ok := c.index[date]
	if !ok {
		return 0, eris.Errorf("calendar: %s is not a trading day", date.Format("2006-01-02"))
	}
	return i, nil
}

// Shift returns the trading day n sessions after date (n may be negative).
// ok is false when the shifted position falls off the grid; that is the
// label engine's "horizon unreachable" signal, not an error.
func (c *Calendar) Shift(date time.Time, n int) (time.Time, bool) {
	i, err := c.Index(date)
	if err != nil {
		return time.Time{}, false
	}
	j := i + n
	if j < 0 || j >= len(c.days) {
		return time.Time{}, false
	}
	return c.days[j], true
}

// NextOnOrAfter returns the first trading day >= date, used to resolve
// filings made on non-trading days.
func (c *Calendar) NextOnOrAfter(date time.Time) (time.Time, bool) {
	date = model.Midnight(date)
	lo := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(date) })
	if lo == len(c.days) {
		return time.Time{}, false
	}
	return c.days[lo], true
}
