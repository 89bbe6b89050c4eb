package feature

import (
	"math"

	"github.com/sells-group/panel-cli/internal/model"
)

// window is a trailing ring buffer over the last size observations of one
// base series, tracking running sums over the valid subset.
type window struct {
	size   int
	buf    []model.Value
	head   int
	count  int
	sum    float64
	sumsq  float64
	nvalid int
}

func newWindow(size int) *window {
	return &window{size: size, buf: make([]model.Value, size)}
}

// push adds the next observation, evicting the oldest once full.
func (w *window) push(v model.Value) {
	if w.count == w.size {
		old := w.buf[w.head]
		if old.Valid {
			w.sum -= old.Float
			w.sumsq -= old.Float * old.Float
			w.nvalid--
		}
	} else {
		w.count++
	}
	w.buf[w.head] = v
	if v.Valid {
		w.sum += v.Float
		w.sumsq += v.Float * v.Float
		w.nvalid++
	}
	w.head = (w.head + 1) % w.size
}

// mean returns the trailing mean, invalid below minPeriods valid
// observations.
func (w *window) mean(minPeriods int) model.Value {
	if w.nvalid < minPeriods || w.nvalid == 0 {
		return model.Invalid()
	}
	return model.Valid(w.sum / float64(w.nvalid))
}

// std returns the trailing sample standard deviation.
func (w *window) std(minPeriods int) model.Value {
	if w.nvalid < minPeriods || w.nvalid < 2 {
		return model.Invalid()
	}
	n := float64(w.nvalid)
	variance := (w.sumsq - w.sum*w.sum/n) / (n - 1)
	if variance < 0 {
		variance = 0 // floating-point cancellation on near-constant series
	}
	return model.Valid(math.Sqrt(variance))
}

// zscore standardizes cur against the trailing window. A zero-variance
// window yields invalid: a z-score against no dispersion is meaningless.
func (w *window) zscore(cur model.Value, minPeriods int) model.Value {
	if !cur.Valid {
		return model.Invalid()
	}
	m := w.mean(minPeriods)
	s := w.std(minPeriods)
	if !m.Valid || !s.Valid || s.Float == 0 {
		return model.Invalid()
	}
	return model.Valid((cur.Float - m.Float) / s.Float)
}

// rollMeanSeries computes the trailing mean of base at every index.
func rollMeanSeries(base []model.Value, size, minPeriods int) []model.Value {
	out := make([]model.Value, len(base))
	w := newWindow(size)
	for i, v := range base {
		w.push(v)
		out[i] = w.mean(minPeriods)
	}
	return out
}

// rollZSeries computes the trailing z-score of base at every index. The
// window includes the current observation, matching the rolling mean.
func rollZSeries(base []model.Value, size, minPeriods int) []model.Value {
	out := make([]model.Value, len(base))
	w := newWindow(size)
	for i, v := range base {
		w.push(v)
		out[i] = w.zscore(v, minPeriods)
	}
	return out
}

// rollStdSeries computes the trailing sample std of base at every index.
func rollStdSeries(base []model.Value, size, minPeriods int) []model.Value {
	out := make([]model.Value, len(base))
	w := newWindow(size)
	for i, v := range base {
		w.push(v)
		out[i] = w.std(minPeriods)
	}
	return out
}

// momentumSeries computes price[i]/price[i-k] - 1 per index; invalid until
// k observations of history exist.
func momentumSeries(price []model.Value, k int) []model.Value {
	out := make([]model.Value, len(price))
	for i := range price {
		if i < k || !price[i].Valid || !price[i-k].Valid || price[i-k].Float == 0 {
			out[i] = model.Invalid()
			continue
		}
		out[i] = model.Valid(price[i].Float/price[i-k].Float - 1)
	}
	return out
}
