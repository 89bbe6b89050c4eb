package calendar

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/model"
)

// Universe answers membership questions over the security reference data.
// Delisted securities stay in the registry forever; they simply stop being
// active after their delisting date. Deleting them would bake survivorship
// bias into every backtest built on this panel.
type Universe struct {
	securities map[string]model.Security
	ordered    []model.Security // sorted by ID for deterministic iteration
}

// NewUniverse indexes the security reference list.
func NewUniverse(securities []model.Security) (*Universe, error) {
	if len(securities) == 0 {
		return nil, eris.New("universe: no securities")
	}

	byID := make(map[string]model.Security, len(securities))
	for _, s := range securities {
		if s.ID == "" {
			return nil, eris.New("universe: security with empty id")
		}
		if s.Listed.IsZero() {
			return nil, eris.Errorf("universe: %s has no listing date", s.ID)
		}
		if !s.Delisted.IsZero() && s.Delisted.Before(s.Listed) {
			return nil, eris.Errorf("universe: %s delisted before listing", s.ID)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, eris.Errorf("universe: duplicate security %s", s.ID)
		}
		s.Listed = model.Midnight(s.Listed)
		if !s.Delisted.IsZero() {
			s.Delisted = model.Midnight(s.Delisted)
		}
		byID[s.ID] = s
	}

	ordered := make([]model.Security, 0, len(byID))
	for _, s := range byID {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	return &Universe{securities: byID, ordered: ordered}, nil
}

// Get looks up a security by ID.
func (u *Universe) Get(id string) (model.Security, bool) {
	s, ok := u.securities[id]
	return s, ok
}

// Securities returns all securities sorted by ID, active or not.
func (u *Universe) Securities() []model.Security { return u.ordered }

// ActiveSecurities returns the securities active on date, sorted by ID.
func (u *Universe) ActiveSecurities(date time.Time) []model.Security {
	date = model.Midnight(date)
	var out []model.Security
	for _, s := range u.ordered {
		if s.ActiveOn(date) {
			out = append(out, s)
		}
	}
	return out
}

// Active reports whether one security is active on date.
func (u *Universe) Active(id string, date time.Time) bool {
	s, ok := u.securities[id]
	return ok && s.ActiveOn(model.Midnight(date))
}
