// Package model defines the entities flowing through the panel pipeline:
// securities, fundamental reports, price bars, panel rows, feature vectors,
// and labels.
package model

import "time"

// Date returns a normalized calendar date (UTC midnight). All dates in the
// pipeline are normalized this way so they compare and hash consistently.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Midnight truncates a timestamp to its UTC calendar date.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Security identifies one listed instrument and its validity interval.
// Immutable reference data.
type Security struct {
	ID       string    `json:"id"`
	Listed   time.Time `json:"listed"`
	Delisted time.Time `json:"delisted,omitempty"` // zero = still listed
}

// ActiveOn reports whether the security is part of the universe on date.
func (s Security) ActiveOn(date time.Time) bool {
	if date.Before(s.Listed) {
		return false
	}
	if !s.Delisted.IsZero() && date.After(s.Delisted) {
		return false
	}
	return true
}
