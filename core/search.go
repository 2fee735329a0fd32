package core

import (
	"strings"
	"time"
)

// SearchTerm is a simple free-text query optionally restricted to a time
// range. Empty fields are ignored.
type SearchTerm struct {
	Query string    `json:"query"`
	From  time.Time `json:"from,omitempty"`
	Until time.Time `json:"until,omitempty"`
}

// Matches reports whether the event satisfies the term. The query matches
// case-insensitively against summary, description and location.
func (t SearchTerm) Matches(ev *Event) bool {
	if ev == nil {
		return false
	}
	if !t.From.IsZero() && !ev.End.IsZero() && !ev.End.After(t.From) {
		return false
	}
	if !t.Until.IsZero() && !ev.Start.Before(t.Until) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(t.Query))
	if q == "" {
		return true
	}
	for _, field := range []string{ev.Summary, ev.Description, ev.Location} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
