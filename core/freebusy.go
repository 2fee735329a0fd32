package core

import (
	"context"
	"time"
)

// BusyType classifies a free/busy interval.
type BusyType int

const (
	BusyFree BusyType = iota
	BusyTentative
	BusyUnavailable
	BusyBusy
)

func (b BusyType) String() string {
	switch b {
	case BusyFree:
		return "FREE"
	case BusyTentative:
		return "BUSY-TENTATIVE"
	case BusyUnavailable:
		return "BUSY-UNAVAILABLE"
	default:
		return "BUSY"
	}
}

// FreeBusyTime is one interval of a free/busy result. Event is set when the
// querying user may see the blocking event.
type FreeBusyTime struct {
	Type     BusyType  `json:"type"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	FolderID string    `json:"folder,omitempty"`
	EventID  string    `json:"event,omitempty"`
}

// FreeBusyResult is the free/busy answer for one attendee from one source.
type FreeBusyResult struct {
	Times    []FreeBusyTime `json:"times"`
	Account  AccountID      `json:"account"`
	Provider string         `json:"provider,omitempty"`
	Errs     []error        `json:"-"`
}

// FreeBusyAnswer collects the results of all sources for one attendee. Err
// is set when no source answered.
type FreeBusyAnswer struct {
	Attendee Attendee         `json:"attendee"`
	Results  []FreeBusyResult `json:"results,omitempty"`
	// Merged joins the intervals of all Results; set for merged queries.
	Merged []FreeBusyTime `json:"merged,omitempty"`
	Err    error          `json:"-"`
}

// FreeBusyProvider answers free/busy queries. Results are keyed by attendee
// URI and then by the account that produced them (NoAccount for data not
// tied to an account).
type FreeBusyProvider interface {
	ID() string
	Query(ctx context.Context, session Session, attendees []Attendee, from, until time.Time, merge bool) (map[string]map[AccountID]FreeBusyResult, error)
}
