package core

import (
	"strings"
	"time"
)

// EventID addresses one event (or one occurrence of a recurring event) inside
// a folder. Depending on the layer it is used in, FolderID is either a
// composite folder identifier or an account-local one.
type EventID struct {
	FolderID     string `json:"folder"`
	ObjectID     string `json:"id"`
	RecurrenceID string `json:"recurrence_id,omitempty"`
}

// String renders a readable form for logs and error messages.
func (id EventID) String() string {
	if id.RecurrenceID == "" {
		return id.FolderID + "/" + id.ObjectID
	}
	return id.FolderID + "/" + id.ObjectID + "/" + id.RecurrenceID
}

// ParticipationStatus mirrors the iCalendar PARTSTAT values.
type ParticipationStatus string

const (
	PartStatNeedsAction ParticipationStatus = "NEEDS-ACTION"
	PartStatAccepted    ParticipationStatus = "ACCEPTED"
	PartStatDeclined    ParticipationStatus = "DECLINED"
	PartStatTentative   ParticipationStatus = "TENTATIVE"
)

// Attendee is a participant of an event, identified by its calendar user
// address (typically a mailto: URI).
type Attendee struct {
	URI      string              `json:"uri"`
	Name     string              `json:"cn,omitempty"`
	PartStat ParticipationStatus `json:"partstat,omitempty"`
	Folder   string              `json:"folder,omitempty"`
}

// Email returns the address part of a mailto: URI, or the URI itself.
func (a Attendee) Email() string {
	if len(a.URI) > 7 && strings.EqualFold(a.URI[:7], "mailto:") {
		return a.URI[7:]
	}
	return a.URI
}

// Matches reports whether both attendees denote the same calendar user.
func (a Attendee) Matches(other Attendee) bool {
	return strings.EqualFold(a.Email(), other.Email())
}

// Organizer is the calendar user owning an event.
type Organizer struct {
	URI  string `json:"uri"`
	Name string `json:"cn,omitempty"`
}

// Alarm is a personal reminder attached to an event.
type Alarm struct {
	ID      string        `json:"id,omitempty"`
	Action  string        `json:"action"`
	Trigger time.Duration `json:"trigger"` // relative to the event start, usually negative
}

// Transparency controls whether an event blocks time in free/busy queries.
type Transparency string

const (
	TransparencyOpaque      Transparency = "OPAQUE"
	TransparencyTransparent Transparency = "TRANSPARENT"
)

// Event is the calendar object exchanged between callers and backends.
// Backends fill FolderID with their local folder id; the composition layer
// rewrites it to the composite form before handing it out.
type Event struct {
	ID             string       `json:"id"`
	FolderID       string       `json:"folder,omitempty"`
	UID            string       `json:"uid,omitempty"`
	SeriesID       string       `json:"series_id,omitempty"`
	RecurrenceID   string       `json:"recurrence_id,omitempty"`
	RecurrenceRule string       `json:"rrule,omitempty"`
	ExDates        []time.Time  `json:"exdates,omitempty"`
	Sequence       int          `json:"sequence"`
	Summary        string       `json:"summary,omitempty"`
	Description    string       `json:"description,omitempty"`
	Location       string       `json:"location,omitempty"`
	Start          time.Time    `json:"start"`
	End            time.Time    `json:"end"`
	AllDay         bool         `json:"all_day,omitempty"`
	Transparency   Transparency `json:"transp,omitempty"`
	Organizer      *Organizer   `json:"organizer,omitempty"`
	Attendees      []Attendee   `json:"attendees,omitempty"`
	Alarms         []Alarm      `json:"alarms,omitempty"`
	Created        time.Time    `json:"created"`
	LastModified   time.Time    `json:"last_modified"`
}

// Clone returns a deep copy so callers may mutate the result freely.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Organizer != nil {
		org := *e.Organizer
		cp.Organizer = &org
	}
	cp.Attendees = append([]Attendee(nil), e.Attendees...)
	cp.Alarms = append([]Alarm(nil), e.Alarms...)
	cp.ExDates = append([]time.Time(nil), e.ExDates...)
	return &cp
}

// Timestamp returns the last modification as milliseconds since the epoch,
// the unit used for client timestamps.
func (e *Event) Timestamp() int64 {
	return e.LastModified.UnixMilli()
}

// Blocks reports whether the event occupies time for free/busy purposes.
func (e *Event) Blocks() bool {
	return e.Transparency != TransparencyTransparent
}

// FindEvent returns the first event matching object and recurrence id. An
// empty recurrence id matches any occurrence.
func FindEvent(events []*Event, objectID, recurrenceID string) *Event {
	for _, ev := range events {
		if ev == nil || ev.ID != objectID {
			continue
		}
		if recurrenceID == "" || recurrenceID == ev.RecurrenceID {
			return ev
		}
	}
	return nil
}

// AlarmTrigger describes the next due alarm of an event.
type AlarmTrigger struct {
	Action   string    `json:"action"`
	Time     time.Time `json:"time"`
	FolderID string    `json:"folder"`
	EventID  string    `json:"event"`
	AlarmID  string    `json:"alarm"`
	Account  AccountID `json:"account"`
}
