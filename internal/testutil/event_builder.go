package testutil

import (
	"time"

	"github.com/hupe1980/calmesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder("e1").Folder("F1").Summary("standup").At(start, time.Hour).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	ev core.Event
}

// NewEventBuilder creates a builder for an event with the given object id,
// starting 2025-01-06 09:00 UTC and lasting one hour.
func NewEventBuilder(id string) *EventBuilder {
	start := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	return &EventBuilder{ev: core.Event{
		ID:           id,
		UID:          id + "@calmesh.test",
		Summary:      id,
		Start:        start,
		End:          start.Add(time.Hour),
		Created:      start.Add(-24 * time.Hour),
		LastModified: start.Add(-24 * time.Hour),
	}}
}

// Folder sets the (local or composite) folder id (chainable).
func (b *EventBuilder) Folder(id string) *EventBuilder { b.ev.FolderID = id; return b }

// Summary sets the title (chainable).
func (b *EventBuilder) Summary(s string) *EventBuilder { b.ev.Summary = s; return b }

// Description sets the description (chainable).
func (b *EventBuilder) Description(s string) *EventBuilder { b.ev.Description = s; return b }

// At sets start and duration (chainable).
func (b *EventBuilder) At(start time.Time, d time.Duration) *EventBuilder {
	b.ev.Start = start
	b.ev.End = start.Add(d)
	return b
}

// Recurring sets a recurrence rule (chainable).
func (b *EventBuilder) Recurring(rule string) *EventBuilder { b.ev.RecurrenceRule = rule; return b }

// Exception marks the event as change exception of a series (chainable).
func (b *EventBuilder) Exception(seriesID, recurrenceID string) *EventBuilder {
	b.ev.SeriesID = seriesID
	b.ev.RecurrenceID = recurrenceID
	return b
}

// Attendee adds an attendee (chainable).
func (b *EventBuilder) Attendee(uri string, status core.ParticipationStatus) *EventBuilder {
	b.ev.Attendees = append(b.ev.Attendees, core.Attendee{URI: uri, PartStat: status})
	return b
}

// Organizer sets the organizer (chainable).
func (b *EventBuilder) Organizer(uri string) *EventBuilder {
	b.ev.Organizer = &core.Organizer{URI: uri}
	return b
}

// Alarm adds an alarm firing d before the start (chainable).
func (b *EventBuilder) Alarm(id, action string, d time.Duration) *EventBuilder {
	b.ev.Alarms = append(b.ev.Alarms, core.Alarm{ID: id, Action: action, Trigger: -d})
	return b
}

// Transparent marks the event as not blocking time (chainable).
func (b *EventBuilder) Transparent() *EventBuilder {
	b.ev.Transparency = core.TransparencyTransparent
	return b
}

// Modified sets the last modification time (chainable).
func (b *EventBuilder) Modified(t time.Time) *EventBuilder { b.ev.LastModified = t; return b }

// Build returns a fresh *core.Event.
func (b *EventBuilder) Build() *core.Event {
	return b.ev.Clone()
}
