package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvent_CloneIsDeep(t *testing.T) {
	ev := &Event{
		ID:        "e1",
		Organizer: &Organizer{URI: "mailto:boss@example.com"},
		Attendees: []Attendee{{URI: "mailto:a@example.com"}},
		Alarms:    []Alarm{{Action: "DISPLAY", Trigger: -15 * time.Minute}},
	}
	cp := ev.Clone()
	cp.Organizer.URI = "mailto:other@example.com"
	cp.Attendees[0].PartStat = PartStatAccepted
	cp.Alarms[0].Action = "EMAIL"

	assert.Equal(t, "mailto:boss@example.com", ev.Organizer.URI)
	assert.Empty(t, ev.Attendees[0].PartStat)
	assert.Equal(t, "DISPLAY", ev.Alarms[0].Action)
	assert.Nil(t, (*Event)(nil).Clone())
}

func TestAttendee_Matches(t *testing.T) {
	a := Attendee{URI: "mailto:Alice@Example.com"}
	assert.True(t, a.Matches(Attendee{URI: "alice@example.com"}))
	assert.False(t, a.Matches(Attendee{URI: "mailto:bob@example.com"}))
	assert.Equal(t, "Alice@Example.com", a.Email())
}

func TestFindEvent(t *testing.T) {
	events := []*Event{
		{ID: "s1", RecurrenceID: "20250101T090000Z"},
		nil,
		{ID: "s1", RecurrenceID: "20250108T090000Z"},
		{ID: "x"},
	}
	assert.Same(t, events[2], FindEvent(events, "s1", "20250108T090000Z"))
	assert.Same(t, events[0], FindEvent(events, "s1", ""))
	assert.Nil(t, FindEvent(events, "nope", ""))
}

func TestSearchTerm_Matches(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := &Event{Summary: "Team Sync", Location: "Room 4", Start: base, End: base.Add(time.Hour)}

	assert.True(t, SearchTerm{Query: "sync"}.Matches(ev))
	assert.True(t, SearchTerm{Query: "room"}.Matches(ev))
	assert.False(t, SearchTerm{Query: "lunch"}.Matches(ev))
	assert.True(t, SearchTerm{}.Matches(ev))
	assert.False(t, SearchTerm{From: base.Add(2 * time.Hour)}.Matches(ev))
	assert.False(t, SearchTerm{Until: base}.Matches(ev))
	assert.True(t, SearchTerm{From: base.Add(30 * time.Minute), Until: base.Add(90 * time.Minute)}.Matches(ev))
}
