package ical

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/recurrence"
)

// calendarData is the parsed content of one feed.
type calendarData struct {
	name   string
	color  string
	events []*core.Event
	// skipped counts components that could not be converted
	skipped int
}

// parseFeed converts an ICS payload. Components without UID or start are
// skipped and counted. fetched stamps events lacking LAST-MODIFIED/DTSTAMP.
func parseFeed(body []byte, fetched time.Time) (*calendarData, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := &calendarData{}
	for _, p := range cal.CalendarProperties {
		switch strings.ToUpper(p.IANAToken) {
		case "X-WR-CALNAME", "NAME":
			out.name = p.Value
		case "X-APPLE-CALENDAR-COLOR", "COLOR":
			out.color = p.Value
		}
	}

	for _, ve := range cal.Events() {
		ev, err := convertEvent(ve, fetched)
		if err != nil {
			out.skipped++
			continue
		}
		out.events = append(out.events, ev)
	}
	return out, nil
}

func convertEvent(ve *ics.VEvent, fetched time.Time) (*core.Event, error) {
	ev := &core.Event{FolderID: core.BasicFolderID}

	uid := ve.GetProperty(ics.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return nil, errors.New("missing UID")
	}
	ev.UID = strings.TrimSpace(uid.Value)
	ev.ID = ev.UID

	if p := ve.GetProperty(ics.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			ev.Sequence = n
		}
	}
	ev.Summary = propValue(ve, ics.ComponentPropertySummary)
	ev.Description = propValue(ve, ics.ComponentPropertyDescription)
	ev.Location = propValue(ve, ics.ComponentPropertyLocation)
	if strings.EqualFold(propValue(ve, ics.ComponentPropertyTransp), string(core.TransparencyTransparent)) {
		ev.Transparency = core.TransparencyTransparent
	}

	dtStart := ve.GetProperty(ics.ComponentPropertyDtStart)
	if dtStart == nil {
		return nil, errors.New("missing DTSTART")
	}
	ev.AllDay = isDate(dtStart)
	start, err := ve.GetStartAt()
	if err != nil {
		return nil, err
	}
	ev.Start = start
	if end, err := ve.GetEndAt(); err == nil && !end.Before(start) {
		ev.End = end
	}
	if ev.End.IsZero() {
		ev.End = ev.Start
		if ev.AllDay {
			ev.End = ev.Start.AddDate(0, 0, 1)
		}
	}

	if p := ve.GetProperty(ics.ComponentPropertyRrule); p != nil {
		ev.RecurrenceRule = p.Value
		ev.SeriesID = ev.ID
	}
	for _, p := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(part, tzid(p)); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ics.ComponentProperty("RECURRENCE-ID")); p != nil {
		t, err := parseTime(p.Value, tzid(p))
		if err != nil {
			return nil, err
		}
		ev.SeriesID = ev.ID
		ev.RecurrenceID = recurrence.FormatRecurrenceID(t)
		ev.RecurrenceRule = ""
	}

	if p := ve.GetProperty(ics.ComponentPropertyOrganizer); p != nil {
		ev.Organizer = &core.Organizer{URI: p.Value, Name: param(p, "CN")}
	}
	for _, p := range ve.GetProperties(ics.ComponentPropertyAttendee) {
		ev.Attendees = append(ev.Attendees, core.Attendee{
			URI:      p.Value,
			Name:     param(p, "CN"),
			PartStat: core.ParticipationStatus(strings.ToUpper(param(p, "PARTSTAT"))),
		})
	}

	ev.Created = stamp(ve, ics.ComponentPropertyCreated, fetched)
	ev.LastModified = stamp(ve, ics.ComponentPropertyLastModified, time.Time{})
	if ev.LastModified.IsZero() {
		ev.LastModified = stamp(ve, ics.ComponentPropertyDtstamp, fetched)
	}
	return ev, nil
}

func propValue(ve *ics.VEvent, name ics.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

func param(p *ics.IANAProperty, name string) string {
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func tzid(p *ics.IANAProperty) string { return param(p, "TZID") }

func isDate(p *ics.IANAProperty) bool {
	return strings.EqualFold(param(p, "VALUE"), "DATE") || !strings.Contains(p.Value, "T")
}

func stamp(ve *ics.VEvent, name ics.ComponentProperty, fallback time.Time) time.Time {
	if p := ve.GetProperty(name); p != nil {
		if t, err := parseTime(p.Value, ""); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// parseTime parses DATE and DATE-TIME values. Floating times are read in the
// given TZID, or UTC when none is known.
func parseTime(v, tz string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
