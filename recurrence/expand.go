// Package recurrence expands recurring events into their occurrences within a
// time window. Rules are RFC 5545 RRULE strings evaluated with rrule-go.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hupe1980/calmesh/core"
)

const (
	defaultMaxOccurrencesPerEvent = 5000

	// recurrenceIDLayout is the UTC DATE-TIME form used for recurrence ids.
	recurrenceIDLayout = "20060102T150405Z"
	dateLayout         = "20060102"
)

// Config controls an expansion.
type Config struct {
	// From / Until define the window; occurrences overlapping it are
	// returned.
	From  time.Time
	Until time.Time

	// MaxOccurrencesPerEvent is a safety cap for unbounded rules. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// Result holds the expanded occurrences ordered by start time.
type Result struct {
	Occurrences []*core.Event
	// Truncated records the ids of series that hit the cap.
	Truncated []string
}

// FormatRecurrenceID renders the recurrence id of an occurrence starting at t.
func FormatRecurrenceID(t time.Time) string {
	return t.UTC().Format(recurrenceIDLayout)
}

// ParseRecurrenceID parses a recurrence id in DATE-TIME (UTC or floating) or
// DATE form.
func ParseRecurrenceID(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty recurrence id")
	case strings.HasSuffix(v, "Z"):
		return time.Parse(recurrenceIDLayout, v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	default:
		return time.ParseInLocation(dateLayout, v, time.UTC)
	}
}

// Rule parses the recurrence rule of a series master anchored at its start.
func Rule(master *core.Event) (*rrule.RRule, error) {
	if master.RecurrenceRule == "" {
		return nil, fmt.Errorf("event %s is not recurring", master.ID)
	}
	r, err := rrule.StrToRRule(strings.TrimPrefix(master.RecurrenceRule, "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("parse rrule of %s: %w", master.ID, err)
	}
	r.DTStart(master.Start)
	return r, nil
}

func ruleSet(master *core.Event) (*rrule.Set, error) {
	r, err := Rule(master)
	if err != nil {
		return nil, err
	}
	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range master.ExDates {
		set.ExDate(ex.In(master.Start.Location()))
	}
	return set, nil
}

// Expand returns the occurrences of events within the window. Series masters
// are expanded; change exceptions (events with a recurrence id) replace the
// occurrence they override. Non-recurring events are returned when they
// overlap the window. Malformed rules make the master behave like a single
// event.
func Expand(events []*core.Event, cfg Config) (Result, error) {
	var result Result
	if cfg.Until.Before(cfg.From) {
		return result, errors.New("expand: window end is before its start")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overrides := make(map[string]map[int64]*core.Event)
	for _, ev := range events {
		if ev == nil || ev.RecurrenceID == "" || ev.RecurrenceRule != "" {
			continue
		}
		rid, err := ParseRecurrenceID(ev.RecurrenceID)
		if err != nil {
			continue
		}
		series := seriesOf(ev)
		if overrides[series] == nil {
			overrides[series] = make(map[int64]*core.Event)
		}
		overrides[series][rid.Unix()] = ev
	}

	for _, ev := range events {
		if ev == nil {
			continue
		}
		switch {
		case ev.RecurrenceRule != "":
			occ, hitCap := expandSeries(ev, overrides[seriesOf(ev)], cfg)
			if hitCap {
				result.Truncated = append(result.Truncated, ev.ID)
			}
			result.Occurrences = append(result.Occurrences, occ...)
		case ev.RecurrenceID != "":
			// overrides whose master is not part of events stand on their own
			if _, ok := masterIn(events, seriesOf(ev)); !ok && overlaps(ev.Start, ev.End, cfg.From, cfg.Until) {
				result.Occurrences = append(result.Occurrences, ev)
			}
		default:
			if overlaps(ev.Start, ev.End, cfg.From, cfg.Until) {
				result.Occurrences = append(result.Occurrences, ev)
			}
		}
	}

	sort.SliceStable(result.Occurrences, func(i, j int) bool {
		return result.Occurrences[i].Start.Before(result.Occurrences[j].Start)
	})
	return result, nil
}

func expandSeries(master *core.Event, overrides map[int64]*core.Event, cfg Config) ([]*core.Event, bool) {
	set, err := ruleSet(master)
	if err != nil {
		if overlaps(master.Start, master.End, cfg.From, cfg.Until) {
			return []*core.Event{master}, false
		}
		return nil, false
	}

	dur := master.End.Sub(master.Start)
	if master.AllDay && dur <= 0 {
		dur = 24 * time.Hour
	}
	// occurrences starting before From may still overlap the window
	loc := master.Start.Location()
	starts := set.Between(cfg.From.Add(-dur).In(loc), cfg.Until.In(loc), true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]*core.Event, 0, len(starts))
	for _, start := range starts {
		if ov, ok := overrides[start.Unix()]; ok {
			if overlaps(ov.Start, ov.End, cfg.From, cfg.Until) {
				out = append(out, ov)
			}
			continue
		}
		end := start.Add(dur)
		if !overlaps(start, end, cfg.From, cfg.Until) {
			continue
		}
		occ := master.Clone()
		occ.Start = start
		occ.End = end
		occ.RecurrenceID = FormatRecurrenceID(start)
		occ.SeriesID = master.ID
		occ.RecurrenceRule = ""
		occ.ExDates = nil
		out = append(out, occ)
	}
	return out, hitCap
}

// Next returns the first occurrence start of a series strictly after t.
func Next(master *core.Event, after time.Time) (time.Time, bool) {
	if master.RecurrenceRule == "" {
		if master.Start.After(after) {
			return master.Start, true
		}
		return time.Time{}, false
	}
	set, err := ruleSet(master)
	if err != nil {
		return time.Time{}, false
	}
	next := set.After(after, false)
	return next, !next.IsZero()
}

func seriesOf(ev *core.Event) string {
	if ev.SeriesID != "" {
		return ev.SeriesID
	}
	return ev.ID
}

func masterIn(events []*core.Event, series string) (*core.Event, bool) {
	for _, ev := range events {
		if ev != nil && ev.ID == series && ev.RecurrenceRule != "" {
			return ev, true
		}
	}
	return nil, false
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd). A zero
// length event overlaps when it starts inside the window.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
