// Package freebusy derives free/busy intervals from events and merges
// interval lists.
package freebusy

import (
	"sort"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/recurrence"
)

// FromEvents returns the busy intervals the events cause for an attendee
// within [from, until). Recurring series are expanded. Transparent events and
// events the attendee declined are skipped; tentatively accepted events yield
// tentative intervals. Intervals are clipped to the window and sorted.
func FromEvents(events []*core.Event, attendee core.Attendee, from, until time.Time) ([]core.FreeBusyTime, error) {
	res, err := recurrence.Expand(events, recurrence.Config{From: from, Until: until})
	if err != nil {
		return nil, err
	}
	times := make([]core.FreeBusyTime, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		if !occ.Blocks() {
			continue
		}
		busy := core.BusyBusy
		for _, att := range occ.Attendees {
			if !att.Matches(attendee) {
				continue
			}
			switch att.PartStat {
			case core.PartStatDeclined:
				busy = core.BusyFree
			case core.PartStatTentative, core.PartStatNeedsAction:
				busy = core.BusyTentative
			}
			break
		}
		if busy == core.BusyFree {
			continue
		}
		start, end := occ.Start, occ.End
		if start.Before(from) {
			start = from
		}
		if end.After(until) {
			end = until
		}
		if !end.After(start) {
			continue
		}
		times = append(times, core.FreeBusyTime{
			Type:     busy,
			Start:    start,
			End:      end,
			FolderID: occ.FolderID,
			EventID:  occ.ID,
		})
	}
	Sort(times)
	return times, nil
}

// Sort orders intervals by start, then end.
func Sort(times []core.FreeBusyTime) {
	sort.SliceStable(times, func(i, j int) bool {
		if !times[i].Start.Equal(times[j].Start) {
			return times[i].Start.Before(times[j].Start)
		}
		return times[i].End.Before(times[j].End)
	})
}

// Merge normalizes intervals so that no two of them overlap. Where intervals
// overlap, the more significant busy type wins (busy > unavailable >
// tentative > free); adjacent pieces of the same type are joined. Event
// details survive only where a merged interval stems from a single event.
func Merge(times []core.FreeBusyTime) []core.FreeBusyTime {
	if len(times) < 2 {
		return append([]core.FreeBusyTime(nil), times...)
	}

	bounds := make([]time.Time, 0, 2*len(times))
	for _, t := range times {
		if t.End.After(t.Start) {
			bounds = append(bounds, t.Start, t.End)
		}
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].Before(bounds[j]) })

	var out []core.FreeBusyTime
	for i := 0; i+1 < len(bounds); i++ {
		segStart, segEnd := bounds[i], bounds[i+1]
		if !segEnd.After(segStart) {
			continue
		}
		var (
			best    core.FreeBusyTime
			covered int
		)
		for _, t := range times {
			if t.Start.After(segStart) || !t.End.After(segStart) {
				continue
			}
			if covered == 0 || t.Type > best.Type {
				best = t
			}
			covered++
		}
		if covered == 0 {
			continue
		}
		piece := core.FreeBusyTime{Type: best.Type, Start: segStart, End: segEnd}
		if covered == 1 {
			piece.FolderID = best.FolderID
			piece.EventID = best.EventID
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Type == piece.Type && last.End.Equal(piece.Start) {
				last.End = piece.End
				if last.EventID != piece.EventID || last.FolderID != piece.FolderID {
					last.EventID, last.FolderID = "", ""
				}
				continue
			}
		}
		out = append(out, piece)
	}
	return out
}
