package groupware

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/recurrence"
)

func (b *backend) Event(_ context.Context, folderID, objectID, recurrenceID string) (*core.Event, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	fd, err := b.cal.folderLocked(folderID)
	if err != nil {
		return nil, err
	}
	ev, _ := fd.findLocked(objectID, recurrenceID)
	if ev == nil && recurrenceID != "" {
		ev = occurrence(fd, objectID, recurrenceID)
	}
	if ev == nil {
		return nil, notFound(folderID, objectID)
	}
	return ev.Clone(), nil
}

// occurrence synthesizes an occurrence of a series that has no change
// exception.
func occurrence(fd *folderData, objectID, recurrenceID string) *core.Event {
	master, _ := fd.findLocked(objectID, "")
	if master == nil || master.RecurrenceRule == "" {
		return nil
	}
	at, err := recurrence.ParseRecurrenceID(recurrenceID)
	if err != nil {
		return nil
	}
	res, err := recurrence.Expand([]*core.Event{master}, recurrence.Config{From: at, Until: at.Add(master.End.Sub(master.Start) + time.Second)})
	if err != nil {
		return nil
	}
	for _, occ := range res.Occurrences {
		if occ.RecurrenceID == recurrenceID {
			return occ
		}
	}
	return nil
}

func (b *backend) Events(_ context.Context, ids []core.EventID) ([]*core.Event, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	var out []*core.Event
	for _, id := range ids {
		fd, ok := b.cal.folders[id.FolderID]
		if !ok {
			continue
		}
		ev, _ := fd.findLocked(id.ObjectID, id.RecurrenceID)
		if ev == nil && id.RecurrenceID != "" {
			ev = occurrence(fd, id.ObjectID, id.RecurrenceID)
		}
		if ev != nil {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

func (b *backend) EventsInFolders(_ context.Context, folderIDs []string) (map[string]core.EventsResult, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	out := make(map[string]core.EventsResult, len(folderIDs))
	for _, id := range folderIDs {
		fd, err := b.cal.folderLocked(id)
		if err != nil {
			out[id] = core.EventsResult{Err: err}
			continue
		}
		out[id] = core.EventsResult{Events: fd.eventsLocked()}
	}
	return out, nil
}

func (b *backend) ChangeExceptions(_ context.Context, folderID, seriesID string) ([]*core.Event, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	fd, err := b.cal.folderLocked(folderID)
	if err != nil {
		return nil, err
	}
	var out []*core.Event
	for _, ev := range fd.events[seriesID] {
		if ev.RecurrenceID != "" {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

func (b *backend) EventsOfUser(_ context.Context) ([]*core.Event, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	var out []*core.Event
	for _, id := range b.cal.order {
		for _, ev := range b.cal.folders[id].eventsLocked() {
			if b.cal.involvesLocked(ev) {
				out = append(out, ev)
			}
		}
	}
	sortEvents(out)
	return out, nil
}

func (b *backend) CreateEvent(_ context.Context, folderID string, event *core.Event) (*core.CalendarResult, error) {
	if event == nil {
		return nil, core.NewError(core.ErrMandatoryField, "missing event")
	}
	if event.Start.IsZero() {
		return nil, core.NewError(core.ErrMandatoryField, "missing event start")
	}
	b.cal.mu.Lock()
	defer b.cal.mu.Unlock()
	fd, err := b.cal.folderLocked(folderID)
	if err != nil {
		return nil, err
	}
	now := b.stamp()
	ev := b.insertLocked(fd, event, now)
	return &core.CalendarResult{
		FolderID:  folderID,
		Timestamp: now.UnixMilli(),
		Creations: []core.CreateResult{{Created: ev.Clone()}},
	}, nil
}

func (b *backend) insertLocked(fd *folderData, event *core.Event, now time.Time) *core.Event {
	ev := event.Clone()
	ev.ID = uuid.NewString()
	ev.FolderID = fd.folder.ID
	if ev.UID == "" {
		ev.UID = ev.ID
	}
	if ev.End.Before(ev.Start) {
		ev.End = ev.Start
	}
	ev.SeriesID, ev.RecurrenceID = "", ""
	if ev.RecurrenceRule != "" {
		ev.SeriesID = ev.ID
	}
	for i := range ev.Alarms {
		if ev.Alarms[i].ID == "" {
			ev.Alarms[i].ID = uuid.NewString()
		}
	}
	ev.Created, ev.LastModified = now, now
	fd.events[ev.ID] = []*core.Event{ev}
	b.cal.touchLocked(now, fd)
	return ev
}

func (b *backend) UpdateEvent(_ context.Context, id core.EventID, event *core.Event, clientTimestamp int64) (*core.CalendarResult, error) {
	if event == nil {
		return nil, core.NewError(core.ErrMandatoryField, "missing event")
	}
	return b.modify(id, clientTimestamp, func(ev *core.Event) error {
		keep := *ev
		*ev = *event.Clone()
		ev.ID, ev.FolderID, ev.UID = keep.ID, keep.FolderID, keep.UID
		ev.SeriesID, ev.RecurrenceID = keep.SeriesID, keep.RecurrenceID
		ev.Created = keep.Created
		ev.Sequence = keep.Sequence + 1
		if ev.RecurrenceID != "" {
			ev.RecurrenceRule = ""
		}
		return nil
	})
}

// modify applies fn to the event (or creates a change exception for an
// occurrence) and records the update.
func (b *backend) modify(id core.EventID, clientTimestamp int64, fn func(ev *core.Event) error) (*core.CalendarResult, error) {
	b.cal.mu.Lock()
	defer b.cal.mu.Unlock()
	fd, err := b.cal.folderLocked(id.FolderID)
	if err != nil {
		return nil, err
	}
	ev, _ := fd.findLocked(id.ObjectID, id.RecurrenceID)
	if ev == nil && id.RecurrenceID != "" {
		if occ := occurrence(fd, id.ObjectID, id.RecurrenceID); occ != nil {
			occ.RecurrenceRule, occ.ExDates = "", nil
			fd.events[id.ObjectID] = append(fd.events[id.ObjectID], occ)
			ev = occ
		}
	}
	if ev == nil {
		return nil, notFound(id.FolderID, id.ObjectID)
	}
	if err := checkTimestamp(ev, clientTimestamp); err != nil {
		return nil, err
	}
	original := ev.Clone()
	if err := fn(ev); err != nil {
		return nil, err
	}
	now := b.stamp()
	ev.LastModified = now
	b.cal.touchLocked(now, fd)
	return &core.CalendarResult{
		FolderID:  id.FolderID,
		Timestamp: now.UnixMilli(),
		Updates:   []core.UpdateResult{{Original: original, Updated: ev.Clone()}},
	}, nil
}

func (b *backend) MoveEvent(_ context.Context, id core.EventID, targetFolderID string, clientTimestamp int64) (*core.CalendarResult, error) {
	if id.RecurrenceID != "" {
		return nil, core.NewError(core.ErrUnsupportedOperation, "occurrences cannot be moved")
	}
	b.cal.mu.Lock()
	defer b.cal.mu.Unlock()
	from, err := b.cal.folderLocked(id.FolderID)
	if err != nil {
		return nil, err
	}
	to, err := b.cal.folderLocked(targetFolderID)
	if err != nil {
		return nil, err
	}
	series, ok := from.events[id.ObjectID]
	if !ok || len(series) == 0 {
		return nil, notFound(id.FolderID, id.ObjectID)
	}
	if err := checkTimestamp(series[0], clientTimestamp); err != nil {
		return nil, err
	}
	if from == to {
		return &core.CalendarResult{FolderID: targetFolderID, Timestamp: series[0].Timestamp()}, nil
	}
	now := b.stamp()
	res := &core.CalendarResult{FolderID: targetFolderID, Timestamp: now.UnixMilli()}
	for _, ev := range series {
		gone := ev.Clone()
		gone.LastModified = now
		b.cal.tombstones = append(b.cal.tombstones, gone)
		res.Deletions = append(res.Deletions, core.DeleteResult{Timestamp: now.UnixMilli(), EventID: core.EventID{FolderID: ev.FolderID, ObjectID: ev.ID, RecurrenceID: ev.RecurrenceID}})
		ev.FolderID = targetFolderID
		ev.LastModified = now
		res.Creations = append(res.Creations, core.CreateResult{Created: ev.Clone()})
	}
	delete(from.events, id.ObjectID)
	to.events[id.ObjectID] = series
	b.cal.touchLocked(now, from)
	b.cal.touchLocked(now, to)
	return res, nil
}

func (b *backend) UpdateAttendee(_ context.Context, id core.EventID, attendee core.Attendee, alarms []core.Alarm, clientTimestamp int64) (*core.CalendarResult, error) {
	return b.modify(id, clientTimestamp, func(ev *core.Event) error {
		for i := range ev.Attendees {
			if ev.Attendees[i].Matches(attendee) {
				ev.Attendees[i].PartStat = attendee.PartStat
				if attendee.Name != "" {
					ev.Attendees[i].Name = attendee.Name
				}
				if alarms != nil {
					ev.Alarms = withAlarmIDs(alarms)
				}
				return nil
			}
		}
		return core.NewError(core.ErrNotFound, "attendee %s not found in event %s", attendee.URI, ev.ID)
	})
}

func (b *backend) ChangeOrganizer(_ context.Context, id core.EventID, organizer core.Organizer, clientTimestamp int64) (*core.CalendarResult, error) {
	if organizer.URI == "" {
		return nil, core.NewError(core.ErrMandatoryField, "missing organizer")
	}
	return b.modify(id, clientTimestamp, func(ev *core.Event) error {
		if id.RecurrenceID != "" {
			return core.NewError(core.ErrUnsupportedOperation, "the organizer of an occurrence cannot be changed")
		}
		org := organizer
		ev.Organizer = &org
		ev.Sequence++
		return nil
	})
}

// DeleteEvent deletes an event. Deleting an occurrence excludes it from the
// series; deleting the series deletes its change exceptions as well.
func (b *backend) DeleteEvent(_ context.Context, id core.EventID, clientTimestamp int64) (*core.CalendarResult, error) {
	b.cal.mu.Lock()
	defer b.cal.mu.Unlock()
	fd, err := b.cal.folderLocked(id.FolderID)
	if err != nil {
		return nil, err
	}
	series := fd.events[id.ObjectID]
	if len(series) == 0 {
		return nil, notFound(id.FolderID, id.ObjectID)
	}
	master := series[0]
	if err := checkTimestamp(master, clientTimestamp); err != nil {
		return nil, err
	}
	now := b.stamp()
	res := &core.CalendarResult{FolderID: id.FolderID, Timestamp: now.UnixMilli()}

	if id.RecurrenceID != "" {
		at, err := recurrence.ParseRecurrenceID(id.RecurrenceID)
		if err != nil {
			return nil, core.Wrap(core.ErrMalformedIdentifier, err, "invalid recurrence id %q", id.RecurrenceID)
		}
		if master.RecurrenceRule == "" {
			return nil, notFound(id.FolderID, id.ObjectID)
		}
		kept := series[:0]
		for _, ev := range series {
			if ev.RecurrenceID == id.RecurrenceID {
				continue
			}
			kept = append(kept, ev)
		}
		fd.events[id.ObjectID] = kept
		original := master.Clone()
		master.ExDates = append(master.ExDates, at)
		master.LastModified = now
		res.Updates = append(res.Updates, core.UpdateResult{Original: original, Updated: master.Clone()})
		b.cal.touchLocked(now, fd)
		return res, nil
	}

	for _, ev := range series {
		gone := ev.Clone()
		gone.LastModified = now
		b.cal.tombstones = append(b.cal.tombstones, gone)
		res.Deletions = append(res.Deletions, core.DeleteResult{Timestamp: now.UnixMilli(), EventID: core.EventID{FolderID: id.FolderID, ObjectID: ev.ID, RecurrenceID: ev.RecurrenceID}})
	}
	delete(fd.events, id.ObjectID)
	b.cal.touchLocked(now, fd)
	return res, nil
}

// ImportEvents creates the given events. Events whose UID already exists in
// the folder are reported as conflicts.
func (b *backend) ImportEvents(_ context.Context, folderID string, events []*core.Event) ([]core.ImportResult, error) {
	b.cal.mu.Lock()
	defer b.cal.mu.Unlock()
	fd, err := b.cal.folderLocked(folderID)
	if err != nil {
		return nil, err
	}
	now := b.stamp()
	out := make([]core.ImportResult, len(events))
	for i, event := range events {
		out[i].Index = i
		if event == nil || event.Start.IsZero() {
			out[i].Err = core.NewError(core.ErrMandatoryField, "event %d has no start", i)
			continue
		}
		out[i].UID = event.UID
		if event.UID != "" {
			if holder, _ := b.cal.locateUIDLocked(event.UID); holder == fd {
				e := core.NewError(core.ErrConflict, "an event with uid %s already exists", event.UID)
				e.Folder = folderID
				out[i].Err = e
				continue
			}
		}
		ev := b.insertLocked(fd, event, now)
		if event.FolderID != "" && event.FolderID != folderID {
			out[i].Warnings = append(out[i].Warnings, core.NewError(core.ErrFolderMismatch, "folder %s ignored", event.FolderID))
		}
		out[i].UID = ev.UID
		out[i].EventID = core.EventID{FolderID: folderID, ObjectID: ev.ID}
	}
	return out, nil
}

func withAlarmIDs(alarms []core.Alarm) []core.Alarm {
	out := append([]core.Alarm(nil), alarms...)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}
