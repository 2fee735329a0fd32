package composition

import (
	"context"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/fanout"
	"github.com/hupe1980/calmesh/idmangle"
)

// write runs a groupware write against the account of a composite event id.
func (a *Access) write(ctx context.Context, id core.EventID, op string, fn func(gw core.GroupwareCalendar, b *bound, local core.EventID) (*core.CalendarResult, error)) (*core.CalendarResult, error) {
	account, local, err := idmangle.DecodeEvent(id)
	if err != nil {
		return nil, err
	}
	var out *core.CalendarResult
	err = a.withBackend(ctx, account, op, func(b *bound) error {
		gw, err := b.groupware()
		if err != nil {
			return err
		}
		res, err := fn(gw, b, local)
		if err != nil {
			return err
		}
		out = exportCalendarResult(account, res)
		return nil
	})
	return out, err
}

// CreateEvent creates an event in a folder.
func (a *Access) CreateEvent(ctx context.Context, folderID string, event *core.Event) (*core.CalendarResult, error) {
	account, local, err := idmangle.DecodeFolder(folderID)
	if err != nil {
		return nil, err
	}
	var out *core.CalendarResult
	err = a.withBackend(ctx, account, "createEvent", func(b *bound) error {
		gw, err := b.groupware()
		if err != nil {
			return err
		}
		ev, err := importEvent(account, event)
		if err != nil {
			return err
		}
		ev.FolderID = local
		res, err := gw.CreateEvent(ctx, local, ev)
		if err != nil {
			return err
		}
		out = exportCalendarResult(account, res)
		return nil
	})
	return out, err
}

// UpdateEvent updates an event. clientTimestamp is the last modification the
// caller knows of; stale updates fail with core.ErrConflict.
func (a *Access) UpdateEvent(ctx context.Context, id core.EventID, event *core.Event, clientTimestamp int64) (*core.CalendarResult, error) {
	return a.write(ctx, id, "updateEvent", func(gw core.GroupwareCalendar, b *bound, local core.EventID) (*core.CalendarResult, error) {
		ev, err := importEvent(b.id(), event)
		if err != nil {
			return nil, err
		}
		ev.FolderID = local.FolderID
		return gw.UpdateEvent(ctx, local, ev, clientTimestamp)
	})
}

// MoveEvent moves an event to another folder of the same account.
func (a *Access) MoveEvent(ctx context.Context, id core.EventID, targetFolderID string, clientTimestamp int64) (*core.CalendarResult, error) {
	targetAccount, target, err := idmangle.DecodeFolder(targetFolderID)
	if err != nil {
		return nil, err
	}
	return a.write(ctx, id, "moveEvent", func(gw core.GroupwareCalendar, b *bound, local core.EventID) (*core.CalendarResult, error) {
		if targetAccount != b.id() {
			return nil, core.NewError(core.ErrUnsupportedOperation, "moving events between accounts is not supported")
		}
		return gw.MoveEvent(ctx, local, target, clientTimestamp)
	})
}

// UpdateAttendee updates the participation of one attendee, optionally
// replacing the attendee's alarms.
func (a *Access) UpdateAttendee(ctx context.Context, id core.EventID, attendee core.Attendee, alarms []core.Alarm, clientTimestamp int64) (*core.CalendarResult, error) {
	return a.write(ctx, id, "updateAttendee", func(gw core.GroupwareCalendar, b *bound, local core.EventID) (*core.CalendarResult, error) {
		if attendee.Folder != "" {
			account, folder, err := idmangle.DecodeFolder(attendee.Folder)
			if err != nil {
				return nil, err
			}
			if account != b.id() {
				return nil, core.NewError(core.ErrFolderMismatch, "attendee folder %q belongs to another account", attendee.Folder)
			}
			attendee.Folder = folder
		}
		return gw.UpdateAttendee(ctx, local, attendee, alarms, clientTimestamp)
	})
}

// ChangeOrganizer changes the organizer of an event.
func (a *Access) ChangeOrganizer(ctx context.Context, id core.EventID, organizer core.Organizer, clientTimestamp int64) (*core.CalendarResult, error) {
	return a.write(ctx, id, "changeOrganizer", func(gw core.GroupwareCalendar, _ *bound, local core.EventID) (*core.CalendarResult, error) {
		return gw.ChangeOrganizer(ctx, local, organizer, clientTimestamp)
	})
}

// UpdateAlarms replaces the current user's alarms of an event.
func (a *Access) UpdateAlarms(ctx context.Context, id core.EventID, alarms []core.Alarm, clientTimestamp int64) (*core.CalendarResult, error) {
	account, local, err := idmangle.DecodeEvent(id)
	if err != nil {
		return nil, err
	}
	var out *core.CalendarResult
	err = a.withBackend(ctx, account, "updateAlarms", func(b *bound) error {
		if b.backend.Alarms == nil {
			return core.Unsupported(b.provider.ID())
		}
		if b.folders() == nil {
			if err := checkFlatFolder(local.FolderID); err != nil {
				return err
			}
		}
		res, err := b.backend.Alarms.UpdateAlarms(ctx, local, alarms, clientTimestamp)
		if err != nil {
			return err
		}
		out = exportCalendarResult(account, res)
		return nil
	})
	return out, err
}

// DeleteEvent deletes one event.
func (a *Access) DeleteEvent(ctx context.Context, id core.EventID, clientTimestamp int64) (*core.CalendarResult, error) {
	results, err := a.DeleteEvents(ctx, []core.EventID{id}, clientTimestamp)
	if err != nil {
		return nil, err
	}
	r := results[0].Value
	return r.Result, r.Err
}

// DeleteEvents deletes several events, one envelope per distinct requested id
// in request order. Events of one account are deleted sequentially.
func (a *Access) DeleteEvents(ctx context.Context, ids []core.EventID, clientTimestamp int64) ([]core.Keyed[core.EventID, core.ErrorAwareCalendarResult], error) {
	p, err := idmangle.PartitionEvents(ids)
	if err != nil {
		return nil, err
	}
	jobs := make([]fanout.Job[core.EventID, core.ErrorAwareCalendarResult], 0, p.Len())
	for _, account := range p.Accounts {
		locals := p.Groups[account]
		keys := make([]core.EventID, len(locals))
		for i, local := range locals {
			keys[i] = idmangle.EncodeEvent(account, local)
		}
		jobs = append(jobs, fanout.Job[core.EventID, core.ErrorAwareCalendarResult]{
			Label: "deleteEvents",
			Keys:  keys,
			Run: func(ctx context.Context) (map[core.EventID]core.ErrorAwareCalendarResult, error) {
				b, err := a.registry.Backend(ctx, account)
				if err != nil {
					return nil, err
				}
				gw, err := b.groupware()
				if err != nil {
					return nil, withUniqueIDs(err, b)
				}
				out := make(map[core.EventID]core.ErrorAwareCalendarResult, len(locals))
				for i, local := range locals {
					if err := ctx.Err(); err != nil {
						// keep the deletions already done
						out[keys[i]] = core.ErrorAwareCalendarResult{Err: withUniqueIDs(err, b)}
						continue
					}
					start := time.Now()
					res, err := gw.DeleteEvent(ctx, local, clientTimestamp)
					a.logger.dispatch("deleteEvent", account, b.provider.ID(), start, err)
					if err != nil {
						out[keys[i]] = core.ErrorAwareCalendarResult{Err: withUniqueIDs(err, b)}
						continue
					}
					out[keys[i]] = core.ErrorAwareCalendarResult{Result: exportCalendarResult(account, res)}
				}
				return out, nil
			},
		})
	}

	start := time.Now()
	out := fanout.Collect(ctx, a.exec, jobs, fanout.Spec[core.EventID, core.ErrorAwareCalendarResult]{
		Failed: func(_ core.EventID, err error) core.ErrorAwareCalendarResult {
			return core.ErrorAwareCalendarResult{Err: err}
		},
	})
	a.logger.fanOut("deleteEvents", len(jobs), start, countFailed(out.Results, func(r core.ErrorAwareCalendarResult) error { return r.Err }))
	return fanout.Reorder(out.Results, ids, func(core.EventID) core.ErrorAwareCalendarResult {
		return core.ErrorAwareCalendarResult{Err: core.ErrNoResultProduced}
	}), nil
}

// ImportEvents imports events into a folder. Per-event failures are reported
// in the corresponding ImportResult.
func (a *Access) ImportEvents(ctx context.Context, folderID string, events []*core.Event) ([]core.ImportResult, error) {
	account, local, err := idmangle.DecodeFolder(folderID)
	if err != nil {
		return nil, err
	}
	var out []core.ImportResult
	err = a.withBackend(ctx, account, "importEvents", func(b *bound) error {
		gw, err := b.groupware()
		if err != nil {
			return err
		}
		imported := make([]*core.Event, len(events))
		for i, ev := range events {
			if imported[i], err = importEvent(account, ev); err != nil {
				return err
			}
			imported[i].FolderID = local
		}
		res, err := gw.ImportEvents(ctx, local, imported)
		if err != nil {
			return err
		}
		out = make([]core.ImportResult, len(res))
		for i, r := range res {
			out[i] = r
			if r.EventID.ObjectID != "" {
				out[i].EventID = idmangle.EncodeEvent(account, r.EventID)
			}
			if r.Err != nil {
				out[i].Err = withUniqueIDs(r.Err, b)
			}
		}
		return nil
	})
	return out, err
}
