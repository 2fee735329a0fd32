package groupware

import (
	"context"

	"github.com/hupe1980/calmesh/core"
)

// Analyze relates an incoming iTIP message to the stored copy of the event
// and suggests reactions.
func (b *backend) Analyze(_ context.Context, message *core.SchedulingMessage) (*core.SchedulingAnalysis, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()

	_, existing := b.cal.locateUIDLocked(message.Event.UID)
	res := &core.SchedulingAnalysis{MessageID: message.ID, Method: message.Method}
	if existing != nil {
		res.Existing = existing.Clone()
		res.Outdated = message.Event.Sequence < existing.Sequence
	}

	switch {
	case res.Outdated:
		res.Actions = []core.SchedulingAction{core.ActionIgnore}
	case message.Method == core.MethodRequest && existing == nil:
		res.Actions = []core.SchedulingAction{core.ActionAccept, core.ActionTentative, core.ActionDecline}
	case message.Method == core.MethodRequest:
		res.Actions = []core.SchedulingAction{core.ActionApplyChange, core.ActionAccept, core.ActionTentative, core.ActionDecline}
	case message.Method == core.MethodReply && existing != nil:
		res.Actions = []core.SchedulingAction{core.ActionApplyChange}
	case message.Method == core.MethodCancel && existing != nil:
		res.Actions = []core.SchedulingAction{core.ActionApplyCancel}
	default:
		res.Actions = []core.SchedulingAction{core.ActionIgnore}
	}
	return res, nil
}

// HandleIncoming applies a scheduling message. Requests create or update the
// event (in attendee.Folder, or the default folder) with the attendee's
// participation status; replies update the replying attendee; cancels delete
// the event.
func (b *backend) HandleIncoming(ctx context.Context, message *core.SchedulingMessage, attendee core.Attendee) (*core.CalendarResult, error) {
	b.cal.mu.RLock()
	fd, existing := b.cal.locateUIDLocked(message.Event.UID)
	var existingID core.EventID
	if existing != nil {
		existingID = core.EventID{FolderID: fd.folder.ID, ObjectID: existing.ID}
		if message.Event.Sequence < existing.Sequence {
			b.cal.mu.RUnlock()
			return nil, core.NewError(core.ErrConflict, "scheduling message for %s is outdated", message.Event.UID)
		}
	}
	b.cal.mu.RUnlock()

	b.logger.Debug("groupware.scheduling.incoming",
		"method", string(message.Method),
		"uid", message.Event.UID,
		"existing", existing != nil,
	)
	switch message.Method {
	case core.MethodRequest:
		incoming := withPartStat(message.Event, attendee)
		if existing == nil {
			folder := attendee.Folder
			if folder == "" {
				folder = b.cal.defaultID
			}
			return b.CreateEvent(ctx, folder, incoming)
		}
		return b.modify(existingID, 0, func(ev *core.Event) error {
			keepID, keepFolder, keepCreated := ev.ID, ev.FolderID, ev.Created
			*ev = *incoming
			ev.ID, ev.FolderID, ev.Created = keepID, keepFolder, keepCreated
			return nil
		})
	case core.MethodReply:
		if existing == nil {
			return nil, notFound("", message.Event.UID)
		}
		from := core.Attendee{URI: message.Originator}
		for _, a := range message.Event.Attendees {
			if a.Matches(from) {
				return b.UpdateAttendee(ctx, existingID, a, nil, 0)
			}
		}
		return nil, core.NewError(core.ErrMandatoryField, "reply of %s carries no participation status", message.Originator)
	case core.MethodCancel:
		if existing == nil {
			return nil, notFound("", message.Event.UID)
		}
		return b.DeleteEvent(ctx, existingID, 0)
	default:
		return nil, core.NewError(core.ErrUnsupportedOperation, "scheduling method %s is not supported", message.Method)
	}
}

func withPartStat(event *core.Event, attendee core.Attendee) *core.Event {
	ev := event.Clone()
	for i := range ev.Attendees {
		if ev.Attendees[i].Matches(attendee) && attendee.PartStat != "" {
			ev.Attendees[i].PartStat = attendee.PartStat
		}
	}
	return ev
}
