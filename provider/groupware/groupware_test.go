package groupware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/calmesh/core"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var session = core.Session{ID: "s1", UserID: 7}

func connect(t *testing.T) (*Provider, *core.Backend, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)}
	p := New(func(o *Options) { o.Now = c.now })
	b, err := p.Connect(context.Background(), session, core.Account{ID: core.DefaultAccountID, ProviderID: ProviderID})
	require.NoError(t, err)
	return p, b, c
}

func meeting(summary string, start time.Time) *core.Event {
	return &core.Event{Summary: summary, Start: start, End: start.Add(time.Hour)}
}

func TestConnect_CapabilitiesMatch(t *testing.T) {
	p, b, _ := connect(t)
	assert.Equal(t, p.Capabilities(), b.Capabilities())

	_, err := p.Connect(context.Background(), session, core.Account{ID: 3})
	assert.True(t, core.IsUnsupported(err))
}

func TestFolders_Lifecycle(t *testing.T) {
	_, b, c := connect(t)
	ctx := context.Background()
	gw := b.Groupware

	def, err := gw.DefaultFolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Calendar", def.Name)

	id, err := gw.CreateFolder(ctx, core.Folder{Name: "Team", Type: core.FolderTypeShared, ParentID: def.ID})
	require.NoError(t, err)

	shared, err := gw.VisibleFoldersOfType(ctx, core.FolderTypeShared)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, id, shared[0].ID)

	f, err := gw.Folder(ctx, id)
	require.NoError(t, err)
	stale := f.LastModified.UnixMilli() - 1
	c.t = c.t.Add(time.Minute)
	_, err = gw.UpdateFolder(ctx, id, core.Folder{Name: "Team 2"}, f.LastModified.UnixMilli())
	require.NoError(t, err)
	_, err = gw.UpdateFolder(ctx, id, core.Folder{Name: "Team 3"}, stale)
	assert.ErrorIs(t, err, core.ErrConflict)

	assert.True(t, core.IsUnsupported(gw.DeleteFolder(ctx, def.ID, 0)))
	require.NoError(t, gw.DeleteFolder(ctx, id, 0))
	_, err = gw.Folder(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEvents_CreateUpdateDelete(t *testing.T) {
	_, b, c := connect(t)
	ctx := context.Background()
	gw := b.Groupware
	def, _ := gw.DefaultFolder(ctx)

	res, err := gw.CreateEvent(ctx, def.ID, meeting("Kickoff", c.t.Add(2*time.Hour)))
	require.NoError(t, err)
	require.Len(t, res.Creations, 1)
	created := res.Creations[0].Created
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, created.ID, created.UID)
	assert.Equal(t, def.ID, created.FolderID)

	id := core.EventID{FolderID: def.ID, ObjectID: created.ID}
	c.t = c.t.Add(time.Minute)
	upd := created.Clone()
	upd.Summary = "Kickoff (moved)"
	res, err = gw.UpdateEvent(ctx, id, upd, created.Timestamp())
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, "Kickoff", res.Updates[0].Original.Summary)
	assert.Equal(t, "Kickoff (moved)", res.Updates[0].Updated.Summary)
	assert.Equal(t, 1, res.Updates[0].Updated.Sequence)

	_, err = gw.UpdateEvent(ctx, id, upd, created.Timestamp())
	assert.ErrorIs(t, err, core.ErrConflict)

	since := c.t
	c.t = c.t.Add(time.Minute)
	res, err = gw.DeleteEvent(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, res.Deletions, 1)

	_, err = gw.Event(ctx, def.ID, created.ID, "")
	assert.ErrorIs(t, err, core.ErrNotFound)

	updates, err := b.FolderSync.UpdatedEventsInFolder(ctx, def.ID, since)
	require.NoError(t, err)
	assert.Empty(t, updates.NewAndModified)
	require.Len(t, updates.Deleted, 1)
	assert.Equal(t, created.ID, updates.Deleted[0].ID)
}

func TestEvents_RecurringOccurrences(t *testing.T) {
	_, b, c := connect(t)
	ctx := context.Background()
	gw := b.Groupware
	def, _ := gw.DefaultFolder(ctx)

	master := meeting("Daily", c.t.Add(time.Hour))
	master.RecurrenceRule = "FREQ=DAILY;COUNT=5"
	res, err := gw.CreateEvent(ctx, def.ID, master)
	require.NoError(t, err)
	created := res.Creations[0].Created
	assert.Equal(t, created.ID, created.SeriesID)

	rid := "20250108T090000Z"
	occ, err := gw.Event(ctx, def.ID, created.ID, rid)
	require.NoError(t, err)
	assert.Equal(t, rid, occ.RecurrenceID)
	assert.True(t, occ.Start.Equal(time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)))

	changed := occ.Clone()
	changed.Summary = "Daily (long)"
	changed.End = changed.End.Add(time.Hour)
	_, err = gw.UpdateEvent(ctx, core.EventID{FolderID: def.ID, ObjectID: created.ID, RecurrenceID: rid}, changed, 0)
	require.NoError(t, err)

	exceptions, err := gw.ChangeExceptions(ctx, def.ID, created.ID)
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	assert.Equal(t, "Daily (long)", exceptions[0].Summary)

	res, err = gw.DeleteEvent(ctx, core.EventID{FolderID: def.ID, ObjectID: created.ID, RecurrenceID: rid}, 0)
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Len(t, res.Updates[0].Updated.ExDates, 1)

	exceptions, err = gw.ChangeExceptions(ctx, def.ID, created.ID)
	require.NoError(t, err)
	assert.Empty(t, exceptions)
}

func TestMoveEvent(t *testing.T) {
	_, b, c := connect(t)
	ctx := context.Background()
	gw := b.Groupware
	def, _ := gw.DefaultFolder(ctx)
	other, err := gw.CreateFolder(ctx, core.Folder{Name: "Other"})
	require.NoError(t, err)

	res, err := gw.CreateEvent(ctx, def.ID, meeting("Move me", c.t.Add(time.Hour)))
	require.NoError(t, err)
	id := core.EventID{FolderID: def.ID, ObjectID: res.Creations[0].Created.ID}

	res, err = gw.MoveEvent(ctx, id, other, 0)
	require.NoError(t, err)
	assert.Len(t, res.Deletions, 1)
	assert.Equal(t, other, res.Creations[0].Created.FolderID)

	_, err = gw.Event(ctx, other, id.ObjectID, "")
	assert.NoError(t, err)
}

func TestAttendeesAndOrganizer(t *testing.T) {
	p, b, c := connect(t)
	ctx := context.Background()
	gw := b.Groupware
	def, _ := gw.DefaultFolder(ctx)

	ev := meeting("Review", c.t.Add(time.Hour))
	ev.Organizer = &core.Organizer{URI: "mailto:boss@example.com"}
	ev.Attendees = []core.Attendee{{URI: p.Address(session.UserID), PartStat: core.PartStatNeedsAction}}
	res, err := gw.CreateEvent(ctx, def.ID, ev)
	require.NoError(t, err)
	id := core.EventID{FolderID: def.ID, ObjectID: res.Creations[0].Created.ID}

	res, err = gw.UpdateAttendee(ctx, id, core.Attendee{URI: "MAILTO:USER7@calmesh.local", PartStat: core.PartStatAccepted},
		[]core.Alarm{{Action: "DISPLAY", Trigger: -15 * time.Minute}}, 0)
	require.NoError(t, err)
	updated := res.Updates[0].Updated
	assert.Equal(t, core.PartStatAccepted, updated.Attendees[0].PartStat)
	require.Len(t, updated.Alarms, 1)
	assert.NotEmpty(t, updated.Alarms[0].ID)

	_, err = gw.UpdateAttendee(ctx, id, core.Attendee{URI: "mailto:nobody@example.com"}, nil, 0)
	assert.ErrorIs(t, err, core.ErrNotFound)

	res, err = gw.ChangeOrganizer(ctx, id, core.Organizer{URI: "mailto:new@example.com"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "mailto:new@example.com", res.Updates[0].Updated.Organizer.URI)

	mine, err := gw.EventsOfUser(ctx)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestImportEvents(t *testing.T) {
	_, b, c := connect(t)
	ctx := context.Background()
	gw := b.Groupware
	def, _ := gw.DefaultFolder(ctx)

	a := meeting("A", c.t)
	a.UID = "uid-a"
	dup := meeting("A again", c.t)
	dup.UID = "uid-a"
	res, err := gw.ImportEvents(ctx, def.ID, []*core.Event{a, {Summary: "no start"}, dup})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.NoError(t, res[0].Err)
	assert.Equal(t, "uid-a", res[0].UID)
	assert.NotEmpty(t, res[0].EventID.ObjectID)
	assert.ErrorIs(t, res[1].Err, core.ErrMandatoryField)
	assert.ErrorIs(t, res[2].Err, core.ErrConflict)
}

func TestSearchSequenceAndCTag(t *testing.T) {
	_, b, c := connect(t)
	ctx := context.Background()
	gw := b.Groupware
	def, _ := gw.DefaultFolder(ctx)

	tag1, err := b.CTag.CTag(ctx)
	require.NoError(t, err)

	c.t = c.t.Add(time.Second)
	_, err = gw.CreateEvent(ctx, def.ID, meeting("Quarterly planning", c.t.Add(time.Hour)))
	require.NoError(t, err)
	_, err = gw.CreateEvent(ctx, def.ID, meeting("Lunch", c.t.Add(3*time.Hour)))
	require.NoError(t, err)

	tag2, err := b.CTag.CTag(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, tag1, tag2)

	seq, err := b.FolderSync.SequenceNumber(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, c.t.UnixMilli(), seq)

	hits, err := b.FolderSearch.SearchEvents(ctx, nil, core.SearchTerm{Query: "planning"})
	require.NoError(t, err)
	require.Len(t, hits[def.ID].Events, 1)
	assert.Equal(t, "Quarterly planning", hits[def.ID].Events[0].Summary)
}

func TestAlarmTriggers(t *testing.T) {
	_, b, c := connect(t)
	ctx := context.Background()
	gw := b.Groupware
	def, _ := gw.DefaultFolder(ctx)

	later := meeting("Later", c.t.Add(5*time.Hour))
	later.Alarms = []core.Alarm{{Action: "DISPLAY", Trigger: -10 * time.Minute}}
	sooner := meeting("Sooner", c.t.Add(2*time.Hour))
	sooner.Alarms = []core.Alarm{{Action: "EMAIL", Trigger: -time.Hour}, {Action: "DISPLAY", Trigger: -5 * time.Minute}}
	past := meeting("Past", c.t.Add(-2*time.Hour))
	past.Alarms = []core.Alarm{{Action: "DISPLAY", Trigger: 0}}
	for _, ev := range []*core.Event{later, sooner, past} {
		_, err := gw.CreateEvent(ctx, def.ID, ev)
		require.NoError(t, err)
	}

	triggers, err := b.Alarms.AlarmTriggers(ctx, []string{"display"})
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.True(t, triggers[0].Time.Equal(c.t.Add(2*time.Hour-5*time.Minute)))
	assert.True(t, triggers[1].Time.Equal(c.t.Add(5*time.Hour-10*time.Minute)))
	assert.Equal(t, def.ID, triggers[0].FolderID)

	all, err := b.Alarms.AlarmTriggers(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestScheduling(t *testing.T) {
	p, b, c := connect(t)
	ctx := context.Background()
	me := core.Attendee{URI: p.Address(session.UserID)}

	invite := meeting("Offsite", c.t.Add(24*time.Hour))
	invite.UID = "offsite@example.com"
	invite.Organizer = &core.Organizer{URI: "mailto:boss@example.com"}
	invite.Attendees = []core.Attendee{{URI: me.URI, PartStat: core.PartStatNeedsAction}}
	msg := &core.SchedulingMessage{ID: "m1", Method: core.MethodRequest, Event: invite, Originator: "mailto:boss@example.com", Recipient: me.URI}

	analysis, err := b.Scheduling.Analyze(ctx, msg)
	require.NoError(t, err)
	assert.Nil(t, analysis.Existing)
	assert.Contains(t, analysis.Actions, core.ActionAccept)

	accepted := me
	accepted.PartStat = core.PartStatAccepted
	res, err := b.Scheduling.HandleIncoming(ctx, msg, accepted)
	require.NoError(t, err)
	require.Len(t, res.Creations, 1)
	assert.Equal(t, core.PartStatAccepted, res.Creations[0].Created.Attendees[0].PartStat)

	analysis, err = b.Scheduling.Analyze(ctx, msg)
	require.NoError(t, err)
	require.NotNil(t, analysis.Existing)
	assert.Contains(t, analysis.Actions, core.ActionApplyChange)

	cancel := &core.SchedulingMessage{ID: "m2", Method: core.MethodCancel, Event: invite}
	analysis, err = b.Scheduling.Analyze(ctx, cancel)
	require.NoError(t, err)
	assert.Equal(t, []core.SchedulingAction{core.ActionApplyCancel}, analysis.Actions)

	res, err = b.Scheduling.HandleIncoming(ctx, cancel, me)
	require.NoError(t, err)
	assert.Len(t, res.Deletions, 1)
}

func TestFreeBusy(t *testing.T) {
	p, b, c := connect(t)
	ctx := context.Background()
	gw := b.Groupware
	def, _ := gw.DefaultFolder(ctx)

	_, err := gw.CreateEvent(ctx, def.ID, meeting("Busy", c.t.Add(time.Hour)))
	require.NoError(t, err)
	free := meeting("Free", c.t.Add(3*time.Hour))
	free.Transparency = core.TransparencyTransparent
	_, err = gw.CreateEvent(ctx, def.ID, free)
	require.NoError(t, err)

	fb := p.FreeBusy()
	me := core.Attendee{URI: p.Address(session.UserID)}
	res, err := fb.Query(ctx, session, []core.Attendee{me, {URI: "mailto:stranger@example.com"}}, c.t, c.t.Add(24*time.Hour), false)
	require.NoError(t, err)
	require.Contains(t, res, me.URI)
	assert.NotContains(t, res, "mailto:stranger@example.com")

	times := res[me.URI][core.DefaultAccountID].Times
	require.Len(t, times, 1)
	assert.Equal(t, def.ID, times[0].FolderID)

	other := core.Session{ID: "s2", UserID: 8}
	res, err = fb.Query(ctx, other, []core.Attendee{me}, c.t, c.t.Add(24*time.Hour), false)
	require.NoError(t, err)
	assert.Empty(t, res[me.URI][core.DefaultAccountID].Times[0].FolderID)
}
