package ical

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/calmesh/account"
	"github.com/hupe1980/calmesh/core"
)

const teamFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calmesh//test//EN
X-WR-CALNAME:Team
X-APPLE-CALENDAR-COLOR:#336699
BEGIN:VEVENT
UID:standup@example.com
DTSTAMP:20250101T000000Z
DTSTART:20250106T090000Z
DTEND:20250106T093000Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20250108T090000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup@example.com
RECURRENCE-ID:20250107T090000Z
DTSTAMP:20250102T000000Z
DTSTART:20250107T100000Z
DTEND:20250107T103000Z
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:offsite@example.com
DTSTAMP:20250103T000000Z
LAST-MODIFIED:20250104T000000Z
DTSTART;VALUE=DATE:20250110
DTEND;VALUE=DATE:20250111
SUMMARY:Offsite planning
SEQUENCE:2
ORGANIZER;CN=Lead:mailto:lead@example.com
ATTENDEE;PARTSTAT=ACCEPTED;CN=Ann:mailto:ann@example.com
TRANSP:TRANSPARENT
END:VEVENT
BEGIN:VEVENT
SUMMARY:missing uid
DTSTART:20250106T090000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) string { return strings.ReplaceAll(s, "\n", "\r\n") }

// stubFeed serves a replaceable body and counts fetches.
type stubFeed struct {
	mu      sync.Mutex
	body    string
	err     error
	fetches int
}

func (s *stubFeed) Fetch(_ context.Context, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(crlf(s.body)), nil
}

func (s *stubFeed) set(body string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body, s.err = body, err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func feedAccount(id core.AccountID, name string) core.Account {
	return core.Account{ID: id, ProviderID: ProviderID, Settings: core.Settings{
		Name:   name,
		Config: map[string]string{ConfigURL: "https://example.com/team.ics"},
	}}
}

func connect(t *testing.T, acc core.Account) (*core.Backend, *stubFeed, *clock) {
	t.Helper()
	stub := &stubFeed{body: teamFeed}
	c := &clock{t: time.Date(2025, 1, 6, 10, 5, 0, 0, time.UTC)}
	p, err := New(func(o *Options) {
		o.Fetcher = stub
		o.Now = c.now
	})
	require.NoError(t, err)
	b, err := p.Connect(context.Background(), core.Session{ID: "s", UserID: 1}, acc)
	require.NoError(t, err)
	return b, stub, c
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(func(o *Options) { o.Refresh = "every now and then" })
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	_, err = p.Connect(context.Background(), core.Session{}, core.Account{ID: 3, ProviderID: ProviderID})
	assert.ErrorIs(t, err, core.ErrMandatoryField)

	b, err := p.Connect(context.Background(), core.Session{}, feedAccount(3, ""))
	require.NoError(t, err)
	assert.Equal(t, p.Capabilities(), b.Capabilities())
}

func TestFeed_Parse(t *testing.T) {
	b, stub, _ := connect(t, feedAccount(3, ""))
	ctx := context.Background()

	events, err := b.Basic.AllEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 1, stub.fetches)

	master := events[0]
	assert.Equal(t, "standup@example.com", master.ID)
	assert.Equal(t, core.BasicFolderID, master.FolderID)
	assert.Equal(t, master.ID, master.SeriesID)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", master.RecurrenceRule)
	require.Len(t, master.ExDates, 1)
	assert.True(t, master.LastModified.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	override := events[1]
	assert.Equal(t, "20250107T090000Z", override.RecurrenceID)
	assert.Empty(t, override.RecurrenceRule)

	offsite := events[2]
	assert.True(t, offsite.AllDay)
	assert.Equal(t, "20250110", offsite.Start.Format("20060102"))
	assert.Equal(t, 2, offsite.Sequence)
	assert.Equal(t, core.TransparencyTransparent, offsite.Transparency)
	assert.Equal(t, "mailto:lead@example.com", offsite.Organizer.URI)
	require.Len(t, offsite.Attendees, 1)
	assert.Equal(t, core.PartStatAccepted, offsite.Attendees[0].PartStat)
	assert.Equal(t, "Ann", offsite.Attendees[0].Name)
	assert.True(t, offsite.LastModified.Equal(time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)))

	settings, err := b.Basic.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Team", settings.Name)
	assert.Equal(t, "#336699", settings.Color)
}

func TestSettings_AccountNameWins(t *testing.T) {
	b, _, _ := connect(t, feedAccount(3, "My team"))
	settings, err := b.Basic.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "My team", settings.Name)
}

func TestEvent_Occurrences(t *testing.T) {
	b, _, _ := connect(t, feedAccount(3, ""))
	ctx := context.Background()

	moved, err := b.Basic.Event(ctx, "standup@example.com", "20250107T090000Z")
	require.NoError(t, err)
	assert.Equal(t, "Standup (moved)", moved.Summary)

	regular, err := b.Basic.Event(ctx, "standup@example.com", "20250109T090000Z")
	require.NoError(t, err)
	assert.Equal(t, "Standup", regular.Summary)
	assert.True(t, regular.Start.Equal(time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC)))

	_, err = b.Basic.Event(ctx, "standup@example.com", "20250108T090000Z")
	assert.ErrorIs(t, err, core.ErrNotFound)

	events, err := b.Basic.Events(ctx, []core.EventID{
		{FolderID: core.BasicFolderID, ObjectID: "offsite@example.com"},
		{FolderID: core.BasicFolderID, ObjectID: "nope"},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	exceptions, err := b.Basic.ChangeExceptions(ctx, "standup@example.com")
	require.NoError(t, err)
	assert.Len(t, exceptions, 1)
}

func TestRefresh_FollowsSchedule(t *testing.T) {
	b, stub, c := connect(t, feedAccount(3, ""))
	ctx := context.Background()

	seq1, err := b.BasicSync.SequenceNumber(ctx)
	require.NoError(t, err)
	tag1, err := b.CTag.CTag(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.fetches)
	assert.True(t, strings.HasPrefix(tag1, "ics-"))

	// next tick is 10:30
	c.t = time.Date(2025, 1, 6, 10, 31, 0, 0, time.UTC)
	seq2, err := b.BasicSync.SequenceNumber(ctx)
	require.NoError(t, err)
	tag2, err := b.CTag.CTag(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.fetches)
	assert.Equal(t, seq1, seq2, "unchanged content keeps the sequence")
	assert.Equal(t, tag1, tag2)
}

func TestRefresh_RemovedEventsAreReportedDeleted(t *testing.T) {
	b, stub, c := connect(t, feedAccount(3, ""))
	ctx := context.Background()

	tag1, err := b.CTag.CTag(ctx)
	require.NoError(t, err)
	since := c.t

	start := strings.Index(teamFeed, "BEGIN:VEVENT\nUID:offsite")
	end := strings.Index(teamFeed, "BEGIN:VEVENT\nSUMMARY:missing uid")
	stub.set(teamFeed[:start]+teamFeed[end:], nil)
	c.t = c.t.Add(time.Hour)

	updates, err := b.BasicSync.UpdatedEvents(ctx, since)
	require.NoError(t, err)
	assert.Empty(t, updates.NewAndModified)
	require.Len(t, updates.Deleted, 1)
	assert.Equal(t, "offsite@example.com", updates.Deleted[0].ID)
	assert.Equal(t, c.t.UnixMilli(), updates.Timestamp)

	tag2, err := b.CTag.CTag(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, tag1, tag2)

	all, err := b.BasicSync.UpdatedEvents(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all.NewAndModified, 2)
}

func TestRefresh_ReappearingEventIsNoLongerDeleted(t *testing.T) {
	b, stub, c := connect(t, feedAccount(3, ""))
	ctx := context.Background()

	_, err := b.Basic.AllEvents(ctx)
	require.NoError(t, err)
	since := c.t

	start := strings.Index(teamFeed, "BEGIN:VEVENT\nUID:offsite")
	end := strings.Index(teamFeed, "BEGIN:VEVENT\nSUMMARY:missing uid")
	stub.set(teamFeed[:start]+teamFeed[end:], nil)
	c.t = c.t.Add(time.Hour)
	updates, err := b.BasicSync.UpdatedEvents(ctx, since)
	require.NoError(t, err)
	require.Len(t, updates.Deleted, 1)

	stub.set(teamFeed, nil)
	c.t = c.t.Add(time.Hour)
	updates, err = b.BasicSync.UpdatedEvents(ctx, since)
	require.NoError(t, err)
	assert.Empty(t, updates.Deleted)

	events, err := b.Basic.AllEvents(ctx)
	require.NoError(t, err)
	assert.NotNil(t, core.FindEvent(events, "offsite@example.com", ""))
}

func TestRefresh_TombstonesExpire(t *testing.T) {
	b, stub, c := connect(t, feedAccount(3, ""))
	ctx := context.Background()

	_, err := b.Basic.AllEvents(ctx)
	require.NoError(t, err)

	start := strings.Index(teamFeed, "BEGIN:VEVENT\nUID:offsite")
	end := strings.Index(teamFeed, "BEGIN:VEVENT\nSUMMARY:missing uid")
	stub.set(teamFeed[:start]+teamFeed[end:], nil)
	c.t = c.t.Add(time.Hour)
	updates, err := b.BasicSync.UpdatedEvents(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, updates.Deleted, 1)

	c.t = c.t.Add(DefaultTombstoneRetention + time.Hour)
	updates, err = b.BasicSync.UpdatedEvents(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, updates.Deleted)
}

func TestRefresh_FailureKeepsLastContent(t *testing.T) {
	b, stub, c := connect(t, feedAccount(3, ""))
	ctx := context.Background()

	_, err := b.Basic.AllEvents(ctx)
	require.NoError(t, err)

	stub.set("", errors.New("503 Service Unavailable"))
	c.t = c.t.Add(time.Hour)
	events, err := b.Basic.AllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, 2, stub.fetches)
}

func TestRefresh_FirstFailureIsAnError(t *testing.T) {
	b, stub, _ := connect(t, feedAccount(3, ""))
	stub.set("", errors.New("no route to host"))

	_, err := b.Basic.AllEvents(context.Background())
	assert.ErrorIs(t, err, core.ErrUnexpected)

	stub.set("  ", nil)
	_, err = b.Basic.Settings(context.Background())
	assert.ErrorIs(t, err, core.ErrUnexpected)
}

func TestSearchEvents(t *testing.T) {
	b, _, _ := connect(t, feedAccount(3, ""))
	ctx := context.Background()

	hits, err := b.BasicSearch.SearchEvents(ctx, core.SearchTerm{Query: "PLANNING"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "offsite@example.com", hits[0].ID)

	hits, err = b.BasicSearch.SearchEvents(ctx, core.SearchTerm{
		From:  time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Standup (moved)", hits[0].Summary)
}

func TestFreeBusy(t *testing.T) {
	ctx := context.Background()
	session := core.Session{ID: "s", UserID: 1}
	store := account.NewInMemoryStore()
	acc, err := store.CreateAccount(ctx, session, ProviderID, core.Settings{
		Name: "Team",
		Config: map[string]string{
			ConfigURL:   "https://example.com/team.ics",
			ConfigOwner: "mailto:team@example.com",
		},
	})
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, session, "groupware-like", core.Settings{Name: "other"})
	require.NoError(t, err)

	stub := &stubFeed{body: teamFeed}
	p, err := New(func(o *Options) {
		o.Fetcher = stub
		o.Accounts = store
		o.Now = func() time.Time { return time.Date(2025, 1, 6, 10, 5, 0, 0, time.UTC) }
	})
	require.NoError(t, err)

	from := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	res, err := p.FreeBusy().Query(ctx, session, []core.Attendee{
		{URI: "MAILTO:Team@example.com"},
		{URI: "mailto:someone@example.com"},
	}, from, from.Add(48*time.Hour), false)
	require.NoError(t, err)

	require.Len(t, res, 1)
	r := res["MAILTO:Team@example.com"][acc.ID]
	assert.Empty(t, r.Errs)
	assert.Equal(t, ProviderID, r.Provider)
	require.Len(t, r.Times, 2)
	assert.True(t, r.Times[0].Start.Equal(from.Add(9*time.Hour)))
	assert.True(t, r.Times[1].Start.Equal(from.Add(34*time.Hour)))
	assert.Equal(t, core.BasicFolderID, r.Times[0].FolderID)
}

func TestFreeBusy_FeedFailureIsReported(t *testing.T) {
	ctx := context.Background()
	session := core.Session{ID: "s", UserID: 1}
	store := account.NewInMemoryStore()
	acc, err := store.CreateAccount(ctx, session, ProviderID, core.Settings{Config: map[string]string{
		ConfigURL:   "https://example.com/down.ics",
		ConfigOwner: "mailto:team@example.com",
	}})
	require.NoError(t, err)

	p, err := New(func(o *Options) {
		o.Fetcher = &stubFeed{err: errors.New("timeout")}
		o.Accounts = store
	})
	require.NoError(t, err)

	now := time.Now()
	res, err := p.FreeBusy().Query(ctx, session, []core.Attendee{{URI: "mailto:team@example.com"}}, now, now.Add(time.Hour), true)
	require.NoError(t, err)
	r := res["mailto:team@example.com"][acc.ID]
	require.Len(t, r.Errs, 1)
	assert.Equal(t, acc.ID, core.AsError(r.Errs[0]).Account)
}

func TestFreeBusy_WithoutAccounts(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	res, err := p.FreeBusy().Query(context.Background(), core.Session{}, []core.Attendee{{URI: "x"}}, time.Now(), time.Now(), false)
	require.NoError(t, err)
	assert.Empty(t, res)
}
