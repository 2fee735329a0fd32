package ical

import (
	"context"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/recurrence"
)

// backend serves one feed account. It is read-only.
type backend struct {
	cache   *feedCache
	account core.Account
	url     string
}

func (b *backend) load(ctx context.Context) (*snapshot, error) {
	return b.cache.load(ctx, b.url)
}

// Settings returns the account settings, falling back to the name and color
// the feed announces.
func (b *backend) Settings(ctx context.Context) (core.Settings, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return core.Settings{}, err
	}
	s := b.account.Settings
	if s.Name == "" {
		s.Name = snap.name
	}
	if s.Color == "" {
		s.Color = snap.color
	}
	return s, nil
}

func (b *backend) Event(ctx context.Context, objectID, recurrenceID string) (*core.Event, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if ev := find(snap.events, objectID, recurrenceID); ev != nil {
		return ev, nil
	}
	e := core.NewError(core.ErrNotFound, "event %s not found", objectID)
	e.Folder = core.BasicFolderID
	return nil, e
}

func (b *backend) Events(ctx context.Context, ids []core.EventID) ([]*core.Event, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []*core.Event
	for _, id := range ids {
		if ev := find(snap.events, id.ObjectID, id.RecurrenceID); ev != nil {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (b *backend) AllEvents(ctx context.Context) ([]*core.Event, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.events, nil
}

func (b *backend) ChangeExceptions(ctx context.Context, seriesID string) ([]*core.Event, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []*core.Event
	for _, ev := range snap.events {
		if ev.SeriesID == seriesID && ev.RecurrenceID != "" {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (b *backend) UpdatedEvents(ctx context.Context, since time.Time) (*core.UpdatesResult, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	res := &core.UpdatesResult{Since: since, Timestamp: snap.changedAt.UnixMilli()}
	for _, ev := range snap.events {
		if ev.LastModified.After(since) {
			res.NewAndModified = append(res.NewAndModified, ev)
		}
	}
	for _, ev := range snap.tombstones {
		if ev.LastModified.After(since) {
			res.Deleted = append(res.Deleted, ev)
		}
	}
	return res, nil
}

// SequenceNumber is the time the feed content last changed, in milliseconds.
func (b *backend) SequenceNumber(ctx context.Context) (int64, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return 0, err
	}
	return snap.changedAt.UnixMilli(), nil
}

func (b *backend) SearchEvents(ctx context.Context, term core.SearchTerm) ([]*core.Event, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []*core.Event
	for _, ev := range snap.events {
		if term.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// CTag is derived from a hash of the feed content.
func (b *backend) CTag(ctx context.Context) (string, error) {
	snap, err := b.load(ctx)
	if err != nil {
		return "", err
	}
	return snap.ctag, nil
}

// find returns the event or change exception with the given ids. Occurrences
// without a change exception are computed from the series.
func find(events []*core.Event, objectID, recurrenceID string) *core.Event {
	var master *core.Event
	for _, ev := range events {
		if ev.ID != objectID {
			continue
		}
		if ev.RecurrenceID == recurrenceID {
			return ev
		}
		if ev.RecurrenceID == "" {
			master = ev
		}
	}
	if master == nil || master.RecurrenceRule == "" || recurrenceID == "" {
		return nil
	}
	at, err := recurrence.ParseRecurrenceID(recurrenceID)
	if err != nil {
		return nil
	}
	res, err := recurrence.Expand([]*core.Event{master}, recurrence.Config{
		From:  at,
		Until: at.Add(master.End.Sub(master.Start) + time.Second),
	})
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
