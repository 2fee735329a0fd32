package groupware

import (
	"context"
	"strconv"
	"time"

	"github.com/hupe1980/calmesh/core"
)

func (b *backend) UpdatedEventsInFolder(_ context.Context, folderID string, since time.Time) (*core.UpdatesResult, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	fd, err := b.cal.folderLocked(folderID)
	if err != nil {
		return nil, err
	}
	res := &core.UpdatesResult{Since: since, Timestamp: fd.folder.LastModified.UnixMilli()}
	for _, ev := range fd.eventsLocked() {
		if ev.LastModified.After(since) {
			res.NewAndModified = append(res.NewAndModified, ev)
		}
	}
	for _, ev := range b.cal.tombstones {
		if ev.FolderID == folderID && ev.LastModified.After(since) {
			res.Deleted = append(res.Deleted, ev.Clone())
		}
	}
	return res, nil
}

func (b *backend) UpdatedEventsOfUser(_ context.Context, since time.Time) (*core.UpdatesResult, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	res := &core.UpdatesResult{Since: since, Timestamp: b.cal.modified.UnixMilli()}
	for _, id := range b.cal.order {
		for _, ev := range b.cal.folders[id].eventsLocked() {
			if ev.LastModified.After(since) && b.cal.involvesLocked(ev) {
				res.NewAndModified = append(res.NewAndModified, ev)
			}
		}
	}
	sortEvents(res.NewAndModified)
	for _, ev := range b.cal.tombstones {
		if ev.LastModified.After(since) && b.cal.involvesLocked(ev) {
			res.Deleted = append(res.Deleted, ev.Clone())
		}
	}
	return res, nil
}

// SequenceNumber is the last modification of a folder in milliseconds.
func (b *backend) SequenceNumber(_ context.Context, folderID string) (int64, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	fd, err := b.cal.folderLocked(folderID)
	if err != nil {
		return 0, err
	}
	return fd.folder.LastModified.UnixMilli(), nil
}

func (b *backend) SearchEvents(_ context.Context, folderIDs []string, term core.SearchTerm) (map[string]core.EventsResult, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	if folderIDs == nil {
		folderIDs = append([]string(nil), b.cal.order...)
	}
	out := make(map[string]core.EventsResult, len(folderIDs))
	for _, id := range folderIDs {
		fd, err := b.cal.folderLocked(id)
		if err != nil {
			out[id] = core.EventsResult{Err: err}
			continue
		}
		var hits []*core.Event
		for _, ev := range fd.eventsLocked() {
			if term.Matches(ev) {
				hits = append(hits, ev)
			}
		}
		out[id] = core.EventsResult{Events: hits}
	}
	return out, nil
}

// CTag changes with every modification of the user's calendar.
func (b *backend) CTag(_ context.Context) (string, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	return "gw-" + strconv.Itoa(b.cal.userID) + "-" + strconv.FormatInt(b.cal.modified.UnixMilli(), 10), nil
}
