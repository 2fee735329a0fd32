package ical

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeebo/blake3"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/logging"
)

// feed is the cached state of one subscribed URL.
type feed struct {
	url string

	mu         sync.Mutex
	data       *calendarData
	sum        [32]byte
	fetchedAt  time.Time
	changedAt  time.Time
	tombstones []*core.Event
}

// snapshot is an immutable view of a feed handed to backends.
type snapshot struct {
	name       string
	color      string
	events     []*core.Event
	tombstones []*core.Event
	changedAt  time.Time
	ctag       string
}

type feedCache struct {
	fetcher   Fetcher
	schedule  cron.Schedule
	timeout   time.Duration
	retention time.Duration
	now      func() time.Time
	logger   logging.Logger

	mu    sync.Mutex
	feeds map[string]*feed
}

func (c *feedCache) feed(url string) *feed {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.feeds[url]
	if !ok {
		f = &feed{url: url}
		c.feeds[url] = f
	}
	return f
}

// load returns the feed content, refreshing it first when stale. A failed
// refresh keeps serving the previous content if there is any.
func (c *feedCache) load(ctx context.Context, url string) (*snapshot, error) {
	f := c.feed(url)
	f.mu.Lock()
	defer f.mu.Unlock()

	now := c.now()
	if f.data == nil || !c.schedule.Next(f.fetchedAt).After(now) {
		if err := c.refreshLocked(ctx, f, now); err != nil {
			if f.data == nil {
				return nil, err
			}
			c.logger.Warn("ical.feed.stale", "url", redactURL(url), "error", err.Error())
		}
	}
	if c.retention > 0 {
		f.tombstones = expire(f.tombstones, now.UTC().Add(-c.retention))
	}

	snap := &snapshot{
		name:      f.data.name,
		color:     f.data.color,
		changedAt: f.changedAt,
		ctag:      "ics-" + hex.EncodeToString(f.sum[:16]),
	}
	for _, ev := range f.data.events {
		snap.events = append(snap.events, ev.Clone())
	}
	for _, ev := range f.tombstones {
		snap.tombstones = append(snap.tombstones, ev.Clone())
	}
	return snap, nil
}

func (c *feedCache) refreshLocked(ctx context.Context, f *feed, now time.Time) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	body, err := c.fetcher.Fetch(ctx, f.url)
	if err != nil {
		return core.Wrap(core.ErrUnexpected, err, "fetching feed %s", redactURL(f.url))
	}

	sum := blake3.Sum256(body)
	if f.data != nil && sum == f.sum {
		f.fetchedAt = now
		c.logger.Debug("ical.feed.unchanged", "url", redactURL(f.url), "duration_ms", time.Since(start).Milliseconds())
		return nil
	}

	data, err := parseFeed(body, now.UTC())
	if err != nil {
		return core.Wrap(core.ErrUnexpected, err, "parsing feed %s", redactURL(f.url))
	}
	if f.data != nil {
		gone := removed(f.data.events, data.events, now.UTC())
		f.tombstones = append(removed(f.tombstones, data.events, time.Time{}), gone...)
	}
	f.data, f.sum = data, sum
	f.fetchedAt, f.changedAt = now, now.UTC().Truncate(time.Millisecond)
	c.logger.Info("ical.feed.refreshed",
		"url", redactURL(f.url),
		"events", len(data.events),
		"skipped", data.skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// removed returns the events of before that are missing in after, stamped
// with the time of their removal. A zero at keeps the existing stamps.
func removed(before, after []*core.Event, at time.Time) []*core.Event {
	type key struct{ id, rid string }
	present := make(map[key]bool, len(after))
	for _, ev := range after {
		present[key{ev.ID, ev.RecurrenceID}] = true
	}
	var out []*core.Event
	for _, ev := range before {
		if present[key{ev.ID, ev.RecurrenceID}] {
			continue
		}
		gone := ev.Clone()
		if !at.IsZero() {
			gone.LastModified = at
		}
		out = append(out, gone)
	}
	return out
}

// expire drops tombstones removed before cutoff.
func expire(tombstones []*core.Event, cutoff time.Time) []*core.Event {
	kept := tombstones[:0]
	for _, ev := range tombstones {
		if !ev.LastModified.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	return kept
}
