package groupware

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/calmesh/core"
)

// calendar is the data of one user.
type calendar struct {
	mu         sync.RWMutex
	userID     int
	address    string
	folders    map[string]*folderData
	order      []string
	defaultID  string
	tombstones []*core.Event
	modified   time.Time
}

type folderData struct {
	folder core.Folder
	// events by object id; the master first, change exceptions after it
	events map[string][]*core.Event
}

// store holds the calendars of all users.
type store struct {
	mu        sync.Mutex
	calendars map[int]*calendar
	now       func() time.Time
}

func newStore(now func() time.Time) *store {
	return &store{calendars: make(map[int]*calendar), now: now}
}

// calendar returns the calendar of a user, creating it together with its
// default folder on first use.
func (s *store) calendar(userID int, address string) *calendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calendars[userID]; ok {
		return c
	}
	now := s.now().UTC()
	c := &calendar{userID: userID, address: address, folders: make(map[string]*folderData), modified: now}
	c.defaultID = c.addFolderLocked(core.Folder{Name: "Calendar", Type: core.FolderTypePrivate, Subscribed: true}, now)
	s.calendars[userID] = c
	return c
}

// byAddress finds the calendar of an internal user by calendar user address.
func (s *store) byAddress(uri string) (*calendar, bool) {
	want := core.Attendee{URI: uri}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calendars {
		if (core.Attendee{URI: c.address}).Matches(want) {
			return c, true
		}
	}
	return nil, false
}

func (c *calendar) addFolderLocked(f core.Folder, now time.Time) string {
	f.ID = uuid.NewString()
	f.LastModified = now
	if f.Type == "" {
		f.Type = core.FolderTypePrivate
	}
	c.folders[f.ID] = &folderData{folder: f, events: make(map[string][]*core.Event)}
	c.order = append(c.order, f.ID)
	return f.ID
}

func (c *calendar) folderLocked(id string) (*folderData, error) {
	fd, ok := c.folders[id]
	if !ok {
		e := core.NewError(core.ErrNotFound, "folder %s not found", id)
		e.Folder = id
		return nil, e
	}
	return fd, nil
}

func (c *calendar) touchLocked(now time.Time, fd *folderData) {
	c.modified = now
	if fd != nil {
		fd.folder.LastModified = now
	}
}

// eventsLocked returns copies of every event of a folder ordered by start.
func (fd *folderData) eventsLocked() []*core.Event {
	var out []*core.Event
	for _, series := range fd.events {
		for _, ev := range series {
			out = append(out, ev.Clone())
		}
	}
	sortEvents(out)
	return out
}

func (fd *folderData) findLocked(objectID, recurrenceID string) (*core.Event, int) {
	series := fd.events[objectID]
	for i, ev := range series {
		if ev.RecurrenceID == recurrenceID {
			return ev, i
		}
	}
	return nil, -1
}

// locateUIDLocked finds the master event with the given UID.
func (c *calendar) locateUIDLocked(uid string) (*folderData, *core.Event) {
	for _, id := range c.order {
		fd := c.folders[id]
		for _, series := range fd.events {
			if len(series) > 0 && series[0].UID == uid && series[0].RecurrenceID == "" {
				return fd, series[0]
			}
		}
	}
	return nil, nil
}

func (c *calendar) involvesLocked(ev *core.Event) bool {
	me := core.Attendee{URI: c.address}
	if ev.Organizer != nil && me.Matches(core.Attendee{URI: ev.Organizer.URI}) {
		return true
	}
	for _, a := range ev.Attendees {
		if me.Matches(a) {
			return true
		}
	}
	return false
}

func sortEvents(events []*core.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return strings.Compare(events[i].ID, events[j].ID) < 0
	})
}

func notFound(folderID, objectID string) error {
	e := core.NewError(core.ErrNotFound, "event %s not found", objectID)
	e.Folder = folderID
	return e
}

func checkTimestamp(ev *core.Event, clientTimestamp int64) error {
	if clientTimestamp != 0 && clientTimestamp < ev.Timestamp() {
		e := core.NewError(core.ErrConflict, "event %s was modified at %d, client knows %d", ev.ID, ev.Timestamp(), clientTimestamp)
		e.Folder = ev.FolderID
		return e
	}
	return nil
}
