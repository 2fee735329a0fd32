package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/calmesh/core"
)

// Faults injects latency and failures into fake backends. A nil *Faults
// injects nothing.
type Faults struct {
	// Delay is waited (or the context's deadline, whichever comes first)
	// before every call.
	Delay time.Duration
	// Err is returned by every call.
	Err error
	// Panic makes every call panic with the given value.
	Panic any
}

func (f *Faults) apply(ctx context.Context) error {
	if f == nil {
		return nil
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.Panic != nil {
		panic(f.Panic)
	}
	return f.Err
}

// FolderBackend is an in-memory folder-structured backend implementing
// core.FolderCalendar, core.FolderSync, core.FolderSearch and core.CTagAware.
// Events are stored with local folder ids.
type FolderBackend struct {
	Faults *Faults

	mu      sync.Mutex
	folders []core.Folder
	events  map[string][]*core.Event
	calls   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
}

// NewFolderBackend creates a backend with the given local folder ids.
func NewFolderBackend(folderIDs ...string) *FolderBackend {
	b := &FolderBackend{events: map[string][]*core.Event{}}
	for _, id := range folderIDs {
		b.folders = append(b.folders, core.Folder{ID: id, Name: "Folder " + id, Type: core.FolderTypePrivate, Subscribed: true})
		b.events[id] = nil
	}
	return b
}

// Put stores events in a folder (chainable).
func (b *FolderBackend) Put(folderID string, events ...*core.Event) *FolderBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range events {
		cp := ev.Clone()
		cp.FolderID = folderID
		b.events[folderID] = append(b.events[folderID], cp)
	}
	return b
}

// Calls returns the number of backend calls made.
func (b *FolderBackend) Calls() int { return int(b.calls.Load()) }

// Overlapped reports whether two calls ever ran concurrently.
func (b *FolderBackend) Overlapped() bool { return b.overlap.Load() }

// Backend wraps the fake into a core.Backend populating the folder groups.
func (b *FolderBackend) Backend() *core.Backend {
	return &core.Backend{Folders: b, FolderSync: b, FolderSearch: b, CTag: b}
}

func (b *FolderBackend) enter(ctx context.Context) (func(), error) {
	b.calls.Add(1)
	if b.active.Add(1) > 1 {
		b.overlap.Store(true)
	}
	leave := func() { b.active.Add(-1) }
	if err := b.Faults.apply(ctx); err != nil {
		leave()
		return nil, err
	}
	return leave, nil
}

func (b *FolderBackend) folderLocked(id string) (core.Folder, error) {
	for _, f := range b.folders {
		if f.ID == id {
			return f, nil
		}
	}
	e := core.NewError(core.ErrNotFound, "folder %s not found", id)
	e.Folder = id
	return core.Folder{}, e
}

func (b *FolderBackend) VisibleFolders(ctx context.Context) ([]core.Folder, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.Folder(nil), b.folders...), nil
}

func (b *FolderBackend) Folder(ctx context.Context, folderID string) (core.Folder, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return core.Folder{}, err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.folderLocked(folderID)
}

func (b *FolderBackend) CreateFolder(ctx context.Context, folder core.Folder) (string, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return "", err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	folder.ID = folder.Name
	b.folders = append(b.folders, folder)
	b.events[folder.ID] = nil
	return folder.ID, nil
}

func (b *FolderBackend) UpdateFolder(ctx context.Context, folderID string, folder core.Folder, _ int64) (string, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return "", err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.folders {
		if b.folders[i].ID == folderID {
			folder.ID = folderID
			b.folders[i] = folder
			return folderID, nil
		}
	}
	_, err = b.folderLocked(folderID)
	return "", err
}

func (b *FolderBackend) DeleteFolder(ctx context.Context, folderID string, _ int64) error {
	leave, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.folders {
		if b.folders[i].ID == folderID {
			b.folders = append(b.folders[:i], b.folders[i+1:]...)
			delete(b.events, folderID)
			return nil
		}
	}
	_, err = b.folderLocked(folderID)
	return err
}

func (b *FolderBackend) Event(ctx context.Context, folderID, objectID, recurrenceID string) (*core.Event, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.folderLocked(folderID); err != nil {
		return nil, err
	}
	ev := core.FindEvent(b.events[folderID], objectID, recurrenceID)
	if ev == nil {
		e := core.NewError(core.ErrNotFound, "event %s not found", objectID)
		e.Folder = folderID
		return nil, e
	}
	return ev.Clone(), nil
}

func (b *FolderBackend) Events(ctx context.Context, ids []core.EventID) ([]*core.Event, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*core.Event
	for _, id := range ids {
		if ev := core.FindEvent(b.events[id.FolderID], id.ObjectID, id.RecurrenceID); ev != nil {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

func (b *FolderBackend) EventsInFolders(ctx context.Context, folderIDs []string) (map[string]core.EventsResult, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]core.EventsResult, len(folderIDs))
	for _, id := range folderIDs {
		if _, err := b.folderLocked(id); err != nil {
			out[id] = core.EventsResult{Err: err}
			continue
		}
		out[id] = core.EventsResult{Events: cloneAll(b.events[id])}
	}
	return out, nil
}

func (b *FolderBackend) ChangeExceptions(ctx context.Context, folderID, seriesID string) ([]*core.Event, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*core.Event
	for _, ev := range b.events[folderID] {
		if ev.SeriesID == seriesID && ev.RecurrenceID != "" {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

func (b *FolderBackend) UpdatedEventsInFolder(ctx context.Context, folderID string, since time.Time) (*core.UpdatesResult, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	res := &core.UpdatesResult{Since: since}
	for _, ev := range b.events[folderID] {
		if ev.LastModified.After(since) {
			res.NewAndModified = append(res.NewAndModified, ev.Clone())
		}
	}
	return res, nil
}

func (b *FolderBackend) UpdatedEventsOfUser(ctx context.Context, since time.Time) (*core.UpdatesResult, error) {
	return nil, core.Unsupported("fake")
}

func (b *FolderBackend) SequenceNumber(ctx context.Context, folderID string) (int64, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.folderLocked(folderID); err != nil {
		return 0, err
	}
	var seq int64
	for _, ev := range b.events[folderID] {
		if ms := ev.Timestamp(); ms > seq {
			seq = ms
		}
	}
	return seq, nil
}

func (b *FolderBackend) SearchEvents(ctx context.Context, folderIDs []string, term core.SearchTerm) (map[string]core.EventsResult, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()
	b.mu.Lock()
	defer b.mu.Unlock()
	if folderIDs == nil {
		for _, f := range b.folders {
			folderIDs = append(folderIDs, f.ID)
		}
	}
	out := make(map[string]core.EventsResult, len(folderIDs))
	for _, id := range folderIDs {
		var hits []*core.Event
		for _, ev := range b.events[id] {
			if term.Matches(ev) {
				hits = append(hits, ev.Clone())
			}
		}
		out[id] = core.EventsResult{Events: hits}
	}
	return out, nil
}

func (b *FolderBackend) CTag(ctx context.Context) (string, error) {
	leave, err := b.enter(ctx)
	if err != nil {
		return "", err
	}
	defer leave()
	return "ctag-fake", nil
}

// FlatBackend is an in-memory flat backend implementing core.BasicCalendar,
// core.BasicSync and core.BasicSearch.
type FlatBackend struct {
	Faults   *Faults
	Settings core.Settings

	mu     sync.Mutex
	events []*core.Event
	calls  atomic.Int32
}

// NewFlatBackend creates a flat backend holding events.
func NewFlatBackend(events ...*core.Event) *FlatBackend {
	b := &FlatBackend{Settings: core.Settings{Name: "Flat", Subscribed: true}}
	for _, ev := range events {
		cp := ev.Clone()
		cp.FolderID = core.BasicFolderID
		b.events = append(b.events, cp)
	}
	return b
}

// Calls returns the number of backend calls made.
func (b *FlatBackend) Calls() int { return int(b.calls.Load()) }

// Backend wraps the fake into a core.Backend populating the basic groups.
func (b *FlatBackend) Backend() *core.Backend {
	return &core.Backend{Basic: &flatBasic{b}, BasicSync: &flatSync{b}, BasicSearch: &flatSearch{b}}
}

func (b *FlatBackend) enter(ctx context.Context) error {
	b.calls.Add(1)
	return b.Faults.apply(ctx)
}

// flatBasic, flatSync and flatSearch split the method sets so the
// SequenceNumber and SearchEvents signatures of the groups do not collide.
type flatBasic struct{ *FlatBackend }

func (b *flatBasic) Settings(ctx context.Context) (core.Settings, error) {
	if err := b.enter(ctx); err != nil {
		return core.Settings{}, err
	}
	return b.FlatBackend.Settings, nil
}

func (b *flatBasic) Event(ctx context.Context, objectID, recurrenceID string) (*core.Event, error) {
	if err := b.enter(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev := core.FindEvent(b.events, objectID, recurrenceID); ev != nil {
		return ev.Clone(), nil
	}
	return nil, core.NewError(core.ErrNotFound, "event %s not found", objectID)
}

func (b *flatBasic) Events(ctx context.Context, ids []core.EventID) ([]*core.Event, error) {
	if err := b.enter(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*core.Event
	for _, id := range ids {
		if ev := core.FindEvent(b.events, id.ObjectID, id.RecurrenceID); ev != nil {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

func (b *flatBasic) AllEvents(ctx context.Context) ([]*core.Event, error) {
	if err := b.enter(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneAll(b.events), nil
}

func (b *flatBasic) ChangeExceptions(ctx context.Context, seriesID string) ([]*core.Event, error) {
	if err := b.enter(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*core.Event
	for _, ev := range b.events {
		if ev.SeriesID == seriesID && ev.RecurrenceID != "" {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

type flatSync struct{ *FlatBackend }

func (b *flatSync) UpdatedEvents(ctx context.Context, since time.Time) (*core.UpdatesResult, error) {
	if err := b.enter(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	res := &core.UpdatesResult{Since: since}
	for _, ev := range b.events {
		if ev.LastModified.After(since) {
			res.NewAndModified = append(res.NewAndModified, ev.Clone())
		}
	}
	return res, nil
}

func (b *flatSync) SequenceNumber(ctx context.Context) (int64, error) {
	if err := b.enter(ctx); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.events)), nil
}

type flatSearch struct{ *FlatBackend }

func (b *flatSearch) SearchEvents(ctx context.Context, term core.SearchTerm) ([]*core.Event, error) {
	if err := b.enter(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*core.Event
	for _, ev := range b.events {
		if term.Matches(ev) {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

// FolderCaps and FlatCaps are the capability sets of the fake backends.
const (
	FolderCaps = core.CapFolders | core.CapSync | core.CapSearch | core.CapCTag
	FlatCaps   = core.CapBasic | core.CapSync | core.CapSearch
)

// FakeFreeBusy is a core.FreeBusyProvider answering from a fixed table.
type FakeFreeBusy struct {
	Name    string
	Answers map[string]map[core.AccountID]core.FreeBusyResult
	Err     error
	// Delay postpones the answer, bounded by the context.
	Delay time.Duration
}

func (f *FakeFreeBusy) ID() string { return f.Name }

func (f *FakeFreeBusy) Query(ctx context.Context, _ core.Session, attendees []core.Attendee, _, _ time.Time, _ bool) (map[string]map[core.AccountID]core.FreeBusyResult, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	out := map[string]map[core.AccountID]core.FreeBusyResult{}
	for _, a := range attendees {
		if res, ok := f.Answers[a.URI]; ok {
			out[a.URI] = res
		}
	}
	return out, nil
}

func cloneAll(events []*core.Event) []*core.Event {
	out := make([]*core.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
