package core

import (
	"context"
	"time"
)

// BasicCalendar is implemented by flat accounts exposing exactly one folder,
// BasicFolderID.
type BasicCalendar interface {
	Settings(ctx context.Context) (Settings, error)
	Event(ctx context.Context, objectID, recurrenceID string) (*Event, error)
	Events(ctx context.Context, ids []EventID) ([]*Event, error)
	AllEvents(ctx context.Context) ([]*Event, error)
	ChangeExceptions(ctx context.Context, seriesID string) ([]*Event, error)
}

// FolderCalendar is implemented by accounts with a folder hierarchy.
type FolderCalendar interface {
	VisibleFolders(ctx context.Context) ([]Folder, error)
	Folder(ctx context.Context, folderID string) (Folder, error)
	CreateFolder(ctx context.Context, folder Folder) (string, error)
	UpdateFolder(ctx context.Context, folderID string, folder Folder, clientTimestamp int64) (string, error)
	DeleteFolder(ctx context.Context, folderID string, clientTimestamp int64) error
	Event(ctx context.Context, folderID, objectID, recurrenceID string) (*Event, error)
	Events(ctx context.Context, ids []EventID) ([]*Event, error)
	EventsInFolders(ctx context.Context, folderIDs []string) (map[string]EventsResult, error)
	ChangeExceptions(ctx context.Context, folderID, seriesID string) ([]*Event, error)
}

// GroupwareCalendar adds full CRUD to folder access. It is the capability of
// the internal default account.
type GroupwareCalendar interface {
	FolderCalendar
	DefaultFolder(ctx context.Context) (Folder, error)
	VisibleFoldersOfType(ctx context.Context, folderType FolderType) ([]Folder, error)
	EventsOfUser(ctx context.Context) ([]*Event, error)
	CreateEvent(ctx context.Context, folderID string, event *Event) (*CalendarResult, error)
	UpdateEvent(ctx context.Context, id EventID, event *Event, clientTimestamp int64) (*CalendarResult, error)
	MoveEvent(ctx context.Context, id EventID, targetFolderID string, clientTimestamp int64) (*CalendarResult, error)
	UpdateAttendee(ctx context.Context, id EventID, attendee Attendee, alarms []Alarm, clientTimestamp int64) (*CalendarResult, error)
	ChangeOrganizer(ctx context.Context, id EventID, organizer Organizer, clientTimestamp int64) (*CalendarResult, error)
	DeleteEvent(ctx context.Context, id EventID, clientTimestamp int64) (*CalendarResult, error)
	ImportEvents(ctx context.Context, folderID string, events []*Event) ([]ImportResult, error)
}

// BasicSync provides delta queries for flat accounts.
type BasicSync interface {
	UpdatedEvents(ctx context.Context, since time.Time) (*UpdatesResult, error)
	SequenceNumber(ctx context.Context) (int64, error)
}

// FolderSync provides delta queries per folder.
type FolderSync interface {
	UpdatedEventsInFolder(ctx context.Context, folderID string, since time.Time) (*UpdatesResult, error)
	UpdatedEventsOfUser(ctx context.Context, since time.Time) (*UpdatesResult, error)
	SequenceNumber(ctx context.Context, folderID string) (int64, error)
}

// BasicSearch searches the single folder of a flat account.
type BasicSearch interface {
	SearchEvents(ctx context.Context, term SearchTerm) ([]*Event, error)
}

// FolderSearch searches the given folders, or all searchable folders when
// folderIDs is nil.
type FolderSearch interface {
	SearchEvents(ctx context.Context, folderIDs []string, term SearchTerm) (map[string]EventsResult, error)
}

// CTagAware exposes a collection tag that changes whenever the account's
// content changes.
type CTagAware interface {
	CTag(ctx context.Context) (string, error)
}

// PersonalAlarms manages the alarms of the current user.
type PersonalAlarms interface {
	UpdateAlarms(ctx context.Context, id EventID, alarms []Alarm, clientTimestamp int64) (*CalendarResult, error)
	AlarmTriggers(ctx context.Context, actions []string) ([]AlarmTrigger, error)
}

// SchedulingAware analyzes and applies incoming iTIP scheduling messages.
type SchedulingAware interface {
	Analyze(ctx context.Context, message *SchedulingMessage) (*SchedulingAnalysis, error)
	HandleIncoming(ctx context.Context, message *SchedulingMessage, attendee Attendee) (*CalendarResult, error)
}

// Backend is the access object for one account, created by Provider.Connect.
// Each field holds the implementation of one capability group or nil. A
// backend must populate exactly the groups its provider declares; the
// composition layer dispatches on the declared set instead of probing types.
//
// Backends are used by a single composition engine and never concurrently
// for the same account within one batch.
type Backend struct {
	Basic        BasicCalendar
	Folders      FolderCalendar
	Groupware    GroupwareCalendar
	BasicSync    BasicSync
	FolderSync   FolderSync
	BasicSearch  BasicSearch
	FolderSearch FolderSearch
	CTag         CTagAware
	Alarms       PersonalAlarms
	Scheduling   SchedulingAware

	// Close releases resources held by the backend. Optional.
	Close func() error
}

// Capabilities derives the capability set from the populated fields.
func (b *Backend) Capabilities() Capability {
	var c Capability
	if b.Basic != nil {
		c |= CapBasic
	}
	if b.Folders != nil || b.Groupware != nil {
		c |= CapFolders
	}
	if b.Groupware != nil {
		c |= CapGroupware
	}
	if b.BasicSync != nil || b.FolderSync != nil {
		c |= CapSync
	}
	if b.BasicSearch != nil || b.FolderSearch != nil {
		c |= CapSearch
	}
	if b.CTag != nil {
		c |= CapCTag
	}
	if b.Alarms != nil {
		c |= CapAlarms
	}
	if b.Scheduling != nil {
		c |= CapScheduling
	}
	return c
}

// FolderAccess returns the most capable folder-structured interface.
func (b *Backend) FolderAccess() FolderCalendar {
	if b.Groupware != nil {
		return b.Groupware
	}
	return b.Folders
}
