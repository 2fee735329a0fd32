package core

import "time"

// Keyed pairs a requested key with its result envelope. Batch operations
// return one Keyed entry per distinct requested key, in request order.
type Keyed[K comparable, V any] struct {
	Key   K
	Value V
}

// EventsResult is the envelope of one folder (or one search scope): either a
// list of events or the error that prevented producing it.
type EventsResult struct {
	Events []*Event `json:"events,omitempty"`
	Err    error    `json:"-"`
}

// EventResult is the per-id envelope of batch event reads.
type EventResult struct {
	Event *Event `json:"event,omitempty"`
	Err   error  `json:"-"`
}

// FolderResult is the per-id envelope of batch folder reads.
type FolderResult struct {
	Folder *AccountFolder `json:"folder,omitempty"`
	Err    error          `json:"-"`
}

// CreateResult, UpdateResult and DeleteResult describe the effect of a write
// on one event.
type CreateResult struct {
	Created *Event `json:"created"`
}

type UpdateResult struct {
	Original *Event `json:"original"`
	Updated  *Event `json:"updated"`
}

type DeleteResult struct {
	Timestamp int64   `json:"timestamp"`
	EventID   EventID `json:"event"`
}

// CalendarResult is the outcome of a write operation in one folder.
type CalendarResult struct {
	FolderID  string         `json:"folder"`
	Timestamp int64          `json:"timestamp"`
	Creations []CreateResult `json:"created,omitempty"`
	Updates   []UpdateResult `json:"updated,omitempty"`
	Deletions []DeleteResult `json:"deleted,omitempty"`
}

// ErrorAwareCalendarResult is the per-key envelope of batch writes.
type ErrorAwareCalendarResult struct {
	Result *CalendarResult `json:"result,omitempty"`
	Err    error           `json:"-"`
}

// UpdatesResult lists the changes since a given point in time.
type UpdatesResult struct {
	NewAndModified []*Event  `json:"new_and_modified"`
	Deleted        []*Event  `json:"deleted"`
	Timestamp      int64     `json:"timestamp"`
	Truncated      bool      `json:"truncated,omitempty"`
	Since          time.Time `json:"-"`
}

// SequenceResult is the per-folder envelope of sequence number queries.
type SequenceResult struct {
	Sequence int64 `json:"sequence"`
	Err      error `json:"-"`
}

// ImportResult is the outcome of importing one event.
type ImportResult struct {
	EventID  EventID `json:"event"`
	UID      string  `json:"uid,omitempty"`
	Index    int     `json:"index"`
	Warnings []error `json:"-"`
	Err      error   `json:"-"`
}
