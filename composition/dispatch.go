package composition

import (
	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/idmangle"
)

// Capability probing happens on the declared interface groups of a backend,
// most capable first: groupware, then folders, then basic for reads;
// folder-scoped before basic for sync and search.

// folders returns the folder-structured access of a backend or nil.
func (b *bound) folders() core.FolderCalendar {
	return b.backend.FolderAccess()
}

// groupware returns the groupware access or an unsupported error.
func (b *bound) groupware() (core.GroupwareCalendar, error) {
	if b.backend.Groupware != nil {
		return b.backend.Groupware, nil
	}
	return nil, core.Unsupported(b.provider.ID())
}

// flat returns the basic access of a flat backend after checking that the
// local folder id denotes its single folder.
func (b *bound) flat(localFolderID string) (core.BasicCalendar, error) {
	if b.backend.Basic == nil {
		return nil, core.Unsupported(b.provider.ID())
	}
	if err := checkFlatFolder(localFolderID); err != nil {
		return nil, err
	}
	return b.backend.Basic, nil
}

func checkFlatFolder(localFolderID string) error {
	if localFolderID != core.BasicFolderID {
		e := core.NewError(core.ErrFolderMismatch, "flat account has no folder %q", localFolderID)
		e.Folder = localFolderID
		return e
	}
	return nil
}

// withUniqueIDs re-contextualizes an error produced while working on an
// account: the account handle and provider are attached and a local folder id
// is replaced by its composite form. Errors that already carry an account are
// returned unchanged.
func withUniqueIDs(err error, b *bound) error {
	if err == nil {
		return nil
	}
	de := core.AsError(err)
	if de.Account != core.NoAccount {
		return de
	}
	de = de.Clone()
	de.Account = b.id()
	if de.Provider == "" {
		de.Provider = b.provider.ID()
	}
	if de.Folder != "" {
		de.Folder = idmangle.EncodeFolder(b.id(), de.Folder)
	}
	return de
}

// exportEvent returns a copy of ev with composite folder ids.
func exportEvent(id core.AccountID, ev *core.Event) *core.Event {
	if ev == nil {
		return nil
	}
	cp := ev.Clone()
	folder := cp.FolderID
	if folder == "" {
		folder = core.BasicFolderID
	}
	cp.FolderID = idmangle.EncodeFolder(id, folder)
	for i := range cp.Attendees {
		if cp.Attendees[i].Folder != "" {
			cp.Attendees[i].Folder = idmangle.EncodeFolder(id, cp.Attendees[i].Folder)
		}
	}
	return cp
}

func exportEvents(id core.AccountID, events []*core.Event) []*core.Event {
	if events == nil {
		return nil
	}
	out := make([]*core.Event, 0, len(events))
	for _, ev := range events {
		if ev != nil {
			out = append(out, exportEvent(id, ev))
		}
	}
	return out
}

// importEvent returns a copy of a caller supplied event with local folder
// ids of the given account. Folder ids of other accounts are rejected.
func importEvent(id core.AccountID, ev *core.Event) (*core.Event, error) {
	if ev == nil {
		return nil, core.NewError(core.ErrMandatoryField, "missing event")
	}
	cp := ev.Clone()
	if cp.FolderID != "" {
		account, local, err := idmangle.DecodeFolder(cp.FolderID)
		if err != nil {
			return nil, err
		}
		if account != id {
			return nil, core.NewError(core.ErrFolderMismatch, "event folder %q belongs to another account", cp.FolderID)
		}
		cp.FolderID = local
	}
	for i := range cp.Attendees {
		if cp.Attendees[i].Folder == "" {
			continue
		}
		// attendee folders of other accounts are not meaningful here
		if account, local, err := idmangle.DecodeFolder(cp.Attendees[i].Folder); err == nil && account == id {
			cp.Attendees[i].Folder = local
		} else {
			cp.Attendees[i].Folder = ""
		}
	}
	return cp, nil
}

func exportUpdates(id core.AccountID, res *core.UpdatesResult) *core.UpdatesResult {
	if res == nil {
		return nil
	}
	cp := *res
	cp.NewAndModified = exportEvents(id, res.NewAndModified)
	cp.Deleted = exportEvents(id, res.Deleted)
	return &cp
}

func exportCalendarResult(id core.AccountID, res *core.CalendarResult) *core.CalendarResult {
	if res == nil {
		return nil
	}
	cp := &core.CalendarResult{
		FolderID:  idmangle.EncodeFolder(id, res.FolderID),
		Timestamp: res.Timestamp,
	}
	for _, c := range res.Creations {
		cp.Creations = append(cp.Creations, core.CreateResult{Created: exportEvent(id, c.Created)})
	}
	for _, u := range res.Updates {
		cp.Updates = append(cp.Updates, core.UpdateResult{Original: exportEvent(id, u.Original), Updated: exportEvent(id, u.Updated)})
	}
	for _, d := range res.Deletions {
		cp.Deletions = append(cp.Deletions, core.DeleteResult{Timestamp: d.Timestamp, EventID: idmangle.EncodeEvent(id, d.EventID)})
	}
	return cp
}

// exportFolder tags a folder with its account and composite ids.
func exportFolder(b *bound, f core.Folder) *core.AccountFolder {
	f.ID = idmangle.EncodeFolder(b.id(), f.ID)
	if f.ParentID != "" {
		f.ParentID = idmangle.EncodeFolder(b.id(), f.ParentID)
	}
	if f.Capabilities == 0 {
		f.Capabilities = b.provider.Capabilities()
	}
	return &core.AccountFolder{Folder: f, Account: b.id(), ProviderID: b.provider.ID()}
}

// flatFolder synthesizes the single folder of a flat account from its
// settings.
func flatFolder(acc core.Account, caps core.Capability) core.Folder {
	f := core.Folder{
		ID:           core.BasicFolderID,
		Name:         acc.Settings.Name,
		Type:         core.FolderTypePrivate,
		Subscribed:   acc.Settings.Subscribed,
		Color:        acc.Settings.Color,
		LastModified: acc.Settings.LastModified,
		Capabilities: caps,
	}
	if f.Name == "" {
		f.Name = acc.ProviderID
	}
	if f.LastModified.IsZero() {
		f.LastModified = acc.LastModified
	}
	if acc.Settings.Error != "" {
		e := core.NewError(core.ErrUnexpected, "%s", acc.Settings.Error)
		e.Account = acc.ID
		e.Provider = acc.ProviderID
		f.AccountError = e
	}
	return f
}
