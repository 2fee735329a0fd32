package composition

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/fanout"
	"github.com/hupe1980/calmesh/idmangle"
)

// DefaultFolder returns the default folder of the internal account.
func (a *Access) DefaultFolder(ctx context.Context) (*core.AccountFolder, error) {
	var out *core.AccountFolder
	err := a.defaultAccount(ctx, "defaultFolder", func(b *bound) error {
		gw, err := b.groupware()
		if err != nil {
			return err
		}
		f, err := gw.DefaultFolder(ctx)
		if err != nil {
			return err
		}
		out = exportFolder(b, f)
		return nil
	})
	return out, err
}

type folderList struct {
	folders []*core.AccountFolder
	err     error
}

// VisibleFolders lists the folders of the given type over all accounts.
// Groupware backends filter by type; other backends only contribute private
// folders. Accounts that fail are reported as warnings; flat accounts still
// contribute their folder, carrying the failure as AccountError.
func (a *Access) VisibleFolders(ctx context.Context, folderType core.FolderType) ([]*core.AccountFolder, error) {
	accounts, err := a.capableAccounts(ctx, 0)
	if err != nil {
		return nil, err
	}

	jobs := make([]fanout.Job[core.AccountID, folderList], 0, len(accounts))
	for _, acc := range accounts {
		if !a.registry.Declared(acc).Has(core.CapGroupware) && folderType != core.FolderTypePrivate {
			continue
		}
		jobs = append(jobs, fanout.Job[core.AccountID, folderList]{
			Label: "visibleFolders",
			Keys:  []core.AccountID{acc.ID},
			Run: func(ctx context.Context) (map[core.AccountID]folderList, error) {
				var list []*core.AccountFolder
				err := a.withBackend(ctx, acc.ID, "visibleFolders", func(b *bound) error {
					folders, err := visibleFolders(ctx, b, folderType)
					for _, f := range folders {
						list = append(list, exportFolder(b, f))
					}
					return err
				})
				if err != nil {
					return nil, err
				}
				return map[core.AccountID]folderList{acc.ID: {folders: list}}, nil
			},
		})
	}

	start := time.Now()
	out := fanout.Collect(ctx, a.exec, jobs, fanout.Spec[core.AccountID, folderList]{
		Failed: func(_ core.AccountID, err error) folderList { return folderList{err: err} },
	})

	var (
		folders  []*core.AccountFolder
		failures int
	)
	for _, acc := range accounts {
		res, ok := out.Results[acc.ID]
		if !ok {
			continue
		}
		if res.err != nil {
			failures++
			a.warn(res.err)
			if caps := a.registry.Declared(acc); !caps.Any(core.CapFolders) {
				f := flatFolder(acc, caps)
				if f.AccountError == nil {
					f.AccountError = res.err
				}
				folders = append(folders, &core.AccountFolder{
					Folder:     withCompositeID(acc.ID, f),
					Account:    acc.ID,
					ProviderID: acc.ProviderID,
				})
			}
			continue
		}
		folders = append(folders, res.folders...)
	}
	a.logger.fanOut("visibleFolders", len(jobs), start, failures)
	return folders, nil
}

func withCompositeID(id core.AccountID, f core.Folder) core.Folder {
	f.ID = idmangle.EncodeFolder(id, f.ID)
	return f
}

func visibleFolders(ctx context.Context, b *bound, folderType core.FolderType) ([]core.Folder, error) {
	if gw := b.backend.Groupware; gw != nil {
		return gw.VisibleFoldersOfType(ctx, folderType)
	}
	if folderType != core.FolderTypePrivate {
		return nil, nil
	}
	if fc := b.backend.Folders; fc != nil {
		return fc.VisibleFolders(ctx)
	}
	if b.backend.Basic != nil {
		f, err := basicFolder(ctx, b)
		if err != nil {
			return nil, err
		}
		return []core.Folder{f}, nil
	}
	return nil, core.Unsupported(b.provider.ID())
}

// basicFolder builds the folder of a flat account, preferring the settings
// reported by the backend over the stored ones.
func basicFolder(ctx context.Context, b *bound) (core.Folder, error) {
	acc := b.account
	settings, err := b.backend.Basic.Settings(ctx)
	if err != nil {
		return core.Folder{}, err
	}
	acc.Settings = settings
	return flatFolder(acc, b.provider.Capabilities()), nil
}

// Folder returns one folder.
func (a *Access) Folder(ctx context.Context, folderID string) (*core.AccountFolder, error) {
	id, local, err := idmangle.DecodeFolder(folderID)
	if err != nil {
		return nil, err
	}
	var out *core.AccountFolder
	err = a.withBackend(ctx, id, "folder", func(b *bound) error {
		f, err := folder(ctx, b, local)
		if err != nil {
			return err
		}
		out = exportFolder(b, f)
		return nil
	})
	return out, err
}

func folder(ctx context.Context, b *bound, local string) (core.Folder, error) {
	if fc := b.folders(); fc != nil {
		return fc.Folder(ctx, local)
	}
	if _, err := b.flat(local); err != nil {
		return core.Folder{}, err
	}
	return basicFolder(ctx, b)
}

// Folders returns several folders, one envelope per distinct requested id in
// request order.
func (a *Access) Folders(ctx context.Context, folderIDs []string) ([]core.Keyed[string, core.FolderResult], error) {
	p, err := idmangle.PartitionFolders(folderIDs)
	if err != nil {
		return nil, err
	}
	jobs := make([]fanout.Job[string, core.FolderResult], 0, p.Len())
	for _, id := range p.Accounts {
		locals := p.Groups[id]
		keys := encodeFolders(id, locals)
		jobs = append(jobs, fanout.Job[string, core.FolderResult]{
			Label: "folders",
			Keys:  keys,
			Run: func(ctx context.Context) (map[string]core.FolderResult, error) {
				b, err := a.registry.Backend(ctx, id)
				if err != nil {
					return nil, err
				}
				out := make(map[string]core.FolderResult, len(locals))
				for i, local := range locals {
					start := time.Now()
					f, err := folder(ctx, b, local)
					a.logger.dispatch("folder", id, b.provider.ID(), start, err)
					if err != nil {
						out[keys[i]] = core.FolderResult{Err: withUniqueIDs(err, b)}
						continue
					}
					out[keys[i]] = core.FolderResult{Folder: exportFolder(b, f)}
				}
				return out, nil
			},
		})
	}
	out := a.collectFolders(ctx, "folders", jobs)
	return fanout.Reorder(out.Results, folderIDs, func(string) core.FolderResult {
		return core.FolderResult{Err: core.ErrNoResultProduced}
	}), nil
}

func (a *Access) collectFolders(ctx context.Context, op string, jobs []fanout.Job[string, core.FolderResult]) fanout.Outcome[string, core.FolderResult] {
	start := time.Now()
	out := fanout.Collect(ctx, a.exec, jobs, fanout.Spec[string, core.FolderResult]{
		Failed: func(_ string, err error) core.FolderResult { return core.FolderResult{Err: err} },
	})
	failures := 0
	for _, r := range out.Results {
		if r.Err != nil {
			failures++
		}
	}
	a.logger.fanOut(op, len(jobs), start, failures)
	return out
}

func encodeFolders(id core.AccountID, locals []string) []string {
	keys := make([]string, len(locals))
	for i, local := range locals {
		keys[i] = idmangle.EncodeFolder(id, local)
	}
	return keys
}

// CreateFolder creates a folder. When folder.ParentID denotes a folder of an
// existing account whose provider matches providerID (or providerID is
// empty), the folder is created within that account. Otherwise a new account
// of providerID is provisioned, configured with config, and the composite id
// of its default folder is returned.
func (a *Access) CreateFolder(ctx context.Context, providerID string, f core.Folder, config map[string]string) (string, error) {
	if f.ParentID != "" {
		id, localParent, err := idmangle.DecodeFolder(f.ParentID)
		if err != nil {
			return "", err
		}
		acc, err := a.registry.Resolve(ctx, id)
		switch {
		case err == nil && (providerID == "" || providerID == acc.ProviderID):
			var created string
			err := a.withBackend(ctx, id, "createFolder", func(b *bound) error {
				fc := b.folders()
				if fc == nil {
					return core.Unsupported(b.provider.ID())
				}
				local := f
				local.ID = ""
				local.ParentID = localParent
				newID, err := fc.CreateFolder(ctx, local)
				if err != nil {
					return err
				}
				created = idmangle.EncodeFolder(id, newID)
				return nil
			})
			return created, err
		case err != nil && !errors.Is(err, core.ErrAccountNotFound):
			return "", err
		}
	}

	if providerID == "" {
		return "", core.NewError(core.ErrMandatoryField, "missing provider for new calendar account")
	}
	if _, ok := a.registry.providers.Provider(providerID); !ok {
		e := core.Unsupported(providerID)
		e.Message = "provider " + providerID + " is not available"
		return "", e
	}
	acc, err := a.accounts.CreateAccount(ctx, a.session, providerID, core.Settings{
		Name:       f.Name,
		Subscribed: f.Subscribed,
		Color:      f.Color,
		Config:     config,
	})
	if err != nil {
		return "", core.AsError(err)
	}
	a.logger.LogInfo("calendar.account.provisioned", "account", int(acc.ID), "provider", providerID)
	return idmangle.EncodeFolder(acc.ID, core.BasicFolderID), nil
}

// UpdateFolder updates a folder and returns its (possibly changed) composite
// id. Updating the folder of a flat account updates the account settings.
func (a *Access) UpdateFolder(ctx context.Context, folderID string, f core.Folder, clientTimestamp int64) (string, error) {
	id, local, err := idmangle.DecodeFolder(folderID)
	if err != nil {
		return "", err
	}
	var (
		updated         string
		settingsChanged bool
	)
	err = a.withBackend(ctx, id, "updateFolder", func(b *bound) error {
		if fc := b.folders(); fc != nil {
			lf := f
			lf.ID = local
			if lf.ParentID != "" {
				parentAccount, parent, err := idmangle.DecodeFolder(lf.ParentID)
				if err != nil {
					return err
				}
				if parentAccount != id {
					return core.NewError(core.ErrUnsupportedOperation, "moving folders between accounts is not supported")
				}
				lf.ParentID = parent
			}
			newID, err := fc.UpdateFolder(ctx, local, lf, clientTimestamp)
			if err != nil {
				return err
			}
			updated = idmangle.EncodeFolder(id, newID)
			return nil
		}
		if _, err := b.flat(local); err != nil {
			return err
		}
		settings := b.account.Settings
		settings.Name = f.Name
		settings.Subscribed = f.Subscribed
		settings.Color = f.Color
		if _, err := a.accounts.UpdateAccount(ctx, a.session, id, settings, clientTimestamp); err != nil {
			return err
		}
		updated = folderID
		settingsChanged = true
		return nil
	})
	if err != nil {
		return "", err
	}
	if settingsChanged {
		// settings changed; reconnect lazily with fresh metadata
		a.registry.Evict(id)
	}
	return updated, nil
}

// DeleteFolder deletes a folder. Deleting the folder of a flat account
// deletes the account.
func (a *Access) DeleteFolder(ctx context.Context, folderID string, clientTimestamp int64) error {
	id, local, err := idmangle.DecodeFolder(folderID)
	if err != nil {
		return err
	}
	accountDeleted := false
	err = a.withBackend(ctx, id, "deleteFolder", func(b *bound) error {
		if fc := b.folders(); fc != nil {
			return fc.DeleteFolder(ctx, local, clientTimestamp)
		}
		if _, err := b.flat(local); err != nil {
			return err
		}
		if err := a.accounts.DeleteAccount(ctx, a.session, id, clientTimestamp); err != nil {
			return err
		}
		accountDeleted = true
		return nil
	})
	if accountDeleted {
		a.registry.Evict(id)
	}
	return err
}
