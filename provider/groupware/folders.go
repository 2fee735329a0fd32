package groupware

import (
	"context"

	"github.com/hupe1980/calmesh/core"
)

func (b *backend) VisibleFolders(ctx context.Context) ([]core.Folder, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	out := make([]core.Folder, 0, len(b.cal.order))
	for _, id := range b.cal.order {
		out = append(out, b.cal.folders[id].folder)
	}
	return out, nil
}

func (b *backend) VisibleFoldersOfType(ctx context.Context, folderType core.FolderType) ([]core.Folder, error) {
	all, err := b.VisibleFolders(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, f := range all {
		if f.Type == folderType {
			out = append(out, f)
		}
	}
	return out, nil
}

func (b *backend) DefaultFolder(ctx context.Context) (core.Folder, error) {
	return b.Folder(ctx, b.cal.defaultID)
}

func (b *backend) Folder(_ context.Context, folderID string) (core.Folder, error) {
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()
	fd, err := b.cal.folderLocked(folderID)
	if err != nil {
		return core.Folder{}, err
	}
	return fd.folder, nil
}

func (b *backend) CreateFolder(_ context.Context, folder core.Folder) (string, error) {
	if folder.Name == "" {
		return "", core.NewError(core.ErrMandatoryField, "missing folder name")
	}
	b.cal.mu.Lock()
	defer b.cal.mu.Unlock()
	if folder.ParentID != "" {
		if _, err := b.cal.folderLocked(folder.ParentID); err != nil {
			return "", err
		}
	}
	now := b.stamp()
	id := b.cal.addFolderLocked(folder, now)
	b.cal.touchLocked(now, nil)
	return id, nil
}

func (b *backend) UpdateFolder(_ context.Context, folderID string, folder core.Folder, clientTimestamp int64) (string, error) {
	b.cal.mu.Lock()
	defer b.cal.mu.Unlock()
	fd, err := b.cal.folderLocked(folderID)
	if err != nil {
		return "", err
	}
	if clientTimestamp != 0 && clientTimestamp < fd.folder.LastModified.UnixMilli() {
		e := core.NewError(core.ErrConflict, "folder %s was modified concurrently", folderID)
		e.Folder = folderID
		return "", e
	}
	if folder.ParentID != "" {
		if folder.ParentID == folderID {
			return "", core.NewError(core.ErrConflict, "folder %s cannot be its own parent", folderID)
		}
		if _, err := b.cal.folderLocked(folder.ParentID); err != nil {
			return "", err
		}
	}
	folder.ID = folderID
	if folder.Type == "" {
		folder.Type = fd.folder.Type
	}
	if folder.Name == "" {
		folder.Name = fd.folder.Name
	}
	fd.folder = folder
	b.cal.touchLocked(b.stamp(), fd)
	return folderID, nil
}

func (b *backend) DeleteFolder(_ context.Context, folderID string, clientTimestamp int64) error {
	b.cal.mu.Lock()
	defer b.cal.mu.Unlock()
	fd, err := b.cal.folderLocked(folderID)
	if err != nil {
		return err
	}
	if folderID == b.cal.defaultID {
		e := core.NewError(core.ErrUnsupportedOperation, "the default folder cannot be deleted")
		e.Folder = folderID
		return e
	}
	if clientTimestamp != 0 && clientTimestamp < fd.folder.LastModified.UnixMilli() {
		e := core.NewError(core.ErrConflict, "folder %s was modified concurrently", folderID)
		e.Folder = folderID
		return e
	}
	now := b.stamp()
	for _, ev := range fd.eventsLocked() {
		ev.LastModified = now
		b.cal.tombstones = append(b.cal.tombstones, ev)
	}
	delete(b.cal.folders, folderID)
	for i, id := range b.cal.order {
		if id == folderID {
			b.cal.order = append(b.cal.order[:i], b.cal.order[i+1:]...)
			break
		}
	}
	b.cal.touchLocked(now, nil)
	return nil
}
