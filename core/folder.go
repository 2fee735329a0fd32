package core

import "time"

// BasicFolderID is the id of the single well-known folder of a flat account.
const BasicFolderID = "0"

// FolderType classifies groupware folders.
type FolderType string

const (
	FolderTypePrivate FolderType = "private"
	FolderTypeShared  FolderType = "shared"
	FolderTypePublic  FolderType = "public"
)

// Folder is a calendar folder as exposed by a backend. ParentID is only set
// for groupware folders living in a hierarchy.
type Folder struct {
	ID           string            `json:"id"`
	ParentID     string            `json:"parent,omitempty"`
	Name         string            `json:"name"`
	Type         FolderType        `json:"type,omitempty"`
	Subscribed   bool              `json:"subscribed"`
	Color        string            `json:"color,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	Capabilities Capability        `json:"capabilities"`
	Properties   map[string]string `json:"properties,omitempty"`
	AccountError error             `json:"-"`
}

// AccountFolder is a folder tagged with the account it belongs to. It is the
// caller-facing folder shape; its ids are composite.
type AccountFolder struct {
	Folder
	Account    AccountID `json:"account"`
	ProviderID string    `json:"provider"`
}
