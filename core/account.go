package core

import (
	"context"
	"time"
)

// AccountID is the handle of one configured calendar account of a principal.
type AccountID int

const (
	// DefaultAccountID is reserved for the internal groupware account.
	DefaultAccountID AccountID = 0
	// NoAccount marks data that is not attributable to any account.
	NoAccount AccountID = -1
)

// Session identifies the principal a composition engine works for.
type Session struct {
	ID     string `json:"id"`
	UserID int    `json:"user"`
}

// Settings carries the user-visible configuration of an account. Config is
// provider specific (e.g. the feed URL of a subscription).
type Settings struct {
	Name         string            `json:"name"`
	Subscribed   bool              `json:"subscribed"`
	Color        string            `json:"color,omitempty"`
	Config       map[string]string `json:"config,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	Error        string            `json:"error,omitempty"`
}

// Account is the metadata of one calendar account.
type Account struct {
	ID           AccountID `json:"id"`
	UserID       int       `json:"user"`
	ProviderID   string    `json:"provider"`
	Settings     Settings  `json:"settings"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"last_modified"`
}

// AccountService is the account management collaborator. The composition
// layer reads account metadata through it and triggers (but never owns)
// account creation and removal.
type AccountService interface {
	Account(ctx context.Context, session Session, id AccountID) (Account, error)
	Accounts(ctx context.Context, session Session) ([]Account, error)
	CreateAccount(ctx context.Context, session Session, providerID string, settings Settings) (Account, error)
	UpdateAccount(ctx context.Context, session Session, id AccountID, settings Settings, clientTimestamp int64) (Account, error)
	DeleteAccount(ctx context.Context, session Session, id AccountID, clientTimestamp int64) error
}

// Provider is a calendar backend implementation. Capabilities is a static
// property of the implementation; Connect creates the short-lived backend
// access object for one account.
type Provider interface {
	ID() string
	DisplayName() string
	Capabilities() Capability
	Connect(ctx context.Context, session Session, account Account) (*Backend, error)
}
