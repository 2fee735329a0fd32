// Package calmesh provides a high-level facade over the calendar composition
// engine. Most applications interact with this package by:
//  1. Creating a CalMesh via New() or FromConfig() (optionally overriding the
//     default providers and the in-memory account store)
//  2. Opening one composition.Access per caller session via Access()
//  3. Closing the Access at the end of the interaction
//
// The facade owns the long-lived parts (provider registry, account store,
// free/busy providers) while every Access owns the short-lived backends of
// one session. The defaults (internal groupware plus ICS subscriptions, an
// in-memory account store) are safe for local development and testing.
package calmesh

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/calmesh/account"
	"github.com/hupe1980/calmesh/composition"
	"github.com/hupe1980/calmesh/config"
	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/logging"
	"github.com/hupe1980/calmesh/provider/groupware"
	"github.com/hupe1980/calmesh/provider/ical"
)

// Options configures the CalMesh instance.
type Options struct {
	// Config tunes every composition engine handed out.
	Config composition.Config

	// Accounts is the account management collaborator. Defaults to an
	// in-memory store whose internal account uses the groupware provider.
	Accounts core.AccountService

	// Providers are the registered calendar providers. Defaults to the
	// groupware and ical providers.
	Providers []core.Provider

	// FreeBusy lists the free/busy providers. Defaults to those of the
	// default providers when Providers is not set.
	FreeBusy []core.FreeBusyProvider

	// ICal configures the default ical provider.
	ICal []func(o *ical.Options)

	// Groupware configures the default groupware provider.
	Groupware []func(o *groupware.Options)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// CalMesh is the high-level facade aggregating providers, account store and
// engine configuration.
type CalMesh struct {
	opts      Options
	providers composition.ProviderSet
	closers   []func() error
}

// New creates a CalMesh instance with optional overrides.
func New(optFns ...func(o *Options)) (*CalMesh, error) {
	opts := Options{
		Config: composition.DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Accounts == nil {
		opts.Accounts = account.NewInMemoryStore()
	}

	if opts.Providers == nil {
		gw := groupware.New(append([]func(o *groupware.Options){func(o *groupware.Options) {
			o.Logger = opts.Logger
		}}, opts.Groupware...)...)
		feeds, err := ical.New(append([]func(o *ical.Options){func(o *ical.Options) {
			o.Accounts = opts.Accounts
			o.Logger = opts.Logger
		}}, opts.ICal...)...)
		if err != nil {
			return nil, err
		}
		opts.Providers = []core.Provider{gw, feeds}
		if opts.FreeBusy == nil {
			opts.FreeBusy = []core.FreeBusyProvider{gw.FreeBusy(), feeds.FreeBusy()}
		}
	}

	set, err := composition.NewProviderSet(opts.Providers...)
	if err != nil {
		return nil, err
	}
	return &CalMesh{opts: opts, providers: set}, nil
}

// FromConfig creates a CalMesh from a configuration file's content. The
// sqlite account store is opened (and its schema created) here; Close
// releases it.
func FromConfig(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*CalMesh, error) {
	logger := cfg.Logger()
	var closers []func() error

	var accounts core.AccountService
	switch cfg.Accounts.Driver {
	case config.DriverSQLite:
		db, err := sql.Open("sqlite", cfg.Accounts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open account store: %w", err)
		}
		db.SetMaxOpenConns(1)
		store, err := account.NewSQLiteStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		accounts = store
		closers = append(closers, db.Close)
	default:
		accounts = account.NewInMemoryStore()
	}

	domain := cfg.Groupware.AddressDomain
	m, err := New(append([]func(o *Options){func(o *Options) {
		o.Config = cfg.Composition()
		o.Accounts = accounts
		o.Logger = logger
		o.ICal = []func(o *ical.Options){func(o *ical.Options) {
			o.Refresh = cfg.ICal.Refresh
			o.Timeout = cfg.ICal.Timeout
			o.AllowFiles = cfg.ICal.AllowFiles
		}}
		o.Groupware = []func(o *groupware.Options){func(o *groupware.Options) {
			o.Address = func(userID int) string { return fmt.Sprintf("mailto:user%d@%s", userID, domain) }
		}}
	}}, optFns...)...)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	m.closers = closers
	return m, nil
}

// Access opens a composition engine for one caller session. The caller
// must Close it.
func (m *CalMesh) Access(session core.Session) *composition.Access {
	return composition.New(session, m.opts.Accounts, m.providers, func(o *composition.Options) {
		o.Config = m.opts.Config
		o.FreeBusy = m.opts.FreeBusy
		o.Logger = m.opts.Logger
	})
}

// Accounts returns the account store.
func (m *CalMesh) Accounts() core.AccountService { return m.opts.Accounts }

// Providers returns the ids of the registered providers.
func (m *CalMesh) Providers() []string { return m.providers.IDs() }

// Subscribe adds an ICS feed account for the session's user and returns the
// composite id of its folder.
func (m *CalMesh) Subscribe(ctx context.Context, session core.Session, name, url string) (string, error) {
	a := m.Access(session)
	defer a.Close()
	return a.CreateFolder(ctx, ical.ProviderID, core.Folder{Name: name, Subscribed: true}, map[string]string{ical.ConfigURL: url})
}

// Close releases resources opened by FromConfig.
func (m *CalMesh) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	m.closers = nil
	return first
}

