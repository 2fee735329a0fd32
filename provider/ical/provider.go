package ical

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/logging"
)

// ProviderID is the id of the ICS subscription provider.
const ProviderID = "ical"

// Capabilities is the static capability set of the provider.
const Capabilities = core.CapBasic | core.CapSync | core.CapSearch | core.CapCTag

// Account configuration keys.
const (
	// ConfigURL is the feed URL (http, https, webcal or file).
	ConfigURL = "url"
	// ConfigOwner is the calendar user address whose availability the feed
	// publishes. Optional; enables free/busy answers for that address.
	ConfigOwner = "owner"
)

// DefaultRefresh is the default refresh schedule: every 30 minutes.
const DefaultRefresh = "*/30 * * * *"

// DefaultTombstoneRetention is how long removed feed events are reported as
// deleted by UpdatedEvents.
const DefaultTombstoneRetention = 30 * 24 * time.Hour

// Options configures the provider.
type Options struct {
	// Fetcher loads feeds. Defaults to an HTTPFetcher.
	Fetcher Fetcher

	// Refresh is a standard five-field cron expression. A cached feed is
	// fetched again once the schedule has a tick after the last fetch.
	Refresh string

	// Timeout bounds a single fetch. Zero means no extra bound.
	Timeout time.Duration

	// AllowFiles lets the default fetcher read file:// feeds.
	AllowFiles bool

	// TombstoneRetention bounds how long removed events are remembered.
	// Zero keeps them for the lifetime of the process.
	TombstoneRetention time.Duration

	// Accounts lists the accounts free/busy queries look at. Without it the
	// free/busy provider answers nothing.
	Accounts core.AccountService

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger provides structured logging. Defaults to a no-op logger.
	Logger logging.Logger
}

// Provider is the ICS subscription core.Provider. Feed content is cached per
// URL and shared by all connections.
type Provider struct {
	cache    *feedCache
	accounts core.AccountService
	logger   logging.Logger
}

var _ core.Provider = (*Provider)(nil)

// New creates the provider. It fails if the refresh schedule is invalid.
func New(optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{
		Refresh:            DefaultRefresh,
		Timeout:            15 * time.Second,
		TombstoneRetention: DefaultTombstoneRetention,
		Now:                time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewHTTPFetcher(nil, opts.Timeout, func(o *HTTPFetcherOptions) {
			o.AllowFiles = opts.AllowFiles
		})
	}
	schedule, err := cron.ParseStandard(opts.Refresh)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", opts.Refresh, err)
	}
	return &Provider{
		cache: &feedCache{
			fetcher:   opts.Fetcher,
			schedule:  schedule,
			timeout:   opts.Timeout,
			retention: opts.TombstoneRetention,
			now:       opts.Now,
			logger:    opts.Logger,
			feeds:     make(map[string]*feed),
		},
		accounts: opts.Accounts,
		logger:   opts.Logger,
	}, nil
}

func (p *Provider) ID() string { return ProviderID }

func (p *Provider) DisplayName() string { return "iCalendar subscription" }

func (p *Provider) Capabilities() core.Capability { return Capabilities }

// Connect returns a flat backend for the feed configured on the account.
// Nothing is fetched until the backend is used.
func (p *Provider) Connect(_ context.Context, session core.Session, account core.Account) (*core.Backend, error) {
	url := strings.TrimSpace(account.Settings.Config[ConfigURL])
	if url == "" {
		e := core.NewError(core.ErrMandatoryField, "account %d has no feed url", account.ID)
		e.Account = account.ID
		return nil, e
	}
	p.logger.Debug("ical.connect", "account", int(account.ID), "user", session.UserID, "url", redactURL(url))
	b := &backend{cache: p.cache, account: account, url: url}
	return &core.Backend{
		Basic:       b,
		BasicSync:   b,
		BasicSearch: b,
		CTag:        b,
	}, nil
}
