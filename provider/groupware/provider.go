package groupware

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/logging"
)

// ProviderID is the id of the internal groupware provider.
const ProviderID = "groupware"

// Capabilities is the static capability set of the provider.
const Capabilities = core.CapFolders | core.CapGroupware | core.CapSync | core.CapSearch |
	core.CapCTag | core.CapAlarms | core.CapScheduling

// Options configures the provider.
type Options struct {
	// Address maps a user to its calendar user address. Defaults to
	// mailto:user<id>@calmesh.local.
	Address func(userID int) string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger provides structured logging. Defaults to a no-op logger.
	Logger logging.Logger
}

// Provider is the internal groupware core.Provider.
type Provider struct {
	store  *store
	opts   Options
	logger logging.Logger
}

var _ core.Provider = (*Provider)(nil)

// New creates the provider with an empty data set.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Address: func(userID int) string { return fmt.Sprintf("mailto:user%d@calmesh.local", userID) },
		Now:     time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Provider{store: newStore(opts.Now), opts: opts, logger: opts.Logger}
}

func (p *Provider) ID() string { return ProviderID }

func (p *Provider) DisplayName() string { return "Groupware" }

func (p *Provider) Capabilities() core.Capability { return Capabilities }

// Connect returns a backend bound to the session's user. Only the internal
// account is served.
func (p *Provider) Connect(_ context.Context, session core.Session, account core.Account) (*core.Backend, error) {
	if account.ID != core.DefaultAccountID {
		return nil, core.NewError(core.ErrUnsupportedOperation, "groupware serves the internal account only, not %d", account.ID)
	}
	p.logger.Debug("groupware.connect", "user", session.UserID, "session", session.ID)
	b := &backend{
		cal:    p.store.calendar(session.UserID, p.opts.Address(session.UserID)),
		now:    p.opts.Now,
		logger: p.logger,
	}
	return &core.Backend{
		Groupware:    b,
		FolderSync:   b,
		FolderSearch: b,
		CTag:         b,
		Alarms:       b,
		Scheduling:   b,
	}, nil
}

// Address returns the calendar user address of a user.
func (p *Provider) Address(userID int) string { return p.opts.Address(userID) }

// backend is the per-connection view on one user's calendar.
type backend struct {
	cal    *calendar
	now    func() time.Time
	logger logging.Logger
}

func (b *backend) stamp() time.Time {
	return b.now().UTC().Truncate(time.Millisecond)
}
