package composition

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/fanout"
)

// Access is the unified calendar API of one caller session. It routes every
// operation to the account a composite identifier denotes and, for
// operations spanning several accounts, runs the per-account work
// concurrently and reassembles the results in the requested order.
//
// An Access owns the backends it connects. Create one per caller interaction
// and Close it at the end; instances never share backends.
//
// Concurrency Model:
//   - The methods of one Access may be called from one goroutine at a time.
//   - Internally, work for different accounts runs on a bounded worker pool.
//   - All targets of one account are handled by one job, so a backend is
//     never called concurrently within a batch.
type Access struct {
	id       string
	session  core.Session
	accounts core.AccountService
	registry *registry
	exec     *fanout.Executor
	freeBusy []core.FreeBusyProvider
	config   Config
	logger   *loggerAdapter

	warnMu   sync.Mutex
	warnings []error
}

// New creates a composition engine instance for a session.
func New(session core.Session, accounts core.AccountService, providers ProviderLookup, optFns ...func(o *Options)) *Access {
	opts := Options{
		Config: DefaultConfig,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := newLoggerAdapter(opts.Logger, session)

	return &Access{
		id:       uuid.NewString(),
		session:  session,
		accounts: accounts,
		registry: newRegistry(session, accounts, providers, logger),
		exec:     fanout.New(opts.Config.executor(), logger.Logger()),
		freeBusy: opts.FreeBusy,
		config:   opts.Config,
		logger:   logger,
	}
}

// ID returns the unique id of this engine instance.
func (a *Access) ID() string { return a.id }

// Session returns the session the instance works for.
func (a *Access) Session() core.Session { return a.session }

// Warnings returns the non-fatal problems collected so far, e.g. accounts
// that could not contribute to a listing over all accounts.
func (a *Access) Warnings() []error {
	a.warnMu.Lock()
	defer a.warnMu.Unlock()
	return append([]error(nil), a.warnings...)
}

func (a *Access) warn(errs ...error) {
	if len(errs) == 0 {
		return
	}
	a.warnMu.Lock()
	a.warnings = append(a.warnings, errs...)
	a.warnMu.Unlock()
	for _, err := range errs {
		a.logger.LogWarn("calendar.warning", "error", err.Error())
	}
}

// Close releases every backend connected by this instance.
func (a *Access) Close() error {
	return a.registry.Close()
}

// withBackend runs fn against the backend of an account. Errors are
// re-contextualized with the account and composite folder ids.
func (a *Access) withBackend(ctx context.Context, id core.AccountID, op string, fn func(b *bound) error) error {
	b, err := a.registry.Backend(ctx, id)
	if err != nil {
		return err
	}
	start := time.Now()
	err = fn(b)
	a.logger.dispatch(op, id, b.provider.ID(), start, err)
	if err != nil {
		return withUniqueIDs(err, b)
	}
	return nil
}

// defaultAccount runs fn against the internal default account.
func (a *Access) defaultAccount(ctx context.Context, op string, fn func(b *bound) error) error {
	return a.withBackend(ctx, core.DefaultAccountID, op, fn)
}

// capableAccounts lists accounts whose provider declares filter; unknown
// providers become warnings.
func (a *Access) capableAccounts(ctx context.Context, filter core.Capability) ([]core.Account, error) {
	accs, warnings, err := a.registry.Accounts(ctx, filter)
	if err != nil {
		return nil, err
	}
	a.warn(warnings...)
	return accs, nil
}
