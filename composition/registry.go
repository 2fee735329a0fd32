package composition

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/calmesh/core"
)

// bound is an account together with its provider and connected backend.
type bound struct {
	account  core.Account
	provider core.Provider
	backend  *core.Backend
}

func (b *bound) id() core.AccountID { return b.account.ID }

// entry holds the cached state of one account. mu serializes the lazy
// connect so that concurrent first uses connect exactly once.
type entry struct {
	mu      sync.Mutex
	account *core.Account
	backend *bound
}

// registry resolves account handles and owns the backends connected on
// behalf of one Access instance. Nothing is shared with other instances.
type registry struct {
	session   core.Session
	accounts  core.AccountService
	providers ProviderLookup
	logger    *loggerAdapter

	mu      sync.Mutex
	entries map[core.AccountID]*entry
	closed  bool
}

func newRegistry(session core.Session, accounts core.AccountService, providers ProviderLookup, logger *loggerAdapter) *registry {
	return &registry{
		session:   session,
		accounts:  accounts,
		providers: providers,
		logger:    logger,
		entries:   make(map[core.AccountID]*entry),
	}
}

func (r *registry) entry(id core.AccountID) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
	}
	return e
}

// Resolve returns the metadata of an account of the session's principal.
func (r *registry) Resolve(ctx context.Context, id core.AccountID) (core.Account, error) {
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.resolveLocked(ctx, id, e)
}

func (r *registry) resolveLocked(ctx context.Context, id core.AccountID, e *entry) (core.Account, error) {
	if e.account != nil {
		return *e.account, nil
	}
	acc, err := r.accounts.Account(ctx, r.session, id)
	if err != nil {
		de := core.AsError(err).Clone()
		de.Account = id
		return core.Account{}, de
	}
	e.account = &acc
	return acc, nil
}

// Backend returns the connected backend of an account, connecting it on first
// use. Connect failures are not cached, so a later call may retry.
func (r *registry) Backend(ctx context.Context, id core.AccountID) (*bound, error) {
	e := r.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.backend != nil {
		return e.backend, nil
	}
	acc, err := r.resolveLocked(ctx, id, e)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers.Provider(acc.ProviderID)
	if !ok {
		de := core.Unsupported(acc.ProviderID)
		de.Message = "provider " + acc.ProviderID + " is not available"
		de.Account = id
		return nil, de
	}

	start := time.Now()
	backend, err := provider.Connect(ctx, r.session, acc)
	if err == nil && backend == nil {
		err = core.NewError(core.ErrUnexpected, "provider %q returned no backend", provider.ID())
	}
	if err != nil {
		de := core.AsError(err).Clone()
		de.Account = id
		de.Provider = provider.ID()
		r.logger.LogWarn("calendar.backend.connect.failed", "account", int(id), "provider", provider.ID(), "error", err.Error())
		return nil, de
	}
	if got, want := backend.Capabilities(), provider.Capabilities(); got != want {
		closeBackend(backend)
		de := core.NewError(core.ErrCapabilityMismatch, "backend implements %s, provider declares %s", got, want)
		de.Account = id
		de.Provider = provider.ID()
		return nil, de
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		closeBackend(backend)
		return nil, core.NewError(core.ErrUnexpected, "composition engine closed")
	}

	r.logger.LogDebug("calendar.backend.connect",
		"account", int(id),
		"provider", provider.ID(),
		"capabilities", backend.Capabilities().String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	e.backend = &bound{account: acc, provider: provider, backend: backend}
	return e.backend, nil
}

// Accounts lists the principal's accounts whose provider declares every
// capability of filter. Only the declared sets are consulted; no backend is
// connected. Accounts of unregistered providers are skipped and reported as
// warnings.
func (r *registry) Accounts(ctx context.Context, filter core.Capability) ([]core.Account, []error, error) {
	all, err := r.accounts.Accounts(ctx, r.session)
	if err != nil {
		return nil, nil, core.AsError(err)
	}
	var (
		out      []core.Account
		warnings []error
	)
	for _, acc := range all {
		provider, ok := r.providers.Provider(acc.ProviderID)
		if !ok {
			w := core.Unsupported(acc.ProviderID)
			w.Message = "provider " + acc.ProviderID + " is not available"
			w.Account = acc.ID
			warnings = append(warnings, w)
			continue
		}
		if !provider.Capabilities().Has(filter) {
			continue
		}
		r.remember(acc)
		out = append(out, acc)
	}
	return out, warnings, nil
}

// Declared returns the capability set the account's provider declares.
func (r *registry) Declared(acc core.Account) core.Capability {
	if p, ok := r.providers.Provider(acc.ProviderID); ok {
		return p.Capabilities()
	}
	return 0
}

func (r *registry) remember(acc core.Account) {
	e := r.entry(acc.ID)
	e.mu.Lock()
	if e.account == nil {
		cp := acc
		e.account = &cp
	}
	e.mu.Unlock()
}

// Evict closes and forgets the backend of an account, e.g. after the account
// was deleted.
func (r *registry) Evict(id core.AccountID) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend != nil {
		closeBackend(e.backend.backend)
	}
}

// Close closes every backend connected so far.
func (r *registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[core.AccountID]*entry)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		e.mu.Lock()
		if e.backend != nil {
			if err := closeBackend(e.backend.backend); err != nil {
				errs = append(errs, err)
			}
		}
		e.mu.Unlock()
	}
	return errors.Join(errs...)
}

func closeBackend(b *core.Backend) error {
	if b == nil || b.Close == nil {
		return nil
	}
	return b.Close()
}
