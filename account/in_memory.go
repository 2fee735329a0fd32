package account

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/calmesh/core"
)

var _ core.AccountService = (*InMemoryStore)(nil)

// InMemoryStore is a volatile core.AccountService storing accounts in a
// process local map. It is safe for concurrent access. Returned accounts are
// copies, so callers cannot mutate internal state.
type InMemoryStore struct {
	opts Options

	mu       sync.RWMutex
	accounts map[core.AccountID]core.Account
	nextID   core.AccountID
}

// NewInMemoryStore constructs an empty in-memory account store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	return &InMemoryStore{
		opts:     defaultOptions(optFns),
		accounts: make(map[core.AccountID]core.Account),
		nextID:   core.DefaultAccountID + 1,
	}
}

// Account implements core.AccountService.
func (s *InMemoryStore) Account(_ context.Context, session core.Session, id core.AccountID) (core.Account, error) {
	if id == core.DefaultAccountID && s.opts.DefaultProvider != "" {
		return defaultAccount(s.opts.DefaultProvider, session.UserID), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok || acc.UserID != session.UserID {
		return core.Account{}, notFound(id)
	}
	return copyAccount(acc), nil
}

// Accounts implements core.AccountService. The internal account comes
// first, the others follow in creation order.
func (s *InMemoryStore) Accounts(_ context.Context, session core.Session) ([]core.Account, error) {
	var out []core.Account
	if s.opts.DefaultProvider != "" {
		out = append(out, defaultAccount(s.opts.DefaultProvider, session.UserID))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var own []core.Account
	for _, acc := range s.accounts {
		if acc.UserID == session.UserID {
			own = append(own, copyAccount(acc))
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].ID < own[j].ID })
	return append(out, own...), nil
}

// CreateAccount implements core.AccountService.
func (s *InMemoryStore) CreateAccount(_ context.Context, session core.Session, providerID string, settings core.Settings) (core.Account, error) {
	if err := validate(providerID); err != nil {
		return core.Account{}, err
	}
	now := s.opts.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	settings = cloneSettings(settings)
	settings.LastModified = now
	acc := core.Account{
		ID:           s.nextID,
		UserID:       session.UserID,
		ProviderID:   providerID,
		Settings:     settings,
		Created:      now,
		LastModified: now,
	}
	s.nextID++
	s.accounts[acc.ID] = acc
	return copyAccount(acc), nil
}

// UpdateAccount implements core.AccountService.
func (s *InMemoryStore) UpdateAccount(_ context.Context, session core.Session, id core.AccountID, settings core.Settings, clientTimestamp int64) (core.Account, error) {
	if id == core.DefaultAccountID {
		return core.Account{}, internalReadOnly("update")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok || acc.UserID != session.UserID {
		return core.Account{}, notFound(id)
	}
	if err := checkTimestamp(acc, clientTimestamp); err != nil {
		return core.Account{}, err
	}
	now := s.opts.Now().UTC()
	acc.Settings = cloneSettings(settings)
	acc.Settings.LastModified = now
	acc.LastModified = now
	s.accounts[id] = acc
	return copyAccount(acc), nil
}

// DeleteAccount implements core.AccountService.
func (s *InMemoryStore) DeleteAccount(_ context.Context, session core.Session, id core.AccountID, clientTimestamp int64) error {
	if id == core.DefaultAccountID {
		return internalReadOnly("delete")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok || acc.UserID != session.UserID {
		return notFound(id)
	}
	if err := checkTimestamp(acc, clientTimestamp); err != nil {
		return err
	}
	delete(s.accounts, id)
	return nil
}

// SetError records a provider error on an account, e.g. after a failed
// feed refresh. It does not count as a modification.
func (s *InMemoryStore) SetError(id core.AccountID, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[id]; ok {
		acc.Settings.Error = msg
		s.accounts[id] = acc
	}
}

func copyAccount(acc core.Account) core.Account {
	acc.Settings = cloneSettings(acc.Settings)
	return acc
}
