package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/calmesh/core"
)

// FakeProvider is a core.Provider whose backends are produced by a factory.
// It counts Connect calls per account.
type FakeProvider struct {
	ProviderID string
	Caps       core.Capability
	Factory    func(account core.Account) (*core.Backend, error)

	mu       sync.Mutex
	connects map[core.AccountID]int
	total    atomic.Int32
}

// NewFakeProvider creates a provider declaring caps.
func NewFakeProvider(id string, caps core.Capability, factory func(core.Account) (*core.Backend, error)) *FakeProvider {
	return &FakeProvider{ProviderID: id, Caps: caps, Factory: factory, connects: map[core.AccountID]int{}}
}

func (p *FakeProvider) ID() string                     { return p.ProviderID }
func (p *FakeProvider) DisplayName() string            { return "Fake " + p.ProviderID }
func (p *FakeProvider) Capabilities() core.Capability { return p.Caps }

// Connect implements core.Provider.
func (p *FakeProvider) Connect(_ context.Context, _ core.Session, account core.Account) (*core.Backend, error) {
	p.mu.Lock()
	p.connects[account.ID]++
	p.mu.Unlock()
	p.total.Add(1)
	return p.Factory(account)
}

// Connects returns how often Connect was called for an account.
func (p *FakeProvider) Connects(id core.AccountID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects[id]
}

// TotalConnects returns the number of Connect calls.
func (p *FakeProvider) TotalConnects() int { return int(p.total.Load()) }

// MockAccountService is a testify mock of core.AccountService.
type MockAccountService struct{ mock.Mock }

func (m *MockAccountService) Account(ctx context.Context, session core.Session, id core.AccountID) (core.Account, error) {
	args := m.Called(ctx, session, id)
	return args.Get(0).(core.Account), args.Error(1)
}

func (m *MockAccountService) Accounts(ctx context.Context, session core.Session) ([]core.Account, error) {
	args := m.Called(ctx, session)
	accs, _ := args.Get(0).([]core.Account)
	return accs, args.Error(1)
}

func (m *MockAccountService) CreateAccount(ctx context.Context, session core.Session, providerID string, settings core.Settings) (core.Account, error) {
	args := m.Called(ctx, session, providerID, settings)
	return args.Get(0).(core.Account), args.Error(1)
}

func (m *MockAccountService) UpdateAccount(ctx context.Context, session core.Session, id core.AccountID, settings core.Settings, clientTimestamp int64) (core.Account, error) {
	args := m.Called(ctx, session, id, settings, clientTimestamp)
	return args.Get(0).(core.Account), args.Error(1)
}

func (m *MockAccountService) DeleteAccount(ctx context.Context, session core.Session, id core.AccountID, clientTimestamp int64) error {
	args := m.Called(ctx, session, id, clientTimestamp)
	return args.Error(0)
}
