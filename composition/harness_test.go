package composition

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/internal/testutil"
)

// harness wires an Access to fake providers: accounts of provider "folders"
// are served by FolderBackends, accounts of provider "flat" by
// FlatBackends.
type harness struct {
	accounts *testutil.MockAccountService
	folderP  *testutil.FakeProvider
	flatP    *testutil.FakeProvider
	folderBs map[core.AccountID]*testutil.FolderBackend
	flatBs   map[core.AccountID]*testutil.FlatBackend
	list     []core.Account
}

func newHarness() *harness {
	h := &harness{
		accounts: &testutil.MockAccountService{},
		folderBs: map[core.AccountID]*testutil.FolderBackend{},
		flatBs:   map[core.AccountID]*testutil.FlatBackend{},
	}
	h.folderP = testutil.NewFakeProvider("folders", testutil.FolderCaps, func(acc core.Account) (*core.Backend, error) {
		return h.folderBs[acc.ID].Backend(), nil
	})
	h.flatP = testutil.NewFakeProvider("flat", testutil.FlatCaps, func(acc core.Account) (*core.Backend, error) {
		return h.flatBs[acc.ID].Backend(), nil
	})
	return h
}

func (h *harness) withFolders(id core.AccountID, b *testutil.FolderBackend) *harness {
	h.folderBs[id] = b
	h.list = append(h.list, testutil.NewAccountBuilder(id, "folders").Build())
	return h
}

func (h *harness) withFlat(id core.AccountID, b *testutil.FlatBackend) *harness {
	h.flatBs[id] = b
	h.list = append(h.list, testutil.NewAccountBuilder(id, "flat").Name("Flat").Build())
	return h
}

func (h *harness) withAccount(acc core.Account) *harness {
	h.list = append(h.list, acc)
	return h
}

func (h *harness) access(t *testing.T, optFns ...func(o *Options)) *Access {
	t.Helper()
	for _, acc := range h.list {
		h.accounts.On("Account", mock.Anything, mock.Anything, acc.ID).Return(acc, nil).Maybe()
	}
	h.accounts.On("Account", mock.Anything, mock.Anything, mock.Anything).Return(core.Account{}, core.ErrAccountNotFound).Maybe()
	h.accounts.On("Accounts", mock.Anything, mock.Anything).Return(h.list, nil).Maybe()

	providers, err := NewProviderSet(h.folderP, h.flatP)
	require.NoError(t, err)
	a := New(testutil.Session(), h.accounts, providers, optFns...)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func keysOf[K comparable, V any](res []core.Keyed[K, V]) []K {
	keys := make([]K, len(res))
	for i, r := range res {
		keys[i] = r.Key
	}
	return keys
}

func domainErr(t *testing.T, err error) *core.Error {
	t.Helper()
	require.Error(t, err)
	de := core.AsError(err)
	require.NotNil(t, de)
	return de
}
