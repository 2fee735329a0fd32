package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := NewError(ErrFolderMismatch, "folder %q is not %q", "7", BasicFolderID)

	assert.ErrorIs(t, err, ErrFolderMismatch)
	assert.NotErrorIs(t, err, ErrNotFound)

	wrapped := fmt.Errorf("dispatch: %w", err)
	assert.ErrorIs(t, wrapped, ErrFolderMismatch)
}

func TestError_MessageCarriesContext(t *testing.T) {
	err := NewError(ErrNotFound, "event %s not found", "e1")
	err.Account = 3
	err.Provider = "ical"
	err.Folder = "cal://3/0"

	msg := err.Error()
	assert.Contains(t, msg, string(CodeNotFound))
	assert.Contains(t, msg, "event e1 not found")
	assert.Contains(t, msg, "account 3, provider ical")
	assert.Contains(t, msg, "folder cal://3/0")
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	domain := NewError(ErrConflict, "stale")
	assert.Same(t, domain, AsError(fmt.Errorf("ctx: %w", domain)))

	plain := errors.New("disk on fire")
	got := AsError(plain)
	assert.ErrorIs(t, got, ErrUnexpected)
	assert.ErrorIs(t, got, plain)

	assert.ErrorIs(t, AsError(context.DeadlineExceeded), ErrTimedOut)
}

func TestIsUnsupported(t *testing.T) {
	err := Unsupported("ical")
	assert.True(t, IsUnsupported(err))
	assert.Equal(t, "ical", err.Provider)
	assert.False(t, IsUnsupported(NewError(ErrUnexpected, "transient")))
}

func TestError_CloneIsIndependent(t *testing.T) {
	orig := NewError(ErrNotFound, "missing")
	cp := orig.Clone()
	cp.Account = 4

	assert.Equal(t, NoAccount, orig.Account)
	assert.Equal(t, AccountID(4), cp.Account)
}
