package testutil

import (
	"time"

	"github.com/hupe1980/calmesh/core"
)

// Session returns the session used by tests.
func Session() core.Session {
	return core.Session{ID: "sess-1", UserID: 7}
}

// AccountBuilder helps construct account metadata with fluent chaining.
// Example:
//
//	acc := NewAccountBuilder(3, "ical").Name("Holidays").Config("url", u).Build()
type AccountBuilder struct {
	acc core.Account
}

// NewAccountBuilder creates a builder for an account of the given provider.
func NewAccountBuilder(id core.AccountID, providerID string) *AccountBuilder {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &AccountBuilder{acc: core.Account{
		ID:           id,
		UserID:       Session().UserID,
		ProviderID:   providerID,
		Settings:     core.Settings{Name: providerID, Subscribed: true, LastModified: ts},
		Created:      ts,
		LastModified: ts,
	}}
}

// Name sets the display name (chainable).
func (b *AccountBuilder) Name(n string) *AccountBuilder { b.acc.Settings.Name = n; return b }

// Config sets a provider specific configuration value (chainable).
func (b *AccountBuilder) Config(key, val string) *AccountBuilder {
	if b.acc.Settings.Config == nil {
		b.acc.Settings.Config = map[string]string{}
	}
	b.acc.Settings.Config[key] = val
	return b
}

// Build returns the account.
func (b *AccountBuilder) Build() core.Account {
	acc := b.acc
	if b.acc.Settings.Config != nil {
		acc.Settings.Config = make(map[string]string, len(b.acc.Settings.Config))
		for k, v := range b.acc.Settings.Config {
			acc.Settings.Config[k] = v
		}
	}
	return acc
}
