package account

import (
	"time"

	"github.com/hupe1980/calmesh/core"
)

// Options configures an account store.
type Options struct {
	// DefaultProvider is the provider of the internal account every user
	// owns implicitly. Empty disables the internal account.
	DefaultProvider string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{DefaultProvider: "groupware", Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// defaultAccount synthesizes the internal account of a user.
func defaultAccount(provider string, userID int) core.Account {
	return core.Account{
		ID:         core.DefaultAccountID,
		UserID:     userID,
		ProviderID: provider,
		Settings:   core.Settings{Name: "Calendar", Subscribed: true},
	}
}

func notFound(id core.AccountID) error {
	e := core.NewError(core.ErrAccountNotFound, "account %d not found", id)
	e.Account = id
	return e
}

// checkTimestamp rejects writes based on an outdated view of the account.
// Zero skips the check.
func checkTimestamp(acc core.Account, clientTimestamp int64) error {
	if clientTimestamp != 0 && clientTimestamp < acc.LastModified.UnixMilli() {
		e := core.NewError(core.ErrConflict, "account %d was modified at %d, client knows %d", acc.ID, acc.LastModified.UnixMilli(), clientTimestamp)
		e.Account = acc.ID
		return e
	}
	return nil
}

func validate(providerID string) error {
	if providerID == "" {
		return core.NewError(core.ErrMandatoryField, "missing provider id")
	}
	return nil
}

func internalReadOnly(op string) error {
	e := core.NewError(core.ErrUnsupportedOperation, "cannot %s the internal account", op)
	e.Account = core.DefaultAccountID
	return e
}

func cloneSettings(s core.Settings) core.Settings {
	if s.Config != nil {
		cfg := make(map[string]string, len(s.Config))
		for k, v := range s.Config {
			cfg[k] = v
		}
		s.Config = cfg
	}
	return s
}
