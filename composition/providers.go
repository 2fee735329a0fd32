package composition

import (
	"sort"

	"github.com/hupe1980/calmesh/core"
)

// ProviderLookup resolves provider ids to calendar providers.
type ProviderLookup interface {
	Provider(id string) (core.Provider, bool)
}

// ProviderSet is a static ProviderLookup. Build it with NewProviderSet so the
// declared capability sets are validated once, at registration time.
type ProviderSet map[string]core.Provider

// NewProviderSet validates and indexes providers by id. A provider without an
// access capability (basic, folders or groupware) is rejected with
// core.ErrCapabilityMismatch; duplicate ids are rejected with
// core.ErrConflict.
func NewProviderSet(providers ...core.Provider) (ProviderSet, error) {
	set := make(ProviderSet, len(providers))
	for _, p := range providers {
		if err := set.Add(p); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Add validates and registers one provider.
func (s ProviderSet) Add(p core.Provider) error {
	if !p.Capabilities().Valid() {
		e := core.NewError(core.ErrCapabilityMismatch, "provider %q declares no access capability (%s)", p.ID(), p.Capabilities())
		e.Provider = p.ID()
		return e
	}
	if _, dup := s[p.ID()]; dup {
		return core.NewError(core.ErrConflict, "provider %q registered twice", p.ID())
	}
	s[p.ID()] = p
	return nil
}

// Provider implements ProviderLookup.
func (s ProviderSet) Provider(id string) (core.Provider, bool) {
	p, ok := s[id]
	return p, ok
}

// IDs returns the registered provider ids in sorted order.
func (s ProviderSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
