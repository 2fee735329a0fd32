package ical

import (
	"context"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/freebusy"
)

// FreeBusy returns the free/busy provider answering for attendees that own
// one of the session's feed accounts (see ConfigOwner). Results are keyed by
// that account.
func (p *Provider) FreeBusy() core.FreeBusyProvider {
	return &freeBusyProvider{p: p}
}

type freeBusyProvider struct {
	p *Provider
}

func (f *freeBusyProvider) ID() string { return ProviderID }

func (f *freeBusyProvider) Query(ctx context.Context, session core.Session, attendees []core.Attendee, from, until time.Time, merge bool) (map[string]map[core.AccountID]core.FreeBusyResult, error) {
	out := make(map[string]map[core.AccountID]core.FreeBusyResult)
	if f.p.accounts == nil {
		return out, nil
	}
	accounts, err := f.p.accounts.Accounts(ctx, session)
	if err != nil {
		return nil, err
	}

	for _, acc := range accounts {
		if acc.ProviderID != ProviderID || acc.Settings.Config[ConfigOwner] == "" {
			continue
		}
		owner := core.Attendee{URI: acc.Settings.Config[ConfigOwner]}
		for _, att := range attendees {
			if !att.Matches(owner) {
				continue
			}
			if out[att.URI] == nil {
				out[att.URI] = make(map[core.AccountID]core.FreeBusyResult)
			}
			out[att.URI][acc.ID] = f.query(ctx, acc, att, from, until, merge)
		}
	}
	return out, nil
}

func (f *freeBusyProvider) query(ctx context.Context, acc core.Account, att core.Attendee, from, until time.Time, merge bool) core.FreeBusyResult {
	res := core.FreeBusyResult{Provider: ProviderID}
	snap, err := f.p.cache.load(ctx, acc.Settings.Config[ConfigURL])
	if err != nil {
		e := core.AsError(err).Clone()
		e.Account = acc.ID
		res.Errs = []error{e}
		return res
	}
	times, err := freebusy.FromEvents(snap.events, att, from, until)
	if err != nil {
		res.Errs = []error{core.Wrap(core.ErrUnexpected, err, "free/busy of %s", att.URI)}
		return res
	}
	if merge {
		times = freebusy.Merge(times)
	}
	res.Times = times
	return res
}
