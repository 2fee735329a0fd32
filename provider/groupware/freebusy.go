package groupware

import (
	"context"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/freebusy"
)

// FreeBusy returns the free/busy provider answering for internal users. It
// attributes results to the internal account. Event details are only
// exposed to the calendar's owner.
func (p *Provider) FreeBusy() core.FreeBusyProvider {
	return &freeBusyProvider{p: p}
}

type freeBusyProvider struct {
	p *Provider
}

func (f *freeBusyProvider) ID() string { return ProviderID }

func (f *freeBusyProvider) Query(ctx context.Context, session core.Session, attendees []core.Attendee, from, until time.Time, merge bool) (map[string]map[core.AccountID]core.FreeBusyResult, error) {
	out := make(map[string]map[core.AccountID]core.FreeBusyResult)
	for _, att := range attendees {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cal, ok := f.p.store.byAddress(att.URI)
		if !ok {
			continue
		}
		cal.mu.RLock()
		var events []*core.Event
		for _, id := range cal.order {
			events = append(events, cal.folders[id].eventsLocked()...)
		}
		owner := cal.userID == session.UserID
		cal.mu.RUnlock()

		times, err := freebusy.FromEvents(events, att, from, until)
		if err != nil {
			return nil, core.Wrap(core.ErrUnexpected, err, "free/busy of %s", att.URI)
		}
		if !owner {
			for i := range times {
				times[i].FolderID, times[i].EventID = "", ""
			}
		}
		if merge {
			times = freebusy.Merge(times)
		}
		out[att.URI] = map[core.AccountID]core.FreeBusyResult{
			core.DefaultAccountID: {Times: times, Provider: ProviderID},
		}
	}
	return out, nil
}
