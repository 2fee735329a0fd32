package composition

import (
	"context"
	"sort"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/fanout"
	"github.com/hupe1980/calmesh/freebusy"
	"github.com/hupe1980/calmesh/idmangle"
)

// QueryFreeBusy asks every free/busy provider about the attendees and
// combines the answers per attendee, in the order the attendees were given.
// Each result is attributed to the account and provider that produced it.
// With merge, the intervals of each result are normalized so that none
// overlap, and the answer's Merged list joins the intervals of all results.
// Attendees nobody answered for carry core.ErrFreeBusyNotAvailable;
// providers that fail are reported as warnings.
func (a *Access) QueryFreeBusy(ctx context.Context, attendees []core.Attendee, from, until time.Time, merge bool) ([]core.Keyed[string, core.FreeBusyAnswer], error) {
	if until.Before(from) {
		return nil, core.NewError(core.ErrMandatoryField, "free/busy window ends before it starts")
	}

	jobs := make([]fanout.Job[sourceKey, core.FreeBusyResult], 0, len(a.freeBusy))
	for _, p := range a.freeBusy {
		jobs = append(jobs, fanout.Job[sourceKey, core.FreeBusyResult]{
			Label: "freeBusy:" + p.ID(),
			Run: func(ctx context.Context) (map[sourceKey]core.FreeBusyResult, error) {
				start := time.Now()
				res, err := p.Query(ctx, a.session, attendees, from, until, merge)
				a.logger.dispatch("freeBusy", core.NoAccount, p.ID(), start, err)
				if err != nil {
					de := core.AsError(err).Clone()
					de.Provider = p.ID()
					return nil, de
				}
				out := make(map[sourceKey]core.FreeBusyResult)
				for uri, byAccount := range res {
					for account, r := range byAccount {
						r.Account = account
						r.Times = append([]core.FreeBusyTime(nil), r.Times...)
						if r.Provider == "" {
							r.Provider = p.ID()
						}
						for i := range r.Times {
							if r.Times[i].FolderID != "" && account != core.NoAccount {
								r.Times[i].FolderID = idmangle.EncodeFolder(account, r.Times[i].FolderID)
							}
						}
						out[sourceKey{provider: r.Provider, attendee: idmangle.EncodeAttendeeKey(account, uri)}] = r
					}
				}
				return out, nil
			},
		})
	}

	start := time.Now()
	out := fanout.Collect(ctx, a.exec, jobs, fanout.Spec[sourceKey, core.FreeBusyResult]{
		Failed: func(_ sourceKey, err error) core.FreeBusyResult { return core.FreeBusyResult{Errs: []error{err}} },
	})
	a.logger.fanOut("freeBusy", len(jobs), start, len(out.Failures))
	a.warn(out.Failures...)

	byAttendee := make(map[string][]core.FreeBusyResult)
	for key, r := range out.Results {
		_, uri, err := idmangle.DecodeAttendeeKey(key.attendee)
		if err != nil {
			continue
		}
		if merge {
			r.Times = freebusy.Merge(r.Times)
		} else {
			freebusy.Sort(r.Times)
		}
		byAttendee[uri] = append(byAttendee[uri], r)
	}

	requested := make([]string, 0, len(attendees))
	answers := make(map[string]core.FreeBusyAnswer, len(attendees))
	for _, att := range attendees {
		if _, dup := answers[att.URI]; dup {
			continue
		}
		requested = append(requested, att.URI)
		results := byAttendee[att.URI]
		if len(results) == 0 {
			answers[att.URI] = core.FreeBusyAnswer{
				Attendee: att,
				Err:      core.NewError(core.ErrFreeBusyNotAvailable, "no free/busy data available for %s", att.URI),
			}
			continue
		}
		sort.Slice(results, func(i, j int) bool {
			if results[i].Account != results[j].Account {
				return results[i].Account < results[j].Account
			}
			return results[i].Provider < results[j].Provider
		})
		answer := core.FreeBusyAnswer{Attendee: att, Results: results}
		if merge {
			var all []core.FreeBusyTime
			for _, r := range results {
				all = append(all, r.Times...)
			}
			answer.Merged = freebusy.Merge(all)
		}
		answers[att.URI] = answer
	}

	return fanout.Reorder(answers, requested, func(uri string) core.FreeBusyAnswer {
		return core.FreeBusyAnswer{Attendee: core.Attendee{URI: uri}, Err: core.ErrNoResultProduced}
	}), nil
}

// sourceKey identifies one free/busy result: an attendee of one account as
// answered by one provider.
type sourceKey struct {
	provider string
	attendee string
}
