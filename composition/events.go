package composition

import (
	"context"
	"sort"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/fanout"
	"github.com/hupe1980/calmesh/idmangle"
)

// Event returns one event (or one occurrence when id.RecurrenceID is set).
func (a *Access) Event(ctx context.Context, id core.EventID) (*core.Event, error) {
	account, local, err := idmangle.DecodeEvent(id)
	if err != nil {
		return nil, err
	}
	var out *core.Event
	err = a.withBackend(ctx, account, "event", func(b *bound) error {
		ev, err := readEvent(ctx, b, local)
		if err != nil {
			return err
		}
		out = exportEvent(account, ev)
		return nil
	})
	return out, err
}

func readEvent(ctx context.Context, b *bound, local core.EventID) (*core.Event, error) {
	var (
		ev  *core.Event
		err error
	)
	if fc := b.folders(); fc != nil {
		ev, err = fc.Event(ctx, local.FolderID, local.ObjectID, local.RecurrenceID)
	} else {
		var basic core.BasicCalendar
		if basic, err = b.flat(local.FolderID); err != nil {
			return nil, err
		}
		ev, err = basic.Event(ctx, local.ObjectID, local.RecurrenceID)
	}
	if err == nil && ev == nil {
		err = notFound(local)
	}
	return ev, err
}

func notFound(local core.EventID) error {
	e := core.NewError(core.ErrNotFound, "event %s not found", local.ObjectID)
	e.Folder = local.FolderID
	return e
}

// Events returns several events, one envelope per distinct requested id in
// request order.
func (a *Access) Events(ctx context.Context, ids []core.EventID) ([]core.Keyed[core.EventID, core.EventResult], error) {
	p, err := idmangle.PartitionEvents(ids)
	if err != nil {
		return nil, err
	}
	jobs := make([]fanout.Job[core.EventID, core.EventResult], 0, p.Len())
	for _, account := range p.Accounts {
		locals := p.Groups[account]
		keys := make([]core.EventID, len(locals))
		for i, local := range locals {
			keys[i] = idmangle.EncodeEvent(account, local)
		}
		jobs = append(jobs, fanout.Job[core.EventID, core.EventResult]{
			Label: "events",
			Keys:  keys,
			Run: func(ctx context.Context) (map[core.EventID]core.EventResult, error) {
				out := make(map[core.EventID]core.EventResult, len(locals))
				err := a.withBackend(ctx, account, "events", func(b *bound) error {
					events, perID, err := readEvents(ctx, b, locals)
					if err != nil {
						return err
					}
					for i, local := range locals {
						if perID[i] != nil {
							out[keys[i]] = core.EventResult{Err: withUniqueIDs(perID[i], b)}
							continue
						}
						ev := core.FindEvent(events, local.ObjectID, local.RecurrenceID)
						if ev == nil {
							out[keys[i]] = core.EventResult{Err: withUniqueIDs(notFound(local), b)}
							continue
						}
						out[keys[i]] = core.EventResult{Event: exportEvent(account, ev)}
					}
					return nil
				})
				return out, err
			},
		})
	}

	start := time.Now()
	out := fanout.Collect(ctx, a.exec, jobs, fanout.Spec[core.EventID, core.EventResult]{
		Failed: func(_ core.EventID, err error) core.EventResult { return core.EventResult{Err: err} },
	})
	a.logger.fanOut("events", len(jobs), start, countFailed(out.Results, func(r core.EventResult) error { return r.Err }))

	results := fanout.Reorder(out.Results, ids, func(core.EventID) core.EventResult {
		return core.EventResult{Err: core.ErrNoResultProduced}
	})
	limiter := core.NewResultLimiter(a.config.MaxEventResults)
	var exceeded error
	for i := range results {
		if results[i].Value.Err != nil {
			continue
		}
		if exceeded == nil {
			exceeded = limiter.Add(1)
		}
		if exceeded != nil {
			results[i].Value = core.EventResult{Err: exceeded}
		}
	}
	return results, nil
}

// readEvents loads the events of one account. Ids a flat backend cannot
// serve get an individual error.
func readEvents(ctx context.Context, b *bound, locals []core.EventID) ([]*core.Event, []error, error) {
	perID := make([]error, len(locals))
	if fc := b.folders(); fc != nil {
		events, err := fc.Events(ctx, locals)
		return events, perID, err
	}
	if b.backend.Basic == nil {
		return nil, nil, core.Unsupported(b.provider.ID())
	}
	valid := make([]core.EventID, 0, len(locals))
	for i, local := range locals {
		if err := checkFlatFolder(local.FolderID); err != nil {
			perID[i] = err
			continue
		}
		valid = append(valid, local)
	}
	if len(valid) == 0 {
		return nil, perID, nil
	}
	events, err := b.backend.Basic.Events(ctx, valid)
	return events, perID, err
}

// ChangeExceptions returns the change exceptions of a recurring series.
func (a *Access) ChangeExceptions(ctx context.Context, folderID, seriesID string) ([]*core.Event, error) {
	account, local, err := idmangle.DecodeFolder(folderID)
	if err != nil {
		return nil, err
	}
	var out []*core.Event
	err = a.withBackend(ctx, account, "changeExceptions", func(b *bound) error {
		var events []*core.Event
		if fc := b.folders(); fc != nil {
			events, err = fc.ChangeExceptions(ctx, local, seriesID)
		} else {
			var basic core.BasicCalendar
			if basic, err = b.flat(local); err != nil {
				return err
			}
			events, err = basic.ChangeExceptions(ctx, seriesID)
		}
		if err != nil {
			return err
		}
		out = exportEvents(account, events)
		return nil
	})
	return out, err
}

// EventsInFolders returns the events of several folders, one envelope per
// distinct requested folder id in request order.
func (a *Access) EventsInFolders(ctx context.Context, folderIDs []string) ([]core.Keyed[string, core.EventsResult], error) {
	p, err := idmangle.PartitionFolders(folderIDs)
	if err != nil {
		return nil, err
	}
	jobs := make([]fanout.Job[string, core.EventsResult], 0, p.Len())
	for _, account := range p.Accounts {
		locals := p.Groups[account]
		jobs = append(jobs, fanout.Job[string, core.EventsResult]{
			Label: "eventsInFolders",
			Keys:  encodeFolders(account, locals),
			Run: func(ctx context.Context) (map[string]core.EventsResult, error) {
				var out map[string]core.EventsResult
				err := a.withBackend(ctx, account, "eventsInFolders", func(b *bound) error {
					res, err := eventsInFolders(ctx, b, locals)
					if err != nil {
						return err
					}
					out = exportFolderResults(b, res)
					return nil
				})
				return out, err
			},
		})
	}
	return a.collectEvents(ctx, "eventsInFolders", jobs, folderIDs), nil
}

func eventsInFolders(ctx context.Context, b *bound, locals []string) (map[string]core.EventsResult, error) {
	if fc := b.folders(); fc != nil {
		return fc.EventsInFolders(ctx, locals)
	}
	if b.backend.Basic == nil {
		return nil, core.Unsupported(b.provider.ID())
	}
	out := make(map[string]core.EventsResult, len(locals))
	for _, local := range locals {
		if err := checkFlatFolder(local); err != nil {
			out[local] = core.EventsResult{Err: err}
			continue
		}
		events, err := b.backend.Basic.AllEvents(ctx)
		out[local] = core.EventsResult{Events: events, Err: err}
	}
	return out, nil
}

// exportFolderResults converts backend results keyed by local folder id into
// results keyed by composite folder id.
func exportFolderResults(b *bound, res map[string]core.EventsResult) map[string]core.EventsResult {
	out := make(map[string]core.EventsResult, len(res))
	for local, r := range res {
		key := idmangle.EncodeFolder(b.id(), local)
		if r.Err != nil {
			out[key] = core.EventsResult{Err: withUniqueIDs(r.Err, b)}
			continue
		}
		out[key] = core.EventsResult{Events: exportEvents(b.id(), r.Events)}
	}
	return out
}

// collectEvents runs folder scoped jobs and reassembles their envelopes in
// the requested order, applying the event result cap.
func (a *Access) collectEvents(ctx context.Context, op string, jobs []fanout.Job[string, core.EventsResult], requested []string) []core.Keyed[string, core.EventsResult] {
	start := time.Now()
	out := fanout.Collect(ctx, a.exec, jobs, fanout.Spec[string, core.EventsResult]{
		Failed: func(_ string, err error) core.EventsResult { return core.EventsResult{Err: err} },
	})
	a.logger.fanOut(op, len(jobs), start, countFailed(out.Results, func(r core.EventsResult) error { return r.Err }))
	a.warn(out.Failures...)

	results := fanout.Reorder(out.Results, requested, func(string) core.EventsResult {
		return core.EventsResult{Err: core.ErrNoResultProduced}
	})
	a.limit(results)
	return results
}

// limit replaces the envelope that overflows the configured cap, and every
// later one, with core.ErrResultTooLarge.
func (a *Access) limit(results []core.Keyed[string, core.EventsResult]) {
	limiter := core.NewResultLimiter(a.config.MaxEventResults)
	var exceeded error
	for i := range results {
		r := results[i].Value
		if r.Err != nil {
			continue
		}
		if exceeded == nil {
			exceeded = limiter.Add(len(r.Events))
		}
		if exceeded != nil {
			e := core.AsError(exceeded).Clone()
			e.Folder = results[i].Key
			results[i].Value = core.EventsResult{Err: e}
		}
	}
}

// EventsOfUser returns the events of the current user in the internal
// account.
func (a *Access) EventsOfUser(ctx context.Context) ([]*core.Event, error) {
	var out []*core.Event
	err := a.defaultAccount(ctx, "eventsOfUser", func(b *bound) error {
		gw, err := b.groupware()
		if err != nil {
			return err
		}
		events, err := gw.EventsOfUser(ctx)
		if err != nil {
			return err
		}
		out = exportEvents(b.id(), events)
		return nil
	})
	return out, err
}

// SearchEvents searches the given folders. With nil folderIDs, all folders
// of all search capable accounts are searched; accounts that fail are then
// reported as warnings and the envelopes are ordered by account and folder.
func (a *Access) SearchEvents(ctx context.Context, folderIDs []string, term core.SearchTerm) ([]core.Keyed[string, core.EventsResult], error) {
	if folderIDs == nil {
		return a.searchAll(ctx, term)
	}
	p, err := idmangle.PartitionFolders(folderIDs)
	if err != nil {
		return nil, err
	}
	jobs := make([]fanout.Job[string, core.EventsResult], 0, p.Len())
	for _, account := range p.Accounts {
		locals := p.Groups[account]
		jobs = append(jobs, fanout.Job[string, core.EventsResult]{
			Label: "searchEvents",
			Keys:  encodeFolders(account, locals),
			Run: func(ctx context.Context) (map[string]core.EventsResult, error) {
				var out map[string]core.EventsResult
				err := a.withBackend(ctx, account, "searchEvents", func(b *bound) error {
					res, err := search(ctx, b, locals, term)
					if err != nil {
						return err
					}
					out = exportFolderResults(b, res)
					return nil
				})
				return out, err
			},
		})
	}
	return a.collectEvents(ctx, "searchEvents", jobs, folderIDs), nil
}

func (a *Access) searchAll(ctx context.Context, term core.SearchTerm) ([]core.Keyed[string, core.EventsResult], error) {
	accounts, err := a.capableAccounts(ctx, core.CapSearch)
	if err != nil {
		return nil, err
	}
	jobs := make([]fanout.Job[string, core.EventsResult], 0, len(accounts))
	for _, acc := range accounts {
		jobs = append(jobs, fanout.Job[string, core.EventsResult]{
			Label: "searchEvents",
			Run: func(ctx context.Context) (map[string]core.EventsResult, error) {
				var out map[string]core.EventsResult
				err := a.withBackend(ctx, acc.ID, "searchEvents", func(b *bound) error {
					res, err := search(ctx, b, nil, term)
					if err != nil {
						return err
					}
					out = exportFolderResults(b, res)
					return nil
				})
				return out, err
			},
		})
	}

	start := time.Now()
	out := fanout.Collect(ctx, a.exec, jobs, fanout.Spec[string, core.EventsResult]{
		Failed: func(_ string, err error) core.EventsResult { return core.EventsResult{Err: err} },
	})
	a.logger.fanOut("searchEvents", len(jobs), start, len(out.Failures))
	a.warn(out.Failures...)

	rank := make(map[core.AccountID]int, len(accounts))
	for i, acc := range accounts {
		rank[acc.ID] = i
	}
	type ranked struct {
		key   string
		rank  int
		local string
	}
	keys := make([]ranked, 0, len(out.Results))
	for key := range out.Results {
		account, local, err := idmangle.DecodeFolder(key)
		if err != nil {
			continue
		}
		keys = append(keys, ranked{key: key, rank: rank[account], local: local})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].rank != keys[j].rank {
			return keys[i].rank < keys[j].rank
		}
		return keys[i].local < keys[j].local
	})
	requested := make([]string, len(keys))
	for i, k := range keys {
		requested[i] = k.key
	}
	results := fanout.Reorder(out.Results, requested, func(string) core.EventsResult {
		return core.EventsResult{Err: core.ErrNoResultProduced}
	})
	a.limit(results)
	return results, nil
}

// search probes folder-scoped search before basic search. nil locals search
// every folder of the account; a failing flat account then fails as a whole.
func search(ctx context.Context, b *bound, locals []string, term core.SearchTerm) (map[string]core.EventsResult, error) {
	if fs := b.backend.FolderSearch; fs != nil {
		return fs.SearchEvents(ctx, locals, term)
	}
	bs := b.backend.BasicSearch
	if bs == nil {
		return nil, core.Unsupported(b.provider.ID())
	}
	if locals == nil {
		events, err := bs.SearchEvents(ctx, term)
		if err != nil {
			return nil, err
		}
		return map[string]core.EventsResult{core.BasicFolderID: {Events: events}}, nil
	}
	out := make(map[string]core.EventsResult, len(locals))
	for _, local := range locals {
		if err := checkFlatFolder(local); err != nil {
			out[local] = core.EventsResult{Err: err}
			continue
		}
		events, err := bs.SearchEvents(ctx, term)
		out[local] = core.EventsResult{Events: events, Err: err}
	}
	return out, nil
}

// UpdatedEventsInFolder returns the changes in a folder since the given time.
func (a *Access) UpdatedEventsInFolder(ctx context.Context, folderID string, since time.Time) (*core.UpdatesResult, error) {
	account, local, err := idmangle.DecodeFolder(folderID)
	if err != nil {
		return nil, err
	}
	var out *core.UpdatesResult
	err = a.withBackend(ctx, account, "updatedEventsInFolder", func(b *bound) error {
		var res *core.UpdatesResult
		switch {
		case b.backend.FolderSync != nil:
			res, err = b.backend.FolderSync.UpdatedEventsInFolder(ctx, local, since)
		case b.backend.BasicSync != nil:
			if err = checkFlatFolder(local); err != nil {
				return err
			}
			res, err = b.backend.BasicSync.UpdatedEvents(ctx, since)
		default:
			return core.Unsupported(b.provider.ID())
		}
		if err != nil {
			return err
		}
		out = exportUpdates(account, res)
		return nil
	})
	return out, err
}

// UpdatedEventsOfUser returns the changes of the current user's events in the
// internal account since the given time.
func (a *Access) UpdatedEventsOfUser(ctx context.Context, since time.Time) (*core.UpdatesResult, error) {
	var out *core.UpdatesResult
	err := a.defaultAccount(ctx, "updatedEventsOfUser", func(b *bound) error {
		if b.backend.FolderSync == nil {
			return core.Unsupported(b.provider.ID())
		}
		res, err := b.backend.FolderSync.UpdatedEventsOfUser(ctx, since)
		if err != nil {
			return err
		}
		out = exportUpdates(b.id(), res)
		return nil
	})
	return out, err
}

// SequenceNumbers returns the sequence number of several folders, one
// envelope per distinct requested folder id in request order.
func (a *Access) SequenceNumbers(ctx context.Context, folderIDs []string) ([]core.Keyed[string, core.SequenceResult], error) {
	p, err := idmangle.PartitionFolders(folderIDs)
	if err != nil {
		return nil, err
	}
	jobs := make([]fanout.Job[string, core.SequenceResult], 0, p.Len())
	for _, account := range p.Accounts {
		locals := p.Groups[account]
		keys := encodeFolders(account, locals)
		jobs = append(jobs, fanout.Job[string, core.SequenceResult]{
			Label: "sequenceNumbers",
			Keys:  keys,
			Run: func(ctx context.Context) (map[string]core.SequenceResult, error) {
				b, err := a.registry.Backend(ctx, account)
				if err != nil {
					return nil, err
				}
				if b.backend.FolderSync == nil && b.backend.BasicSync == nil {
					return nil, withUniqueIDs(core.Unsupported(b.provider.ID()), b)
				}
				out := make(map[string]core.SequenceResult, len(locals))
				for i, local := range locals {
					start := time.Now()
					seq, err := sequenceNumber(ctx, b, local)
					a.logger.dispatch("sequenceNumber", account, b.provider.ID(), start, err)
					if err != nil {
						out[keys[i]] = core.SequenceResult{Err: withUniqueIDs(err, b)}
						continue
					}
					out[keys[i]] = core.SequenceResult{Sequence: seq}
				}
				return out, nil
			},
		})
	}

	start := time.Now()
	out := fanout.Collect(ctx, a.exec, jobs, fanout.Spec[string, core.SequenceResult]{
		Failed: func(_ string, err error) core.SequenceResult { return core.SequenceResult{Err: err} },
	})
	a.logger.fanOut("sequenceNumbers", len(jobs), start, countFailed(out.Results, func(r core.SequenceResult) error { return r.Err }))
	return fanout.Reorder(out.Results, folderIDs, func(string) core.SequenceResult {
		return core.SequenceResult{Err: core.ErrNoResultProduced}
	}), nil
}

func sequenceNumber(ctx context.Context, b *bound, local string) (int64, error) {
	if fs := b.backend.FolderSync; fs != nil {
		return fs.SequenceNumber(ctx, local)
	}
	if err := checkFlatFolder(local); err != nil {
		return 0, err
	}
	return b.backend.BasicSync.SequenceNumber(ctx)
}

// CTag returns the collection tag of the account a folder belongs to.
func (a *Access) CTag(ctx context.Context, folderID string) (string, error) {
	account, local, err := idmangle.DecodeFolder(folderID)
	if err != nil {
		return "", err
	}
	var ctag string
	err = a.withBackend(ctx, account, "ctag", func(b *bound) error {
		if b.backend.CTag == nil {
			return core.Unsupported(b.provider.ID())
		}
		if b.folders() == nil {
			if err := checkFlatFolder(local); err != nil {
				return err
			}
		}
		ctag, err = b.backend.CTag.CTag(ctx)
		return err
	})
	return ctag, err
}

func countFailed[K comparable, V any](results map[K]V, errOf func(V) error) int {
	n := 0
	for _, v := range results {
		if errOf(v) != nil {
			n++
		}
	}
	return n
}
