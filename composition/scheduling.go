package composition

import (
	"context"
	"sort"
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/fanout"
	"github.com/hupe1980/calmesh/idmangle"
)

// AlarmTriggers returns the pending alarm triggers of all accounts offering
// personal alarms, sorted by trigger time. actions optionally restricts the
// alarm actions (e.g. DISPLAY). Accounts that fail are reported as warnings.
func (a *Access) AlarmTriggers(ctx context.Context, actions []string) ([]core.AlarmTrigger, error) {
	accounts, err := a.capableAccounts(ctx, core.CapAlarms)
	if err != nil {
		return nil, err
	}
	jobs := make([]fanout.Job[core.AccountID, []core.AlarmTrigger], 0, len(accounts))
	for _, acc := range accounts {
		jobs = append(jobs, fanout.Job[core.AccountID, []core.AlarmTrigger]{
			Label: "alarmTriggers",
			Run: func(ctx context.Context) (map[core.AccountID][]core.AlarmTrigger, error) {
				var triggers []core.AlarmTrigger
				err := a.withBackend(ctx, acc.ID, "alarmTriggers", func(b *bound) error {
					if b.backend.Alarms == nil {
						return core.Unsupported(b.provider.ID())
					}
					res, err := b.backend.Alarms.AlarmTriggers(ctx, actions)
					if err != nil {
						return err
					}
					for _, t := range res {
						folder := t.FolderID
						if folder == "" {
							folder = core.BasicFolderID
						}
						t.FolderID = idmangle.EncodeFolder(acc.ID, folder)
						t.Account = acc.ID
						triggers = append(triggers, t)
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
				return map[core.AccountID][]core.AlarmTrigger{acc.ID: triggers}, nil
			},
		})
	}

	start := time.Now()
	out := fanout.Collect(ctx, a.exec, jobs, fanout.Spec[core.AccountID, []core.AlarmTrigger]{
		Failed: func(core.AccountID, error) []core.AlarmTrigger { return nil },
	})
	a.logger.fanOut("alarmTriggers", len(jobs), start, len(out.Failures))
	a.warn(out.Failures...)

	var triggers []core.AlarmTrigger
	for _, acc := range accounts {
		triggers = append(triggers, out.Results[acc.ID]...)
	}
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].Time.Before(triggers[j].Time)
	})
	return triggers, nil
}

// AnalyzeMessage analyzes an incoming scheduling message against the
// internal account.
func (a *Access) AnalyzeMessage(ctx context.Context, message *core.SchedulingMessage) (*core.SchedulingAnalysis, error) {
	if message == nil || message.Event == nil {
		return nil, core.NewError(core.ErrMandatoryField, "missing scheduling message")
	}
	var out *core.SchedulingAnalysis
	err := a.defaultAccount(ctx, "analyzeMessage", func(b *bound) error {
		if b.backend.Scheduling == nil {
			return core.Unsupported(b.provider.ID())
		}
		res, err := b.backend.Scheduling.Analyze(ctx, message)
		if err != nil {
			return err
		}
		cp := *res
		cp.Existing = exportEvent(b.id(), res.Existing)
		out = &cp
		return nil
	})
	return out, err
}

// HandleIncomingScheduling applies an incoming scheduling message on behalf of
// attendee in the internal account.
func (a *Access) HandleIncomingScheduling(ctx context.Context, message *core.SchedulingMessage, attendee core.Attendee) (*core.CalendarResult, error) {
	if message == nil || message.Event == nil {
		return nil, core.NewError(core.ErrMandatoryField, "missing scheduling message")
	}
	var out *core.CalendarResult
	err := a.defaultAccount(ctx, "handleIncomingScheduling", func(b *bound) error {
		if b.backend.Scheduling == nil {
			return core.Unsupported(b.provider.ID())
		}
		if attendee.Folder != "" {
			account, folder, err := idmangle.DecodeFolder(attendee.Folder)
			if err != nil {
				return err
			}
			if account != b.id() {
				return core.NewError(core.ErrFolderMismatch, "attendee folder %q belongs to another account", attendee.Folder)
			}
			attendee.Folder = folder
		}
		res, err := b.backend.Scheduling.HandleIncoming(ctx, message, attendee)
		if err != nil {
			return err
		}
		out = exportCalendarResult(b.id(), res)
		return nil
	})
	return out, err
}
