package groupware

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/recurrence"
)

func (b *backend) UpdateAlarms(_ context.Context, id core.EventID, alarms []core.Alarm, clientTimestamp int64) (*core.CalendarResult, error) {
	return b.modify(id, clientTimestamp, func(ev *core.Event) error {
		ev.Alarms = withAlarmIDs(alarms)
		return nil
	})
}

// AlarmTriggers returns the next trigger of every alarm whose occurrence has
// not started yet. actions restricts the alarm actions, case-insensitively.
func (b *backend) AlarmTriggers(_ context.Context, actions []string) ([]core.AlarmTrigger, error) {
	now := b.now()
	b.cal.mu.RLock()
	defer b.cal.mu.RUnlock()

	var out []core.AlarmTrigger
	for _, folderID := range b.cal.order {
		for _, series := range b.cal.folders[folderID].events {
			for _, ev := range series {
				if len(ev.Alarms) == 0 {
					continue
				}
				start, ok := recurrence.Next(ev, now)
				if !ok {
					continue
				}
				for _, alarm := range ev.Alarms {
					if len(actions) > 0 && !slices.ContainsFunc(actions, func(a string) bool { return strings.EqualFold(a, alarm.Action) }) {
						continue
					}
					out = append(out, core.AlarmTrigger{
						Action:   alarm.Action,
						Time:     start.Add(alarm.Trigger),
						FolderID: folderID,
						EventID:  ev.ID,
						AlarmID:  alarm.ID,
					})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
