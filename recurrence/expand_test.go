package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/calmesh/core"
)

func day(d, h int) time.Time {
	return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC)
}

func TestExpand_DailySeries(t *testing.T) {
	master := &core.Event{ID: "s1", Summary: "standup", Start: day(3, 9), End: day(3, 10), RecurrenceRule: "FREQ=DAILY;COUNT=10"}

	res, err := Expand([]*core.Event{master}, Config{From: day(5, 0), Until: day(8, 0)})
	require.NoError(t, err)

	require.Len(t, res.Occurrences, 3)
	for i, occ := range res.Occurrences {
		assert.True(t, day(5+i, 9).Equal(occ.Start), occ.Start)
		assert.True(t, day(5+i, 10).Equal(occ.End), occ.End)
		assert.Equal(t, "s1", occ.SeriesID)
		assert.Equal(t, FormatRecurrenceID(day(5+i, 9)), occ.RecurrenceID)
		assert.Empty(t, occ.RecurrenceRule)
	}
	assert.Empty(t, res.Truncated)
	// master untouched
	assert.Equal(t, day(3, 9), master.Start)
}

func TestExpand_ExDatesAndOverrides(t *testing.T) {
	master := &core.Event{
		ID: "s1", Start: day(3, 9), End: day(3, 10),
		RecurrenceRule: "RRULE:FREQ=DAILY;COUNT=5",
		ExDates:        []time.Time{day(4, 9)},
	}
	moved := &core.Event{
		ID: "x1", SeriesID: "s1", Summary: "moved",
		RecurrenceID: FormatRecurrenceID(day(5, 9)),
		Start:        day(5, 14), End: day(5, 15),
	}

	res, err := Expand([]*core.Event{master, moved}, Config{From: day(1, 0), Until: day(10, 0)})
	require.NoError(t, err)

	var starts []int64
	for _, occ := range res.Occurrences {
		starts = append(starts, occ.Start.Unix())
	}
	assert.Equal(t, []int64{day(3, 9).Unix(), day(5, 14).Unix(), day(6, 9).Unix(), day(7, 9).Unix()}, starts)
	assert.Equal(t, "moved", res.Occurrences[1].Summary)
}

func TestExpand_SingleEventsAndWindow(t *testing.T) {
	inside := &core.Event{ID: "a", Start: day(5, 9), End: day(5, 10)}
	straddling := &core.Event{ID: "b", Start: day(4, 23), End: day(5, 1)}
	outside := &core.Event{ID: "c", Start: day(9, 9), End: day(9, 10)}

	res, err := Expand([]*core.Event{outside, inside, straddling}, Config{From: day(5, 0), Until: day(6, 0)})
	require.NoError(t, err)

	require.Len(t, res.Occurrences, 2)
	assert.Equal(t, "b", res.Occurrences[0].ID)
	assert.Equal(t, "a", res.Occurrences[1].ID)
}

func TestExpand_Cap(t *testing.T) {
	master := &core.Event{ID: "s1", Start: day(1, 0), End: day(1, 1), RecurrenceRule: "FREQ=HOURLY"}
	res, err := Expand([]*core.Event{master}, Config{From: day(1, 0), Until: day(20, 0), MaxOccurrencesPerEvent: 10})
	require.NoError(t, err)

	assert.Len(t, res.Occurrences, 10)
	assert.Equal(t, []string{"s1"}, res.Truncated)
}

func TestExpand_InvalidWindow(t *testing.T) {
	_, err := Expand(nil, Config{From: day(2, 0), Until: day(1, 0)})
	assert.Error(t, err)
}

func TestExpand_MalformedRuleFallsBackToSingle(t *testing.T) {
	master := &core.Event{ID: "s1", Start: day(5, 9), End: day(5, 10), RecurrenceRule: "FREQ=SOMETIMES"}
	res, err := Expand([]*core.Event{master}, Config{From: day(5, 0), Until: day(6, 0)})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, "s1", res.Occurrences[0].ID)
}

func TestNext(t *testing.T) {
	master := &core.Event{ID: "s1", Start: day(3, 9), End: day(3, 10), RecurrenceRule: "FREQ=DAILY;COUNT=3"}

	next, ok := Next(master, day(3, 9))
	require.True(t, ok)
	assert.True(t, day(4, 9).Equal(next), next)

	_, ok = Next(master, day(5, 9))
	assert.False(t, ok)

	single := &core.Event{ID: "a", Start: day(5, 9)}
	next, ok = Next(single, day(1, 0))
	assert.True(t, ok)
	assert.Equal(t, day(5, 9), next)
}

func TestRecurrenceID_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 1, 2, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	id := FormatRecurrenceID(ts)
	assert.Equal(t, "20250102T083000Z", id)

	back, err := ParseRecurrenceID(id)
	require.NoError(t, err)
	assert.True(t, ts.Equal(back))

	d, err := ParseRecurrenceID("20250102")
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).Equal(d))

	_, err = ParseRecurrenceID("")
	assert.Error(t, err)
}
