package composition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/internal/testutil"
)

func busy(from, until time.Time, folder string) core.FreeBusyTime {
	return core.FreeBusyTime{Type: core.BusyBusy, Start: from, End: until, FolderID: folder}
}

func TestQueryFreeBusy_MergesPerAttendee(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	p1 := &testutil.FakeFreeBusy{Name: "internal", Answers: map[string]map[core.AccountID]core.FreeBusyResult{
		"mailto:a@example.com": {
			0: {Times: []core.FreeBusyTime{
				busy(day.Add(10*time.Hour), day.Add(11*time.Hour), "F1"),
				busy(day.Add(9*time.Hour), day.Add(10*time.Hour+30*time.Minute), "F1"),
			}},
		},
	}}
	p2 := &testutil.FakeFreeBusy{Name: "ical", Answers: map[string]map[core.AccountID]core.FreeBusyResult{
		"mailto:b@example.com": {
			core.NoAccount: {Times: []core.FreeBusyTime{busy(day.Add(14*time.Hour), day.Add(15*time.Hour), "")}},
		},
	}}
	h := newHarness()
	a := h.access(t, func(o *Options) { o.FreeBusy = []core.FreeBusyProvider{p1, p2} })

	attendees := []core.Attendee{
		{URI: "mailto:a@example.com"},
		{URI: "mailto:b@example.com"},
		{URI: "mailto:c@example.com"},
	}
	res, err := a.QueryFreeBusy(context.Background(), attendees, day, day.Add(24*time.Hour), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"mailto:a@example.com", "mailto:b@example.com", "mailto:c@example.com"}, keysOf(res))

	ra := res[0].Value
	require.NoError(t, ra.Err)
	require.Len(t, ra.Results, 1)
	assert.Equal(t, core.DefaultAccountID, ra.Results[0].Account)
	assert.Equal(t, "internal", ra.Results[0].Provider)
	require.Len(t, ra.Results[0].Times, 1)
	assert.True(t, ra.Results[0].Times[0].Start.Equal(day.Add(9*time.Hour)))
	assert.True(t, ra.Results[0].Times[0].End.Equal(day.Add(11*time.Hour)))
	// joined from two events, so no single folder remains
	assert.Empty(t, ra.Results[0].Times[0].FolderID)

	rb := res[1].Value
	require.NoError(t, rb.Err)
	require.Len(t, rb.Results, 1)
	assert.Equal(t, core.NoAccount, rb.Results[0].Account)
	assert.Equal(t, "ical", rb.Results[0].Provider)

	assert.ErrorIs(t, res[2].Value.Err, core.ErrFreeBusyNotAvailable)
	assert.Equal(t, "mailto:c@example.com", res[2].Value.Attendee.URI)
	assert.Empty(t, a.Warnings())
}

func TestQueryFreeBusy_ProviderFailureIsWarning(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	ok := &testutil.FakeFreeBusy{Name: "internal", Answers: map[string]map[core.AccountID]core.FreeBusyResult{
		"mailto:a@example.com": {0: {Times: []core.FreeBusyTime{busy(day, day.Add(time.Hour), "F1")}}},
	}}
	broken := &testutil.FakeFreeBusy{Name: "remote", Err: errors.New("dial tcp: timeout")}
	h := newHarness()
	a := h.access(t, func(o *Options) { o.FreeBusy = []core.FreeBusyProvider{broken, ok} })

	res, err := a.QueryFreeBusy(context.Background(), []core.Attendee{{URI: "mailto:a@example.com"}}, day, day.Add(time.Hour), false)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.NoError(t, res[0].Value.Err)
	assert.Equal(t, "cal://0/F1", res[0].Value.Results[0].Times[0].FolderID)

	warnings := a.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "remote", core.AsError(warnings[0]).Provider)
}

func TestQueryFreeBusy_InvalidWindow(t *testing.T) {
	a := newHarness().access(t)
	now := time.Now()
	_, err := a.QueryFreeBusy(context.Background(), nil, now, now.Add(-time.Hour), false)
	assert.ErrorIs(t, err, core.ErrMandatoryField)
}

func TestQueryFreeBusy_DuplicateAttendees(t *testing.T) {
	a := newHarness().access(t)
	now := time.Now()
	res, err := a.QueryFreeBusy(context.Background(), []core.Attendee{{URI: "x"}, {URI: "x"}}, now, now.Add(time.Hour), false)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.ErrorIs(t, res[0].Value.Err, core.ErrFreeBusyNotAvailable)
}

func TestQueryFreeBusy_MergesAcrossProviders(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	internal := &testutil.FakeFreeBusy{Name: "internal", Answers: map[string]map[core.AccountID]core.FreeBusyResult{
		"mailto:a@example.com": {0: {Times: []core.FreeBusyTime{busy(day.Add(9*time.Hour), day.Add(11*time.Hour), "F1")}}},
	}}
	feeds := &testutil.FakeFreeBusy{Name: "ical", Answers: map[string]map[core.AccountID]core.FreeBusyResult{
		"mailto:a@example.com": {2: {Times: []core.FreeBusyTime{busy(day.Add(10*time.Hour), day.Add(12*time.Hour), "0")}}},
	}}
	a := newHarness().access(t, func(o *Options) { o.FreeBusy = []core.FreeBusyProvider{feeds, internal} })

	res, err := a.QueryFreeBusy(context.Background(), []core.Attendee{{URI: "mailto:a@example.com"}}, day, day.Add(24*time.Hour), true)
	require.NoError(t, err)
	require.Len(t, res, 1)
	answer := res[0].Value
	require.NoError(t, answer.Err)

	require.Len(t, answer.Results, 2)
	assert.Equal(t, core.DefaultAccountID, answer.Results[0].Account)
	assert.Equal(t, "internal", answer.Results[0].Provider)
	assert.Equal(t, core.AccountID(2), answer.Results[1].Account)
	assert.Equal(t, "ical", answer.Results[1].Provider)

	require.Len(t, answer.Merged, 1)
	assert.True(t, answer.Merged[0].Start.Equal(day.Add(9*time.Hour)))
	assert.True(t, answer.Merged[0].End.Equal(day.Add(12*time.Hour)))
	assert.Equal(t, core.BusyBusy, answer.Merged[0].Type)
}

func TestQueryFreeBusy_WithoutMergeKeepsOverlaps(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	p := &testutil.FakeFreeBusy{Name: "internal", Answers: map[string]map[core.AccountID]core.FreeBusyResult{
		"mailto:a@example.com": {0: {Times: []core.FreeBusyTime{
			busy(day.Add(10*time.Hour), day.Add(12*time.Hour), "F1"),
			busy(day.Add(9*time.Hour), day.Add(11*time.Hour), "F1"),
		}}},
	}}
	a := newHarness().access(t, func(o *Options) { o.FreeBusy = []core.FreeBusyProvider{p} })

	res, err := a.QueryFreeBusy(context.Background(), []core.Attendee{{URI: "mailto:a@example.com"}}, day, day.Add(24*time.Hour), false)
	require.NoError(t, err)
	answer := res[0].Value
	assert.Empty(t, answer.Merged)
	require.Len(t, answer.Results[0].Times, 2)
	assert.True(t, answer.Results[0].Times[0].Start.Equal(day.Add(9*time.Hour)))
}

func TestQueryFreeBusy_SameAccountAttributionIsStable(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	answers := func(from time.Duration) map[string]map[core.AccountID]core.FreeBusyResult {
		return map[string]map[core.AccountID]core.FreeBusyResult{
			"mailto:a@example.com": {0: {Times: []core.FreeBusyTime{busy(day.Add(from), day.Add(from+time.Hour), "")}}},
		}
	}

	for _, slow := range []string{"alpha", "beta"} {
		alpha := &testutil.FakeFreeBusy{Name: "alpha", Answers: answers(9 * time.Hour)}
		beta := &testutil.FakeFreeBusy{Name: "beta", Answers: answers(14 * time.Hour)}
		if slow == "alpha" {
			alpha.Delay = 20 * time.Millisecond
		} else {
			beta.Delay = 20 * time.Millisecond
		}
		a := newHarness().access(t, func(o *Options) { o.FreeBusy = []core.FreeBusyProvider{beta, alpha} })

		res, err := a.QueryFreeBusy(context.Background(), []core.Attendee{{URI: "mailto:a@example.com"}}, day, day.Add(24*time.Hour), false)
		require.NoError(t, err)
		results := res[0].Value.Results
		require.Len(t, results, 2, "slow provider %s", slow)
		assert.Equal(t, "alpha", results[0].Provider)
		assert.True(t, results[0].Times[0].Start.Equal(day.Add(9*time.Hour)))
		assert.Equal(t, "beta", results[1].Provider)
		assert.True(t, results[1].Times[0].Start.Equal(day.Add(14*time.Hour)))
	}
}
