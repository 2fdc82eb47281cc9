package tracker

import (
	"context"
	"fmt"
	"testing"

	"stockalert_backend/config"
	"stockalert_backend/models"
	"stockalert_backend/services/quote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	alerted bool
	thresh  *float64
}

type fakeStore struct {
	states  map[string]*fakeState
	counts  map[string]int
	history []*models.NotificationLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states: make(map[string]*fakeState),
		counts: make(map[string]int),
	}
}

func stateKey(userID, ticker string) string {
	return userID + "/" + ticker
}

func (s *fakeStore) TickerState(userID, ticker string) (bool, *float64, error) {
	st, ok := s.states[stateKey(userID, ticker)]
	if !ok {
		st = &fakeState{}
		s.states[stateKey(userID, ticker)] = st
	}
	return st.alerted, st.thresh, nil
}

func (s *fakeStore) SetTickerAlerted(userID, ticker string, thresh float64) error {
	s.states[stateKey(userID, ticker)] = &fakeState{alerted: true, thresh: &thresh}
	return nil
}

func (s *fakeStore) NotificationCount(userID string) (int, error) {
	return s.counts[userID], nil
}

func (s *fakeStore) IncrementNotificationCount(userID string) error {
	s.counts[userID]++
	return nil
}

func (s *fakeStore) RecordNotification(entry *models.NotificationLog) error {
	s.history = append(s.history, entry)
	return nil
}

type fakeSource struct {
	quotes map[string]quote.Quote
	err    error
	calls  []string
}

func (f *fakeSource) Quote(_ context.Context, symbol string) (quote.Quote, error) {
	f.calls = append(f.calls, symbol)
	if f.err != nil {
		return quote.Quote{}, f.err
	}
	return f.quotes[symbol], nil
}

type sentMessage struct {
	message string
	users   []string
}

type fakeDispatcher struct {
	sent []sentMessage
	fail bool
}

func (f *fakeDispatcher) Send(message string, users []string) error {
	if f.fail {
		return fmt.Errorf("push endpoint unavailable")
	}
	f.sent = append(f.sent, sentMessage{message: message, users: users})
	return nil
}

func testWatchlist(rules map[string][]config.ThresholdRule, notifyThresh map[string]float64, maxNotifications int) *config.Watchlist {
	wl := &config.Watchlist{
		Defaults: config.Defaults{
			MaxNotificationsPerDay: maxNotifications,
			MaxQuoteCallsPerMin:    60,
		},
	}
	for userID, thresh := range notifyThresh {
		wl.Accounts = append(wl.Accounts, config.Account{UserID: userID, NotifyThresh: thresh})
	}
	for symbol, ruleList := range rules {
		wl.Tickers = append(wl.Tickers, config.TickerEntry{Symbol: symbol, Thresholds: ruleList})
	}
	return wl
}

func newTestTracker(rules map[string][]config.ThresholdRule, notifyThresh map[string]float64,
	maxNotifications int, source *fakeSource) (*Tracker, *fakeStore, *fakeDispatcher) {

	symbols := make([]string, 0, len(rules))
	for symbol := range rules {
		symbols = append(symbols, symbol)
	}

	st := newFakeStore()
	dispatcher := &fakeDispatcher{}
	wl := testWatchlist(rules, notifyThresh, maxNotifications)
	trk := NewTracker(NewRotationQueue(symbols), source, st, dispatcher, wl)
	return trk, st, dispatcher
}

func TestNotifiesWhenThresholdCrossed(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 150, PrevClose: 140, PercentChange: 7.14},
	}}
	trk, st, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {{Value: 5.0, Users: []string{"u1"}}},
		},
		map[string]float64{"u1": 1.0},
		100, source,
	)

	trk.CheckPriceChange()

	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, []string{"u1"}, dispatcher.sent[0].users)
	assert.Contains(t, dispatcher.sent[0].message, "AAPL")
	assert.Contains(t, dispatcher.sent[0].message, "7.14")

	alerted, thresh, err := st.TickerState("u1", "AAPL")
	require.NoError(t, err)
	assert.True(t, alerted)
	require.NotNil(t, thresh)
	assert.InDelta(t, 7.14, *thresh, 1e-9)
	assert.Equal(t, 1, st.counts["u1"])
	require.Len(t, st.history, 1)
	assert.Equal(t, "AAPL", st.history[0].Ticker)
}

func TestHysteresisBlocksRealertUntilFurtherMove(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 150, PrevClose: 140, PercentChange: 7.14},
	}}
	trk, st, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {{Value: 5.0, Users: []string{"u1"}}},
		},
		map[string]float64{"u1": 1.0},
		100, source,
	)

	trk.CheckPriceChange()
	require.Len(t, dispatcher.sent, 1)

	// Within the hysteresis band: 7.5 < 7.14 + 1.0
	source.quotes["AAPL"] = quote.Quote{Current: 150.5, PrevClose: 140, PercentChange: 7.5}
	trk.CheckPriceChange()
	assert.Len(t, dispatcher.sent, 1)
	assert.Equal(t, 1, st.counts["u1"])

	// Beyond the band: 8.2 >= 8.14
	source.quotes["AAPL"] = quote.Quote{Current: 151.5, PrevClose: 140, PercentChange: 8.2}
	trk.CheckPriceChange()
	require.Len(t, dispatcher.sent, 2)
	assert.Equal(t, 2, st.counts["u1"])

	_, thresh, err := st.TickerState("u1", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, thresh)
	assert.InDelta(t, 8.2, *thresh, 1e-9)
}

func TestOnlyMatchingRuleUsersQualify(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 150, PrevClose: 140, PercentChange: 7.14},
	}}
	trk, st, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {
				{Value: 2.0, Users: []string{"u1"}},
				{Value: 12.0, Users: []string{"u2"}},
			},
		},
		map[string]float64{"u1": 1.0, "u2": 1.0},
		100, source,
	)

	trk.CheckPriceChange()

	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, []string{"u1"}, dispatcher.sent[0].users)
	assert.Equal(t, 1, st.counts["u1"])
	assert.Equal(t, 0, st.counts["u2"])
}

func TestNegativeThresholdFiresOnDownwardMove(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 90, PrevClose: 100, PercentChange: -10},
	}}
	trk, _, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {
				{Value: -5.0, Users: []string{"u1"}},
				{Value: -12.0, Users: []string{"u2"}},
			},
		},
		map[string]float64{"u1": 1.0, "u2": 1.0},
		100, source,
	)

	trk.CheckPriceChange()

	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, []string{"u1"}, dispatcher.sent[0].users)

	// A rise never triggers a negative rule
	source.quotes["AAPL"] = quote.Quote{Current: 104, PrevClose: 100, PercentChange: 4}
	trk.CheckPriceChange()
	assert.Len(t, dispatcher.sent, 1)
}

func TestNegativeRuleHysteresis(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 94, PrevClose: 100, PercentChange: -6},
	}}
	trk, _, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {{Value: -5.0, Users: []string{"u1"}}},
		},
		map[string]float64{"u1": 1.0},
		100, source,
	)

	trk.CheckPriceChange()
	require.Len(t, dispatcher.sent, 1)

	// -6.5 > -6 - 1 stays within the band
	source.quotes["AAPL"] = quote.Quote{Current: 93.5, PrevClose: 100, PercentChange: -6.5}
	trk.CheckPriceChange()
	assert.Len(t, dispatcher.sent, 1)

	// -7 <= -6 - 1 fires again
	source.quotes["AAPL"] = quote.Quote{Current: 93, PrevClose: 100, PercentChange: -7}
	trk.CheckPriceChange()
	assert.Len(t, dispatcher.sent, 2)
}

func TestQuotaExhaustedUserSkipped(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 150, PrevClose: 140, PercentChange: 7.14},
	}}
	trk, st, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {{Value: 5.0, Users: []string{"u1", "u2"}}},
		},
		map[string]float64{"u1": 1.0, "u2": 1.0},
		10, source,
	)
	st.counts["u1"] = 10

	trk.CheckPriceChange()

	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, []string{"u2"}, dispatcher.sent[0].users)
	assert.Equal(t, 10, st.counts["u1"])
}

func TestApproachingLimitNoticeFiresExactlyAtNinetyPercent(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 150, PrevClose: 140, PercentChange: 7.14},
	}}
	trk, st, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {{Value: 5.0, Users: []string{"u1"}}},
		},
		map[string]float64{"u1": 1.0},
		10, source,
	)
	st.counts["u1"] = 9

	trk.CheckPriceChange()

	// First the single-user notice, then the regular alert
	require.Len(t, dispatcher.sent, 2)
	assert.Equal(t, []string{"u1"}, dispatcher.sent[0].users)
	assert.Contains(t, dispatcher.sent[0].message, "almost reached")
	assert.Contains(t, dispatcher.sent[1].message, "AAPL")
}

func TestNoNoticeBeforeOrAfterNinetyPercent(t *testing.T) {
	for _, count := range []int{8, 10} {
		source := &fakeSource{quotes: map[string]quote.Quote{
			"AAPL": {Current: 150, PrevClose: 140, PercentChange: 7.14},
		}}
		trk, st, dispatcher := newTestTracker(
			map[string][]config.ThresholdRule{
				"AAPL": {{Value: 5.0, Users: []string{"u1"}}},
			},
			map[string]float64{"u1": 1.0},
			10, source,
		)
		st.counts["u1"] = count

		trk.CheckPriceChange()

		for _, sent := range dispatcher.sent {
			assert.NotContains(t, sent.message, "almost reached",
				"no limit notice expected at count %d", count)
		}
	}
}

func TestDispatchFailureLeavesStateUntouched(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 150, PrevClose: 140, PercentChange: 7.14},
	}}
	trk, st, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {{Value: 5.0, Users: []string{"u1"}}},
		},
		map[string]float64{"u1": 1.0},
		100, source,
	)
	dispatcher.fail = true

	trk.CheckPriceChange()

	alerted, thresh, err := st.TickerState("u1", "AAPL")
	require.NoError(t, err)
	assert.False(t, alerted)
	assert.Nil(t, thresh)
	assert.Equal(t, 0, st.counts["u1"])
	assert.Empty(t, st.history)

	// Replaying the identical tick succeeds once dispatch recovers
	dispatcher.fail = false
	trk.CheckPriceChange()
	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, []string{"u1"}, dispatcher.sent[0].users)
}

func TestQuoteFailureTreatedAsZeroChange(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("upstream timeout")}
	trk, st, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {{Value: 5.0, Users: []string{"u1"}}},
		},
		map[string]float64{"u1": 1.0},
		100, source,
	)

	trk.CheckPriceChange()

	assert.Empty(t, dispatcher.sent)
	assert.Equal(t, 0, st.counts["u1"])
	// Symbol is returned to the rotation
	assert.Equal(t, []string{"AAPL"}, trk.Queue().Snapshot())
}

func TestZeroThresholdTakesUpwardBranch(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 100, PrevClose: 100, PercentChange: 0},
	}}
	trk, _, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {{Value: 0, Users: []string{"u1"}}},
		},
		map[string]float64{"u1": 1.0},
		100, source,
	)

	trk.CheckPriceChange()
	require.Len(t, dispatcher.sent, 1)

	// A fall does not trigger the zero-threshold rule
	trk2, _, dispatcher2 := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {{Value: 0, Users: []string{"u1"}}},
		},
		map[string]float64{"u1": 1.0},
		100,
		&fakeSource{quotes: map[string]quote.Quote{
			"AAPL": {Current: 99, PrevClose: 100, PercentChange: -1},
		}},
	)
	trk2.CheckPriceChange()
	assert.Empty(t, dispatcher2.sent)
}

func TestUserDeduplicatedAcrossRules(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"AAPL": {Current: 150, PrevClose: 140, PercentChange: 7.14},
	}}
	trk, st, dispatcher := newTestTracker(
		map[string][]config.ThresholdRule{
			"AAPL": {
				{Value: 2.0, Users: []string{"u1"}},
				{Value: 5.0, Users: []string{"u1", "u2"}},
			},
		},
		map[string]float64{"u1": 1.0, "u2": 1.0},
		100, source,
	)

	trk.CheckPriceChange()

	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, []string{"u1", "u2"}, dispatcher.sent[0].users)
	assert.Equal(t, 1, st.counts["u1"])
}

func TestFullRotationVisitsEachSymbolOnce(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{
		"A": {PercentChange: 0},
		"B": {PercentChange: 0},
	}}
	st := newFakeStore()
	dispatcher := &fakeDispatcher{}
	wl := testWatchlist(map[string][]config.ThresholdRule{
		"A": {{Value: 5.0, Users: []string{"u1"}}},
		"B": {{Value: 5.0, Users: []string{"u1"}}},
	}, map[string]float64{"u1": 1.0}, 100)
	trk := NewTracker(NewRotationQueue([]string{"A", "B"}), source, st, dispatcher, wl)

	trk.CheckPriceChange()
	trk.CheckPriceChange()

	assert.Equal(t, []string{"A", "B"}, source.calls)
	assert.ElementsMatch(t, []string{"A", "B"}, trk.Queue().Snapshot())
}

func TestSymbolRequeuedWhenRulesMissing(t *testing.T) {
	source := &fakeSource{quotes: map[string]quote.Quote{}}
	st := newFakeStore()
	dispatcher := &fakeDispatcher{}
	wl := testWatchlist(map[string][]config.ThresholdRule{
		"B": {{Value: 5.0, Users: []string{"u1"}}},
	}, map[string]float64{"u1": 1.0}, 100)

	// Queue holds a symbol with no configured rules
	trk := NewTracker(NewRotationQueue([]string{"A"}), source, st, dispatcher, wl)
	trk.CheckPriceChange()

	assert.Empty(t, dispatcher.sent)
	assert.Equal(t, []string{"A"}, trk.Queue().Snapshot())
}

func TestEmptyQueueTickIsNoOp(t *testing.T) {
	source := &fakeSource{}
	st := newFakeStore()
	dispatcher := &fakeDispatcher{}
	wl := testWatchlist(map[string][]config.ThresholdRule{
		"A": {{Value: 5.0, Users: []string{"u1"}}},
	}, map[string]float64{"u1": 1.0}, 100)
	trk := NewTracker(NewRotationQueue(nil), source, st, dispatcher, wl)

	trk.CheckPriceChange()

	assert.Empty(t, source.calls)
	assert.Empty(t, dispatcher.sent)
	assert.Equal(t, 0, trk.Queue().Len())
}
