package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *PerformanceTracker {
	t.Helper()
	return NewPerformanceTracker(nil, nil)
}

func logSettled(t *testing.T, tracker *PerformanceTracker, record PredictionRecord, result Result, profitLoss float64) string {
	t.Helper()
	id, err := tracker.LogPrediction(record)
	require.NoError(t, err)
	require.NoError(t, tracker.UpdateOutcome(id, 0, result, profitLoss))
	return id
}

func TestLogPrediction_AssignsIDAndClearsOutcome(t *testing.T) {
	tracker := newTestTracker(t)

	id, err := tracker.LogPrediction(PredictionRecord{
		Type:   "prop",
		League: "nba",
		// A caller-supplied outcome must not leak into a fresh record
		Settled:      true,
		ActualResult: ResultWin,
		ProfitLoss:   50,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	records := tracker.Records(false, 0)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.False(t, records[0].Settled)
	assert.Empty(t, records[0].ActualResult)
	assert.Zero(t, records[0].ProfitLoss)
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestUpdateOutcome_UnknownIDFailsLoudly(t *testing.T) {
	tracker := newTestTracker(t)
	err := tracker.UpdateOutcome("no-such-id", 110.5, ResultWin, 90)
	assert.ErrorIs(t, err, ErrUnknownPrediction)
}

func TestUpdateOutcome_SettlesExactlyOnce(t *testing.T) {
	tracker := newTestTracker(t)
	id, err := tracker.LogPrediction(PredictionRecord{Type: "spread", League: "nfl"})
	require.NoError(t, err)

	require.NoError(t, tracker.UpdateOutcome(id, 24.0, ResultWin, 90))
	err = tracker.UpdateOutcome(id, 17.0, ResultLoss, -100)
	assert.ErrorIs(t, err, ErrAlreadySettled)

	records := tracker.Records(true, 0)
	require.Len(t, records, 1)
	assert.Equal(t, ResultWin, records[0].ActualResult)
	assert.Equal(t, 24.0, records[0].ActualValue)
	assert.Equal(t, 90.0, records[0].ProfitLoss)
	assert.False(t, records[0].SettledAt.IsZero())
}

func TestRecords_FiltersAndLimits(t *testing.T) {
	tracker := newTestTracker(t)

	logSettled(t, tracker, PredictionRecord{Type: "prop"}, ResultWin, 90)
	logSettled(t, tracker, PredictionRecord{Type: "prop"}, ResultLoss, -100)
	_, err := tracker.LogPrediction(PredictionRecord{Type: "prop"})
	require.NoError(t, err)

	assert.Len(t, tracker.Records(false, 0), 3)
	assert.Len(t, tracker.Records(true, 0), 2)
	assert.Equal(t, 2, tracker.SettledCount(100))

	limited := tracker.Records(true, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, ResultLoss, limited[0].ActualResult)
}

func TestSummary_WinRateROIAndBrier(t *testing.T) {
	tracker := newTestTracker(t)

	logSettled(t, tracker, PredictionRecord{Type: "prop", League: "nba", PredictedProb: 0.60, Stake: 100}, ResultWin, 90)
	logSettled(t, tracker, PredictionRecord{Type: "prop", League: "nba", PredictedProb: 0.60, Stake: 100}, ResultLoss, -100)
	logSettled(t, tracker, PredictionRecord{Type: "prop", League: "nba", PredictedProb: 0.55, Stake: 100}, ResultWin, 90)

	summary := tracker.Summary("", "", 0)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 2, summary.Wins)
	assert.Equal(t, 1, summary.Losses)
	assert.InDelta(t, 2.0/3.0, summary.WinRate, 1e-9)
	assert.Equal(t, 300.0, summary.TotalStake)
	assert.Equal(t, 80.0, summary.TotalProfit)
	assert.InDelta(t, 80.0/300.0, summary.ROI, 1e-9)

	// (0.6-1)^2, (0.6-0)^2, (0.55-1)^2 averaged
	wantBrier := (0.16 + 0.36 + 0.2025) / 3
	assert.InDelta(t, wantBrier, summary.BrierScore, 1e-9)
}

func TestSummary_PushesExcludedFromWinRateAndBrier(t *testing.T) {
	tracker := newTestTracker(t)

	logSettled(t, tracker, PredictionRecord{PredictedProb: 0.60, Stake: 100}, ResultWin, 90)
	logSettled(t, tracker, PredictionRecord{PredictedProb: 0.60, Stake: 100}, ResultPush, 0)

	summary := tracker.Summary("", "", 0)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, 1, summary.Pushes)
	assert.Equal(t, 1.0, summary.WinRate, "push must not dilute the win rate")
	assert.InDelta(t, 0.16, summary.BrierScore, 1e-9, "push must not enter the Brier mean")
	// A push returns the stake but still counts toward turnover
	assert.Equal(t, 200.0, summary.TotalStake)
}

func TestSummary_Filters(t *testing.T) {
	tracker := newTestTracker(t)

	logSettled(t, tracker, PredictionRecord{Type: "prop", League: "nba", Stake: 100}, ResultWin, 90)
	logSettled(t, tracker, PredictionRecord{Type: "spread", League: "nba", Stake: 100}, ResultLoss, -100)
	logSettled(t, tracker, PredictionRecord{Type: "prop", League: "nfl", Stake: 100}, ResultLoss, -100)

	assert.Equal(t, 2, tracker.Summary("prop", "", 0).Count)
	assert.Equal(t, 2, tracker.Summary("", "nba", 0).Count)
	assert.Equal(t, 1, tracker.Summary("prop", "nba", 0).Count)
	assert.Equal(t, 0, tracker.Summary("total", "mlb", 0).Count)
}

func TestSummary_RecentWindow(t *testing.T) {
	tracker := newTestTracker(t)

	for i := 0; i < 5; i++ {
		logSettled(t, tracker, PredictionRecord{Stake: 100}, ResultLoss, -100)
	}
	for i := 0; i < 5; i++ {
		logSettled(t, tracker, PredictionRecord{Stake: 100}, ResultWin, 90)
	}

	assert.InDelta(t, 0.5, tracker.Summary("", "", 0).WinRate, 1e-9)
	assert.Equal(t, 1.0, tracker.Summary("", "", 5).WinRate, "window must read the most recent records")
}

func TestSummary_EmptyIsZeroValued(t *testing.T) {
	tracker := newTestTracker(t)
	summary := tracker.Summary("", "", 0)
	assert.Zero(t, summary.Count)
	assert.Zero(t, summary.WinRate)
	assert.Zero(t, summary.ROI)
	assert.Zero(t, summary.BrierScore)
}

func TestParameterPerformance_GroupsByValue(t *testing.T) {
	tracker := newTestTracker(t)

	at := func(value float64) PredictionRecord {
		return PredictionRecord{
			Stake:      100,
			Parameters: map[string]float64{"edge_threshold_prop": value},
		}
	}
	logSettled(t, tracker, at(0.040), ResultWin, 90)
	logSettled(t, tracker, at(0.040), ResultLoss, -100)
	logSettled(t, tracker, at(0.050), ResultWin, 90)

	// Unsettled and unstamped records stay out of the buckets
	_, err := tracker.LogPrediction(at(0.040))
	require.NoError(t, err)
	logSettled(t, tracker, PredictionRecord{Stake: 100}, ResultWin, 90)

	buckets := tracker.ParameterPerformance("edge_threshold_prop")
	require.Len(t, buckets, 2)

	low := buckets[0.040]
	assert.Equal(t, 2, low.Count)
	assert.InDelta(t, -10.0/200.0, low.ROI, 1e-9)

	high := buckets[0.050]
	assert.Equal(t, 1, high.Count)
	assert.InDelta(t, 0.9, high.ROI, 1e-9)
}
