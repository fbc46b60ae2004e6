package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(
		filepath.Join(dir, "parameters.json"),
		filepath.Join(dir, "predictions.json"),
		nil,
	)
}

func TestFileStore_ParameterRoundTrip(t *testing.T) {
	store := newTestFileStore(t)

	saved := DefaultParameters()
	saved["edge_threshold_spread"].Current = 0.045
	require.NoError(t, store.SaveParameters(saved))

	loaded, err := store.LoadParameters()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	// Round-trip must preserve every field bit for bit
	savedJSON, err := json.Marshal(saved)
	require.NoError(t, err)
	loadedJSON, err := json.Marshal(loaded)
	require.NoError(t, err)
	assert.JSONEq(t, string(savedJSON), string(loadedJSON))
}

func TestFileStore_PredictionRoundTrip(t *testing.T) {
	store := newTestFileStore(t)

	records := []PredictionRecord{
		{
			ID:            "a",
			Type:          "prop",
			League:        "nba",
			PredictedProb: 0.61,
			Stake:         100,
			Parameters:    map[string]float64{"pace_multiplier": 1.05},
			CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Settled:       true,
			ActualResult:  ResultWin,
			ProfitLoss:    90,
		},
		{ID: "b", Type: "spread", League: "nfl"},
	}
	require.NoError(t, store.SavePredictions(records))

	loaded, err := store.LoadPredictions()
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestFileStore_MissingFilesReturnEmpty(t *testing.T) {
	store := newTestFileStore(t)

	params, err := store.LoadParameters()
	require.NoError(t, err)
	assert.Nil(t, params)

	records, err := store.LoadPredictions()
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestFileStore_CorruptFileFallsBackEmpty(t *testing.T) {
	dir := t.TempDir()
	paramPath := filepath.Join(dir, "parameters.json")
	require.NoError(t, os.WriteFile(paramPath, []byte("{not json"), 0o644))

	store := NewFileStore(paramPath, filepath.Join(dir, "predictions.json"), nil)
	params, err := store.LoadParameters()
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestFileStore_CreatesStateDirectory(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(
		filepath.Join(dir, "nested", "state", "parameters.json"),
		filepath.Join(dir, "nested", "state", "predictions.json"),
		nil,
	)
	require.NoError(t, store.SaveParameters(DefaultParameters()))

	loaded, err := store.LoadParameters()
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestFileStore_SaveOverwritesPrevious(t *testing.T) {
	store := newTestFileStore(t)

	require.NoError(t, store.SavePredictions([]PredictionRecord{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, store.SavePredictions([]PredictionRecord{{ID: "c"}}))

	loaded, err := store.LoadPredictions()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "c", loaded[0].ID)
}

func TestTuner_PersistedValuesSurviveRestart(t *testing.T) {
	store := newTestFileStore(t)

	first := NewParameterTuner(store, nil)
	src := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.40, ROI: -0.20},
	}
	result := first.AutoTune(src, StrategyAdaptive, 50, 100)
	require.Equal(t, StatusTuned, result.Status)
	tuned, _ := first.Parameter("edge_threshold_spread")

	second := NewParameterTuner(store, nil)
	reloaded, ok := second.Parameter("edge_threshold_spread")
	require.True(t, ok)
	assert.Equal(t, tuned, reloaded)
}

func TestTracker_LogSurvivesRestart(t *testing.T) {
	store := newTestFileStore(t)

	first := NewPerformanceTracker(store, nil)
	id, err := first.LogPrediction(PredictionRecord{Type: "prop", League: "nba", Stake: 100})
	require.NoError(t, err)
	require.NoError(t, first.UpdateOutcome(id, 0, ResultWin, 90))

	second := NewPerformanceTracker(store, nil)
	records := second.Records(false, 0)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.True(t, records[0].Settled)

	// The reloaded index must resolve ids for further settlement
	err = second.UpdateOutcome(id, 0, ResultLoss, -100)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}
