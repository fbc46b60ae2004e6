package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource feeds the tuner canned metrics without a real tracker
type fakeSource struct {
	summary PerformanceSummary
	settled int
	buckets map[string]map[float64]ParamBucket
}

func (f *fakeSource) Summary(predictionType, league string, recentN int) PerformanceSummary {
	return f.summary
}

func (f *fakeSource) SettledCount(window int) int { return f.settled }

func (f *fakeSource) ParameterPerformance(name string) map[float64]ParamBucket {
	return f.buckets[name]
}

func TestDefaultParameters_WithinBounds(t *testing.T) {
	for name, p := range DefaultParameters() {
		assert.GreaterOrEqual(t, p.Current, p.Min, name)
		assert.LessOrEqual(t, p.Current, p.Max, name)
		assert.Greater(t, p.Step, 0.0, name)
	}
}

func TestClamp(t *testing.T) {
	p := ParameterConfig{Min: 0.010, Max: 0.100}
	assert.Equal(t, 0.100, p.Clamp(0.5))
	assert.Equal(t, 0.010, p.Clamp(-1))
	assert.Equal(t, 0.055, p.Clamp(0.055))
}

func TestAutoTune_InsufficientDataLeavesParametersUntouched(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	before := tuner.Snapshot()

	src := &fakeSource{
		settled: 10,
		summary: PerformanceSummary{WinRate: 0.30, ROI: -0.40, BrierScore: 0.40},
	}
	result := tuner.AutoTune(src, StrategyAdaptive, 50, 100)

	assert.Equal(t, StatusInsufficientData, result.Status)
	assert.Equal(t, 10, result.SampleSize)
	assert.Empty(t, result.Adjustments)
	assert.Equal(t, before, tuner.Snapshot())
}

func TestAutoTune_AdaptiveRaisesSelectivityOnLowWinRate(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	spreadBefore, _ := tuner.Parameter("edge_threshold_spread")
	propBefore, _ := tuner.Parameter("edge_threshold_prop")

	src := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.45, ROI: -0.08},
	}
	result := tuner.AutoTune(src, StrategyAdaptive, 50, 100)

	require.Equal(t, StatusTuned, result.Status)
	require.Len(t, result.Adjustments, 2)
	for _, adj := range result.Adjustments {
		assert.Greater(t, adj.NewValue, adj.OldValue)
		assert.Contains(t, adj.Reason, "win rate 0.450 below 0.48")
	}

	// ROI in [-0.15,-0.05) scales the step by 1.5x
	spreadAfter, _ := tuner.Parameter("edge_threshold_spread")
	propAfter, _ := tuner.Parameter("edge_threshold_prop")
	assert.InDelta(t, spreadBefore+0.005*1.5, spreadAfter, 1e-9)
	assert.InDelta(t, propBefore+0.005*1.5, propAfter, 1e-9)
}

func TestAutoTune_AdaptiveLoosensOnHighWinRate(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	spreadBefore, _ := tuner.Parameter("edge_threshold_spread")

	src := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.60, ROI: 0.20},
	}
	result := tuner.AutoTune(src, StrategyAdaptive, 50, 100)

	require.Equal(t, StatusTuned, result.Status)
	spreadAfter, _ := tuner.Parameter("edge_threshold_spread")
	// Comfortable ROI means 0.5x magnitude, and loosening takes half steps
	assert.InDelta(t, spreadBefore-0.005*0.5/2, spreadAfter, 1e-9)
}

func TestAutoTune_AdaptiveTightensShrinkageOnPoorBrier(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	before, _ := tuner.Parameter("calibration_shrinkage")

	src := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.50, ROI: 0.0, BrierScore: 0.26},
	}
	result := tuner.AutoTune(src, StrategyAdaptive, 50, 100)

	require.Equal(t, StatusTuned, result.Status)
	require.Len(t, result.Adjustments, 1)
	assert.Equal(t, "calibration_shrinkage", result.Adjustments[0].Parameter)

	after, _ := tuner.Parameter("calibration_shrinkage")
	assert.InDelta(t, before+0.05, after, 1e-9)
}

func TestAutoTune_AdaptiveNoChangesWhenHealthy(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	before := tuner.Snapshot()

	src := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.52, ROI: 0.05, BrierScore: 0.15},
	}
	result := tuner.AutoTune(src, StrategyAdaptive, 50, 100)

	assert.Equal(t, StatusNoChanges, result.Status)
	assert.Equal(t, before, tuner.Snapshot())
}

func TestAutoTune_AdjustmentsClampAtBounds(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	// Drive the thresholds to their ceiling with repeated bad windows
	src := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.30, ROI: -0.50},
	}
	for i := 0; i < 20; i++ {
		tuner.AutoTune(src, StrategyAdaptive, 50, 100)
	}

	spread, _ := tuner.Parameter("edge_threshold_spread")
	prop, _ := tuner.Parameter("edge_threshold_prop")
	assert.Equal(t, 0.100, spread)
	assert.Equal(t, 0.120, prop)

	// Pinned at the bound, another pass reports no changes
	result := tuner.AutoTune(src, StrategyAdaptive, 50, 100)
	assert.Equal(t, StatusNoChanges, result.Status)
}

func TestAutoTune_ConservativeOnlyActsOnClearSignals(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	before := tuner.Snapshot()

	healthy := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.40, ROI: -0.05, BrierScore: 0.22},
	}
	result := tuner.AutoTune(healthy, StrategyConservative, 50, 100)
	assert.Equal(t, StatusNoChanges, result.Status, "mild signals must not move conservative tuning")
	assert.Equal(t, before, tuner.Snapshot())

	bleeding := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.40, ROI: -0.20, BrierScore: 0.30},
	}
	result = tuner.AutoTune(bleeding, StrategyConservative, 50, 100)
	require.Equal(t, StatusTuned, result.Status)

	spread, _ := tuner.Parameter("edge_threshold_spread")
	shrinkage, _ := tuner.Parameter("calibration_shrinkage")
	assert.InDelta(t, before["edge_threshold_spread"]+0.005/2, spread, 1e-9)
	assert.InDelta(t, before["calibration_shrinkage"]+0.05/2, shrinkage, 1e-9)
}

func TestAutoTune_GradientMovesHalfwayToBestValue(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	before, _ := tuner.Parameter("edge_threshold_spread")

	src := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.50},
		buckets: map[string]map[float64]ParamBucket{
			"edge_threshold_spread": {
				0.050: {Count: 25, TotalStake: 2500, TotalProfit: 300, ROI: 0.12},
				0.030: {Count: 40, TotalStake: 4000, TotalProfit: -200, ROI: -0.05},
			},
		},
	}
	result := tuner.AutoTune(src, StrategyGradient, 50, 100)

	require.Equal(t, StatusTuned, result.Status)
	require.Len(t, result.Adjustments, 1)
	assert.Contains(t, result.Adjustments[0].Reason, "moving halfway")

	after, _ := tuner.Parameter("edge_threshold_spread")
	assert.InDelta(t, before+(0.050-before)/2, after, 1e-9)
}

func TestAutoTune_GradientIgnoresThinOrLosingBuckets(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	before := tuner.Snapshot()

	src := &fakeSource{
		settled: 80,
		buckets: map[string]map[float64]ParamBucket{
			"edge_threshold_spread": {
				0.080: {Count: 5, ROI: 0.50},   // too few samples
				0.020: {Count: 30, ROI: -0.02}, // not profitable
			},
		},
	}
	result := tuner.AutoTune(src, StrategyGradient, 50, 100)

	assert.Equal(t, StatusNoChanges, result.Status)
	assert.Equal(t, before, tuner.Snapshot())
}

func TestParameter_UnknownName(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	_, ok := tuner.Parameter("nonexistent_param")
	assert.False(t, ok)
}

func TestResetDefaults(t *testing.T) {
	tuner := NewParameterTuner(nil, nil)
	src := &fakeSource{
		settled: 80,
		summary: PerformanceSummary{WinRate: 0.40, ROI: -0.20},
	}
	tuner.AutoTune(src, StrategyAdaptive, 50, 100)

	require.NoError(t, tuner.ResetDefaults())

	defaults := DefaultParameters()
	for name, p := range tuner.Parameters() {
		assert.Equal(t, defaults[name].Current, p.Current, name)
	}
}

func TestAdaptiveMagnitudeBands(t *testing.T) {
	assert.Equal(t, 2.0, adaptiveMagnitude(-0.30))
	assert.Equal(t, 1.5, adaptiveMagnitude(-0.10))
	assert.Equal(t, 1.0, adaptiveMagnitude(0.0))
	assert.Equal(t, 0.75, adaptiveMagnitude(0.10))
	assert.Equal(t, 0.5, adaptiveMagnitude(0.30))
}
