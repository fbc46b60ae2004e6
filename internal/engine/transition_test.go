package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/prop-engine/internal/types"
)

const probTolerance = 1e-6

var allLeagueStates = map[types.League][]string{
	types.LeagueNBA:   {StatePossession},
	types.LeagueNCAAB: {StatePossession},
	types.LeagueNHL:   {StateShift},
	types.LeagueNFL:   {StatePlayType, StatePassResult, StateRushResult, StateScoring},
	types.LeagueMLB:   {StatePlateAppearance},
}

func strongOffense() *types.TeamContext {
	return &types.TeamContext{
		Name:            "BOS",
		League:          "nba",
		OffensiveRating: 121.0,
		DefensiveRating: 110.5,
		Pace:            99.0,
		PointsPerGame:   117.5,
		FieldGoalPct:    0.49,
		ThreePointPct:   0.385,
	}
}

func weakDefense() *types.TeamContext {
	return &types.TeamContext{
		Name:            "WAS",
		League:          "nba",
		OffensiveRating: 108.0,
		DefensiveRating: 118.0,
		Pace:            101.5,
		PointsPerGame:   109.0,
		FieldGoalPct:    0.455,
		ThreePointPct:   0.342,
	}
}

func TestBaseTablesNormalized(t *testing.T) {
	for league, states := range allLeagueStates {
		for _, stateType := range states {
			m := NewTransitionMatrix(league, nil)
			dist, err := m.TransitionProbs(stateType)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, dist.Sum(), probTolerance,
				"%s/%s base table must sum to 1", league, stateType)
		}
	}
}

func TestAdjustedProbsNormalized_AllContexts(t *testing.T) {
	contexts := []GameContext{
		{},
		{IsClutch: true, ScoreDiff: 0, TimeRemaining: 1.0},
		{IsClutch: true, ScoreDiff: -5, TimeRemaining: 1.9},
		{IsGarbageTime: true, ScoreDiff: 28, TimeRemaining: 3.0},
	}

	for league, states := range allLeagueStates {
		m := NewTransitionMatrix(league, nil)
		for _, stateType := range states {
			for _, ctx := range contexts {
				dist, err := m.AdjustedProbs(stateType, strongOffense(), weakDefense(), ctx)
				require.NoError(t, err)
				assert.InDelta(t, 1.0, dist.Sum(), probTolerance,
					"%s/%s adjusted dist must sum to 1 (ctx %+v)", league, stateType, ctx)
			}
		}
	}
}

func TestAdjustedProbs_RatingLayerFavorsGoodOffense(t *testing.T) {
	m := NewTransitionMatrix(types.LeagueNBA, nil)

	base, err := m.TransitionProbs(StatePossession)
	require.NoError(t, err)

	adjusted, err := m.AdjustedProbs(StatePossession, strongOffense(), weakDefense(), GameContext{})
	require.NoError(t, err)

	assert.Greater(t, adjusted.Prob(OutcomeTwoPointMake), base.Prob(OutcomeTwoPointMake))
	assert.Less(t, adjusted.Prob(OutcomeTwoPointMiss), base.Prob(OutcomeTwoPointMiss))
}

func TestAdjustedProbs_ClutchShiftsTowardTurnovers(t *testing.T) {
	m := NewTransitionMatrix(types.LeagueNBA, nil)

	neutral, err := m.AdjustedProbs(StatePossession, nil, nil, GameContext{})
	require.NoError(t, err)

	clutch, err := m.AdjustedProbs(StatePossession, nil, nil,
		GameContext{IsClutch: true, ScoreDiff: 0, TimeRemaining: 1.0})
	require.NoError(t, err)

	assert.Greater(t, clutch.Prob(OutcomeTurnover), neutral.Prob(OutcomeTurnover))
	assert.Greater(t, clutch.Prob(OutcomeFreeThrows), neutral.Prob(OutcomeFreeThrows))
	assert.Less(t, clutch.Prob(OutcomeTwoPointMake), neutral.Prob(OutcomeTwoPointMake))
}

func TestAdjustedProbs_PressureGrowsAsGameTightens(t *testing.T) {
	m := NewTransitionMatrix(types.LeagueNBA, nil)

	tied, err := m.AdjustedProbs(StatePossession, nil, nil,
		GameContext{IsClutch: true, ScoreDiff: 0, TimeRemaining: 1.0})
	require.NoError(t, err)

	fivePoint, err := m.AdjustedProbs(StatePossession, nil, nil,
		GameContext{IsClutch: true, ScoreDiff: 5, TimeRemaining: 1.0})
	require.NoError(t, err)

	assert.Less(t, tied.Prob(OutcomeTwoPointMake), fivePoint.Prob(OutcomeTwoPointMake))
}

func TestSample_NeverUndefined(t *testing.T) {
	for league, states := range allLeagueStates {
		m := NewTransitionMatrix(league, nil)
		sampler := NewScalarSampler(42)
		for _, stateType := range states {
			valid := make(map[string]bool)
			base, err := m.TransitionProbs(stateType)
			require.NoError(t, err)
			for _, wo := range base {
				valid[wo.Outcome] = true
			}

			for i := 0; i < 500; i++ {
				outcome, err := m.Sample(sampler, stateType, strongOffense(), weakDefense(),
					GameContext{IsClutch: i%2 == 0, TimeRemaining: 1.0})
				require.NoError(t, err)
				assert.True(t, valid[outcome], "unexpected outcome %q for %s/%s", outcome, league, stateType)
			}
		}
	}
}

func TestTransitionProbs_UnknownStateType(t *testing.T) {
	m := NewTransitionMatrix(types.LeagueNBA, nil)
	_, err := m.TransitionProbs("inning")
	assert.Error(t, err)
}

func TestTransitionProbs_ReturnsCopy(t *testing.T) {
	m := NewTransitionMatrix(types.LeagueNBA, nil)
	first, err := m.TransitionProbs(StatePossession)
	require.NoError(t, err)
	first[0].Prob = 0.99

	second, err := m.TransitionProbs(StatePossession)
	require.NoError(t, err)
	assert.NotEqual(t, 0.99, second[0].Prob, "base tables must not be mutated by callers")
}
