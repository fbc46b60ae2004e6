package engine

import (
	"fmt"
	"math"

	"github.com/stitts-dev/prop-engine/internal/types"
)

// ParamLookup is the single read path from the calibration subsystem.
// It must never block and must return the supplied default for unknown
// parameter names.
type ParamLookup func(name string, def float64) float64

// noTuning is the lookup used when no calibrator is wired in
func noTuning(_ string, def float64) float64 { return def }

// League shooting baselines used to scale make probabilities by how a
// team shoots relative to its league.
const (
	baselineFieldGoalPct  = 0.47
	baselineThreePointPct = 0.36
)

// Outcome labels shared between the transition tables and the simulator
const (
	OutcomeTwoPointMake   = "two_point_make"
	OutcomeTwoPointMiss   = "two_point_miss"
	OutcomeThreePointMake = "three_point_make"
	OutcomeThreePointMiss = "three_point_miss"
	OutcomeFreeThrows     = "free_throws"
	OutcomeTurnover       = "turnover"

	OutcomeGoal     = "goal"
	OutcomeShotSave = "shot_save"
	OutcomeShotMiss = "shot_miss"
	OutcomePenalty  = "penalty"
	OutcomeNeutral  = "neutral_play"

	OutcomePass         = "pass"
	OutcomeRush         = "rush"
	OutcomeCompletion   = "completion"
	OutcomeIncompletion = "incompletion"
	OutcomeInterception = "interception"
	OutcomeSack         = "sack"
	OutcomeRushLoss     = "loss"
	OutcomeRushShort    = "short_gain"
	OutcomeRushMedium   = "medium_gain"
	OutcomeRushLong     = "long_gain"
	OutcomeFumble       = "fumble"
	OutcomeTouchdown    = "touchdown"
	OutcomeFieldGoal    = "field_goal"
	OutcomeNoScore      = "no_score"

	OutcomeSingle    = "single"
	OutcomeDouble    = "double"
	OutcomeTriple    = "triple"
	OutcomeHomeRun   = "home_run"
	OutcomeWalk      = "walk"
	OutcomeStrikeout = "strikeout"
	OutcomeOutInPlay = "out_in_play"
)

// State types understood by TransitionProbs per league
const (
	StatePossession       = "possession"
	StateShift            = "shift"
	StatePlayType         = "play_type"
	StatePassResult       = "pass_result"
	StateRushResult       = "rush_result"
	StateScoring          = "scoring"
	StatePlateAppearance  = "plate_appearance"
)

// outcomeClass drives which contextual multipliers apply to an outcome
type outcomeClass int

const (
	classNeutral outcomeClass = iota
	classTwoMake
	classThreeMake
	classScore // non-basketball scoring outcome
	classMiss
	classTurnover
	classFreeThrow
)

var outcomeClasses = map[string]outcomeClass{
	OutcomeTwoPointMake:   classTwoMake,
	OutcomeThreePointMake: classThreeMake,
	OutcomeTwoPointMiss:   classMiss,
	OutcomeThreePointMiss: classMiss,
	OutcomeFreeThrows:     classFreeThrow,
	OutcomeTurnover:       classTurnover,

	OutcomeGoal:     classScore,
	OutcomeShotSave: classMiss,
	OutcomeShotMiss: classMiss,
	OutcomePenalty:  classNeutral,
	OutcomeNeutral:  classNeutral,

	OutcomeCompletion:   classScore,
	OutcomeIncompletion: classMiss,
	OutcomeInterception: classTurnover,
	OutcomeSack:         classMiss,
	OutcomeRushLoss:     classMiss,
	OutcomeRushShort:    classNeutral,
	OutcomeRushMedium:   classScore,
	OutcomeRushLong:     classScore,
	OutcomeFumble:       classTurnover,
	OutcomeTouchdown:    classScore,
	OutcomeFieldGoal:    classScore,
	OutcomeNoScore:      classNeutral,

	OutcomeSingle:    classScore,
	OutcomeDouble:    classScore,
	OutcomeTriple:    classScore,
	OutcomeHomeRun:   classScore,
	OutcomeWalk:      classNeutral,
	OutcomeStrikeout: classMiss,
	OutcomeOutInPlay: classMiss,
}

// Per-league base probability tables. Each distribution sums to 1.0;
// TestBaseTablesNormalized guards that.
var baseTables = map[types.League]map[string]Dist{
	types.LeagueNBA: {
		StatePossession: {
			{OutcomeTwoPointMake, 0.28},
			{OutcomeTwoPointMiss, 0.22},
			{OutcomeThreePointMake, 0.12},
			{OutcomeThreePointMiss, 0.20},
			{OutcomeFreeThrows, 0.05},
			{OutcomeTurnover, 0.13},
		},
	},
	types.LeagueNCAAB: {
		StatePossession: {
			{OutcomeTwoPointMake, 0.27},
			{OutcomeTwoPointMiss, 0.23},
			{OutcomeThreePointMake, 0.10},
			{OutcomeThreePointMiss, 0.21},
			{OutcomeFreeThrows, 0.06},
			{OutcomeTurnover, 0.13},
		},
	},
	types.LeagueNHL: {
		StateShift: {
			{OutcomeGoal, 0.045},
			{OutcomeShotSave, 0.32},
			{OutcomeShotMiss, 0.23},
			{OutcomeTurnover, 0.28},
			{OutcomePenalty, 0.03},
			{OutcomeNeutral, 0.095},
		},
	},
	types.LeagueNFL: {
		StatePlayType: {
			{OutcomePass, 0.58},
			{OutcomeRush, 0.42},
		},
		StatePassResult: {
			{OutcomeCompletion, 0.645},
			{OutcomeIncompletion, 0.285},
			{OutcomeInterception, 0.025},
			{OutcomeSack, 0.045},
		},
		StateRushResult: {
			{OutcomeRushLoss, 0.12},
			{OutcomeRushShort, 0.48},
			{OutcomeRushMedium, 0.30},
			{OutcomeRushLong, 0.08},
			{OutcomeFumble, 0.02},
		},
		StateScoring: {
			{OutcomeTouchdown, 0.22},
			{OutcomeFieldGoal, 0.14},
			{OutcomeNoScore, 0.64},
		},
	},
	types.LeagueMLB: {
		StatePlateAppearance: {
			{OutcomeSingle, 0.140},
			{OutcomeDouble, 0.045},
			{OutcomeTriple, 0.004},
			{OutcomeHomeRun, 0.031},
			{OutcomeWalk, 0.085},
			{OutcomeStrikeout, 0.220},
			{OutcomeOutInPlay, 0.475},
		},
	},
}

// TransitionMatrix owns the per-league outcome tables and their
// context-sensitive rescaling.
type TransitionMatrix struct {
	league types.League
	params ParamLookup
}

// NewTransitionMatrix creates a matrix for one league. A nil lookup
// means untuned defaults.
func NewTransitionMatrix(league types.League, params ParamLookup) *TransitionMatrix {
	if params == nil {
		params = noTuning
	}
	return &TransitionMatrix{league: league, params: params}
}

// TransitionProbs returns a copy of the base distribution for one state
// type, so callers can rescale without touching the shared tables.
func (m *TransitionMatrix) TransitionProbs(stateType string) (Dist, error) {
	tables, ok := baseTables[m.league]
	if !ok {
		return nil, fmt.Errorf("no transition tables for league %s", m.league)
	}
	base, ok := tables[stateType]
	if !ok {
		return nil, fmt.Errorf("league %s has no state type %q", m.league, stateType)
	}
	return base.Clone(), nil
}

// PrimaryStateType returns the state type the possession loop samples
func (m *TransitionMatrix) PrimaryStateType() string {
	switch m.league {
	case types.LeagueNFL:
		return StatePlayType
	case types.LeagueNHL:
		return StateShift
	case types.LeagueMLB:
		return StatePlateAppearance
	default:
		return StatePossession
	}
}

// AdjustedProbs layers team-rating, clutch, and garbage-time
// adjustments over the base distribution, renormalizing after each
// layer so the result always sums to 1.0 before sampling.
func (m *TransitionMatrix) AdjustedProbs(stateType string, off, def *types.TeamContext, ctx GameContext) (Dist, error) {
	dist, err := m.TransitionProbs(stateType)
	if err != nil {
		return nil, err
	}

	if off != nil && def != nil {
		m.applyRatingLayer(dist, off, def)
		dist.Normalize()
	}

	if ctx.IsClutch {
		m.applyClutchLayer(dist, ctx)
		dist.Normalize()
	}

	if ctx.IsGarbageTime {
		m.applyGarbageLayer(dist)
		dist.Normalize()
	}

	return dist, nil
}

// Sample draws one context-adjusted outcome via cumulative sampling.
// It never returns an undefined outcome for a known state type.
func (m *TransitionMatrix) Sample(s Sampler, stateType string, off, def *types.TeamContext, ctx GameContext) (string, error) {
	dist, err := m.AdjustedProbs(stateType, off, def, ctx)
	if err != nil {
		return "", err
	}
	outcome, ok := SampleOutcome(s, dist)
	if !ok {
		return "", fmt.Errorf("empty distribution for state type %q", stateType)
	}
	return outcome, nil
}

func (m *TransitionMatrix) applyRatingLayer(dist Dist, off, def *types.TeamContext) {
	offMult := off.OffensiveRating / 110.0
	defMult := 110.0 / math.Max(def.DefensiveRating, 90.0)
	combined := (offMult + defMult) / 2.0
	if combined <= 0 {
		return
	}

	fgPct := off.FieldGoalPct
	if fgPct <= 0 {
		fgPct = baselineFieldGoalPct
	}
	tpPct := off.ThreePointPct
	if tpPct <= 0 {
		tpPct = baselineThreePointPct
	}

	for i := range dist {
		switch outcomeClasses[dist[i].Outcome] {
		case classTwoMake:
			dist[i].Prob *= combined * (fgPct / baselineFieldGoalPct)
			if dist[i].Prob > 0.50 {
				dist[i].Prob = 0.50
			}
		case classThreeMake:
			dist[i].Prob *= combined * (tpPct / baselineThreePointPct)
			if dist[i].Prob > 0.20 {
				dist[i].Prob = 0.20
			}
		case classScore:
			dist[i].Prob *= combined
		case classMiss:
			dist[i].Prob /= combined
		}
	}
}

// applyClutchLayer tightens efficiency and raises turnover and
// free-throw rates late in close games. The pressure term runs 0 at a
// five-point margin up to 1 at a tie, widening every multiplier.
func (m *TransitionMatrix) applyClutchLayer(dist Dist, ctx GameContext) {
	absDiff := math.Abs(float64(ctx.ScoreDiff))
	pressure := (5.0 - math.Min(absDiff, 5.0)) / 5.0

	makeFactor := 0.92 - 0.07*pressure // 0.85 .. 0.92
	missFactor := 1.05 + 0.15*pressure // 1.05 .. 1.20
	turnoverFactor := 1.15 + 0.05*pressure
	freeThrowFactor := 1.50

	for i := range dist {
		switch outcomeClasses[dist[i].Outcome] {
		case classTwoMake, classThreeMake, classScore:
			dist[i].Prob *= makeFactor
		case classMiss:
			dist[i].Prob *= missFactor
		case classTurnover:
			dist[i].Prob *= turnoverFactor
		case classFreeThrow:
			dist[i].Prob *= freeThrowFactor
		}
	}
}

// applyGarbageLayer degrades efficiency once the margin is out of reach
// and bench units are on the floor.
func (m *TransitionMatrix) applyGarbageLayer(dist Dist) {
	for i := range dist {
		switch outcomeClasses[dist[i].Outcome] {
		case classTwoMake, classThreeMake, classScore:
			dist[i].Prob *= 0.90
		case classMiss:
			dist[i].Prob *= 1.08
		case classTurnover:
			dist[i].Prob *= 1.25
		case classFreeThrow:
			dist[i].Prob *= 0.85
		}
	}
}
