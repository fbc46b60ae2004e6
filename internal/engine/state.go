package engine

import (
	"math"

	"github.com/stitts-dev/prop-engine/internal/types"
)

// MarkovState is the mutable snapshot of one simulation run. It is
// created by SimulateGame, mutated only by the simulator loop, and
// discarded once the caller has read final values.
type MarkovState struct {
	League        types.League `json:"league"`
	Period        int          `json:"period"`
	TimeRemaining float64      `json:"time_remaining"` // minutes
	HomeScore     int          `json:"home_score"`
	AwayScore     int          `json:"away_score"`
	Possession    types.Side   `json:"possession"`

	// Gridiron-only situational state, unused for other leagues
	Down          int `json:"down,omitempty"`
	Distance      int `json:"distance,omitempty"`
	FieldPosition int `json:"field_position,omitempty"`

	// PlayerStats maps player name -> stat name -> accumulated value
	PlayerStats map[string]map[string]float64 `json:"player_stats"`

	possessions int
}

// NewMarkovState initializes a run for the given league with its
// regulation clock and the home side opening possession.
func NewMarkovState(league types.League) *MarkovState {
	state := &MarkovState{
		League:        league,
		Period:        1,
		TimeRemaining: league.GameMinutes(),
		Possession:    types.SideHome,
		PlayerStats:   make(map[string]map[string]float64),
	}
	if league.UsesDownAndDistance() {
		state.Down = 1
		state.Distance = 10
		state.FieldPosition = 25
	}
	return state
}

// ScoreDifferential returns home score minus away score
func (s *MarkovState) ScoreDifferential() int {
	return s.HomeScore - s.AwayScore
}

// AddPoints credits points to one side. Scores only ever increase.
func (s *MarkovState) AddPoints(side types.Side, points int) {
	if points <= 0 {
		return
	}
	if side == types.SideHome {
		s.HomeScore += points
	} else {
		s.AwayScore += points
	}
}

// AddStat accumulates a per-player stat delta
func (s *MarkovState) AddStat(player, stat string, delta float64) {
	if player == "" {
		return
	}
	if _, ok := s.PlayerStats[player]; !ok {
		s.PlayerStats[player] = make(map[string]float64)
	}
	s.PlayerStats[player][stat] += delta
}

// AdvanceClock burns game time. The clock never goes below zero.
func (s *MarkovState) AdvanceClock(minutes float64) {
	s.TimeRemaining -= minutes
	if s.TimeRemaining < 0 {
		s.TimeRemaining = 0
	}
}

// FlipPossession hands the ball to the other side
func (s *MarkovState) FlipPossession() {
	if s.Possession == types.SideHome {
		s.Possession = types.SideAway
	} else {
		s.Possession = types.SideHome
	}
}

// GameContext is the read-only situational view derived from state.
// It is recomputed every possession and never stored.
type GameContext struct {
	IsClutch      bool    `json:"is_clutch"`
	IsGarbageTime bool    `json:"is_garbage_time"`
	ScoreDiff     int     `json:"score_diff"`
	TimeRemaining float64 `json:"time_remaining"`
}

// Context derives the current situational flags. Clutch requires a live
// clock strictly inside (0, 2.0) minutes and a margin of five or fewer;
// garbage time requires under five minutes and a margin above twenty.
func (s *MarkovState) Context() GameContext {
	diff := s.ScoreDifferential()
	absDiff := int(math.Abs(float64(diff)))

	return GameContext{
		IsClutch:      s.TimeRemaining > 0 && s.TimeRemaining < 2.0 && absDiff <= 5,
		IsGarbageTime: s.TimeRemaining > 0 && s.TimeRemaining < 5.0 && absDiff > 20,
		ScoreDiff:     diff,
		TimeRemaining: s.TimeRemaining,
	}
}
