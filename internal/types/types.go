package types

import (
	"fmt"
	"strings"
)

// League identifies a supported competition. Per-league behavior is
// dispatched on this closed set rather than on raw strings.
type League int

const (
	LeagueNBA League = iota
	LeagueNCAAB
	LeagueNFL
	LeagueNHL
	LeagueMLB
)

var leagueNames = map[League]string{
	LeagueNBA:   "nba",
	LeagueNCAAB: "ncaab",
	LeagueNFL:   "nfl",
	LeagueNHL:   "nhl",
	LeagueMLB:   "mlb",
}

// ParseLeague converts a league code string to a League
func ParseLeague(s string) (League, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nba":
		return LeagueNBA, nil
	case "ncaab", "cbb":
		return LeagueNCAAB, nil
	case "nfl":
		return LeagueNFL, nil
	case "nhl":
		return LeagueNHL, nil
	case "mlb":
		return LeagueMLB, nil
	default:
		return 0, fmt.Errorf("unsupported league: %q", s)
	}
}

func (l League) String() string {
	if name, ok := leagueNames[l]; ok {
		return name
	}
	return "unknown"
}

// GameMinutes returns the regulation clock in minutes, or 0 for leagues
// without a continuously tracked clock (simulated by event count instead).
func (l League) GameMinutes() float64 {
	switch l {
	case LeagueNBA:
		return 48
	case LeagueNCAAB:
		return 40
	case LeagueNFL, LeagueNHL:
		return 60
	default:
		return 0
	}
}

// TimeBased reports whether the league supports clock-driven simulation.
// MLB is event-count only: a plate appearance has no clock.
func (l League) TimeBased() bool {
	return l != LeagueMLB
}

// UsesDownAndDistance reports whether down/distance/field position apply
func (l League) UsesDownAndDistance() bool {
	return l == LeagueNFL
}

// TeamContext holds team-level inputs consumed from the data layer.
// All rating fields must be positive for NBA-style leagues; validation
// failures mean the game is skipped, never defaulted.
type TeamContext struct {
	Name             string  `json:"name" validate:"required"`
	League           string  `json:"league" validate:"required"`
	OffensiveRating  float64 `json:"offensive_rating" validate:"gt=0"`
	DefensiveRating  float64 `json:"defensive_rating" validate:"gt=0"`
	Pace             float64 `json:"pace" validate:"gt=0"`
	PointsPerGame    float64 `json:"points_per_game" validate:"gt=0"`
	FieldGoalPct     float64 `json:"field_goal_pct" validate:"gt=0,lte=1"`
	ThreePointPct    float64 `json:"three_point_pct" validate:"gte=0,lte=1"`
}

// Side marks which bench a player belongs to for one simulated game
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// PlayerContext holds player-level inputs consumed from the data layer
type PlayerContext struct {
	Name        string  `json:"name" validate:"required"`
	Team        string  `json:"team" validate:"required"`
	Position    string  `json:"position"`
	Side        Side    `json:"side" validate:"required,oneof=home away"`
	UsageRate   float64 `json:"usage_rate" validate:"gte=0,lte=1"`
	ReboundRate float64 `json:"rebound_rate" validate:"gte=0,lte=1"`
	TargetShare float64 `json:"target_share" validate:"gte=0,lte=1"`
	CarryShare  float64 `json:"carry_share" validate:"gte=0,lte=1"`

	// Per-stat projection moments keyed by stat name, e.g. "points",
	// "rebounds", "assists", "receiving_yards".
	StatMeans   map[string]float64 `json:"stat_means"`
	StatStdDevs map[string]float64 `json:"stat_std_devs"`
}
