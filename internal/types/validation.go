package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationResult is the structured "insufficient data" outcome for
// team/player context checks. Callers must skip the affected game or
// prop when Valid is false rather than substitute synthetic defaults.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

func (r ValidationResult) addIssue(format string, args ...interface{}) ValidationResult {
	r.Valid = false
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
	return r
}

// ValidateTeamContext checks that a team context carries every field the
// simulation depends on. Missing ratings fail validation outright.
func ValidateTeamContext(tc *TeamContext) ValidationResult {
	result := ValidationResult{Valid: true}
	if tc == nil {
		return result.addIssue("team context is missing")
	}

	if err := validate.Struct(tc); err != nil {
		if invalid, ok := err.(*validator.InvalidValidationError); ok {
			return result.addIssue("team context not validatable: %v", invalid)
		}
		for _, fieldErr := range err.(validator.ValidationErrors) {
			result = result.addIssue("%s: failed %q check (value %v)",
				fieldErr.Field(), fieldErr.Tag(), fieldErr.Value())
		}
	}

	// Sanity ranges beyond presence: ratings far outside league norms
	// indicate a bad upstream merge, not a real team.
	if tc.OffensiveRating > 0 && (tc.OffensiveRating < 70 || tc.OffensiveRating > 140) {
		result = result.addIssue("OffensiveRating: %.1f outside plausible range [70, 140]", tc.OffensiveRating)
	}
	if tc.DefensiveRating > 0 && (tc.DefensiveRating < 70 || tc.DefensiveRating > 140) {
		result = result.addIssue("DefensiveRating: %.1f outside plausible range [70, 140]", tc.DefensiveRating)
	}

	return result
}

// ValidatePlayerContext checks a single roster entry
func ValidatePlayerContext(pc *PlayerContext) ValidationResult {
	result := ValidationResult{Valid: true}
	if pc == nil {
		return result.addIssue("player context is missing")
	}

	if err := validate.Struct(pc); err != nil {
		if invalid, ok := err.(*validator.InvalidValidationError); ok {
			return result.addIssue("player context not validatable: %v", invalid)
		}
		for _, fieldErr := range err.(validator.ValidationErrors) {
			result = result.addIssue("%s (%s): failed %q check (value %v)",
				fieldErr.Field(), pc.Name, fieldErr.Tag(), fieldErr.Value())
		}
	}

	return result
}

// ValidateRoster validates every player and requires at least one entry
// per side so possession flips always have an offense to attribute.
func ValidateRoster(roster []PlayerContext) ValidationResult {
	result := ValidationResult{Valid: true}
	if len(roster) == 0 {
		return result.addIssue("roster is empty")
	}

	sides := map[Side]int{}
	for i := range roster {
		pr := ValidatePlayerContext(&roster[i])
		if !pr.Valid {
			result.Valid = false
			result.Issues = append(result.Issues, pr.Issues...)
		}
		sides[roster[i].Side]++
	}
	if sides[SideHome] == 0 {
		result = result.addIssue("roster has no home players")
	}
	if sides[SideAway] == 0 {
		result = result.addIssue("roster has no away players")
	}

	return result
}
