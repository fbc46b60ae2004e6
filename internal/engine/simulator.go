package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/prop-engine/internal/types"
)

// PossessionCap bounds worst-case runtime. A well-formed simulation
// terminates on the clock long before reaching it.
const PossessionCap = 300

const (
	clutchPossessionMinutes = 0.58
	normalPossessionMinutes = 0.40
	freeThrowMakePct        = 0.78
)

// InsufficientDataError carries the itemized validation issues for a
// game the caller must skip entirely.
type InsufficientDataError struct {
	Result types.ValidationResult
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s", strings.Join(e.Result.Issues, "; "))
}

// SimulatorConfig wires a simulator together
type SimulatorConfig struct {
	League         types.League
	Roster         []types.PlayerContext
	HomeContext    *types.TeamContext
	AwayContext    *types.TeamContext
	Params         ParamLookup
	SamplerBackend string
	Logger         *logrus.Logger
}

// Simulator runs play-by-play Markov simulations of a single matchup
type Simulator struct {
	league         types.League
	roster         []types.PlayerContext
	homeCtx        *types.TeamContext
	awayCtx        *types.TeamContext
	matrix         *TransitionMatrix
	params         ParamLookup
	samplerBackend string
	logger         *logrus.Logger

	homePlayers []types.PlayerContext
	awayPlayers []types.PlayerContext
}

// NewSimulator validates inputs and builds a simulator. A validation
// failure comes back as *InsufficientDataError; the matchup must be
// skipped, never defaulted.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	result := types.ValidateRoster(cfg.Roster)
	if cfg.HomeContext != nil {
		if teamResult := types.ValidateTeamContext(cfg.HomeContext); !teamResult.Valid {
			result.Valid = false
			result.Issues = append(result.Issues, teamResult.Issues...)
		}
	}
	if cfg.AwayContext != nil {
		if teamResult := types.ValidateTeamContext(cfg.AwayContext); !teamResult.Valid {
			result.Valid = false
			result.Issues = append(result.Issues, teamResult.Issues...)
		}
	}
	if !result.Valid {
		return nil, &InsufficientDataError{Result: result}
	}

	params := cfg.Params
	if params == nil {
		params = noTuning
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}

	sim := &Simulator{
		league:         cfg.League,
		roster:         cfg.Roster,
		homeCtx:        cfg.HomeContext,
		awayCtx:        cfg.AwayContext,
		matrix:         NewTransitionMatrix(cfg.League, params),
		params:         params,
		samplerBackend: cfg.SamplerBackend,
		logger:         logger,
	}
	for _, p := range cfg.Roster {
		if p.Side == types.SideHome {
			sim.homePlayers = append(sim.homePlayers, p)
		} else {
			sim.awayPlayers = append(sim.awayPlayers, p)
		}
	}
	return sim, nil
}

// GameOptions control one SimulateGame call
type GameOptions struct {
	// MaxPossessions overrides the default event budget for
	// count-based leagues; the hard safety cap still applies.
	MaxPossessions int
	Seed           int64
	// TimeBased selects clock-driven simulation. Ignored for leagues
	// without a clock, which always run on event count.
	TimeBased bool
}

// GameResult is the outcome of a single simulated game
type GameResult struct {
	FinalState  *MarkovState `json:"final_state"`
	Possessions int          `json:"possessions"`
	// OutcomeLog records every sampled outcome in order; identical
	// across runs with the same seed and inputs.
	OutcomeLog []string `json:"outcome_log,omitempty"`
}

// SimulateGame runs one full game. Deterministic for a fixed seed.
func (sim *Simulator) SimulateGame(opts GameOptions) (*GameResult, error) {
	sampler := NewSampler(sim.samplerBackend, opts.Seed)
	state := NewMarkovState(sim.league)

	timeBased := opts.TimeBased && sim.league.TimeBased()
	budget := opts.MaxPossessions
	if budget <= 0 || budget > PossessionCap {
		budget = PossessionCap
	}
	if !timeBased && opts.MaxPossessions <= 0 {
		budget = sim.defaultEventBudget()
	}

	result := &GameResult{FinalState: state}

	// Baseball base-state, cleared every half inning
	var bases [3]bool
	outs := 0

	for state.possessions < budget {
		if timeBased && state.TimeRemaining <= 0 {
			break
		}

		ctx := state.Context()

		var err error
		switch sim.league {
		case types.LeagueNFL:
			err = sim.runFootballPlay(state, ctx, sampler, result)
		case types.LeagueMLB:
			err = sim.runPlateAppearance(state, ctx, sampler, result, &bases, &outs)
		case types.LeagueNHL:
			err = sim.runShift(state, ctx, sampler, result)
		default:
			err = sim.runBasketballPossession(state, ctx, sampler, result)
		}
		if err != nil {
			return nil, err
		}

		if timeBased {
			state.AdvanceClock(sim.possessionMinutes(ctx, sampler))
			sim.updatePeriod(state)
		}
		state.possessions++
	}

	result.Possessions = state.possessions
	if state.possessions >= PossessionCap {
		sim.logger.WithFields(logrus.Fields{
			"league":      sim.league.String(),
			"possessions": state.possessions,
		}).Warn("Simulation hit possession safety cap")
	}

	return result, nil
}

func (sim *Simulator) defaultEventBudget() int {
	switch sim.league {
	case types.LeagueMLB:
		return 76 // typical combined plate appearances
	default:
		return PossessionCap
	}
}

// possessionMinutes draws a stochastic possession length. Clutch play
// slows the game; otherwise a tunable pace multiplier scales the mean
// with +/-20% jitter.
func (sim *Simulator) possessionMinutes(ctx GameContext, sampler Sampler) float64 {
	mean := normalPossessionMinutes * sim.params("pace_multiplier", 1.0)
	if ctx.IsClutch {
		mean = clutchPossessionMinutes
	}
	jitter := 0.8 + 0.4*sampler.Float64()
	return mean * jitter
}

func (sim *Simulator) updatePeriod(state *MarkovState) {
	total := sim.league.GameMinutes()
	if total <= 0 {
		return
	}
	periods := 4.0
	switch sim.league {
	case types.LeagueNCAAB:
		periods = 2
	case types.LeagueNHL:
		periods = 3
	}
	elapsed := total - state.TimeRemaining
	period := int(elapsed/(total/periods)) + 1
	if period > int(periods) {
		period = int(periods)
	}
	state.Period = period
}

func (sim *Simulator) offenseDefense(state *MarkovState) (*types.TeamContext, *types.TeamContext) {
	if state.Possession == types.SideHome {
		return sim.homeCtx, sim.awayCtx
	}
	return sim.awayCtx, sim.homeCtx
}

func (sim *Simulator) offensePlayers(state *MarkovState) []types.PlayerContext {
	if state.Possession == types.SideHome {
		return sim.homePlayers
	}
	return sim.awayPlayers
}

func (sim *Simulator) defensePlayers(state *MarkovState) []types.PlayerContext {
	if state.Possession == types.SideHome {
		return sim.awayPlayers
	}
	return sim.homePlayers
}

func (sim *Simulator) sample(state *MarkovState, ctx GameContext, sampler Sampler, stateType string, result *GameResult) (string, error) {
	off, def := sim.offenseDefense(state)
	outcome, err := sim.matrix.Sample(sampler, stateType, off, def, ctx)
	if err != nil {
		return "", err
	}
	result.OutcomeLog = append(result.OutcomeLog, outcome)
	return outcome, nil
}

// runBasketballPossession resolves one NBA/NCAAB possession
func (sim *Simulator) runBasketballPossession(state *MarkovState, ctx GameContext, sampler Sampler, result *GameResult) error {
	outcome, err := sim.sample(state, ctx, sampler, StatePossession, result)
	if err != nil {
		return err
	}

	offense := sim.offensePlayers(state)
	defense := sim.defensePlayers(state)

	switch outcome {
	case OutcomeTwoPointMake, OutcomeThreePointMake:
		points := 2
		assistChance := 0.55
		if outcome == OutcomeThreePointMake {
			points = 3
			assistChance = 0.80
		}
		state.AddPoints(state.Possession, points)
		scorer := sim.selectInvolvedPlayer(offense, statScoring, ctx, sampler)
		if scorer != nil {
			state.AddStat(scorer.Name, "points", float64(points))
			state.AddStat(scorer.Name, "field_goals_made", 1)
			if sampler.Float64() < assistChance {
				if assister := sim.selectInvolvedPlayerExcluding(offense, statScoring, ctx, sampler, scorer.Name); assister != nil {
					state.AddStat(assister.Name, "assists", 1)
				}
			}
		}
		state.FlipPossession()

	case OutcomeTwoPointMiss, OutcomeThreePointMiss:
		shooter := sim.selectInvolvedPlayer(offense, statScoring, ctx, sampler)
		if shooter != nil {
			state.AddStat(shooter.Name, "field_goals_missed", 1)
		}
		// Offense keeps it on roughly a quarter of missed shots
		if sampler.Float64() < 0.25 {
			if rebounder := sim.selectInvolvedPlayer(offense, statRebounding, ctx, sampler); rebounder != nil {
				state.AddStat(rebounder.Name, "rebounds", 1)
			}
		} else {
			if rebounder := sim.selectInvolvedPlayer(defense, statRebounding, ctx, sampler); rebounder != nil {
				state.AddStat(rebounder.Name, "rebounds", 1)
			}
			state.FlipPossession()
		}

	case OutcomeFreeThrows:
		shooter := sim.selectInvolvedPlayer(offense, statScoring, ctx, sampler)
		made := 0
		for attempt := 0; attempt < 2; attempt++ {
			if sampler.Float64() < freeThrowMakePct {
				made++
			}
		}
		state.AddPoints(state.Possession, made)
		if shooter != nil {
			state.AddStat(shooter.Name, "points", float64(made))
			state.AddStat(shooter.Name, "free_throws_made", float64(made))
		}
		state.FlipPossession()

	case OutcomeTurnover:
		if handler := sim.selectInvolvedPlayer(offense, statScoring, ctx, sampler); handler != nil {
			state.AddStat(handler.Name, "turnovers", 1)
		}
		state.FlipPossession()
	}

	return nil
}

// runShift resolves one NHL shift segment
func (sim *Simulator) runShift(state *MarkovState, ctx GameContext, sampler Sampler, result *GameResult) error {
	outcome, err := sim.sample(state, ctx, sampler, StateShift, result)
	if err != nil {
		return err
	}

	offense := sim.offensePlayers(state)

	switch outcome {
	case OutcomeGoal:
		state.AddPoints(state.Possession, 1)
		scorer := sim.selectInvolvedPlayer(offense, statScoring, ctx, sampler)
		if scorer != nil {
			state.AddStat(scorer.Name, "goals", 1)
			state.AddStat(scorer.Name, "shots", 1)
			if sampler.Float64() < 0.70 {
				if assister := sim.selectInvolvedPlayerExcluding(offense, statScoring, ctx, sampler, scorer.Name); assister != nil {
					state.AddStat(assister.Name, "assists", 1)
				}
			}
		}
		state.FlipPossession()

	case OutcomeShotSave, OutcomeShotMiss:
		if shooter := sim.selectInvolvedPlayer(offense, statScoring, ctx, sampler); shooter != nil {
			state.AddStat(shooter.Name, "shots", 1)
		}
		if sampler.Float64() < 0.60 {
			state.FlipPossession()
		}

	case OutcomeTurnover, OutcomePenalty:
		state.FlipPossession()
	}

	return nil
}

// runFootballPlay resolves one NFL play, tracking down and distance
func (sim *Simulator) runFootballPlay(state *MarkovState, ctx GameContext, sampler Sampler, result *GameResult) error {
	playType, err := sim.sample(state, ctx, sampler, StatePlayType, result)
	if err != nil {
		return err
	}

	offense := sim.offensePlayers(state)
	yards := 0
	turnover := false

	if playType == OutcomePass {
		passResult, err := sim.sample(state, ctx, sampler, StatePassResult, result)
		if err != nil {
			return err
		}
		switch passResult {
		case OutcomeCompletion:
			yards = int(math.Max(-3, sampler.NormFloat64()*7.0+10.5))
			if receiver := sim.selectInvolvedPlayer(offense, statReceiving, ctx, sampler); receiver != nil {
				state.AddStat(receiver.Name, "receptions", 1)
				state.AddStat(receiver.Name, "receiving_yards", float64(yards))
			}
		case OutcomeSack:
			yards = -int(math.Abs(sampler.NormFloat64()*2.0 + 6.0))
		case OutcomeInterception:
			turnover = true
		}
	} else {
		rushResult, err := sim.sample(state, ctx, sampler, StateRushResult, result)
		if err != nil {
			return err
		}
		switch rushResult {
		case OutcomeRushLoss:
			yards = -int(math.Abs(sampler.NormFloat64()*1.5 + 2.0))
		case OutcomeRushShort:
			yards = int(sampler.Float64()*3.0) + 1
		case OutcomeRushMedium:
			yards = int(sampler.Float64()*5.0) + 4
		case OutcomeRushLong:
			yards = int(sampler.Float64()*30.0) + 9
		case OutcomeFumble:
			turnover = true
		}
		if !turnover {
			if rusher := sim.selectInvolvedPlayer(offense, statRushing, ctx, sampler); rusher != nil {
				state.AddStat(rusher.Name, "carries", 1)
				state.AddStat(rusher.Name, "rushing_yards", float64(yards))
			}
		}
	}

	if turnover {
		sim.turnoverFootball(state)
		return nil
	}

	state.FieldPosition += yards

	// Touchdown
	if state.FieldPosition >= 100 {
		state.AddPoints(state.Possession, 7)
		if scorer := sim.selectInvolvedPlayer(offense, statScoring, ctx, sampler); scorer != nil {
			state.AddStat(scorer.Name, "touchdowns", 1)
		}
		sim.turnoverFootball(state)
		return nil
	}

	// Down and distance bookkeeping
	state.Distance -= yards
	if state.Distance <= 0 {
		state.Down = 1
		state.Distance = 10
		return nil
	}

	state.Down++
	if state.Down <= 4 {
		return nil
	}

	// Failed to convert: kick if in range, otherwise punt
	if state.FieldPosition >= 65 {
		if sampler.Float64() < 0.85 {
			state.AddPoints(state.Possession, 3)
		}
	}
	sim.turnoverFootball(state)
	return nil
}

func (sim *Simulator) turnoverFootball(state *MarkovState) {
	state.FlipPossession()
	state.Down = 1
	state.Distance = 10
	state.FieldPosition = 25
}

// runPlateAppearance resolves one MLB plate appearance with a simple
// base-out state machine. Sides flip every three outs.
func (sim *Simulator) runPlateAppearance(state *MarkovState, ctx GameContext, sampler Sampler, result *GameResult, bases *[3]bool, outs *int) error {
	outcome, err := sim.sample(state, ctx, sampler, StatePlateAppearance, result)
	if err != nil {
		return err
	}

	offense := sim.offensePlayers(state)
	batter := sim.selectInvolvedPlayer(offense, statScoring, ctx, sampler)
	batterName := ""
	if batter != nil {
		batterName = batter.Name
	}

	advance := func(n int) {
		runs := 0
		for i := 0; i < n; i++ {
			if bases[2] {
				runs++
			}
			bases[2] = bases[1]
			bases[1] = bases[0]
			bases[0] = false
		}
		if runs > 0 {
			state.AddPoints(state.Possession, runs)
			state.AddStat(batterName, "rbi", float64(runs))
		}
	}

	switch outcome {
	case OutcomeSingle:
		advance(1)
		bases[0] = true
		state.AddStat(batterName, "hits", 1)
	case OutcomeDouble:
		advance(2)
		bases[1] = true
		state.AddStat(batterName, "hits", 1)
	case OutcomeTriple:
		advance(3)
		bases[2] = true
		state.AddStat(batterName, "hits", 1)
	case OutcomeHomeRun:
		runs := 1
		for i := range bases {
			if bases[i] {
				runs++
				bases[i] = false
			}
		}
		state.AddPoints(state.Possession, runs)
		state.AddStat(batterName, "hits", 1)
		state.AddStat(batterName, "home_runs", 1)
		state.AddStat(batterName, "rbi", float64(runs))
	case OutcomeWalk:
		if bases[0] {
			advance(1)
		}
		bases[0] = true
		state.AddStat(batterName, "walks", 1)
	case OutcomeStrikeout:
		state.AddStat(batterName, "strikeouts", 1)
		*outs++
	case OutcomeOutInPlay:
		*outs++
	}

	if *outs >= 3 {
		*outs = 0
		*bases = [3]bool{}
		state.FlipPossession()
	}
	return nil
}

// statKind selects which player rate drives attribution weighting
type statKind int

const (
	statScoring statKind = iota
	statRebounding
	statReceiving
	statRushing
)

func attributionRate(p *types.PlayerContext, kind statKind) float64 {
	switch kind {
	case statRebounding:
		return p.ReboundRate
	case statReceiving:
		return p.TargetShare
	case statRushing:
		return p.CarryShare
	default:
		return p.UsageRate
	}
}

// clutchUsageFactor concentrates late-game touches in high-usage hands
func clutchUsageFactor(usage float64) float64 {
	switch {
	case usage >= 0.25:
		return 1.5
	case usage >= 0.18:
		return 1.15
	default:
		return 0.70
	}
}

// selectInvolvedPlayer picks the player credited with a play by
// weighted random selection. An empty candidate list yields nil: no
// attribution for the play, never an error.
func (sim *Simulator) selectInvolvedPlayer(candidates []types.PlayerContext, kind statKind, ctx GameContext, sampler Sampler) *types.PlayerContext {
	return sim.selectInvolvedPlayerExcluding(candidates, kind, ctx, sampler, "")
}

func (sim *Simulator) selectInvolvedPlayerExcluding(candidates []types.PlayerContext, kind statKind, ctx GameContext, sampler Sampler, exclude string) *types.PlayerContext {
	pool := make([]*types.PlayerContext, 0, len(candidates))
	for i := range candidates {
		if candidates[i].Name != exclude {
			pool = append(pool, &candidates[i])
		}
	}
	if len(pool) == 0 {
		return nil
	}

	weights := make([]float64, len(pool))
	allocWeights := sim.shotAllocationWeights()

	// Rank by usage for shot-allocation tiers on scoring attribution
	ranked := make([]*types.PlayerContext, len(pool))
	copy(ranked, pool)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].UsageRate > ranked[j].UsageRate
	})
	// Equal usage shares a tier so identical players draw evenly
	tier := make(map[string]int, len(ranked))
	rank := 0
	for i, p := range ranked {
		if i > 0 && p.UsageRate < ranked[i-1].UsageRate {
			rank = i
		}
		tier[p.Name] = rank
	}

	for i, p := range pool {
		w := math.Max(attributionRate(p, kind), 0.01)
		if kind == statScoring {
			w *= allocWeights[min(tier[p.Name], len(allocWeights)-1)]
		}
		if ctx.IsClutch {
			w *= clutchUsageFactor(p.UsageRate)
		}
		weights[i] = w
	}

	dist := make(Dist, len(pool))
	for i, p := range pool {
		dist[i] = WeightedOutcome{Outcome: p.Name, Prob: weights[i]}
	}
	dist.Normalize()

	name, ok := SampleOutcome(sampler, dist)
	if !ok {
		return nil
	}
	for _, p := range pool {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// shotAllocationWeights reads the tunable star/secondary/tertiary/other
// allocation tiers from the calibration subsystem.
func (sim *Simulator) shotAllocationWeights() [4]float64 {
	return [4]float64{
		sim.params("shot_allocation_star", 0.30),
		sim.params("shot_allocation_secondary", 0.28),
		sim.params("shot_allocation_tertiary", 0.22),
		sim.params("shot_allocation_other", 0.20),
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
